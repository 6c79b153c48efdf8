// Package ocr extracts, cleans up and recognizes text in annotated regions.
package ocr

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"image"
	"time"

	"github.com/patrickmn/go-cache"

	"plan-tagger/pkg/geometry"
)

// Recognition is the result of reading one region.
type Recognition struct {
	Text        string
	Confidence  float64 // 0-100
	BoundingBox geometry.RectInt
}

// Recognizer reads text from an image.
type Recognizer interface {
	Recognize(ctx context.Context, img image.Image) (Recognition, error)
}

// RecognizerFunc adapts a function to Recognizer.
type RecognizerFunc func(ctx context.Context, img image.Image) (Recognition, error)

// Recognize implements Recognizer.
func (f RecognizerFunc) Recognize(ctx context.Context, img image.Image) (Recognition, error) {
	return f(ctx, img)
}

// CachedRecognizer memoizes recognitions by pixel content.
type CachedRecognizer struct {
	next  Recognizer
	cache *cache.Cache
}

// NewCachedRecognizer wraps next with a TTL cache. A non-positive ttl
// returns next unwrapped.
func NewCachedRecognizer(next Recognizer, ttl time.Duration) Recognizer {
	if ttl <= 0 {
		return next
	}
	return &CachedRecognizer{next: next, cache: cache.New(ttl, ttl*2)}
}

// Recognize implements Recognizer. Failures are not cached.
func (c *CachedRecognizer) Recognize(ctx context.Context, img image.Image) (Recognition, error) {
	key := Fingerprint(img)
	if v, ok := c.cache.Get(key); ok {
		return v.(Recognition), nil
	}
	rec, err := c.next.Recognize(ctx, img)
	if err != nil {
		return Recognition{}, err
	}
	c.cache.Set(key, rec, cache.DefaultExpiration)
	return rec, nil
}

// Len returns the number of cached entries.
func (c *CachedRecognizer) Len() int {
	return c.cache.ItemCount()
}

// Fingerprint hashes the size and pixels of img.
func Fingerprint(img image.Image) string {
	rgba := toRGBA(img)
	h := sha256.New()
	var dims [8]byte
	binary.LittleEndian.PutUint32(dims[:4], uint32(rgba.Bounds().Dx()))
	binary.LittleEndian.PutUint32(dims[4:], uint32(rgba.Bounds().Dy()))
	h.Write(dims[:])
	h.Write(rgba.Pix)
	return hex.EncodeToString(h.Sum(nil))
}
