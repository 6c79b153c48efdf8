// Package conf loads application settings from YAML, environment and defaults.
package conf

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Settings is the root of the configuration tree.
type Settings struct {
	Debug   bool
	Log     LogSettings
	Engine  EngineSettings
	OCR     OCRSettings
	Match   MatchSettings
	Store   StoreSettings
	Metrics MetricsSettings
}

// LogSettings controls the slog handler.
type LogSettings struct {
	Level  string // trace, debug, info, warn, error
	Format string // text or json
}

// EngineSettings controls per-document engine behaviour.
type EngineSettings struct {
	AutoLink         bool          // link new annotations to the matched pattern without confirmation
	MinDrawSize      float64       // minimum drawn width and height in device pixels
	EditDebounce     time.Duration // coalescing window for move/resize gestures
	DevicePixelRatio float64       // backing pixels per view pixel of the rendered surface
}

// OCRSettings configures the Tesseract engine and its result cache.
type OCRSettings struct {
	Language         string
	Whitelist        string
	UpscaleMinHeight int           // regions shorter than this are upscaled before recognition
	CacheTTL         time.Duration // 0 disables the recognition cache
	MinConfidence    float64       // recognitions below this are treated as empty
}

// MatchSettings configures pattern matching.
type MatchSettings struct {
	MinConfidence float64 // auto-link only at or above this score
}

// StoreSettings locates the local annotation database.
type StoreSettings struct {
	Path string
}

// MetricsSettings toggles Prometheus instrumentation.
type MetricsSettings struct {
	Enabled bool
	Listen  string // address of the /metrics endpoint; empty keeps metrics in-process
}

// DefaultWhitelist is the tag-code character set: digits, upper-case letters and hyphen.
const DefaultWhitelist = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ-"

// setDefaults registers the default value of every key on v.
func setDefaults(v *viper.Viper) {
	v.SetDefault("debug", false)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("engine.autolink", true)
	v.SetDefault("engine.mindrawsize", 5.0)
	v.SetDefault("engine.editdebounce", 300*time.Millisecond)
	v.SetDefault("engine.devicepixelratio", 1.0)

	v.SetDefault("ocr.language", "eng")
	v.SetDefault("ocr.whitelist", DefaultWhitelist)
	v.SetDefault("ocr.upscaleminheight", 64)
	v.SetDefault("ocr.cachettl", 10*time.Minute)
	v.SetDefault("ocr.minconfidence", 0.0)

	v.SetDefault("match.minconfidence", 0.0)

	v.SetDefault("store.path", "plantag.db")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.listen", "")
}

// Default returns the settings produced by defaults alone.
func Default() *Settings {
	v := viper.New()
	setDefaults(v)
	s := &Settings{}
	// Defaults always decode.
	_ = v.Unmarshal(s)
	return s
}

// Load reads configuration. An explicit path must exist; otherwise
// plantag.yaml is searched in the working and user config directories and
// defaults are used when it is absent. PLANTAG_* environment variables override.
func Load(path string) (*Settings, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("plantag")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("plantag")
		v.SetConfigType("yaml")
		for _, p := range defaultConfigPaths() {
			v.AddConfigPath(p)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}
	if err := Validate(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}
	return settings, nil
}

func defaultConfigPaths() []string {
	paths := []string{"."}
	if dir, err := os.UserConfigDir(); err == nil {
		paths = append(paths, filepath.Join(dir, "plantag"))
	}
	return paths
}

// Validate rejects settings the engine cannot run with.
func Validate(s *Settings) error {
	var errs []error
	if s.Engine.MinDrawSize < 0 {
		errs = append(errs, fmt.Errorf("engine.mindrawsize must be >= 0, got %v", s.Engine.MinDrawSize))
	}
	if s.Engine.EditDebounce < 0 {
		errs = append(errs, fmt.Errorf("engine.editdebounce must be >= 0, got %v", s.Engine.EditDebounce))
	}
	if s.Engine.DevicePixelRatio <= 0 {
		errs = append(errs, fmt.Errorf("engine.devicepixelratio must be > 0, got %v", s.Engine.DevicePixelRatio))
	}
	if s.OCR.MinConfidence < 0 || s.OCR.MinConfidence > 100 {
		errs = append(errs, fmt.Errorf("ocr.minconfidence must be within [0,100], got %v", s.OCR.MinConfidence))
	}
	if s.Match.MinConfidence < 0 || s.Match.MinConfidence > 100 {
		errs = append(errs, fmt.Errorf("match.minconfidence must be within [0,100], got %v", s.Match.MinConfidence))
	}
	if s.OCR.CacheTTL < 0 {
		errs = append(errs, fmt.Errorf("ocr.cachettl must be >= 0, got %v", s.OCR.CacheTTL))
	}
	if strings.TrimSpace(s.Store.Path) == "" {
		errs = append(errs, errors.New("store.path is required"))
	}
	return errors.Join(errs...)
}
