package links

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"plan-tagger/internal/annotation"
)

func TestRebuildFromAnnotations(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	r.Rebuild([]annotation.Annotation{
		{ID: "a", TagPatternID: annotation.Ptr("p")},
		{ID: "b", TagPatternID: annotation.Ptr("p")},
		{ID: "c", TagPatternID: annotation.Ptr("q")},
		{ID: "d"},
	})

	assert.Equal(t, []string{"a", "b"}, r.Linked("p"))
	assert.Equal(t, map[string]int{"p": 2, "q": 1}, r.Counts())
	assert.Equal(t, 3, r.Len())

	_, ok := r.PatternFor("d")
	assert.False(t, ok)

	r.Rebuild(nil)
	assert.Zero(t, r.Len())
	assert.Empty(t, r.Counts())
}

func TestToggle(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	got := r.Toggle("a", "p")
	require.NotNil(t, got)
	assert.Equal(t, "p", *got)

	assert.Nil(t, r.Toggle("a", "p"))
	_, ok := r.PatternFor("a")
	assert.False(t, ok)
	assert.Empty(t, r.Linked("p"))
}

func TestLinkReplacesPriorLink(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	r.Link("a", "p")
	got := r.Toggle("a", "q")
	require.NotNil(t, got)
	assert.Equal(t, "q", *got)

	p, ok := r.PatternFor("a")
	require.True(t, ok)
	assert.Equal(t, "q", p)
	assert.Empty(t, r.Linked("p"))
	assert.Equal(t, map[string]int{"q": 1}, r.Counts())
}

func TestUnlinkAllCascade(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	r.Link("a", "p")
	r.Link("b", "p")
	r.Link("c", "p")
	r.Link("d", "q")

	affected := r.UnlinkAll("p")
	assert.Equal(t, []string{"a", "b", "c"}, affected)
	assert.Empty(t, r.Linked("p"))
	for _, id := range affected {
		_, ok := r.PatternFor(id)
		assert.False(t, ok, id)
	}
	assert.Equal(t, map[string]int{"q": 1}, r.Counts(), "no orphaned entries")

	assert.Empty(t, r.UnlinkAll("missing"))
}

func TestUnlink(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	assert.False(t, r.Unlink("a"))
	r.Link("a", "p")
	assert.True(t, r.Unlink("a"))
	assert.Empty(t, r.Counts())
}

func TestConcurrentAccess(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := string(rune('a' + i))
			for range 100 {
				r.Toggle(id, "p")
				_ = r.Counts()
				_ = r.Linked("p")
			}
		}()
	}
	wg.Wait()
	// Each annotation was toggled an even number of times.
	assert.Zero(t, r.Len())
}
