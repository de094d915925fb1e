package identity

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestResolver() *Resolver {
	return New(map[string]string{
		"jsmith":     "john-smith",
		"Jane Doe":   "janedoe",
		"Bob Wilson": "bwilson",
	})
}

func TestResolve_ExactMatch(t *testing.T) {
	r := newTestResolver()
	got, ok := r.Resolve("jsmith")
	assert.True(t, ok)
	assert.Equal(t, "john-smith", got)
}

func TestResolve_CaseInsensitiveFallback(t *testing.T) {
	r := newTestResolver()
	got, ok := r.Resolve("jane doe")
	assert.True(t, ok)
	assert.Equal(t, "janedoe", got)
}

func TestResolve_Miss(t *testing.T) {
	r := newTestResolver()
	_, ok := r.Resolve("nobody")
	assert.False(t, ok)

	// Repeat misses stay misses; the warning fires only on the first.
	_, ok = r.Resolve("nobody")
	assert.False(t, ok)
	assert.Contains(t, r.warned, "nobody")
	assert.Len(t, r.warned, 1)
}

func TestResolve_EmptyIdentifier(t *testing.T) {
	r := newTestResolver()
	_, ok := r.Resolve("")
	assert.False(t, ok)
	assert.Empty(t, r.warned)
}

func TestResolve_OpaqueAccountIDNeverMapped(t *testing.T) {
	opaque := "712020:634d5063-6091-4f3c-8b08-64ccd298144d"
	r := New(map[string]string{opaque: "someone"})

	_, ok := r.Resolve(opaque)
	assert.False(t, ok)
	// Opaque ids are skipped silently, not warned about.
	assert.Empty(t, r.warned)
}

func TestResolve_ShortColonIdentifierStillResolves(t *testing.T) {
	r := New(map[string]string{"team:lead": "lead"})
	got, ok := r.Resolve("team:lead")
	assert.True(t, ok)
	assert.Equal(t, "lead", got)
}

func TestResolveOrOriginal(t *testing.T) {
	r := newTestResolver()
	assert.Equal(t, "john-smith", r.ResolveOrOriginal("jsmith"))
	assert.Equal(t, "nobody", r.ResolveOrOriginal("nobody"))
}

func TestLoadTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mapping.yaml")
	require.NoError(t, os.WriteFile(path, []byte("jsmith: john-smith\nJane Doe: janedoe\n"), 0o644))

	table, err := LoadTable(path)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"jsmith": "john-smith", "Jane Doe": "janedoe"}, table)
}

func TestLoadTable_MissingFileIsEmpty(t *testing.T) {
	table, err := LoadTable(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Empty(t, table)
}

func TestLoadTable_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("{not yaml"), 0o644))

	_, err := LoadTable(path)
	assert.Error(t, err)
}
