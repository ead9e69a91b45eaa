package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"articlereview/internal/types"
)

func TestParseDocMeta_Keyed(t *testing.T) {
	rows, err := ParseDocMeta([]byte(`{"m1": {"title": "Primes", "area": "Mathematics"}, "x": {}}`))
	require.NoError(t, err)
	assert.Equal(t, types.DocMeta{Title: "Primes", Area: "Mathematics"}, rows["m1"])
	assert.Equal(t, types.DocMeta{Title: "Untitled", Area: "General"}, rows["x"])
}

func TestParseDocMeta_List(t *testing.T) {
	rows, err := ParseDocMeta([]byte(`[
		{"doc_id": "a", "title": "A", "area": "Medicine", "source_uri": "a.pdf"},
		{"id": "b", "title": "B"},
		{"title": "orphan"}
	]`))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "a.pdf", rows["a"].SourceURI)
	assert.Equal(t, "General", rows["b"].Area)
}

func TestLoadDocMeta_MissingFile(t *testing.T) {
	rows, err := LoadDocMeta(filepath.Join(t.TempDir(), "nope.json"))
	require.NoError(t, err)
	assert.Empty(t, rows)

	_, err = ParseDocMeta([]byte(`"just a string"`))
	assert.Error(t, err)
}

func TestMetaTable(t *testing.T) {
	tbl := NewMetaTable(nil)
	_, ok := tbl.Lookup("a")
	assert.False(t, ok)

	tbl.Replace(map[string]types.DocMeta{"a": {Title: "A"}})
	m, ok := tbl.Lookup("a")
	assert.True(t, ok)
	assert.Equal(t, "A", m.Title)
	assert.Equal(t, 1, tbl.Len())
}

func TestMetaWatcher_ReloadsOnWrite(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "metadata.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"a": {"title": "Old"}}`), 0644))

	rows, err := LoadDocMeta(path)
	require.NoError(t, err)
	tbl := NewMetaTable(rows)

	w, err := NewMetaWatcher(path, tbl)
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	require.NoError(t, os.WriteFile(path, []byte(`{"a": {"title": "New"}, "b": {}}`), 0644))

	assert.Eventually(t, func() bool {
		m, _ := tbl.Lookup("a")
		return m.Title == "New" && tbl.Len() == 2
	}, 5*time.Second, 20*time.Millisecond)
	assert.GreaterOrEqual(t, w.Reloads(), 1)
}
