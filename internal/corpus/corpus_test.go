package corpus

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docrag/docrag/internal/vectorindex"
)

func writeChunkFile(t *testing.T, lines []string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chunks.jsonl")
	content := ""
	for _, l := range lines {
		content += l + "\n"
	}
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// TS01: chunk order in the file defines the integer chunk index.
func TestLoadChunks_OrderDefinesIndex(t *testing.T) {
	path := writeChunkFile(t, []string{
		`{"chunk_id":"c0","doc_path":"a.md","text":"first"}`,
		`{"chunk_id":"c1","doc_path":"b.md","text":"second"}`,
	})

	store, err := LoadChunks(path)
	require.NoError(t, err)
	require.Equal(t, 2, store.Len())
	assert.Equal(t, "c0", store.At(0).ChunkID)
	assert.Equal(t, "c1", store.At(1).ChunkID)
}

// TS02: unknown fields in a record are ignored, not fatal.
func TestLoadChunks_IgnoresUnknownFields(t *testing.T) {
	path := writeChunkFile(t, []string{
		`{"chunk_id":"c0","doc_path":"a.md","text":"hi","extra_field":"ignored","nested":{"x":1}}`,
	})

	store, err := LoadChunks(path)
	require.NoError(t, err)
	assert.Equal(t, "hi", store.At(0).Text)
}

// TS03: a malformed line fails the whole load fast.
func TestLoadChunks_MalformedLine_FailsFast(t *testing.T) {
	path := writeChunkFile(t, []string{
		`{"chunk_id":"c0","doc_path":"a.md","text":"ok"}`,
		`not json at all`,
	})

	_, err := LoadChunks(path)
	assert.Error(t, err)
}

// TS04: blank lines are skipped.
func TestLoadChunks_SkipsBlankLines(t *testing.T) {
	path := writeChunkFile(t, []string{
		`{"chunk_id":"c0","doc_path":"a.md","text":"ok"}`,
		``,
		`{"chunk_id":"c1","doc_path":"b.md","text":"ok2"}`,
	})

	store, err := LoadChunks(path)
	require.NoError(t, err)
	assert.Equal(t, 2, store.Len())
}

// TS05: Verify fails fast on a chunk-count / vector-count mismatch.
func TestVerify_CountMismatch_FailsFast(t *testing.T) {
	path := writeChunkFile(t, []string{
		`{"chunk_id":"c0","doc_path":"a.md","text":"one"}`,
		`{"chunk_id":"c1","doc_path":"b.md","text":"two"}`,
	})
	store, err := LoadChunks(path)
	require.NoError(t, err)

	idx := vectorindex.New(2)
	require.NoError(t, idx.Add([][]float32{{1, 0}}))

	err = Verify(store, idx)
	assert.Error(t, err)
}

// TS06: Verify passes when counts agree.
func TestVerify_CountsMatch_Passes(t *testing.T) {
	path := writeChunkFile(t, []string{
		`{"chunk_id":"c0","doc_path":"a.md","text":"one"}`,
	})
	store, err := LoadChunks(path)
	require.NoError(t, err)

	idx := vectorindex.New(2)
	require.NoError(t, idx.Add([][]float32{{1, 0}}))

	assert.NoError(t, Verify(store, idx))
}

func TestLock_AcquireAndRelease(t *testing.T) {
	dir := t.TempDir()
	l := NewLock(dir)
	require.NoError(t, l.Lock())
	require.NoError(t, l.Unlock())
	require.NoError(t, l.Unlock()) // idempotent
}
