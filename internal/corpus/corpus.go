// Package corpus implements the chunk store (C7) and the index/chunk
// loader (C8): the read-only data the retriever serves queries against.
package corpus

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"

	"github.com/docrag/docrag/internal/vectorindex"
	"github.com/docrag/docrag/internal/xerrors"
)

// Chunk is a single retrievable unit: its text plus the identifiers
// needed to join a Hit back to its source document.
type Chunk struct {
	ChunkID string `json:"chunk_id"`
	DocPath string `json:"doc_path"`
	Text    string `json:"text"`
}

// Store is the immutable, load-once chunk store. The position of a
// chunk in the slice is its integer chunk index, the same index space
// used by the BM25 and vector indices.
type Store struct {
	chunks []Chunk
}

// NewStore builds a Store directly from an in-memory chunk slice,
// bypassing the file loader. Useful for tests and for callers that
// assemble chunks from a source other than the on-disk record format.
func NewStore(chunks []Chunk) *Store {
	return &Store{chunks: chunks}
}

// Len returns the number of chunks.
func (s *Store) Len() int { return len(s.chunks) }

// At returns the chunk at integer index i.
func (s *Store) At(i int) Chunk { return s.chunks[i] }

// Texts returns every chunk's text, in index order, for building the
// BM25 index and the content-addressed embedding cache keys.
func (s *Store) Texts() []string {
	texts := make([]string, len(s.chunks))
	for i, c := range s.chunks {
		texts[i] = c.Text
	}
	return texts
}

// LoadChunks reads a newline-delimited record file, one JSON object
// per line with at least chunk_id, doc_path, and text. Unknown fields
// are ignored. Line order defines the integer chunk index. A malformed
// line fails the whole load fast — the store is all-or-nothing.
func LoadChunks(path string) (*Store, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, xerrors.New(xerrors.ErrCodeChunkFileCorrupt, "open chunk file", err)
	}
	defer f.Close()

	var chunks []Chunk
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var c Chunk
		if err := json.Unmarshal(line, &c); err != nil {
			return nil, xerrors.New(xerrors.ErrCodeChunkFileCorrupt,
				fmt.Sprintf("malformed record at line %d", lineNo), err)
		}
		chunks = append(chunks, c)
	}
	if err := scanner.Err(); err != nil {
		return nil, xerrors.New(xerrors.ErrCodeChunkFileCorrupt, "read chunk file", err)
	}

	return &Store{chunks: chunks}, nil
}

// LoadIndex reads the vector index's on-disk binary format.
func LoadIndex(path string) (*vectorindex.Index, error) {
	return vectorindex.Load(path)
}

// Verify checks that the chunk store and vector index agree on count,
// surfacing ERR_204_COUNT_MISMATCH fast at load time rather than
// failing unpredictably on the first query.
func Verify(store *Store, index *vectorindex.Index) error {
	if store.Len() != index.N() {
		return xerrors.New(xerrors.ErrCodeCountMismatch,
			fmt.Sprintf("chunk store has %d chunks, vector index has %d vectors", store.Len(), index.N()), nil)
	}
	return nil
}
