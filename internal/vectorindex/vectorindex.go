// Package vectorindex implements the exact inner-product vector index
// (C3): a flat N×d float32 matrix searched by brute-force dot product.
// Since stored and query vectors are unit-length, inner product equals
// cosine similarity. No approximate nearest-neighbor structure is used
// — the contract requires exact search.
package vectorindex

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"

	"github.com/docrag/docrag/internal/xerrors"
)

// fileMagic tags the on-disk format; version allows a future layout
// change to be rejected cleanly instead of silently misread.
const (
	fileMagic   uint32 = 0x44524956 // "DRIV"
	fileVersion uint32 = 1
)

// Index is the immutable-after-load flat vector index. Add populates
// it once at build time; Search is safe for concurrent callers
// afterward since nothing mutates post-build.
type Index struct {
	dim  int
	vecs [][]float32
}

// New creates an empty index with a fixed dimension.
func New(dim int) *Index {
	return &Index{dim: dim}
}

// Add appends rows of a N×d matrix to the index. All rows must match
// the index's configured dimension.
func (idx *Index) Add(matrix [][]float32) error {
	for i, row := range matrix {
		if len(row) != idx.dim {
			return xerrors.New(xerrors.ErrCodeDimensionMismatch,
				fmt.Sprintf("row %d has dimension %d, index expects %d", i, len(row), idx.dim), nil)
		}
	}
	idx.vecs = append(idx.vecs, matrix...)
	return nil
}

// Dim returns the configured vector dimension.
func (idx *Index) Dim() int { return idx.dim }

// N returns the number of stored vectors.
func (idx *Index) N() int { return len(idx.vecs) }

type scored struct {
	score float64
	index int
}

// Search returns the top-k indices by descending inner product against
// query, along with their scores. k and any internal bookkeeping are
// clipped to N; k <= 0 returns an empty result.
func (idx *Index) Search(query []float32, k int) (scores []float64, indices []int) {
	n := len(idx.vecs)
	if k > n {
		k = n
	}
	if k <= 0 || n == 0 {
		return nil, nil
	}

	all := make([]scored, n)
	for i, row := range idx.vecs {
		all[i] = scored{score: dot(query, row), index: i}
	}

	sort.SliceStable(all, func(a, b int) bool {
		if all[a].score != all[b].score {
			return all[a].score > all[b].score
		}
		return all[a].index < all[b].index
	})

	scores = make([]float64, k)
	indices = make([]int, k)
	for i := 0; i < k; i++ {
		scores[i] = all[i].score
		indices[i] = all[i].index
	}
	return scores, indices
}

// Vector returns a copy of the stored row at i, used by the retriever
// to recompute passage vectors for MMR without requiring the index to
// expose row access as part of its steady-state query path.
func (idx *Index) Vector(i int) []float32 {
	if i < 0 || i >= len(idx.vecs) {
		return nil
	}
	out := make([]float32, idx.dim)
	copy(out, idx.vecs[i])
	return out
}

func dot(a, b []float32) float64 {
	var sum float64
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// Save persists the index as a binary file containing a magic header,
// dimension, count, and the float32 matrix verbatim, written to a temp
// file and renamed atomically into place.
func (idx *Index) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return xerrors.New(xerrors.ErrCodeIndexFileCorrupt, "create index directory", err)
	}

	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return xerrors.New(xerrors.ErrCodeIndexFileCorrupt, "create temp index file", err)
	}

	w := bufio.NewWriter(f)
	writeErr := writeIndex(w, idx)
	if writeErr == nil {
		writeErr = w.Flush()
	}
	closeErr := f.Close()

	if writeErr != nil {
		_ = os.Remove(tmpPath)
		return xerrors.New(xerrors.ErrCodeIndexFileCorrupt, "write index file", writeErr)
	}
	if closeErr != nil {
		_ = os.Remove(tmpPath)
		return xerrors.New(xerrors.ErrCodeIndexFileCorrupt, "close index file", closeErr)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return xerrors.New(xerrors.ErrCodeIndexFileCorrupt, "rename index file into place", err)
	}
	return nil
}

func writeIndex(w *bufio.Writer, idx *Index) error {
	if err := binary.Write(w, binary.LittleEndian, fileMagic); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, fileVersion); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(idx.dim)); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(idx.vecs))); err != nil {
		return err
	}
	for _, row := range idx.vecs {
		for _, v := range row {
			if err := binary.Write(w, binary.LittleEndian, math.Float32bits(v)); err != nil {
				return err
			}
		}
	}
	return nil
}

// Load reads an index written by Save, failing fast on a truncated or
// malformed file rather than returning a partially-populated index.
func Load(path string) (*Index, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, xerrors.New(xerrors.ErrCodeIndexFileCorrupt, "open index file", err)
	}
	defer f.Close()

	r := bufio.NewReader(f)

	var magic, version, dim, count uint32
	if err := binary.Read(r, binary.LittleEndian, &magic); err != nil {
		return nil, xerrors.New(xerrors.ErrCodeIndexFileCorrupt, "read index magic", err)
	}
	if magic != fileMagic {
		return nil, xerrors.New(xerrors.ErrCodeIndexFileCorrupt, "index file has wrong magic header", nil)
	}
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return nil, xerrors.New(xerrors.ErrCodeIndexFileCorrupt, "read index version", err)
	}
	if version != fileVersion {
		return nil, xerrors.New(xerrors.ErrCodeIndexFileCorrupt, fmt.Sprintf("unsupported index version %d", version), nil)
	}
	if err := binary.Read(r, binary.LittleEndian, &dim); err != nil {
		return nil, xerrors.New(xerrors.ErrCodeIndexFileCorrupt, "read index dimension", err)
	}
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, xerrors.New(xerrors.ErrCodeIndexFileCorrupt, "read index count", err)
	}

	idx := &Index{dim: int(dim), vecs: make([][]float32, count)}
	for i := uint32(0); i < count; i++ {
		row := make([]float32, dim)
		for j := uint32(0); j < dim; j++ {
			var bits uint32
			if err := binary.Read(r, binary.LittleEndian, &bits); err != nil {
				return nil, xerrors.New(xerrors.ErrCodeIndexFileCorrupt,
					fmt.Sprintf("truncated index file at row %d", i), err)
			}
			row[j] = math.Float32frombits(bits)
		}
		idx.vecs[i] = row
	}

	return idx, nil
}
