// Package retriever implements the hybrid retriever (C6), the center
// of the core: mode dispatch over vector, BM25, and adaptive-α fused
// hybrid search, with an optional MMR diversification pass.
package retriever

import (
	"context"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/docrag/docrag/internal/bm25"
	"github.com/docrag/docrag/internal/corpus"
	"github.com/docrag/docrag/internal/tokenize"
	"github.com/docrag/docrag/internal/vectorindex"
)

// overlapThreshold is the minimum token-overlap ratio below which
// lexical fallback kicks in.
const overlapThreshold = 0.15

// fallbackAlphaCap is the ceiling applied to alpha once fallback
// triggers.
const fallbackAlphaCap = 0.3

// minNormEpsilon guards min-max normalization against a degenerate
// (near-constant) score range.
const minNormEpsilon = 1e-9

// Embedder is the subset of C5 the retriever needs: turning a query
// into its embedding.
type Embedder interface {
	EmbedQueries(ctx context.Context, texts []string) ([][]float32, error)
}

// Retriever wires together the immutable, load-once structures shared
// by every query: the BM25 index, the vector index, the chunk store,
// and the per-chunk token streams used for the adaptive-α overlap
// check. None of it mutates after New returns, so a *Retriever is safe
// for concurrent Search calls without locking.
type Retriever struct {
	bm25Idx        *bm25.Index
	vecIdx         *vectorindex.Index
	chunks         *corpus.Store
	embedder       Embedder
	chunkTokens    [][]string
}

// New builds a Retriever over an already-built BM25 index, vector
// index, and chunk store. chunkTokens must be in the same index order
// as the chunk store and supplies the token sets used for the
// adaptive-α overlap computation.
func New(bm25Idx *bm25.Index, vecIdx *vectorindex.Index, chunks *corpus.Store, embedder Embedder, chunkTokens [][]string) *Retriever {
	return &Retriever{
		bm25Idx:     bm25Idx,
		vecIdx:      vecIdx,
		chunks:      chunks,
		embedder:    embedder,
		chunkTokens: chunkTokens,
	}
}

// Search is the public operation: search(query, top_k, mode, mmr,
// fetch_k, alpha, lexical_fallback) → list<Hit>, deterministic given
// identical configuration and corpus. An empty corpus or empty
// candidate set returns an empty list, never an error.
func (r *Retriever) Search(ctx context.Context, query string, cfg Config) ([]Hit, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	n := r.chunks.Len()
	if n == 0 {
		return []Hit{}, nil
	}

	switch cfg.Mode {
	case ModeVector:
		return r.searchVector(ctx, query, cfg)
	case ModeBM25:
		return r.searchBM25(query, cfg)
	default:
		return r.searchHybrid(ctx, query, cfg)
	}
}

func (r *Retriever) searchVector(ctx context.Context, query string, cfg Config) ([]Hit, error) {
	qvecs, err := r.embedder.EmbedQueries(ctx, []string{query})
	if err != nil {
		return nil, err
	}

	scores, indices := r.vecIdx.Search(qvecs[0], cfg.TopK)
	hits := make([]Hit, len(indices))
	for i, idx := range indices {
		hits[i] = r.hitAt(idx, scores[i], "vector")
	}
	return hits, nil
}

func (r *Retriever) searchBM25(query string, cfg Config) ([]Hit, error) {
	tokens := tokenize.Tokenize(query)
	scores := r.bm25Idx.GetScores(tokens)

	order := make([]int, len(scores))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		if scores[order[a]] != scores[order[b]] {
			return scores[order[a]] > scores[order[b]]
		}
		return order[a] < order[b]
	})

	k := cfg.TopK
	if k > len(order) {
		k = len(order)
	}

	hits := make([]Hit, k)
	for i := 0; i < k; i++ {
		idx := order[i]
		hits[i] = r.hitAt(idx, scores[idx], "bm25")
	}
	return hits, nil
}

func (r *Retriever) searchHybrid(ctx context.Context, query string, cfg Config) ([]Hit, error) {
	queryTokens := tokenize.Tokenize(query)

	var qvec []float32
	vector := make(map[int]float64)
	bm25Scores := make([]float64, 0)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		qvecs, err := r.embedder.EmbedQueries(gctx, []string{query})
		if err != nil {
			return err
		}
		qvec = qvecs[0]
		scores, indices := r.vecIdx.Search(qvec, cfg.FetchK)
		for i, idx := range indices {
			vector[idx] = scores[i]
		}
		return nil
	})
	g.Go(func() error {
		bm25Scores = r.bm25Idx.GetScores(queryTokens)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	lexical := topKByScore(bm25Scores, cfg.FetchK)

	union := make(map[int]struct{}, len(vector)+len(lexical))
	for i := range vector {
		union[i] = struct{}{}
	}
	for _, i := range lexical {
		union[i] = struct{}{}
	}

	alphaUsed, fallbackActive := r.adaptiveAlpha(cfg, vector, queryTokens)

	vecNorm := minMaxNormalize(union, vector)
	bm25Map := make(map[int]float64, len(lexical))
	for _, i := range lexical {
		bm25Map[i] = bm25Scores[i]
	}
	bm25Norm := minMaxNormalize(union, bm25Map)

	fused := make(map[int]float64, len(union))
	for i := range union {
		fused[i] = alphaUsed*vecNorm[i] + (1-alphaUsed)*bm25Norm[i]
	}

	candidates := make([]int, 0, len(fused))
	for i := range fused {
		candidates = append(candidates, i)
	}
	sort.SliceStable(candidates, func(a, b int) bool {
		if fused[candidates[a]] != fused[candidates[b]] {
			return fused[candidates[a]] > fused[candidates[b]]
		}
		return candidates[a] < candidates[b]
	})

	retainN := cfg.TopK
	if retainN < 2 {
		retainN = 2
	}
	if retainN > len(candidates) {
		retainN = len(candidates)
	}
	candidates = candidates[:retainN]

	mode := "hybrid"
	if cfg.LexicalFallback && fallbackActive {
		mode = "hybrid-fallback"
	}

	var selected []int
	if cfg.MMR {
		selected = mmrSelect(candidates, cfg.TopK, cfg.Lambda, qvec, r.vecIdx.Vector)
	} else {
		k := cfg.TopK
		if k > len(candidates) {
			k = len(candidates)
		}
		selected = candidates[:k]
	}

	hits := make([]Hit, len(selected))
	for i, idx := range selected {
		hits[i] = r.hitAt(idx, fused[idx], mode)
	}
	return hits, nil
}

// adaptiveAlpha implements the §4.6.3 step-3 rule: if lexical_fallback
// is enabled and the vector candidates have low token overlap with the
// query, cap alpha at fallbackAlphaCap.
func (r *Retriever) adaptiveAlpha(cfg Config, vector map[int]float64, queryTokens []string) (alphaUsed float64, fallbackActive bool) {
	if !cfg.LexicalFallback {
		return cfg.Alpha, false
	}

	top := topKByScoreFromMap(vector, cfg.FallbackCheckK)

	qset := make(map[string]struct{}, len(queryTokens))
	for _, t := range queryTokens {
		qset[t] = struct{}{}
	}

	var overlapCount int
	for _, idx := range top {
		if idx < 0 || idx >= len(r.chunkTokens) {
			continue
		}
		seen := make(map[string]struct{})
		for _, t := range r.chunkTokens[idx] {
			if _, ok := seen[t]; ok {
				continue
			}
			seen[t] = struct{}{}
			if _, inQuery := qset[t]; inQuery {
				overlapCount++
			}
		}
	}

	denom := cfg.FallbackCheckK * len(qset)
	if denom < 1 {
		denom = 1
	}
	overlap := float64(overlapCount) / float64(denom)

	if overlap < overlapThreshold {
		used := cfg.Alpha
		if used > fallbackAlphaCap {
			used = fallbackAlphaCap
		}
		return used, used != cfg.Alpha
	}
	return cfg.Alpha, false
}

func (r *Retriever) hitAt(idx int, score float64, mode string) Hit {
	c := r.chunks.At(idx)
	return Hit{ChunkID: c.ChunkID, DocPath: c.DocPath, Score: score, Mode: mode, Index: idx}
}

// topKByScore returns up to k indices from a dense score slice, sorted
// descending with ties broken by ascending index.
func topKByScore(scores []float64, k int) []int {
	order := make([]int, len(scores))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		if scores[order[a]] != scores[order[b]] {
			return scores[order[a]] > scores[order[b]]
		}
		return order[a] < order[b]
	})
	if k > len(order) {
		k = len(order)
	}
	return order[:k]
}

// topKByScoreFromMap is topKByScore over a sparse map instead of a
// dense slice, used for the fetch_k vector candidate set.
func topKByScoreFromMap(scores map[int]float64, k int) []int {
	indices := make([]int, 0, len(scores))
	for i := range scores {
		indices = append(indices, i)
	}
	sort.SliceStable(indices, func(a, b int) bool {
		if scores[indices[a]] != scores[indices[b]] {
			return scores[indices[a]] > scores[indices[b]]
		}
		return indices[a] < indices[b]
	})
	if k > len(indices) {
		k = len(indices)
	}
	return indices[:k]
}

// minMaxNormalize scales sparse scores over the union candidate set
// into [0, 1]. Missing entries default to 0. A near-constant range
// maps every present value to 1.0 to avoid dividing by ~0.
func minMaxNormalize(union map[int]struct{}, scores map[int]float64) map[int]float64 {
	out := make(map[int]float64, len(union))
	if len(scores) == 0 {
		for i := range union {
			out[i] = 0
		}
		return out
	}

	min, max := scores[firstKey(scores)], scores[firstKey(scores)]
	for _, v := range scores {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}

	spread := max - min
	for i := range union {
		v, ok := scores[i]
		if !ok {
			out[i] = 0
			continue
		}
		if spread < minNormEpsilon {
			out[i] = 1.0
			continue
		}
		out[i] = (v - min) / spread
	}
	return out
}

func firstKey(m map[int]float64) int {
	for k := range m {
		return k
	}
	return 0
}
