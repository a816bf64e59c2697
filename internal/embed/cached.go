package embed

import (
	"context"

	"github.com/docrag/docrag/internal/embedcache"
	"github.com/docrag/docrag/internal/xerrors"
)

// CachedEmbedder implements the C5 contract: for each text, split into
// cached vs to-compute, call the backend once over the to-compute
// subset, L2-normalize the fresh rows, write them to the cache, and
// reassemble a dense matrix in the original input order. A nil cache
// disables C4 entirely (EMB_CACHE=off): every call goes straight to
// the backend.
type CachedEmbedder struct {
	backend Backend
	cache   *embedcache.Cache
}

// New wraps backend with an embedding cache. Pass a nil cache to
// bypass caching.
func New(backend Backend, cache *embedcache.Cache) *CachedEmbedder {
	return &CachedEmbedder{backend: backend, cache: cache}
}

// EmbedQueries embeds texts using the backend's query path.
func (c *CachedEmbedder) EmbedQueries(ctx context.Context, texts []string) ([][]float32, error) {
	return c.embed(ctx, texts, c.backend.EmbedQueries)
}

// EmbedPassages embeds texts using the backend's passage path.
func (c *CachedEmbedder) EmbedPassages(ctx context.Context, texts []string) ([][]float32, error) {
	return c.embed(ctx, texts, c.backend.EmbedPassages)
}

// Dimensions passes through to the backend.
func (c *CachedEmbedder) Dimensions() int { return c.backend.Dimensions() }

// ModelName passes through to the backend.
func (c *CachedEmbedder) ModelName() string { return c.backend.ModelName() }

type backendCall func(ctx context.Context, texts []string) ([][]float32, error)

func (c *CachedEmbedder) embed(ctx context.Context, texts []string, call backendCall) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	results := make([][]float32, len(texts))

	var missIdx []int
	var missTexts []string

	if c.cache != nil {
		cached, err := c.cache.GetMany(ctx, c.backend.ModelName(), texts)
		if err != nil {
			// GetMany degrades internally; a returned error here would be
			// unexpected, but treat it the same as a full miss rather than
			// failing the query.
			cached = make([][]float32, len(texts))
		}
		for i, v := range cached {
			if v != nil {
				results[i] = v
				continue
			}
			missIdx = append(missIdx, i)
			missTexts = append(missTexts, texts[i])
		}
	} else {
		missIdx = make([]int, len(texts))
		missTexts = texts
		for i := range texts {
			missIdx[i] = i
		}
	}

	if len(missTexts) == 0 {
		return results, nil
	}

	fresh, err := call(ctx, missTexts)
	if err != nil {
		return nil, xerrors.New(xerrors.ErrCodeEmbedderFailed, "embedder backend call failed", err)
	}
	if len(fresh) != len(missTexts) {
		return nil, xerrors.New(xerrors.ErrCodeInternal, "backend returned mismatched row count", nil)
	}

	normalized := make([][]float32, len(fresh))
	for i, v := range fresh {
		normalized[i] = normalizeVector(v)
	}

	for j, idx := range missIdx {
		results[idx] = normalized[j]
	}

	if c.cache != nil {
		_ = c.cache.PutMany(ctx, c.backend.ModelName(), missTexts, normalized)
	}

	return results, nil
}
