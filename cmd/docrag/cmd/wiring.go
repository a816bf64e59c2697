package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/docrag/docrag/internal/bm25"
	"github.com/docrag/docrag/internal/config"
	"github.com/docrag/docrag/internal/corpus"
	"github.com/docrag/docrag/internal/embed"
	"github.com/docrag/docrag/internal/embedcache"
	"github.com/docrag/docrag/internal/retriever"
	"github.com/docrag/docrag/internal/tokenize"
)

// openRetriever loads the on-disk corpus and embedding cache and wires
// them into a Retriever ready to serve queries. The returned cleanup
// closes the embedding cache and releases the corpus read lock; callers
// must defer it.
func openRetriever(cfg *config.Config) (*retriever.Retriever, func(), error) {
	lock := corpus.NewLock(filepath.Dir(cfg.Corpus.IndexPath))
	if err := lock.RLock(); err != nil {
		return nil, nil, fmt.Errorf("failed to acquire corpus lock: %w", err)
	}

	chunks, err := corpus.LoadChunks(cfg.Corpus.ChunksPath)
	if err != nil {
		_ = lock.Unlock()
		return nil, nil, fmt.Errorf("failed to load chunk file: %w", err)
	}

	vecIdx, err := corpus.LoadIndex(cfg.Corpus.IndexPath)
	if err != nil {
		_ = lock.Unlock()
		return nil, nil, fmt.Errorf("failed to load vector index: %w", err)
	}

	if err := corpus.Verify(chunks, vecIdx); err != nil {
		_ = lock.Unlock()
		return nil, nil, fmt.Errorf("corpus consistency check failed: %w", err)
	}

	chunkTokens := make([][]string, chunks.Len())
	for i := 0; i < chunks.Len(); i++ {
		chunkTokens[i] = tokenize.Tokenize(chunks.At(i).Text)
	}
	bm25Idx := bm25.Build(chunkTokens)

	var cache *embedcache.Cache
	if cfg.Embed.CacheEnabled {
		cache, err = embedcache.Open(cfg.Embed.CachePath)
		if err != nil {
			_ = lock.Unlock()
			return nil, nil, fmt.Errorf("failed to open embedding cache: %w", err)
		}
	}

	embedder := embed.New(embed.NewStatic(), cache)
	r := retriever.New(bm25Idx, vecIdx, chunks, embedder, chunkTokens)

	cleanup := func() {
		if cache != nil {
			_ = cache.Close()
		}
		_ = lock.Unlock()
	}
	return r, cleanup, nil
}
