package cmd

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/docrag/docrag/internal/config"
	"github.com/docrag/docrag/internal/corpus"
	"github.com/docrag/docrag/internal/embed"
	"github.com/docrag/docrag/internal/embedcache"
	"github.com/docrag/docrag/internal/ui"
	"github.com/docrag/docrag/internal/vectorindex"
)

// buildOptions holds CLI flags for build.
type buildOptions struct {
	chunksPath string
	indexPath  string
	batchSize  int
	noColor    bool
}

func newBuildCmd() *cobra.Command {
	var opts buildOptions

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build the vector index from a chunk file",
		Long: `Build embeds every chunk in the chunk file and writes the resulting
vector index to disk, ready for 'docrag search'.

The chunk file itself is produced upstream (outside docrag) as a
newline-delimited JSON record stream with chunk_id, doc_path, and text
fields. Build does not re-chunk documents; it only embeds and indexes
what it is given.

Examples:
  docrag build
  docrag build --chunks ./corpus.chunks.jsonl --output ./corpus.index`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBuild(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.chunksPath, "chunks", "", "Chunk file path (default: configured corpus.chunks_path)")
	cmd.Flags().StringVar(&opts.indexPath, "output", "", "Vector index output path (default: configured corpus.index_path)")
	cmd.Flags().IntVar(&opts.batchSize, "batch-size", 64, "Number of chunks embedded per backend call")
	cmd.Flags().BoolVar(&opts.noColor, "no-color", false, "Disable colored progress output")

	return cmd
}

func runBuild(cmd *cobra.Command, opts buildOptions) error {
	ctx := cmd.Context()
	start := time.Now()

	root, err := config.FindProjectRoot(".")
	if err != nil {
		root = "."
	}
	cfg, err := config.Load(root)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	chunksPath := cfg.Corpus.ChunksPath
	if opts.chunksPath != "" {
		chunksPath = opts.chunksPath
	}
	indexPath := cfg.Corpus.IndexPath
	if opts.indexPath != "" {
		indexPath = opts.indexPath
	}

	uiCfg := ui.NewConfig(cmd.OutOrStdout(), ui.WithNoColor(opts.noColor), ui.WithProjectDir(filepath.Dir(indexPath)))
	renderer := ui.NewRenderer(uiCfg)
	if err := renderer.Start(ctx); err != nil {
		return fmt.Errorf("failed to start progress renderer: %w", err)
	}
	defer func() { _ = renderer.Stop() }()

	lock := corpus.NewLock(filepath.Dir(indexPath))
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("failed to acquire corpus lock: %w", err)
	}
	defer func() { _ = lock.Unlock() }()

	loadStart := time.Now()
	renderer.UpdateProgress(ui.ProgressEvent{Stage: ui.StageLoading, Message: chunksPath})
	chunks, err := corpus.LoadChunks(chunksPath)
	if err != nil {
		return fmt.Errorf("failed to load chunk file: %w", err)
	}
	loadDuration := time.Since(loadStart)

	n := chunks.Len()
	slog.Info("build_loaded_chunks", slog.Int("count", n), slog.String("path", chunksPath))

	var cache *embedcache.Cache
	if cfg.Embed.CacheEnabled {
		cache, err = embedcache.Open(cfg.Embed.CachePath)
		if err != nil {
			return fmt.Errorf("failed to open embedding cache: %w", err)
		}
		defer func() { _ = cache.Close() }()
	}

	backend := embed.NewStatic()
	embedder := embed.New(backend, cache)

	embedStart := time.Now()
	texts := chunks.Texts()
	dim := embedder.Dimensions()
	vecIdx := vectorindex.New(dim)

	batchSize := opts.batchSize
	if batchSize < 1 {
		batchSize = 64
	}
	var errCount int
	for start := 0; start < len(texts); start += batchSize {
		end := start + batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch := texts[start:end]

		vecs, embErr := embedder.EmbedPassages(ctx, batch)
		if embErr != nil {
			renderer.AddError(ui.ErrorEvent{Err: embErr, IsWarn: false})
			errCount++
			return fmt.Errorf("failed to embed chunks %d-%d: %w", start, end, embErr)
		}
		if addErr := vecIdx.Add(vecs); addErr != nil {
			return fmt.Errorf("failed to add embedded chunks %d-%d to index: %w", start, end, addErr)
		}

		renderer.UpdateProgress(ui.ProgressEvent{Stage: ui.StageEmbedding, Current: end, Total: len(texts)})
	}
	embedDuration := time.Since(embedStart)

	indexStart := time.Now()
	renderer.UpdateProgress(ui.ProgressEvent{Stage: ui.StageIndexing, Message: indexPath})
	if err := vecIdx.Save(indexPath); err != nil {
		return fmt.Errorf("failed to save vector index: %w", err)
	}
	indexDuration := time.Since(indexStart)

	renderer.Complete(ui.CompletionStats{
		Files:    1,
		Chunks:   n,
		Duration: time.Since(start),
		Errors:   errCount,
		Stages: ui.StageTimings{
			Scan:  loadDuration,
			Embed: embedDuration,
			Index: indexDuration,
		},
		Embedder: ui.EmbedderInfo{
			Backend:    backend.ModelName(),
			Model:      backend.ModelName(),
			Dimensions: dim,
		},
	})

	slog.Info("build_complete", slog.Int("chunks", n), slog.Duration("duration", time.Since(start)))
	return nil
}
