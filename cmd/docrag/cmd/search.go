package cmd

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/docrag/docrag/internal/config"
	"github.com/docrag/docrag/internal/output"
	"github.com/docrag/docrag/internal/retriever"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	limit           int
	mode            string
	alpha           float64
	mmr             bool
	lambda          float64
	lexicalFallback bool
	fetchK          int
	format          string // "text", "json"
	explain         bool
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the built corpus",
		Long: `Search the corpus built by 'docrag build' using hybrid retrieval.

Combines BM25 (keyword) and vector (semantic) search with adaptive-alpha
fusion and an optional MMR diversification pass.

Examples:
  docrag search "onboarding checklist"
  docrag search "release process" --mode bm25 --limit 5
  docrag search "incident response" --mmr --format json
  docrag search "deploy steps" --explain`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return runSearch(cmd, query, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 0, "Maximum number of results (0 = use configured top_k)")
	cmd.Flags().StringVarP(&opts.mode, "mode", "m", "", "Search mode: vector, bm25, hybrid (default: configured)")
	cmd.Flags().Float64Var(&opts.alpha, "alpha", 0, "Hybrid fusion weight given to the vector score, 0..1 (0 = use configured)")
	cmd.Flags().BoolVar(&opts.mmr, "mmr", false, "Enable MMR diversification")
	cmd.Flags().Float64Var(&opts.lambda, "lambda", 0, "MMR relevance/diversity trade-off, 0..1 (0 = use configured)")
	cmd.Flags().BoolVar(&opts.lexicalFallback, "lexical-fallback", true, "Cap alpha when vector candidates have low query overlap")
	cmd.Flags().IntVar(&opts.fetchK, "fetch-k", 0, "Candidate pool size per scorer before fusion (0 = use configured)")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")
	cmd.Flags().BoolVar(&opts.explain, "explain", false, "Show per-hit mode and score alongside the text")

	return cmd
}

func runSearch(cmd *cobra.Command, query string, opts searchOptions) error {
	ctx := cmd.Context()
	out := output.New(cmd.OutOrStdout())

	root, err := config.FindProjectRoot(".")
	if err != nil {
		root = "."
	}
	cfg, err := config.Load(root)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	r, cleanup, err := openRetriever(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	if !cmd.Flags().Changed("lexical-fallback") {
		opts.lexicalFallback = cfg.Search.LexicalFallback
	}
	searchCfg := retrieverConfigFrom(cfg, opts)
	if err := searchCfg.Validate(); err != nil {
		return fmt.Errorf("invalid search parameters: %w", err)
	}

	slog.Info("search_started", slog.String("query", query), slog.String("mode", string(searchCfg.Mode)))
	hits, err := r.Search(ctx, query, searchCfg)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}
	slog.Info("search_complete", slog.Int("results", len(hits)))

	if len(hits) == 0 {
		out.Status("", fmt.Sprintf("No results found for %q", query))
		return nil
	}

	if opts.format == "json" {
		return formatJSON(cmd, hits)
	}
	return formatText(out, query, hits, opts.explain)
}

// retrieverConfigFrom builds a retriever.Config from the loaded
// configuration, with any non-zero CLI flag overriding its field for
// this single query. opts.lexicalFallback always wins; runSearch sets it
// from the configuration unless --lexical-fallback was given.
func retrieverConfigFrom(cfg *config.Config, opts searchOptions) retriever.Config {
	rc := retriever.Config{
		Mode:            retriever.Mode(cfg.Search.Mode),
		TopK:            cfg.Search.TopK,
		FetchK:          cfg.Search.FetchK,
		Alpha:           cfg.Search.Alpha,
		MMR:             cfg.Search.MMR,
		Lambda:          cfg.Search.Lambda,
		LexicalFallback: cfg.Search.LexicalFallback,
		FallbackCheckK:  cfg.Search.FallbackCheckK,
	}

	if opts.limit > 0 {
		rc.TopK = opts.limit
	}
	if opts.mode != "" {
		rc.Mode = retriever.Mode(opts.mode)
	}
	if opts.alpha > 0 {
		rc.Alpha = opts.alpha
	}
	if opts.mmr {
		rc.MMR = true
	}
	if opts.lambda > 0 {
		rc.Lambda = opts.lambda
	}
	if opts.fetchK > 0 {
		rc.FetchK = opts.fetchK
	}
	rc.LexicalFallback = opts.lexicalFallback
	return rc
}

// formatText outputs hits in human-readable form.
func formatText(out *output.Writer, query string, hits []retriever.Hit, explain bool) error {
	out.Statusf("", "Found %d results for %q:", len(hits), query)
	out.Newline()

	for i, h := range hits {
		if explain {
			out.Statusf("", "%d. %s (score: %.4f, mode: %s)", i+1, h.DocPath, h.Score, h.Mode)
		} else {
			out.Statusf("", "%d. %s (score: %.3f)", i+1, h.DocPath, h.Score)
		}
		out.Status("", "   chunk_id: "+h.ChunkID)
		out.Newline()
	}
	return nil
}

// formatJSON outputs hits in JSON format.
func formatJSON(cmd *cobra.Command, hits []retriever.Hit) error {
	type jsonHit struct {
		ChunkID string  `json:"chunk_id"`
		DocPath string  `json:"doc_path"`
		Score   float64 `json:"score"`
		Mode    string  `json:"mode"`
	}

	results := make([]jsonHit, len(hits))
	for i, h := range hits {
		results[i] = jsonHit{ChunkID: h.ChunkID, DocPath: h.DocPath, Score: h.Score, Mode: h.Mode}
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(results)
}
