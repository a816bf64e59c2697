// Package validation provides a data-driven golden-query regression
// harness for a built corpus. It runs a fixed set of queries against a
// live retriever.Retriever and checks that the expected chunk IDs
// appear in the results, so a corpus rebuild or a tuning change to
// alpha/fetch_k/lambda can be checked for search-quality regressions
// without hand-inspecting results.
//
// Queries are data-driven, loaded from testdata/queries.yaml, so the
// golden set can be edited without rebuilding the binary.
package validation

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/docrag/docrag/internal/retriever"
)

// QuerySpec defines one golden query and the chunk IDs expected to
// appear somewhere in its results.
type QuerySpec struct {
	ID       string   `yaml:"id"`
	Name     string   `yaml:"name"`
	Query    string   `yaml:"query"`
	Mode     string   `yaml:"mode"` // "vector", "bm25", "hybrid" — empty defaults to hybrid
	TopK     int      `yaml:"top_k"`
	Expected []string `yaml:"expected"` // chunk IDs that should appear
	Notes    string   `yaml:"notes"`
	Tier     int      `yaml:"-"`
}

// QueryConfig holds every golden query loaded from YAML, grouped by
// tier. Tier1 is the core "must pass" set, Tier2 is best-effort, and
// Negative queries must simply not error.
type QueryConfig struct {
	Tier1    []QuerySpec `yaml:"tier1"`
	Tier2    []QuerySpec `yaml:"tier2"`
	Negative []QuerySpec `yaml:"negative"`
}

var (
	queriesOnce sync.Once
	queriesData *QueryConfig
	queriesErr  error
)

// LoadQueries loads the golden query set from testdata/queries.yaml,
// caching the result after the first call.
func LoadQueries() (*QueryConfig, error) {
	queriesOnce.Do(func() {
		_, filename, _, ok := runtime.Caller(0)
		if !ok {
			queriesErr = fmt.Errorf("failed to get current file path")
			return
		}

		dir := filepath.Dir(filename)
		path := filepath.Join(dir, "testdata", "queries.yaml")

		data, err := os.ReadFile(path)
		if err != nil {
			queriesErr = fmt.Errorf("failed to read queries file %s: %w", path, err)
			return
		}

		var cfg QueryConfig
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			queriesErr = fmt.Errorf("failed to parse queries YAML: %w", err)
			return
		}

		for i := range cfg.Tier1 {
			cfg.Tier1[i].Tier = 1
		}
		for i := range cfg.Tier2 {
			cfg.Tier2[i].Tier = 2
		}
		for i := range cfg.Negative {
			cfg.Negative[i].Tier = 0
		}

		queriesData = &cfg
	})

	return queriesData, queriesErr
}

// ResetQueries clears the cached query set. Used by tests that load
// queries from a temporary directory.
func ResetQueries() {
	queriesOnce = sync.Once{}
	queriesData = nil
	queriesErr = nil
}

// TestResult captures the outcome of running a single QuerySpec.
type TestResult struct {
	Spec      QuerySpec     `json:"spec"`
	Passed    bool          `json:"passed"`
	Duration  time.Duration `json:"duration_ns"`
	Got       []string      `json:"got"` // chunk IDs returned, in rank order
	MatchedAt int           `json:"matched_at"`
	Error     string        `json:"error,omitempty"`
}

// Result captures the outcome of a full golden-query run.
type Result struct {
	// RunID uniquely identifies this run so results from repeated
	// regression runs (e.g. across a tuning sweep) can be told apart
	// in stored reports.
	RunID      string       `json:"run_id"`
	Timestamp  time.Time    `json:"timestamp"`
	Tier1      []TestResult `json:"tier1"`
	Tier2      []TestResult `json:"tier2"`
	Negative   []TestResult `json:"negative"`
	Tier1Pass  int          `json:"tier1_pass"`
	Tier1Total int          `json:"tier1_total"`
	Tier2Pass  int          `json:"tier2_pass"`
	Tier2Total int          `json:"tier2_total"`
	NegPass    int          `json:"negative_pass"`
	NegTotal   int          `json:"negative_total"`
}

// Runner executes golden queries against a retriever.
type Runner struct {
	retriever *retriever.Retriever
	base      retriever.Config
}

// NewRunner builds a Runner over an already-constructed retriever. base
// supplies the defaults (alpha, fetch_k, mmr, lambda, lexical_fallback)
// applied to every query unless the spec overrides mode or top_k.
func NewRunner(r *retriever.Retriever, base retriever.Config) *Runner {
	return &Runner{retriever: r, base: base}
}

func modeFromString(s string) retriever.Mode {
	switch s {
	case "vector":
		return retriever.ModeVector
	case "bm25":
		return retriever.ModeBM25
	default:
		return retriever.ModeHybrid
	}
}

// RunQuery executes one QuerySpec and reports whether at least one
// expected chunk ID appeared in the result set. A query that errors
// never passes.
func (runner *Runner) RunQuery(ctx context.Context, spec QuerySpec) TestResult {
	start := time.Now()
	result := TestResult{Spec: spec, MatchedAt: -1}

	cfg := runner.base
	if spec.Mode != "" {
		cfg.Mode = modeFromString(spec.Mode)
	}
	if spec.TopK > 0 {
		cfg.TopK = spec.TopK
	}

	hits, err := runner.retriever.Search(ctx, spec.Query, cfg)
	result.Duration = time.Since(start)

	if err != nil {
		result.Error = err.Error()
		return result
	}

	got := make([]string, len(hits))
	for i, h := range hits {
		got[i] = h.ChunkID
	}
	result.Got = got

	if len(spec.Expected) == 0 {
		result.Passed = true
		return result
	}

	result.Passed, result.MatchedAt = checkExpected(got, spec.Expected)
	return result
}

// RunAll executes every tier of the golden query set.
func (runner *Runner) RunAll(ctx context.Context) *Result {
	result := &Result{RunID: uuid.NewString(), Timestamp: time.Now()}

	for _, spec := range Tier1Queries() {
		tr := runner.RunQuery(ctx, spec)
		result.Tier1 = append(result.Tier1, tr)
		result.Tier1Total++
		if tr.Passed {
			result.Tier1Pass++
		}
	}
	for _, spec := range Tier2Queries() {
		tr := runner.RunQuery(ctx, spec)
		result.Tier2 = append(result.Tier2, tr)
		result.Tier2Total++
		if tr.Passed {
			result.Tier2Pass++
		}
	}
	for _, spec := range NegativeQueries() {
		tr := runner.RunQuery(ctx, spec)
		result.Negative = append(result.Negative, tr)
		result.NegTotal++
		if tr.Passed {
			result.NegPass++
		}
	}

	return result
}

// Tier1Queries returns the must-pass golden queries.
func Tier1Queries() []QuerySpec {
	cfg, err := LoadQueries()
	if err != nil {
		return nil
	}
	return cfg.Tier1
}

// Tier2Queries returns the best-effort golden queries.
func Tier2Queries() []QuerySpec {
	cfg, err := LoadQueries()
	if err != nil {
		return nil
	}
	return cfg.Tier2
}

// NegativeQueries returns queries that must not error, regardless of
// whether they match anything.
func NegativeQueries() []QuerySpec {
	cfg, err := LoadQueries()
	if err != nil {
		return nil
	}
	return cfg.Negative
}

// checkExpected reports whether any expected chunk ID is present in
// results, and the rank position of the first match.
func checkExpected(results []string, expected []string) (bool, int) {
	for i, id := range results {
		for _, exp := range expected {
			if id == exp {
				return true, i
			}
		}
	}
	return false, -1
}
