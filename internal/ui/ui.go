// Package ui provides terminal progress and status output for the corpus
// rebuild pipeline (load -> tokenize -> embed -> index).
package ui

import (
	"context"
	"io"
	"os"
	"time"
)

// Stage represents a corpus rebuild stage.
type Stage int

const (
	// StageLoading is the chunk file loading stage.
	StageLoading Stage = iota
	// StageTokenizing is the BM25 tokenization stage.
	StageTokenizing
	// StageEmbedding is the embedding generation stage.
	StageEmbedding
	// StageIndexing is the index persistence stage.
	StageIndexing
	// StageComplete indicates the rebuild is complete.
	StageComplete
)

// String returns the human-readable stage name.
func (s Stage) String() string {
	switch s {
	case StageLoading:
		return "Loading"
	case StageTokenizing:
		return "Tokenizing"
	case StageEmbedding:
		return "Embedding"
	case StageIndexing:
		return "Indexing"
	case StageComplete:
		return "Complete"
	default:
		return "Unknown"
	}
}

// Icon returns the short stage label for plain text output.
func (s Stage) Icon() string {
	switch s {
	case StageLoading:
		return "LOAD"
	case StageTokenizing:
		return "TOKEN"
	case StageEmbedding:
		return "EMBED"
	case StageIndexing:
		return "INDEX"
	case StageComplete:
		return "DONE"
	default:
		return "???"
	}
}

// ProgressEvent represents a progress update.
type ProgressEvent struct {
	Stage       Stage
	Current     int
	Total       int
	CurrentFile string
	Message     string
}

// ErrorEvent represents an error or warning during a rebuild.
type ErrorEvent struct {
	File   string
	Err    error
	IsWarn bool
}

// StageTimings tracks duration for each rebuild stage.
type StageTimings struct {
	Scan    time.Duration // Chunk file discovery/loading
	Chunk   time.Duration // Tokenization for BM25
	Context time.Duration // Reserved for future enrichment passes
	Embed   time.Duration // Embedding generation (cache + backend)
	Index   time.Duration // BM25 + vector index persistence
}

// EmbedderInfo contains embedder backend details for the completion summary.
type EmbedderInfo struct {
	Backend    string // "static", or a wired embedding backend name
	Model      string
	Dimensions int
}

// CompletionStats contains final rebuild statistics.
type CompletionStats struct {
	Files    int
	Chunks   int
	Duration time.Duration
	Errors   int
	Warnings int
	Stages   StageTimings
	Embedder EmbedderInfo
}

// Renderer defines the interface for progress display during a corpus rebuild.
type Renderer interface {
	// Start initializes the renderer.
	Start(ctx context.Context) error

	// UpdateProgress updates progress display.
	UpdateProgress(event ProgressEvent)

	// AddError adds an error to display.
	AddError(event ErrorEvent)

	// Complete marks rendering as complete with a summary.
	Complete(stats CompletionStats)

	// Stop stops the renderer and cleans up.
	Stop() error
}

// Config configures the UI renderer.
type Config struct {
	Output     io.Writer
	NoColor    bool
	ProjectDir string // Corpus directory path to display in header
}

// ConfigOption is a function that modifies Config.
type ConfigOption func(*Config)

// WithNoColor disables color output.
func WithNoColor(noColor bool) ConfigOption {
	return func(c *Config) {
		c.NoColor = noColor
	}
}

// WithProjectDir sets the corpus directory path to display in header.
func WithProjectDir(dir string) ConfigOption {
	return func(c *Config) {
		c.ProjectDir = dir
	}
}

// NewConfig creates a new Config with the given output and options.
func NewConfig(output io.Writer, opts ...ConfigOption) Config {
	cfg := Config{
		Output:  output,
		NoColor: DetectNoColor(),
	}

	for _, opt := range opts {
		opt(&cfg)
	}

	return cfg
}

// NewRenderer creates a plain text progress renderer. Rebuilds are typically
// run non-interactively (CI, scripts, piped output), so docrag always uses
// the plain renderer rather than an interactive TUI.
func NewRenderer(cfg Config) Renderer {
	return NewPlainRenderer(cfg)
}

// DetectNoColor checks if the NO_COLOR environment variable is set.
func DetectNoColor() bool {
	_, exists := os.LookupEnv("NO_COLOR")
	return exists
}

// DetectCI checks if running in a CI environment.
func DetectCI() bool {
	ciVars := []string{"CI", "GITHUB_ACTIONS", "GITLAB_CI", "JENKINS_URL", "TRAVIS"}
	for _, v := range ciVars {
		if _, exists := os.LookupEnv(v); exists {
			return true
		}
	}
	return false
}
