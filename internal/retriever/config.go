package retriever

import "github.com/docrag/docrag/internal/xerrors"

// Mode selects which scoring path a search uses.
type Mode string

const (
	ModeVector Mode = "vector"
	ModeBM25   Mode = "bm25"
	ModeHybrid Mode = "hybrid"
)

// Config is the per-request configuration accepted by Search.
type Config struct {
	Mode            Mode
	TopK            int
	FetchK          int
	Alpha           float64
	MMR             bool
	Lambda          float64
	LexicalFallback bool
	FallbackCheckK  int
}

// DefaultConfig returns the documented request defaults.
func DefaultConfig() Config {
	return Config{
		Mode:            ModeHybrid,
		TopK:            8,
		FetchK:          64,
		Alpha:           0.65,
		MMR:             false,
		Lambda:          0.6,
		LexicalFallback: true,
		FallbackCheckK:  12,
	}
}

// Validate rejects malformed parameters rather than silently coercing
// them, per the query-failure error kind.
func (c Config) Validate() error {
	if c.TopK < 1 {
		return xerrors.New(xerrors.ErrCodeInvalidTopK, "top_k must be >= 1", nil)
	}
	if c.Alpha < 0 || c.Alpha > 1 {
		return xerrors.New(xerrors.ErrCodeInvalidAlpha, "alpha must be in [0, 1]", nil)
	}
	switch c.Mode {
	case ModeVector, ModeBM25, ModeHybrid:
	default:
		return xerrors.New(xerrors.ErrCodeInvalidMode, "mode must be one of vector, bm25, hybrid", nil)
	}
	if c.FetchK < c.TopK {
		return xerrors.New(xerrors.ErrCodeInvalidTopK, "fetch_k must be >= top_k", nil)
	}
	return nil
}
