// Package config loads the docrag CLI's configuration from (in order
// of increasing precedence) hardcoded defaults, an optional user-level
// YAML file, an optional project-level YAML file, and environment
// variables — mirroring the layering spec.md §6 requires of
// EMBED_MODEL, INDEX_PATH, CHUNKS_PATH, EMB_CACHE, EMB_CACHE_PATH,
// SEARCH_MODE, HYBRID_ALPHA, FETCH_K, and LEXICAL_FALLBACK.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the full docrag configuration.
type Config struct {
	Version int          `yaml:"version" json:"version"`
	Corpus  CorpusConfig `yaml:"corpus" json:"corpus"`
	Embed   EmbedConfig  `yaml:"embed" json:"embed"`
	Search  SearchConfig `yaml:"search" json:"search"`
	Log     LogConfig    `yaml:"log" json:"log"`
}

// CorpusConfig locates the pre-built corpus a query runs against.
type CorpusConfig struct {
	// IndexPath is the on-disk vector index (C3's binary format).
	IndexPath string `yaml:"index_path" json:"index_path"`
	// ChunksPath is the newline-delimited chunk record file (C7/C8).
	ChunksPath string `yaml:"chunks_path" json:"chunks_path"`
}

// EmbedConfig configures the embedding backend and its cache (C4/C5).
type EmbedConfig struct {
	// Model is the configured model identifier. Cache keys are derived
	// from the embedding backend's own ModelName, not from this value.
	Model string `yaml:"model" json:"model"`
	// CacheEnabled turns the persistent embedding cache on or off.
	// When off, every query embeds directly through the backend.
	CacheEnabled bool `yaml:"cache_enabled" json:"cache_enabled"`
	// CachePath is the SQLite-backed cache store location. An empty
	// path opens an in-memory cache (no persistence across runs).
	CachePath string `yaml:"cache_path" json:"cache_path"`
}

// SearchConfig supplies the retriever's request defaults (C6), applied
// unless a CLI flag overrides them for a single query.
type SearchConfig struct {
	// Mode is "vector", "bm25", or "hybrid".
	Mode string `yaml:"mode" json:"mode"`
	// TopK is the number of hits returned.
	TopK int `yaml:"top_k" json:"top_k"`
	// FetchK is the candidate pool size fetched from each scorer
	// before fusion, in hybrid mode.
	FetchK int `yaml:"fetch_k" json:"fetch_k"`
	// Alpha is the fusion weight given to the vector score (0..1).
	Alpha float64 `yaml:"alpha" json:"alpha"`
	// MMR enables the Maximum Marginal Relevance diversification pass.
	MMR bool `yaml:"mmr" json:"mmr"`
	// Lambda is the MMR relevance/diversity trade-off (0..1).
	Lambda float64 `yaml:"lambda" json:"lambda"`
	// LexicalFallback enables adaptive-alpha capping when vector
	// candidates have low token overlap with the query.
	LexicalFallback bool `yaml:"lexical_fallback" json:"lexical_fallback"`
	// FallbackCheckK is how many top vector candidates the overlap
	// check inspects.
	FallbackCheckK int `yaml:"fallback_check_k" json:"fallback_check_k"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Level         string `yaml:"level" json:"level"` // debug, info, warn, error
	FilePath      string `yaml:"file_path" json:"file_path"`
	WriteToStderr bool   `yaml:"write_to_stderr" json:"write_to_stderr"`
}

// NewConfig returns a Config populated with sensible defaults,
// matching retriever.DefaultConfig's values so the CLI and library
// defaults never drift apart.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Corpus: CorpusConfig{
			IndexPath:  "corpus.index",
			ChunksPath: "corpus.chunks.jsonl",
		},
		Embed: EmbedConfig{
			Model:        "static-v1",
			CacheEnabled: true,
			CachePath:    defaultCachePath(),
		},
		Search: SearchConfig{
			Mode:            "hybrid",
			TopK:            8,
			FetchK:          64,
			Alpha:           0.65,
			MMR:             false,
			Lambda:          0.6,
			LexicalFallback: true,
			FallbackCheckK:  12,
		},
		Log: LogConfig{
			Level:         "info",
			FilePath:      defaultLogPath(),
			WriteToStderr: false,
		},
	}
}

func defaultCachePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".docrag", "embed-cache.db")
	}
	return filepath.Join(home, ".docrag", "embed-cache.db")
}

func defaultLogPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".docrag", "logs", "docrag.log")
	}
	return filepath.Join(home, ".docrag", "logs", "docrag.log")
}

// GetUserConfigPath returns the path to the user/global configuration
// file, following the XDG Base Directory spec:
//   - $XDG_CONFIG_HOME/docrag/config.yaml (if XDG_CONFIG_HOME is set)
//   - ~/.config/docrag/config.yaml (default)
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "docrag", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "docrag", "config.yaml")
	}
	return filepath.Join(home, ".config", "docrag", "config.yaml")
}

// GetUserConfigDir returns the directory containing the user configuration.
func GetUserConfigDir() string {
	return filepath.Dir(GetUserConfigPath())
}

// UserConfigExists reports whether the user configuration file exists.
func UserConfigExists() bool {
	return fileExists(GetUserConfigPath())
}

func loadUserConfig() (*Config, error) {
	configPath := GetUserConfigPath()
	if !fileExists(configPath) {
		return nil, nil
	}

	cfg := NewConfig()
	if err := cfg.loadYAML(configPath); err != nil {
		return nil, fmt.Errorf("failed to load user config from %s: %w", configPath, err)
	}
	return cfg, nil
}

// LoadUserConfig loads the user configuration file, or returns a nil
// config and nil error if it doesn't exist.
func LoadUserConfig() (*Config, error) {
	return loadUserConfig()
}

// Load loads configuration for the given project directory, applying
// layers in order of increasing precedence:
//  1. hardcoded defaults
//  2. user config (~/.config/docrag/config.yaml)
//  3. project config (.docrag.yaml in dir)
//  4. environment variables
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if userCfg, err := loadUserConfig(); err != nil {
		return nil, fmt.Errorf("failed to load user config: %w", err)
	} else if userCfg != nil {
		cfg.mergeWith(userCfg)
	}

	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) loadFromFile(dir string) error {
	yamlPath := filepath.Join(dir, ".docrag.yaml")
	if _, err := os.Stat(yamlPath); err == nil {
		return c.loadYAML(yamlPath)
	}
	ymlPath := filepath.Join(dir, ".docrag.yml")
	if _, err := os.Stat(ymlPath); err == nil {
		return c.loadYAML(ymlPath)
	}
	return nil
}

func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	// Start from the current values so that boolean fields absent from
	// the file keep them through mergeWith.
	parsed := *c
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	c.mergeWith(&parsed)
	return nil
}

// mergeWith merges non-zero values from other into c. Boolean fields
// are always taken from other, which therefore starts from defaults or
// from c (see loadUserConfig and loadYAML).
func (c *Config) mergeWith(other *Config) {
	c.Embed.CacheEnabled = other.Embed.CacheEnabled
	c.Search.MMR = other.Search.MMR
	c.Search.LexicalFallback = other.Search.LexicalFallback
	c.Log.WriteToStderr = other.Log.WriteToStderr

	if other.Version != 0 {
		c.Version = other.Version
	}

	if other.Corpus.IndexPath != "" {
		c.Corpus.IndexPath = other.Corpus.IndexPath
	}
	if other.Corpus.ChunksPath != "" {
		c.Corpus.ChunksPath = other.Corpus.ChunksPath
	}

	if other.Embed.Model != "" {
		c.Embed.Model = other.Embed.Model
	}
	if other.Embed.CachePath != "" {
		c.Embed.CachePath = other.Embed.CachePath
	}

	if other.Search.Mode != "" {
		c.Search.Mode = other.Search.Mode
	}
	if other.Search.TopK != 0 {
		c.Search.TopK = other.Search.TopK
	}
	if other.Search.FetchK != 0 {
		c.Search.FetchK = other.Search.FetchK
	}
	if other.Search.Alpha != 0 {
		c.Search.Alpha = other.Search.Alpha
	}
	if other.Search.Lambda != 0 {
		c.Search.Lambda = other.Search.Lambda
	}
	if other.Search.FallbackCheckK != 0 {
		c.Search.FallbackCheckK = other.Search.FallbackCheckK
	}

	if other.Log.Level != "" {
		c.Log.Level = other.Log.Level
	}
	if other.Log.FilePath != "" {
		c.Log.FilePath = other.Log.FilePath
	}
}

// applyEnvOverrides applies the environment variables named in
// spec.md §6, highest precedence.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("EMBED_MODEL"); v != "" {
		c.Embed.Model = v
	}
	if v := os.Getenv("INDEX_PATH"); v != "" {
		c.Corpus.IndexPath = v
	}
	if v := os.Getenv("CHUNKS_PATH"); v != "" {
		c.Corpus.ChunksPath = v
	}
	if v := os.Getenv("EMB_CACHE"); v != "" {
		c.Embed.CacheEnabled = parseBool(v, c.Embed.CacheEnabled)
	}
	if v := os.Getenv("EMB_CACHE_PATH"); v != "" {
		c.Embed.CachePath = v
	}
	if v := os.Getenv("SEARCH_MODE"); v != "" {
		c.Search.Mode = v
	}
	if v := os.Getenv("HYBRID_ALPHA"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Search.Alpha = f
		}
	}
	if v := os.Getenv("FETCH_K"); v != "" {
		if k, err := strconv.Atoi(v); err == nil {
			c.Search.FetchK = k
		}
	}
	if v := os.Getenv("LEXICAL_FALLBACK"); v != "" {
		c.Search.LexicalFallback = parseBool(v, c.Search.LexicalFallback)
	}
	if v := os.Getenv("DOCRAG_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
}

func parseBool(v string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "on", "yes":
		return true
	case "0", "false", "off", "no":
		return false
	default:
		return fallback
	}
}

// Validate rejects an internally inconsistent configuration before it
// reaches the retriever, where a validation error would otherwise
// surface mid-query.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Search.Mode) {
	case "vector", "bm25", "hybrid":
	default:
		return fmt.Errorf("search.mode must be 'vector', 'bm25', or 'hybrid', got %q", c.Search.Mode)
	}

	if c.Search.TopK < 1 {
		return fmt.Errorf("search.top_k must be >= 1, got %d", c.Search.TopK)
	}
	if c.Search.FetchK < c.Search.TopK {
		return fmt.Errorf("search.fetch_k (%d) must be >= search.top_k (%d)", c.Search.FetchK, c.Search.TopK)
	}
	if c.Search.Alpha < 0 || c.Search.Alpha > 1 {
		return fmt.Errorf("search.alpha must be between 0 and 1, got %f", c.Search.Alpha)
	}
	if c.Search.Lambda < 0 || c.Search.Lambda > 1 {
		return fmt.Errorf("search.lambda must be between 0 and 1, got %f", c.Search.Lambda)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Log.Level)] {
		return fmt.Errorf("log.level must be 'debug', 'info', 'warn', or 'error', got %q", c.Log.Level)
	}

	return nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// FindProjectRoot walks up from startDir looking for a .git directory
// or a .docrag.yaml/.yml file, returning startDir itself if neither is found.
func FindProjectRoot(startDir string) (string, error) {
	absDir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}

	currentDir := absDir
	for {
		if dirExists(filepath.Join(currentDir, ".git")) {
			return currentDir, nil
		}
		if fileExists(filepath.Join(currentDir, ".docrag.yaml")) ||
			fileExists(filepath.Join(currentDir, ".docrag.yml")) {
			return currentDir, nil
		}

		parentDir := filepath.Dir(currentDir)
		if parentDir == currentDir {
			return absDir, nil
		}
		currentDir = parentDir
	}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}
