package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// Intent names used as keys in the weight and rule tables.
const (
	IntentPolicy    = "policy"
	IntentProcedure = "procedure"
	IntentReference = "reference"
	IntentUnknown   = "unknown"
)

// ProjectConfigNames are the per-directory config file names, in lookup order.
var ProjectConfigNames = []string{".amankb.yaml", ".amankb.yml"}

// Config represents the complete AmanKB configuration.
type Config struct {
	Version    int              `yaml:"version" json:"version"`
	Paths      PathsConfig      `yaml:"paths" json:"paths"`
	Search     SearchConfig     `yaml:"search" json:"search"`
	Classifier ClassifierConfig `yaml:"classifier" json:"classifier"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	Reranker   RerankerConfig   `yaml:"reranker" json:"reranker"`
	Feedback   FeedbackConfig   `yaml:"feedback" json:"feedback"`
	Index      IndexConfig      `yaml:"index" json:"index"`
	Server     ServerConfig     `yaml:"server" json:"server"`
}

// PathsConfig locates on-disk state.
type PathsConfig struct {
	// DataDir holds the SQLite database, Bleve index and writer lock.
	DataDir string `yaml:"data_dir" json:"data_dir"`
	// SpoolDir is watched by `amankb watch` for IngestedDocument JSON files.
	SpoolDir string `yaml:"spool_dir" json:"spool_dir"`
	// Exclude holds gitignore-style patterns skipped by ingest.
	Exclude []string `yaml:"exclude" json:"exclude"`
}

// FusionWeights scales the lexical and vector RRF contributions.
type FusionWeights struct {
	Lexical float64 `yaml:"lexical" json:"lexical"`
	Vector  float64 `yaml:"vector" json:"vector"`
}

// SearchConfig configures retrieval and ranking.
type SearchConfig struct {
	// RRFConstant is the k in 1/(k+rank). Default 60.
	RRFConstant int `yaml:"rrf_constant" json:"rrf_constant"`

	// IntentWeights maps an intent name to its fusion weights.
	IntentWeights map[string]FusionWeights `yaml:"intent_weights" json:"intent_weights"`

	// BoostFactor scales the category boost: fused *= 1 + BoostFactor*confidence.
	BoostFactor float64 `yaml:"boost_factor" json:"boost_factor"`

	// PolicyThreshold is the minimum classifier confidence for the category boost.
	PolicyThreshold float64 `yaml:"policy_threshold" json:"policy_threshold"`

	// DedupThreshold drops a result whose Jaccard similarity to a kept result
	// is strictly greater than this value.
	DedupThreshold float64 `yaml:"dedup_threshold" json:"dedup_threshold"`

	// LexicalBackend selects the lexical index: "sqlite" (FTS5) or "bleve".
	LexicalBackend string `yaml:"lexical_backend" json:"lexical_backend"`

	DefaultLimit int `yaml:"default_limit" json:"default_limit"`
	MaxLimit     int `yaml:"max_limit" json:"max_limit"`

	// Overfetch multiplies the limit when requesting candidates from each index.
	Overfetch int `yaml:"overfetch" json:"overfetch"`

	// OversampleFactor is the initial limit multiplier for namespace-filtered
	// vector queries.
	OversampleFactor int `yaml:"oversample_factor" json:"oversample_factor"`

	VectorTimeout  string `yaml:"vector_timeout" json:"vector_timeout"`
	LexicalTimeout string `yaml:"lexical_timeout" json:"lexical_timeout"`
}

// IntentRule is the signal table for one intent.
type IntentRule struct {
	Keywords         []string `yaml:"keywords" json:"keywords"`
	DomainTerms      []string `yaml:"domain_terms" json:"domain_terms"`
	QuestionPatterns []string `yaml:"question_patterns" json:"question_patterns"`
}

// ClassifierConfig configures the rule-based intent classifier.
type ClassifierConfig struct {
	Rules     map[string]IntentRule `yaml:"rules" json:"rules"`
	CacheSize int                   `yaml:"cache_size" json:"cache_size"`
}

// EmbeddingsConfig configures the embedding collaborator.
type EmbeddingsConfig struct {
	// Provider is "static", "ollama" or "none". "none" runs lexical-only.
	Provider   string `yaml:"provider" json:"provider"`
	Model      string `yaml:"model" json:"model"`
	Dimensions int    `yaml:"dimensions" json:"dimensions"`
	BatchSize  int    `yaml:"batch_size" json:"batch_size"`
	// Concurrency bounds in-flight batches during indexing.
	Concurrency int    `yaml:"concurrency" json:"concurrency"`
	OllamaHost  string `yaml:"ollama_host" json:"ollama_host"`
	// RequestsPerSecond rate-limits calls to a remote embedder. 0 disables.
	RequestsPerSecond float64 `yaml:"requests_per_second" json:"requests_per_second"`
	Timeout           string  `yaml:"timeout" json:"timeout"`
	CacheSize         int     `yaml:"cache_size" json:"cache_size"`
}

// RerankerConfig configures the optional rerank stage.
type RerankerConfig struct {
	// Provider is "none", "term" (local term overlap) or "http".
	Provider string  `yaml:"provider" json:"provider"`
	Endpoint string  `yaml:"endpoint" json:"endpoint"`
	Model    string  `yaml:"model" json:"model"`
	TopN     int     `yaml:"top_n" json:"top_n"`
	Alpha    float64 `yaml:"alpha" json:"alpha"`
	Timeout  string  `yaml:"timeout" json:"timeout"`
}

// FeedbackConfig configures the quality multiplier.
type FeedbackConfig struct {
	MinSamples    int     `yaml:"min_samples" json:"min_samples"`
	MinMultiplier float64 `yaml:"min_multiplier" json:"min_multiplier"`
	MaxMultiplier float64 `yaml:"max_multiplier" json:"max_multiplier"`
	// RecomputeSchedule is a cron spec for the full quality recompute.
	RecomputeSchedule string `yaml:"recompute_schedule" json:"recompute_schedule"`
}

// IndexConfig configures ingestion.
type IndexConfig struct {
	MaxChunkTokens    int `yaml:"max_chunk_tokens" json:"max_chunk_tokens"`
	TargetChunkTokens int `yaml:"target_chunk_tokens" json:"target_chunk_tokens"`
	// LockPolicy decides what a concurrent reindex of the same document does:
	// "wait" serializes, "reject" fails fast with a retryable error.
	LockPolicy    string `yaml:"lock_policy" json:"lock_policy"`
	Workers       int    `yaml:"workers" json:"workers"`
	WatchDebounce string `yaml:"watch_debounce" json:"watch_debounce"`
}

// ServerConfig configures the MCP server.
type ServerConfig struct {
	Transport   string `yaml:"transport" json:"transport"`
	LogLevel    string `yaml:"log_level" json:"log_level"`
	MetricsAddr string `yaml:"metrics_addr" json:"metrics_addr"`
}

// NewConfig returns a configuration with defaults applied.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Paths: PathsConfig{
			DataDir:  defaultDataDir(),
			SpoolDir: "",
		},
		Search: SearchConfig{
			RRFConstant:      60,
			IntentWeights:    DefaultIntentWeights(),
			BoostFactor:      0.5,
			PolicyThreshold:  0.4,
			DedupThreshold:   0.85,
			LexicalBackend:   "sqlite",
			DefaultLimit:     10,
			MaxLimit:         100,
			Overfetch:        3,
			OversampleFactor: 4,
			VectorTimeout:    "2s",
			LexicalTimeout:   "5s",
		},
		Classifier: ClassifierConfig{
			Rules:     DefaultIntentRules(),
			CacheSize: 1000,
		},
		Embeddings: EmbeddingsConfig{
			Provider:          "static",
			Model:             "",
			Dimensions:        0,
			BatchSize:         32,
			Concurrency:       2,
			OllamaHost:        "",
			RequestsPerSecond: 0,
			Timeout:           "30s",
			CacheSize:         1000,
		},
		Reranker: RerankerConfig{
			Provider: "none",
			TopN:     10,
			Alpha:    0.15,
			Timeout:  "3s",
		},
		Feedback: FeedbackConfig{
			MinSamples:        3,
			MinMultiplier:     0.5,
			MaxMultiplier:     1.5,
			RecomputeSchedule: "@every 1h",
		},
		Index: IndexConfig{
			MaxChunkTokens:    500,
			TargetChunkTokens: 350,
			LockPolicy:        "wait",
			Workers:           runtime.NumCPU(),
			WatchDebounce:     "500ms",
		},
		Server: ServerConfig{
			Transport: "stdio",
			LogLevel:  "info",
		},
	}
}

// DefaultIntentWeights returns the fusion weight table. Policy leans slightly
// toward vector, procedure toward lexical, reference most heavily to vector.
func DefaultIntentWeights() map[string]FusionWeights {
	return map[string]FusionWeights{
		IntentUnknown:   {Lexical: 0.50, Vector: 0.50},
		IntentPolicy:    {Lexical: 0.45, Vector: 0.55},
		IntentProcedure: {Lexical: 0.55, Vector: 0.45},
		IntentReference: {Lexical: 0.35, Vector: 0.65},
	}
}

// DefaultIntentRules returns the built-in classifier tables.
func DefaultIntentRules() map[string]IntentRule {
	return map[string]IntentRule{
		IntentPolicy: {
			Keywords: []string{
				"policy", "policies", "allowed", "permitted", "prohibited", "forbidden",
				"banned", "restricted", "approved", "compliance", "rule", "rules", "permission",
			},
			DomainTerms: []string{
				"flash drive", "thumb drive", "usb", "usb storage", "removable media",
				"external drive", "personal device", "byod", "personal email",
				"cloud storage", "password sharing", "admin rights", "remote access",
			},
			QuestionPatterns: []string{
				`^(can|may) (i|we)\b`,
				`\b(am i|are we|is anyone) (allowed|permitted)\b`,
				`\bis it (ok|okay|allowed|permitted|acceptable)\b`,
				`\bam i supposed to\b`,
			},
		},
		IntentProcedure: {
			Keywords: []string{
				"install", "setup", "set up", "configure", "steps", "reset", "enable",
				"connect", "troubleshoot", "fix", "update", "upgrade", "request",
			},
			DomainTerms: []string{
				"printer", "vpn client", "password reset", "wifi", "wi-fi", "outlook",
				"software", "laptop", "mfa", "ticket",
			},
			QuestionPatterns: []string{
				`^how (do|can|should|to)\b`,
				`\bhow to\b`,
				`\bwhat are the steps\b`,
				`\bwalk me through\b`,
			},
		},
		IntentReference: {
			Keywords: []string{
				"definition", "define", "meaning", "overview", "explain", "reference",
				"documentation", "glossary", "contact", "hours",
			},
			DomainTerms: []string{
				"acronym", "api", "faq", "org chart", "service catalog",
			},
			QuestionPatterns: []string{
				`^what (is|are|does)\b`,
				`^(who|where|when)\b`,
			},
		},
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".amankb", "data")
	}
	return filepath.Join(home, ".amankb", "data")
}

// GetUserConfigPath returns $XDG_CONFIG_HOME/amankb/config.yaml, falling back
// to ~/.config/amankb/config.yaml.
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "amankb", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "amankb", "config.yaml")
	}
	return filepath.Join(home, ".config", "amankb", "config.yaml")
}

// Load builds the configuration for dir.
//
// Precedence, lowest to highest: defaults, user config, project config
// (.amankb.yaml in dir), AMANKB_* environment variables.
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if userPath := GetUserConfigPath(); fileExists(userPath) {
		if err := cfg.loadYAML(userPath); err != nil {
			return nil, fmt.Errorf("failed to load user config: %w", err)
		}
	}

	if path := FindProjectConfig(dir); path != "" {
		if err := cfg.loadYAML(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// FindProjectConfig returns the project config path in dir, or "".
func FindProjectConfig(dir string) string {
	for _, name := range ProjectConfigNames {
		if p := filepath.Join(dir, name); fileExists(p) {
			return p
		}
	}
	return ""
}

func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	c.mergeWith(&parsed)
	return nil
}

// mergeWith overlays non-zero values from other. Map tables merge per key so a
// file can override one intent without restating the others.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	setString(&c.Paths.DataDir, other.Paths.DataDir)
	setString(&c.Paths.SpoolDir, other.Paths.SpoolDir)
	if len(other.Paths.Exclude) > 0 {
		c.Paths.Exclude = append(c.Paths.Exclude, other.Paths.Exclude...)
	}

	s, o := &c.Search, other.Search
	setInt(&s.RRFConstant, o.RRFConstant)
	for intent, w := range o.IntentWeights {
		if s.IntentWeights == nil {
			s.IntentWeights = make(map[string]FusionWeights)
		}
		s.IntentWeights[intent] = w
	}
	setFloat(&s.BoostFactor, o.BoostFactor)
	setFloat(&s.PolicyThreshold, o.PolicyThreshold)
	setFloat(&s.DedupThreshold, o.DedupThreshold)
	setString(&s.LexicalBackend, o.LexicalBackend)
	setInt(&s.DefaultLimit, o.DefaultLimit)
	setInt(&s.MaxLimit, o.MaxLimit)
	setInt(&s.Overfetch, o.Overfetch)
	setInt(&s.OversampleFactor, o.OversampleFactor)
	setString(&s.VectorTimeout, o.VectorTimeout)
	setString(&s.LexicalTimeout, o.LexicalTimeout)

	for intent, rule := range other.Classifier.Rules {
		if c.Classifier.Rules == nil {
			c.Classifier.Rules = make(map[string]IntentRule)
		}
		c.Classifier.Rules[intent] = rule
	}
	setInt(&c.Classifier.CacheSize, other.Classifier.CacheSize)

	e, oe := &c.Embeddings, other.Embeddings
	setString(&e.Provider, oe.Provider)
	setString(&e.Model, oe.Model)
	setInt(&e.Dimensions, oe.Dimensions)
	setInt(&e.BatchSize, oe.BatchSize)
	setInt(&e.Concurrency, oe.Concurrency)
	setString(&e.OllamaHost, oe.OllamaHost)
	setFloat(&e.RequestsPerSecond, oe.RequestsPerSecond)
	setString(&e.Timeout, oe.Timeout)
	setInt(&e.CacheSize, oe.CacheSize)

	r, or := &c.Reranker, other.Reranker
	setString(&r.Provider, or.Provider)
	setString(&r.Endpoint, or.Endpoint)
	setString(&r.Model, or.Model)
	setInt(&r.TopN, or.TopN)
	setFloat(&r.Alpha, or.Alpha)
	setString(&r.Timeout, or.Timeout)

	f, of := &c.Feedback, other.Feedback
	setInt(&f.MinSamples, of.MinSamples)
	setFloat(&f.MinMultiplier, of.MinMultiplier)
	setFloat(&f.MaxMultiplier, of.MaxMultiplier)
	setString(&f.RecomputeSchedule, of.RecomputeSchedule)

	ix, oix := &c.Index, other.Index
	setInt(&ix.MaxChunkTokens, oix.MaxChunkTokens)
	setInt(&ix.TargetChunkTokens, oix.TargetChunkTokens)
	setString(&ix.LockPolicy, oix.LockPolicy)
	setInt(&ix.Workers, oix.Workers)
	setString(&ix.WatchDebounce, oix.WatchDebounce)

	setString(&c.Server.Transport, other.Server.Transport)
	setString(&c.Server.LogLevel, other.Server.LogLevel)
	setString(&c.Server.MetricsAddr, other.Server.MetricsAddr)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func setFloat(dst *float64, v float64) {
	if v != 0 {
		*dst = v
	}
}

// applyEnvOverrides applies AMANKB_* variables. Unparseable values are ignored.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("AMANKB_DATA_DIR"); v != "" {
		c.Paths.DataDir = v
	}
	if v := os.Getenv("AMANKB_SPOOL_DIR"); v != "" {
		c.Paths.SpoolDir = v
	}
	if v := os.Getenv("AMANKB_RRF_CONSTANT"); v != "" {
		if k, err := strconv.Atoi(v); err == nil && k > 0 {
			c.Search.RRFConstant = k
		}
	}
	if v := os.Getenv("AMANKB_POLICY_THRESHOLD"); v != "" {
		if t, err := parseFloat64(v); err == nil && t >= 0 && t <= 1 {
			c.Search.PolicyThreshold = t
		}
	}
	if v := os.Getenv("AMANKB_DEDUP_THRESHOLD"); v != "" {
		if t, err := parseFloat64(v); err == nil && t > 0 && t <= 1 {
			c.Search.DedupThreshold = t
		}
	}
	if v := os.Getenv("AMANKB_LEXICAL_BACKEND"); v != "" {
		c.Search.LexicalBackend = v
	}
	if v := os.Getenv("AMANKB_EMBEDDINGS_PROVIDER"); v != "" {
		c.Embeddings.Provider = v
	}
	if v := os.Getenv("AMANKB_EMBEDDINGS_MODEL"); v != "" {
		c.Embeddings.Model = v
	}
	if v := os.Getenv("AMANKB_OLLAMA_HOST"); v != "" {
		c.Embeddings.OllamaHost = v
	}
	if v := os.Getenv("AMANKB_RERANKER"); v != "" {
		c.Reranker.Provider = v
	}
	if v := os.Getenv("AMANKB_LOG_LEVEL"); v != "" {
		c.Server.LogLevel = v
	}
	if v := os.Getenv("AMANKB_METRICS_ADDR"); v != "" {
		c.Server.MetricsAddr = v
	}
}

func parseFloat64(s string) (float64, error) {
	var f float64
	_, err := fmt.Sscanf(strings.TrimSpace(s), "%f", &f)
	return f, err
}

// Validate checks value ranges and enumerations.
func (c *Config) Validate() error {
	s := c.Search
	if s.RRFConstant <= 0 {
		return fmt.Errorf("search.rrf_constant must be positive, got %d", s.RRFConstant)
	}
	for intent, w := range s.IntentWeights {
		if !isIntent(intent) {
			return fmt.Errorf("search.intent_weights: unknown intent %q", intent)
		}
		if w.Lexical < 0 || w.Vector < 0 || w.Lexical > 1 || w.Vector > 1 {
			return fmt.Errorf("search.intent_weights.%s: weights must be between 0 and 1", intent)
		}
		if w.Lexical+w.Vector == 0 {
			return fmt.Errorf("search.intent_weights.%s: weights must not both be zero", intent)
		}
	}
	if _, ok := s.IntentWeights[IntentUnknown]; !ok {
		return fmt.Errorf("search.intent_weights must define %q", IntentUnknown)
	}
	if s.BoostFactor < 0 {
		return fmt.Errorf("search.boost_factor must be non-negative, got %f", s.BoostFactor)
	}
	if s.PolicyThreshold < 0 || s.PolicyThreshold > 1 {
		return fmt.Errorf("search.policy_threshold must be between 0 and 1, got %f", s.PolicyThreshold)
	}
	if s.DedupThreshold <= 0 || s.DedupThreshold > 1 {
		return fmt.Errorf("search.dedup_threshold must be in (0, 1], got %f", s.DedupThreshold)
	}
	switch s.LexicalBackend {
	case "sqlite", "bleve":
	default:
		return fmt.Errorf("search.lexical_backend must be 'sqlite' or 'bleve', got %s", s.LexicalBackend)
	}
	if s.DefaultLimit <= 0 || s.MaxLimit < s.DefaultLimit {
		return fmt.Errorf("search.default_limit must be positive and not exceed max_limit")
	}
	if s.Overfetch < 1 || s.OversampleFactor < 1 {
		return fmt.Errorf("search.overfetch and search.oversample_factor must be at least 1")
	}
	for name, d := range map[string]string{
		"search.vector_timeout":  s.VectorTimeout,
		"search.lexical_timeout": s.LexicalTimeout,
		"embeddings.timeout":     c.Embeddings.Timeout,
		"reranker.timeout":       c.Reranker.Timeout,
		"index.watch_debounce":   c.Index.WatchDebounce,
	} {
		if _, err := time.ParseDuration(d); err != nil {
			return fmt.Errorf("%s: invalid duration %q", name, d)
		}
	}

	for intent, rule := range c.Classifier.Rules {
		if !isIntent(intent) || intent == IntentUnknown {
			return fmt.Errorf("classifier.rules: unknown intent %q", intent)
		}
		for _, p := range rule.QuestionPatterns {
			if _, err := regexp.Compile(p); err != nil {
				return fmt.Errorf("classifier.rules.%s: bad question pattern %q: %w", intent, p, err)
			}
		}
	}

	switch strings.ToLower(c.Embeddings.Provider) {
	case "static", "ollama", "none":
	default:
		return fmt.Errorf("embeddings.provider must be 'static', 'ollama' or 'none', got %s", c.Embeddings.Provider)
	}
	if c.Embeddings.BatchSize <= 0 {
		return fmt.Errorf("embeddings.batch_size must be positive, got %d", c.Embeddings.BatchSize)
	}

	switch c.Reranker.Provider {
	case "none", "term":
	case "http":
		if c.Reranker.Endpoint == "" {
			return fmt.Errorf("reranker.endpoint is required for the http reranker")
		}
	default:
		return fmt.Errorf("reranker.provider must be 'none', 'term' or 'http', got %s", c.Reranker.Provider)
	}
	if c.Reranker.Alpha < 0 || c.Reranker.Alpha > 1 {
		return fmt.Errorf("reranker.alpha must be between 0 and 1, got %f", c.Reranker.Alpha)
	}

	f := c.Feedback
	if f.MinSamples < 1 {
		return fmt.Errorf("feedback.min_samples must be at least 1, got %d", f.MinSamples)
	}
	if f.MinMultiplier <= 0 || f.MinMultiplier > 1 || f.MaxMultiplier < 1 {
		return fmt.Errorf("feedback multipliers must satisfy 0 < min <= 1 <= max")
	}
	if f.RecomputeSchedule != "" {
		if _, err := cron.ParseStandard(f.RecomputeSchedule); err != nil {
			return fmt.Errorf("feedback.recompute_schedule: %w", err)
		}
	}

	if c.Index.MaxChunkTokens <= 0 {
		return fmt.Errorf("index.max_chunk_tokens must be positive, got %d", c.Index.MaxChunkTokens)
	}
	switch c.Index.LockPolicy {
	case "wait", "reject":
	default:
		return fmt.Errorf("index.lock_policy must be 'wait' or 'reject', got %s", c.Index.LockPolicy)
	}

	if strings.ToLower(c.Server.Transport) != "stdio" {
		return fmt.Errorf("server.transport must be 'stdio', got %s", c.Server.Transport)
	}
	switch strings.ToLower(c.Server.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("server.log_level must be 'debug', 'info', 'warn', or 'error', got %s", c.Server.LogLevel)
	}

	return nil
}

func isIntent(s string) bool {
	switch s {
	case IntentPolicy, IntentProcedure, IntentReference, IntentUnknown:
		return true
	}
	return false
}

// Duration parses a validated duration string, returning fallback on error.
func Duration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

// WeightsFor returns the fusion weights for intent, falling back to unknown.
func (s SearchConfig) WeightsFor(intent string) FusionWeights {
	if w, ok := s.IntentWeights[intent]; ok {
		return w
	}
	return s.IntentWeights[IntentUnknown]
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

func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
