package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate keeps the developer's own user config out of Load.
func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
}

func TestNewConfig_ReturnsDefaults(t *testing.T) {
	cfg := NewConfig()

	assert.Equal(t, 60, cfg.Search.RRFConstant)
	assert.Equal(t, 0.4, cfg.Search.PolicyThreshold)
	assert.Equal(t, 0.85, cfg.Search.DedupThreshold)
	assert.Equal(t, "sqlite", cfg.Search.LexicalBackend)
	assert.Equal(t, FusionWeights{Lexical: 0.45, Vector: 0.55}, cfg.Search.IntentWeights[IntentPolicy])
	assert.Equal(t, FusionWeights{Lexical: 0.35, Vector: 0.65}, cfg.Search.IntentWeights[IntentReference])
	assert.Equal(t, 10, cfg.Reranker.TopN)
	assert.Equal(t, 0.15, cfg.Reranker.Alpha)
	assert.Equal(t, 3, cfg.Feedback.MinSamples)
	assert.Equal(t, 500, cfg.Index.MaxChunkTokens)
	assert.Contains(t, cfg.Classifier.Rules[IntentPolicy].DomainTerms, "flash drive")
	require.NoError(t, cfg.Validate())
}

func TestLoad_ProjectConfigOverridesDefaults(t *testing.T) {
	// Given: a project config overriding one intent's weights and the backend
	isolate(t)
	dir := t.TempDir()
	yaml := `
search:
  lexical_backend: bleve
  intent_weights:
    policy:
      lexical: 0.35
      vector: 0.55
embeddings:
  provider: none
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".amankb.yaml"), []byte(yaml), 0o644))

	// When: loading
	cfg, err := Load(dir)

	// Then: the overridden values win and other intents keep defaults
	require.NoError(t, err)
	assert.Equal(t, "bleve", cfg.Search.LexicalBackend)
	assert.Equal(t, FusionWeights{Lexical: 0.35, Vector: 0.55}, cfg.Search.IntentWeights[IntentPolicy])
	assert.Equal(t, FusionWeights{Lexical: 0.55, Vector: 0.45}, cfg.Search.IntentWeights[IntentProcedure])
	assert.Equal(t, "none", cfg.Embeddings.Provider)
}

func TestLoad_UserConfigBelowProjectConfig(t *testing.T) {
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)
	require.NoError(t, os.MkdirAll(filepath.Join(xdg, "amankb"), 0o755))
	require.NoError(t, os.WriteFile(GetUserConfigPath(), []byte("search:\n  dedup_threshold: 0.7\n  rrf_constant: 30\n"), 0o644))

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".amankb.yml"), []byte("search:\n  rrf_constant: 80\n"), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 0.7, cfg.Search.DedupThreshold)
	assert.Equal(t, 80, cfg.Search.RRFConstant)
}

func TestLoad_EnvOverridesWin(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	t.Setenv("AMANKB_POLICY_THRESHOLD", "0.6")
	t.Setenv("AMANKB_DATA_DIR", "/tmp/kbdata")
	t.Setenv("AMANKB_RRF_CONSTANT", "not-a-number")

	cfg, err := Load(dir)

	require.NoError(t, err)
	assert.Equal(t, 0.6, cfg.Search.PolicyThreshold)
	assert.Equal(t, "/tmp/kbdata", cfg.Paths.DataDir)
	assert.Equal(t, 60, cfg.Search.RRFConstant)
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"negative weight", func(c *Config) { c.Search.IntentWeights[IntentPolicy] = FusionWeights{Lexical: -0.1, Vector: 0.5} }},
		{"zero weights", func(c *Config) { c.Search.IntentWeights[IntentPolicy] = FusionWeights{} }},
		{"unknown intent", func(c *Config) { c.Search.IntentWeights["sales"] = FusionWeights{Lexical: 1} }},
		{"missing unknown weights", func(c *Config) { delete(c.Search.IntentWeights, IntentUnknown) }},
		{"threshold above one", func(c *Config) { c.Search.PolicyThreshold = 1.5 }},
		{"dedup zero", func(c *Config) { c.Search.DedupThreshold = 0 }},
		{"bad backend", func(c *Config) { c.Search.LexicalBackend = "lucene" }},
		{"bad duration", func(c *Config) { c.Search.VectorTimeout = "soon" }},
		{"bad pattern", func(c *Config) {
			c.Classifier.Rules[IntentPolicy] = IntentRule{QuestionPatterns: []string{"("}}
		}},
		{"bad provider", func(c *Config) { c.Embeddings.Provider = "openai" }},
		{"http reranker without endpoint", func(c *Config) { c.Reranker.Provider = "http" }},
		{"bad multipliers", func(c *Config) { c.Feedback.MaxMultiplier = 0.9 }},
		{"bad cron", func(c *Config) { c.Feedback.RecomputeSchedule = "every tuesday" }},
		{"bad lock policy", func(c *Config) { c.Index.LockPolicy = "spin" }},
		{"bad transport", func(c *Config) { c.Server.Transport = "sse" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestWeightsFor_FallsBackToUnknown(t *testing.T) {
	cfg := NewConfig()
	delete(cfg.Search.IntentWeights, IntentReference)

	assert.Equal(t, cfg.Search.IntentWeights[IntentUnknown], cfg.Search.WeightsFor(IntentReference))
}

func TestDuration(t *testing.T) {
	assert.Equal(t, 2*time.Second, Duration("2s", time.Minute))
	assert.Equal(t, time.Minute, Duration("", time.Minute))
}

func TestWriteYAML_RoundTripsThroughLoad(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	cfg := NewConfig()
	cfg.Search.BoostFactor = 0.8

	require.NoError(t, cfg.WriteYAML(filepath.Join(dir, ".amankb.yaml")))

	loaded, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 0.8, loaded.Search.BoostFactor)
}

func TestBackupFile_KeepsNewest(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".amankb.yaml")

	got, err := BackupFile(path)
	require.NoError(t, err)
	assert.Empty(t, got, "no file, no backup")

	require.NoError(t, os.WriteFile(path, []byte("version: 1\n"), 0o644))
	for i := 0; i < MaxBackups+2; i++ {
		_, err := BackupFile(path)
		require.NoError(t, err)
		time.Sleep(2 * time.Millisecond)
	}

	backups, err := ListBackups(path)
	require.NoError(t, err)
	assert.Len(t, backups, MaxBackups)
}
