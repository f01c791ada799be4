package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ligustah/milvue/internal/params"
)

func TestDefaultConfig(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 3*time.Second, cfg.Poll.Interval)
	assert.Zero(t, cfg.Poll.MaxAttempts, "poll attempts are unlimited by default")
	assert.Equal(t, 1024, cfg.EventBuffer)
	assert.Equal(t, params.English, cfg.Params.Language)
	assert.Equal(t, params.StructuredNone, cfg.Params.StructuredReportFormat)
	assert.Equal(t, ".", cfg.OutputDir)
	assert.False(t, cfg.UploadBarrier)
	assert.False(t, cfg.FailOnStudyError)
}

func TestLoadFromYAML(t *testing.T) {
	yamlContent := `
api_key: from-file
environment: staging
output_dir: /data/out
recursive: true
inference: [smartxpert, SmartUrgences]
params:
  language: de
  signed_url: false
  static_report_format: pdf
poll:
  interval: 5s
  max_attempts: 40
study_timeout: 30m
concurrency:
  studies: 2
upload_barrier: true
progress: false
log:
  level: debug
  timestamps: true
`
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(yamlContent), 0644))

	cfg, err := LoadFromFile(configPath)
	require.NoError(t, err)

	assert.Equal(t, "from-file", cfg.APIKey)
	assert.Equal(t, EnvStaging, cfg.Environment)
	assert.Equal(t, "/data/out", cfg.OutputDir)
	assert.True(t, cfg.Recursive)
	assert.Equal(t, []params.InferenceCommand{params.SmartXpert, params.SmartUrgences}, cfg.Inference)
	assert.Equal(t, params.German, cfg.Params.Language)
	require.NotNil(t, cfg.Params.SignedURL)
	assert.False(t, *cfg.Params.SignedURL)
	assert.Equal(t, params.StaticPDF, cfg.Params.StaticReportFormat)
	// Untouched params keep their defaults.
	assert.Equal(t, params.Overlay, cfg.Params.OutputFormat)
	assert.Equal(t, PollConfig{Interval: 5 * time.Second, MaxAttempts: 40}, cfg.Poll)
	assert.Equal(t, 30*time.Minute, cfg.StudyTimeout)
	assert.Equal(t, 2, cfg.Concurrency.Studies)
	assert.Equal(t, 4, cfg.Concurrency.Uploads)
	assert.True(t, cfg.UploadBarrier)
	assert.False(t, cfg.Progress, "progress disabled by file")
	assert.Equal(t, LogConfig{Level: "debug", Format: "console", Timestamps: true}, cfg.Log)
}

func TestLoadFromYAMLInvalidDuration(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("poll:\n  interval: soon\n"), 0644))

	_, err := LoadFromFile(configPath)
	assert.Error(t, err)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("MILVUE_API_KEY", "env-key")
	t.Setenv("MILVUE_API_URL", "https://default.example.com")
	t.Setenv("MILVUE_API_URL_PROD", "https://prod.example.com")
	t.Setenv("MILVUE_INFERENCE", "smarturgences,smartxpert")
	t.Setenv("MILVUE_LANGUAGE", "it")
	t.Setenv("MILVUE_SIGNED_URL", "true")
	t.Setenv("MILVUE_POLL_INTERVAL", "250ms")
	t.Setenv("MILVUE_MAX_STUDIES", "3")
	t.Setenv("MILVUE_FAIL_ON_STUDY_ERROR", "true")

	cfg := Default()
	require.NoError(t, cfg.LoadFromEnv())

	assert.Equal(t, "env-key", cfg.APIKey)
	assert.Equal(t, "https://default.example.com", cfg.URL())
	cfg.Environment = EnvProd
	assert.Equal(t, "https://prod.example.com", cfg.URL())
	assert.Len(t, cfg.Inference, 2)
	assert.Equal(t, params.Italian, cfg.Params.Language)
	require.NotNil(t, cfg.Params.SignedURL)
	assert.True(t, *cfg.Params.SignedURL)
	assert.Equal(t, 250*time.Millisecond, cfg.Poll.Interval)
	assert.Equal(t, 3, cfg.Concurrency.Studies)
	assert.True(t, cfg.FailOnStudyError)
}

func TestLoadFromEnvInvalid(t *testing.T) {
	t.Setenv("MILVUE_ENV", "qa")
	cfg := Default()
	assert.Error(t, cfg.LoadFromEnv())
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("MILVUE_TEST_DOTENV=loaded\n"), 0644))
	t.Cleanup(func() { os.Unsetenv("MILVUE_TEST_DOTENV") })

	require.NoError(t, LoadDotEnv(path))
	assert.Equal(t, "loaded", os.Getenv("MILVUE_TEST_DOTENV"))

	assert.NoError(t, LoadDotEnv(filepath.Join(dir, "missing.env")), "a missing .env is ignored")
}

func validConfig() Config {
	cfg := Default()
	cfg.APIKey = "key"
	cfg.BaseURL = "https://api.example.com"
	cfg.Inference = []params.InferenceCommand{params.SmartUrgences}
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
		is      error
	}{
		{name: "valid", modify: func(c *Config) {}},
		{name: "missing key", modify: func(c *Config) { c.APIKey = "" }, wantErr: true, is: ErrMissingAPIKey},
		{name: "missing url", modify: func(c *Config) { c.BaseURL = "" }, wantErr: true, is: ErrMissingURL},
		{name: "no inference", modify: func(c *Config) { c.Inference = nil }, wantErr: true, is: ErrNoInferenceCommand},
		{name: "bad language", modify: func(c *Config) { c.Params.Language = "xx" }, wantErr: true},
		{name: "zero interval", modify: func(c *Config) { c.Poll.Interval = 0 }, wantErr: true},
		{name: "zero studies", modify: func(c *Config) { c.Concurrency.Studies = 0 }, wantErr: true},
		{name: "negative study timeout", modify: func(c *Config) { c.StudyTimeout = -time.Second }, wantErr: true},
		{name: "env url", modify: func(c *Config) {
			c.BaseURL = ""
			c.Environment = EnvDev
			c.EnvURLs = map[Environment]string{EnvDev: "https://dev.example.com"}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.modify(&cfg)
			err := cfg.Validate()
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			if tt.is != nil {
				assert.ErrorIs(t, err, tt.is)
			}
		})
	}
}

func TestValidateConnection(t *testing.T) {
	cfg := validConfig()
	cfg.Inference = nil
	cfg.Concurrency.Studies = 0
	assert.NoError(t, cfg.ValidateConnection(), "run settings are not part of the connection")
	assert.ErrorIs(t, cfg.Validate(), ErrNoInferenceCommand)

	cfg = validConfig()
	cfg.APIKey = ""
	assert.ErrorIs(t, cfg.ValidateConnection(), ErrMissingAPIKey)

	cfg = validConfig()
	cfg.BaseURL = ""
	cfg.Environment = EnvStaging
	err := cfg.ValidateConnection()
	assert.ErrorIs(t, err, ErrMissingURL)
	assert.Contains(t, err.Error(), "MILVUE_API_URL_STAGING")

	cfg = validConfig()
	cfg.RequestTimeout = -time.Second
	assert.Error(t, cfg.ValidateConnection())
}

func TestMerge(t *testing.T) {
	signed := true
	base := Default()
	base.APIKey = "base"
	base.EnvURLs = map[Environment]string{EnvDev: "https://dev"}

	merged := base.Merge(Config{
		APIKey:    "override",
		EnvURLs:   map[Environment]string{EnvProd: "https://prod"},
		Inference: []params.InferenceCommand{params.SmartXpert},
		Params:    params.Set{RecapTheme: params.ThemeLight, SignedURL: &signed},
		Poll:      PollConfig{MaxAttempts: 10},
	})

	assert.Equal(t, "override", merged.APIKey)
	assert.Equal(t, map[Environment]string{EnvDev: "https://dev", EnvProd: "https://prod"}, merged.EnvURLs)
	assert.Len(t, base.EnvURLs, 1, "Merge must not modify the receiver's map")
	assert.Equal(t, params.ThemeLight, merged.Params.RecapTheme)
	assert.Equal(t, params.English, merged.Params.Language)
	assert.Equal(t, PollConfig{Interval: 3 * time.Second, MaxAttempts: 10}, merged.Poll)
	assert.Equal(t, base.Concurrency, merged.Concurrency, "zero override keeps concurrency")
}

func TestParameterSets(t *testing.T) {
	cfg := Default()
	cfg.Inference = []params.InferenceCommand{params.SmartUrgences, params.SmartXpert}

	sets, err := cfg.ParameterSets()
	require.NoError(t, err)
	require.Len(t, sets, 2)

	q := sets[1].Query()
	assert.Equal(t, "smartxpert", q.Get("inference_command"))
	assert.Equal(t, "none", q.Get("structured_report_format"))
}

func TestParseEnvironment(t *testing.T) {
	for in, want := range map[string]Environment{
		"":        EnvDefault,
		"default": EnvDefault,
		"DEV":     EnvDev,
		"staging": EnvStaging,
		"prod":    EnvProd,
	} {
		got, err := ParseEnvironment(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseEnvironment("qa")
	assert.Error(t, err)
	assert.Equal(t, "MILVUE_API_URL_STAGING", EnvStaging.URLVariable())
}
