package common

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("FISCAL_CONFIG", "")
	t.Setenv("OCR_PROVIDER", "none")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, ProviderNone, cfg.OCR.Provider)
	assert.Equal(t, ProviderNone, cfg.LLM.Provider)
	assert.Equal(t, []string{"es", "en"}, cfg.OCR.LanguageHints)
	assert.Equal(t, 30*time.Second, cfg.OCR.Timeout)
	assert.Equal(t, 4, cfg.Worker.Concurrency)
	assert.Equal(t, ":8080", cfg.Server.GRPCAddr)
	assert.Equal(t, "0.16", cfg.Pipeline.VATRate.String())
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfig_FileAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	credPath := filepath.Join(dir, "sa.json")
	require.NoError(t, os.WriteFile(credPath, []byte(`{"type":"service_account"}`), 0o600))

	cfgPath := filepath.Join(dir, "fiscal.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`
ocr:
  provider: vision
  credentials_file: `+credPath+`
  max_pages: 3
llm:
  provider: openai
  model: gpt-4o-mini
worker:
  concurrency: 2
`), 0o600))

	t.Setenv("FISCAL_CONFIG", cfgPath)
	t.Setenv("LLM_API_KEY", "sk-test")
	t.Setenv("WORKER_CONCURRENCY", "8")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, ProviderVision, cfg.OCR.Provider)
	assert.Equal(t, 3, cfg.OCR.MaxPages)
	assert.JSONEq(t, `{"type":"service_account"}`, string(cfg.OCR.Credentials))
	assert.Equal(t, "sk-test", cfg.LLM.APIKey)
	assert.Equal(t, 8, cfg.Worker.Concurrency)
	assert.NoError(t, cfg.Validate())
}

func TestConfigValidate_MissingCredentials(t *testing.T) {
	cfg := &Config{
		OCR:      OCRConfig{Provider: ProviderVision, Timeout: time.Second, MaxPages: 1},
		LLM:      LLMConfig{Provider: ProviderOpenAI, Model: "m"},
		Pipeline: PipelineConfig{RunTimeout: time.Minute},
		Worker:   WorkerConfig{Concurrency: 1},
	}
	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.Contains(t, err.Error(), "OCR_CREDENTIALS_FILE")
	assert.Contains(t, err.Error(), "LLM_API_KEY")
}

func TestConfigValidate_UnknownProvider(t *testing.T) {
	cfg := &Config{
		OCR:      OCRConfig{Provider: "abbyy", Timeout: time.Second, MaxPages: 1},
		LLM:      LLMConfig{Provider: ProviderNone},
		Pipeline: PipelineConfig{RunTimeout: time.Minute, VATRate: decimal.RequireFromString("0.16")},
		Worker:   WorkerConfig{Concurrency: 1},
	}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OCR_PROVIDER")
	assert.NotContains(t, err.Error(), "PIPELINE_VAT_RATE")

	cfg.OCR.Provider = ProviderTess
	require.NoError(t, cfg.Validate())

	cfg.Pipeline.VATRate = decimal.Zero
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PIPELINE_VAT_RATE")
}
