package common

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	OCR      OCRConfig
	LLM      LLMConfig
	Pipeline PipelineConfig
	Worker   WorkerConfig
	Cache    CacheConfig
	Database DatabaseConfig
	Server   ServerConfig
	Log      LogConfig
}

// OCRConfig holds text acquisition configuration
type OCRConfig struct {
	Provider          string // vision | tesseract | none
	APIKey            string
	Credentials       []byte // service-account JSON, read once at load
	Endpoint          string
	LanguageHints     []string
	Timeout           time.Duration
	MaxRetries        int
	RequestsPerSecond float64
	Burst             int
	Rasterizer        string
	DPI               int
	MaxPages          int
	HeicConverter     string
	TesseractLang     string
}

// LLMConfig holds AI mapper configuration
type LLMConfig struct {
	Provider          string // gemini | openai | none
	Model             string
	APIKey            string
	BaseURL           string
	ProjectID         string
	Location          string
	Credentials       []byte
	Temperature       float32
	Timeout           time.Duration
	MaxRetries        int
	RequestsPerSecond float64
	Burst             int
	MaxPromptChars    int
}

// PipelineConfig holds per-run knobs
type PipelineConfig struct {
	RunTimeout         time.Duration
	MinTextLayerLength int
	RetryBaseDelay     time.Duration
	RetryMaxDelay      time.Duration
	// VATRate back-computes subtotal and iva from total; 0.08 in the
	// northern border region.
	VATRate decimal.Decimal
}

// WorkerConfig holds batch worker pool configuration
type WorkerConfig struct {
	Concurrency int
	QueueSize   int
	JobTimeout  time.Duration
}

// CacheConfig holds acquired text cache configuration
type CacheConfig struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	TTL           time.Duration
}

// DatabaseConfig holds record store configuration
type DatabaseConfig struct {
	DSN             string
	SQLitePath      string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	GRPCAddr       string
	HTTPAddr       string
	MaxUploadBytes int64
}

// LogConfig holds logger configuration
type LogConfig struct {
	Level  string
	Format string
}

// Provider names accepted in configuration.
const (
	ProviderNone   = "none"
	ProviderVision = "vision"
	ProviderTess   = "tesseract"
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("ocr.provider", ProviderVision)
	v.SetDefault("ocr.language_hints", "es,en")
	v.SetDefault("ocr.timeout", 30*time.Second)
	v.SetDefault("ocr.max_retries", 2)
	v.SetDefault("ocr.requests_per_second", 5.0)
	v.SetDefault("ocr.burst", 5)
	v.SetDefault("ocr.rasterizer", "pdftoppm")
	v.SetDefault("ocr.dpi", 300)
	v.SetDefault("ocr.max_pages", 5)
	v.SetDefault("ocr.heic_converter", "magick")
	v.SetDefault("ocr.tesseract_lang", "spa+eng")

	v.SetDefault("llm.provider", ProviderNone)
	v.SetDefault("llm.model", "gemini-1.5-flash")
	v.SetDefault("llm.location", "us-central1")
	v.SetDefault("llm.base_url", "https://api.openai.com/v1")
	v.SetDefault("llm.temperature", 0.0)
	v.SetDefault("llm.timeout", 45*time.Second)
	v.SetDefault("llm.max_retries", 2)
	v.SetDefault("llm.requests_per_second", 1.0)
	v.SetDefault("llm.burst", 2)
	v.SetDefault("llm.max_prompt_chars", 12000)

	v.SetDefault("pipeline.run_timeout", 2*time.Minute)
	v.SetDefault("pipeline.min_text_layer_length", 40)
	v.SetDefault("pipeline.retry_base_delay", 500*time.Millisecond)
	v.SetDefault("pipeline.retry_max_delay", 8*time.Second)
	v.SetDefault("pipeline.vat_rate", "0.16")

	v.SetDefault("worker.concurrency", 4)
	v.SetDefault("worker.queue_size", 64)
	v.SetDefault("worker.job_timeout", 3*time.Minute)

	v.SetDefault("cache.ttl", 24*time.Hour)

	v.SetDefault("db.max_conns", 20)
	v.SetDefault("db.min_conns", 2)
	v.SetDefault("db.max_conn_lifetime", 30*time.Minute)
	v.SetDefault("db.max_conn_idle_time", 5*time.Minute)

	v.SetDefault("grpc.addr", ":8080")
	v.SetDefault("http.addr", ":8081")
	v.SetDefault("http.max_upload_bytes", 20<<20)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// LoadConfig loads configuration from an optional file named by FISCAL_CONFIG
// and from environment variables (OCR_PROVIDER, LLM_API_KEY, DB_URL, ...).
// Environment variables win over the file.
func LoadConfig() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path := os.Getenv("FISCAL_CONFIG"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		OCR: OCRConfig{
			Provider:          strings.ToLower(v.GetString("ocr.provider")),
			APIKey:            v.GetString("ocr.api_key"),
			Endpoint:          v.GetString("ocr.endpoint"),
			LanguageHints:     splitList(v.GetString("ocr.language_hints")),
			Timeout:           v.GetDuration("ocr.timeout"),
			MaxRetries:        v.GetInt("ocr.max_retries"),
			RequestsPerSecond: v.GetFloat64("ocr.requests_per_second"),
			Burst:             v.GetInt("ocr.burst"),
			Rasterizer:        v.GetString("ocr.rasterizer"),
			DPI:               v.GetInt("ocr.dpi"),
			MaxPages:          v.GetInt("ocr.max_pages"),
			HeicConverter:     v.GetString("ocr.heic_converter"),
			TesseractLang:     v.GetString("ocr.tesseract_lang"),
		},
		LLM: LLMConfig{
			Provider:          strings.ToLower(v.GetString("llm.provider")),
			Model:             v.GetString("llm.model"),
			APIKey:            v.GetString("llm.api_key"),
			BaseURL:           v.GetString("llm.base_url"),
			ProjectID:         v.GetString("llm.project_id"),
			Location:          v.GetString("llm.location"),
			Temperature:       float32(v.GetFloat64("llm.temperature")),
			Timeout:           v.GetDuration("llm.timeout"),
			MaxRetries:        v.GetInt("llm.max_retries"),
			RequestsPerSecond: v.GetFloat64("llm.requests_per_second"),
			Burst:             v.GetInt("llm.burst"),
			MaxPromptChars:    v.GetInt("llm.max_prompt_chars"),
		},
		Pipeline: PipelineConfig{
			RunTimeout:         v.GetDuration("pipeline.run_timeout"),
			MinTextLayerLength: v.GetInt("pipeline.min_text_layer_length"),
			RetryBaseDelay:     v.GetDuration("pipeline.retry_base_delay"),
			RetryMaxDelay:      v.GetDuration("pipeline.retry_max_delay"),
		},
		Worker: WorkerConfig{
			Concurrency: v.GetInt("worker.concurrency"),
			QueueSize:   v.GetInt("worker.queue_size"),
			JobTimeout:  v.GetDuration("worker.job_timeout"),
		},
		Cache: CacheConfig{
			RedisAddr:     v.GetString("redis.addr"),
			RedisPassword: v.GetString("redis.password"),
			RedisDB:       v.GetInt("redis.db"),
			TTL:           v.GetDuration("cache.ttl"),
		},
		Database: DatabaseConfig{
			DSN:             v.GetString("db.url"),
			SQLitePath:      v.GetString("db.sqlite_path"),
			MaxConns:        v.GetInt32("db.max_conns"),
			MinConns:        v.GetInt32("db.min_conns"),
			MaxConnLifetime: v.GetDuration("db.max_conn_lifetime"),
			MaxConnIdleTime: v.GetDuration("db.max_conn_idle_time"),
		},
		Server: ServerConfig{
			GRPCAddr:       v.GetString("grpc.addr"),
			HTTPAddr:       v.GetString("http.addr"),
			MaxUploadBytes: v.GetInt64("http.max_upload_bytes"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
	}

	var err error
	if cfg.Pipeline.VATRate, err = decimal.NewFromString(v.GetString("pipeline.vat_rate")); err != nil {
		return nil, fmt.Errorf("PIPELINE_VAT_RATE: %w", err)
	}
	if cfg.OCR.Credentials, err = readCredentials(v.GetString("ocr.credentials_file")); err != nil {
		return nil, err
	}
	if cfg.LLM.Credentials, err = readCredentials(v.GetString("llm.credentials_file")); err != nil {
		return nil, err
	}
	return cfg, nil
}

func readCredentials(path string) ([]byte, error) {
	if path == "" {
		return nil, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read credentials %s: %w", path, err)
	}
	return b, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks that enabled providers carry the credentials they need.
func (c *Config) Validate() error {
	v := NewValidator()
	v.Field("OCR_PROVIDER", c.OCR.Provider, OneOf(ProviderVision, ProviderTess, ProviderNone))
	v.Field("LLM_PROVIDER", c.LLM.Provider, OneOf(ProviderGemini, ProviderOpenAI, ProviderNone))
	v.Field("OCR_TIMEOUT", c.OCR.Timeout, Positive)
	v.Field("OCR_MAX_RETRIES", c.OCR.MaxRetries, NonNegative)
	v.Field("OCR_MAX_PAGES", c.OCR.MaxPages, Positive)
	v.Field("LLM_MAX_RETRIES", c.LLM.MaxRetries, NonNegative)
	v.Field("PIPELINE_RUN_TIMEOUT", c.Pipeline.RunTimeout, Positive)
	v.Field("WORKER_CONCURRENCY", c.Worker.Concurrency, Positive)
	v.Field("PIPELINE_VAT_RATE", c.Pipeline.VATRate.InexactFloat64(), Positive)

	if c.OCR.Provider == ProviderVision && c.OCR.APIKey == "" && len(c.OCR.Credentials) == 0 {
		v.Field("OCR_CREDENTIALS_FILE", "", Required)
	}
	switch c.LLM.Provider {
	case ProviderGemini:
		v.Field("LLM_PROJECT_ID", c.LLM.ProjectID, Required)
		v.Field("LLM_MODEL", c.LLM.Model, Required)
	case ProviderOpenAI:
		v.Field("LLM_API_KEY", c.LLM.APIKey, Required)
		v.Field("LLM_MODEL", c.LLM.Model, Required)
	}

	if err := v.Error(); err != nil {
		return errors.Join(ErrInvalidConfig, err)
	}
	return nil
}

// ErrInvalidConfig is returned by Config.Validate.
var ErrInvalidConfig = errors.New("invalid configuration")
