package openai

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/joseph-ayodele/fiscal-extractor/internal/auth"
)

// Config for the OpenAI client.
type Config struct {
	BaseURL     string        // default https://api.openai.com/v1
	Model       string        // e.g., "gpt-4o-mini"
	Temperature float32       // 0..2
	Timeout     time.Duration // http client timeout
}

type Client struct {
	cfg    Config
	tokens auth.TokenProvider
	http   *http.Client
	log    *slog.Logger
}

// NewClient builds a chat/completions client. tokens supplies the bearer
// token, usually an auth.StaticKey holding the API key.
func NewClient(cfg Config, tokens auth.TokenProvider, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 45 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:    cfg,
		tokens: tokens,
		http:   &http.Client{Timeout: cfg.Timeout},
		log:    logger,
	}
}
