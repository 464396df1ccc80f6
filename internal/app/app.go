// Package app builds the extraction pipeline and its collaborators from
// configuration. Both entrypoints share it.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/joseph-ayodele/fiscal-extractor/internal/auth"
	"github.com/joseph-ayodele/fiscal-extractor/internal/cache"
	"github.com/joseph-ayodele/fiscal-extractor/internal/common"
	"github.com/joseph-ayodele/fiscal-extractor/internal/core"
	"github.com/joseph-ayodele/fiscal-extractor/internal/llm"
	"github.com/joseph-ayodele/fiscal-extractor/internal/llm/gemini"
	"github.com/joseph-ayodele/fiscal-extractor/internal/llm/openai"
	"github.com/joseph-ayodele/fiscal-extractor/internal/metrics"
	"github.com/joseph-ayodele/fiscal-extractor/internal/normalize"
	"github.com/joseph-ayodele/fiscal-extractor/internal/ocr"
	"github.com/joseph-ayodele/fiscal-extractor/internal/ratelimit"
	"github.com/joseph-ayodele/fiscal-extractor/internal/repository"
	"github.com/joseph-ayodele/fiscal-extractor/internal/retry"
)

// memoryCacheEntries caps the in-process text cache used without Redis.
const memoryCacheEntries = 512

// App holds the long-lived pieces. Close releases them in reverse order.
type App struct {
	Pipeline *core.Pipeline
	Metrics  *metrics.Pipeline
	Records  repository.RecordRepository

	closers []func() error
	logger  *slog.Logger
}

// Close releases every client the App opened.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// Options select the optional pieces a given entrypoint needs.
type Options struct {
	// Registerer receives the pipeline metrics. Nil disables them.
	Registerer prometheus.Registerer
	// WithStore opens the record repository configured in cfg.Database.
	WithStore bool
	// SQLitePath overrides cfg.Database and forces the embedded store.
	SQLitePath string
}

// Build wires the pipeline from cfg. Provider credentials are read here and
// nowhere else.
func Build(ctx context.Context, cfg *common.Config, logger *slog.Logger, opts Options) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{logger: logger}
	if opts.Registerer != nil {
		a.Metrics = metrics.New(opts.Registerer)
	}

	acquirer, err := a.buildAcquirer(ctx, cfg)
	if err != nil {
		return nil, errors.Join(err, a.Close())
	}

	pipeOpts := []core.Option{
		core.WithMetrics(a.Metrics),
		core.WithRunTimeout(cfg.Pipeline.RunTimeout),
	}
	if cfg.Pipeline.VATRate.IsPositive() {
		pipeOpts = append(pipeOpts, core.WithNormalizer(normalize.New(logger, normalize.WithVATRate(cfg.Pipeline.VATRate))))
	}

	mapper, err := a.buildMapper(ctx, cfg)
	if err != nil {
		return nil, errors.Join(err, a.Close())
	}
	if mapper != nil {
		pipeOpts = append(pipeOpts, core.WithMapper(mapper))
	}

	textCache, err := a.buildCache(ctx, cfg.Cache)
	if err != nil {
		return nil, errors.Join(err, a.Close())
	}
	pipeOpts = append(pipeOpts, core.WithCache(textCache))

	if opts.WithStore || opts.SQLitePath != "" {
		if err := a.openStore(ctx, cfg.Database, opts.SQLitePath); err != nil {
			return nil, errors.Join(err, a.Close())
		}
	}

	a.Pipeline = core.New(acquirer, logger, pipeOpts...)
	logger.Info("app.ready",
		"ocr_provider", cfg.OCR.Provider,
		"llm_provider", cfg.LLM.Provider,
		"store", a.Records != nil,
	)
	return a, nil
}

func (a *App) policy(cfg *common.Config, retries int, attempt time.Duration, provider string) retry.Policy {
	return retry.Policy{
		MaxRetries:     retries,
		BaseDelay:      cfg.Pipeline.RetryBaseDelay,
		MaxDelay:       cfg.Pipeline.RetryMaxDelay,
		AttemptTimeout: attempt,
		OnRetry: func(n int, err error, delay time.Duration) {
			a.logger.Warn("app.provider.retry", "provider", provider, "attempt", n, "delay_ms", delay.Milliseconds(), "error", err)
		},
	}
}

func (a *App) buildAcquirer(ctx context.Context, cfg *common.Config) (*ocr.Acquirer, error) {
	var engine ocr.Engine
	switch cfg.OCR.Provider {
	case common.ProviderVision:
		var tokens auth.TokenProvider
		if cfg.OCR.APIKey == "" && len(cfg.OCR.Credentials) > 0 {
			sa, err := auth.NewServiceAccountProvider(cfg.OCR.Credentials, auth.ScopeCloudVision)
			if err != nil {
				return nil, fmt.Errorf("ocr credentials: %w", err)
			}
			a.logger.Info("app.ocr.service_account", "email", sa.Email())
			tokens = sa
		}
		v, err := ocr.NewVisionEngine(ctx, ocr.VisionConfig{APIKey: cfg.OCR.APIKey, Endpoint: cfg.OCR.Endpoint}, tokens, a.logger)
		if err != nil {
			return nil, fmt.Errorf("vision engine: %w", err)
		}
		engine = v
	case common.ProviderTess:
		engine = ocr.NewTesseractEngine(ocr.TesseractConfig{Lang: cfg.OCR.TesseractLang}, nil, a.logger)
	case common.ProviderNone, "":
		a.logger.Warn("app.ocr.disabled", "reason", "only PDF text layers and XML can be read")
	default:
		return nil, fmt.Errorf("unknown OCR provider %q", cfg.OCR.Provider)
	}

	var raster ocr.Rasterizer
	if cfg.OCR.Rasterizer == "pdftoppm" {
		raster = ocr.PdftoppmRasterizer{DPI: cfg.OCR.DPI, Logger: a.logger}
	} else {
		raster = ocr.PDFCPURasterizer{}
	}

	return ocr.NewAcquirer(ocr.Config{
		Languages:          cfg.OCR.LanguageHints,
		MinTextLayerLength: cfg.Pipeline.MinTextLayerLength,
		MaxPages:           cfg.OCR.MaxPages,
		HeicConverter:      cfg.OCR.HeicConverter,
	}, engine, raster, a.logger,
		ocr.WithLimiter(ratelimit.New(ratelimit.Config{RequestsPerSecond: cfg.OCR.RequestsPerSecond, Burst: cfg.OCR.Burst})),
		ocr.WithRetryPolicy(a.policy(cfg, cfg.OCR.MaxRetries, cfg.OCR.Timeout, "ocr")),
		ocr.WithMetrics(a.Metrics),
	), nil
}

// buildMapper returns nil when the AI step is disabled.
func (a *App) buildMapper(ctx context.Context, cfg *common.Config) (*llm.Mapper, error) {
	var model llm.Model
	switch cfg.LLM.Provider {
	case common.ProviderGemini:
		var tokens auth.TokenProvider
		if len(cfg.LLM.Credentials) > 0 {
			sa, err := auth.NewServiceAccountProvider(cfg.LLM.Credentials, auth.ScopeCloudPlatform)
			if err != nil {
				return nil, fmt.Errorf("llm credentials: %w", err)
			}
			tokens = sa
		}
		c, err := gemini.NewClient(ctx, gemini.Config{
			ProjectID:   cfg.LLM.ProjectID,
			Location:    cfg.LLM.Location,
			Model:       cfg.LLM.Model,
			Temperature: cfg.LLM.Temperature,
		}, tokens, a.logger)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, c.Close)
		model = c
	case common.ProviderOpenAI:
		model = openai.NewClient(openai.Config{
			BaseURL:     cfg.LLM.BaseURL,
			Model:       cfg.LLM.Model,
			Temperature: cfg.LLM.Temperature,
			Timeout:     cfg.LLM.Timeout,
		}, auth.StaticKey(cfg.LLM.APIKey), a.logger)
	case common.ProviderNone, "":
		a.logger.Info("app.llm.disabled")
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", cfg.LLM.Provider)
	}

	return llm.NewMapper(model, a.logger,
		llm.WithLimiter(ratelimit.New(ratelimit.Config{RequestsPerSecond: cfg.LLM.RequestsPerSecond, Burst: cfg.LLM.Burst})),
		llm.WithRetryPolicy(a.policy(cfg, cfg.LLM.MaxRetries, cfg.LLM.Timeout, "llm")),
		llm.WithMaxPromptChars(cfg.LLM.MaxPromptChars),
		llm.WithMetrics(a.Metrics),
	), nil
}

func (a *App) buildCache(ctx context.Context, cfg common.CacheConfig) (core.TextCache, error) {
	client, err := cache.NewRedisClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if client == nil {
		return cache.NewMemoryTextCache(cfg.TTL, memoryCacheEntries), nil
	}
	a.closers = append(a.closers, client.Close)
	a.logger.Info("app.cache.redis", "addr", cfg.RedisAddr)
	return cache.NewRedisTextCache(redis.Cmdable(client), cfg.TTL), nil
}

func (a *App) openStore(ctx context.Context, cfg common.DatabaseConfig, sqlitePath string) error {
	if sqlitePath == "" && cfg.DSN != "" {
		pg, err := repository.OpenPostgres(ctx, repository.Config{
			DSN:             cfg.DSN,
			MaxConns:        cfg.MaxConns,
			MinConns:        cfg.MinConns,
			MaxConnLifetime: cfg.MaxConnLifetime,
			MaxConnIdleTime: cfg.MaxConnIdleTime,
			DialTimeout:     5 * time.Second,
		}, a.logger)
		if err != nil {
			return fmt.Errorf("open postgres: %w", err)
		}
		if err := pg.HealthCheck(ctx, 3*time.Second); err != nil {
			_ = pg.Close()
			return fmt.Errorf("postgres health: %w", err)
		}
		a.Records = pg
		a.closers = append(a.closers, pg.Close)
		return nil
	}

	path := sqlitePath
	if path == "" {
		path = cfg.SQLitePath
	}
	if path == "" {
		return errors.New("no record store configured: set DB_URL or DB_SQLITE_PATH")
	}
	st, err := repository.OpenSQLite(ctx, path, a.logger)
	if err != nil {
		return fmt.Errorf("open sqlite: %w", err)
	}
	a.Records = st
	a.closers = append(a.closers, st.Close)
	return nil
}
