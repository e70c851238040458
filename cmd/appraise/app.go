package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"

	"appraisekit/analytics"
	"appraisekit/api/httpapi"
	"appraisekit/appraise"
	"appraisekit/config"
	"appraisekit/core"
	"appraisekit/engine"
	"appraisekit/host"
	"appraisekit/integrations/webhook"
	"appraisekit/realtime"
)

// App aggregates the assembled CLI components.
type App struct {
	Config  *config.Config
	Logger  *slog.Logger
	Hub     *realtime.Hub
	Stats   *analytics.PromptStats
	Engine  *engine.Engine
	Handler http.Handler
	Server  *http.Server
}

// Close releases the engine and its storage.
func (a *App) Close() error { return a.Engine.Close() }

// ConfigPath is the --config flag value; empty means environment only.
type ConfigPath string

func provideConfig(path ConfigPath) (*config.Config, error) {
	if path == "" {
		return config.Load()
	}
	return config.LoadFromFile(string(path))
}

func provideLogger(cfg *config.Config) *slog.Logger {
	return setupLogging(cfg)
}

func provideHub() *realtime.Hub {
	return realtime.NewHub()
}

func provideStats() *analytics.PromptStats {
	return analytics.NewPromptStats()
}

func provideStorage(ctx context.Context, cfg *config.Config) (engine.Storage, error) {
	return appraise.OpenStorage(ctx, cfg)
}

func provideHost(in io.Reader, out io.Writer) engine.Host {
	return host.Terminal(in, out)
}

func provideEngine(ctx context.Context, cfg *config.Config, logger *slog.Logger, storage engine.Storage, h engine.Host, hub *realtime.Hub, stats *analytics.PromptStats) (*engine.Engine, error) {
	hooks := []analytics.Hook{stats}
	if len(cfg.Webhook.Endpoints) > 0 {
		hooks = append(hooks, setupWebhook(cfg, logger))
	}
	return appraise.New(ctx,
		appraise.WithConfig(cfg),
		appraise.WithStorage(storage),
		appraise.WithHost(h),
		appraise.WithLogger(logger),
		appraise.WithRealtime(hub),
		appraise.WithHooks(hooks...),
	)
}

func provideHandler(e *engine.Engine, hub *realtime.Hub, stats *analytics.PromptStats, cfg *config.Config) http.Handler {
	return httpapi.NewMux(e, hub, httpapi.Options{
		PathPrefix:       cfg.Server.PathPrefix,
		AllowCORSOrigin:  cfg.Server.CORSOrigin,
		APIKeys:          cfg.Security.APIKeys,
		RateLimitEnabled: cfg.Security.EnableRateLimit,
		RateLimitRPM:     cfg.Security.RateLimit.RequestsPerMinute,
		RateLimitBurst:   cfg.Security.RateLimit.BurstSize,
		Stats:            stats,
	})
}

func provideServer(cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           handler,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}
}

func setupWebhook(cfg *config.Config, logger *slog.Logger) *webhook.Sink {
	types := make([]core.EventType, 0, len(cfg.Webhook.Types))
	for _, t := range cfg.Webhook.Types {
		types = append(types, core.EventType(t))
	}
	opts := []webhook.Option{
		webhook.WithClient(&http.Client{Timeout: cfg.Webhook.Timeout}),
		webhook.WithInstallation(cfg.Storage.Installation),
		webhook.WithLogger(logger),
	}
	if len(types) > 0 {
		opts = append(opts, webhook.WithTypes(types...))
	}
	return webhook.New(cfg.Webhook.Endpoints, opts...)
}

// setupLogging configures the logger based on configuration.
func setupLogging(cfg *config.Config) *slog.Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Logging.Level),
	}

	var out io.Writer = os.Stderr
	if cfg.Logging.Output == "stdout" {
		out = os.Stdout
	}

	switch cfg.Logging.Format {
	case "json":
		handler = slog.NewJSONHandler(out, opts)
	default:
		handler = slog.NewTextHandler(out, opts)
	}

	if len(cfg.Logging.Attributes) > 0 {
		handler = handler.WithAttrs(convertAttributes(cfg.Logging.Attributes))
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// parseLogLevel converts string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func convertAttributes(attrs map[string]string) []slog.Attr {
	result := make([]slog.Attr, 0, len(attrs))
	for k, v := range attrs {
		result = append(result, slog.String(k, v))
	}
	return result
}
