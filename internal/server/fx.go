// Package server provides the core application server and dependency injection.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/website-growth-analyzer/internal/analysis"
	"github.com/JakeFAU/website-growth-analyzer/internal/api"
	"github.com/JakeFAU/website-growth-analyzer/internal/clock/system"
	"github.com/JakeFAU/website-growth-analyzer/internal/config"
	collyfetcher "github.com/JakeFAU/website-growth-analyzer/internal/fetcher/colly"
	"github.com/JakeFAU/website-growth-analyzer/internal/fetcher/crawlapi"
	"github.com/JakeFAU/website-growth-analyzer/internal/insight"
	"github.com/JakeFAU/website-growth-analyzer/internal/insight/llm"
	"github.com/JakeFAU/website-growth-analyzer/internal/logging"
	"github.com/JakeFAU/website-growth-analyzer/internal/metrics"
	"github.com/JakeFAU/website-growth-analyzer/internal/policy/ratelimit"
	memorypublisher "github.com/JakeFAU/website-growth-analyzer/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/website-growth-analyzer/internal/publisher/pubsub"
	memorystore "github.com/JakeFAU/website-growth-analyzer/internal/storage/memory"
	pgstore "github.com/JakeFAU/website-growth-analyzer/internal/storage/postgres"
)

// LocalTopic receives lead events when no Pub/Sub topic is configured.
const LocalTopic = "leads"

const shutdownTimeout = 10 * time.Second

// App contains the application's dependencies.
type App struct {
	cfg          config.Config
	logger       *zap.Logger
	apiServer    *api.Server
	orchestrator *analysis.Orchestrator
	store        analysis.LeadStore
	publisher    analysis.Publisher
	pubsub       *gcppublisher.Publisher
	listener     net.Listener
	closeOnce    sync.Once
}

// NewApp creates a new App with the given configuration.
func NewApp(cfg config.Config, logger *zap.Logger) *App {
	if logger == nil {
		logger = zap.NewNop()
	}
	// Only non-sensitive fields are logged.
	type sanitizedConfig struct {
		ServerPort  int    `json:"server_port"`
		Environment string `json:"environment,omitempty"`
		Crawler     string `json:"crawler"`
		Model       string `json:"model"`
		Database    bool   `json:"database"`
		PubSub      bool   `json:"pubsub"`
	}
	logger.Info("Creating application", zap.Any("config", sanitizedConfig{
		ServerPort:  cfg.Server.Port,
		Environment: cfg.Server.Environment,
		Crawler:     cfg.Crawler.Provider,
		Model:       cfg.LLM.Model,
		Database:    cfg.DB.DSN != "",
		PubSub:      cfg.PubSub.TopicName != "",
	}))
	return &App{cfg: cfg, logger: logger}
}

// Build creates the application's dependencies.
func Build(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := logging.New(logging.Options{
		Development: cfg.Logging.Development,
		Level:       cfg.Logging.Level,
	})
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)
	return BuildWithLogger(ctx, cfg, logger)
}

// BuildWithLogger creates the application's dependencies using logger.
func BuildWithLogger(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	app := NewApp(cfg, logger)
	metrics.Init()
	app.logger.Info("building application dependencies")

	store, err := OpenStore(ctx, cfg, app.logger.Named("store"))
	if err != nil {
		return nil, err
	}
	app.store = store

	topic, err := setupPublisher(ctx, app)
	if err != nil {
		app.store.Close()
		return nil, err
	}

	clock := system.New()
	generator := insight.New(
		llm.New(llm.Config{
			BaseURL:     cfg.LLM.BaseURL,
			APIKey:      cfg.LLM.APIKey,
			Model:       cfg.LLM.Model,
			Temperature: cfg.LLM.Temperature,
			MaxTokens:   cfg.LLM.MaxTokens,
			Timeout:     cfg.LLMTimeout(),
		}, app.logger.Named("llm")),
		insight.DefaultRubric(),
		app.logger.Named("insight"),
	)
	if cfg.LLM.APIKey == "" {
		app.logger.Warn("No LLM API key configured, analyses will fail until one is set")
	}

	app.orchestrator = analysis.NewOrchestrator(
		setupFetcher(app),
		generator,
		app.store,
		clock,
		app.logger.Named("orchestrator"),
	).WithPublisher(app.publisher, topic)

	limiter := ratelimit.New(ratelimit.Config{
		Requests: cfg.RateLimit.Requests,
		Window:   cfg.RateLimitWindow(),
	})
	app.logger.Info("rate limiter enabled",
		zap.Int("requests", cfg.RateLimit.Requests),
		zap.Duration("window", cfg.RateLimitWindow()),
		zap.Int("trusted_proxies", len(cfg.Server.TrustedProxies)),
	)
	if cfg.Admin.Token == "" {
		app.logger.Warn("No admin token configured, admin endpoints will reject every request")
	}

	app.apiServer = api.NewServer(
		app.orchestrator,
		app.store,
		clock,
		api.Options{
			Environment:    cfg.Server.Environment,
			Development:    cfg.IsDevelopment(),
			AdminToken:     cfg.Admin.Token,
			RequestTimeout: cfg.RequestTimeout(),
			Limiter:        limiter,
			TrustedProxies: cfg.TrustedProxyPrefixes(),
		},
		app.logger.Named("api"),
	)
	return app, nil
}

// OpenStore returns the Postgres lead store when a DSN is configured and the
// in-memory store otherwise.
func OpenStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (analysis.LeadStore, error) {
	if cfg.DB.DSN == "" {
		logger.Warn("No DSN specified for database, using in-memory lead store")
		return memorystore.NewLeadStore(system.New()), nil
	}
	store, err := pgstore.NewLeadStore(ctx, pgstore.LeadStoreConfig{
		DSN:      cfg.DB.DSN,
		MaxConns: int32(cfg.DB.MaxConns), //nolint:gosec // bounded by config validation
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("lead store init failed: %w", err)
	}
	if cfg.DB.AutoMigrate {
		if err := store.Migrate(ctx); err != nil {
			store.Close()
			return nil, fmt.Errorf("lead store migration failed: %w", err)
		}
		logger.Info("lead store migrated")
	}
	logger.Info("lead store initialized", zap.Int("max_conns", cfg.DB.MaxConns))
	return store, nil
}

func setupFetcher(app *App) analysis.Fetcher {
	if app.cfg.Crawler.Provider == config.ProviderDirect {
		app.logger.Info("using colly fetcher",
			zap.String("user_agent", app.cfg.Crawler.UserAgent),
			zap.Bool("allow_private_networks", app.cfg.Crawler.AllowPrivateNetworks),
		)
		return collyfetcher.New(collyfetcher.Config{
			UserAgent:            app.cfg.Crawler.UserAgent,
			Timeout:              app.cfg.CrawlerTimeout(),
			AllowPrivateNetworks: app.cfg.Crawler.AllowPrivateNetworks,
		}, app.logger.Named("fetcher"))
	}
	if app.cfg.Crawler.APIKey == "" {
		app.logger.Warn("No crawler API key configured, fetches will fail until one is set")
	}
	app.logger.Info("using crawl API fetcher", zap.String("base_url", app.cfg.Crawler.BaseURL))
	return crawlapi.New(crawlapi.Config{
		BaseURL: app.cfg.Crawler.BaseURL,
		APIKey:  app.cfg.Crawler.APIKey,
		WaitFor: app.cfg.CrawlerWaitFor(),
		Timeout: app.cfg.CrawlerTimeout(),
	}, app.logger.Named("fetcher"))
}

func setupPublisher(ctx context.Context, app *App) (string, error) {
	if app.cfg.PubSub.TopicName == "" || app.cfg.PubSub.ProjectID == "" {
		app.logger.Warn("No Pub/Sub topic configured, using in-memory publisher")
		app.publisher = memorypublisher.New()
		return LocalTopic, nil
	}
	pub, err := gcppublisher.New(ctx, app.cfg.PubSub.ProjectID)
	if err != nil {
		return "", fmt.Errorf("pubsub client init failed: %w", err)
	}
	app.pubsub = pub
	app.publisher = pub
	app.logger.Info(
		"Pub/Sub publisher initialized",
		zap.String("project", app.cfg.PubSub.ProjectID),
		zap.String("topic", app.cfg.PubSub.TopicName),
	)
	return app.cfg.PubSub.TopicName, nil
}

// Handler exposes the HTTP handler, mainly for tests.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Logger returns the application logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Store returns the lead store.
func (a *App) Store() analysis.LeadStore {
	return a.store
}

// Publisher returns the lead event publisher.
func (a *App) Publisher() analysis.Publisher {
	return a.publisher
}

// Run starts the application and blocks until the context is canceled or a
// termination signal arrives.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ln := a.listener
	if ln == nil {
		var err error
		ln, err = net.Listen("tcp", net.JoinHostPort("", strconv.Itoa(a.cfg.Server.Port)))
		if err != nil {
			return fmt.Errorf("listen on port %d: %w", a.cfg.Server.Port, err)
		}
	}

	srv := &http.Server{
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			serveErr <- err
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}

	closeErr := a.Close(shutdownCtx)
	select {
	case err := <-serveErr:
		return fmt.Errorf("serve: %w", err)
	default:
		return closeErr
	}
}

// Close gracefully shuts down the application. Calls after the first are no-ops.
func (a *App) Close(ctx context.Context) error {
	a.closeOnce.Do(func() {
		a.closeInfrastructure()
		a.closeObservability(ctx)
		a.logger.Info("shutdown complete")
	})
	return nil
}

func (a *App) closeInfrastructure() {
	if a.pubsub != nil {
		if err := a.pubsub.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.store != nil {
		a.store.Close()
	}
}

func (a *App) closeObservability(_ context.Context) {
	// Sync on a console sink commonly fails with EINVAL.
	if err := a.logger.Sync(); err != nil {
		a.logger.Debug("logger sync failed", zap.Error(err))
	}
}
