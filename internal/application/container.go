// Package application provides application-level services and dependency injection.
package application

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jbctechsolutions/cropcare/internal/adapters/cache"
	"github.com/jbctechsolutions/cropcare/internal/adapters/camera"
	"github.com/jbctechsolutions/cropcare/internal/adapters/functions"
	netadapter "github.com/jbctechsolutions/cropcare/internal/adapters/network"
	"github.com/jbctechsolutions/cropcare/internal/adapters/queue"
	"github.com/jbctechsolutions/cropcare/internal/adapters/sqlite"
	"github.com/jbctechsolutions/cropcare/internal/adapters/supabase"
	"github.com/jbctechsolutions/cropcare/internal/application/analysis"
	appcapture "github.com/jbctechsolutions/cropcare/internal/application/capture"
	"github.com/jbctechsolutions/cropcare/internal/application/chat"
	"github.com/jbctechsolutions/cropcare/internal/application/network"
	"github.com/jbctechsolutions/cropcare/internal/application/offline"
	"github.com/jbctechsolutions/cropcare/internal/application/ports"
	"github.com/jbctechsolutions/cropcare/internal/application/preferences"
	"github.com/jbctechsolutions/cropcare/internal/application/session"
	"github.com/jbctechsolutions/cropcare/internal/application/translation"
	"github.com/jbctechsolutions/cropcare/internal/application/weather"
	"github.com/jbctechsolutions/cropcare/internal/domain/capture"
	"github.com/jbctechsolutions/cropcare/internal/infrastructure/config"
	"github.com/jbctechsolutions/cropcare/internal/infrastructure/crypto"
	"github.com/jbctechsolutions/cropcare/internal/infrastructure/logging"
	"github.com/jbctechsolutions/cropcare/internal/infrastructure/metrics"
	"github.com/jbctechsolutions/cropcare/internal/infrastructure/tracing"
)

// Container holds all application dependencies and provides a central
// point for dependency injection. It manages the lifecycle of services
// and ensures proper initialization order.
type Container struct {
	// Configuration
	config  *config.Config
	verbose bool // Override log level to debug when true

	// Database connection
	dbConn *sqlite.Connection
	db     *sql.DB

	// Local stores
	cacheStore       ports.LocalCachePort
	queueStore       ports.QueuePort
	translationStore ports.TranslationStorePort

	// Backend adapters
	client    *supabase.Client
	tables    *supabase.Tables
	storage   *supabase.Storage
	auth      *supabase.Auth
	realtime  *supabase.Realtime
	functions *functions.Client
	camera    *camera.Directory

	// Offline core
	cache      *offline.Cache
	queue      *offline.Queue
	reconciler *offline.Reconciler
	refresher  *offline.Refresher
	changeFeed *offline.ChangeFeed
	monitor    *network.Monitor
	prober     *netadapter.Prober

	drainMu        sync.Mutex
	reconnectDrain *offline.DrainResult

	// Application services
	sessions     *session.Manager
	pipeline     *appcapture.Pipeline
	analyses     *analysis.Service
	chat         *chat.Channel
	translations *translation.Service
	preferences  *preferences.Service
	weather      *weather.Service

	// Observability
	logger *logging.Logger
	tracer *tracing.Tracer
}

// NewContainer creates a new dependency injection container with all services
// initialized based on the provided configuration. No network call is made;
// the device starts offline until Probe or the daemon's prober says otherwise.
func NewContainer(cfg *config.Config, verbose bool) (*Container, error) {
	if cfg == nil {
		cfg = config.NewDefaultConfig()
	}

	c := &Container{
		config:  cfg,
		verbose: verbose,
	}

	if err := c.initObservability(); err != nil {
		return nil, fmt.Errorf("failed to initialize observability: %w", err)
	}

	if err := c.initDatabase(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	c.initStores()
	c.initAdapters()
	c.initOffline()
	c.initServices()

	if token := cfg.Backend.AccessToken; token != "" {
		if _, err := c.sessions.UseToken(context.Background(), token); err != nil {
			c.logger.Warn("ignoring configured access token", "error", err)
		}
	}

	return c, nil
}

// initDatabase opens the local SQLite database.
func (c *Container) initDatabase() error {
	conn, err := sqlite.NewConnection(c.config.Cache.DBPath)
	if err != nil {
		return fmt.Errorf("failed to create database connection: %w", err)
	}

	if err := conn.Open(); err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	db, err := conn.DB()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("failed to get database handle: %w", err)
	}

	c.dbConn = conn
	c.db = db
	return nil
}

// initStores creates the durable cache, queue and translation stores.
func (c *Container) initStores() {
	c.cacheStore = cache.NewSQLiteCache(c.db)
	c.queueStore = queue.NewSQLiteQueue(c.db, c.logger)
	c.translationStore = cache.NewSQLiteTranslationStore(c.db)
}

// initAdapters creates the backend, functions and camera adapters.
func (c *Container) initAdapters() {
	c.client = supabase.NewClient(supabase.Config{
		URL:     c.config.Backend.URL,
		AnonKey: c.config.Backend.AnonKey,
		Timeout: c.config.Backend.Timeout,
	})
	c.tables = supabase.NewTables(c.client)
	c.storage = supabase.NewStorage(c.client)
	c.auth = supabase.NewAuth(c.client)
	c.realtime = supabase.NewRealtime(c.client, c.logger)

	fn := c.config.Functions
	c.functions = functions.NewClient(c.client, functions.Config{
		Analyze:           fn.Analyze,
		Chat:              fn.Chat,
		Translate:         fn.Translate,
		Weather:           fn.Weather,
		RequestsPerSecond: fn.RequestsPerSecond,
		Burst:             fn.Burst,
	}, functions.WithLogger(c.logger))

	c.camera = camera.NewDirectory(c.config.Capture.Directory, 0)
}

// initOffline wires the cache, queue, reconciler and connectivity tracking.
func (c *Container) initOffline() {
	c.cache = offline.NewCache(c.cacheStore, c.logger,
		offline.WithDefaultTTL(c.config.Cache.DefaultTTL),
		offline.WithSweepPeriod(c.config.Cache.SweepPeriod),
	)
	c.queue = offline.NewQueue(c.queueStore, c.logger)
	c.reconciler = offline.NewReconciler(c.queueStore, c.cache, c.config.Sync.RetryCeiling, c.logger, c.tracer)

	c.monitor = network.NewMonitor(false, c.logger)
	c.monitor.OnReconnect(func(ctx context.Context) {
		res := c.reconciler.Drain(ctx)
		c.drainMu.Lock()
		c.reconnectDrain = &res
		c.drainMu.Unlock()
	})
	c.prober = netadapter.NewProber(c.client, c.monitor, c.config.Sync.ProbeInterval, c.config.Sync.ProbeTimeout, c.logger)

	c.refresher = offline.NewRefresher(c.monitor.Online, c.reconciler, c.config.Cache.RefreshPeriod, c.logger)
	c.changeFeed = offline.NewChangeFeed(c.realtime, c.cache, c.refresher, c.logger)
}

// initServices creates the application services and registers their replay
// and refresh handlers.
func (c *Container) initServices() {
	online := c.monitor.Online

	var sessionOpts []session.Option
	if enc, err := crypto.NewEncryptorFromDir(filepath.Dir(c.config.Cache.DBPath)); err != nil {
		c.logger.Warn("storing session unencrypted", "error", err)
	} else {
		sessionOpts = append(sessionOpts, session.WithSealer(enc))
	}
	c.sessions = session.NewManager(c.auth, c.cache, c.client, c.logger, sessionOpts...)

	capCfg := c.config.Capture
	c.pipeline = appcapture.NewPipeline(c.camera, c.storage, appcapture.Config{
		Compress: capture.CompressOptions{
			MaxSizeMB:    capCfg.MaxSizeMB,
			MaxDimension: capCfg.MaxDimension,
			Quality:      capCfg.JPEGQuality,
		},
		SignedURLTTL:  c.config.Storage.SignedURLTTL,
		ThumbnailSize: capCfg.ThumbnailSize,
	}, c.logger, c.tracer)

	c.preferences = preferences.NewService(c.tables, c.cache, c.queue, c.sessions, c.logger,
		preferences.WithOnline(online))

	c.analyses = analysis.NewService(c.tables, c.storage, c.functions, c.pipeline, c.cache, c.queue, c.sessions,
		analysis.Config{
			Bucket:    c.config.Storage.ImageBucket,
			SpoolDir:  capCfg.SpoolDir,
			ListLimit: c.config.Cache.RefreshLimit,
		}, c.logger, c.tracer,
		analysis.WithOnline(online),
		analysis.WithLanguage(c.Language),
	)

	chatCfg := c.config.Chat
	c.chat = chat.NewChannel(c.functions, c.tables, c.cache, c.queue, c.sessions,
		chat.Config{
			SentDelay:      chatCfg.SentDelay,
			DeliveredDelay: chatCfg.DeliveredDelay,
			WelcomeMessage: chatCfg.WelcomeMessage,
			HistoryLimit:   chatCfg.HistoryLimit,
		}, c.logger, c.tracer,
		chat.WithOnline(online),
		chat.WithLanguage(c.Language),
	)

	c.translations = translation.NewService(c.functions, c.translationStore, translation.Config{
		MaxEntries:   c.config.Translation.MaxEntries,
		PrefixLength: c.config.Translation.PrefixLength,
	}, c.logger, c.tracer)

	c.weather = weather.NewService(c.functions, c.cache, c.config.Cache.WeatherTTL, online, c.logger)

	c.analyses.Register(c.reconciler, c.refresher)
	c.chat.Register(c.reconciler, c.refresher)
	c.preferences.Register(c.reconciler, c.refresher)
}

// initObservability initializes the observability subsystem (logging, tracing).
func (c *Container) initObservability() error {
	ctx := context.Background()

	logLevel := logging.LevelWarn
	switch c.config.Logging.Level {
	case "debug":
		logLevel = logging.LevelDebug
	case "info":
		logLevel = logging.LevelInfo
	case "error":
		logLevel = logging.LevelError
	}

	logFormat := logging.FormatText
	if c.config.Logging.Format == "json" {
		logFormat = logging.FormatJSON
	}

	logCfg := logging.DefaultConfig()
	logCfg.Level = logLevel
	logCfg.Format = logFormat
	c.logger = logging.New(logCfg)
	if c.verbose {
		c.logger.SetLevel(logging.LevelDebug)
	}

	if c.config.Observability.Tracing.Enabled {
		tracingCfg := tracing.Config{
			Enabled:      true,
			ExporterType: tracing.ExporterType(c.config.Observability.Tracing.ExporterType),
			OTLPEndpoint: c.config.Observability.Tracing.OTLPEndpoint,
			ServiceName:  c.config.Observability.Tracing.ServiceName,
			Environment:  "production",
			SampleRate:   c.config.Observability.Tracing.SampleRate,
		}
		tracer, err := tracing.New(ctx, tracingCfg)
		if err != nil {
			return fmt.Errorf("failed to create tracer: %w", err)
		}
		c.tracer = tracer
	} else {
		c.tracer = tracing.Default()
	}

	return nil
}

// Language returns the language replies should be written in: the user's
// stored preference, or the configured default.
func (c *Container) Language(ctx context.Context) string {
	if prefs, err := c.preferences.Get(ctx); err == nil && prefs.Language != "" {
		return prefs.Language
	}
	if c.config.User.Language != "" {
		return c.config.User.Language
	}
	return config.DefaultLanguage
}

// Probe checks reachability once. Coming back online drains the queue.
func (c *Container) Probe(ctx context.Context) bool {
	return c.prober.Probe(ctx)
}

// TakeReconnectDrain returns the result of the drain run by the last
// offline to online transition, once.
func (c *Container) TakeReconnectDrain() (offline.DrainResult, bool) {
	c.drainMu.Lock()
	defer c.drainMu.Unlock()
	if c.reconnectDrain == nil {
		return offline.DrainResult{}, false
	}
	res := *c.reconnectDrain
	c.reconnectDrain = nil
	return res, true
}

// Reachable checks the backend without telling the monitor, so nothing is
// drained.
func (c *Container) Reachable(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, c.config.Sync.ProbeTimeout)
	defer cancel()
	return c.client.HealthCheck(ctx) == nil
}

// Connect restores the stored session and then probes, so a queue drain
// triggered by coming online runs authenticated. It reports reachability.
func (c *Container) Connect(ctx context.Context) bool {
	if _, err := c.sessions.Current(ctx); err != nil {
		c.logger.DebugContext(ctx, "no session restored", "error", err)
	}
	return c.prober.Probe(ctx)
}

// Run is the long-running daemon: connectivity probing, periodic refresh,
// cache sweeping, the realtime change feed and the metrics endpoint. It
// returns when ctx is done or a component fails.
func (c *Container) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return c.prober.Run(ctx) })
	g.Go(func() error { return c.refresher.Run(ctx) })
	g.Go(func() error { return c.cache.Run(ctx) })

	if c.config.Sync.Realtime {
		g.Go(func() error {
			userID, err := c.sessions.UserID(ctx)
			if err != nil {
				c.logger.WarnContext(ctx, "realtime disabled, not signed in", "error", err)
				return nil
			}
			return c.changeFeed.Run(ctx, offline.UserFilters(userID))
		})
	}

	if m := c.config.Observability.Metrics; m.Enabled {
		srv := &http.Server{
			Addr:              m.ListenAddr,
			Handler:           metricsMux(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			c.logger.InfoContext(ctx, "serving metrics", "addr", m.ListenAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	return g.Wait()
}

func metricsMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	return mux
}

// Close releases all resources held by the container.
func (c *Container) Close() error {
	ctx := context.Background()

	if c.chat != nil {
		c.chat.Cancel()
	}

	if c.tracer != nil {
		_ = c.tracer.Shutdown(ctx)
	}

	if c.dbConn != nil {
		return c.dbConn.Close()
	}
	return nil
}

// Config returns the application configuration.
func (c *Container) Config() *config.Config {
	return c.config
}

// DB returns the database connection.
func (c *Container) DB() *sql.DB {
	return c.db
}

// Cache returns the local persistent cache.
func (c *Container) Cache() *offline.Cache {
	return c.cache
}

// Queue returns the pending-operation queue.
func (c *Container) Queue() *offline.Queue {
	return c.queue
}

// Reconciler returns the sync reconciler.
func (c *Container) Reconciler() *offline.Reconciler {
	return c.reconciler
}

// Refresher returns the periodic cache refresher.
func (c *Container) Refresher() *offline.Refresher {
	return c.refresher
}

// Monitor returns the connectivity monitor.
func (c *Container) Monitor() *network.Monitor {
	return c.monitor
}

// Sessions returns the session manager.
func (c *Container) Sessions() *session.Manager {
	return c.sessions
}

// Pipeline returns the capture pipeline.
func (c *Container) Pipeline() *appcapture.Pipeline {
	return c.pipeline
}

// Analyses returns the analysis service.
func (c *Container) Analyses() *analysis.Service {
	return c.analyses
}

// Chat returns the assistant channel.
func (c *Container) Chat() *chat.Channel {
	return c.chat
}

// Translations returns the translation cache.
func (c *Container) Translations() *translation.Service {
	return c.translations
}

// Preferences returns the preferences service.
func (c *Container) Preferences() *preferences.Service {
	return c.preferences
}

// Weather returns the forecast service.
func (c *Container) Weather() *weather.Service {
	return c.weather
}

// Logger returns the structured logger.
func (c *Container) Logger() *logging.Logger {
	return c.logger
}

// Tracer returns the OpenTelemetry tracer.
func (c *Container) Tracer() *tracing.Tracer {
	return c.tracer
}
