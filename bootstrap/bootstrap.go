// Package bootstrap wires all dependencies and starts the application.
package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/artpar/utilibill/adapters/clock"
	"github.com/artpar/utilibill/adapters/hasher"
	apihttp "github.com/artpar/utilibill/adapters/http"
	"github.com/artpar/utilibill/adapters/idgen"
	"github.com/artpar/utilibill/adapters/kafka"
	"github.com/artpar/utilibill/adapters/ledger"
	"github.com/artpar/utilibill/adapters/memory"
	"github.com/artpar/utilibill/adapters/metrics"
	"github.com/artpar/utilibill/adapters/redis"
	"github.com/artpar/utilibill/adapters/sqlite"
	"github.com/artpar/utilibill/app"
	"github.com/artpar/utilibill/config"
	"github.com/artpar/utilibill/domain/oracle"
	"github.com/artpar/utilibill/events"
	"github.com/artpar/utilibill/ports"
)

// App represents the running application.
type App struct {
	Logger     zerolog.Logger
	Config     *config.Config
	Holder     *config.Holder
	DB         *sqlite.DB
	Redis      *redis.Client
	Metrics    *metrics.Collector
	HTTPServer *http.Server

	Registry *app.RegistryService
	Billing  *app.BillingService
	Oracle   *app.OracleService

	bus      *events.Bus
	consumer *kafka.Consumer

	consumerCancel context.CancelFunc
	consumerDone   chan error
}

// New creates and initializes the application. The config file path may
// be empty; configuration then comes from UTILIBILL_* environment
// variables.
func New(cfgPath, version string) (*App, error) {
	a := &App{}

	if err := a.loadConfig(cfgPath); err != nil {
		return nil, err
	}
	a.Logger = setupLogger(a.Config.Logging)
	a.Logger.Info().Str("version", version).Msg("initializing utilibill")

	a.bus = events.NewBus(a.Logger).WithIDGenerator(idgen.UUID{})
	if a.Config.Metrics.Enabled {
		a.Metrics = metrics.New()
		a.Metrics.ObserveBus(a.bus)
		a.Logger.Info().Msg("prometheus metrics enabled")
	}

	stores, err := a.buildStores()
	if err != nil {
		return nil, err
	}
	a.buildServices(stores)

	if a.Config.Kafka.Enabled {
		consumer, err := kafka.NewConsumer(kafka.Config{
			Brokers: a.Config.Kafka.Brokers,
			Topic:   a.Config.Kafka.Topic,
			GroupID: a.Config.Kafka.GroupID,
		}, a.Registry, a.Logger)
		if err != nil {
			return nil, fmt.Errorf("kafka consumer: %w", err)
		}
		a.consumer = consumer
	}

	a.initHTTPServer(version)
	return a, nil
}

func (a *App) loadConfig(cfgPath string) error {
	if cfgPath != "" {
		if _, err := os.Stat(cfgPath); err == nil {
			h, err := config.NewHolder(cfgPath, zerolog.New(os.Stdout).With().Timestamp().Logger())
			if err != nil {
				return err
			}
			a.Holder = h
			a.Config = h.Get()
			return nil
		}
	}
	cfg, err := config.LoadWithFallback(cfgPath)
	if err != nil {
		return err
	}
	a.Config = cfg
	return nil
}

// storeSet is the collected persistence layer, picked by driver.
type storeSet struct {
	providers ports.ProviderStore
	tariffs   ports.TariffStore
	meters    ports.MeterStore
	fees      ports.FeeStore
	records   ports.BillingStore
	feeds     ports.FeedStore
	rates     ports.RateStore
}

func (a *App) buildStores() (storeSet, error) {
	var s storeSet

	switch a.Config.Database.Driver {
	case "memory":
		s.providers = memory.NewProviderStore()
		s.tariffs = memory.NewTariffStore()
		s.meters = memory.NewMeterStore()
		s.fees = memory.NewFeeStore()
		s.records = memory.NewBillingStore()
		s.feeds = memory.NewFeedStore()
		s.rates = memory.NewRateStore()
		a.Logger.Info().Msg("using in-memory stores")
	default:
		db, err := sqlite.Open(a.Config.Database.DSN)
		if err != nil {
			return s, fmt.Errorf("open database: %w", err)
		}
		if err := db.Migrate(); err != nil {
			db.Close()
			return s, fmt.Errorf("migrate: %w", err)
		}
		a.DB = db
		s.providers = sqlite.NewProviderStore(db)
		s.tariffs = sqlite.NewTariffStore(db)
		s.meters = sqlite.NewMeterStore(db)
		s.fees = sqlite.NewFeeStore(db)
		s.records = sqlite.NewBillingStore(db)
		s.feeds = sqlite.NewFeedStore(db)
		s.rates = sqlite.NewRateStore(db)
		a.Logger.Info().Str("dsn", a.Config.Database.DSN).Msg("database initialized")
	}

	// Price data can live in Redis for low-latency updates from external
	// pushers; everything else stays in the primary database.
	if a.Config.Redis.Enabled {
		client, err := redis.NewClient(context.Background(), redis.Options{
			Addr:     a.Config.Redis.Addr,
			Password: a.Config.Redis.Password,
			DB:       a.Config.Redis.DB,
			TTL:      a.Config.Redis.TTL,
		})
		if err != nil {
			return s, fmt.Errorf("redis: %w", err)
		}
		a.Redis = client
		s.feeds = redis.NewFeedStore(client)
		s.rates = redis.NewRateStore(client)
		a.Logger.Info().Str("addr", a.Config.Redis.Addr).Msg("redis price store enabled")
	}

	return s, nil
}

func (a *App) buildServices(s storeSet) {
	clk := clock.Real{}

	a.Registry = app.NewRegistryService(app.RegistryDeps{
		Providers: s.providers,
		Tariffs:   s.tariffs,
		Meters:    s.meters,
		Fees:      s.fees,
		Clock:     clk,
		Bus:       a.bus,
		Logger:    a.Logger,
	}, a.Config.Admin.Address)

	a.Oracle = app.NewOracleService(app.OracleDeps{
		Feeds:  s.feeds,
		Rates:  s.rates,
		Clock:  clk,
		Bus:    a.bus,
		Logger: a.Logger,
	}, oracleConfig(a.Config), a.Config.Admin.Address)

	var led ports.Ledger
	if a.Config.Ledger.Mode == "memory" {
		led = ledger.NewMemory()
	} else {
		led = ledger.NewNoop()
		a.Logger.Warn().Msg("ledger disabled, payments will be rejected")
	}

	a.Billing = app.NewBillingService(app.BillingDeps{
		Providers: s.providers,
		Tariffs:   s.tariffs,
		Meters:    s.meters,
		Fees:      s.fees,
		Records:   s.records,
		Oracle:    a.Oracle,
		Ledger:    led,
		Clock:     clk,
		Bus:       a.bus,
		Logger:    a.Logger,
	}, a.Config.Ledger.HoldingAddress)

	// Gate parameters follow config reloads without a restart.
	if a.Holder != nil {
		a.Holder.OnChange(func(cfg *config.Config) {
			a.Oracle.SetConfig(oracleConfig(cfg))
		})
	}
}

func oracleConfig(cfg *config.Config) oracle.Config {
	return oracle.Config{
		MaxAgeSeconds:    cfg.Oracle.MaxAgeSeconds,
		MinReliability:   cfg.Oracle.MinReliability,
		FallbackEnabled:  cfg.Oracle.FallbackEnabled,
		CostLimitPerCall: cfg.Oracle.CostLimitPerCall,
		SlowCallMs:       cfg.Oracle.SlowCallMs,
	}
}

func (a *App) initHTTPServer(version string) {
	handler := apihttp.NewHandler(apihttp.Deps{
		Registry:       a.Registry,
		Billing:        a.Billing,
		Oracle:         a.Oracle,
		Hasher:         hasher.NewBcrypt(0),
		Logger:         a.Logger,
		Metrics:        a.Metrics,
		AdminTokenHash: a.Config.Admin.TokenHash,
		AdminAddress:   a.Config.Admin.Address,
		Version:        version,
		MetricsPath:    a.Config.Metrics.Path,
	})

	addr := fmt.Sprintf("%s:%d", a.Config.Server.Host, a.Config.Server.Port)
	a.HTTPServer = &http.Server{
		Addr:         addr,
		Handler:      handler.Router(),
		ReadTimeout:  a.Config.Server.ReadTimeout,
		WriteTimeout: a.Config.Server.WriteTimeout,
	}
	a.Logger.Info().Str("addr", addr).Msg("http server configured")
}

// Run starts the HTTP server and blocks until shutdown.
func (a *App) Run() error {
	if a.Holder != nil {
		if err := a.Holder.WatchFile(); err != nil {
			a.Logger.Warn().Err(err).Msg("config file watch unavailable")
		}
		a.Holder.WatchSignals()
	}

	if a.consumer != nil {
		ctx, cancel := context.WithCancel(context.Background())
		a.consumerCancel = cancel
		a.consumerDone = make(chan error, 1)
		go func() {
			a.consumerDone <- a.consumer.Run(ctx)
		}()
		a.Logger.Info().
			Strs("brokers", a.Config.Kafka.Brokers).
			Str("topic", a.Config.Kafka.Topic).
			Msg("smart meter ingestion started")
	}

	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info().Str("addr", a.HTTPServer.Addr).Msg("starting http server")
		if err := a.HTTPServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case sig := <-quit:
		a.Logger.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	return a.Shutdown()
}

// Shutdown gracefully stops the application.
func (a *App) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if a.HTTPServer != nil {
		if err := a.HTTPServer.Shutdown(ctx); err != nil {
			a.Logger.Error().Err(err).Msg("http server shutdown error")
		}
	}

	if a.consumerCancel != nil {
		a.consumerCancel()
		select {
		case err := <-a.consumerDone:
			if err != nil {
				a.Logger.Error().Err(err).Msg("consumer stopped with error")
			}
		case <-ctx.Done():
			a.Logger.Warn().Msg("consumer did not stop in time")
		}
		if err := a.consumer.Close(); err != nil {
			a.Logger.Error().Err(err).Msg("consumer close error")
		}
	}

	if a.Holder != nil {
		a.Holder.Stop()
	}

	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			a.Logger.Error().Err(err).Msg("redis close error")
		}
	}

	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			a.Logger.Error().Err(err).Msg("database close error")
		}
	}

	a.Logger.Info().Msg("shutdown complete")
	return nil
}

func setupLogger(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "console" {
		output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
		return zerolog.New(output).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}
