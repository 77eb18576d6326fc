package app

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"freelance/internal/cache"
	"freelance/internal/config"
	"freelance/internal/controller"
	"freelance/internal/events"
	"freelance/internal/logger"
	"freelance/internal/repository"
	"freelance/internal/router"
	"freelance/internal/service"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type App struct {
	repo       *repository.Repository
	rdb        *redis.Client
	publisher  *events.Publisher
	dispatcher *events.Dispatcher
	service    *service.Service
	controller *controller.Controller
	stopSig    chan os.Signal
	cfg        *config.Config
	log        *zap.Logger

	Done chan struct{}
}

type option func(*App)

func WithConfig(cfg *config.Config) option {
	return func(app *App) {
		app.cfg = cfg
	}
}

func WithLogger(log *zap.Logger) option {
	return func(app *App) {
		app.log = log
	}
}

func NewApp(opts ...option) (*App, error) {
	var err error

	app := &App{
		stopSig: make(chan os.Signal, 2),
		Done:    make(chan struct{}),
	}

	for _, opt := range opts {
		opt(app)
	}

	app.cfg, app.log, err = setup(app.cfg, app.log)
	if err != nil {
		return nil, err
	}

	app.repo, err = repository.NewRepository(nil, &app.cfg.PostgresConfig, app.log)
	if err != nil {
		return nil, err
	}

	svcOpts := []service.Option{service.WithLogger(app.log)}

	if app.cfg.CacheEnabled {
		app.rdb = cache.NewRedisClient(app.cfg.RedisConfig)
		svcOpts = append(svcOpts, service.WithCache(cache.New(app.rdb, app.cfg.CacheTTL, app.log)))
	}

	var sink events.Sink = events.LogSink{Log: app.log}
	if app.cfg.AMQPConfig.Enabled {
		app.publisher, err = events.NewPublisher(app.cfg.AMQPConfig.URL, app.cfg.Exchange)
		if err != nil {
			app.log.Warn("event broker unavailable, events will only be logged", zap.Error(err))
		} else {
			sink = app.publisher
		}
	}

	app.dispatcher, err = events.NewDispatcher(sink, app.cfg.PublishPool, app.log)
	if err != nil {
		return nil, err
	}
	svcOpts = append(svcOpts, service.WithDispatcher(app.dispatcher))

	app.service = service.NewService(app.repo, svcOpts...)
	app.controller = controller.NewController(app.service, app.log.Named("controller"))

	return app, nil
}

// setup fills in the configuration and logger when no option supplied them.
func setup(cfg *config.Config, log *zap.Logger) (*config.Config, *zap.Logger, error) {
	var err error

	if cfg == nil {
		cfg, err = config.NewConfig()
		if err != nil {
			return nil, nil, err
		}
	}

	if log == nil {
		log, err = logger.New(cfg.LogLevel, cfg.LogFile)
		if err != nil {
			return nil, nil, err
		}
	}

	return cfg, log, nil
}

func (app *App) Run() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		signal.Notify(app.stopSig, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
		sig := <-app.stopSig
		app.log.Info("received signal", zap.String("signal", sig.String()))
		cancel()
	}()

	server := http.Server{
		Addr: app.cfg.ServerAddress,
		Handler: router.NewRouter(app.controller, router.Options{
			JWTSecret:      app.cfg.JWTSecret,
			AllowedOrigins: app.cfg.AllowedOrigins,
			RequestTimeout: app.cfg.RequestTimeout,
			Users:          app.service,
			Log:            app.log.Named("http"),
		}),
		ReadTimeout:  app.cfg.RequestTimeout,
		WriteTimeout: app.cfg.RequestTimeout + 5*time.Second,
	}

	go func() {
		err := server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.log.Error("http server error", zap.Error(err))
			cancel()
		}
	}()

	app.log.Info("server started, listening for connections", zap.String("address", app.cfg.ServerAddress))
	<-ctx.Done()

	timeout, tcancel := context.WithTimeout(context.Background(), time.Second*10)
	defer tcancel()
	app.log.Info("shutting down http server")
	if err := server.Shutdown(timeout); err != nil {
		app.log.Warn("http server shutdown error", zap.Error(err))
	}

	app.log.Info("flushing events")
	if err := app.dispatcher.Close(5 * time.Second); err != nil {
		app.log.Warn("events left unpublished", zap.Error(err))
	}
	if app.publisher != nil {
		app.publisher.Close()
	}

	if app.rdb != nil {
		if err := app.rdb.Close(); err != nil {
			app.log.Warn("redis closing error", zap.Error(err))
		}
	}

	app.log.Info("closing repository")
	if err := app.repo.Close(); err != nil {
		app.log.Error("repository closing error", zap.Error(err))
	}

	close(app.Done)
	app.log.Info("exiting app")
	app.log.Sync()
}
