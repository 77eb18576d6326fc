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
	"freelance/internal/events"
	"freelance/internal/notifier"
	"freelance/internal/repository"
	"freelance/internal/scheduler"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Bindings of the notifications queue.
var notifierBindings = []string{"bid.*", "project.*", "milestone.*"}

// NotifierApp consumes domain events into notifications and runs the
// notification cleanup job.
type NotifierApp struct {
	repo      *repository.Repository
	rdb       *redis.Client
	consumer  *events.Consumer
	scheduler *scheduler.Manager
	metrics   *http.Server
	stopSig   chan os.Signal
	cfg       *config.Config
	log       *zap.Logger

	Done chan struct{}
}

type notifierOption func(*NotifierApp)

func WithNotifierConfig(cfg *config.Config) notifierOption {
	return func(app *NotifierApp) {
		app.cfg = cfg
	}
}

func WithNotifierLogger(log *zap.Logger) notifierOption {
	return func(app *NotifierApp) {
		app.log = log
	}
}

func NewNotifierApp(opts ...notifierOption) (*NotifierApp, error) {
	var err error

	app := &NotifierApp{
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

	dedup := notifier.Deduper(notifier.NopDeduper{})
	if app.cfg.CacheEnabled {
		app.rdb = cache.NewRedisClient(app.cfg.RedisConfig)
		dedup = notifier.NewRedisDeduper(app.rdb, app.cfg.DedupTTL, app.log.Named("dedup"))
	}

	n := notifier.New(app.repo,
		notifier.LogMailer{From: app.cfg.DefaultFromEmail, Log: app.log.Named("mailer")},
		notifier.WithDeduper(dedup),
		notifier.WithSiteURL(app.cfg.SiteURL),
		notifier.WithLogger(app.log.Named("notifier")),
	)

	app.consumer, err = events.NewConsumer(app.cfg.AMQPConfig.URL, app.cfg.Exchange, app.cfg.Queue, notifierBindings, app.log.Named("consumer"))
	if err != nil {
		app.repo.Close()
		return nil, err
	}
	app.consumer.SetHandler(n.Handle)

	app.scheduler, err = scheduler.NewManager(app.log.Named("scheduler"))
	if err != nil {
		app.consumer.Close()
		app.repo.Close()
		return nil, err
	}
	cleanup := scheduler.NewCleanupJob(app.repo, app.cfg.CleanupInterval, app.cfg.RetainReadFor, app.log.Named("cleanup"))
	if err = app.scheduler.Register(cleanup, true); err != nil {
		app.consumer.Close()
		app.repo.Close()
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	app.metrics = &http.Server{
		Addr:              app.cfg.MetricsAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return app, nil
}

func (app *NotifierApp) Run() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		signal.Notify(app.stopSig, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
		sig := <-app.stopSig
		app.log.Info("received signal", zap.String("signal", sig.String()))
		cancel()
	}()

	go func() {
		err := app.metrics.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.log.Error("metrics server error", zap.Error(err))
		}
	}()

	app.scheduler.Start()

	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		if err := app.consumer.Run(ctx); err != nil {
			app.log.Error("consumer stopped", zap.Error(err))
			cancel()
		}
	}()

	app.log.Info("notifier started")
	<-ctx.Done()
	<-consumerDone

	app.scheduler.Stop()
	app.consumer.Close()

	timeout, tcancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer tcancel()
	if err := app.metrics.Shutdown(timeout); err != nil {
		app.log.Warn("metrics server shutdown error", zap.Error(err))
	}

	if app.rdb != nil {
		if err := app.rdb.Close(); err != nil {
			app.log.Warn("redis closing error", zap.Error(err))
		}
	}

	if err := app.repo.Close(); err != nil {
		app.log.Error("repository closing error", zap.Error(err))
	}

	close(app.Done)
	app.log.Info("exiting notifier")
	app.log.Sync()
}
