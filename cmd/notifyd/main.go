// notifyd is the notification dispatch service. It wires the Postgres
// notification store, the Mongo template store, the Redis delivery queue,
// the provider adapters and the retry sweeper behind a small HTTP surface
// for sends, event ingestion and health.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/notifykit/pkg/attachment"
	"github.com/dmitrymomot/notifykit/pkg/config"
	"github.com/dmitrymomot/notifykit/pkg/dispatch"
	"github.com/dmitrymomot/notifykit/pkg/event"
	"github.com/dmitrymomot/notifykit/pkg/health"
	"github.com/dmitrymomot/notifykit/pkg/logger"
	"github.com/dmitrymomot/notifykit/pkg/mongo"
	"github.com/dmitrymomot/notifykit/pkg/notification"
	"github.com/dmitrymomot/notifykit/pkg/pg"
	"github.com/dmitrymomot/notifykit/pkg/provider"
	"github.com/dmitrymomot/notifykit/pkg/queue"
	"github.com/dmitrymomot/notifykit/pkg/redis"
	"github.com/dmitrymomot/notifykit/pkg/sweeper"
	"github.com/dmitrymomot/notifykit/pkg/template"
)

// AppConfig holds service-level settings; infrastructure packages load
// their own sections from the environment.
type AppConfig struct {
	Environment  string        `env:"APP_ENV" envDefault:"development"`
	HTTPAddr     string        `env:"HTTP_ADDR" envDefault:":8080"`
	TemplatesDir string        `env:"TEMPLATES_DIR" envDefault:"templates"`
	MongoDB      string        `env:"MONGODB_DATABASE" envDefault:"notifykit"`
	OpsMailbox   string        `env:"OPS_MAILBOX"`
	EmailVendors string        `env:"VENDORS_EMAIL" envDefault:"postmark,smtp"`
	SMSVendors   string        `env:"VENDORS_SMS" envDefault:"twilio,kavenegar"`
	PushVendors  string        `env:"VENDORS_PUSH" envDefault:"fcm,webpush"`
	S3Enabled    bool          `env:"ATTACHMENT_S3_ENABLED" envDefault:"false"`
	WorkerSlots  int           `env:"WORKER_MAX_CONCURRENT" envDefault:"8"`
	ShutdownWait time.Duration `env:"SHUTDOWN_WAIT" envDefault:"15s"`
}

func (c AppConfig) vendors(kind string) []string {
	var raw string
	switch kind {
	case "email":
		raw = c.EmailVendors
	case "sms":
		raw = c.SMSVendors
	case "push":
		raw = c.PushVendors
	}
	var out []string
	for _, v := range strings.Split(raw, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func main() {
	var appCfg AppConfig
	config.MustLoad(&appCfg)

	log := logger.New(logger.WithEnvironment(appCfg.Environment, "notifyd"))
	logger.SetAsDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, appCfg, log); err != nil {
		log.Error("notifyd exited with error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context, appCfg AppConfig, log *slog.Logger) error {
	// Notification store on Postgres.
	var pgCfg pg.Config
	config.MustLoad(&pgCfg)
	pool, err := pg.Connect(ctx, pgCfg)
	if err != nil {
		return err
	}
	defer pool.Close()
	if err := pg.Migrate(ctx, pool, pgCfg, log); err != nil {
		return err
	}
	store := notification.NewPostgresStore(pool)

	// Template store on Mongo, seeded from the templates directory.
	var mongoCfg mongo.Config
	config.MustLoad(&mongoCfg)
	db, err := mongo.NewWithDatabase(ctx, mongoCfg, appCfg.MongoDB)
	if err != nil {
		return err
	}
	defer func() { _ = db.Client().Disconnect(context.Background()) }()
	templates := template.NewMongoStore(db)
	if err := templates.EnsureIndexes(ctx); err != nil {
		return err
	}
	if _, err := os.Stat(appCfg.TemplatesDir); err == nil {
		seeded, err := template.LoadDir(ctx, templates, appCfg.TemplatesDir)
		if err != nil {
			return err
		}
		log.Info("seeded templates", slog.Int("count", seeded))
	}

	// Delivery queue on Redis.
	var redisCfg redis.Config
	config.MustLoad(&redisCfg)
	redisClient, err := redis.Connect(ctx, redisCfg)
	if err != nil {
		return err
	}
	defer func() { _ = redisClient.Close() }()
	jobs := queue.NewRedisStorage(redisClient)

	// Provider adapters, registry and selector.
	adapters, err := buildAdapters(ctx, appCfg, log)
	if err != nil {
		return err
	}
	registry, err := provider.NewRegistry(adapters...)
	if err != nil {
		return err
	}
	var selectorCfg provider.SelectorConfig
	config.MustLoad(&selectorCfg)
	selector := provider.NewSelector(registry, selectorCfg,
		provider.WithOverrideSource(store.ProviderOverride),
		provider.WithSelectorLogger(log))

	// Dispatcher with queue, renderer and optional attachment fetcher.
	resolver := template.NewResolver(templates, template.WithResolverLogger(log))
	opts := []dispatch.Option{
		dispatch.WithQueue(queue.NewEnqueuer(jobs)),
		dispatch.WithLogger(log),
	}
	if appCfg.S3Enabled {
		var s3Cfg attachment.S3Config
		config.MustLoad(&s3Cfg)
		fetcher, err := attachment.NewS3Fetcher(ctx, s3Cfg)
		if err != nil {
			return err
		}
		opts = append(opts, dispatch.WithAttachmentFetcher(fetcher))
	}
	dispatcher, err := dispatch.New(store, resolver, selector, opts...)
	if err != nil {
		return err
	}

	// Background delivery worker and retry sweeper.
	worker, err := queue.NewWorker(jobs, dispatcher.Execute,
		queue.WithMaxConcurrent(appCfg.WorkerSlots),
		queue.WithWorkerLogger(log.With(logger.Component("worker"))))
	if err != nil {
		return err
	}
	var sweepCfg sweeper.Config
	config.MustLoad(&sweepCfg)
	sweep, err := sweeper.New(store, dispatcher, sweepCfg,
		sweeper.WithLogger(log.With(logger.Component("sweeper"))))
	if err != nil {
		return err
	}

	// Event consumer with the built-in domain handlers.
	consumer := event.NewConsumer(event.WithConsumerLogger(log.With(logger.Component("events"))))
	consumer.Register(
		event.NewUserCreatedHandler(dispatcher),
		event.NewOrderCreatedHandler(dispatcher),
		event.NewBookingCreatedHandler(dispatcher, appCfg.OpsMailbox),
	)

	checker := health.NewAggregator(registry, selector, health.WithLogger(log))

	srv := &http.Server{
		Addr:              appCfg.HTTPAddr,
		Handler:           newRouter(dispatcher, consumer, checker, store, log),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(worker.Run(ctx))
	g.Go(sweep.Run(ctx))
	g.Go(func() error {
		log.Info("http server listening", slog.String("addr", appCfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), appCfg.ShutdownWait)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
