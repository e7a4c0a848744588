package app

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/chils-store/internal/domain/order"
	"github.com/xenking/chils-store/internal/domain/payment"
	"github.com/xenking/chils-store/internal/domain/product"
	"github.com/xenking/chils-store/internal/domain/user"
	"github.com/xenking/chils-store/internal/events"
	"github.com/xenking/chils-store/internal/handler"
	"github.com/xenking/chils-store/internal/repository"
	"github.com/xenking/chils-store/internal/session"
	"github.com/xenking/chils-store/pkg/health"
	"github.com/xenking/chils-store/pkg/httpmiddleware"
)

const serviceName = "chils-api"

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr),
		zap.String("env", cfg.Env),
	)

	// PostgreSQL pool + migrations.
	pool, err := repository.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}
	store := repository.NewStore(pool)
	if err := store.Ping(ctx); err != nil {
		lg.Warn("Database not ready at startup", zap.Error(err))
	}

	// Redis-backed sessions.
	redisOpts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return errors.Wrap(err, "parse redis url")
	}
	rdb := redis.NewClient(redisOpts)
	defer func() { _ = rdb.Close() }()
	sessionStore := session.NewRedisStore(rdb)

	// Domain events.
	var publisher events.Publisher = events.Nop{}
	if len(cfg.Kafka.Brokers) > 0 {
		kp := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, serviceName)
		defer func() {
			if err := kp.Close(); err != nil {
				lg.Warn("Close event publisher", zap.Error(err))
			}
		}()
		publisher = kp
		lg.Info("Publishing domain events",
			zap.Strings("brokers", cfg.Kafka.Brokers),
			zap.String("topic", cfg.Kafka.Topic),
		)
	}

	// Health check service.
	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, health.PingCheck(store))
	healthSvc.AddReadinessCheck("redis", 2*time.Second, health.PingCheck(sessionStore))
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	if cfg.Payment.CustomerConfirm {
		lg.Warn("Customer payment confirmation is enabled; disable it when the provider webhook is live")
	}
	root := routes(ctx, cfg, deps{
		store:          store,
		sessions:       sessionStore,
		publisher:      publisher,
		tracerProvider: m.TracerProvider(),
		meterProvider:  m.MeterProvider(),
	}, healthSvc)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: otelhttp.NewHandler(root, serviceName,
			otelhttp.WithTracerProvider(m.TracerProvider()),
			otelhttp.WithMeterProvider(m.MeterProvider()),
		),
	}

	// Requests inherit the base logger but outlive ctx while draining.
	server.BaseContext = func(net.Listener) context.Context { return context.WithoutCancel(ctx) }

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		lg.Info("Server listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server")
		}
		return nil
	})
	// Graceful shutdown: wait for cancellation, drain, then stop.
	g.Go(func() error {
		<-gCtx.Done()
		healthSvc.SetReady(false)
		if ctx.Err() != nil {
			lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
			time.Sleep(cfg.Graceful.ReadinessDelay)
		}

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		return nil
	})
	return g.Wait()
}

type deps struct {
	store          *repository.Store
	sessions       session.Store
	publisher      events.Publisher
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
}

// routes wires the domain services and returns the API and probe endpoints
// behind the middleware chain.
func routes(ctx context.Context, cfg *Config, d deps, probes *health.Health) http.Handler {
	users := user.NewService(d.store.Users(), user.NewBcryptHasher(cfg.Auth.BcryptCost))
	products := product.NewService(d.store.Products())
	orders := order.NewService(d.store.OrderUnit(), d.store.Orders(), d.store.Products(), users,
		order.WithPublisher(d.publisher),
		order.WithTracerProvider(d.tracerProvider),
		order.WithMeterProvider(d.meterProvider),
	)
	payments := payment.NewService(d.store.PaymentUnit(), d.store.Payments(), payment.NewQRGenerator(), cfg.Payment.Recipient,
		payment.WithPublisher(d.publisher),
	)
	sessions := session.NewManager(d.sessions, session.CookieConfig{
		Name:   cfg.Session.CookieName,
		TTL:    cfg.Session.TTL,
		Secure: cfg.Production(),
	})

	api := handler.New(handler.Config{
		Production:      cfg.Production(),
		WebhookSecret:   cfg.Payment.WebhookSecret,
		CustomerConfirm: cfg.Payment.CustomerConfirm,
		AuthRateLimit: httpmiddleware.RateLimitConfig{
			Max:    cfg.AuthRateLimit.Max,
			Window: cfg.AuthRateLimit.Window,
		},
		Ready: d.store.Ready,
	}, users, products, orders, payments, sessions)

	// Mux: health endpoints + API routes on one server.
	mux := http.NewServeMux()
	mux.HandleFunc("/livez", probes.LiveEndpoint)
	mux.HandleFunc("/readyz", probes.ReadyEndpoint)
	mux.Handle("/api/", api.Routes(ctx))

	return httpmiddleware.Wrap(mux,
		httpmiddleware.Recovery(),
		httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
			Max:    cfg.RateLimit.Max,
			Window: cfg.RateLimit.Window,
			Skip:   httpmiddleware.PathPrefixes("/livez", "/readyz"),
		}),
		httpmiddleware.RequestID(),
		httpmiddleware.InjectLogger(zctx.From(ctx)),
		httpmiddleware.LogRequests(),
		httpmiddleware.Timeout(cfg.RequestTimeout),
	)
}
