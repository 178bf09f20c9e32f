package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/feastline/orderflow/internal/domain/delivery"
	"github.com/feastline/orderflow/internal/domain/order"
	"github.com/feastline/orderflow/internal/domain/payment"
	"github.com/feastline/orderflow/internal/events"
	"github.com/feastline/orderflow/internal/handler"
	"github.com/feastline/orderflow/internal/storage/postgres"
	"github.com/feastline/orderflow/pkg/health"
	"github.com/feastline/orderflow/pkg/httpmiddleware"
)

// eventChannel is the publisher side plus the wiring the consumer needs.
type eventChannel interface {
	events.Publisher
	events.Subscriber
}

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	// PostgreSQL pool + migrations.
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	// Health check service.
	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.Start(ctx, 10*time.Second)

	// Order event channel: AMQP when a broker is configured, otherwise the
	// in-process bus.
	var channel eventChannel
	if cfg.Events.AMQPURL != "" {
		amqpCh, err := events.DialAMQP(cfg.Events.AMQPURL, lg)
		if err != nil {
			return errors.Wrap(err, "dial amqp")
		}
		defer func() { _ = amqpCh.Close() }()
		channel = amqpCh
	} else {
		bus := events.NewBus(lg, events.BusConfig{
			QueueSize:   cfg.Events.QueueSize,
			MaxAttempts: cfg.Events.MaxAttempts,
			RetryDelay:  cfg.Events.RetryDelay,
		})
		defer bus.Close()
		channel = bus
	}

	// Repositories.
	restaurantRepo := postgres.NewRestaurantRepository(pool)
	orderRepo := postgres.NewOrderRepository(pool)
	paymentRepo := postgres.NewPaymentRepository(pool)
	deliveryRepo := postgres.NewDeliveryRepository(pool)
	scope := postgres.NewTxScope(pool)

	// Domain services.
	orderSvc := order.NewService(orderRepo, restaurantRepo, scope, channel)
	paymentSvc := payment.NewService(paymentRepo, orderRepo, &payment.SimulatedGateway{
		SuccessRate: cfg.Gateway.SuccessRate,
		Delay:       cfg.Gateway.Delay,
	}, scope)
	deliverySvc := delivery.NewService(deliveryRepo, orderRepo, restaurantRepo, scope)

	// Reactive delivery creation off ORDER_ACCEPTED.
	channel.Subscribe(delivery.NewConsumer(deliverySvc).Handle)

	// Router: health endpoints + API routes on one server.
	router := chi.NewRouter()
	router.Get("/livez", healthSvc.LiveEndpoint)
	router.Get("/readyz", healthSvc.ReadyEndpoint)
	handler.NewServer(orderSvc, paymentSvc, deliverySvc).Routes(router)

	handlerChain := httpmiddleware.Wrap(router,
		httpmiddleware.Recovery(),
		cors.Handler(cors.Options{
			AllowedOrigins:   cfg.CORS.Origins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders:   []string{"Content-Type", "X-User-ID"},
			AllowCredentials: cfg.CORS.AllowCredentials,
			MaxAge:           86400,
		}),
		httpmiddleware.RateLimit(ctx, httpmiddleware.RateLimitConfig{
			Max:    cfg.RateLimit.Max,
			Window: cfg.RateLimit.Window,
		}),
		middleware.RequestID,
		httpmiddleware.InjectLogger(zctx.From(ctx)),
		httpmiddleware.LogRequests(),
	)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: otelhttp.NewHandler(handlerChain, "orderflow-api",
			otelhttp.WithTracerProvider(m.TracerProvider()),
			otelhttp.WithMeterProvider(m.MeterProvider()),
		),
	}

	healthSvc.SetReady(true)

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}
