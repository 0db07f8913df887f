package fleettrackd

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"fleettrack/internal/general/config"
	"fleettrack/internal/general/jwt"
	"fleettrack/internal/general/livefeed"
	"fleettrack/internal/general/logger"
	"fleettrack/internal/general/metrics"
	"fleettrack/internal/general/mw"
	"fleettrack/internal/general/postgres"
	"fleettrack/internal/general/rabbitmq"
	"fleettrack/internal/general/redis"
	dispatchhandler "fleettrack/internal/software/dispatch/handler"
	dispatchservice "fleettrack/internal/software/dispatch/service"
	fleethandler "fleettrack/internal/software/fleet/handler"
	fleetservice "fleettrack/internal/software/fleet/service"
	geofencehandler "fleettrack/internal/software/geofence/handler"
	geofenceservice "fleettrack/internal/software/geofence/service"
	trackinghandler "fleettrack/internal/software/tracking/handler"
	trackingservice "fleettrack/internal/software/tracking/service"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
)

// Run boots the fleet tracking service and blocks until ctx is cancelled
// or the HTTP server fails. maxConcurrent overrides the configured
// in-flight request cap when positive.
func Run(ctx context.Context, configPath string, maxConcurrent int) error {
	log := logger.New("fleettrackd")
	defer log.Sync()
	ctx = log.WithRequestID(ctx, "startup-001")

	cfg, err := config.LoadFromFile(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if maxConcurrent > 0 {
		cfg.HTTP.MaxConcurrent = maxConcurrent
	}

	metrics.RegisterDefault()

	pool, err := postgres.NewPool(ctx, cfg, log)
	if err != nil {
		log.Error(ctx, "db_connection_failed", "Failed to initialize Postgres pool", err, nil)
		return err
	}
	defer pool.Close()

	rmq := rabbitmq.NewClient(ctx, cfg, log)
	if err := rmq.Connect(); err != nil {
		log.Error(ctx, "rabbitmq_connection_failed", "Failed to connect to RabbitMQ", err, nil)
		return err
	}
	defer rmq.Close()

	idem := redis.NewIdempotencyStore(cfg)
	defer idem.Close()
	if err := idem.Ping(ctx); err != nil {
		// dispatch still works through the database backstop
		log.Warn(ctx, "redis_unreachable", "Idempotency store unreachable at startup", map[string]any{
			"addr": cfg.Redis.Addr,
		})
	}

	jwtManager := jwt.NewManager(cfg.JWT.SecretKey, 2*time.Hour)

	uow := postgres.NewUnitOfWork(pool)
	deviceRepo := postgres.NewDeviceRepo(pool)
	locationRepo := postgres.NewLocationRepo(pool)
	geofenceRepo := postgres.NewGeofenceRepo(pool)
	commandRepo := postgres.NewCommandRepo(pool)
	alertRepo := postgres.NewAlertRepo(pool)

	feed := livefeed.NewHub(log, jwtManager)
	limiter := mw.NewDeviceRateLimiter(rate.Limit(cfg.Ingest.RatePerSecond), cfg.Ingest.Burst)

	trackingSvc := trackingservice.NewTrackingService(log, uow, deviceRepo, locationRepo, feed, limiter)
	geofenceSvc := geofenceservice.NewGeofenceService(log, geofenceRepo, deviceRepo, locationRepo)
	dispatchSvc := dispatchservice.NewDispatchService(log, deviceRepo, commandRepo, rmq, idem)
	fleetSvc := fleetservice.NewFleetService(log, deviceRepo, locationRepo, alertRepo, cfg.FreshnessWindow())

	// background consumer applying worker acks to command rows
	ackConsumer := dispatchservice.NewAckConsumer(log, rmq, commandRepo)
	go ackConsumer.Run(ctx)

	mux := http.NewServeMux()
	trackinghandler.NewTrackingHTTPHandler(trackingSvc, log, jwtManager).RegisterRoutes(mux)
	geofencehandler.NewGeofenceHTTPHandler(geofenceSvc, log, jwtManager).RegisterRoutes(mux)
	dispatchhandler.NewDispatchHTTPHandler(dispatchSvc, log, jwtManager).RegisterRoutes(mux)
	fleethandler.NewFleetHTTPHandler(fleetSvc, log, jwtManager).RegisterRoutes(mux)

	mux.HandleFunc("GET /ws/live", feed.ServeWS)
	mux.Handle("GET /metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	limitedHandler := withConcurrencyLimit(cfg.HTTP.MaxConcurrent, mux)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           limitedHandler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	log.Info(ctx, "service_started",
		fmt.Sprintf("Fleet tracking service started on port %d", cfg.HTTP.Port),
		map[string]any{"port": cfg.HTTP.Port, "max_concurrent": cfg.HTTP.MaxConcurrent},
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shCtx); err != nil && err != http.ErrServerClosed {
			log.Error(ctx, "http_shutdown_failed", "Failed to gracefully shut down HTTP server", err, nil)
		}
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			log.Error(ctx, "http_server_error", "HTTP server terminated with error", err, map[string]any{"port": cfg.HTTP.Port})
			return err
		}
	}
	return nil
}

// withConcurrencyLimit wraps an http.Handler with a semaphore-based
// limiter bounding in-flight requests.
func withConcurrencyLimit(n int, next http.Handler) http.Handler {
	if n <= 0 {
		return next
	}
	sem := make(chan struct{}, n)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case sem <- struct{}{}:
			defer func() { <-sem }()
			next.ServeHTTP(w, r)
		case <-r.Context().Done():
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		}
	})
}
