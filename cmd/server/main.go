package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"connectrpc.com/connect"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/mmynk/tripsettle/internal/config"
	"github.com/mmynk/tripsettle/internal/lock"
	"github.com/mmynk/tripsettle/internal/metrics"
	"github.com/mmynk/tripsettle/internal/middleware"
	"github.com/mmynk/tripsettle/internal/service"
	"github.com/mmynk/tripsettle/internal/settlement"
	"github.com/mmynk/tripsettle/internal/storage/sqlite"
	"github.com/mmynk/tripsettle/pkg/api/apiconnect"
	"github.com/mmynk/tripsettle/pkg/logging"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logging.Configure(cfg.Log.Level, cfg.Log.Format)

	if err := run(cfg); err != nil {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	// Initialize SQLite storage
	store, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer store.Close()
	slog.Info("Storage initialized", "database", cfg.Database.Path)

	locker, closeLocker, err := newLocker(cfg.Lock)
	if err != nil {
		return err
	}
	defer closeLocker()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	engine := settlement.NewEngine(store, locker, m, settlement.Options{
		Tolerance:        cfg.Settlement.ToleranceDecimal(),
		FailFast:         cfg.Settlement.FailFast,
		RecomputeTimeout: cfg.Settlement.RecomputeTimeout,
	})

	mux := http.NewServeMux()
	interceptors := connect.WithInterceptors(middleware.LoggingInterceptor(m))

	// Register Connect services
	settlementPath, settlementHandler := apiconnect.NewSettlementServiceHandler(
		service.NewSettlementService(engine, service.DefaultRetryPolicy()), interceptors)
	mux.Handle(settlementPath, settlementHandler)

	tripPath, tripHandler := apiconnect.NewTripServiceHandler(service.NewTripService(store), interceptors)
	mux.Handle(tripPath, tripHandler)

	if cfg.Metrics.Enabled {
		mux.Handle(cfg.Metrics.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		slog.Info("Metrics enabled", "path", cfg.Metrics.Path)
	}

	// Wrap with h2c for HTTP/2 without TLS (required for Connect)
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           h2c.NewHandler(corsMiddleware(mux), &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Connect server starting", "address", server.Addr, "url", fmt.Sprintf("http://localhost%s", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("Shutting down", "timeout", cfg.Server.ShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down: %w", err)
	}
	return nil
}

// newLocker builds the per-trip lock selected by configuration.
func newLocker(cfg config.LockConfig) (lock.Locker, func(), error) {
	if cfg.Backend != "redis" {
		slog.Info("Using in-process trip lock")
		return lock.NewKeyedMutex(), func() {}, nil
	}

	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.RedisAddr, err)
	}

	opts := lock.DefaultRedisOptions()
	opts.Expiry = cfg.Expiry
	opts.Tries = cfg.Tries
	opts.RetryDelay = cfg.RetryDelay
	locker, err := lock.NewRedisLocker(client, opts)
	if err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("failed to create redis lock: %w", err)
	}
	slog.Info("Using redis trip lock", "redis_addr", cfg.RedisAddr)
	return locker, func() { client.Close() }, nil
}

// corsMiddleware lets browser dashboards call the Connect endpoints.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Connect-Protocol-Version, Connect-Timeout-Ms")
		w.Header().Set("Access-Control-Expose-Headers", "Connect-Protocol-Version, Connect-Timeout-Ms")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
