package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/hlog"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/offline-shell/pkg/cache"
	"github.com/Sternrassler/offline-shell/pkg/clients"
	"github.com/Sternrassler/offline-shell/pkg/config"
	"github.com/Sternrassler/offline-shell/pkg/connectivity"
	"github.com/Sternrassler/offline-shell/pkg/drain"
	"github.com/Sternrassler/offline-shell/pkg/logging"
	"github.com/Sternrassler/offline-shell/pkg/metrics"
	"github.com/Sternrassler/offline-shell/pkg/network"
	"github.com/Sternrassler/offline-shell/pkg/notify"
	"github.com/Sternrassler/offline-shell/pkg/prefetch"
	"github.com/Sternrassler/offline-shell/pkg/storage"
	"github.com/Sternrassler/offline-shell/pkg/worker"
)

func main() {
	srv, err := config.ParseServer()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration: %v\n", err)
		os.Exit(1)
	}
	logging.Setup(logging.Config{
		Level:  logging.LogLevel(srv.LogLevel),
		Pretty: srv.LogPretty,
		Output: os.Stderr,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, srv); err != nil {
		log.Fatal().Err(err).Msg("offline-shell stopped")
	}
}

func run(ctx context.Context, srv config.Server) error {
	cfg, err := config.Load(srv.ConfigPath)
	if err != nil {
		return err
	}

	a, err := newApp(ctx, srv, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", srv.Port),
		Handler:           a.router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", httpServer.Addr).
			Str("upstream", srv.Upstream).
			Str("storage", srv.Storage).
			Str("version", cfg.Generation.VersionTag).
			Msg("Starting offline-shell")
		errCh <- httpServer.ListenAndServe()
	}()

	go a.start(ctx)

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), srv.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("HTTP shutdown incomplete")
	}
	if err := a.worker.Close(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("Pending worker tasks cancelled")
	}
	return nil
}

// app holds the wired components of one process.
type app struct {
	srv     config.Server
	cfg     config.Config
	redis   *redis.Client
	backend storage.Backend
	monitor *connectivity.Monitor
	probe   *network.Client
	worker  *worker.Worker
}

func newApp(ctx context.Context, srv config.Server, cfg config.Config) (*app, error) {
	a := &app{srv: srv, cfg: cfg}

	if srv.UsesRedis() {
		a.redis = redis.NewClient(&redis.Options{Addr: srv.RedisURL})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := a.redis.Ping(pingCtx).Err(); err != nil {
			a.redis.Close()
			return nil, fmt.Errorf("connect to redis at %s: %w", srv.RedisURL, err)
		}
		log.Info().Str("addr", srv.RedisURL).Msg("Connected to Redis")
	}

	backend, err := openBackend(srv, a.redis)
	if err != nil {
		a.close()
		return nil, err
	}
	a.backend = backend

	a.monitor = connectivity.NewMonitor(srv.OfflineAfter, logging.NewLogger("connectivity"))

	ncfg := network.Config{
		AppOrigin: cfg.AppOrigin,
		Upstream:  srv.Upstream,
		Timeout:   srv.FetchTimeout,
		Retry:     network.DefaultRetryConfig(),
	}
	client, err := network.New(ncfg, network.WithObserver(a.monitor))
	if err != nil {
		a.close()
		return nil, err
	}
	// probes report their outcome to the monitor themselves
	if a.probe, err = network.New(ncfg); err != nil {
		a.close()
		return nil, err
	}

	installer := client.WithRetry(network.InstallRetryConfig(srv.InstallAttempts))
	manager := cache.NewManager(backend, cfg.Generation,
		cache.WithFetcher(prefetch.NewBatchFetcher(installer, prefetch.DefaultConfig())),
		cache.WithLogger(logging.NewLogger("cache")),
	)

	var host clients.Host = clients.NewMemoryHost()
	if srv.Clients == config.StorageRedis {
		host = clients.NewRedisHost(a.redis, srv.RedisPrefix)
	}

	var notifier notify.Notifier = notify.NewLogNotifier(logging.NewLogger("notifications"))
	if srv.Notifier == config.StorageRedis {
		notifier = notify.NewRedisNotifier(a.redis, srv.RedisPrefix)
	}

	drainer, err := drain.New(manager, client, cfg)
	if err != nil {
		a.close()
		return nil, err
	}

	a.worker, err = worker.New(cfg, worker.Deps{
		Manager:    manager,
		Network:    client,
		Dispatcher: notify.NewDispatcher(notifier, host, cfg),
		Drainer:    drainer,
		Clients:    host,
		Monitor:    a.monitor,
	})
	if err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func openBackend(srv config.Server, rdb *redis.Client) (storage.Backend, error) {
	switch srv.Storage {
	case config.StorageRedis:
		return storage.NewRedisBackend(rdb, srv.RedisPrefix), nil
	case config.StorageSQLite:
		return storage.NewSQLiteBackend(srv.SQLitePath)
	case config.StorageLevelDB:
		return storage.NewLevelDBBackend(srv.LevelDBPath)
	default:
		return storage.NewMemoryBackend(), nil
	}
}

// start installs the generation and keeps probing the upstream while it
// is unreachable. It returns when ctx is done.
func (a *app) start(ctx context.Context) {
	res, err := a.worker.Dispatch(ctx, worker.Event{Kind: worker.EventInstall})
	if err != nil {
		log.Error().Err(err).Str("state", string(res.State)).Msg("Install failed - retry with POST /_worker/install")
	}

	a.monitor.Probe(ctx, a.srv.ProbeInterval, func(ctx context.Context) error {
		resp, err := a.probe.Get(ctx, a.cfg.AppOrigin+"/")
		if err != nil {
			return err
		}
		resp.Body.Close()
		return nil
	})
}

func (a *app) router() http.Handler {
	r := chi.NewRouter()
	r.Use(hlog.NewHandler(log.Logger))
	r.Use(hlog.RequestIDHandler("req_id", "X-Request-Id"))
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Debug().
			Str("method", r.Method).
			Stringer("url", r.URL).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("Request")
	}))

	r.Get("/health", a.health)
	r.Handle("/metrics", metrics.Handler())
	r.Mount("/_worker", a.worker.ControlRouter())
	r.Handle("/*", a.worker)
	return r
}

func (a *app) health(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	body := "OK"
	if a.redis != nil {
		if err := a.redis.Ping(r.Context()).Err(); err != nil {
			status = http.StatusServiceUnavailable
			body = "redis unavailable"
		}
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	fmt.Fprintf(w, "%s\nstate: %s\nonline: %t\n", body, a.worker.State(), a.monitor.Online())
}

func (a *app) close() {
	if a.backend != nil {
		if err := a.backend.Close(); err != nil {
			log.Warn().Err(err).Msg("Closing storage failed")
		}
	}
	if a.redis != nil {
		a.redis.Close()
	}
}
