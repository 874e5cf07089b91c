package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"wellsite/internal/booking"
	"wellsite/internal/booking/kafkapub"
	"wellsite/internal/booking/pgstore"
	"wellsite/internal/booking/redisstore"
	"wellsite/internal/cachestore"
	"wellsite/internal/config"
	"wellsite/internal/logging"
	"wellsite/internal/offline"
	"wellsite/internal/outbox"
	"wellsite/internal/server"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", getenvDefault("WELLSITE_CONFIG", "/wellsite.yaml"), "path to wellsite.yaml")
	flag.Parse()

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger, err := logging.New(cfg.Logging.ZapLevel(), cfg.Logging.Production)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logger.Sync()

	if err := run(configPath, cfg, logger); err != nil {
		logger.Fatal("wellsite stopped", zap.Error(err))
	}
}

func run(configPath string, cfg config.Config, logger *zap.Logger) error {
	if cfg.Logging.Production {
		gin.SetMode(gin.ReleaseMode)
	}

	var closers []io.Closer
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i].Close(); err != nil {
				logger.Warn("close", zap.Error(err))
			}
		}
	}()

	store, err := cachestore.Open(cfg.Cache.Path, cachestore.Options{RAMMax: cfg.Cache.RAMMaxBytes(), Log: logger})
	if err != nil {
		return err
	}
	closers = append(closers, store)

	box, err := outbox.Open(cfg.Sync.Path)
	if err != nil {
		return err
	}
	closers = append(closers, box)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	submitter, err := openSubmitter(cfg, logger, &closers)
	if err != nil {
		return err
	}
	sessions, err := openSessions(ctx, cfg, &closers)
	if err != nil {
		return err
	}

	confirmer := booking.NewConfirmer(submitter, box, booking.ConfirmerOptions{
		SubmitTimeout: cfg.Booking.SubmitTimeoutDuration(),
		SyncEvery:     cfg.Sync.EveryDuration(),
		MaxAttempts:   cfg.Sync.MaxAttempts,
	}, logger.Named("confirm"))
	svc := booking.NewSessionService(sessions, cfg.Catalog, confirmer, cfg.Booking.SessionTTLDuration(), logger.Named("booking"))
	defer svc.Close()

	router, err := newRouter(cfg, store, logger)
	if err != nil {
		return err
	}
	srv := server.New(svc, router, server.Options{
		RatePerMinute: cfg.Server.RateLimit.PerMinute,
		Burst:         cfg.Server.RateLimit.Burst,
		Log:           logger.Named("http"),
	})
	defer func() { srv.Router().Close() }()

	// Requests pass through until the router is active.
	go func() {
		if err := install(ctx, router); err != nil {
			logger.Error("cache router install", zap.Error(err))
		}
	}()

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-hup:
				reload(ctx, configPath, store, srv, logger)
			}
		}
	}()

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	httpSrv := &http.Server{
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("wellsite listening", zap.String("addr", addr), zap.String("origin", cfg.Server.Origin), zap.String("cacheVersion", cfg.Cache.Version))
		err := httpSrv.Serve(ln)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}

func newRouter(cfg config.Config, store *cachestore.Store, logger *zap.Logger) (*offline.Router, error) {
	opts := offline.OptionsFromConfig(cfg)
	opts.Log = logger.Named("cache")
	return offline.New(store, opts)
}

func install(ctx context.Context, r *offline.Router) error {
	if err := r.OnInstall(ctx); err != nil {
		return err
	}
	return r.OnActivate(ctx)
}

// reload re-reads the cache section of the config and brings up a router for
// it. The old router keeps serving until the new one is active. Booking
// settings need a restart.
func reload(ctx context.Context, configPath string, store *cachestore.Store, srv *server.Server, logger *zap.Logger) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		logger.Error("reload config", zap.Error(err))
		return
	}
	next, err := newRouter(cfg, store, logger)
	if err != nil {
		logger.Error("reload router", zap.Error(err))
		return
	}
	if err := install(ctx, next); err != nil {
		logger.Error("reload install", zap.Error(err))
		next.Close()
		return
	}
	prev := srv.SwapRouter(next)
	if prev != nil {
		prev.Close()
	}
	logger.Info("cache router reloaded", zap.String("cacheVersion", cfg.Cache.Version))
}

func openSubmitter(cfg config.Config, logger *zap.Logger, closers *[]io.Closer) (booking.Submitter, error) {
	switch cfg.Booking.Submitter {
	case "postgres":
		repo, err := pgstore.NewRepository(cfg.Database.URL, cfg.Catalog)
		if err != nil {
			return nil, err
		}
		*closers = append(*closers, repo)
		return repo, nil
	case "kafka":
		pub := kafkapub.New(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		*closers = append(*closers, pub)
		return pub, nil
	default:
		return booking.LogSubmitter{Log: logger.Named("submit")}, nil
	}
}

func openSessions(ctx context.Context, cfg config.Config, closers *[]io.Closer) (booking.SessionStore, error) {
	if cfg.Booking.Sessions != "redis" {
		return booking.NewMemoryStore(), nil
	}
	rs, err := redisstore.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return nil, err
	}
	*closers = append(*closers, rs)
	return rs, nil
}

func getenvDefault(name, def string) string {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	return v
}
