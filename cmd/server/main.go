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

	"cloud.google.com/go/pubsub"
	"github.com/DoyleJ11/queue-draft-backend/internal/config"
	"github.com/DoyleJ11/queue-draft-backend/internal/dispatch"
	"github.com/DoyleJ11/queue-draft-backend/internal/httpapi"
	"github.com/DoyleJ11/queue-draft-backend/internal/hub"
	"github.com/DoyleJ11/queue-draft-backend/internal/lobby"
	"github.com/DoyleJ11/queue-draft-backend/internal/logging"
	"github.com/DoyleJ11/queue-draft-backend/internal/notify"
	"github.com/DoyleJ11/queue-draft-backend/internal/notify/gpubsub"
	"github.com/DoyleJ11/queue-draft-backend/internal/recorder"
	"github.com/DoyleJ11/queue-draft-backend/internal/stats"
	"github.com/DoyleJ11/queue-draft-backend/internal/store"
	"github.com/DoyleJ11/queue-draft-backend/internal/store/memstore"
	"github.com/DoyleJ11/queue-draft-backend/internal/store/migrations"
	"github.com/DoyleJ11/queue-draft-backend/internal/store/pgstore"
	"github.com/DoyleJ11/queue-draft-backend/internal/ws"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(2)
	}
	log, err := logging.New(cfg.LogLevel, cfg.LogDev)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(2)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server stopped", zap.Error(err))
		os.Exit(1)
	}
	log.Info("server stopped")
}

func openStore(ctx context.Context, cfg config.Config, log *zap.Logger) (store.Store, error) {
	if cfg.StoreDriver == config.DriverMemory {
		log.Warn("using in-memory store; records are lost on restart")
		return memstore.New(), nil
	}
	if cfg.RunMigrations {
		if err := migrations.Up(ctx, cfg.DatabaseURL); err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
		log.Info("migrations applied")
	}
	return pgstore.Open(ctx, cfg.DatabaseURL, log.Named("pgstore"))
}

func run(ctx context.Context, cfg config.Config, log *zap.Logger) error {
	log.Info("starting", zap.Any("config", cfg.Redacted()))

	st, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer st.Close()
	ready := []httpapi.Pinger{st}

	var cache stats.Cache
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		defer rdb.Close()
		rc := stats.NewRedisCache(rdb, "queue-draft:", cfg.LeaderboardCacheTTL)
		cache = rc
		ready = append(ready, rc)
	}
	query := stats.New(st, cache, log.Named("stats"))
	rec := recorder.New(st, query, log.Named("recorder"))

	notifiers := notify.Fanout{notify.NewLog(log.Named("events"))}
	var (
		psClient  *pubsub.Client
		publisher *gpubsub.Publisher
	)
	if cfg.PubsubProjectID != "" {
		psClient, err = gpubsub.Dial(ctx, cfg.PubsubProjectID, cfg.CredentialsFile, log)
		if err != nil {
			return fmt.Errorf("pubsub: %w", err)
		}
		defer psClient.Close()
		if cfg.PubsubEventsTopic != "" {
			publisher = gpubsub.NewPublisher(psClient, cfg.PubsubEventsTopic, log.Named("pubsub"))
			notifiers = append(notifiers, publisher)
		}
	}

	settings := cfg.Settings()
	factory := func(ctx context.Context, id int) *lobby.Queue {
		return lobby.NewQueue(ctx, id, settings, lobby.Deps{
			Recorder: rec,
			Points:   query,
			Notifier: notifiers,
			Logger:   log.Named("queue"),
		})
	}
	h := hub.NewHub(context.Background(), factory, log.Named("hub"), hub.WithMaxQueueID(cfg.MaxQueueID))
	defer h.Shutdown()
	for _, id := range cfg.QueueIDs {
		if _, err := h.GetOrCreate(ctx, id); err != nil {
			return fmt.Errorf("queue %d: %w", id, err)
		}
	}

	d := dispatch.New(h, dispatch.NewAdminSet(cfg.AdminIDs), log.Named("dispatch"))
	api := httpapi.New(h, d, query, log.Named("http"), ready...)
	wsHandler := ws.NewHandler(h, d, ws.Options{EventsPerSecond: cfg.WSEventsPerSecond}, log.Named("ws"))
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpapi.SetupRoutes(api, wsHandler),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if psClient != nil && cfg.PubsubCommandSubscription != "" {
		sub := gpubsub.NewSubscriber(psClient, cfg.PubsubCommandSubscription, d, log.Named("pubsub"))
		g.Go(func() error { return sub.Start(gctx) })
	}
	err = g.Wait()

	// Queues stop before the publisher so their last events still go out.
	h.Shutdown()
	if publisher != nil {
		publisher.Close()
	}
	return err
}
