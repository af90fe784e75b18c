package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	appcfg "github.com/xfactor-puzzles/triviatoe/internal/config"
	"github.com/xfactor-puzzles/triviatoe/internal/coordinator"
	"github.com/xfactor-puzzles/triviatoe/internal/httpapi"
	"github.com/xfactor-puzzles/triviatoe/internal/obslog"
	"github.com/xfactor-puzzles/triviatoe/internal/questions"
	"github.com/xfactor-puzzles/triviatoe/internal/registry"
	"github.com/xfactor-puzzles/triviatoe/internal/room"
	"github.com/xfactor-puzzles/triviatoe/internal/stats"
	"github.com/xfactor-puzzles/triviatoe/internal/transport"
)

func main() {
	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		obslog.L().Fatal("redis_url_error", zap.Error(err))
	}
	rdb := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		cancel()
		obslog.L().Fatal("redis_ping_error", zap.Error(err))
	}
	cancel()

	store := room.NewStore(rdb, cfg.RoomTTL)

	var source questions.Source
	if cfg.QuestionServiceURL != "" {
		source = questions.NewHTTPSource(cfg.QuestionServiceURL)
		obslog.L().Info("question_source", zap.String("mode", "http"), zap.String("url", cfg.QuestionServiceURL))
	} else {
		bank, err := questions.NewBank()
		if err != nil {
			obslog.L().Fatal("question_bank_error", zap.Error(err))
		}
		source = bank
		obslog.L().Info("question_source", zap.String("mode", "embedded"))
	}

	coordOpts := []coordinator.Option{coordinator.WithAckTimeout(cfg.StartAckTimeout)}
	apiOpts := []httpapi.Option{}
	if cfg.PublicBaseURL != "" {
		apiOpts = append(apiOpts, httpapi.WithPublicBaseURL(cfg.PublicBaseURL))
	}

	var repo *stats.Repository
	if cfg.DatabaseURL != "" {
		repo, err = stats.NewRepository(cfg.DatabaseURL)
		if err != nil {
			obslog.L().Fatal("stats_repo_error", zap.Error(err))
		}
		coordOpts = append(coordOpts, coordinator.WithStats(repo))
		apiOpts = append(apiOpts, httpapi.WithStats(repo))
	}

	// The registry evicts stale connections through the coordinator, which
	// is built right after; the closure resolves the cycle.
	var coord *coordinator.Coordinator
	reg := registry.New(func(connID string) { coord.EvictConnection(connID) })
	coord = coordinator.New(store, reg, source, coordOpts...)

	ws := transport.NewServer(coord, transport.WithOriginPatterns(cfg.AllowedOrigins))
	api := httpapi.New(store, coord, source, ws, apiOpts...)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.Router(),
		IdleTimeout:       10 * time.Minute,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		obslog.L().Info("listening", zap.String("addr", cfg.ListenAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			obslog.L().Fatal("serve_error", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	obslog.L().Info("shutting_down")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	_ = srv.Shutdown(shutdownCtx)
	_ = rdb.Close()
	if repo != nil {
		_ = repo.Close()
	}
}
