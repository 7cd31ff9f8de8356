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

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"gamerooms/internal/broadcast"
	"gamerooms/internal/config"
	"gamerooms/internal/game"
	"gamerooms/internal/game/boardrace"
	"gamerooms/internal/game/cards"
	"gamerooms/internal/game/chess"
	"gamerooms/internal/game/quiz"
	"gamerooms/internal/logging"
	"gamerooms/internal/questions"
	"gamerooms/internal/server"
	"gamerooms/internal/session"
	"gamerooms/internal/storage"
)

func main() {
	app := &cli.App{
		Name:  "gamerooms",
		Usage: "real-time multiplayer game rooms",
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the HTTP and websocket server",
				Action: serve,
			},
			{
				Name:      "archives",
				Usage:     "print the finished games of a room",
				ArgsUsage: "ROOM_ID",
				Action:    listArchives,
			},
		},
		DefaultCommand: "serve",
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRegistry() *game.Registry {
	registry := game.NewRegistry()
	registry.Register(boardrace.Rules{})
	registry.Register(cards.Rules{})
	registry.Register(chess.Rules{})
	registry.Register(quiz.Rules{Variant: game.QuizClassic})
	registry.Register(quiz.Rules{Variant: game.QuizSpeed})
	return registry
}

// stateStore picks the backend holding live room states. The returned
// closer releases whatever the backend opened.
func stateStore(ctx context.Context, cfg config.Config, store *storage.Store) (storage.StateStore, func(), error) {
	switch cfg.StateBackend {
	case config.BackendRedis:
		client, err := storage.DialRedis(ctx, cfg.RedisAddr)
		if err != nil {
			return nil, nil, err
		}
		return storage.NewRedisStateStore(client, cfg.RedisTTL), func() { client.Close() }, nil
	case config.BackendMemory:
		return storage.NewMemoryStateStore(), func() {}, nil
	default:
		return store, func() {}, nil
	}
}

func serve(c *cli.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stderr)
	gin.SetMode(gin.ReleaseMode)

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := storage.New(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer store.Close()

	states, closeStates, err := stateStore(ctx, cfg, store)
	if err != nil {
		return fmt.Errorf("open state store: %w", err)
	}
	defer closeStates()

	rng := game.NewRandom()
	bank, err := questions.NewBank(rng)
	if err != nil {
		return fmt.Errorf("load question bank: %w", err)
	}

	hub := broadcast.NewHub(log)
	mgr := session.NewManager(newRegistry(), store, states, hub, questions.NewCache(bank, cfg.QuestionCacheTTL, cfg.StoreTimeout), session.Options{
		StoreTimeout:     cfg.StoreTimeout,
		AITurnDelay:      cfg.AITurnDelay,
		AIRetryDelay:     cfg.AIRetryDelay,
		QuestionDuration: cfg.QuestionDuration,
		QuestionCount:    cfg.QuestionCount,
		Random:           rng,
		Logger:           log,
	})
	defer mgr.Close()

	if err := mgr.Resume(ctx); err != nil {
		log.Warn().Err(err).Msg("resume rooms")
	}

	httpServer := &http.Server{
		Addr: cfg.Addr(),
		Handler: server.New(mgr, hub, server.Options{
			MessageRate:       cfg.WSMessageRate,
			MessageBurst:      cfg.WSMessageBurst,
			DisconnectTimeout: cfg.StoreTimeout * 4,
			Logger:            log,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", httpServer.Addr).Str("state", cfg.StateBackend).Msg("listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		mgr.PruneLoop(gctx, cfg.LockPruneInterval, cfg.LockIdleTTL)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(sctx)
	})
	return g.Wait()
}

func listArchives(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("usage: gamerooms archives ROOM_ID", 2)
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	store, err := storage.New(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer store.Close()

	archives, err := store.ListArchives(c.Context, c.Args().First())
	if err != nil {
		return err
	}
	log := zerolog.New(os.Stdout)
	for _, a := range archives {
		log.Log().
			Str("id", a.ID).
			Str("game", string(a.GameType)).
			Str("winner", a.WinnerID).
			Interface("scores", a.Scores).
			Time("ended", a.EndedAt).
			Send()
	}
	return nil
}
