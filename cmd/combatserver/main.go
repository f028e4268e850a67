// Package main provides the combat server binary that boots the document
// store, the narration oracle, and the combat session registry.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/arbiter/internal/config"
	"github.com/cory-johannsen/arbiter/internal/game/combat"
	"github.com/cory-johannsen/arbiter/internal/game/dice"
	"github.com/cory-johannsen/arbiter/internal/game/preroll"
	"github.com/cory-johannsen/arbiter/internal/game/rules"
	"github.com/cory-johannsen/arbiter/internal/game/transcript"
	"github.com/cory-johannsen/arbiter/internal/game/updates"
	"github.com/cory-johannsen/arbiter/internal/observability"
	"github.com/cory-johannsen/arbiter/internal/oracle"
	"github.com/cory-johannsen/arbiter/internal/server"
	"github.com/cory-johannsen/arbiter/internal/store"
	storepg "github.com/cory-johannsen/arbiter/internal/store/postgres"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	encounterID := flag.String("encounter", "", "encounter to run on startup; empty = wait for sessions")
	playerName := flag.String("player", "", "player character for the startup encounter")
	flag.Parse()

	ctx := context.Background()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("starting combat server",
		zap.String("store_backend", cfg.Store.Backend),
		zap.String("model", cfg.Oracle.Model),
	)

	// Connect the document store.
	storeStart := time.Now()
	var docs store.DocumentStore
	var health func(context.Context) error
	var closeStore func()
	switch cfg.Store.Backend {
	case "postgres":
		pool, err := storepg.NewPool(ctx, cfg.Database)
		if err != nil {
			logger.Fatal("connecting to database", zap.Error(err))
		}
		docs = storepg.NewDocumentStore(pool)
		health = func(ctx context.Context) error { return pool.Health(ctx, 5*time.Second) }
		closeStore = pool.Close
	default:
		rs, err := store.NewRedisStore(ctx, cfg.Redis)
		if err != nil {
			logger.Fatal("connecting to redis", zap.Error(err))
		}
		docs = rs
		health = rs.Health
		closeStore = func() {
			if err := rs.Close(); err != nil {
				logger.Warn("closing redis", zap.Error(err))
			}
		}
	}
	logger.Info("document store connected",
		zap.String("backend", cfg.Store.Backend),
		zap.Duration("elapsed", time.Since(storeStart)),
	)

	// Build the oracle and its collaborators.
	client := oracle.NewClient(cfg.Oracle, logger)
	validator := rules.NewOracleValidator(client, cfg.Combat.ValidationRetries, logger)
	summarizer := rules.NewOracleSummarizer(client, logger)

	diceRoller := dice.NewLoggedRoller(dice.NewCryptoSource(), logger)
	prerolls := preroll.NewCache(preroll.NewGenerator(diceRoller), docs, logger)

	deps := combat.Deps{
		Docs:        docs,
		Oracle:      client,
		Validator:   validator,
		Summarizer:  summarizer,
		Characters:  updates.NewCharacterUpdater(docs, client, logger),
		Encounters:  updates.NewEncounterUpdater(docs, client, logger),
		Prerolls:    prerolls,
		Transcripts: transcript.NewStore(docs, logger),
		Logger:      logger,
		Config:      cfg.Combat,
	}
	registry := combat.NewRegistry()

	lifecycle := server.NewLifecycle(logger)

	if *encounterID != "" {
		if *playerName == "" {
			logger.Fatal("-player is required when -encounter is set")
		}
		lifecycle.Add("combat", &server.FuncService{
			StartFn: func() error {
				sessStart := time.Now()
				sess, err := registry.Start(ctx, deps, *encounterID, *playerName)
				if err != nil {
					return err
				}
				logger.Info("combat session started",
					zap.String("encounter_id", *encounterID),
					zap.String("current_turn", sess.CurrentTurn()),
					zap.Duration("elapsed", time.Since(sessStart)),
				)
				// Resolve any leading non-player turns so the session
				// is waiting on the player when it goes idle.
				if sess.Active() {
					if _, err := sess.ProcessAITurns(ctx); err != nil {
						logger.Error("resolving opening turns", zap.Error(err))
					}
				}
				select {}
			},
			StopFn: func() {
				if err := registry.End(context.Background(), *encounterID); err != nil {
					logger.Error("ending combat session", zap.Error(err))
				}
			},
		})
	}

	lifecycle.Add("store", &server.FuncService{
		StartFn: func() error {
			for {
				time.Sleep(30 * time.Second)
				if err := health(ctx); err != nil {
					logger.Warn("store health check failed", zap.Error(err))
				}
			}
		},
		StopFn: closeStore,
	})

	logger.Info("combat server initialized",
		zap.Duration("startup", time.Since(start)),
	)

	if err := lifecycle.Run(ctx); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}
