package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/risk-sentry/internal/clients/llm"
	"github.com/aristath/risk-sentry/internal/config"
	"github.com/aristath/risk-sentry/internal/database"
	"github.com/aristath/risk-sentry/internal/marketdata"
	"github.com/aristath/risk-sentry/internal/modules/advisory"
	"github.com/aristath/risk-sentry/internal/modules/audit"
	"github.com/aristath/risk-sentry/internal/modules/chains"
	"github.com/aristath/risk-sentry/internal/modules/constraints"
	"github.com/aristath/risk-sentry/internal/modules/dataquality"
	"github.com/aristath/risk-sentry/internal/modules/normalize"
	"github.com/aristath/risk-sentry/internal/modules/snapshot"
	"github.com/aristath/risk-sentry/internal/modules/solver"
	"github.com/aristath/risk-sentry/internal/modules/supervisor"
	"github.com/aristath/risk-sentry/internal/pipeline"
	"github.com/aristath/risk-sentry/internal/rules"
	"github.com/aristath/risk-sentry/internal/scheduler"
	"github.com/aristath/risk-sentry/internal/server"
	"github.com/aristath/risk-sentry/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallback := logger.New(logger.Config{Level: "info"})
		fallback.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})
	log.Info().Msg("Starting risk sentry")

	db, err := database.New(cfg.DatabasePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("Failed to run migrations")
	}

	repo := marketdata.NewRepository(db, log)
	ruleStore := rules.NewStore(cfg.RulesPath, log)

	var llmClient llm.Client
	if cfg.LLMBaseURL != "" && cfg.LLMModel != "" {
		llmClient = llm.NewHTTPClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModel, log)
		log.Info().Str("model", cfg.LLMModel).Msg("Advisory LLM configured")
	} else {
		log.Info().Msg("No advisory LLM configured, agents run deterministically")
	}

	pipe := pipeline.New(pipeline.Deps{
		Normalizer:  normalize.New(repo, log),
		Gate:        dataquality.New(repo, cfg.MarketLookbackDays, cfg.MacroStaleDays, log),
		Snapshots:   snapshot.New(repo, cfg.MarketLookbackDays, cfg.PortfolioAUM, log),
		Supervisor:  supervisor.New(llmClient, cfg.EnableSupervisor, log),
		Chains:      chains.New(ruleStore, log),
		Macro:       advisory.NewMacroAgent(repo, llmClient, cfg.MacroSeverityWeight, log),
		Compliance:  advisory.NewComplianceAgent(repo, ruleStore, llmClient, log),
		Constraints: constraints.New(ruleStore),
		Solver:      solver.New(ruleStore, cfg.CashSymbol, cfg.LPTurnoverWeight, cfg.PortfolioAUM, cfg.TargetHoldings, log),
		Auditor:     audit.New(ruleStore),
	}, log)

	sched := scheduler.New(log)
	sched.Start()
	defer sched.Stop()
	registerJobs(sched, repo, cfg, log)

	srv := server.New(server.Config{
		Port:     cfg.Port,
		Log:      log,
		Pipeline: pipe,
		Rules:    ruleStore,
		DevMode:  cfg.DevMode,
	})

	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server shutdown failed")
	}
}

// registerJobs wires background maintenance: the market aggregate table is
// rebuilt nightly and once at startup so snapshot queries stay warm
func registerJobs(sched *scheduler.Scheduler, repo *marketdata.Repository, cfg *config.Config, log zerolog.Logger) {
	refresh := marketdata.NewRefreshJob(repo, cfg.MarketLookbackDays)
	if err := sched.AddJob("0 30 2 * * *", refresh); err != nil {
		log.Error().Err(err).Msg("Failed to register aggregate refresh job")
		return
	}
	if err := sched.RunNow(refresh); err != nil {
		log.Warn().Err(err).Msg("Initial aggregate refresh failed")
	}
}
