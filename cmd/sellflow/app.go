package main

import (
	"context"
	"path/filepath"

	"go.uber.org/zap"

	"sellflow/internal/artifacts"
	"sellflow/internal/config"
	"sellflow/internal/coords"
	"sellflow/internal/flow"
	"sellflow/internal/input"
	"sellflow/internal/ledger"
	"sellflow/internal/pipeline"
	"sellflow/internal/pricing"
	"sellflow/internal/ratelimit"
	"sellflow/internal/screen"
	"sellflow/internal/sourcing"
	"sellflow/internal/store"
)

// app is the assembled component graph behind every command that touches the
// UI surface.
type app struct {
	cfg     *config.Settings
	logger  *zap.Logger
	session *input.Session
	set     *coords.Set
	db      *store.Store

	executor *input.Executor
	verifier *screen.Verifier
	pipeline *pipeline.Pipeline
	sheet    *ledger.SheetLedger
}

// newApp loads configuration, connects the browser surface, and wires the
// engine. The coordinate set must already exist; `setup` produces it.
func newApp(cfg *config.Settings, logger *zap.Logger) (*app, error) {
	platform := input.PlatformFor(cfg.Engine.Platform)

	set, err := coords.NewStore(cfg.Dirs.CoordinateSets).Load(platform.Name, cfg.Engine.CoordinateProfile)
	if err != nil {
		return nil, err
	}

	session := input.NewSession(input.SessionConfig{
		DebuggerURL:    cfg.Browser.DebuggerURL,
		Headless:       cfg.Browser.Headless,
		StartURL:       cfg.Browser.StartURL,
		ViewportWidth:  cfg.Browser.ViewportWidth,
		ViewportHeight: cfg.Browser.ViewportHeight,
	})
	if err := session.Start(); err != nil {
		return nil, err
	}

	db, err := store.Open(filepath.Join(cfg.Dirs.Database, "sellflow.db"), logger)
	if err != nil {
		_ = session.Close()
		return nil, err
	}

	executor := input.NewExecutor(session, platform, set, cfg.Engine.TypeDelayDuration(), logger)
	recognizer := screen.NewTesseractRecognizer()
	verifier := screen.NewVerifier(session, recognizer, logger)
	recorder := artifacts.NewRecorder(cfg.Dirs.Screenshots, logger)
	limiter := ratelimit.New(cfg.Engine.ResearchOpsPerHour, 0)

	retry := pipeline.NewRetryController(executor, verifier, set, recorder, cfg.Engine.ConfidenceThreshold, logger)
	pipe := pipeline.New(retry, set, limiter, logger)
	pipe.SetHistory(&runHistory{db: db, logger: logger})
	sheet := ledger.NewSheetLedger(executor, logger)

	return &app{
		cfg:      cfg,
		logger:   logger,
		session:  session,
		set:      set,
		db:       db,
		executor: executor,
		verifier: verifier,
		pipeline: pipe,
		sheet:    sheet,
	}, nil
}

func (a *app) Close() {
	if a.db != nil {
		_ = a.db.Close()
	}
	if a.session != nil {
		_ = a.session.Close()
	}
}

func (a *app) researchRunner() *flow.ResearchRunner {
	return flow.NewResearchRunner(a.pipeline, a.sheet, a.cfg, a.logger)
}

func (a *app) sourcingRunner() *flow.SourcingRunner {
	engine := sourcing.NewEngine(sourcing.Thresholds{
		ExchangeRate:    a.cfg.ExchangeRate,
		ProfitThreshold: a.cfg.ProfitThreshold,
		SalesThreshold:  a.cfg.SalesThreshold3Day,
	}, nil, a.cfg.Engine.SourcingWorkers, a.logger)
	return flow.NewSourcingRunner(a.pipeline, engine, a.sheet, a.db, a.cfg, a.logger)
}

func (a *app) listingRunner() *flow.ListingRunner {
	return flow.NewListingRunner(a.pipeline, a.sheet, a.cfg, a.logger)
}

func (a *app) priceAdjustRunner() *flow.PriceAdjustRunner {
	engine := pricing.NewEngine(pricing.Policy{
		StepDown:       a.cfg.Pricing.StepDown,
		MinMarginRate:  a.cfg.Pricing.MinMarginRate,
		SalesThreshold: a.cfg.SalesThreshold3Day,
	}, a.db, a.logger)
	return flow.NewPriceAdjustRunner(a.pipeline, engine, a.sheet, a.cfg, a.logger)
}

// runHistory persists every pipeline run to the sqlite runs table. History
// failures are logged, never fatal.
type runHistory struct {
	db     *store.Store
	logger *zap.Logger
}

func (h *runHistory) RecordRun(run *pipeline.Run, stage pipeline.Stage, failedStep string) {
	ctx := context.Background()
	if err := h.db.BeginRun(ctx, run.ID, string(stage), run.StartedAt); err != nil {
		h.logger.Warn("run history write failed", zap.Error(err))
		return
	}
	if err := h.db.FinishRun(ctx, run.ID, run.Status.String(), failedStep, run.EndedAt); err != nil {
		h.logger.Warn("run history write failed", zap.Error(err))
	}
}
