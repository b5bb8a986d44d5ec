package flow

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"sellflow/internal/config"
	"sellflow/internal/ledger"
	"sellflow/internal/pipeline"
	"sellflow/internal/screen"
	"sellflow/internal/sourcing"
	"sellflow/internal/store"
)

// SourcingRunner drives the sourcing stage for researched items: find each
// item on the source marketplace through image search, read the source
// price off screen, evaluate, and record the decision.
type SourcingRunner struct {
	pipeline *pipeline.Pipeline
	engine   *sourcing.Engine
	ledger   ledger.Ledger
	store    *store.Store
	cfg      *config.Settings
	logger   *zap.Logger
}

// NewSourcingRunner builds the runner. store may be nil when local decision
// history is not wanted.
func NewSourcingRunner(p *pipeline.Pipeline, e *sourcing.Engine, l ledger.Ledger, s *store.Store, cfg *config.Settings, logger *zap.Logger) *SourcingRunner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SourcingRunner{pipeline: p, engine: e, ledger: l, store: s, cfg: cfg, logger: logger}
}

// SourcingInput pairs a researched item with the photo file used for image
// search.
type SourcingInput struct {
	Item      ResearchItem
	PhotoPath string
}

// RunOne sources a single item through the UI and returns the decision.
func (r *SourcingRunner) RunOne(ctx context.Context, in SourcingInput) (sourcing.Decision, *pipeline.Run, error) {
	candidate := sourcing.Candidate{
		ItemURL:   in.Item.URL,
		Title:     in.Item.Title,
		SalePrice: in.Item.Price,
		Sales3Day: in.Item.Sales3Day,
	}

	steps := SourcingSteps(r.cfg, in.PhotoPath)

	capture := CapturePriceStep(r.cfg)
	capture.OnSuccess = func(ctx context.Context, tools pipeline.StepTools) error {
		text, err := tools.ReadRegion(ctx, "candidate_price_region")
		if err != nil {
			return err
		}
		cost := screen.ExtractPrice(text)
		candidate.SourceCost = float64(cost)
		breakdown := sourcing.EstimateCosts(candidate.SourceCost, r.cfg.ExchangeRate, 500, candidate.SalePrice)
		candidate.EstimatedFees = sourcing.FeesInSourceCurrency(breakdown, r.cfg.ExchangeRate)

		url, err := tools.Clipboard(ctx)
		if err == nil {
			candidate.SourceURL = url
		}
		return nil
	}
	steps = append(steps, capture, RecordDecisionStep(r.cfg))

	run, err := r.pipeline.Execute(ctx, steps)
	if err != nil {
		return sourcing.Decision{}, run, err
	}

	decision := r.engine.Evaluate(candidate)
	if err := r.record(ctx, decision); err != nil {
		return decision, run, err
	}
	return decision, run, nil
}

// RunAll sources each input in sequence. UI work cannot be parallelized;
// the engine's pooled evaluation applies only when costs arrive from the
// image-search service API instead of the screen.
func (r *SourcingRunner) RunAll(ctx context.Context, inputs []SourcingInput) ([]sourcing.Decision, error) {
	var decisions []sourcing.Decision
	for _, in := range inputs {
		d, run, err := r.RunOne(ctx, in)
		if err != nil {
			return decisions, fmt.Errorf("sourcing %s (run %s): %w", in.Item.URL, run.ID, err)
		}
		decisions = append(decisions, d)
	}
	return decisions, nil
}

func (r *SourcingRunner) record(ctx context.Context, d sourcing.Decision) error {
	verdict := "reject"
	if d.Accepted {
		verdict = "accept"
	}
	row := ledger.Row{
		d.Candidate.ItemURL,
		d.Candidate.Title,
		strconv.Itoa(d.Candidate.SalePrice),
		strconv.FormatFloat(d.Candidate.SourceCost, 'f', 2, 64),
		strconv.FormatFloat(d.MarginPct, 'f', 1, 64),
		strconv.Itoa(d.Candidate.Sales3Day),
		verdict,
		d.Reason,
	}
	if err := r.ledger.AppendRow(ctx, row); err != nil {
		return err
	}
	if r.store != nil {
		if err := r.store.RecordDecision(ctx, d.Candidate.ItemURL, d.Accepted, d.MarginPct, d.Candidate.Sales3Day, d.Candidate.SourceURL, time.Now()); err != nil {
			return err
		}
	}
	r.logger.Info("sourcing decision recorded",
		zap.String("item_url", d.Candidate.ItemURL),
		zap.String("verdict", verdict),
		zap.Float64("margin_pct", d.MarginPct),
	)
	return nil
}
