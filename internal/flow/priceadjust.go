package flow

import (
	"context"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"sellflow/internal/config"
	"sellflow/internal/ledger"
	"sellflow/internal/pipeline"
	"sellflow/internal/pricing"
)

// ActiveListingsRange is where the ledger keeps the active listing roster:
// id, title, current price, landed cost, trailing sales.
const ActiveListingsRange = "A2:E200"

// PriceAdjustRunner executes the daily price pass: read active listings from
// the ledger, plan each adjustment, apply it through the UI, and append the
// change record back to the ledger.
type PriceAdjustRunner struct {
	pipeline *pipeline.Pipeline
	engine   *pricing.Engine
	ledger   ledger.Ledger
	cfg      *config.Settings
	logger   *zap.Logger
}

// NewPriceAdjustRunner builds the runner.
func NewPriceAdjustRunner(p *pipeline.Pipeline, e *pricing.Engine, l ledger.Ledger, cfg *config.Settings, logger *zap.Logger) *PriceAdjustRunner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PriceAdjustRunner{pipeline: p, engine: e, ledger: l, cfg: cfg, logger: logger}
}

// Run performs one full pass. Listings with malformed ledger rows are
// skipped with a warning rather than aborting the pass; UI failures abort,
// since the surface state is then unknown.
func (r *PriceAdjustRunner) Run(ctx context.Context) (adjusted int, err error) {
	rows, err := r.ledger.ReadRange(ctx, ActiveListingsRange)
	if err != nil {
		return 0, err
	}

	for _, row := range rows {
		listing, trailingSales, ok := parseListingRow(row)
		if !ok {
			r.logger.Warn("skipping malformed listing row", zap.Strings("row", row))
			continue
		}

		rec, changed, err := r.engine.Adjust(ctx, listing, trailingSales, r.applyOnUI)
		if err != nil {
			return adjusted, fmt.Errorf("adjust %s: %w", listing.ID, err)
		}
		if !changed {
			continue
		}
		adjusted++

		if err := r.ledger.AppendRow(ctx, adjustmentRow(rec)); err != nil {
			return adjusted, err
		}
	}

	r.logger.Info("price pass complete", zap.Int("rows", len(rows)), zap.Int("adjusted", adjusted))
	return adjusted, nil
}

// applyOnUI is the pricing engine's Applier: the two price-adjustment steps.
func (r *PriceAdjustRunner) applyOnUI(ctx context.Context, rec pricing.Record) error {
	_, err := r.pipeline.Execute(ctx, PriceAdjustmentSteps(r.cfg, rec.ListingID, rec.NewPrice))
	return err
}

// parseListingRow reads (id, title, price, cost, trailing sales) from a
// ledger row.
func parseListingRow(row ledger.Row) (pricing.Listing, int, bool) {
	if len(row) < 5 {
		return pricing.Listing{}, 0, false
	}
	price, err1 := strconv.Atoi(row[2])
	cost, err2 := strconv.Atoi(row[3])
	sales, err3 := strconv.Atoi(row[4])
	if err1 != nil || err2 != nil || err3 != nil || row[0] == "" {
		return pricing.Listing{}, 0, false
	}
	return pricing.Listing{ID: row[0], Title: row[1], Price: price, Cost: cost}, sales, true
}

func adjustmentRow(rec pricing.Record) ledger.Row {
	return ledger.Row{
		rec.ListingID,
		strconv.Itoa(rec.OldPrice),
		strconv.Itoa(rec.NewPrice),
		strconv.Itoa(rec.TrailingSales),
		rec.Reason,
	}
}
