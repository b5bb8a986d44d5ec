// Package pricing plans the daily price pass over active listings. A listing
// that stopped selling gets stepped down toward, never below, its cost-plus-
// minimum-margin floor. Planning is pure; the journal in the store package
// keeps the pass idempotent per listing per day.
package pricing

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"sellflow/internal/store"
)

// Listing is one active marketplace listing under price management. Cost is
// the landed cost in yen.
type Listing struct {
	ID    string
	Title string
	Price int
	Cost  int
}

// Record describes one planned price change.
type Record struct {
	ListingID     string
	OldPrice      int
	NewPrice      int
	TrailingSales int
	Reason        string
}

// Policy holds the repricing knobs.
type Policy struct {
	StepDown       int     // yen removed per pass
	MinMarginRate  float64 // floor = cost * (1 + rate)
	SalesThreshold int     // trailing sales at or above this leave the price alone
}

// Floor is the lowest price the policy permits for a listing.
func (p Policy) Floor(l Listing) int {
	return int(math.Ceil(float64(l.Cost) * (1 + p.MinMarginRate)))
}

// Plan decides whether a listing's price should change. The second return is
// false for a no-op. Plan is a pure function of its inputs: calling it twice
// with the same listing and sales count yields the identical record.
func Plan(l Listing, trailingSales int, p Policy) (Record, bool) {
	if trailingSales >= p.SalesThreshold {
		return Record{}, false
	}
	floor := p.Floor(l)
	if l.Price <= floor {
		return Record{}, false
	}
	newPrice := l.Price - p.StepDown
	if newPrice < floor {
		newPrice = floor
	}
	return Record{
		ListingID:     l.ID,
		OldPrice:      l.Price,
		NewPrice:      newPrice,
		TrailingSales: trailingSales,
		Reason:        fmt.Sprintf("trailing sales %d below threshold %d", trailingSales, p.SalesThreshold),
	}, true
}

// Journal is the slice of the store the engine needs for idempotency.
type Journal interface {
	AdjustedToday(ctx context.Context, listingID string, at time.Time) (bool, error)
	RecordAdjustment(ctx context.Context, listingID string, oldPrice, newPrice int, at time.Time) error
}

// Applier carries out a planned change against the marketplace UI.
type Applier func(ctx context.Context, rec Record) error

// Engine runs the daily pass: plan, apply through the UI, journal.
type Engine struct {
	policy  Policy
	journal Journal
	logger  *zap.Logger

	now func() time.Time
}

// NewEngine builds the pass engine.
func NewEngine(policy Policy, journal Journal, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{policy: policy, journal: journal, logger: logger, now: time.Now}
}

// Policy exposes the active policy for reporting.
func (e *Engine) Policy() Policy { return e.policy }

// Adjust plans and, when warranted, applies and journals one listing's
// change. It returns the record and whether a change was applied. A listing
// already journaled today is skipped before the UI is touched.
func (e *Engine) Adjust(ctx context.Context, l Listing, trailingSales int, apply Applier) (Record, bool, error) {
	rec, ok := Plan(l, trailingSales, e.policy)
	if !ok {
		e.logger.Debug("price unchanged", zap.String("listing_id", l.ID), zap.Int("trailing_sales", trailingSales))
		return Record{}, false, nil
	}

	now := e.now()
	done, err := e.journal.AdjustedToday(ctx, l.ID, now)
	if err != nil {
		return Record{}, false, err
	}
	if done {
		e.logger.Info("listing already adjusted today, skipping", zap.String("listing_id", l.ID))
		return Record{}, false, nil
	}

	if apply != nil {
		if err := apply(ctx, rec); err != nil {
			return Record{}, false, fmt.Errorf("apply price change for %s: %w", l.ID, err)
		}
	}

	if err := e.journal.RecordAdjustment(ctx, l.ID, rec.OldPrice, rec.NewPrice, now); err != nil {
		// A concurrent pass beat us to the journal; the change stands
		// but is not doubled.
		if errors.Is(err, store.ErrAlreadyAdjusted) {
			return rec, true, nil
		}
		return Record{}, false, err
	}

	e.logger.Info("price adjusted",
		zap.String("listing_id", l.ID),
		zap.Int("old_price", rec.OldPrice),
		zap.Int("new_price", rec.NewPrice),
		zap.Int("trailing_sales", trailingSales),
	)
	return rec, true, nil
}
