package sourcing

import (
	"context"
	"image"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Engine evaluates candidates concurrently. Image-search lookups are the
// slow part; the pool bounds them while results come back in input order, so
// the recording stage downstream stays deterministic.
type Engine struct {
	thresholds Thresholds
	search     ImageSearch
	workers    int
	logger     *zap.Logger
}

// NewEngine builds the engine. workers below 1 is treated as 1.
func NewEngine(t Thresholds, search ImageSearch, workers int, logger *zap.Logger) *Engine {
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{thresholds: t, search: search, workers: workers, logger: logger}
}

// Evaluate runs the decision gates for a single candidate.
func (e *Engine) Evaluate(c Candidate) Decision {
	return Evaluate(c, e.thresholds)
}

// SourceQuery pairs a candidate with the product photo used to find its
// source listing.
type SourceQuery struct {
	Candidate Candidate
	Photo     image.Image
}

// EvaluateBatch resolves each candidate's source cost through image search
// and evaluates it. Results land at the same index as their query. The first
// collaborator error cancels the remaining lookups.
func (e *Engine) EvaluateBatch(ctx context.Context, queries []SourceQuery) ([]Decision, error) {
	decisions := make([]Decision, len(queries))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i, q := range queries {
		i, q := i, q
		g.Go(func() error {
			d, err := e.evaluateOne(ctx, q)
			if err != nil {
				return err
			}
			decisions[i] = d
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return decisions, nil
}

func (e *Engine) evaluateOne(ctx context.Context, q SourceQuery) (Decision, error) {
	c := q.Candidate
	if e.search != nil && q.Photo != nil {
		matches, err := e.search.SearchByImage(ctx, q.Photo)
		if err != nil {
			return Decision{}, err
		}
		if m, ok := cheapest(matches); ok {
			c.SourceCost = m.Cost
			c.SourceURL = m.ListingURL
			fees := EstimateCosts(m.Cost, e.thresholds.ExchangeRate, 500, c.SalePrice)
			c.EstimatedFees = FeesInSourceCurrency(fees, e.thresholds.ExchangeRate)
		}
	}

	d := Evaluate(c, e.thresholds)
	e.logger.Debug("candidate evaluated",
		zap.String("item_url", c.ItemURL),
		zap.Float64("margin_pct", d.MarginPct),
		zap.Bool("accepted", d.Accepted),
		zap.String("reason", d.Reason),
	)
	return d, nil
}

func cheapest(matches []Match) (Match, bool) {
	if len(matches) == 0 {
		return Match{}, false
	}
	best := matches[0]
	for _, m := range matches[1:] {
		if m.Cost < best.Cost {
			best = m
		}
	}
	return best, true
}
