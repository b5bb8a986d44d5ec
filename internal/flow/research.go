package flow

import (
	"context"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"sellflow/internal/config"
	"sellflow/internal/input"
	"sellflow/internal/ledger"
	"sellflow/internal/pipeline"
	"sellflow/internal/screen"
)

// ResearchItem is one researched marketplace item, destined for a ledger
// row. MonthlyEstimate extrapolates the trailing 3-day count.
type ResearchItem struct {
	URL             string
	Title           string
	Price           int
	Sales3Day       int
	MonthlyEstimate int
}

// monthlyFactor extrapolates a 3-day sales count to a monthly estimate.
const monthlyFactor = 10

// ResearchRunner executes the research stage: search, then walk the result
// slots collecting item data, then append everything to the ledger.
type ResearchRunner struct {
	pipeline *pipeline.Pipeline
	ledger   ledger.Ledger
	cfg      *config.Settings
	logger   *zap.Logger

	// Slots is how many result positions to collect per pass. The
	// coordinate set must provide result_item_1..result_item_N.
	Slots int
}

// NewResearchRunner builds the runner.
func NewResearchRunner(p *pipeline.Pipeline, l ledger.Ledger, cfg *config.Settings, logger *zap.Logger) *ResearchRunner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResearchRunner{pipeline: p, ledger: l, cfg: cfg, logger: logger, Slots: 3}
}

// Run performs one research pass for a keyword. Items from a pass that
// aborts mid-way are still returned; the error reports the aborted run.
func (r *ResearchRunner) Run(ctx context.Context, keyword string) ([]ResearchItem, *pipeline.Run, error) {
	steps := ResearchSteps(r.cfg, keyword)
	items := make([]*ResearchItem, r.Slots)

	for slot := 1; slot <= r.Slots; slot++ {
		item := &ResearchItem{}
		items[slot-1] = item

		collect := CollectItemStep(r.cfg, slot)
		// Copy the item URL off the address bar while the detail page
		// is open, then read title and price regions.
		collect.Actions = append(collect.Actions,
			input.Click{Element: "url_bar"},
			input.KeyCombo{Keys: []string{input.PrimaryModifier, "c"}},
			input.KeyCombo{Keys: []string{"escape"}},
		)
		collect.OnSuccess = func(ctx context.Context, tools pipeline.StepTools) error {
			url, err := tools.Clipboard(ctx)
			if err != nil {
				return err
			}
			title, err := tools.ReadRegion(ctx, "item_title_region")
			if err != nil {
				return err
			}
			priceText, err := tools.ReadRegion(ctx, "item_price_region")
			if err != nil {
				return err
			}
			item.URL = url
			item.Title = title
			item.Price = screen.ExtractPrice(priceText)
			return nil
		}

		count := CountSalesStep(r.cfg, slot)
		count.OnSuccess = func(ctx context.Context, tools pipeline.StepTools) error {
			history, err := tools.ReadRegion(ctx, "sold_history_region")
			if err != nil {
				return err
			}
			item.Sales3Day = screen.CountRecentSales(history)
			item.MonthlyEstimate = item.Sales3Day * monthlyFactor
			return nil
		}

		steps = append(steps, collect, count, backToResultsStep(r.cfg, slot))
	}

	run, err := r.pipeline.Execute(ctx, steps)
	collected := collectedItems(items)
	if err != nil {
		return collected, run, err
	}

	qualified := qualifiedItems(collected, r.cfg.MonthlySalesThreshold)
	for _, it := range qualified {
		if err := r.ledger.AppendRow(ctx, researchRow(keyword, it)); err != nil {
			return qualified, run, err
		}
	}
	r.logger.Info("research pass complete",
		zap.String("keyword", keyword),
		zap.Int("collected", len(collected)),
		zap.Int("qualified", len(qualified)),
	)
	return qualified, run, nil
}

// collectedItems keeps only slots whose collect step actually ran.
func collectedItems(items []*ResearchItem) []ResearchItem {
	var out []ResearchItem
	for _, it := range items {
		if it != nil && it.URL != "" {
			out = append(out, *it)
		}
	}
	return out
}

// qualifiedItems keeps only items whose monthly estimate clears the
// configured minimum. Slow movers never reach the ledger or sourcing.
func qualifiedItems(items []ResearchItem, threshold int) []ResearchItem {
	var out []ResearchItem
	for _, it := range items {
		if it.MonthlyEstimate >= threshold {
			out = append(out, it)
		}
	}
	return out
}

func researchRow(keyword string, it ResearchItem) ledger.Row {
	return ledger.Row{
		keyword,
		it.Title,
		strconv.Itoa(it.Price),
		strconv.Itoa(it.Sales3Day),
		strconv.Itoa(it.MonthlyEstimate),
		it.URL,
	}
}

// Keywords runs successive passes for several keywords, stopping at the
// first aborted run.
func (r *ResearchRunner) Keywords(ctx context.Context, keywords []string) ([]ResearchItem, error) {
	var all []ResearchItem
	for _, kw := range keywords {
		items, run, err := r.Run(ctx, kw)
		all = append(all, items...)
		if err != nil {
			return all, fmt.Errorf("research %q (run %s): %w", kw, run.ID, err)
		}
	}
	return all, nil
}
