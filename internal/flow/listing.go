package flow

import (
	"context"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"sellflow/internal/config"
	"sellflow/internal/ledger"
	"sellflow/internal/pipeline"
	"sellflow/internal/sourcing"
)

// ListingRunner publishes accepted sourcing decisions as new marketplace
// listings.
type ListingRunner struct {
	pipeline *pipeline.Pipeline
	ledger   ledger.Ledger
	cfg      *config.Settings
	logger   *zap.Logger
}

// NewListingRunner builds the runner.
func NewListingRunner(p *pipeline.Pipeline, l ledger.Ledger, cfg *config.Settings, logger *zap.Logger) *ListingRunner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ListingRunner{pipeline: p, ledger: l, cfg: cfg, logger: logger}
}

// DetailsFor derives listing content from an accepted decision. The price
// follows the researched market price; a prohibited title never reaches
// here because sourcing rejects it.
func DetailsFor(d sourcing.Decision, imagePaths []string) ListingDetails {
	return ListingDetails{
		Title: d.Candidate.Title,
		Description: fmt.Sprintf("%s\n\n状態は写真をご確認ください。即購入OKです。",
			d.Candidate.Title),
		Price:      d.Candidate.SalePrice,
		ImagePaths: imagePaths,
	}
}

// Run publishes one listing and logs it to the ledger.
func (r *ListingRunner) Run(ctx context.Context, d ListingDetails) (*pipeline.Run, error) {
	if len(d.ImagePaths) == 0 {
		return nil, fmt.Errorf("listing %q has no images", d.Title)
	}

	run, err := r.pipeline.Execute(ctx, ListingSteps(r.cfg, d))
	if err != nil {
		return run, err
	}

	row := ledger.Row{
		d.Title,
		strconv.Itoa(d.Price),
		strconv.Itoa(len(d.ImagePaths)),
		"listed",
	}
	if err := r.ledger.AppendRow(ctx, row); err != nil {
		return run, err
	}
	r.logger.Info("listing published",
		zap.String("title", d.Title),
		zap.Int("price", d.Price),
	)
	return run, nil
}
