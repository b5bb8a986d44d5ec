// Package sourcing decides whether a researched marketplace item is worth
// listing: the sale price must clear the profit threshold after source cost
// and fees, and the item must actually be selling.
package sourcing

import (
	"context"
	"fmt"
	"image"
	"strings"
)

// Candidate is one item under sourcing consideration. SalePrice is in
// marketplace currency (yen); SourceCost and EstimatedFees are in source
// currency.
type Candidate struct {
	ItemURL       string
	Title         string
	SalePrice     int
	SourceCost    float64
	EstimatedFees float64
	Sales3Day     int
	SourceURL     string
}

// Decision is the evaluated outcome for a candidate.
type Decision struct {
	Candidate Candidate
	MarginPct float64
	Accepted  bool
	Reason    string
}

// Thresholds are the acceptance gates.
type Thresholds struct {
	ExchangeRate    float64 // yen per unit of source currency
	ProfitThreshold float64 // minimum margin, percent
	SalesThreshold  int     // minimum trailing 3-day sales
}

// Margin computes the profit margin percentage for a candidate. All terms
// are converted to source currency: revenue = salePrice / exchangeRate,
// outlay = sourceCost + estimatedFees, margin = profit / revenue * 100.
// The computation uses only these four inputs, so it is reproducible
// bit-for-bit for identical values.
func Margin(c Candidate, exchangeRate float64) float64 {
	if c.SalePrice <= 0 || exchangeRate <= 0 {
		return 0
	}
	revenue := float64(c.SalePrice) / exchangeRate
	profit := revenue - (c.SourceCost + c.EstimatedFees)
	return profit / revenue * 100
}

// Evaluate applies both gates. Boundary values are accepted: a margin or
// sales count exactly at its threshold passes.
func Evaluate(c Candidate, t Thresholds) Decision {
	d := Decision{Candidate: c, MarginPct: Margin(c, t.ExchangeRate)}

	if kw := ProhibitedKeyword(c.Title); kw != "" {
		d.Reason = fmt.Sprintf("prohibited keyword %q", kw)
		return d
	}
	marginOK := d.MarginPct >= t.ProfitThreshold
	salesOK := c.Sales3Day >= t.SalesThreshold

	switch {
	case marginOK && salesOK:
		d.Accepted = true
		d.Reason = "margin and sales thresholds met"
	case !marginOK && !salesOK:
		d.Reason = "margin and sales below threshold"
	case !marginOK:
		d.Reason = "margin below threshold"
	default:
		d.Reason = "sales below threshold"
	}
	return d
}

// prohibitedKeywords flags listings we never source: counterfeits, items the
// marketplace bans, and categories that cannot clear customs.
var prohibitedKeywords = []string{
	"偽物",
	"コピー品",
	"レプリカ",
	"海賊版",
	"医薬品",
	"サプリメント",
	"電池のみ",
	"モデルガン",
	"replica",
	"counterfeit",
}

// ProhibitedKeyword returns the first banned keyword found in the title, or
// empty when the title is clean.
func ProhibitedKeyword(title string) string {
	lower := strings.ToLower(title)
	for _, kw := range prohibitedKeywords {
		if strings.Contains(lower, strings.ToLower(kw)) {
			return kw
		}
	}
	return ""
}

// Match is one hit from the external image-search service.
type Match struct {
	MatchID    string
	Cost       float64
	ListingURL string
}

// ImageSearch finds source-side listings for a product photo.
type ImageSearch interface {
	SearchByImage(ctx context.Context, img image.Image) ([]Match, error)
}
