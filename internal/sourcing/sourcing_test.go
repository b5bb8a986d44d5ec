package sourcing

import (
	"context"
	"errors"
	"image"
	"math"
	"sync"
	"sync/atomic"
	"testing"
)

var defaultThresholds = Thresholds{
	ExchangeRate:    21.0,
	ProfitThreshold: 30,
	SalesThreshold:  30,
}

func TestMargin_ReferenceScenario(t *testing.T) {
	c := Candidate{SalePrice: 3000, SourceCost: 80, EstimatedFees: 10, Sales3Day: 40}

	// revenue 3000/21, outlay 90: margin is exactly 37%.
	first := Margin(c, 21.0)
	if math.Abs(first-37.0) > 1e-9 {
		t.Errorf("margin = %v, want 37.0", first)
	}

	// Reproducible bit-for-bit across invocations.
	for i := 0; i < 100; i++ {
		if got := Margin(c, 21.0); got != first {
			t.Fatalf("margin drifted on call %d: %v != %v", i, got, first)
		}
	}

	d := Evaluate(c, defaultThresholds)
	if !d.Accepted {
		t.Errorf("decision = %+v, want accepted", d)
	}
}

func TestMargin_MonotonicInSalePrice(t *testing.T) {
	prev := math.Inf(-1)
	for price := 500; price <= 50000; price += 250 {
		c := Candidate{SalePrice: price, SourceCost: 80, EstimatedFees: 10}
		m := Margin(c, 21.0)
		if m < prev {
			t.Fatalf("margin decreased at salePrice=%d: %v < %v", price, m, prev)
		}
		prev = m
	}
}

func TestEvaluate_BothGatesRequired(t *testing.T) {
	cases := []struct {
		name     string
		c        Candidate
		accepted bool
	}{
		{"both met", Candidate{SalePrice: 3000, SourceCost: 80, EstimatedFees: 10, Sales3Day: 40}, true},
		{"margin at boundary accepted", Candidate{SalePrice: 100, SourceCost: 60, EstimatedFees: 10, Sales3Day: 30}, true},
		{"sales at boundary accepted", Candidate{SalePrice: 3000, SourceCost: 80, EstimatedFees: 10, Sales3Day: 30}, true},
		{"margin just below", Candidate{SalePrice: 100, SourceCost: 60, EstimatedFees: 10.01, Sales3Day: 40}, false},
		{"sales just below", Candidate{SalePrice: 3000, SourceCost: 80, EstimatedFees: 10, Sales3Day: 29}, false},
		{"both below", Candidate{SalePrice: 100, SourceCost: 90, EstimatedFees: 20, Sales3Day: 0}, false},
	}
	// Boundary cases use exchangeRate=1 so margin is exact.
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			th := defaultThresholds
			if tc.c.SalePrice == 100 {
				th.ExchangeRate = 1
			}
			d := Evaluate(tc.c, th)
			if d.Accepted != tc.accepted {
				t.Errorf("accepted = %v (margin %.4f, reason %q), want %v",
					d.Accepted, d.MarginPct, d.Reason, tc.accepted)
			}
		})
	}
}

func TestEvaluate_ProhibitedKeywordRejects(t *testing.T) {
	c := Candidate{
		Title:     "高品質 コピー品 腕時計",
		SalePrice: 9000, SourceCost: 10, Sales3Day: 100,
	}
	d := Evaluate(c, defaultThresholds)
	if d.Accepted {
		t.Fatal("prohibited item accepted")
	}
	if d.Reason == "" {
		t.Error("reason empty")
	}
}

func TestEstimateCosts(t *testing.T) {
	b := EstimateCosts(80, 21.0, 400, 5000)
	if b.Goods != 1680 {
		t.Errorf("goods = %v, want 1680", b.Goods)
	}
	if b.AgentFee != 84 {
		t.Errorf("agent fee = %v, want 84", b.AgentFee)
	}
	if b.Customs != 252 {
		t.Errorf("customs = %v, want 252", b.Customs)
	}
	if b.IntlShipping != 1200 {
		t.Errorf("intl shipping = %v, want 1200 for 400g", b.IntlShipping)
	}
	if b.MarketplaceFee != 500 {
		t.Errorf("marketplace fee = %v, want 500", b.MarketplaceFee)
	}
	wantTotal := 1680.0 + 84 + 252 + 1200 + 200 + 500
	if b.Total() != wantTotal {
		t.Errorf("total = %v, want %v", b.Total(), wantTotal)
	}
}

func TestIntlShippingBands(t *testing.T) {
	cases := []struct {
		grams int
		want  float64
	}{
		{50, 600}, {100, 600}, {101, 1200}, {500, 1200}, {501, 2000}, {1000, 2000}, {1500, 2800},
	}
	for _, tc := range cases {
		if got := intlShippingYen(tc.grams); got != tc.want {
			t.Errorf("intlShippingYen(%d) = %v, want %v", tc.grams, got, tc.want)
		}
	}
}

type fakeSearch struct {
	mu         sync.Mutex
	inFlight   int32
	maxSeen    int32
	calls      int
	err        error
	perPhotoID func(i int) []Match
}

func (f *fakeSearch) SearchByImage(ctx context.Context, img image.Image) ([]Match, error) {
	cur := atomic.AddInt32(&f.inFlight, 1)
	defer atomic.AddInt32(&f.inFlight, -1)
	for {
		max := atomic.LoadInt32(&f.maxSeen)
		if cur <= max || atomic.CompareAndSwapInt32(&f.maxSeen, max, cur) {
			break
		}
	}
	f.mu.Lock()
	i := f.calls
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if f.perPhotoID != nil {
		return f.perPhotoID(i), nil
	}
	return []Match{{MatchID: "m", Cost: 50, ListingURL: "https://source.example.com/p/1"}}, nil
}

func TestEvaluateBatch_PreservesOrderAndBoundsWorkers(t *testing.T) {
	search := &fakeSearch{}
	e := NewEngine(defaultThresholds, search, 3, nil)

	queries := make([]SourceQuery, 20)
	for i := range queries {
		queries[i] = SourceQuery{
			Candidate: Candidate{
				ItemURL:   string(rune('a'+i)) + ".example.com",
				SalePrice: 3000 + i,
				Sales3Day: 40,
			},
			Photo: image.NewRGBA(image.Rect(0, 0, 1, 1)),
		}
	}

	decisions, err := e.EvaluateBatch(context.Background(), queries)
	if err != nil {
		t.Fatalf("EvaluateBatch: %v", err)
	}
	if len(decisions) != len(queries) {
		t.Fatalf("len = %d, want %d", len(decisions), len(queries))
	}
	for i, d := range decisions {
		if d.Candidate.ItemURL != queries[i].Candidate.ItemURL {
			t.Errorf("decision %d out of order: %s", i, d.Candidate.ItemURL)
		}
		if d.Candidate.SourceCost != 50 {
			t.Errorf("decision %d source cost = %v, want 50 from search", i, d.Candidate.SourceCost)
		}
	}
	if search.maxSeen > 3 {
		t.Errorf("concurrent lookups = %d, want <= 3", search.maxSeen)
	}
}

func TestEvaluateBatch_SearchErrorPropagates(t *testing.T) {
	wantErr := errors.New("image search unreachable")
	e := NewEngine(defaultThresholds, &fakeSearch{err: wantErr}, 2, nil)

	_, err := e.EvaluateBatch(context.Background(), []SourceQuery{
		{Candidate: Candidate{SalePrice: 3000}, Photo: image.NewRGBA(image.Rect(0, 0, 1, 1))},
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("err = %v, want wrapped search error", err)
	}
}

func TestCheapest(t *testing.T) {
	m, ok := cheapest([]Match{{Cost: 90}, {Cost: 40, MatchID: "low"}, {Cost: 60}})
	if !ok || m.MatchID != "low" {
		t.Errorf("cheapest = %+v, %v", m, ok)
	}
	if _, ok := cheapest(nil); ok {
		t.Error("cheapest(nil) reported a match")
	}
}
