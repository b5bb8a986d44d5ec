package sourcing

// Fee structure for the import route. Rates are fractions of the goods
// cost except marketplaceFeeRate, which applies to the sale price.
const (
	agentFeeRate       = 0.05
	customsRate        = 0.15
	marketplaceFeeRate = 0.10
	domesticShipping   = 200 // yen, fixed
)

// intlShippingYen returns the international shipping charge for a package
// weight in grams. Bands follow the forwarding agent's published table.
func intlShippingYen(weightGrams int) float64 {
	switch {
	case weightGrams <= 100:
		return 600
	case weightGrams <= 500:
		return 1200
	case weightGrams <= 1000:
		return 2000
	default:
		return 2800
	}
}

// CostBreakdown itemizes the landed cost of sourcing one unit, all in yen.
type CostBreakdown struct {
	Goods          float64
	AgentFee       float64
	Customs        float64
	IntlShipping   float64
	DomesticShip   float64
	MarketplaceFee float64
}

// Total is the full outlay for one unit sold.
func (b CostBreakdown) Total() float64 {
	return b.Goods + b.AgentFee + b.Customs + b.IntlShipping + b.DomesticShip + b.MarketplaceFee
}

// EstimateCosts itemizes the landed cost for a source price (source
// currency), package weight, and intended sale price (yen).
func EstimateCosts(sourceCost, exchangeRate float64, weightGrams, salePrice int) CostBreakdown {
	goods := sourceCost * exchangeRate
	return CostBreakdown{
		Goods:          goods,
		AgentFee:       goods * agentFeeRate,
		Customs:        goods * customsRate,
		IntlShipping:   intlShippingYen(weightGrams),
		DomesticShip:   domesticShipping,
		MarketplaceFee: float64(salePrice) * marketplaceFeeRate,
	}
}

// FeesInSourceCurrency converts everything but the goods themselves back to
// source currency, for use as a Candidate's EstimatedFees.
func FeesInSourceCurrency(b CostBreakdown, exchangeRate float64) float64 {
	if exchangeRate <= 0 {
		return 0
	}
	return (b.Total() - b.Goods) / exchangeRate
}
