package demand

// levelRule maps counts below Below to Level.
type levelRule struct {
	Below int
	Level Level
}

// levelTable is evaluated in order; counts past the last row are LevelVeryHigh.
var levelTable = []levelRule{
	{Below: 10, Level: LevelLow},
	{Below: 25, Level: LevelMedium},
	{Below: 40, Level: LevelHigh},
}

// LevelFor returns the demand level for a passenger count.
func LevelFor(passengers int) Level {
	for _, rule := range levelTable {
		if passengers < rule.Below {
			return rule.Level
		}
	}
	return LevelVeryHigh
}

type recommendationRule struct {
	Match func(ratio float64) bool
	Text  string
}

// Recommendation texts.
const (
	RecommendIncrease         = "AUMENTAR FRECUENCIA - Ocupación muy alta"
	RecommendConsiderIncrease = "CONSIDERAR AUMENTAR FRECUENCIA - Ocupación alta"
	RecommendConsiderReduce   = "CONSIDERAR REDUCIR FRECUENCIA - Ocupación baja"
	RecommendNormal           = "FRECUENCIA NORMAL - Ocupación óptima"
	RecommendRuleBased        = "Modelo no entrenado - Predicción por reglas"
)

var recommendationTable = []recommendationRule{
	{Match: func(r float64) bool { return r > 0.9 }, Text: RecommendIncrease},
	{Match: func(r float64) bool { return r > 0.75 }, Text: RecommendConsiderIncrease},
	{Match: func(r float64) bool { return r < 0.3 }, Text: RecommendConsiderReduce},
}

// RecommendationFor returns the frequency recommendation for an occupancy ratio.
func RecommendationFor(ratio float64) string {
	for _, rule := range recommendationTable {
		if rule.Match(ratio) {
			return rule.Text
		}
	}
	return RecommendNormal
}

type adjustment struct {
	Applies func(FeatureRecord) bool
	Delta   int
}

const fallbackBase = 15

// fallbackAdjustments are added to fallbackBase for every rule that applies.
var fallbackAdjustments = []adjustment{
	{Applies: func(r FeatureRecord) bool { return r.IsRushHour }, Delta: 20},
	{Applies: func(r FeatureRecord) bool { return r.IsWeekend }, Delta: -5},
	{Applies: func(r FeatureRecord) bool { return r.IsHoliday }, Delta: -10},
}

// RuleBasedPassengers returns the rule table estimate for a record.
func RuleBasedPassengers(r FeatureRecord) int {
	n := fallbackBase
	for _, adj := range fallbackAdjustments {
		if adj.Applies(r) {
			n += adj.Delta
		}
	}
	if n < 0 {
		return 0
	}
	return n
}

// occupancyRatio is the share of capacity used, capped at a full vehicle.
func occupancyRatio(passengers int) float64 {
	ratio := float64(passengers) / Capacity
	if ratio > 1 {
		return 1
	}
	return ratio
}
