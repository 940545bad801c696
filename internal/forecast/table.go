package forecast

// demandRow is one row of the hourly demand table.
type demandRow struct {
	Match   func(hour int) bool
	Weekday int
	Weekend int
}

const defaultBaseDemand = 10

// demandTable is evaluated top to bottom; the first matching row wins, so
// midday shadows the wider business-hours row.
var demandTable = []demandRow{
	{Match: func(h int) bool { return h >= 6 && h <= 8 }, Weekday: 35, Weekend: 15},
	{Match: func(h int) bool { return h >= 12 && h <= 14 }, Weekday: 28, Weekend: 18},
	{Match: func(h int) bool { return h >= 18 && h <= 20 }, Weekday: 38, Weekend: 20},
	{Match: func(h int) bool { return h >= 9 && h <= 17 }, Weekday: 20, Weekend: 12},
	{Match: func(h int) bool { return h >= 21 || h <= 5 }, Weekday: 5, Weekend: 8},
}

// BaseDemand returns the expected passengers for an hour and ISO day of week
// (Monday=1, weekend is 6 and 7).
func BaseDemand(hour, dayOfWeek int) int {
	weekend := dayOfWeek > 5
	for _, row := range demandTable {
		if row.Match(hour) {
			if weekend {
				return row.Weekend
			}
			return row.Weekday
		}
	}
	return defaultBaseDemand
}

const trendThreshold = 0.15

// ClassifyTrend compares the last value with the first. Sequences shorter
// than two, or starting at zero, are stable.
func ClassifyTrend(values []int) Trend {
	if len(values) < 2 || values[0] == 0 {
		return TrendStable
	}
	first, last := values[0], values[len(values)-1]
	change := float64(last-first) / float64(first)
	switch {
	case change > trendThreshold:
		return TrendIncreasing
	case change < -trendThreshold:
		return TrendDecreasing
	default:
		return TrendStable
	}
}
