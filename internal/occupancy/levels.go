package occupancy

import (
	"fmt"
	"math"
)

type levelRow struct {
	match func(ratio float64) bool
	level Level
}

// levelTable is evaluated top to bottom; the first matching row wins.
var levelTable = []levelRow{
	{func(r float64) bool { return r < 0.25 }, LevelEmpty},
	{func(r float64) bool { return r < 0.50 }, LevelLow},
	{func(r float64) bool { return r < 0.75 }, LevelMedium},
	{func(r float64) bool { return r < 0.90 }, LevelHigh},
	{func(r float64) bool { return r <= 1.0 }, LevelFull},
}

// LevelFor returns the occupancy level for a ratio of people to capacity.
func LevelFor(ratio float64) Level {
	for _, row := range levelTable {
		if row.match(ratio) {
			return row.level
		}
	}
	return LevelOverloaded
}

const (
	overloadThreshold   = 1.0
	extraVehicleRatio   = 0.85
	optimizationAverage = 0.80
)

// SafetyAlert returns the overload alert text, or "" when ratio is within
// capacity.
func SafetyAlert(ratio float64) string {
	if ratio <= overloadThreshold {
		return ""
	}
	return fmt.Sprintf("ALERTA: Vehículo sobrecargado - Supera capacidad en %.0f%%", math.Round((ratio-1)*100))
}
