package clustering

const featureCount = 8

// timeScore weights the morning peak above the evening peak.
func timeScore(hour int) float64 {
	switch {
	case hour >= 6 && hour <= 9:
		return 3
	case hour >= 17 && hour <= 20:
		return 2
	default:
		return 1
	}
}

func featureVector(p TripPattern) []float64 {
	weekend := 0.0
	if p.DayOfWeek > 5 {
		weekend = 1
	}
	return []float64{
		float64(p.DayOfWeek),
		float64(p.Hour),
		p.DistanceKm,
		float64(p.DurationMin),
		p.Cost,
		float64(p.WeeklyFrequency),
		timeScore(p.Hour),
		weekend,
	}
}

// bucketFor maps an hour to its time-of-day bucket.
func bucketFor(hour int) TimeBucket {
	switch {
	case hour >= 6 && hour < 12:
		return TimeMorning
	case hour >= 12 && hour < 17:
		return TimeAfternoon
	case hour >= 17 && hour < 21:
		return TimeEvening
	default:
		return TimeNight
	}
}
