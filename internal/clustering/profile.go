package clustering

import (
	"fmt"
	"sort"
)

// Recommendation texts.
const (
	RecommendSubscription = "Una suscripción mensual te ahorraría dinero"
	RecommendDefault      = "Descarga la app para más beneficios"
)

// subscriptionSpendThreshold is the weekly spend above which a subscription is suggested.
const subscriptionSpendThreshold = 50.0

var profileRecommendations = map[Profile][]string{
	ProfileCommuter: {
		"Suscripción mensual - Ahorra hasta 30%",
		"Viaja fuera de hora pico - Descuento 15%",
		"Plan corporativo disponible",
	},
	ProfileStudent: {
		"Tarjeta estudiantil - 50% descuento",
		"Paquete semana académica",
	},
	ProfileOccasional: {
		"Recarga $10 y recibe $2 extra",
		"Pases de día disponibles",
	},
	ProfileTourist: {
		"Pase turístico 3 días ilimitados",
		"Rutas recomendadas para ti",
	},
}

type profileRule struct {
	Profile Profile
	Match   func(avgFrequency float64, patterns []TripPattern) bool
}

// profileRules are checked in order; the first match wins and REGULAR is the default.
var profileRules = []profileRule{
	{
		Profile: ProfileCommuter,
		Match:   func(f float64, _ []TripPattern) bool { return f >= 8 },
	},
	{
		Profile: ProfileStudent,
		Match: func(f float64, ps []TripPattern) bool {
			return f >= 4 && f < 8 && anyPattern(ps, func(p TripPattern) bool {
				return (p.Hour >= 7 && p.Hour <= 9) || (p.Hour >= 13 && p.Hour <= 15)
			})
		},
	},
	{
		Profile: ProfileOccasional,
		Match:   func(f float64, _ []TripPattern) bool { return f < 4 },
	},
	{
		Profile: ProfileTourist,
		Match: func(_ float64, ps []TripPattern) bool {
			return anyPattern(ps, func(p TripPattern) bool { return p.DayOfWeek > 5 })
		},
	},
}

func anyPattern(ps []TripPattern, pred func(TripPattern) bool) bool {
	for _, p := range ps {
		if pred(p) {
			return true
		}
	}
	return false
}

// ProfileFor applies the profile rules to a group of patterns.
func ProfileFor(avgFrequency float64, patterns []TripPattern) Profile {
	for _, rule := range profileRules {
		if rule.Match(avgFrequency, patterns) {
			return rule.Profile
		}
	}
	return ProfileRegular
}

// RecommendationsFor returns the offers for a profile, plus the subscription
// line when weekly spend exceeds the threshold.
func RecommendationsFor(profile Profile, weeklySpend float64) []string {
	base, ok := profileRecommendations[profile]
	if !ok {
		base = []string{RecommendDefault}
	}
	out := append([]string(nil), base...)
	if weeklySpend > subscriptionSpendThreshold {
		out = append(out, RecommendSubscription)
	}
	return out
}

// analyzeCluster computes the summary statistics of one group.
func analyzeCluster(clusterID int, patterns []TripPattern) UserCluster {
	var freqSum, costSum float64
	for _, p := range patterns {
		freqSum += float64(p.WeeklyFrequency)
		costSum += p.Cost
	}

	var avgFreq, avgCost float64
	if n := float64(len(patterns)); n > 0 {
		avgFreq = freqSum / n
		avgCost = costSum / n
	}
	spend := avgCost * avgFreq
	profile := ProfileFor(avgFreq, patterns)

	return UserCluster{
		ClusterID:          clusterID,
		Profile:            profile,
		Members:            len(patterns),
		AvgWeeklyFrequency: avgFreq,
		FrequentRoutes:     topRoutes(patterns, 3),
		PreferredTime:      preferredTime(patterns),
		AvgWeeklySpend:     spend,
		Recommendations:    RecommendationsFor(profile, spend),
	}
}

// topRoutes returns up to n routes by trip count, ties in first-seen order.
func topRoutes(patterns []TripPattern, n int) []string {
	type routeCount struct {
		route int64
		count int
	}

	index := make(map[int64]int)
	var counts []routeCount
	for _, p := range patterns {
		i, ok := index[p.RouteID]
		if !ok {
			i = len(counts)
			index[p.RouteID] = i
			counts = append(counts, routeCount{route: p.RouteID})
		}
		counts[i].count++
	}

	sort.SliceStable(counts, func(a, b int) bool { return counts[a].count > counts[b].count })

	if len(counts) > n {
		counts = counts[:n]
	}
	out := make([]string, len(counts))
	for i, rc := range counts {
		out[i] = fmt.Sprintf("Ruta %d", rc.route)
	}
	return out
}

var bucketOrder = []TimeBucket{TimeMorning, TimeAfternoon, TimeEvening, TimeNight}

// preferredTime is the plurality bucket; ties go to the earlier bucket.
func preferredTime(patterns []TripPattern) TimeBucket {
	if len(patterns) == 0 {
		return TimeUnknown
	}

	votes := make(map[TimeBucket]int, len(bucketOrder))
	for _, p := range patterns {
		votes[bucketFor(p.Hour)]++
	}

	best, bestVotes := TimeUnknown, 0
	for _, b := range bucketOrder {
		if votes[b] > bestVotes {
			best, bestVotes = b, votes[b]
		}
	}
	return best
}
