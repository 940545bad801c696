package demand

import "time"

// featureCount is the width of the feature vector, excluding the intercept.
const featureCount = 10

// Defaults applied by Enrich.
const (
	DefaultTemperature = 20.0
	DefaultWeather     = WeatherSunny
)

// IsRushHour reports whether hour falls in the morning (6-9) or evening (17-20) peak.
func IsRushHour(hour int) bool {
	return (hour >= 6 && hour <= 9) || (hour >= 17 && hour <= 20)
}

// ISOWeekday returns the day of week with Monday=1 and Sunday=7.
func ISOWeekday(t time.Time) int {
	wd := int(t.Weekday())
	if wd == 0 {
		return 7
	}
	return wd
}

// featureVector returns the model inputs in fixed order.
func featureVector(r FeatureRecord) []float64 {
	return []float64{
		float64(r.DayOfWeek),
		float64(r.Hour),
		float64(r.Month),
		boolFeature(r.IsHoliday),
		boolFeature(r.IsWeekend),
		r.Temperature,
		r.Weather.Ordinal(),
		boolFeature(r.IsRushHour),
		float64(r.HourOfDay),
		float64(r.MinuteOfDay) / 1440.0,
	}
}

func boolFeature(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// NewRecord derives a complete FeatureRecord from a timestamp using the
// default temperature and weather.
func NewRecord(routeID int64, ts time.Time) FeatureRecord {
	dow := ISOWeekday(ts)
	return FeatureRecord{
		RouteID:     routeID,
		Timestamp:   ts,
		DayOfWeek:   dow,
		Hour:        ts.Hour(),
		Month:       int(ts.Month()),
		IsHoliday:   false,
		IsWeekend:   dow > 5,
		Temperature: DefaultTemperature,
		Weather:     DefaultWeather,
		HourOfDay:   ts.Hour(),
		MinuteOfDay: ts.Hour()*60 + ts.Minute(),
		IsRushHour:  IsRushHour(ts.Hour()),
	}
}

// Enrich fills every field missing from in. Derived fields come from the
// timestamp, which defaults to now; fields the caller supplied are kept as is.
func Enrich(in Input, now time.Time) FeatureRecord {
	ts := now
	if in.Timestamp != nil && !in.Timestamp.IsZero() {
		ts = *in.Timestamp
	}

	r := NewRecord(in.RouteID, ts)
	if in.DayOfWeek != nil {
		r.DayOfWeek = *in.DayOfWeek
	}
	if in.Hour != nil {
		r.Hour = *in.Hour
	}
	if in.Month != nil {
		r.Month = *in.Month
	}
	if in.IsHoliday != nil {
		r.IsHoliday = *in.IsHoliday
	}
	if in.IsWeekend != nil {
		r.IsWeekend = *in.IsWeekend
	}
	if in.Temperature != nil {
		r.Temperature = *in.Temperature
	}
	if in.Weather != nil {
		r.Weather = ParseWeather(*in.Weather)
	}
	if in.HourOfDay != nil {
		r.HourOfDay = *in.HourOfDay
	}
	if in.MinuteOfDay != nil {
		r.MinuteOfDay = *in.MinuteOfDay
	}
	if in.IsRushHour != nil {
		r.IsRushHour = *in.IsRushHour
	}
	return r
}

// QuickRecord builds the record for a quick prediction. When at is nil the
// slot one hour after now is used.
func QuickRecord(routeID int64, at *time.Time, now time.Time) FeatureRecord {
	ts := now.Add(time.Hour)
	if at != nil && !at.IsZero() {
		ts = *at
	}
	return NewRecord(routeID, ts)
}
