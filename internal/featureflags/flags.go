// Package featureflags provides runtime switches for the inference models.
package featureflags

import (
	"time"
)

// Well-known feature flag keys.
const (
	// FlagForceRuleBasedDemand routes every demand prediction through the rule table.
	FlagForceRuleBasedDemand = "force_rule_based_demand"

	// FlagForceRuleBasedClustering groups trips by frequency bands instead of k-means.
	FlagForceRuleBasedClustering = "force_rule_based_clustering"

	// FlagDisableDeepLearning switches the forecaster, sentiment scorer and
	// occupancy estimator to their default results.
	FlagDisableDeepLearning = "disable_deep_learning"

	// FlagDisableAlertsPublishing drops operational alerts instead of publishing them.
	FlagDisableAlertsPublishing = "disable_alerts_publishing"

	// FlagRetrainOnSchedule allows periodic retraining and retrain jobs received
	// from the subscription. Manual retrains through the API ignore it.
	FlagRetrainOnSchedule = "retrain_on_schedule"
)

// Flag represents a feature flag with its current value.
type Flag struct {
	Key       string      `json:"key"`
	Value     interface{} `json:"value"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

// FlagList represents a list of feature flags.
type FlagList struct {
	Items []Flag `json:"items"`
}

// FlagUpdate represents a single flag update request.
type FlagUpdate struct {
	Key   string      `json:"key" validate:"required"`
	Value interface{} `json:"value"`
}

// FlagUpdateRequest represents a request to update feature flags.
type FlagUpdateRequest struct {
	Updates []FlagUpdate `json:"updates" validate:"required,min=1,dive"`
	Reason  string       `json:"reason"`
}

// BoolValue returns the flag value as a boolean.
// Returns the default value if the flag is nil or not a boolean.
func (f *Flag) BoolValue(defaultValue bool) bool {
	if f == nil {
		return defaultValue
	}
	switch v := f.Value.(type) {
	case bool:
		return v
	case float64:
		// JSON unmarshals numbers as float64
		return v != 0
	default:
		return defaultValue
	}
}

// IntValue returns the flag value as an integer.
func (f *Flag) IntValue(defaultValue int) int {
	if f == nil {
		return defaultValue
	}
	switch v := f.Value.(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return defaultValue
	}
}

// DefaultFlags returns the default feature flags for the engine.
func DefaultFlags() map[string]*Flag {
	now := time.Now()
	return map[string]*Flag{
		FlagForceRuleBasedDemand:     {Key: FlagForceRuleBasedDemand, Value: false, UpdatedAt: now},
		FlagForceRuleBasedClustering: {Key: FlagForceRuleBasedClustering, Value: false, UpdatedAt: now},
		FlagDisableDeepLearning:      {Key: FlagDisableDeepLearning, Value: false, UpdatedAt: now},
		FlagDisableAlertsPublishing:  {Key: FlagDisableAlertsPublishing, Value: false, UpdatedAt: now},
		FlagRetrainOnSchedule:        {Key: FlagRetrainOnSchedule, Value: true, UpdatedAt: now},
	}
}
