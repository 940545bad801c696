// Package alerts publishes operational alerts raised by the inference
// services (overloaded vehicles, urgent rider feedback).
package alerts

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Kind classifies an alert.
type Kind string

// Alert kinds.
const (
	KindOverload        Kind = "OVERLOAD"
	KindUrgentFeedback  Kind = "URGENT_FEEDBACK"
	KindAdditionalFleet Kind = "ADDITIONAL_VEHICLE"
)

// Alert is a single operational alert.
type Alert struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	RouteID   int64     `json:"routeId,omitempty"`
	VehicleID string    `json:"vehicleId,omitempty"`
	UserID    int64     `json:"userId,omitempty"`
	Message   string    `json:"message"`
	Priority  int       `json:"priority"`
	CreatedAt time.Time `json:"createdAt"`
}

// New creates an alert with a fresh id.
func New(kind Kind, message string, priority int) Alert {
	return Alert{
		ID:        uuid.New().String(),
		Kind:      kind,
		Message:   message,
		Priority:  priority,
		CreatedAt: time.Now().UTC(),
	}
}

// Key returns the partitioning key: the vehicle when set, else the route.
func (a Alert) Key() string {
	if a.VehicleID != "" {
		return a.VehicleID
	}
	if a.RouteID != 0 {
		return "route-" + strconv.FormatInt(a.RouteID, 10)
	}
	return a.ID
}

// Publisher delivers alerts.
type Publisher interface {
	Publish(ctx context.Context, alert Alert) error
	Close() error
}
