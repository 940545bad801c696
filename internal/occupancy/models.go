// Package occupancy estimates vehicle occupancy from a camera image
// reference.
package occupancy

// ModelName identifies the estimator in logs and metrics.
const ModelName = "occupancy"

// Capacity is the nominal passenger capacity of a vehicle.
const Capacity = 40

// Level is a categorical occupancy bucket.
type Level string

// Levels.
const (
	LevelEmpty      Level = "VACIO"
	LevelLow        Level = "BAJO"
	LevelMedium     Level = "MEDIO"
	LevelHigh       Level = "ALTO"
	LevelFull       Level = "LLENO"
	LevelOverloaded Level = "SOBRECARGADO"
)

// Trend statuses.
const (
	TrendStatusOK     = "OK"
	TrendStatusNoData = "SIN_DATOS"
)

// Request references a camera frame by inline base64 payload or URL.
type Request struct {
	VehicleID   int64  `json:"vehicleId"`
	RouteID     int64  `json:"routeId,omitempty"`
	ImageBase64 string `json:"imageBase64,omitempty"`
	ImageURL    string `json:"imageUrl,omitempty" validate:"omitempty,url"`
}

// HasImage reports whether the request references an image.
func (r Request) HasImage() bool {
	return r.ImageBase64 != "" || r.ImageURL != ""
}

// Box is a detected person's bounding box on a 640x480 frame.
type Box struct {
	X          int     `json:"x"`
	Y          int     `json:"y"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	Confidence float64 `json:"confidence"`
}

// Result is the occupancy estimate for one frame.
type Result struct {
	VehicleID         int64   `json:"vehicleId"`
	RouteID           int64   `json:"routeId,omitempty"`
	People            int     `json:"peopleDetected"`
	Capacity          int     `json:"capacity"`
	Ratio             float64 `json:"occupancyRatio"`
	Level             Level   `json:"occupancyLevel"`
	Boxes             []Box   `json:"boxes"`
	SafetyAlert       string  `json:"safetyAlert,omitempty"`
	NeedsExtraVehicle bool    `json:"needsAdditionalVehicle"`
	Confidence        float64 `json:"detectionConfidence"`
	Warning           string  `json:"warning,omitempty"`
}

// TrendReport aggregates a series of results for a route.
type TrendReport struct {
	RouteID           int64   `json:"routeId"`
	Status            string  `json:"status"`
	AverageRatio      float64 `json:"averageOccupancy"`
	Overloaded        int     `json:"overloadedVehicles"`
	Total             int     `json:"totalAnalyses"`
	NeedsOptimization bool    `json:"needsOptimization"`
}
