// Package sentiment scores free-text rider feedback: sentiment label,
// dominant emotion, topic category, priority and a suggested reply.
package sentiment

import "errors"

// ModelName identifies the scorer in logs and metrics.
const ModelName = "sentiment"

// Errors returned by the sentiment package.
var (
	// ErrEmptyText is logged when a request carries no text.
	ErrEmptyText = errors.New("empty feedback text")
)

// Label is a sentiment label.
type Label string

// Labels, in tie-break order.
const (
	LabelNegative Label = "NEGATIVO"
	LabelPositive Label = "POSITIVO"
	LabelNeutral  Label = "NEUTRAL"
)

// Emotion is the dominant emotion detected in a text.
type Emotion string

// Emotions.
const (
	EmotionSatisfied  Emotion = "SATISFECHO"
	EmotionFrustrated Emotion = "FRUSTRADO"
	EmotionAngry      Emotion = "ENOJADO"
	EmotionConfused   Emotion = "CONFUNDIDO"
	EmotionNeutral    Emotion = "NEUTRAL"
)

// Category is the topic of the feedback.
type Category string

// Categories.
const (
	CategoryDriver      Category = "CONDUCTOR"
	CategoryCleanliness Category = "LIMPIEZA"
	CategoryPunctuality Category = "PUNTUALIDAD"
	CategoryFare        Category = "TARIFA"
	CategoryService     Category = "SERVICIO"
)

// Request is a piece of feedback to score.
type Request struct {
	Text    string `json:"text" validate:"max=5000"`
	UserID  int64  `json:"userId,omitempty"`
	RouteID int64  `json:"routeId,omitempty"`
	// Context is the caller's own classification (QUEJA, SUGERENCIA, ...).
	Context string `json:"context,omitempty"`
}

// Scores holds the per-label scores.
type Scores struct {
	Positive float64 `json:"POSITIVO"`
	Negative float64 `json:"NEGATIVO"`
	Neutral  float64 `json:"NEUTRAL"`
}

// Get returns the score for label.
func (s Scores) Get(label Label) float64 {
	switch label {
	case LabelPositive:
		return s.Positive
	case LabelNegative:
		return s.Negative
	default:
		return s.Neutral
	}
}

// Result is the scored feedback.
type Result struct {
	Text           string   `json:"text"`
	UserID         int64    `json:"userId,omitempty"`
	RouteID        int64    `json:"routeId,omitempty"`
	Context        string   `json:"context,omitempty"`
	Sentiment      Label    `json:"sentiment"`
	Confidence     float64  `json:"confidence"`
	Scores         Scores   `json:"scores"`
	Emotion        Emotion  `json:"emotion"`
	Category       Category `json:"category"`
	Priority       int      `json:"priority"`
	ActionRequired bool     `json:"actionRequired"`
	SuggestedReply string   `json:"suggestedReply"`
	Warning        string   `json:"warning,omitempty"`
}
