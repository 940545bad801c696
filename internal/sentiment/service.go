package sentiment

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bluele/gcache"
	"github.com/rs/zerolog"

	"github.com/citytransit/opsengine/internal/alerts"
	"github.com/citytransit/opsengine/internal/featureflags"
	"github.com/citytransit/opsengine/internal/telemetry"
)

// Warnings attached to default results.
const (
	WarningDisabled = "sentiment analysis disabled, default result"
	WarningError    = "model error, using fallback"
)

const logPreviewLen = 50

// ServiceConfig holds configuration for the sentiment scorer.
type ServiceConfig struct {
	Logger   zerolog.Logger
	Recorder telemetry.Recorder
	Flags    *featureflags.Service
	Alerts   *alerts.Dispatcher

	// CacheSize bounds the number of memoized texts.
	// Default: 1024
	CacheSize int

	// CacheTTL expires memoized texts.
	// Default: 1 hour
	CacheTTL time.Duration
}

// Service scores rider feedback. It is safe for concurrent use.
type Service struct {
	logger   zerolog.Logger
	recorder telemetry.Recorder
	flags    *featureflags.Service
	alerts   *alerts.Dispatcher
	cache    gcache.Cache
}

// NewService creates a new sentiment scorer.
func NewService(cfg ServiceConfig) *Service {
	size := cfg.CacheSize
	if size == 0 {
		size = 1024
	}
	ttl := cfg.CacheTTL
	if ttl == 0 {
		ttl = time.Hour
	}
	recorder := cfg.Recorder
	if recorder == nil {
		recorder = telemetry.NopRecorder{}
	}

	return &Service{
		logger:   cfg.Logger.With().Str("model", ModelName).Logger(),
		recorder: recorder,
		flags:    cfg.Flags,
		alerts:   cfg.Alerts,
		cache:    gcache.New(size).LRU().Expiration(ttl).Build(),
	}
}

// IsLoaded reports whether the scorer is ready. The lexicons are static, so
// it always is.
func (s *Service) IsLoaded() bool { return true }

// Score analyzes req.Text. It never fails: blank text, a disabled scorer or
// an internal fault yield the neutral default result.
func (s *Service) Score(ctx context.Context, req Request) (res Result) {
	if s.flags.IsDeepLearningDisabled(ctx) {
		return s.fallback(ctx, req, telemetry.CauseDisabled, nil)
	}

	lower := strings.ToLower(strings.TrimSpace(req.Text))
	if lower == "" {
		return s.fallback(ctx, req, telemetry.CauseNoInput, ErrEmptyText)
	}

	defer func() {
		if r := recover(); r != nil {
			res = s.fallback(ctx, req, telemetry.CauseError, fmt.Errorf("panic: %v", r))
		}
	}()

	a := s.lookup(lower)
	res = Result{
		Text:           req.Text,
		UserID:         req.UserID,
		RouteID:        req.RouteID,
		Context:        req.Context,
		Sentiment:      a.label,
		Confidence:     a.scores.Get(a.label),
		Scores:         a.scores,
		Emotion:        a.emotion,
		Category:       a.category,
		Priority:       a.priority,
		ActionRequired: a.priority >= actionPriority,
		SuggestedReply: ReplyFor(a.label, a.category),
	}

	s.recorder.RecordInference(ctx, ModelName, telemetry.PathModel)
	s.logger.Debug().
		Str("text", preview(req.Text)).
		Str("sentiment", string(res.Sentiment)).
		Str("emotion", string(res.Emotion)).
		Str("category", string(res.Category)).
		Int("priority", res.Priority).
		Msg("feedback scored")

	if res.ActionRequired {
		s.raiseAlert(ctx, res)
	}
	return res
}

// ScoreBatch scores every request, preserving order.
func (s *Service) ScoreBatch(ctx context.Context, reqs []Request) []Result {
	out := make([]Result, len(reqs))
	for i, req := range reqs {
		out[i] = s.Score(ctx, req)
	}
	return out
}

func (s *Service) lookup(lower string) analysis {
	if v, err := s.cache.Get(lower); err == nil {
		if a, ok := v.(analysis); ok {
			return a
		}
	}
	a := analyze(lower)
	_ = s.cache.Set(lower, a) //nolint:errcheck // only fails for loader caches
	return a
}

func (s *Service) raiseAlert(ctx context.Context, res Result) {
	alert := alerts.New(alerts.KindUrgentFeedback,
		fmt.Sprintf("Feedback %s (%s): %s", strings.ToLower(string(res.Sentiment)), res.Category, preview(res.Text)),
		res.Priority)
	alert.RouteID = res.RouteID
	alert.UserID = res.UserID
	s.alerts.Notify(ctx, alert)
}

// DefaultResult is returned for blank text and on any fault.
func DefaultResult(text string) Result {
	return Result{
		Text:           text,
		Sentiment:      LabelNeutral,
		Confidence:     0.5,
		Scores:         Scores{Positive: 0.33, Negative: 0.33, Neutral: 0.34},
		Emotion:        EmotionNeutral,
		Category:       CategoryService,
		Priority:       basePriority,
		ActionRequired: false,
		SuggestedReply: ReplyDefault,
	}
}

func (s *Service) fallback(ctx context.Context, req Request, cause string, err error) Result {
	event := s.logger.Warn()
	if cause == telemetry.CauseError {
		event = s.logger.Error()
	}
	if err != nil {
		event = event.Err(err)
	}
	event.Str("cause", cause).Msg("returning default sentiment")
	s.recorder.RecordFallback(ctx, ModelName, cause)

	res := DefaultResult(req.Text)
	res.UserID = req.UserID
	res.RouteID = req.RouteID
	res.Context = req.Context
	switch cause {
	case telemetry.CauseDisabled:
		res.Warning = WarningDisabled
	case telemetry.CauseError:
		res.Warning = WarningError
	}
	return res
}

func preview(text string) string {
	r := []rune(text)
	if len(r) <= logPreviewLen {
		return text
	}
	return string(r[:logPreviewLen]) + "..."
}
