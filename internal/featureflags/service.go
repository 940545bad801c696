package featureflags

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	// ErrUnknownFlag is returned when setting a flag the engine does not read.
	ErrUnknownFlag = errors.New("unknown feature flag")

	// ErrInvalidFlagValue is returned when a flag value is not a boolean.
	ErrInvalidFlagValue = errors.New("feature flag value must be a boolean")
)

// ServiceConfig holds configuration for the feature flag service.
type ServiceConfig struct {
	Repository   Repository
	Logger       zerolog.Logger
	CacheTTL     time.Duration // How long to cache flags in memory
	DefaultFlags map[string]*Flag
}

// Service provides feature flag evaluation with caching and fallback to defaults.
type Service struct {
	repo         Repository
	logger       zerolog.Logger
	cacheTTL     time.Duration
	defaultFlags map[string]*Flag

	mu          sync.RWMutex
	cache       map[string]*Flag
	cacheExpiry time.Time
}

// NewService creates a new feature flag service.
func NewService(cfg ServiceConfig) *Service {
	cacheTTL := cfg.CacheTTL
	if cacheTTL == 0 {
		cacheTTL = 30 * time.Second
	}

	defaultFlags := cfg.DefaultFlags
	if defaultFlags == nil {
		defaultFlags = DefaultFlags()
	}

	return &Service{
		repo:         cfg.Repository,
		logger:       cfg.Logger,
		cacheTTL:     cacheTTL,
		defaultFlags: defaultFlags,
		cache:        make(map[string]*Flag),
	}
}

// GetFlag retrieves a feature flag by key.
// Uses cached value if available and not expired, with fallback to defaults.
func (s *Service) GetFlag(ctx context.Context, key string) *Flag {
	// Try cache first
	if flag := s.getCached(key); flag != nil {
		return flag
	}

	// Try repository
	flag, err := s.repo.GetFlag(ctx, key)
	if err == nil {
		s.setCached(key, flag)
		return flag
	}

	// Log error if not just "not found"
	if !errors.Is(err, ErrFlagNotFound) {
		s.logger.Warn().Err(err).Str("flag", key).Msg("failed to get feature flag from repository")
	}

	// Fallback to default
	if defaultFlag, ok := s.defaultFlags[key]; ok {
		return defaultFlag
	}

	return nil
}

// GetAllFlags retrieves all feature flags.
// Returns cached values merged with defaults.
func (s *Service) GetAllFlags(ctx context.Context) map[string]*Flag {
	// Start with defaults
	result := make(map[string]*Flag, len(s.defaultFlags))
	for k, v := range s.defaultFlags {
		result[k] = v
	}

	// Try to get from repository
	flags, err := s.repo.GetAllFlags(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to get feature flags from repository, using defaults")
		return result
	}

	// Merge repository flags over defaults
	for k, v := range flags {
		result[k] = v
	}

	// Update cache
	s.mu.Lock()
	s.cache = flags
	s.cacheExpiry = time.Now().Add(s.cacheTTL)
	s.mu.Unlock()

	return result
}

// IsKnown reports whether key is one of the engine's flags.
func (s *Service) IsKnown(key string) bool {
	if s == nil {
		return false
	}
	_, ok := s.defaultFlags[key]
	return ok
}

// SetFlag updates a feature flag.
func (s *Service) SetFlag(ctx context.Context, flag *Flag) error {
	return s.SetFlags(ctx, []*Flag{flag})
}

// SetFlags updates multiple feature flags atomically. Every flag must be
// known and boolean, otherwise nothing is written.
func (s *Service) SetFlags(ctx context.Context, flags []*Flag) error {
	if err := s.validate(flags); err != nil {
		return err
	}

	previous := make(map[string]bool, len(flags))
	for _, flag := range flags {
		previous[flag.Key] = s.GetFlag(ctx, flag.Key).BoolValue(false)
	}

	now := time.Now()
	for _, flag := range flags {
		flag.UpdatedAt = now
	}

	if err := s.repo.SetFlags(ctx, flags); err != nil {
		return err
	}

	s.mu.Lock()
	for _, flag := range flags {
		s.cache[flag.Key] = flag
	}
	if s.cacheExpiry.Before(now) {
		s.cacheExpiry = now.Add(s.cacheTTL)
	}
	s.mu.Unlock()

	for _, flag := range flags {
		if to := flag.BoolValue(false); to != previous[flag.Key] {
			s.logger.Info().
				Str("flag", flag.Key).
				Bool("from", previous[flag.Key]).
				Bool("to", to).
				Msg("feature flag changed")
		}
	}
	return nil
}

func (s *Service) validate(flags []*Flag) error {
	for _, flag := range flags {
		if !s.IsKnown(flag.Key) {
			return fmt.Errorf("%w: %q", ErrUnknownFlag, flag.Key)
		}
		if _, ok := flag.Value.(bool); !ok {
			return fmt.Errorf("%w: %q", ErrInvalidFlagValue, flag.Key)
		}
	}
	return nil
}

// InvalidateCache clears the cached flags, forcing a refresh on next access.
func (s *Service) InvalidateCache() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache = make(map[string]*Flag)
	s.cacheExpiry = time.Time{}
}

// IsEnabled returns true if the flag with the given key is enabled (truthy).
// This is a convenience method for boolean flags.
func (s *Service) IsEnabled(ctx context.Context, key string) bool {
	flag := s.GetFlag(ctx, key)
	return flag.BoolValue(false)
}

// getCached retrieves a flag from cache if valid.
func (s *Service) getCached(key string) *Flag {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if time.Now().After(s.cacheExpiry) {
		return nil
	}

	flag, ok := s.cache[key]
	if !ok {
		return nil
	}
	return flag
}

// setCached stores a flag in the cache.
func (s *Service) setCached(key string, flag *Flag) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cache[key] = flag
	// Extend cache expiry if setting individual flags
	if s.cacheExpiry.Before(time.Now()) {
		s.cacheExpiry = time.Now().Add(s.cacheTTL)
	}
}

// Convenience methods for well-known flags. All of them are safe on a nil
// Service and report the flag default in that case.

// IsRuleBasedDemandForced returns true if demand predictions must use the rule table.
func (s *Service) IsRuleBasedDemandForced(ctx context.Context) bool {
	if s == nil {
		return false
	}
	return s.IsEnabled(ctx, FlagForceRuleBasedDemand)
}

// IsRuleBasedClusteringForced returns true if clustering must use frequency bands.
func (s *Service) IsRuleBasedClusteringForced(ctx context.Context) bool {
	if s == nil {
		return false
	}
	return s.IsEnabled(ctx, FlagForceRuleBasedClustering)
}

// IsDeepLearningDisabled returns true if the forecaster, sentiment and occupancy
// services must return their default results.
func (s *Service) IsDeepLearningDisabled(ctx context.Context) bool {
	if s == nil {
		return false
	}
	return s.IsEnabled(ctx, FlagDisableDeepLearning)
}

// IsAlertsPublishingDisabled returns true if operational alerts must be dropped.
func (s *Service) IsAlertsPublishingDisabled(ctx context.Context) bool {
	if s == nil {
		return false
	}
	return s.IsEnabled(ctx, FlagDisableAlertsPublishing)
}

// IsScheduledRetrainEnabled returns true if retrain jobs may run.
func (s *Service) IsScheduledRetrainEnabled(ctx context.Context) bool {
	if s == nil {
		return true
	}
	return s.IsEnabled(ctx, FlagRetrainOnSchedule)
}
