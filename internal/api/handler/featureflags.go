package handler

import (
	"net/http"
	"sort"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/citytransit/opsengine/internal/api/models"
	"github.com/citytransit/opsengine/internal/api/response"
	"github.com/citytransit/opsengine/internal/featureflags"
)

// FeatureFlagsHandler handles feature flag endpoints.
type FeatureFlagsHandler struct {
	service   *featureflags.Service
	validator *Validator
	logger    zerolog.Logger
}

// NewFeatureFlagsHandler creates a new FeatureFlagsHandler.
func NewFeatureFlagsHandler(service *featureflags.Service, validator *Validator, logger zerolog.Logger) *FeatureFlagsHandler {
	if validator == nil {
		validator = NewValidator()
	}
	return &FeatureFlagsHandler{
		service:   service,
		validator: validator,
		logger:    logger.With().Str("handler", "featureflags").Logger(),
	}
}

// ListFeatureFlags handles GET /v1/ops/flags - list all feature flags.
func (h *FeatureFlagsHandler) ListFeatureFlags(w http.ResponseWriter, r *http.Request) {
	flags := h.service.GetAllFlags(r.Context())

	items := make([]featureflags.Flag, 0, len(flags))
	for _, f := range flags {
		items = append(items, *f)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Key < items[j].Key })

	response.JSON(w, r, http.StatusOK, featureflags.FlagList{Items: items})
}

// UpsertFeatureFlags handles PUT /v1/ops/flags - update feature flags.
// Only flags the engine knows about may be set.
func (h *FeatureFlagsHandler) UpsertFeatureFlags(w http.ResponseWriter, r *http.Request) {
	var req featureflags.FlagUpdateRequest
	if !bind(w, r, h.validator, &req) {
		return
	}

	var fieldErrs []models.FieldError
	flags := make([]*featureflags.Flag, 0, len(req.Updates))
	for i, u := range req.Updates {
		field := "updates[" + strconv.Itoa(i) + "]"
		if !h.service.IsKnown(u.Key) {
			fieldErrs = append(fieldErrs, models.FieldError{
				Field:   field + ".key",
				Message: "unknown flag " + strconv.Quote(u.Key),
				Code:    "oneof",
			})
			continue
		}
		if _, ok := u.Value.(bool); !ok {
			fieldErrs = append(fieldErrs, models.FieldError{
				Field:   field + ".value",
				Message: "must be true or false",
				Code:    "boolean",
			})
			continue
		}
		flags = append(flags, &featureflags.Flag{Key: u.Key, Value: u.Value})
	}
	if len(fieldErrs) > 0 {
		response.BadRequest(w, r, "request validation failed", fieldErrs)
		return
	}

	if err := h.service.SetFlags(r.Context(), flags); err != nil {
		h.logger.Error().Err(err).Msg("failed to update feature flags")
		response.InternalError(w, r, "failed to update feature flags")
		return
	}

	h.logger.Info().
		Str("by", GetUserID(r.Context())).
		Int("count", len(flags)).
		Str("reason", req.Reason).
		Msg("feature flags updated")

	response.NoContent(w, r)
}

// InvalidateCache handles POST /v1/ops/flags/invalidate - invalidate flag cache.
func (h *FeatureFlagsHandler) InvalidateCache(w http.ResponseWriter, r *http.Request) {
	h.service.InvalidateCache()
	response.NoContent(w, r)
}
