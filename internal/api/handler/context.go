package handler

import (
	"context"

	"github.com/citytransit/opsengine/internal/api/middleware"
)

// GetUserID retrieves the authenticated subject from the context.
// This is a convenience wrapper around middleware.GetUserID.
func GetUserID(ctx context.Context) string {
	return middleware.GetUserID(ctx)
}
