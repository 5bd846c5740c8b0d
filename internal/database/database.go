// Package database holds the collaborator that user lookups delegate to: the
// Database capability, its sentinel errors, and the concrete backends.
package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/kjstillabower/user-lookup-service/internal/models"
)

// Database is the data-access capability behind every user lookup.
type Database interface {
	GetUser(ctx context.Context, id int64) (models.User, error)
}

var (
	// ErrNotFound is returned when no record exists for the id.
	ErrNotFound = errors.New("user not found")
	// ErrUnavailable is returned when the backing store cannot be reached.
	ErrUnavailable = errors.New("user store unavailable")
	// ErrNotConfigured is returned by Unconfigured for every call.
	ErrNotConfigured = errors.New("user store not configured")
)

// Func adapts a plain function to Database.
type Func func(ctx context.Context, id int64) (models.User, error)

// GetUser calls f.
func (f Func) GetUser(ctx context.Context, id int64) (models.User, error) {
	return f(ctx, id)
}

type unconfigured struct{}

// Unconfigured is the default collaborator before any backend is wired. A real
// lookup must never reach it, so every call fails.
var Unconfigured Database = unconfigured{}

func (unconfigured) GetUser(ctx context.Context, id int64) (models.User, error) {
	return models.User{}, fmt.Errorf("%w: lookup of user %d reached the default store; this should not be called in a test", ErrNotConfigured, id)
}

// Category returns a stable metric label for a collaborator error.
func Category(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrNotConfigured):
		return "not_configured"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return "timeout"
	case errors.Is(err, ErrUnavailable):
		return "unavailable"
	default:
		return "unknown"
	}
}
