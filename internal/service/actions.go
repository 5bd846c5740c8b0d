// Package service holds the user lookup built on an injected database.Database.
package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/kjstillabower/user-lookup-service/internal/database"
	"github.com/kjstillabower/user-lookup-service/internal/models"
	"github.com/kjstillabower/user-lookup-service/internal/observability"
)

// ErrCollaboratorPanic wraps a panic raised inside the collaborator.
var ErrCollaboratorPanic = errors.New("collaborator panicked")

// UserActions runs user lookups against the Database it was built with.
type UserActions struct {
	db     database.Database
	logger *zap.Logger
}

// NewUserActions binds lookups to db. A nil db binds database.Unconfigured.
// logger may be nil; a request-scoped logger in ctx takes precedence.
func NewUserActions(db database.Database, logger *zap.Logger) *UserActions {
	if db == nil {
		db = database.Unconfigured
	}
	return &UserActions{db: db, logger: logger}
}

// GetUser returns the collaborator's record for id, or nil if the collaborator
// failed for any reason. It never returns an error and never panics.
func (a *UserActions) GetUser(ctx context.Context, id int64) *models.User {
	u, err := a.Lookup(ctx, id)
	if err != nil {
		return nil
	}
	return &u
}

// Lookup is GetUser with the failure kept. The collaborator is called exactly once
// with id unchanged; errors come back wrapped so errors.Is still sees
// database.ErrNotFound and friends.
func (a *UserActions) Lookup(ctx context.Context, id int64) (models.User, error) {
	u, err := a.call(ctx, id)
	observability.RecordUserLookup(err == nil)
	if err != nil {
		category := database.Category(err)
		if errors.Is(err, ErrCollaboratorPanic) {
			category = "panic"
		}
		observability.CollaboratorErrorsTotal.WithLabelValues(category).Inc()
		if logger := observability.LoggerFromContext(ctx, a.logger); logger != nil {
			logger.Debug("user lookup failed", zap.Int64("user_id", id), zap.String("category", category), zap.Error(err))
		}
		return models.User{}, fmt.Errorf("get user %d: %w", id, err)
	}
	return u, nil
}

func (a *UserActions) call(ctx context.Context, id int64) (u models.User, err error) {
	defer func() {
		if r := recover(); r != nil {
			u = models.User{}
			err = fmt.Errorf("%w: %v", ErrCollaboratorPanic, r)
		}
	}()
	return a.db.GetUser(ctx, id)
}
