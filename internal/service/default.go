package service

import (
	"context"
	"sync"

	"github.com/kjstillabower/user-lookup-service/internal/database"
	"github.com/kjstillabower/user-lookup-service/internal/models"
)

// The process-wide lookup used by GetUser. It starts on database.Unconfigured,
// so nothing reaches a real store until wiring calls SetDatabase.
var (
	defaultMu      sync.RWMutex
	defaultActions = NewUserActions(database.Unconfigured, nil)
)

// GetUser looks id up through the process-wide collaborator. See UserActions.GetUser.
func GetUser(ctx context.Context, id int64) *models.User {
	return current().GetUser(ctx, id)
}

// Lookup is GetUser with the failure kept. See UserActions.Lookup.
func Lookup(ctx context.Context, id int64) (models.User, error) {
	return current().Lookup(ctx, id)
}

// SetDefault installs a as the process-wide lookup and returns a func restoring the previous one.
func SetDefault(a *UserActions) (restore func()) {
	if a == nil {
		a = NewUserActions(nil, nil)
	}
	defaultMu.Lock()
	prev := defaultActions
	defaultActions = a
	defaultMu.Unlock()
	return func() {
		defaultMu.Lock()
		defaultActions = prev
		defaultMu.Unlock()
	}
}

// SetDatabase swaps the process-wide collaborator, keeping the current logger, and
// returns a func restoring the previous one. A nil db installs database.Unconfigured.
func SetDatabase(db database.Database) (restore func()) {
	defaultMu.RLock()
	logger := defaultActions.logger
	defaultMu.RUnlock()
	return SetDefault(NewUserActions(db, logger))
}

func current() *UserActions {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultActions
}
