package service

import "github.com/kjstillabower/user-lookup-service/internal/database"

// DefaultDatabase exposes the unexported process-wide binding to tests in this package.
func DefaultDatabase() database.Database {
	return current().db
}

// ReplaceDefaultDatabase rewrites the unexported binding in place, bypassing SetDatabase.
// The returned func puts the old binding back. Not safe while lookups run concurrently:
// GetUser reads the binding after releasing defaultMu.
func ReplaceDefaultDatabase(db database.Database) (restore func()) {
	defaultMu.Lock()
	a := defaultActions
	prev := a.db
	a.db = db
	defaultMu.Unlock()
	return func() {
		defaultMu.Lock()
		a.db = prev
		defaultMu.Unlock()
	}
}
