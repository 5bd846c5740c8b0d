package database

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/kjstillabower/user-lookup-service/internal/models"
)

// Options carries backend settings. Each backend reads the fields it needs.
type Options struct {
	// Path is the SQLite file.
	Path string
	// DSN is the PostgreSQL connection string.
	DSN string
	// Seed preloads the fixture and sqlite backends.
	Seed []models.User

	// URL, Token, Timeout and the retry fields configure the remote directory backend.
	URL            string
	Token          string
	Timeout        time.Duration
	RetryAttempts  int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
}

// Opener builds a Database from Options.
type Opener func(ctx context.Context, opts Options) (Database, error)

var (
	openersMu sync.RWMutex
	openers   = make(map[string]Opener)
)

// Register makes a backend available under name. Like sql.Register it panics
// on a nil opener or a duplicate name.
func Register(name string, open Opener) {
	openersMu.Lock()
	defer openersMu.Unlock()
	if open == nil {
		panic("database: Register opener is nil")
	}
	if _, dup := openers[name]; dup {
		panic("database: Register called twice for backend " + name)
	}
	openers[name] = open
}

// Replace swaps the opener registered under name and returns a func that restores
// the previous one (or removes name if there was none). Tests use it to hand
// wiring code a stand-in without touching that code.
func Replace(name string, open Opener) (restore func()) {
	openersMu.Lock()
	defer openersMu.Unlock()
	prev, had := openers[name]
	openers[name] = open
	return func() {
		openersMu.Lock()
		defer openersMu.Unlock()
		if had {
			openers[name] = prev
		} else {
			delete(openers, name)
		}
	}
}

// Open builds the backend registered under name.
func Open(ctx context.Context, name string, opts Options) (Database, error) {
	openersMu.RLock()
	open, ok := openers[name]
	openersMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("database: unknown backend %q (registered: %v)", name, Backends())
	}
	db, err := open(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("database: open %s: %w", name, err)
	}
	return db, nil
}

// Backends returns the registered names, sorted.
func Backends() []string {
	openersMu.RLock()
	defer openersMu.RUnlock()
	names := make([]string, 0, len(openers))
	for name := range openers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func init() {
	Register("unconfigured", func(context.Context, Options) (Database, error) {
		return Unconfigured, nil
	})
	Register("fixture", func(_ context.Context, opts Options) (Database, error) {
		seed := opts.Seed
		if seed == nil {
			seed = DevUsers
		}
		return NewFixture(seed), nil
	})
	Register("sqlite", func(ctx context.Context, opts Options) (Database, error) {
		if opts.Path == "" {
			return nil, fmt.Errorf("sqlite backend requires a path")
		}
		db, err := NewSQLiteDatabase(opts.Path)
		if err != nil {
			return nil, err
		}
		for _, u := range opts.Seed {
			if err := db.PutUser(ctx, u); err != nil {
				db.Close()
				return nil, err
			}
		}
		return db, nil
	})
	Register("postgres", func(ctx context.Context, opts Options) (Database, error) {
		if opts.DSN == "" {
			return nil, fmt.Errorf("postgres backend requires a DSN")
		}
		db, err := NewPostgresDatabase(opts.DSN)
		if err != nil {
			return nil, err
		}
		for _, u := range opts.Seed {
			if err := db.PutUser(ctx, u); err != nil {
				db.Close()
				return nil, err
			}
		}
		return db, nil
	})
}
