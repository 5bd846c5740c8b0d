package database

import (
	"context"
	"fmt"
	"sync"

	"github.com/kjstillabower/user-lookup-service/internal/models"
)

// DevUsers seeds the fixture backend when no seed is configured.
var DevUsers = []models.User{
	{ID: 100, Name: "Peter"},
	{ID: 200, Name: "Julia"},
}

// Fixture is an in-memory Database over a fixed set of users.
type Fixture struct {
	mu    sync.RWMutex
	users map[int64]models.User
}

// NewFixture copies users into a new Fixture. Later duplicates of an id win.
func NewFixture(users []models.User) *Fixture {
	f := &Fixture{users: make(map[int64]models.User, len(users))}
	for _, u := range users {
		f.users[u.ID] = u
	}
	return f
}

// GetUser returns the user with id or ErrNotFound.
func (f *Fixture) GetUser(ctx context.Context, id int64) (models.User, error) {
	if err := ctx.Err(); err != nil {
		return models.User{}, err
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	u, ok := f.users[id]
	if !ok {
		return models.User{}, fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	return u, nil
}

// PutUser inserts or replaces a user.
func (f *Fixture) PutUser(ctx context.Context, u models.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[u.ID] = u
	return nil
}
