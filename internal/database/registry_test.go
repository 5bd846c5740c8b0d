package database

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kjstillabower/user-lookup-service/internal/models"
)

func TestBackends_BuiltinsRegistered(t *testing.T) {
	names := Backends()
	for _, want := range []string{"fixture", "postgres", "sqlite", "unconfigured"} {
		assert.Contains(t, names, want)
	}
}

func TestOpen_UnknownBackend(t *testing.T) {
	_, err := Open(context.Background(), "nope", Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown backend "nope"`)
}

func TestOpen_FixtureDefaultsToDevUsers(t *testing.T) {
	db, err := Open(context.Background(), "fixture", Options{})
	require.NoError(t, err)

	u, err := db.GetUser(context.Background(), 200)
	require.NoError(t, err)
	assert.Equal(t, "Julia", u.Name)
}

func TestOpen_SQLiteSeeds(t *testing.T) {
	opts := Options{
		Path: filepath.Join(t.TempDir(), "users.db"),
		Seed: []models.User{{ID: 99, Name: "Rewired User"}},
	}
	db, err := Open(context.Background(), "sqlite", opts)
	require.NoError(t, err)
	defer db.(*SQLiteDatabase).Close()

	u, err := db.GetUser(context.Background(), 99)
	require.NoError(t, err)
	assert.Equal(t, "Rewired User", u.Name)
}

func TestOpen_SQLiteRequiresPath(t *testing.T) {
	_, err := Open(context.Background(), "sqlite", Options{})
	assert.Error(t, err)
}

func TestOpen_WrapsOpenerError(t *testing.T) {
	boom := errors.New("boom")
	restore := Replace("failing", func(context.Context, Options) (Database, error) { return nil, boom })
	defer restore()

	_, err := Open(context.Background(), "failing", Options{})
	assert.ErrorIs(t, err, boom)
}

// TestReplace_InterceptsNamedBackend hands Open a stand-in for a built-in
// backend, the way wiring code would receive it, and restores the original.
func TestReplace_InterceptsNamedBackend(t *testing.T) {
	stub := Func(func(ctx context.Context, id int64) (models.User, error) {
		return models.User{ID: id, Name: "Proxied User"}, nil
	})
	restore := Replace("sqlite", func(context.Context, Options) (Database, error) { return stub, nil })

	db, err := Open(context.Background(), "sqlite", Options{})
	require.NoError(t, err)
	u, err := db.GetUser(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, models.User{ID: 5, Name: "Proxied User"}, u)

	restore()
	_, err = Open(context.Background(), "sqlite", Options{})
	assert.Error(t, err, "restored sqlite opener should require a path again")
}

func TestReplace_RemovesNewName(t *testing.T) {
	restore := Replace("temp", func(context.Context, Options) (Database, error) { return Unconfigured, nil })
	assert.Contains(t, Backends(), "temp")
	restore()
	assert.NotContains(t, Backends(), "temp")
}

func TestRegister_DuplicatePanics(t *testing.T) {
	assert.Panics(t, func() {
		Register("fixture", func(context.Context, Options) (Database, error) { return nil, nil })
	})
	assert.Panics(t, func() { Register("nil-opener", nil) })
}
