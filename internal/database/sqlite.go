package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/kjstillabower/user-lookup-service/internal/models"
)

// SQLiteDatabase serves users from a SQLite file.
type SQLiteDatabase struct {
	db *sql.DB
}

// NewSQLiteDatabase opens (creating if needed) the database at path and ensures the schema.
// ":memory:" is accepted for tests.
func NewSQLiteDatabase(path string) (*SQLiteDatabase, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// A :memory: database lives per connection.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &SQLiteDatabase{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteDatabase) initSchema() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);`)
	return err
}

// GetUser selects the user by id. A missing row is ErrNotFound; any other
// driver failure is ErrUnavailable.
func (s *SQLiteDatabase) GetUser(ctx context.Context, id int64) (models.User, error) {
	var u models.User
	err := s.db.QueryRowContext(ctx, `SELECT id, name FROM users WHERE id = ?`, id).Scan(&u.ID, &u.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	if err != nil {
		if ctx.Err() != nil {
			return models.User{}, ctx.Err()
		}
		return models.User{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return u, nil
}

// PutUser inserts or replaces a user.
func (s *SQLiteDatabase) PutUser(ctx context.Context, u models.User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, name) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name`, u.ID, u.Name)
	if err != nil {
		return fmt.Errorf("put user %d: %w", u.ID, err)
	}
	return nil
}

// Ping checks the connection. Used for health checks.
func (s *SQLiteDatabase) Ping() error {
	return s.db.Ping()
}

// Close closes the database connection.
func (s *SQLiteDatabase) Close() error {
	return s.db.Close()
}
