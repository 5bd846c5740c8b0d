package database

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/kjstillabower/user-lookup-service/internal/models"
)

// userRow is the gorm mapping of the users table.
type userRow struct {
	ID   int64  `gorm:"primaryKey;autoIncrement:false"`
	Name string `gorm:"size:255;not null"`
}

func (userRow) TableName() string { return "users" }

func (r userRow) toUser() models.User {
	return models.User{ID: r.ID, Name: r.Name}
}

// PostgresDatabase serves users from PostgreSQL through gorm.
type PostgresDatabase struct {
	db *gorm.DB
}

// NewPostgresDatabase connects with dsn and migrates the users table.
func NewPostgresDatabase(dsn string) (*PostgresDatabase, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: open postgres: %v", ErrUnavailable, err)
	}
	if err := db.AutoMigrate(&userRow{}); err != nil {
		if sqlDB, dbErr := db.DB(); dbErr == nil {
			sqlDB.Close()
		}
		return nil, fmt.Errorf("migrate users table: %w", err)
	}
	return &PostgresDatabase{db: db}, nil
}

// GetUser selects the user by primary key.
func (p *PostgresDatabase) GetUser(ctx context.Context, id int64) (models.User, error) {
	var row userRow
	err := p.db.WithContext(ctx).First(&row, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.User{}, fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	if err != nil {
		if ctx.Err() != nil {
			return models.User{}, ctx.Err()
		}
		return models.User{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return row.toUser(), nil
}

// PutUser inserts or updates a user.
func (p *PostgresDatabase) PutUser(ctx context.Context, u models.User) error {
	row := userRow{ID: u.ID, Name: u.Name}
	err := p.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("put user %d: %w", u.ID, err)
	}
	return nil
}

// Ping checks the connection.
func (p *PostgresDatabase) Ping() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

// Close closes the underlying connection pool.
func (p *PostgresDatabase) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
