// Package records persists Image Records in a relational table.
package records

import (
	"context"
	"errors"

	"github.com/notes-bin/aigallery/internal/model"
)

var (
	ErrNotFound      = errors.New("record not found")
	ErrDuplicatePath = errors.New("record for this path already exists")
)

// Store is the images table. ID and CreatedAt are assigned on Insert.
type Store interface {
	Insert(ctx context.Context, img *model.Image) (*model.Image, error)
	Get(ctx context.Context, id string) (*model.Image, error)
	FindByPath(ctx context.Context, path string) (*model.Image, error)
	// ListByUser returns the user's records, newest first.
	ListByUser(ctx context.Context, userID string) ([]model.Image, error)
	Close() error
}

// Open selects a backend by driver name.
func Open(ctx context.Context, driver, dsn string) (Store, error) {
	switch driver {
	case "postgres":
		return NewPostgres(ctx, dsn)
	case "sqlite":
		return NewSQLite(dsn)
	}
	return nil, errors.New("records: unknown driver " + driver)
}
