// Package library reads item metadata from a personal reference-manager
// database. The database is opened read-only; the library application owns
// writes and may have the file open at the same time.
package library

import (
	"context"

	"github.com/hyperjump/shoko/internal/models"
)

// Source lists items from a reference library.
type Source interface {
	// ItemsWithDocuments returns parent items that have a PDF attachment,
	// with attachment paths resolved against the storage directory.
	ItemsWithDocuments(ctx context.Context) ([]models.Item, error)

	// SearchItems returns parent items matching the filter. Empty filter
	// fields match everything.
	SearchItems(ctx context.Context, filter models.ItemFilter) ([]models.Item, error)

	Close() error
}
