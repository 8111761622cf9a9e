package catalog

import (
	"context"

	"github.com/omnifeed/feed-export-service/internal/model"
)

// Cursor streams the site catalog one product at a time. Next returns io.EOF
// once the catalog is exhausted; that is a normal terminal signal, not a
// failure. Close releases the underlying resources and is safe to call more
// than once.
type Cursor interface {
	Next(ctx context.Context) (*model.Product, error)
	Close() error
}

// Repository is the read-only boundary to the catalog/price/inventory store.
type Repository interface {
	// Count returns the total number of exportable products, used for
	// progress reporting. It must not consume the cursor.
	Count(ctx context.Context) (int64, error)

	// Products opens a cursor over all exportable products with their
	// relations hydrated.
	Products(ctx context.Context) (Cursor, error)

	// PriceBookIDs lists the price books configured for the site.
	PriceBookIDs(ctx context.Context) ([]string, error)
}
