package repository

import (
	"context"
	"errors"

	"github.com/fjod/go_cart/cart-aggregation-service/internal/domain"
)

var (
	ErrCartNotFound    = errors.New("cart not found")
	ErrItemNotFound    = errors.New("line item not found")
	ErrProductNotFound = errors.New("product not found")

	ErrDuplicateProduct = errors.New("product already cached")
	ErrDuplicateHeader  = errors.New("cart header already exists for user")
	ErrDuplicateItem    = errors.New("line item already exists for header and product")
)

type Credentials struct {
	Host              string
	Port              int
	User              string
	Password          string
	DBName            string
	MigrationsDirPath string
}

// CartStore is the persistence port the aggregator depends on.
// Consumers define this interface, not the Postgres implementation.
type CartStore interface {
	// InTx runs fn inside a single atomic transaction: commit when fn
	// returns nil, rollback otherwise. Store calls made through the
	// CartTx are all-or-nothing.
	InTx(ctx context.Context, fn func(tx CartTx) error) error

	// GetCartByUserID assembles the full cart (header + line items with
	// product snapshots) outside any write transaction. Returns
	// ErrCartNotFound when the user has no header.
	GetCartByUserID(ctx context.Context, userID string) (*domain.Cart, error)

	Close() error
}

// CartTx is the capability set available inside one transaction. Each
// operation is independently atomic; grouping is the caller's job.
type CartTx interface {
	// FindProductByID returns ErrProductNotFound when no snapshot is cached.
	FindProductByID(ctx context.Context, id int64) (*domain.Product, error)
	// InsertProduct caches a product snapshot. Returns ErrDuplicateProduct
	// when a snapshot with the same id already exists; the existing row
	// is left untouched (first write wins).
	InsertProduct(ctx context.Context, p *domain.Product) error

	// FindHeaderForUser reads the user's header and holds it locked for
	// the rest of the transaction. Returns ErrCartNotFound when absent.
	FindHeaderForUser(ctx context.Context, userID string) (*domain.CartHeader, error)
	// InsertHeader creates a header and assigns its id. Returns
	// ErrDuplicateHeader when a concurrent transaction created one first.
	InsertHeader(ctx context.Context, h *domain.CartHeader) error

	// FindLineItem returns ErrItemNotFound when no line item exists for
	// the (headerID, productID) pair.
	FindLineItem(ctx context.Context, headerID, productID int64) (*domain.CartLineItem, error)
	// InsertLineItem creates a line item and assigns its id.
	InsertLineItem(ctx context.Context, item *domain.CartLineItem) error
	// UpdateLineItemCount sets the count in place, preserving the id.
	// Returns ErrItemNotFound when the row no longer exists.
	UpdateLineItemCount(ctx context.Context, id int64, count int) error
	// DeleteLineItem reports whether a row was removed.
	DeleteLineItem(ctx context.Context, id int64) (bool, error)

	// ListLineItemsByHeader returns line items in insertion order, each
	// joined with its cached product snapshot.
	ListLineItemsByHeader(ctx context.Context, headerID int64) ([]domain.CartLineItem, error)
	DeleteLineItemsByHeader(ctx context.Context, headerID int64) error
	DeleteHeader(ctx context.Context, headerID int64) error
}
