// Package gateway is the REST binding to the field-force backend: create
// operations used by the sync engine and the reference-data listings used by
// screens.
package gateway

import (
	"context"

	"github.com/kimhsiao/fieldsync/internal/models"
)

// Receipt identifies an entity the backend created.
type Receipt struct {
	ID string `json:"id"`
}

// Gateway is the set of remote operations the sync core depends on.
// Implementations bound every call with their own timeout.
type Gateway interface {
	// CreateVisit fails with a conflict error carrying the existing visit id
	// when an equivalent visit already exists.
	CreateVisit(ctx context.Context, visit models.Visit) (Receipt, error)
	CreateLocationLog(ctx context.Context, log models.LocationLog) (Receipt, error)
	CreateSale(ctx context.Context, sale models.Sale) (Receipt, error)
	CreateScheme(ctx context.Context, scheme models.Scheme) (Receipt, error)

	ListDoctors(ctx context.Context) ([]models.Doctor, error)
	ListProducts(ctx context.Context) ([]models.Product, error)
	ListStockists(ctx context.Context) ([]models.Stockist, error)
}
