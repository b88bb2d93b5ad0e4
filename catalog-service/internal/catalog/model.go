package catalog

import (
	"time"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"

	"github.com/vasiliy-maslov/order-platform/pkg/apperr"
)

var ErrNotFound = apperr.New(apperr.NotFound, "product not found")

type Item struct {
	ID                uuid.UUID       `db:"id"`
	Name              string          `db:"name"`
	Description       string          `db:"description"`
	UnitPrice         decimal.Decimal `db:"price"`
	AvailableQuantity int             `db:"stock"`
	CreatedAt         time.Time       `db:"created_at"`
}

type CreateInput struct {
	Name              string
	Description       string
	UnitPrice         decimal.Decimal
	AvailableQuantity int
}

// UpdateInput is a partial update: nil fields are left untouched.
type UpdateInput struct {
	Name              *string
	Description       *string
	UnitPrice         *decimal.Decimal
	AvailableQuantity *int
}

func (in UpdateInput) apply(item *Item) {
	if in.Name != nil {
		item.Name = *in.Name
	}
	if in.Description != nil {
		item.Description = *in.Description
	}
	if in.UnitPrice != nil {
		item.UnitPrice = *in.UnitPrice
	}
	if in.AvailableQuantity != nil {
		item.AvailableQuantity = *in.AvailableQuantity
	}
}

func validateItem(item *Item) error {
	switch {
	case item.Name == "":
		return apperr.New(apperr.InvalidInput, "name is required")
	case item.UnitPrice.IsNegative():
		return apperr.New(apperr.InvalidInput, "price must be non-negative")
	case item.AvailableQuantity < 0:
		return apperr.New(apperr.InvalidInput, "stock must be non-negative")
	}
	return nil
}
