package order

import (
	"time"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"

	"github.com/vasiliy-maslov/order-platform/pkg/apperr"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

func (s Status) String() string {
	return string(s)
}

func (s Status) Valid() bool {
	_, ok := allowedTransitions[s]
	return ok
}

func (s Status) Terminal() bool {
	return len(allowedTransitions[s]) == 0
}

var allowedTransitions = map[Status]map[Status]bool{
	StatusPending: {
		StatusProcessing: true,
		StatusCancelled:  true,
	},
	StatusProcessing: {
		StatusCompleted: true,
		StatusCancelled: true,
	},
	StatusCompleted: {},
	StatusCancelled: {},
}

// CanTransition reports whether from -> to is an edge of the lifecycle.
// Staying in the same status is not an edge.
func CanTransition(from, to Status) bool {
	return allowedTransitions[from][to]
}

var (
	ErrOrderNotFound    = apperr.New(apperr.NotFound, "order not found")
	ErrForbidden        = apperr.New(apperr.Forbidden, "order belongs to another user")
	ErrEmptyOrder       = apperr.New(apperr.InvalidInput, "order must contain at least one item")
	ErrInvalidQuantity  = apperr.New(apperr.InvalidInput, "quantity must be greater than zero")
	ErrInvalidStatus    = apperr.New(apperr.InvalidInput, "unknown order status")
	ErrInvalidState     = apperr.New(apperr.InvalidState, "invalid order status transition")
	ErrAlreadyCancelled = apperr.New(apperr.AlreadyCancelled, "order is already cancelled")
	ErrAlreadyCompleted = apperr.New(apperr.AlreadyCompleted, "order is already completed")
)

// LineRequest is one requested item as submitted by the caller.
type LineRequest struct {
	ItemID   string
	Quantity int
}

// Line is a validated, price-locked item of an order. UnitPrice is the
// catalog price at creation time and is never recomputed.
type Line struct {
	ItemID    string          `json:"item_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

type Order struct {
	ID        uuid.UUID       `json:"id"`
	OwnerID   uuid.UUID       `json:"owner_id"`
	Lines     []Line          `json:"lines"`
	Total     decimal.Decimal `json:"total"`
	Status    Status          `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Clone copies the order including its lines.
func (o *Order) Clone() *Order {
	c := *o
	c.Lines = append([]Line(nil), o.Lines...)
	return &c
}

func computeTotal(lines []Line) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity))))
	}
	return total
}
