package domain

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// MaxQuantity is the largest quantity an item or a request line may hold. It
// matches the INTEGER quantity column on every supported store.
const MaxQuantity = math.MaxInt32

type Item struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Quantity    int       `json:"quantity"`
	Version     int64     `json:"version"` // optimistic locking
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ReservationLine is one requested (item, quantity) pair. Quantity is always > 0.
type ReservationLine struct {
	ItemID   uuid.UUID
	Quantity int
}

// ReconciledLine carries the item as it was read during reconciliation
// together with the quantity it will hold once the shipment commits.
type ReconciledLine struct {
	Item        Item
	Requested   int
	NewQuantity int
}

// StockDecrement is the conditional write applied to one item at commit time.
type StockDecrement struct {
	ItemID           uuid.UUID
	ExpectedVersion  int64
	ExpectedQuantity int
	NewQuantity      int
}

func (l ReconciledLine) Decrement() StockDecrement {
	return StockDecrement{
		ItemID:           l.Item.ID,
		ExpectedVersion:  l.Item.Version,
		ExpectedQuantity: l.Item.Quantity,
		NewQuantity:      l.NewQuantity,
	}
}
