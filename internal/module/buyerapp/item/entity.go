package item

import "time"

const (
	ItemStatusActive   string = "ACTIVE"
	ItemStatusInactive string = "INACTIVE"

	InventoryStatusActive    string = "ACTIVE"
	InventoryStatusLockedOut string = "LOCKED_OUT"
	InventoryStatusSold      string = "SOLD"
)

// Item is the catalog read model for a sellable listing. The catalog service
// owns these rows; this service only reads them for the advisory availability
// check and to compute the charge amount.
type Item struct {
	ID                  string
	SellerID            int64
	Name                string
	Price               float64
	SellerPayoutAccount string
	Status              string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// InventoryRecord is the ledger row owned by this service. available_quantity
// only ever decreases through the conditional decrement at conversion.
type InventoryRecord struct {
	ItemID            string
	AvailableQuantity int64
	Status            string
	UpdatedAt         time.Time
}
