package order

import "time"

// Order is written exactly once, inside the conversion transaction of its
// source checkout intent, and is immutable here afterwards. Fulfillment
// systems own pickup/completion progress downstream.
type Order struct {
	ID             string
	SourceIntentID string
	BuyerID        int64
	SellerID       int64
	ItemID         string
	ShowID         string
	Quantity       int64
	PriceTotal     float64
	PickupCode     string
	CompletionCode string
	CreatedAt      time.Time
}
