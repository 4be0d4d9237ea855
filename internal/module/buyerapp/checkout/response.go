package checkout

import (
	"time"

	"github.com/livecart/lc-checkout/internal/module/buyerapp/order"
)

type IntentResponse struct {
	ID                 string     `json:"id"`
	BuyerID            int64      `json:"buyer_id"`
	SellerID           int64      `json:"seller_id"`
	ItemID             string     `json:"item_id"`
	ShowID             string     `json:"show_id"`
	Quantity           int64      `json:"quantity"`
	Status             Status     `json:"status"`
	IntentExpiresAt    time.Time  `json:"intent_expires_at"`
	LockExpiresAt      *time.Time `json:"lock_expires_at"`
	ExternalPaymentRef *string    `json:"external_payment_ref"`
	AmountTotal        *float64   `json:"amount_total"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

func (r *IntentResponse) PopulateFromEntity(i CheckoutIntent) {
	r.ID = i.ID
	r.BuyerID = i.BuyerID
	r.SellerID = i.SellerID
	r.ItemID = i.ItemID
	r.ShowID = i.ShowID
	r.Quantity = i.Quantity
	r.Status = i.Status
	r.IntentExpiresAt = i.IntentExpiresAt
	r.LockExpiresAt = i.LockExpiresAt
	r.ExternalPaymentRef = i.ExternalPaymentRef
	r.AmountTotal = i.AmountTotal
	r.CreatedAt = i.CreatedAt
	r.UpdatedAt = i.UpdatedAt
}

type InitiatePaymentResponse struct {
	IntentID      string    `json:"intent_id"`
	ClientSecret  string    `json:"client_secret"`
	LockExpiresAt time.Time `json:"lock_expires_at"`
}

type OrderResponse struct {
	ID             string    `json:"id"`
	SourceIntentID string    `json:"source_intent_id"`
	BuyerID        int64     `json:"buyer_id"`
	SellerID       int64     `json:"seller_id"`
	ItemID         string    `json:"item_id"`
	ShowID         string    `json:"show_id"`
	Quantity       int64     `json:"quantity"`
	PriceTotal     float64   `json:"price_total"`
	PickupCode     string    `json:"pickup_code"`
	CompletionCode string    `json:"completion_code"`
	CreatedAt      time.Time `json:"created_at"`
}

func (r *OrderResponse) PopulateFromEntity(o order.Order) {
	r.ID = o.ID
	r.SourceIntentID = o.SourceIntentID
	r.BuyerID = o.BuyerID
	r.SellerID = o.SellerID
	r.ItemID = o.ItemID
	r.ShowID = o.ShowID
	r.Quantity = o.Quantity
	r.PriceTotal = o.PriceTotal
	r.PickupCode = o.PickupCode
	r.CompletionCode = o.CompletionCode
	r.CreatedAt = o.CreatedAt
}

type ConfirmPaymentResponse struct {
	Order            OrderResponse `json:"order"`
	AlreadyConverted bool          `json:"already_converted"`
}

type GetManyOrderResponse struct {
	Orders []OrderResponse `json:"orders"`
	Total  int64           `json:"total"`
}

type CompensationResponse struct {
	ID                 string             `json:"id"`
	IntentID           string             `json:"intent_id"`
	BuyerID            int64              `json:"buyer_id"`
	ExternalPaymentRef string             `json:"external_payment_ref"`
	AmountTotal        float64            `json:"amount_total"`
	Reason             CompensationReason `json:"reason"`
	Status             string             `json:"status"`
	CreatedAt          time.Time          `json:"created_at"`
}
