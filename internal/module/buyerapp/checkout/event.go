package checkout

import "time"

// PaymentNotificationEvent is the payload delivered by the payment gateway's
// asynchronous confirmation channel.
type PaymentNotificationEvent struct {
	ExternalRef string `json:"payment_ref"`
	IntentID    string `json:"reference_id"`
	Status      string `json:"status"`
	Settled     bool   `json:"settled"`
}

// ExpireIntentEvent is posted back by the deferred task scheduled at lock
// time. It is a nudge only; the sweeper owns expiry.
type ExpireIntentEvent struct {
	ID string `json:"id"`
}

// IntentConvertedEvent is published to the event bus after a successful
// conversion so inventory displays and buyer notifications can refresh.
type IntentConvertedEvent struct {
	OrderID        string    `json:"order_id"`
	SourceIntentID string    `json:"source_intent_id"`
	BuyerID        int64     `json:"buyer_id"`
	SellerID       int64     `json:"seller_id"`
	ItemID         string    `json:"item_id"`
	ShowID         string    `json:"show_id"`
	Quantity       int64     `json:"quantity"`
	PriceTotal     float64   `json:"price_total"`
	ConvertedAt    time.Time `json:"converted_at"`
}

const topicIntentConverted = "checkout-intent-converted"
