package paygate

// CreatePaymentObjectRequest creates a payment-intent-like object at the
// gateway, routed to the seller's payout account.
type CreatePaymentObjectRequest struct {
	Amount             int64             `json:"amount"`
	Currency           string            `json:"currency"`
	DestinationAccount string            `json:"destination_account"`
	Metadata           map[string]string `json:"metadata"`
}

type CreatePaymentObjectResponse struct {
	ExternalRef  string `json:"id"`
	ClientSecret string `json:"client_secret"`
	Status       string `json:"status"`
}

type PaymentStatusResponse struct {
	ExternalRef string `json:"id"`
	Status      string `json:"status"`
	Settled     bool   `json:"settled"`
}

// NotificationEvent is the asynchronous confirmation delivered to the webhook
// endpoint. Signature covers the raw payload bytes.
type NotificationEvent struct {
	ExternalRef string `json:"payment_ref"`
	IntentID    string `json:"reference_id"`
	Status      string `json:"status"`
	Settled     bool   `json:"settled"`
}
