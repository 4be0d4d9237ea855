package checkout

import (
	"net/http"
	"time"

	"github.com/livecart/lc-checkout/pkg/errors"
	"github.com/livecart/lc-checkout/pkg/status"
)

type Status string

const (
	StatusIntent    Status = "INTENT"
	StatusLocked    Status = "LOCKED"
	StatusConverted Status = "CONVERTED"
	StatusExpired   Status = "EXPIRED"
	StatusCancelled Status = "CANCELLED"
)

// Terminal reports whether no further transition is permitted out of s.
func (s Status) Terminal() bool {
	switch s {
	case StatusConverted, StatusExpired, StatusCancelled:
		return true
	}
	return false
}

var allowedTransitions = map[Status][]Status{
	StatusIntent: {StatusLocked, StatusExpired, StatusCancelled},
	StatusLocked: {StatusConverted, StatusExpired, StatusCancelled},
}

// CanTransition reports whether from -> to is a legal state machine edge.
// Deadline conditions are checked separately; every actual write is still a
// conditional update so a stale caller loses the race instead of corrupting
// state.
func CanTransition(from, to Status) bool {
	for _, t := range allowedTransitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// CheckoutIntent is one buyer's attempt to purchase one item during a live
// show. Rows are never deleted; they only move to a terminal status.
type CheckoutIntent struct {
	ID                 string
	BuyerID            int64
	SellerID           int64
	ItemID             string
	ShowID             string
	Quantity           int64
	Status             Status
	IntentExpiresAt    time.Time
	LockExpiresAt      *time.Time
	ExternalPaymentRef *string
	AmountTotal        *float64
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// CanLock validates the intent -> locked transition at the given instant.
func (i CheckoutIntent) CanLock(now time.Time) error {
	if i.Status != StatusIntent {
		return errors.New(http.StatusConflict, status.INVALID_STATE, "checkout intent is not awaiting payment initiation")
	}
	if !now.Before(i.IntentExpiresAt) {
		return errors.New(http.StatusGone, status.INTENT_EXPIRED, "checkout intent has expired, the item has been released")
	}
	return nil
}

// CanConvert validates the locked -> converted transition. A confirmation
// from the gateway is authoritative and may land after lock_expires_at:
// payment success takes precedence over the client-side timer racing it.
func (i CheckoutIntent) CanConvert(now time.Time, gatewayConfirmed bool) error {
	if i.Status != StatusLocked {
		return errors.New(http.StatusConflict, status.INVALID_STATE, "checkout intent is not locked for payment")
	}
	if i.LockExpiresAt != nil && !now.Before(*i.LockExpiresAt) && !gatewayConfirmed {
		return errors.New(http.StatusGone, status.INTENT_EXPIRED, "payment lock has expired, the item has been released")
	}
	return nil
}

// CanCancel validates a buyer or operator cancellation.
func (i CheckoutIntent) CanCancel() error {
	if i.Status.Terminal() {
		return errors.New(http.StatusConflict, status.INVALID_STATE, "checkout intent has already reached a terminal state")
	}
	return nil
}

// OverdueDeadline returns the deadline relevant to the current status, used
// by the expiry sweeper. The second return is false for terminal states.
func (i CheckoutIntent) OverdueDeadline() (time.Time, bool) {
	switch i.Status {
	case StatusIntent:
		return i.IntentExpiresAt, true
	case StatusLocked:
		if i.LockExpiresAt != nil {
			return *i.LockExpiresAt, true
		}
	}
	return time.Time{}, false
}

type CompensationReason string

const (
	CompensationReasonSoldOut        CompensationReason = "SOLD_OUT"
	CompensationReasonLateSettlement CompensationReason = "LATE_SETTLEMENT"
)

const (
	CompensationStatusPending  string = "PENDING"
	CompensationStatusResolved string = "RESOLVED"
)

// PaymentCompensation records a settled payment whose intent could not be
// converted. It is written in the same transaction as the failed conversion
// so a captured payment is never silently dropped; the refund itself runs
// out-of-band.
type PaymentCompensation struct {
	ID                 string
	IntentID           string
	BuyerID            int64
	ExternalPaymentRef string
	AmountTotal        float64
	Reason             CompensationReason
	Status             string
	CreatedAt          time.Time
}
