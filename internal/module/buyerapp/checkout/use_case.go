package checkout

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/cloudtasks/apiv2/cloudtaskspb"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/livecart/lc-checkout/internal/module/buyerapp/item"
	"github.com/livecart/lc-checkout/internal/module/buyerapp/order"
	"github.com/livecart/lc-checkout/internal/module/buyerapp/paygate"
	"github.com/livecart/lc-checkout/internal/pkg/clock"
	"github.com/livecart/lc-checkout/internal/pkg/session"
	"github.com/livecart/lc-checkout/internal/pkg/util"
	"github.com/livecart/lc-checkout/pkg/errors"
	"github.com/livecart/lc-checkout/pkg/gctasks"
	"github.com/livecart/lc-checkout/pkg/pubsub"
	"github.com/livecart/lc-checkout/pkg/status"
)

// CheckoutUseCase is the reservation coordinator: the only writer of checkout
// intents besides the expiry sweeper, and the only code path that creates
// orders and decrements inventory.
type CheckoutUseCase interface {
	CreateIntent(ctx context.Context, req CreateIntentRequest) (IntentResponse, error)
	GetIntent(ctx context.Context, intentID string) (IntentResponse, error)
	InitiatePayment(ctx context.Context, intentID string) (InitiatePaymentResponse, error)
	ConfirmPayment(ctx context.Context, intentID, externalRef string) (ConfirmPaymentResponse, error)
	CancelIntent(ctx context.Context, intentID string, actor string) error
	GetManyOrder(ctx context.Context, req GetManyOrderRequest) (GetManyOrderResponse, error)
	GetManyPendingCompensation(ctx context.Context, limit int) ([]CompensationResponse, error)
	OnPaymentNotification(ctx context.Context, e PaymentNotificationEvent) error
	OnExpireIntent(ctx context.Context, e ExpireIntentEvent) error
	// ExpireOverdue is the sweeper entry point; it returns how many intents
	// were moved to EXPIRED.
	ExpireOverdue(ctx context.Context) (int, error)
}

type checkoutUseCase struct {
	logger                 *logrus.Logger
	clock                  clock.Clock
	timeout                time.Duration
	baseURL                string
	intentTTL              time.Duration
	lockTTL                time.Duration
	sweepBatchSize         int
	itemRepository         item.ItemRepository
	inventoryRepository    item.InventoryRepository
	intentRepository       IntentRepository
	orderRepository        order.OrderRepository
	compensationRepository CompensationRepository
	paygateRepository      paygate.PaygateRepository
	publisher              pubsub.Publisher
	cloudTask              gctasks.Client
}

type CheckoutUseCaseProperty struct {
	Logger                 *logrus.Logger
	Clock                  clock.Clock
	Timeout                time.Duration
	BaseURL                string
	IntentTTL              time.Duration
	LockTTL                time.Duration
	SweepBatchSize         int
	ItemRepository         item.ItemRepository
	InventoryRepository    item.InventoryRepository
	IntentRepository       IntentRepository
	OrderRepository        order.OrderRepository
	CompensationRepository CompensationRepository
	PaygateRepository      paygate.PaygateRepository
	Publisher              pubsub.Publisher
	CloudTask              gctasks.Client
}

func NewCheckoutUseCase(props CheckoutUseCaseProperty) CheckoutUseCase {
	return &checkoutUseCase{
		logger:                 props.Logger,
		clock:                  props.Clock,
		timeout:                props.Timeout,
		baseURL:                props.BaseURL,
		intentTTL:              props.IntentTTL,
		lockTTL:                props.LockTTL,
		sweepBatchSize:         props.SweepBatchSize,
		itemRepository:         props.ItemRepository,
		inventoryRepository:    props.InventoryRepository,
		intentRepository:       props.IntentRepository,
		orderRepository:        props.OrderRepository,
		compensationRepository: props.CompensationRepository,
		paygateRepository:      props.PaygateRepository,
		publisher:              props.Publisher,
		cloudTask:              props.CloudTask,
	}
}

// CreateIntent implements CheckoutUseCase. The availability check here is
// advisory only: no stock is held, so many buyers may create intents for the
// last unit and race to convert.
func (u *checkoutUseCase) CreateIntent(ctx context.Context, req CreateIntentRequest) (IntentResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, u.timeout)
	defer cancel()

	acc, err := session.GetAccountFromCtx(ctx)
	if err != nil {
		return IntentResponse{}, err
	}

	itm, err := u.itemRepository.FindByID(ctx, req.ItemID, nil)
	if err != nil {
		return IntentResponse{}, err
	}

	if itm.Status != item.ItemStatusActive {
		return IntentResponse{}, errors.New(http.StatusConflict, status.ITEM_UNAVAILABLE, "item is not available for purchase")
	}

	inv, err := u.inventoryRepository.FindByItemID(ctx, req.ItemID, nil)
	if err != nil {
		return IntentResponse{}, err
	}

	if inv.Status != item.InventoryStatusActive || inv.AvailableQuantity < req.Quantity {
		return IntentResponse{}, errors.New(http.StatusConflict, status.ITEM_UNAVAILABLE, "item is sold out")
	}

	now := u.clock.Now()
	intent := CheckoutIntent{
		ID:              util.GenerateTimestampWithPrefix("CI"),
		BuyerID:         acc.ID,
		SellerID:        itm.SellerID,
		ItemID:          req.ItemID,
		ShowID:          req.ShowID,
		Quantity:        req.Quantity,
		Status:          StatusIntent,
		IntentExpiresAt: now.Add(u.intentTTL),
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := u.intentRepository.Save(ctx, intent, nil); err != nil {
		return IntentResponse{}, err
	}

	resp := IntentResponse{}
	resp.PopulateFromEntity(intent)

	return resp, nil
}

// GetIntent implements CheckoutUseCase.
func (u *checkoutUseCase) GetIntent(ctx context.Context, intentID string) (IntentResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, u.timeout)
	defer cancel()

	acc, err := session.GetAccountFromCtx(ctx)
	if err != nil {
		return IntentResponse{}, err
	}

	intent, err := u.intentRepository.FindByID(ctx, intentID, nil)
	if err != nil {
		return IntentResponse{}, err
	}

	if intent.BuyerID != acc.ID {
		return IntentResponse{}, errors.New(http.StatusNotFound, status.NOT_FOUND, fmt.Sprintf("checkout intent with id '%s' is not found", intentID))
	}

	resp := IntentResponse{}
	resp.PopulateFromEntity(intent)

	return resp, nil
}

// InitiatePayment implements CheckoutUseCase. The gateway call happens before
// the state transition; if the gateway fails nothing is written, and if the
// conditional lock write loses the race the created payment object is simply
// never handed to the buyer.
func (u *checkoutUseCase) InitiatePayment(ctx context.Context, intentID string) (InitiatePaymentResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, u.timeout)
	defer cancel()

	acc, err := session.GetAccountFromCtx(ctx)
	if err != nil {
		return InitiatePaymentResponse{}, err
	}

	intent, err := u.intentRepository.FindByID(ctx, intentID, nil)
	if err != nil {
		return InitiatePaymentResponse{}, err
	}

	if intent.BuyerID != acc.ID {
		return InitiatePaymentResponse{}, errors.New(http.StatusNotFound, status.NOT_FOUND, fmt.Sprintf("checkout intent with id '%s' is not found", intentID))
	}

	if err := intent.CanLock(u.clock.Now()); err != nil {
		return InitiatePaymentResponse{}, err
	}

	itm, err := u.itemRepository.FindByID(ctx, intent.ItemID, nil)
	if err != nil {
		return InitiatePaymentResponse{}, err
	}

	amountTotal := itm.Price * float64(intent.Quantity)

	po, err := u.paygateRepository.CreatePaymentObject(ctx, paygate.CreatePaymentObjectRequest{
		Amount:             int64(math.Round(amountTotal * 100)),
		Currency:           "usd",
		DestinationAccount: itm.SellerPayoutAccount,
		Metadata: map[string]string{
			"intent_id": intent.ID,
			"item_id":   intent.ItemID,
			"show_id":   intent.ShowID,
		},
	})
	if err != nil {
		return InitiatePaymentResponse{}, err
	}

	now := u.clock.Now()
	lockExpiresAt := now.Add(u.lockTTL)

	locked, err := u.intentRepository.Lock(ctx, intent.ID, po.ExternalRef, amountTotal, lockExpiresAt, now, nil)
	if err != nil {
		return InitiatePaymentResponse{}, err
	}
	if !locked {
		current, err := u.intentRepository.FindByID(ctx, intentID, nil)
		if err != nil {
			return InitiatePaymentResponse{}, err
		}
		return InitiatePaymentResponse{}, current.CanLock(now)
	}

	u.scheduleExpireNudge(ctx, intent.ID, lockExpiresAt)

	return InitiatePaymentResponse{
		IntentID:      intent.ID,
		ClientSecret:  po.ClientSecret,
		LockExpiresAt: lockExpiresAt,
	}, nil
}

func (u *checkoutUseCase) scheduleExpireNudge(ctx context.Context, intentID string, at time.Time) {
	if u.cloudTask == nil {
		return
	}

	body, _ := json.Marshal(ExpireIntentEvent{ID: intentID})
	err := u.cloudTask.DeferCreateTaskInTime("expire-checkout-intent", gctasks.Request{
		URL:    fmt.Sprintf("%s/lc-checkout/v1/buyerapp/checkout-intents/on-expire", u.baseURL),
		Method: cloudtaskspb.HttpMethod_POST,
		Body:   body,
	}, at)
	if err != nil {
		// The sweeper remains authoritative; a failed nudge only delays expiry.
		u.logger.WithContext(ctx).WithError(err).Warn("failed to schedule expire nudge")
	}
}

// ConfirmPayment implements CheckoutUseCase. Both the webhook and the client
// poll land here with identical semantics; settlement is re-verified against
// the gateway before any write, which is also what lets a late confirmation
// beat an expired lock.
func (u *checkoutUseCase) ConfirmPayment(ctx context.Context, intentID, externalRef string) (ConfirmPaymentResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, u.timeout)
	defer cancel()

	intent, err := u.intentRepository.FindByID(ctx, intentID, nil)
	if err != nil {
		return ConfirmPaymentResponse{}, err
	}

	// The reference must match before anything is returned, including the
	// idempotent fast path below: order and handover codes are only released
	// to a caller who actually holds the gateway reference for this intent.
	if intent.ExternalPaymentRef == nil || *intent.ExternalPaymentRef != externalRef {
		return ConfirmPaymentResponse{}, errors.New(http.StatusConflict, status.INVALID_STATE, "payment reference does not belong to this checkout intent")
	}

	if intent.Status == StatusConverted {
		return u.existingOrder(ctx, intentID, nil)
	}

	ps, err := u.paygateRepository.GetPaymentStatus(ctx, externalRef)
	if err != nil {
		return ConfirmPaymentResponse{}, err
	}
	if !ps.Settled {
		return ConfirmPaymentResponse{}, errors.New(http.StatusUnprocessableEntity, status.PAYMENT_NOT_SETTLED, "payment has not settled yet")
	}

	tx, err := u.intentRepository.BeginTx(ctx)
	if err != nil {
		return ConfirmPaymentResponse{}, err
	}

	current, err := u.intentRepository.FindByIDForUpdate(ctx, intentID, tx)
	if err != nil {
		u.intentRepository.Rollback(ctx, tx)
		return ConfirmPaymentResponse{}, err
	}

	now := u.clock.Now()

	if current.Status == StatusConverted {
		resp, err := u.existingOrder(ctx, intentID, tx)
		u.intentRepository.Rollback(ctx, tx)
		return resp, err
	}

	if err := current.CanConvert(now, true); err != nil {
		// Settled money with no convertible intent: the sweeper or a cancel
		// won the race. Record it for compensation, never drop it.
		if cerr := u.flagCompensation(ctx, current, externalRef, CompensationReasonLateSettlement, now, tx); cerr != nil {
			u.intentRepository.Rollback(ctx, tx)
			return ConfirmPaymentResponse{}, cerr
		}
		if cerr := u.intentRepository.CommitTx(ctx, tx); cerr != nil {
			return ConfirmPaymentResponse{}, cerr
		}
		return ConfirmPaymentResponse{}, err
	}

	decremented, err := u.inventoryRepository.TryDecrement(ctx, current.ItemID, current.Quantity, now, tx)
	if err != nil {
		u.intentRepository.Rollback(ctx, tx)
		return ConfirmPaymentResponse{}, err
	}

	if !decremented {
		// Lost the stock race after payment was captured. Cancel the intent
		// and flag the payment for reversal in the same transaction.
		if _, err := u.intentRepository.UpdateStatus(ctx, intentID, StatusLocked, StatusCancelled, now, tx); err != nil {
			u.intentRepository.Rollback(ctx, tx)
			return ConfirmPaymentResponse{}, err
		}
		if err := u.flagCompensation(ctx, current, externalRef, CompensationReasonSoldOut, now, tx); err != nil {
			u.intentRepository.Rollback(ctx, tx)
			return ConfirmPaymentResponse{}, err
		}
		if err := u.intentRepository.CommitTx(ctx, tx); err != nil {
			return ConfirmPaymentResponse{}, err
		}
		return ConfirmPaymentResponse{}, errors.New(http.StatusConflict, status.SOLD_OUT, "item just sold out; the payment will be reversed")
	}

	var amountTotal float64
	if current.AmountTotal != nil {
		amountTotal = *current.AmountTotal
	}

	o := order.Order{
		ID:             util.GenerateTimestampWithPrefix("LO"),
		SourceIntentID: current.ID,
		BuyerID:        current.BuyerID,
		SellerID:       current.SellerID,
		ItemID:         current.ItemID,
		ShowID:         current.ShowID,
		Quantity:       current.Quantity,
		PriceTotal:     amountTotal,
		PickupCode:     util.GenerateShortCode(6),
		CompletionCode: util.GenerateShortCode(6),
		CreatedAt:      now,
	}

	if err := u.orderRepository.Save(ctx, o, tx); err != nil {
		u.intentRepository.Rollback(ctx, tx)
		return ConfirmPaymentResponse{}, err
	}

	converted, err := u.intentRepository.UpdateStatus(ctx, intentID, StatusLocked, StatusConverted, now, tx)
	if err != nil {
		u.intentRepository.Rollback(ctx, tx)
		return ConfirmPaymentResponse{}, err
	}
	if !converted {
		u.intentRepository.Rollback(ctx, tx)
		return ConfirmPaymentResponse{}, errors.New(http.StatusConflict, status.INVALID_STATE, "checkout intent changed state during conversion")
	}

	if err := u.intentRepository.CommitTx(ctx, tx); err != nil {
		return ConfirmPaymentResponse{}, err
	}

	eventBuff, _ := json.Marshal(IntentConvertedEvent{
		OrderID:        o.ID,
		SourceIntentID: o.SourceIntentID,
		BuyerID:        o.BuyerID,
		SellerID:       o.SellerID,
		ItemID:         o.ItemID,
		ShowID:         o.ShowID,
		Quantity:       o.Quantity,
		PriceTotal:     o.PriceTotal,
		ConvertedAt:    now,
	})
	u.publisher.Publish(ctx, topicIntentConverted, o.ItemID, nil, eventBuff)

	orderResp := OrderResponse{}
	orderResp.PopulateFromEntity(o)

	return ConfirmPaymentResponse{Order: orderResp}, nil
}

func (u *checkoutUseCase) existingOrder(ctx context.Context, intentID string, tx *sql.Tx) (ConfirmPaymentResponse, error) {
	existing, err := u.orderRepository.FindBySourceIntentID(ctx, intentID, tx)
	if err != nil {
		return ConfirmPaymentResponse{}, err
	}
	if existing == nil {
		return ConfirmPaymentResponse{}, errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "converted intent has no order record")
	}

	orderResp := OrderResponse{}
	orderResp.PopulateFromEntity(*existing)

	return ConfirmPaymentResponse{Order: orderResp, AlreadyConverted: true}, nil
}

func (u *checkoutUseCase) flagCompensation(ctx context.Context, intent CheckoutIntent, externalRef string, reason CompensationReason, now time.Time, tx *sql.Tx) error {
	var amountTotal float64
	if intent.AmountTotal != nil {
		amountTotal = *intent.AmountTotal
	}

	comp := PaymentCompensation{
		ID:                 uuid.NewString(),
		IntentID:           intent.ID,
		BuyerID:            intent.BuyerID,
		ExternalPaymentRef: externalRef,
		AmountTotal:        amountTotal,
		Reason:             reason,
		Status:             CompensationStatusPending,
		CreatedAt:          now,
	}

	if err := u.compensationRepository.Save(ctx, comp, tx); err != nil {
		return err
	}

	u.logger.WithContext(ctx).WithFields(logrus.Fields{
		"intent_id":   intent.ID,
		"payment_ref": externalRef,
		"reason":      reason,
	}).Warn("settled payment flagged for compensation")

	return nil
}

// CancelIntent implements CheckoutUseCase.
func (u *checkoutUseCase) CancelIntent(ctx context.Context, intentID string, actor string) error {
	ctx, cancel := context.WithTimeout(ctx, u.timeout)
	defer cancel()

	intent, err := u.intentRepository.FindByID(ctx, intentID, nil)
	if err != nil {
		return err
	}

	if buyerID, ok := strings.CutPrefix(actor, "buyer:"); ok {
		if fmt.Sprintf("%d", intent.BuyerID) != buyerID {
			return errors.New(http.StatusNotFound, status.NOT_FOUND, fmt.Sprintf("checkout intent with id '%s' is not found", intentID))
		}
	}

	if err := intent.CanCancel(); err != nil {
		return err
	}

	cancelled, err := u.intentRepository.UpdateStatus(ctx, intentID, intent.Status, StatusCancelled, u.clock.Now(), nil)
	if err != nil {
		return err
	}
	if !cancelled {
		return errors.New(http.StatusConflict, status.INVALID_STATE, "checkout intent changed state before cancellation")
	}

	return nil
}

// GetManyOrder implements CheckoutUseCase.
func (u *checkoutUseCase) GetManyOrder(ctx context.Context, req GetManyOrderRequest) (GetManyOrderResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, u.timeout)
	defer cancel()

	acc, err := session.GetAccountFromCtx(ctx)
	if err != nil {
		return GetManyOrderResponse{}, err
	}

	offset := (req.Page - 1) * req.Size

	orders, err := u.orderRepository.FindManyByBuyerID(ctx, acc.ID, offset, req.Size, nil)
	if err != nil {
		return GetManyOrderResponse{}, err
	}

	total, err := u.orderRepository.CountByBuyerID(ctx, acc.ID, nil)
	if err != nil {
		return GetManyOrderResponse{}, err
	}

	resp := GetManyOrderResponse{
		Orders: make([]OrderResponse, len(orders)),
		Total:  total,
	}
	for k, o := range orders {
		resp.Orders[k].PopulateFromEntity(o)
	}

	return resp, nil
}

// GetManyPendingCompensation implements CheckoutUseCase.
func (u *checkoutUseCase) GetManyPendingCompensation(ctx context.Context, limit int) ([]CompensationResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, u.timeout)
	defer cancel()

	comps, err := u.compensationRepository.FindManyByStatus(ctx, CompensationStatusPending, limit, nil)
	if err != nil {
		return nil, err
	}

	resp := make([]CompensationResponse, len(comps))
	for k, c := range comps {
		resp[k] = CompensationResponse{
			ID:                 c.ID,
			IntentID:           c.IntentID,
			BuyerID:            c.BuyerID,
			ExternalPaymentRef: c.ExternalPaymentRef,
			AmountTotal:        c.AmountTotal,
			Reason:             c.Reason,
			Status:             c.Status,
			CreatedAt:          c.CreatedAt,
		}
	}

	return resp, nil
}

// OnPaymentNotification implements CheckoutUseCase. State conflicts are
// swallowed after being durably recorded so the gateway stops retrying a
// delivery that can never succeed.
func (u *checkoutUseCase) OnPaymentNotification(ctx context.Context, e PaymentNotificationEvent) error {
	if !e.Settled {
		return nil
	}

	_, err := u.ConfirmPayment(ctx, e.IntentID, e.ExternalRef)
	if err != nil {
		ae := errors.Destruct(err)
		switch ae.Status {
		case status.INVALID_STATE, status.INTENT_EXPIRED, status.SOLD_OUT:
			u.logger.WithContext(ctx).WithField("intent_id", e.IntentID).WithField("status", ae.Status).Info("payment notification resolved without conversion")
			return nil
		}
		return err
	}

	return nil
}

// OnExpireIntent implements CheckoutUseCase.
func (u *checkoutUseCase) OnExpireIntent(ctx context.Context, e ExpireIntentEvent) error {
	ctx, cancel := context.WithTimeout(ctx, u.timeout)
	defer cancel()

	intent, err := u.intentRepository.FindByID(ctx, e.ID, nil)
	if err != nil {
		return err
	}

	if intent.Status.Terminal() {
		return nil
	}

	// Losing this conditional write means a conversion or cancel got there
	// first, which is the desired outcome.
	_, err = u.intentRepository.ExpireFrom(ctx, e.ID, intent.Status, u.clock.Now(), nil)
	return err
}

// ExpireOverdue implements CheckoutUseCase.
func (u *checkoutUseCase) ExpireOverdue(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, u.timeout)
	defer cancel()

	now := u.clock.Now()

	overdue, err := u.intentRepository.FindOverdue(ctx, now, u.sweepBatchSize, nil)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, intent := range overdue {
		ok, err := u.intentRepository.ExpireFrom(ctx, intent.ID, intent.Status, now, nil)
		if err != nil {
			u.logger.WithContext(ctx).WithError(err).WithField("intent_id", intent.ID).Error()
			continue
		}
		if ok {
			expired++
		}
	}

	return expired, nil
}
