package checkout

import (
	"context"
	"database/sql"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/livecart/lc-checkout/internal/module/buyerapp/item"
	"github.com/livecart/lc-checkout/internal/module/buyerapp/order"
	"github.com/livecart/lc-checkout/internal/module/buyerapp/paygate"
	"github.com/livecart/lc-checkout/internal/pkg/clock"
	"github.com/livecart/lc-checkout/internal/pkg/session"
	"github.com/livecart/lc-checkout/pkg/errors"
	"github.com/livecart/lc-checkout/pkg/status"
)

type fakeItemRepo struct {
	items map[string]item.Item
}

func (r *fakeItemRepo) FindByID(ctx context.Context, ID string, tx *sql.Tx) (item.Item, error) {
	itm, ok := r.items[ID]
	if !ok {
		return item.Item{}, errors.New(http.StatusNotFound, status.NOT_FOUND, "item is not found")
	}
	return itm, nil
}

type fakeInventoryRepo struct {
	records map[string]item.InventoryRecord
}

func (r *fakeInventoryRepo) FindByItemID(ctx context.Context, itemID string, tx *sql.Tx) (item.InventoryRecord, error) {
	inv, ok := r.records[itemID]
	if !ok {
		return item.InventoryRecord{}, errors.New(http.StatusNotFound, status.NOT_FOUND, "inventory is not found")
	}
	return inv, nil
}

func (r *fakeInventoryRepo) TryDecrement(ctx context.Context, itemID string, qty int64, now time.Time, tx *sql.Tx) (bool, error) {
	inv, ok := r.records[itemID]
	if !ok || inv.Status != item.InventoryStatusActive || inv.AvailableQuantity < qty {
		return false, nil
	}
	inv.AvailableQuantity -= qty
	if inv.AvailableQuantity == 0 {
		inv.Status = item.InventoryStatusSold
	}
	inv.UpdatedAt = now
	r.records[itemID] = inv
	return true, nil
}

type fakeIntentRepo struct {
	intents map[string]CheckoutIntent
	saveErr error
}

func (r *fakeIntentRepo) BeginTx(ctx context.Context) (*sql.Tx, error) { return nil, nil }

func (r *fakeIntentRepo) CommitTx(ctx context.Context, tx *sql.Tx) error { return nil }

func (r *fakeIntentRepo) Rollback(ctx context.Context, tx *sql.Tx) error { return nil }

func (r *fakeIntentRepo) Save(ctx context.Context, intent CheckoutIntent, tx *sql.Tx) error {
	if r.saveErr != nil {
		return r.saveErr
	}
	for _, existing := range r.intents {
		if existing.BuyerID == intent.BuyerID && existing.ItemID == intent.ItemID && !existing.Status.Terminal() {
			return errors.New(http.StatusConflict, status.ACTIVE_INTENT_EXISTS, "an active checkout intent already exists for this item")
		}
	}
	r.intents[intent.ID] = intent
	return nil
}

func (r *fakeIntentRepo) FindByID(ctx context.Context, ID string, tx *sql.Tx) (CheckoutIntent, error) {
	intent, ok := r.intents[ID]
	if !ok {
		return CheckoutIntent{}, errors.New(http.StatusNotFound, status.NOT_FOUND, "checkout intent is not found")
	}
	return intent, nil
}

func (r *fakeIntentRepo) FindByIDForUpdate(ctx context.Context, ID string, tx *sql.Tx) (CheckoutIntent, error) {
	return r.FindByID(ctx, ID, tx)
}

func (r *fakeIntentRepo) Lock(ctx context.Context, ID string, externalRef string, amountTotal float64, lockExpiresAt, now time.Time, tx *sql.Tx) (bool, error) {
	intent, ok := r.intents[ID]
	if !ok || intent.Status != StatusIntent || !now.Before(intent.IntentExpiresAt) {
		return false, nil
	}
	intent.Status = StatusLocked
	intent.ExternalPaymentRef = &externalRef
	intent.AmountTotal = &amountTotal
	intent.LockExpiresAt = &lockExpiresAt
	intent.UpdatedAt = now
	r.intents[ID] = intent
	return true, nil
}

func (r *fakeIntentRepo) UpdateStatus(ctx context.Context, ID string, from, to Status, now time.Time, tx *sql.Tx) (bool, error) {
	intent, ok := r.intents[ID]
	if !ok || intent.Status != from {
		return false, nil
	}
	intent.Status = to
	intent.UpdatedAt = now
	r.intents[ID] = intent
	return true, nil
}

func (r *fakeIntentRepo) ExpireFrom(ctx context.Context, ID string, from Status, now time.Time, tx *sql.Tx) (bool, error) {
	intent, ok := r.intents[ID]
	if !ok || intent.Status != from {
		return false, nil
	}
	deadline, ok := intent.OverdueDeadline()
	if !ok || deadline.After(now) {
		return false, nil
	}
	intent.Status = StatusExpired
	intent.UpdatedAt = now
	r.intents[ID] = intent
	return true, nil
}

func (r *fakeIntentRepo) FindOverdue(ctx context.Context, now time.Time, limit int, tx *sql.Tx) ([]CheckoutIntent, error) {
	var out []CheckoutIntent
	for _, intent := range r.intents {
		deadline, ok := intent.OverdueDeadline()
		if !ok || deadline.After(now) {
			continue
		}
		out = append(out, intent)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

type fakeOrderRepo struct {
	orders []order.Order
}

func (r *fakeOrderRepo) Save(ctx context.Context, o order.Order, tx *sql.Tx) error {
	for _, existing := range r.orders {
		if existing.SourceIntentID == o.SourceIntentID {
			return errors.New(http.StatusConflict, status.CONFLICT, "an order already exists for this checkout intent")
		}
	}
	r.orders = append(r.orders, o)
	return nil
}

func (r *fakeOrderRepo) FindByID(ctx context.Context, ID string, tx *sql.Tx) (order.Order, error) {
	for _, o := range r.orders {
		if o.ID == ID {
			return o, nil
		}
	}
	return order.Order{}, errors.New(http.StatusNotFound, status.NOT_FOUND, "order is not found")
}

func (r *fakeOrderRepo) FindBySourceIntentID(ctx context.Context, intentID string, tx *sql.Tx) (*order.Order, error) {
	for _, o := range r.orders {
		if o.SourceIntentID == intentID {
			found := o
			return &found, nil
		}
	}
	return nil, nil
}

func (r *fakeOrderRepo) FindManyByBuyerID(ctx context.Context, buyerID int64, offset, limit int64, tx *sql.Tx) ([]order.Order, error) {
	var out []order.Order
	for _, o := range r.orders {
		if o.BuyerID == buyerID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (r *fakeOrderRepo) CountByBuyerID(ctx context.Context, buyerID int64, tx *sql.Tx) (int64, error) {
	var n int64
	for _, o := range r.orders {
		if o.BuyerID == buyerID {
			n++
		}
	}
	return n, nil
}

type fakeCompensationRepo struct {
	compensations []PaymentCompensation
}

func (r *fakeCompensationRepo) Save(ctx context.Context, c PaymentCompensation, tx *sql.Tx) error {
	r.compensations = append(r.compensations, c)
	return nil
}

func (r *fakeCompensationRepo) FindManyByStatus(ctx context.Context, compensationStatus string, limit int, tx *sql.Tx) ([]PaymentCompensation, error) {
	var out []PaymentCompensation
	for _, c := range r.compensations {
		if c.Status == compensationStatus {
			out = append(out, c)
		}
	}
	return out, nil
}

type fakePaygateRepo struct {
	createResp  paygate.CreatePaymentObjectResponse
	createErr   error
	settled     map[string]bool
	statusErr   error
	createCalls int
}

func (r *fakePaygateRepo) CreatePaymentObject(ctx context.Context, req paygate.CreatePaymentObjectRequest) (paygate.CreatePaymentObjectResponse, error) {
	r.createCalls++
	if r.createErr != nil {
		return paygate.CreatePaymentObjectResponse{}, r.createErr
	}
	return r.createResp, nil
}

func (r *fakePaygateRepo) GetPaymentStatus(ctx context.Context, externalRef string) (paygate.PaymentStatusResponse, error) {
	if r.statusErr != nil {
		return paygate.PaymentStatusResponse{}, r.statusErr
	}
	return paygate.PaymentStatusResponse{ExternalRef: externalRef, Settled: r.settled[externalRef]}, nil
}

func (r *fakePaygateRepo) VerifyNotificationSignature(payload []byte, signature string) error {
	return nil
}

type fakePublisher struct {
	topics []string
}

func (p *fakePublisher) Publish(ctx context.Context, topic string, key string, headers map[string]string, message []byte) {
	p.topics = append(p.topics, topic)
}

func (p *fakePublisher) Close() {}

type checkoutFixture struct {
	useCase       CheckoutUseCase
	items         *fakeItemRepo
	inventories   *fakeInventoryRepo
	intents       *fakeIntentRepo
	orders        *fakeOrderRepo
	compensations *fakeCompensationRepo
	paygate       *fakePaygateRepo
	publisher     *fakePublisher
}

func newCheckoutFixture(now time.Time) *checkoutFixture {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	f := &checkoutFixture{
		items:         &fakeItemRepo{items: map[string]item.Item{}},
		inventories:   &fakeInventoryRepo{records: map[string]item.InventoryRecord{}},
		intents:       &fakeIntentRepo{intents: map[string]CheckoutIntent{}},
		orders:        &fakeOrderRepo{},
		compensations: &fakeCompensationRepo{},
		paygate: &fakePaygateRepo{
			createResp: paygate.CreatePaymentObjectResponse{ExternalRef: "pay_1", ClientSecret: "secret_1"},
			settled:    map[string]bool{},
		},
		publisher: &fakePublisher{},
	}

	f.useCase = NewCheckoutUseCase(CheckoutUseCaseProperty{
		Logger:                 logger,
		Clock:                  clock.NewFixed(now),
		Timeout:                5 * time.Second,
		BaseURL:                "http://localhost:9030",
		IntentTTL:              5 * time.Minute,
		LockTTL:                4 * time.Minute,
		SweepBatchSize:         100,
		ItemRepository:         f.items,
		InventoryRepository:    f.inventories,
		IntentRepository:       f.intents,
		OrderRepository:        f.orders,
		CompensationRepository: f.compensations,
		PaygateRepository:      f.paygate,
		Publisher:              f.publisher,
	})

	return f
}

func (f *checkoutFixture) seedItem(id string, sellerID int64, price float64, qty int64) {
	f.items.items[id] = item.Item{
		ID:                  id,
		SellerID:            sellerID,
		Name:                "test item",
		Price:               price,
		SellerPayoutAccount: "acct_seller",
		Status:              item.ItemStatusActive,
	}
	f.inventories.records[id] = item.InventoryRecord{
		ItemID:            id,
		AvailableQuantity: qty,
		Status:            item.InventoryStatusActive,
	}
}

func buyerCtx(buyerID int64) context.Context {
	return session.SetAccountToCtx(context.Background(), session.Account{ID: buyerID, Name: "buyer", Email: "buyer@example.com"})
}

func TestCheckoutUseCase_CreateIntent(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 1, 19, 0, 0, 0, time.UTC)

	t.Run("creates an intent with the reservation deadline", func(t *testing.T) {
		f := newCheckoutFixture(now)
		f.seedItem("item-1", 42, 25.50, 3)

		resp, err := f.useCase.CreateIntent(buyerCtx(7), CreateIntentRequest{ItemID: "item-1", ShowID: "show-1", Quantity: 1})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if resp.Status != StatusIntent {
			t.Fatalf("expected status %s, got %s", StatusIntent, resp.Status)
		}
		if !resp.IntentExpiresAt.Equal(now.Add(5 * time.Minute)) {
			t.Fatalf("expected expiry %v, got %v", now.Add(5*time.Minute), resp.IntentExpiresAt)
		}

		stored, ok := f.intents.intents[resp.ID]
		if !ok {
			t.Fatalf("expected intent %s to be persisted", resp.ID)
		}
		if stored.BuyerID != 7 || stored.SellerID != 42 {
			t.Fatalf("unexpected intent parties: buyer=%d seller=%d", stored.BuyerID, stored.SellerID)
		}
		if f.inventories.records["item-1"].AvailableQuantity != 3 {
			t.Fatalf("creating an intent must not hold stock")
		}
	})

	t.Run("rejects an inactive item", func(t *testing.T) {
		f := newCheckoutFixture(now)
		f.seedItem("item-1", 42, 25.50, 3)
		itm := f.items.items["item-1"]
		itm.Status = item.ItemStatusInactive
		f.items.items["item-1"] = itm

		_, err := f.useCase.CreateIntent(buyerCtx(7), CreateIntentRequest{ItemID: "item-1", ShowID: "show-1", Quantity: 1})
		if errors.Destruct(err).Status != status.ITEM_UNAVAILABLE {
			t.Fatalf("expected %s, got %v", status.ITEM_UNAVAILABLE, err)
		}
	})

	t.Run("rejects when the advisory stock check fails", func(t *testing.T) {
		f := newCheckoutFixture(now)
		f.seedItem("item-1", 42, 25.50, 0)

		_, err := f.useCase.CreateIntent(buyerCtx(7), CreateIntentRequest{ItemID: "item-1", ShowID: "show-1", Quantity: 1})
		if errors.Destruct(err).Status != status.ITEM_UNAVAILABLE {
			t.Fatalf("expected %s, got %v", status.ITEM_UNAVAILABLE, err)
		}
	})

	t.Run("rejects a second active intent for the same item", func(t *testing.T) {
		f := newCheckoutFixture(now)
		f.seedItem("item-1", 42, 25.50, 3)

		if _, err := f.useCase.CreateIntent(buyerCtx(7), CreateIntentRequest{ItemID: "item-1", ShowID: "show-1", Quantity: 1}); err != nil {
			t.Fatalf("first intent: %v", err)
		}
		_, err := f.useCase.CreateIntent(buyerCtx(7), CreateIntentRequest{ItemID: "item-1", ShowID: "show-1", Quantity: 1})
		if errors.Destruct(err).Status != status.ACTIVE_INTENT_EXISTS {
			t.Fatalf("expected %s, got %v", status.ACTIVE_INTENT_EXISTS, err)
		}
	})

	t.Run("requires an authenticated session", func(t *testing.T) {
		f := newCheckoutFixture(now)
		f.seedItem("item-1", 42, 25.50, 3)

		_, err := f.useCase.CreateIntent(context.Background(), CreateIntentRequest{ItemID: "item-1", ShowID: "show-1", Quantity: 1})
		if errors.Destruct(err).Status != status.UNAUTHORIZED {
			t.Fatalf("expected %s, got %v", status.UNAUTHORIZED, err)
		}
	})
}

func TestCheckoutUseCase_InitiatePayment(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 1, 19, 0, 0, 0, time.UTC)

	seedIntent := func(f *checkoutFixture, id string, buyerID int64, s Status, intentExpiresAt time.Time) {
		f.intents.intents[id] = CheckoutIntent{
			ID:              id,
			BuyerID:         buyerID,
			SellerID:        42,
			ItemID:          "item-1",
			ShowID:          "show-1",
			Quantity:        1,
			Status:          s,
			IntentExpiresAt: intentExpiresAt,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
	}

	t.Run("locks the intent and returns the client secret", func(t *testing.T) {
		f := newCheckoutFixture(now)
		f.seedItem("item-1", 42, 25.50, 1)
		seedIntent(f, "CI-1", 7, StatusIntent, now.Add(5*time.Minute))

		resp, err := f.useCase.InitiatePayment(buyerCtx(7), "CI-1")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if resp.ClientSecret != "secret_1" {
			t.Fatalf("expected client secret from the gateway, got %q", resp.ClientSecret)
		}
		if !resp.LockExpiresAt.Equal(now.Add(4 * time.Minute)) {
			t.Fatalf("expected lock expiry %v, got %v", now.Add(4*time.Minute), resp.LockExpiresAt)
		}

		stored := f.intents.intents["CI-1"]
		if stored.Status != StatusLocked {
			t.Fatalf("expected status %s, got %s", StatusLocked, stored.Status)
		}
		if stored.ExternalPaymentRef == nil || *stored.ExternalPaymentRef != "pay_1" {
			t.Fatalf("expected payment ref to be recorded")
		}
		if stored.AmountTotal == nil || *stored.AmountTotal != 25.50 {
			t.Fatalf("expected amount total 25.50, got %v", stored.AmountTotal)
		}
	})

	t.Run("rejects an expired intent without calling the gateway", func(t *testing.T) {
		f := newCheckoutFixture(now)
		f.seedItem("item-1", 42, 25.50, 1)
		seedIntent(f, "CI-1", 7, StatusIntent, now.Add(-time.Second))

		_, err := f.useCase.InitiatePayment(buyerCtx(7), "CI-1")
		if errors.Destruct(err).Status != status.INTENT_EXPIRED {
			t.Fatalf("expected %s, got %v", status.INTENT_EXPIRED, err)
		}
		if f.paygate.createCalls != 0 {
			t.Fatalf("expected no gateway call, got %d", f.paygate.createCalls)
		}
	})

	t.Run("hides another buyer's intent", func(t *testing.T) {
		f := newCheckoutFixture(now)
		f.seedItem("item-1", 42, 25.50, 1)
		seedIntent(f, "CI-1", 7, StatusIntent, now.Add(5*time.Minute))

		_, err := f.useCase.InitiatePayment(buyerCtx(8), "CI-1")
		if errors.Destruct(err).Status != status.NOT_FOUND {
			t.Fatalf("expected %s, got %v", status.NOT_FOUND, err)
		}
	})

	t.Run("leaves the intent untouched when the gateway fails", func(t *testing.T) {
		f := newCheckoutFixture(now)
		f.seedItem("item-1", 42, 25.50, 1)
		seedIntent(f, "CI-1", 7, StatusIntent, now.Add(5*time.Minute))
		f.paygate.createErr = errors.New(http.StatusBadGateway, status.GATEWAY_ERROR, "payment gateway is unreachable")

		_, err := f.useCase.InitiatePayment(buyerCtx(7), "CI-1")
		if errors.Destruct(err).Status != status.GATEWAY_ERROR {
			t.Fatalf("expected %s, got %v", status.GATEWAY_ERROR, err)
		}
		if f.intents.intents["CI-1"].Status != StatusIntent {
			t.Fatalf("expected intent to remain %s", StatusIntent)
		}
	})
}

func TestCheckoutUseCase_ConfirmPayment(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 1, 19, 2, 0, 0, time.UTC)

	seedLocked := func(f *checkoutFixture, id string, buyerID int64, ref string, lockExpiresAt time.Time) {
		amount := 25.50
		f.intents.intents[id] = CheckoutIntent{
			ID:                 id,
			BuyerID:            buyerID,
			SellerID:           42,
			ItemID:             "item-1",
			ShowID:             "show-1",
			Quantity:           1,
			Status:             StatusLocked,
			IntentExpiresAt:    now.Add(3 * time.Minute),
			LockExpiresAt:      &lockExpiresAt,
			ExternalPaymentRef: &ref,
			AmountTotal:        &amount,
		}
	}

	t.Run("converts a settled payment into an order", func(t *testing.T) {
		f := newCheckoutFixture(now)
		f.seedItem("item-1", 42, 25.50, 1)
		seedLocked(f, "CI-1", 7, "pay_1", now.Add(4*time.Minute))
		f.paygate.settled["pay_1"] = true

		resp, err := f.useCase.ConfirmPayment(context.Background(), "CI-1", "pay_1")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if resp.AlreadyConverted {
			t.Fatalf("first confirmation must not report already converted")
		}
		if resp.Order.SourceIntentID != "CI-1" {
			t.Fatalf("expected order for CI-1, got %q", resp.Order.SourceIntentID)
		}
		if resp.Order.PickupCode == "" || resp.Order.CompletionCode == "" {
			t.Fatalf("expected handover codes to be generated")
		}
		if f.intents.intents["CI-1"].Status != StatusConverted {
			t.Fatalf("expected intent to be %s", StatusConverted)
		}
		if got := f.inventories.records["item-1"].AvailableQuantity; got != 0 {
			t.Fatalf("expected inventory to be decremented to 0, got %d", got)
		}
		if len(f.publisher.topics) != 1 || f.publisher.topics[0] != topicIntentConverted {
			t.Fatalf("expected one %s event, got %v", topicIntentConverted, f.publisher.topics)
		}
	})

	t.Run("is idempotent across repeated confirmations", func(t *testing.T) {
		f := newCheckoutFixture(now)
		f.seedItem("item-1", 42, 25.50, 5)
		seedLocked(f, "CI-1", 7, "pay_1", now.Add(4*time.Minute))
		f.paygate.settled["pay_1"] = true

		first, err := f.useCase.ConfirmPayment(context.Background(), "CI-1", "pay_1")
		if err != nil {
			t.Fatalf("first confirmation: %v", err)
		}
		second, err := f.useCase.ConfirmPayment(context.Background(), "CI-1", "pay_1")
		if err != nil {
			t.Fatalf("second confirmation: %v", err)
		}
		if !second.AlreadyConverted {
			t.Fatalf("expected second confirmation to report already converted")
		}
		if second.Order.ID != first.Order.ID {
			t.Fatalf("expected the same order, got %q and %q", first.Order.ID, second.Order.ID)
		}
		if len(f.orders.orders) != 1 {
			t.Fatalf("expected exactly one order, got %d", len(f.orders.orders))
		}
		if got := f.inventories.records["item-1"].AvailableQuantity; got != 4 {
			t.Fatalf("expected a single decrement, got quantity %d", got)
		}
	})

	t.Run("last unit goes to exactly one of two racing buyers", func(t *testing.T) {
		f := newCheckoutFixture(now)
		f.seedItem("item-1", 42, 25.50, 1)
		seedLocked(f, "CI-1", 7, "pay_1", now.Add(4*time.Minute))
		seedLocked(f, "CI-2", 8, "pay_2", now.Add(4*time.Minute))
		f.paygate.settled["pay_1"] = true
		f.paygate.settled["pay_2"] = true

		if _, err := f.useCase.ConfirmPayment(context.Background(), "CI-1", "pay_1"); err != nil {
			t.Fatalf("winner confirmation: %v", err)
		}
		_, err := f.useCase.ConfirmPayment(context.Background(), "CI-2", "pay_2")
		if errors.Destruct(err).Status != status.SOLD_OUT {
			t.Fatalf("expected %s, got %v", status.SOLD_OUT, err)
		}

		if f.intents.intents["CI-2"].Status != StatusCancelled {
			t.Fatalf("expected loser intent to be %s", StatusCancelled)
		}
		if len(f.orders.orders) != 1 {
			t.Fatalf("expected one order, got %d", len(f.orders.orders))
		}
		if len(f.compensations.compensations) != 1 {
			t.Fatalf("expected one compensation, got %d", len(f.compensations.compensations))
		}
		comp := f.compensations.compensations[0]
		if comp.Reason != CompensationReasonSoldOut {
			t.Fatalf("expected reason %s, got %s", CompensationReasonSoldOut, comp.Reason)
		}
		if comp.IntentID != "CI-2" || comp.ExternalPaymentRef != "pay_2" {
			t.Fatalf("compensation points at the wrong payment: %+v", comp)
		}
	})

	t.Run("rejects an unsettled payment without writing", func(t *testing.T) {
		f := newCheckoutFixture(now)
		f.seedItem("item-1", 42, 25.50, 1)
		seedLocked(f, "CI-1", 7, "pay_1", now.Add(4*time.Minute))

		_, err := f.useCase.ConfirmPayment(context.Background(), "CI-1", "pay_1")
		if errors.Destruct(err).Status != status.PAYMENT_NOT_SETTLED {
			t.Fatalf("expected %s, got %v", status.PAYMENT_NOT_SETTLED, err)
		}
		if f.intents.intents["CI-1"].Status != StatusLocked {
			t.Fatalf("expected intent to remain %s", StatusLocked)
		}
		if got := f.inventories.records["item-1"].AvailableQuantity; got != 1 {
			t.Fatalf("expected inventory untouched, got %d", got)
		}
	})

	t.Run("rejects a payment reference from another intent", func(t *testing.T) {
		f := newCheckoutFixture(now)
		f.seedItem("item-1", 42, 25.50, 1)
		seedLocked(f, "CI-1", 7, "pay_1", now.Add(4*time.Minute))

		_, err := f.useCase.ConfirmPayment(context.Background(), "CI-1", "pay_other")
		if errors.Destruct(err).Status != status.INVALID_STATE {
			t.Fatalf("expected %s, got %v", status.INVALID_STATE, err)
		}
	})

	t.Run("converted intents still require the matching reference", func(t *testing.T) {
		f := newCheckoutFixture(now)
		f.seedItem("item-1", 42, 25.50, 1)
		seedLocked(f, "CI-1", 7, "pay_1", now.Add(4*time.Minute))
		f.paygate.settled["pay_1"] = true

		if _, err := f.useCase.ConfirmPayment(context.Background(), "CI-1", "pay_1"); err != nil {
			t.Fatalf("first confirmation: %v", err)
		}

		resp, err := f.useCase.ConfirmPayment(context.Background(), "CI-1", "pay_guess")
		if errors.Destruct(err).Status != status.INVALID_STATE {
			t.Fatalf("expected %s, got %v", status.INVALID_STATE, err)
		}
		if resp.Order.ID != "" || resp.Order.PickupCode != "" || resp.Order.CompletionCode != "" {
			t.Fatalf("expected no order details for a mismatched reference, got %+v", resp.Order)
		}
	})

	t.Run("late gateway confirmation still converts a locked intent", func(t *testing.T) {
		f := newCheckoutFixture(now)
		f.seedItem("item-1", 42, 25.50, 1)
		seedLocked(f, "CI-1", 7, "pay_1", now.Add(-time.Minute))
		f.paygate.settled["pay_1"] = true

		resp, err := f.useCase.ConfirmPayment(context.Background(), "CI-1", "pay_1")
		if err != nil {
			t.Fatalf("expected late confirmation to convert, got %v", err)
		}
		if resp.Order.SourceIntentID != "CI-1" {
			t.Fatalf("expected order for CI-1")
		}
		if f.intents.intents["CI-1"].Status != StatusConverted {
			t.Fatalf("expected intent to be %s", StatusConverted)
		}
	})

	t.Run("settled payment on an expired intent is flagged for compensation", func(t *testing.T) {
		f := newCheckoutFixture(now)
		f.seedItem("item-1", 42, 25.50, 1)
		seedLocked(f, "CI-1", 7, "pay_1", now.Add(-time.Minute))
		intent := f.intents.intents["CI-1"]
		intent.Status = StatusExpired
		f.intents.intents["CI-1"] = intent
		f.paygate.settled["pay_1"] = true

		_, err := f.useCase.ConfirmPayment(context.Background(), "CI-1", "pay_1")
		if errors.Destruct(err).Status != status.INVALID_STATE {
			t.Fatalf("expected %s, got %v", status.INVALID_STATE, err)
		}
		if len(f.compensations.compensations) != 1 {
			t.Fatalf("expected one compensation, got %d", len(f.compensations.compensations))
		}
		if f.compensations.compensations[0].Reason != CompensationReasonLateSettlement {
			t.Fatalf("expected reason %s, got %s", CompensationReasonLateSettlement, f.compensations.compensations[0].Reason)
		}
		if got := f.inventories.records["item-1"].AvailableQuantity; got != 1 {
			t.Fatalf("expected inventory untouched, got %d", got)
		}
	})
}

func TestCheckoutUseCase_CancelIntent(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 1, 19, 0, 0, 0, time.UTC)

	t.Run("buyer cancels their own intent", func(t *testing.T) {
		f := newCheckoutFixture(now)
		f.intents.intents["CI-1"] = CheckoutIntent{ID: "CI-1", BuyerID: 7, Status: StatusIntent, IntentExpiresAt: now.Add(5 * time.Minute)}

		if err := f.useCase.CancelIntent(context.Background(), "CI-1", "buyer:7"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if f.intents.intents["CI-1"].Status != StatusCancelled {
			t.Fatalf("expected %s, got %s", StatusCancelled, f.intents.intents["CI-1"].Status)
		}
	})

	t.Run("buyer cannot cancel someone else's intent", func(t *testing.T) {
		f := newCheckoutFixture(now)
		f.intents.intents["CI-1"] = CheckoutIntent{ID: "CI-1", BuyerID: 7, Status: StatusIntent, IntentExpiresAt: now.Add(5 * time.Minute)}

		err := f.useCase.CancelIntent(context.Background(), "CI-1", "buyer:8")
		if errors.Destruct(err).Status != status.NOT_FOUND {
			t.Fatalf("expected %s, got %v", status.NOT_FOUND, err)
		}
	})

	t.Run("terminal intents cannot be cancelled", func(t *testing.T) {
		f := newCheckoutFixture(now)
		f.intents.intents["CI-1"] = CheckoutIntent{ID: "CI-1", BuyerID: 7, Status: StatusConverted}

		err := f.useCase.CancelIntent(context.Background(), "CI-1", "buyer:7")
		if errors.Destruct(err).Status != status.INVALID_STATE {
			t.Fatalf("expected %s, got %v", status.INVALID_STATE, err)
		}
	})
}

func TestCheckoutUseCase_OnPaymentNotification(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 1, 19, 2, 0, 0, time.UTC)

	t.Run("ignores unsettled notifications", func(t *testing.T) {
		f := newCheckoutFixture(now)

		err := f.useCase.OnPaymentNotification(context.Background(), PaymentNotificationEvent{IntentID: "CI-1", ExternalRef: "pay_1", Settled: false})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
	})

	t.Run("swallows conversion conflicts so the gateway stops retrying", func(t *testing.T) {
		f := newCheckoutFixture(now)
		f.seedItem("item-1", 42, 25.50, 0)
		ref := "pay_1"
		amount := 25.50
		lockExpiresAt := now.Add(4 * time.Minute)
		f.intents.intents["CI-1"] = CheckoutIntent{
			ID:                 "CI-1",
			BuyerID:            7,
			ItemID:             "item-1",
			Quantity:           1,
			Status:             StatusLocked,
			LockExpiresAt:      &lockExpiresAt,
			ExternalPaymentRef: &ref,
			AmountTotal:        &amount,
		}
		f.paygate.settled["pay_1"] = true

		err := f.useCase.OnPaymentNotification(context.Background(), PaymentNotificationEvent{IntentID: "CI-1", ExternalRef: "pay_1", Settled: true})
		if err != nil {
			t.Fatalf("expected conflict to be swallowed, got %v", err)
		}
		if len(f.compensations.compensations) != 1 {
			t.Fatalf("expected the payment to be flagged before swallowing, got %d compensations", len(f.compensations.compensations))
		}
	})
}

func TestCheckoutUseCase_ExpireOverdue(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 1, 19, 10, 0, 0, time.UTC)
	f := newCheckoutFixture(now)

	lockExpired := now.Add(-time.Minute)
	lockAlive := now.Add(3 * time.Minute)
	f.intents.intents["CI-1"] = CheckoutIntent{ID: "CI-1", Status: StatusIntent, IntentExpiresAt: now.Add(-2 * time.Minute)}
	f.intents.intents["CI-2"] = CheckoutIntent{ID: "CI-2", Status: StatusLocked, IntentExpiresAt: now.Add(-5 * time.Minute), LockExpiresAt: &lockExpired}
	f.intents.intents["CI-3"] = CheckoutIntent{ID: "CI-3", Status: StatusIntent, IntentExpiresAt: now.Add(time.Minute)}
	f.intents.intents["CI-4"] = CheckoutIntent{ID: "CI-4", Status: StatusLocked, IntentExpiresAt: now.Add(-5 * time.Minute), LockExpiresAt: &lockAlive}
	f.intents.intents["CI-5"] = CheckoutIntent{ID: "CI-5", Status: StatusConverted}

	expired, err := f.useCase.ExpireOverdue(context.Background())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if expired != 2 {
		t.Fatalf("expected 2 expired intents, got %d", expired)
	}

	if f.intents.intents["CI-1"].Status != StatusExpired {
		t.Errorf("CI-1: expected %s, got %s", StatusExpired, f.intents.intents["CI-1"].Status)
	}
	if f.intents.intents["CI-2"].Status != StatusExpired {
		t.Errorf("CI-2: expected %s, got %s", StatusExpired, f.intents.intents["CI-2"].Status)
	}
	if f.intents.intents["CI-3"].Status != StatusIntent {
		t.Errorf("CI-3: expected %s, got %s", StatusIntent, f.intents.intents["CI-3"].Status)
	}
	if f.intents.intents["CI-4"].Status != StatusLocked {
		t.Errorf("CI-4: expected %s, got %s", StatusLocked, f.intents.intents["CI-4"].Status)
	}
	if f.intents.intents["CI-5"].Status != StatusConverted {
		t.Errorf("CI-5: expected %s, got %s", StatusConverted, f.intents.intents["CI-5"].Status)
	}
}

func TestCheckoutUseCase_OnExpireIntent(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 1, 19, 10, 0, 0, time.UTC)

	t.Run("expires an overdue intent", func(t *testing.T) {
		f := newCheckoutFixture(now)
		f.intents.intents["CI-1"] = CheckoutIntent{ID: "CI-1", Status: StatusIntent, IntentExpiresAt: now.Add(-time.Minute)}

		if err := f.useCase.OnExpireIntent(context.Background(), ExpireIntentEvent{ID: "CI-1"}); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if f.intents.intents["CI-1"].Status != StatusExpired {
			t.Fatalf("expected %s, got %s", StatusExpired, f.intents.intents["CI-1"].Status)
		}
	})

	t.Run("leaves a not-yet-due intent alone", func(t *testing.T) {
		f := newCheckoutFixture(now)
		f.intents.intents["CI-1"] = CheckoutIntent{ID: "CI-1", Status: StatusIntent, IntentExpiresAt: now.Add(time.Minute)}

		if err := f.useCase.OnExpireIntent(context.Background(), ExpireIntentEvent{ID: "CI-1"}); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if f.intents.intents["CI-1"].Status != StatusIntent {
			t.Fatalf("expected %s, got %s", StatusIntent, f.intents.intents["CI-1"].Status)
		}
	})

	t.Run("is a no-op for terminal intents", func(t *testing.T) {
		f := newCheckoutFixture(now)
		f.intents.intents["CI-1"] = CheckoutIntent{ID: "CI-1", Status: StatusConverted}

		if err := f.useCase.OnExpireIntent(context.Background(), ExpireIntentEvent{ID: "CI-1"}); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if f.intents.intents["CI-1"].Status != StatusConverted {
			t.Fatalf("expected %s, got %s", StatusConverted, f.intents.intents["CI-1"].Status)
		}
	})
}
