package order_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"ms-reservations/internal/catalog"
	inventorydb "ms-reservations/internal/inventory/db"
	"ms-reservations/internal/logger"
	"ms-reservations/internal/models"
	"ms-reservations/internal/order"
	"ms-reservations/internal/order/discount"
	"ms-reservations/internal/order/qr"
	"ms-reservations/internal/reservation"
	"ms-reservations/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) PublishReservationCreated(res models.Reservation) error {
	args := m.Called(res)
	return args.Error(0)
}

func (m *MockPublisher) PublishReservationReleased(res models.Reservation) error {
	args := m.Called(res)
	return args.Error(0)
}

func (m *MockPublisher) PublishOrderCreated(o models.Order) error {
	args := m.Called(o)
	return args.Error(0)
}

func (m *MockPublisher) PublishOrderConfirmed(o models.Order) error {
	args := m.Called(o)
	return args.Error(0)
}

func (m *MockPublisher) PublishOrderExpired(o models.Order) error {
	args := m.Called(o)
	return args.Error(0)
}

type testEnv struct {
	bun          *bun.DB
	reservations *reservation.Service
	orders       *order.Service
	publisher    *MockPublisher
}

func setupEnv(t *testing.T) *testEnv {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, "file::memory:?cache=shared")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)
	bunDB := bun.NewDB(sqldb, sqlitedialect.New())

	ctx := context.Background()
	for _, model := range []interface{}{
		(*models.Event)(nil),
		(*models.InventoryShard)(nil),
		(*models.Reservation)(nil),
		(*models.Order)(nil),
	} {
		require.NoError(t, bunDB.ResetModel(ctx, model))
	}
	t.Cleanup(func() { bunDB.Close() })

	publisher := new(MockPublisher)
	publisher.On("PublishReservationCreated", mock.Anything).Return(nil)
	publisher.On("PublishReservationReleased", mock.Anything).Return(nil)
	publisher.On("PublishOrderCreated", mock.Anything).Return(nil)
	publisher.On("PublishOrderConfirmed", mock.Anything).Return(nil)
	publisher.On("PublishOrderExpired", mock.Anything).Return(nil)

	log := logger.NewLogger()
	shards := inventorydb.NewStore(bunDB, 10)
	retry := store.RetryPolicy{MaxRetries: 10, BaseDelay: 2 * time.Millisecond}

	return &testEnv{
		bun:          bunDB,
		reservations: reservation.NewService(bunDB, shards, publisher, log, 10*time.Minute, retry),
		orders:       order.NewService(bunDB, shards, qr.NewGenerator("test-secret"), discount.NoopValidator{}, publisher, log, retry),
		publisher:    publisher,
	}
}

func seedEvent(t *testing.T, env *testEnv, tiers ...models.TicketTier) {
	t.Helper()
	event := &models.Event{ID: "ev1", Slug: "launch-party", Name: "Launch Party", Tiers: tiers}
	require.NoError(t, catalog.NewStore(env.bun).CreateEvent(context.Background(), event))
}

func reserve(t *testing.T, env *testEnv, tierID string, qty int) models.ReservationResult {
	t.Helper()
	result, err := env.reservations.CreateReservation(context.Background(), models.ReservationRequest{
		EventID:    "ev1",
		CustomerID: "cust-a",
		Items:      []models.RequestedItem{{TierID: tierID, Quantity: qty}},
	})
	require.NoError(t, err)
	require.True(t, result.Success, "reservation failed: %s", result.Error)
	return result
}

func remainingOf(t *testing.T, env *testEnv, tierID string) int {
	t.Helper()
	event, err := catalog.NewStore(env.bun).GetEvent(context.Background(), "ev1")
	require.NoError(t, err)
	tier := event.Tier(tierID)
	require.NotNil(t, tier)
	return tier.Remaining
}

func TestCreateOrderFromReservation(t *testing.T) {
	env := setupEnv(t)
	seedEvent(t, env, models.TicketTier{ID: "ga", Name: "GA", BasePrice: 50, Quantity: 100, Remaining: 100})
	ctx := context.Background()

	res := reserve(t, env, "ga", 3)

	created, err := env.orders.CreateOrder(ctx, models.OrderRequest{
		UserID:        "user-1",
		ReservationID: res.ReservationID,
	})
	require.NoError(t, err)

	assert.Equal(t, "ord_"+res.ReservationID, created.ID)
	assert.Equal(t, models.OrderPendingPayment, created.Status)
	assert.Equal(t, 150.0, created.TotalAmount)
	assert.Equal(t, res.ReservationID, created.ReservationID)
	require.Len(t, created.Tickets, 1)
	assert.Equal(t, 3, created.Tickets[0].Quantity)

	// Canonical remaining dropped, the hold was consumed, sales recorded.
	assert.Equal(t, 97, remainingOf(t, env, "ga"))
	avail, err := inventorydb.Availability(ctx, env.bun, "ev1", "ga")
	require.NoError(t, err)
	assert.Equal(t, 0, avail.Locked)
	assert.Equal(t, 3, avail.Sold)

	// The reservation is consumed exactly once.
	stored, err := env.reservations.GetReservation(ctx, res.ReservationID)
	require.NoError(t, err)
	assert.Equal(t, models.ReservationConverted, stored.Status)
	assert.Equal(t, created.ID, stored.OrderID)
}

func TestCreateOrderIdempotent(t *testing.T) {
	env := setupEnv(t)
	seedEvent(t, env, models.TicketTier{ID: "ga", Name: "GA", BasePrice: 50, Quantity: 100, Remaining: 100})
	ctx := context.Background()

	res := reserve(t, env, "ga", 2)
	req := models.OrderRequest{UserID: "user-1", ReservationID: res.ReservationID}

	first, err := env.orders.CreateOrder(ctx, req)
	require.NoError(t, err)
	second, err := env.orders.CreateOrder(ctx, req)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.TotalAmount, second.TotalAmount)

	// No double deduction.
	assert.Equal(t, 98, remainingOf(t, env, "ga"))
	count, err := env.bun.NewSelect().Model((*models.Order)(nil)).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestCreateOrderFreeTicketsConfirmImmediately(t *testing.T) {
	env := setupEnv(t)
	seedEvent(t, env, models.TicketTier{ID: "free", Name: "Free Entry", BasePrice: 0, Quantity: 50, Remaining: 50})
	ctx := context.Background()

	res := reserve(t, env, "free", 2)
	created, err := env.orders.CreateOrder(ctx, models.OrderRequest{
		UserID:        "user-1",
		ReservationID: res.ReservationID,
	})
	require.NoError(t, err)

	assert.Equal(t, models.OrderConfirmed, created.Status)
	assert.Equal(t, 0.0, created.TotalAmount)
	assert.Len(t, created.QRCodes, 2, "one credential per unit on immediate confirmation")
	assert.False(t, created.ConfirmedAt.IsZero())
}

func TestCreateOrderDirectPurchase(t *testing.T) {
	env := setupEnv(t)
	seedEvent(t, env, models.TicketTier{ID: "ga", Name: "GA", BasePrice: 40, Quantity: 100, Remaining: 100})
	ctx := context.Background()

	created, err := env.orders.CreateOrder(ctx, models.OrderRequest{
		EventID: "ev1",
		UserID:  "user-1",
		Items:   []models.RequestedItem{{TierID: "ga", Quantity: 2}},
	})
	require.NoError(t, err)

	assert.Equal(t, models.OrderPendingPayment, created.Status)
	assert.Equal(t, 80.0, created.TotalAmount)
	assert.Empty(t, created.ReservationID)
	assert.Equal(t, 98, remainingOf(t, env, "ga"))
}

func TestCreateOrderDirectPurchaseRespectsLocks(t *testing.T) {
	env := setupEnv(t)
	seedEvent(t, env, models.TicketTier{ID: "vip", Name: "VIP", BasePrice: 100, Quantity: 5, Remaining: 5})
	ctx := context.Background()

	// Someone else holds 4 of the 5.
	reserve(t, env, "vip", 4)

	_, err := env.orders.CreateOrder(ctx, models.OrderRequest{
		EventID: "ev1",
		UserID:  "user-1",
		Items:   []models.RequestedItem{{TierID: "vip", Quantity: 2}},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, order.ErrInsufficientStock)

	// Nothing was deducted.
	assert.Equal(t, 5, remainingOf(t, env, "vip"))
}

func TestCreateOrderExpiredReservation(t *testing.T) {
	env := setupEnv(t)
	seedEvent(t, env, models.TicketTier{ID: "ga", Name: "GA", BasePrice: 50, Quantity: 100, Remaining: 100})
	ctx := context.Background()

	res := reserve(t, env, "ga", 1)
	require.NoError(t, env.reservations.ReleaseInventory(ctx, res.ReservationID))

	_, err := env.orders.CreateOrder(ctx, models.OrderRequest{
		UserID:        "user-1",
		ReservationID: res.ReservationID,
	})
	assert.ErrorIs(t, err, order.ErrReservationExpired)
}

func TestCreateOrderReservationNotFound(t *testing.T) {
	env := setupEnv(t)
	seedEvent(t, env, models.TicketTier{ID: "ga", Name: "GA", BasePrice: 50, Quantity: 100, Remaining: 100})

	_, err := env.orders.CreateOrder(context.Background(), models.OrderRequest{
		UserID:        "user-1",
		ReservationID: "missing",
	})
	assert.ErrorIs(t, err, order.ErrReservationNotFound)
}

func TestConfirmOrderPayment(t *testing.T) {
	env := setupEnv(t)
	seedEvent(t, env, models.TicketTier{ID: "ga", Name: "GA", BasePrice: 50, Quantity: 100, Remaining: 100})
	ctx := context.Background()

	res := reserve(t, env, "ga", 2)
	created, err := env.orders.CreateOrder(ctx, models.OrderRequest{
		UserID:        "user-1",
		ReservationID: res.ReservationID,
	})
	require.NoError(t, err)
	require.Equal(t, models.OrderPendingPayment, created.Status)
	require.Empty(t, created.QRCodes)

	payment := models.PaymentData{PaymentID: "pay_123", Signature: "sig", Mode: "live"}
	confirmed, err := env.orders.ConfirmOrderPayment(ctx, created.ID, payment)
	require.NoError(t, err)

	assert.Equal(t, models.OrderConfirmed, confirmed.Status)
	assert.Equal(t, "pay_123", confirmed.PaymentID)
	assert.Len(t, confirmed.QRCodes, 2)
	assert.False(t, confirmed.ConfirmedAt.IsZero())
}

func TestConfirmOrderPaymentIdempotent(t *testing.T) {
	env := setupEnv(t)
	seedEvent(t, env, models.TicketTier{ID: "ga", Name: "GA", BasePrice: 50, Quantity: 100, Remaining: 100})
	ctx := context.Background()

	res := reserve(t, env, "ga", 2)
	created, err := env.orders.CreateOrder(ctx, models.OrderRequest{
		UserID:        "user-1",
		ReservationID: res.ReservationID,
	})
	require.NoError(t, err)

	payment := models.PaymentData{PaymentID: "pay_123", Signature: "sig", Mode: "live"}
	first, err := env.orders.ConfirmOrderPayment(ctx, created.ID, payment)
	require.NoError(t, err)
	second, err := env.orders.ConfirmOrderPayment(ctx, created.ID, payment)
	require.NoError(t, err)

	assert.Equal(t, first.Status, second.Status)
	assert.Equal(t, len(first.QRCodes), len(second.QRCodes), "duplicate webhook must not reissue credentials")
	for i := range first.QRCodes {
		assert.Equal(t, first.QRCodes[i].TicketID, second.QRCodes[i].TicketID)
	}

	env.publisher.AssertNumberOfCalls(t, "PublishOrderConfirmed", 1)
}

func TestConfirmOrderPaymentNotFound(t *testing.T) {
	env := setupEnv(t)

	_, err := env.orders.ConfirmOrderPayment(context.Background(), "ord_missing", models.PaymentData{})
	assert.Error(t, err)
}
