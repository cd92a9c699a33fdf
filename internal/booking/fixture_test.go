package booking_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"

	"ms-booking/internal/booking"
	bookingdb "ms-booking/internal/booking/db"
	"ms-booking/internal/checkin"
	"ms-booking/internal/config"
	"ms-booking/internal/database"
	"ms-booking/internal/kafka"
	"ms-booking/internal/logger"
	"ms-booking/internal/models"
	"ms-booking/internal/payment"
)

var (
	alice = models.Actor{UserID: "alice"}
	bob   = models.Actor{UserID: "bob"}
	staff = models.Actor{UserID: "staff", IsStaff: true}

	today = time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC)
)

var topics = config.TopicConfig{
	SlotReserved:     "booking.slot.reserved",
	BookingCancelled: "booking.cancelled",
	PaymentVerified:  "booking.payment.verified",
	PlayerAdded:      "booking.player.added",
	PlayerScanned:    "booking.player.scanned",
}

type fixture struct {
	bun    *bun.DB
	store  *bookingdb.DB
	ledger *booking.Ledger
	events *kafka.Recorder
	sport  *models.Sport
	// slots keyed by "date start"
	slots map[string]*models.Slot
}

func setup(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	bunDB, err := database.NewTestDB(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { bunDB.Close() })

	sport := &models.Sport{Name: "Nets", PricePerHour: decimal.NewFromInt(500), Duration: 60, MaxPlayers: 4, IsActive: true}
	_, err = bunDB.NewInsert().Model(sport).Exec(ctx)
	require.NoError(t, err)

	f := &fixture{bun: bunDB, store: &bookingdb.DB{Bun: bunDB}, sport: sport, slots: map[string]*models.Slot{}, events: &kafka.Recorder{}}
	for _, s := range []struct{ date, start, end string }{
		{"2025-06-01", "06:00", "07:00"},
		{"2025-06-02", "06:00", "07:00"},
		{"2025-06-02", "07:00", "08:00"},
		{"2025-06-03", "06:00", "07:00"},
	} {
		slot := &models.Slot{SportID: sport.ID, Date: s.date, StartTime: s.start, EndTime: s.end, Price: sport.PricePerHour, MaxPlayers: sport.MaxPlayers}
		_, err := bunDB.NewInsert().Model(slot).Exec(ctx)
		require.NoError(t, err)
		f.slots[s.date+" "+s.start] = slot
	}

	f.ledger = booking.NewLedger(f.store, checkin.NewTokenSigner("test-secret"),
		kafka.NewEmitter(f.events, topics, logger.Discard()), logger.Discard(), time.UTC)
	f.ledger.Now = func() time.Time { return today }
	return f
}

func (f *fixture) slot(key string) *models.Slot { return f.slots[key] }

func (f *fixture) reserve(t *testing.T, actor models.Actor, key string) *models.Booking {
	t.Helper()
	b, err := f.ledger.Reserve(context.Background(), actor, f.slot(key).ID)
	require.NoError(t, err)
	return b
}

func (f *fixture) markVerified(t *testing.T, bookingID int64) {
	t.Helper()
	ok, err := f.store.MarkVerified(context.Background(), bookingID, "pay_seed", today)
	require.NoError(t, err)
	require.True(t, ok)
}

func (f *fixture) reload(t *testing.T, bookingID int64) *models.Booking {
	t.Helper()
	b, err := f.store.GetBooking(context.Background(), bookingID)
	require.NoError(t, err)
	require.NotNil(t, b)
	return b
}

func (f *fixture) payments(gw payment.Gateway, timeout time.Duration) *booking.PaymentService {
	s := booking.NewPaymentService(f.store, gw, kafka.NewEmitter(f.events, topics, logger.Discard()), logger.Discard(), "INR", timeout)
	s.Now = func() time.Time { return today }
	return s
}

type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) Name() string      { return "mock" }
func (m *MockGateway) PublicKey() string { return "pk_mock" }

func (m *MockGateway) CreateOrder(ctx context.Context, req payment.OrderRequest) (*payment.Order, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.Order), args.Error(1)
}

func (m *MockGateway) VerifySignature(ctx context.Context, orderID, paymentID, signature string) (bool, error) {
	args := m.Called(ctx, orderID, paymentID, signature)
	return args.Bool(0), args.Error(1)
}
