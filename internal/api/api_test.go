package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-booking/internal/analytics"
	"ms-booking/internal/api"
	"ms-booking/internal/auth"
	"ms-booking/internal/booking"
	bookingdb "ms-booking/internal/booking/db"
	"ms-booking/internal/checkin"
	checkindb "ms-booking/internal/checkin/db"
	"ms-booking/internal/config"
	"ms-booking/internal/database"
	"ms-booking/internal/kafka"
	"ms-booking/internal/lock"
	"ms-booking/internal/logger"
	"ms-booking/internal/models"
	"ms-booking/internal/payment"
	"ms-booking/internal/slots"
	slotsdb "ms-booking/internal/slots/db"
)

const (
	jwtSecret = "api-test-secret"
	keySecret = "rzp_secret"
)

var now = time.Date(2025, 6, 3, 5, 0, 0, 0, time.UTC)

type env struct {
	server *httptest.Server
	slot   *models.Slot
	alice  string
	staff  string
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Code    string          `json:"code"`
	Data    json.RawMessage `json:"data"`
}

func setup(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()

	bunDB, err := database.NewTestDB(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { bunDB.Close() })

	sport := &models.Sport{Name: "Nets", PricePerHour: decimal.NewFromInt(500), Duration: 60, MaxPlayers: 2, IsActive: true}
	_, err = bunDB.NewInsert().Model(sport).Exec(ctx)
	require.NoError(t, err)
	slot := &models.Slot{SportID: sport.ID, Date: "2025-06-03", StartTime: "18:00", EndTime: "19:00", Price: sport.PricePerHour, MaxPlayers: 2}
	_, err = bunDB.NewInsert().Model(slot).Exec(ctx)
	require.NoError(t, err)

	orders := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"order_api","amount":50000,"currency":"INR","status":"created"}`)
	}))
	t.Cleanup(orders.Close)

	log := logger.Discard()
	events := kafka.NewEmitter(kafka.Noop{}, config.TopicConfig{}, log)
	signer := checkin.NewTokenSigner("qr-secret")
	locker := lock.NewLocalLocker(time.Second)
	clock := func() time.Time { return now }

	ledger := booking.NewLedger(&bookingdb.DB{Bun: bunDB}, signer, events, log, time.UTC)
	ledger.Now = clock
	payments := booking.NewPaymentService(&bookingdb.DB{Bun: bunDB},
		payment.NewRazorpayGateway("rzp_key", keySecret, orders.URL, orders.Client()), events, log, "INR", time.Second)
	payments.Now = clock
	engine := checkin.NewEngine(&checkindb.DB{Bun: bunDB}, signer, locker, events, log, time.UTC)
	engine.Now = clock
	gen := slots.NewGenerator(&slotsdb.DB{Bun: bunDB}, locker, log, 0)
	gen.Now = clock
	dash := analytics.NewService(bunDB, time.UTC)
	dash.Now = clock

	h := &api.Handler{
		Catalog:   slots.NewCatalog(&slotsdb.DB{Bun: bunDB}, log),
		Generator: gen,
		Ledger:    ledger,
		Payments:  payments,
		CheckIn:   engine,
		Analytics: dash,
		DB:        bunDB,
		Logger:    log,
	}
	verifier := auth.NewHS256Verifier(jwtSecret)
	srv := httptest.NewServer(api.NewRouter(h, verifier))
	t.Cleanup(srv.Close)

	alice, err := verifier.Issue(models.Actor{UserID: "alice"}, time.Hour)
	require.NoError(t, err)
	staffTok, err := verifier.Issue(models.Actor{UserID: "desk", IsStaff: true}, time.Hour)
	require.NoError(t, err)

	return &env{server: srv, slot: slot, alice: alice, staff: staffTok}
}

func (e *env) do(t *testing.T, method, path, token string, body any) (*http.Response, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, e.server.URL+path, &buf)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := e.server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	if resp.Header.Get("Content-Type") == "application/json" {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	}
	return resp, env
}

func TestHealthAndPublicRoutes(t *testing.T) {
	e := setup(t)

	resp, _ := e.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	resp, body := e.do(t, http.MethodGet, "/api/sports", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var sports []models.Sport
	require.NoError(t, json.Unmarshal(body.Data, &sports))
	assert.Len(t, sports, 1)

	resp, body = e.do(t, http.MethodGet, fmt.Sprintf("/api/slots?sport=%d&date=2025-06-03&available=true", e.slot.SportID), "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var list []models.Slot
	require.NoError(t, json.Unmarshal(body.Data, &list))
	assert.Len(t, list, 1)

	resp, body = e.do(t, http.MethodGet, "/api/slots?date=03-06-2025", "", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.False(t, body.Success)
}

func TestAuthBoundaries(t *testing.T) {
	e := setup(t)

	resp, body := e.do(t, http.MethodGet, "/api/bookings", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "unauthenticated", body.Code)

	resp, _ = e.do(t, http.MethodGet, "/api/admin/dashboard", e.alice, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, _ = e.do(t, http.MethodPost, "/api/players/scan", e.alice, map[string]string{"token": "x"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, _ = e.do(t, http.MethodGet, "/api/admin/dashboard", e.staff, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestBookingToCheckInFlow(t *testing.T) {
	e := setup(t)

	resp, body := e.do(t, http.MethodPost, "/api/bookings", e.alice, map[string]int64{"slot_id": e.slot.ID})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var b models.Booking
	require.NoError(t, json.Unmarshal(body.Data, &b))

	resp, body = e.do(t, http.MethodPost, "/api/bookings", e.staff, map[string]int64{"slot_id": e.slot.ID})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "slot_already_booked", body.Code)

	// players cannot be added before payment
	players := map[string]any{"players": []models.PlayerInput{{Name: "Asha", Email: "asha@example.com"}}}
	resp, body = e.do(t, http.MethodPost, fmt.Sprintf("/api/bookings/%d/players", b.ID), e.alice, players)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "payment_not_verified", body.Code)

	resp, body = e.do(t, http.MethodPost, "/api/payments/create-order", e.alice, map[string]int64{"booking_id": b.ID})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var order models.OrderResult
	require.NoError(t, json.Unmarshal(body.Data, &order))
	assert.Equal(t, "order_api", order.OrderID)

	verify := models.VerifyRequest{BookingID: b.ID, OrderID: order.OrderID, PaymentID: "pay_1", Signature: "bad"}
	resp, body = e.do(t, http.MethodPost, "/api/payments/verify", e.alice, verify)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "verification_failed", body.Code)

	verify.Signature = payment.Sign(keySecret, order.OrderID, "pay_1")
	resp, _ = e.do(t, http.MethodPost, "/api/payments/verify", e.alice, verify)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = e.do(t, http.MethodPost, fmt.Sprintf("/api/bookings/%d/players", b.ID), e.alice, players)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var tickets []models.PlayerTicket
	require.NoError(t, json.Unmarshal(body.Data, &tickets))
	require.Len(t, tickets, 1)
	playerID := tickets[0].Player.ID

	resp, _ = e.do(t, http.MethodGet, fmt.Sprintf("/api/players/%d/qr", playerID), e.alice, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))

	resp, _ = e.do(t, http.MethodGet, fmt.Sprintf("/api/bookings/%d/passes.pdf", b.ID), e.alice, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/pdf", resp.Header.Get("Content-Type"))

	resp, _ = e.do(t, http.MethodGet, fmt.Sprintf("/api/players/%d/qr-data", playerID), e.staff, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	scan := models.ScanRequest{Token: tickets[0].Token}
	resp, body = e.do(t, http.MethodPost, "/api/players/scan", e.staff, scan)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Successfully checked in", body.Message)

	resp, body = e.do(t, http.MethodPost, "/api/players/scan", e.staff, scan)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Successfully checked out", body.Message)

	resp, body = e.do(t, http.MethodPost, "/api/players/scan", e.staff, scan)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "max_checkins_reached", body.Code)
}

func TestCancelAndNotFound(t *testing.T) {
	e := setup(t)

	resp, body := e.do(t, http.MethodPost, "/api/bookings", e.alice, map[string]int64{"slot_id": e.slot.ID})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var b models.Booking
	require.NoError(t, json.Unmarshal(body.Data, &b))

	resp, _ = e.do(t, http.MethodGet, fmt.Sprintf("/api/bookings/%d", b.ID), e.staff, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = e.do(t, http.MethodGet, "/api/bookings/abc", e.alice, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = e.do(t, http.MethodGet, "/api/bookings/9999", e.alice, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body = e.do(t, http.MethodPost, fmt.Sprintf("/api/bookings/%d/cancel", b.ID), e.alice, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body.Data, &b))
	assert.True(t, b.IsCancelled)
	assert.Equal(t, booking.DefaultCancelReason, b.CancellationReason)

	resp, body = e.do(t, http.MethodPost, fmt.Sprintf("/api/bookings/%d/cancel", b.ID), e.alice, map[string]string{"reason": "again"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "already_cancelled", body.Code)

	resp, _ = e.do(t, http.MethodPost, "/api/bookings", e.staff, map[string]int64{"slot_id": e.slot.ID})
	assert.Equal(t, http.StatusCreated, resp.StatusCode, "a cancelled slot can be booked again")
}

func TestAdminSlotManagement(t *testing.T) {
	e := setup(t)

	resp, body := e.do(t, http.MethodPost, "/api/admin/sports", e.staff, models.SportRequest{Name: "Turf", PricePerHour: decimal.NewFromInt(900)})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var sport models.Sport
	require.NoError(t, json.Unmarshal(body.Data, &sport))

	resp, _ = e.do(t, http.MethodPut, fmt.Sprintf("/api/admin/sports/%d/configuration", sport.ID), e.staff,
		models.ConfigurationRequest{OpeningTime: "06:00", ClosingTime: "09:00", SlotDuration: 60})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = e.do(t, http.MethodPost, "/api/admin/slots/generate", e.staff, models.GenerateRequest{
		SportID: sport.ID, StartDate: "2025-06-04", EndDate: "2025-06-05", UseConfiguration: true,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var res models.GenerateResult
	require.NoError(t, json.Unmarshal(body.Data, &res))
	assert.Equal(t, 6, res.CreatedCount)

	resp, body = e.do(t, http.MethodDelete, fmt.Sprintf("/api/admin/slots?sport=%d&start=2025-06-04&end=2025-06-04", sport.ID), e.staff, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var cleared map[string]int
	require.NoError(t, json.Unmarshal(body.Data, &cleared))
	assert.Equal(t, 3, cleared["deleted_count"])

	resp, _ = e.do(t, http.MethodDelete, "/api/admin/slots?start=2025-06-04&end=2025-06-04", e.staff, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
