package checkin_test

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"

	"ms-booking/internal/apperrors"
	"ms-booking/internal/checkin"
	checkindb "ms-booking/internal/checkin/db"
	"ms-booking/internal/config"
	"ms-booking/internal/database"
	"ms-booking/internal/kafka"
	"ms-booking/internal/lock"
	"ms-booking/internal/logger"
	"ms-booking/internal/models"
)

const slotDate = "2025-06-02"

var (
	owner = models.Actor{UserID: "user-1"}
	staff = models.Actor{UserID: "staff-1", IsStaff: true}
)

type fixture struct {
	bun     *bun.DB
	engine  *checkin.Engine
	events  *kafka.Recorder
	booking *models.Booking
	player  *models.Player
}

func setup(t *testing.T, verified bool) *fixture {
	t.Helper()
	ctx := context.Background()

	bunDB, err := database.NewTestDB(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { bunDB.Close() })

	sport := &models.Sport{Name: "Nets", PricePerHour: decimal.NewFromInt(500), Duration: 60, MaxPlayers: 4, IsActive: true}
	_, err = bunDB.NewInsert().Model(sport).Exec(ctx)
	require.NoError(t, err)

	slot := &models.Slot{SportID: sport.ID, Date: slotDate, StartTime: "06:00", EndTime: "07:00", Price: sport.PricePerHour, MaxPlayers: 4, IsBooked: true}
	_, err = bunDB.NewInsert().Model(slot).Exec(ctx)
	require.NoError(t, err)

	booking := &models.Booking{UserID: owner.UserID, SlotID: slot.ID, PaymentVerified: verified, AmountPaid: slot.Price}
	_, err = bunDB.NewInsert().Model(booking).Exec(ctx)
	require.NoError(t, err)

	player := &models.Player{BookingID: booking.ID, Name: "Asha", Email: "asha@example.com"}
	_, err = bunDB.NewInsert().Model(player).Exec(ctx)
	require.NoError(t, err)

	rec := &kafka.Recorder{}
	topics := config.TopicConfig{PlayerScanned: "booking.player.scanned"}
	engine := checkin.NewEngine(
		&checkindb.DB{Bun: bunDB},
		checkin.NewTokenSigner("test-secret"),
		lock.NewLocalLocker(5*time.Second),
		kafka.NewEmitter(rec, topics, logger.Discard()),
		logger.Discard(),
		time.UTC,
	)
	engine.Now = func() time.Time { return time.Date(2025, 6, 2, 9, 30, 0, 0, time.UTC) }

	return &fixture{bun: bunDB, engine: engine, events: rec, booking: booking, player: player}
}

func (f *fixture) token(t *testing.T) string {
	t.Helper()
	tok, err := f.engine.Signer.Issue(f.player.ID, slotDate)
	require.NoError(t, err)
	return tok
}

func (f *fixture) logCount(t *testing.T) int {
	t.Helper()
	n, err := f.bun.NewSelect().Model((*models.CheckInLog)(nil)).Where("player_id = ?", f.player.ID).Count(context.Background())
	require.NoError(t, err)
	return n
}

func TestTokenSigner_RoundTrip(t *testing.T) {
	signer := checkin.NewTokenSigner("secret")

	tok, err := signer.Issue(42, slotDate)
	require.NoError(t, err)

	id, date, err := signer.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
	assert.Equal(t, slotDate, date)
}

func TestTokenSigner_RejectsTampering(t *testing.T) {
	signer := checkin.NewTokenSigner("secret")
	tok, err := signer.Issue(42, slotDate)
	require.NoError(t, err)

	parts := strings.Split(tok, ".")
	require.Len(t, parts, 3)
	sig := []byte(parts[2])
	if sig[0] == 'A' {
		sig[0] = 'B'
	} else {
		sig[0] = 'A'
	}
	tampered := parts[0] + "." + parts[1] + "." + string(sig)

	_, _, err = signer.Verify(tampered)
	assert.ErrorIs(t, err, apperrors.ErrInvalidToken)

	_, _, err = checkin.NewTokenSigner("other").Verify(tok)
	assert.ErrorIs(t, err, apperrors.ErrInvalidToken)

	_, _, err = signer.Verify("not-a-token")
	assert.ErrorIs(t, err, apperrors.ErrInvalidToken)

	other, err := signer.IssueWithPurpose(42, slotDate, "password_reset")
	require.NoError(t, err)
	_, _, err = signer.Verify(other)
	assert.ErrorIs(t, err, apperrors.ErrInvalidToken, "tokens for other purposes never drive a scan")
}

func TestScan_TwoScanCycle(t *testing.T) {
	f := setup(t, true)
	ctx := context.Background()
	tok := f.token(t)

	res, err := f.engine.Scan(ctx, models.ScanRequest{Token: tok, Location: "gate-1"})
	require.NoError(t, err)
	assert.Equal(t, models.ActionIn, res.Action)
	assert.Equal(t, "Successfully checked in", res.Message)
	assert.Equal(t, 1, res.CheckInCount)
	assert.Equal(t, models.StatusCheckedIn, res.Status)
	require.NotNil(t, res.Player.LastCheckIn)

	res, err = f.engine.Scan(ctx, models.ScanRequest{Token: tok})
	require.NoError(t, err)
	assert.Equal(t, models.ActionOut, res.Action)
	assert.Equal(t, "Successfully checked out", res.Message)
	assert.Equal(t, models.StatusCheckedOut, res.Status)

	_, err = f.engine.Scan(ctx, models.ScanRequest{Token: tok})
	assert.ErrorIs(t, err, apperrors.ErrMaxCheckIns)
	assert.Equal(t, "maximum check-ins reached", err.Error())
	assert.Equal(t, 2, f.logCount(t), "rejected scan leaves no log entry")

	logs, err := f.engine.Logs(ctx, owner, f.player.ID)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, models.ActionIn, logs[0].Action)
	assert.Equal(t, "gate-1", logs[0].Location)
	assert.Equal(t, models.ActionOut, logs[1].Action)

	assert.Equal(t, []string{"booking.player.scanned", "booking.player.scanned"}, f.events.Topics())
}

func TestScan_DirectPayload(t *testing.T) {
	f := setup(t, true)

	res, err := f.engine.Scan(context.Background(), models.ScanRequest{
		Payload: &models.QRPayload{PlayerID: f.player.ID, Date: slotDate},
	})
	require.NoError(t, err)
	assert.Equal(t, models.ActionIn, res.Action)
}

func TestScan_PayloadTokenMustMatch(t *testing.T) {
	f := setup(t, true)

	_, err := f.engine.Scan(context.Background(), models.ScanRequest{
		Payload: &models.QRPayload{PlayerID: f.player.ID + 1, Date: slotDate, Token: f.token(t)},
	})
	assert.ErrorIs(t, err, apperrors.ErrInvalidToken)
	assert.Equal(t, 0, f.logCount(t))
}

func TestScan_WrongDate(t *testing.T) {
	f := setup(t, true)
	f.engine.Now = func() time.Time { return time.Date(2025, 6, 3, 9, 0, 0, 0, time.UTC) }

	_, err := f.engine.Scan(context.Background(), models.ScanRequest{Token: f.token(t)})
	assert.ErrorIs(t, err, apperrors.ErrWrongDate)
	assert.Equal(t, "this QR code is valid only for 2025-06-02", err.Error())

	tok, err := f.engine.Signer.Issue(f.player.ID, "2025-06-03")
	require.NoError(t, err)
	_, err = f.engine.Scan(context.Background(), models.ScanRequest{Token: tok})
	assert.ErrorIs(t, err, apperrors.ErrWrongDate, "token date must match the slot date")
	assert.Equal(t, 0, f.logCount(t))
}

func TestScan_RequiresVerifiedActiveBooking(t *testing.T) {
	f := setup(t, false)
	_, err := f.engine.Scan(context.Background(), models.ScanRequest{Token: f.token(t)})
	assert.ErrorIs(t, err, apperrors.ErrPaymentNotVerified)

	_, err = f.bun.NewUpdate().Model((*models.Booking)(nil)).
		Set("payment_verified = ?", true).Set("is_cancelled = ?", true).
		Where("id = ?", f.booking.ID).Exec(context.Background())
	require.NoError(t, err)

	_, err = f.engine.Scan(context.Background(), models.ScanRequest{Token: f.token(t)})
	assert.ErrorIs(t, err, apperrors.ErrBookingCancelled)
}

func TestScan_UnknownPlayerAndMissingInput(t *testing.T) {
	f := setup(t, true)

	_, err := f.engine.Scan(context.Background(), models.ScanRequest{Payload: &models.QRPayload{PlayerID: 999, Date: slotDate}})
	assert.ErrorIs(t, err, apperrors.ErrPlayerNotFound)
	assert.Equal(t, "invalid QR code", err.Error())

	_, err = f.engine.Scan(context.Background(), models.ScanRequest{})
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))
}

func TestScan_ConcurrentScansCountOnce(t *testing.T) {
	f := setup(t, true)
	tok := f.token(t)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
		rejected int
	)
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.engine.Scan(context.Background(), models.ScanRequest{Token: tok})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				accepted++
			} else {
				assert.ErrorIs(t, err, apperrors.ErrMaxCheckIns)
				rejected++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 2, accepted)
	assert.Equal(t, 4, rejected)
	assert.Equal(t, 2, f.logCount(t))
}

func TestEngine_QRCodeAndVisibility(t *testing.T) {
	f := setup(t, true)
	ctx := context.Background()

	data, err := f.engine.QRData(ctx, owner, f.player.ID)
	require.NoError(t, err)
	assert.Equal(t, slotDate, data.Date)
	assert.Equal(t, f.booking.ID, data.BookingID)

	id, date, err := f.engine.Signer.Verify(data.Token)
	require.NoError(t, err)
	assert.Equal(t, f.player.ID, id)
	assert.Equal(t, slotDate, date)

	png, err := f.engine.QRCode(ctx, staff, f.player.ID)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, []byte("\x89PNG")))

	_, err = f.engine.QRData(ctx, models.Actor{UserID: "someone-else"}, f.player.ID)
	assert.Equal(t, apperrors.KindNotFound, apperrors.KindOf(err))

	status, err := f.engine.Status(ctx, owner, f.player.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusNotCheckedIn, status)
}
