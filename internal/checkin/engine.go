// Package checkin runs the two-scan check-in/check-out cycle for players on the
// date of their slot.
package checkin

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"ms-booking/internal/apperrors"
	"ms-booking/internal/kafka"
	"ms-booking/internal/lock"
	"ms-booking/internal/logger"
	"ms-booking/internal/models"
	"ms-booking/internal/utils"
)

var tracer = otel.Tracer("ms-booking/checkin")

type Store interface {
	GetPlayer(ctx context.Context, id int64) (*models.Player, error)
	RecordScan(ctx context.Context, playerID int64, expected int, action string, at time.Time, location string) (bool, error)
	ListLogs(ctx context.Context, playerID int64) ([]models.CheckInLog, error)
}

type Engine struct {
	DB     Store
	Signer *TokenSigner
	Locker lock.Locker
	Events *kafka.Emitter
	Logger *logger.Logger
	// Now reports wall time in the facility's timezone.
	Now func() time.Time
}

func NewEngine(store Store, signer *TokenSigner, locker lock.Locker, events *kafka.Emitter, log *logger.Logger, loc *time.Location) *Engine {
	return &Engine{
		DB:     store,
		Signer: signer,
		Locker: locker,
		Events: events,
		Logger: log,
		Now:    utils.ClockIn(loc),
	}
}

type scanEvent struct {
	PlayerID     int64     `json:"player_id"`
	BookingID    int64     `json:"booking_id"`
	Action       string    `json:"action"`
	CheckInCount int       `json:"check_in_count"`
	Location     string    `json:"location,omitempty"`
	ScannedAt    time.Time `json:"scanned_at"`
}

// Scan applies one accepted scan: IN on the first, OUT on the second.
func (e *Engine) Scan(ctx context.Context, req models.ScanRequest) (*models.ScanResult, error) {
	ctx, span := tracer.Start(ctx, "checkin.Scan")
	defer span.End()

	playerID, date, err := e.resolve(req)
	if err != nil {
		e.Logger.LogSecurity("SCAN_REJECTED", err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int64("player.id", playerID), attribute.String("scan.date", date))

	release, err := e.Locker.Acquire(ctx, "checkin:"+strconv.FormatInt(playerID, 10))
	if err != nil {
		if errors.Is(err, lock.ErrLockTimeout) {
			return nil, apperrors.ErrScanInProgress
		}
		return nil, fmt.Errorf("lock player %d: %w", playerID, err)
	}
	defer release()

	player, err := e.DB.GetPlayer(ctx, playerID)
	if err != nil {
		return nil, err
	}
	if player == nil || player.Booking == nil || player.Booking.Slot == nil {
		return nil, apperrors.ErrPlayerNotFound
	}

	booking := player.Booking
	if booking.IsCancelled {
		return nil, apperrors.ErrBookingCancelled
	}
	if !booking.PaymentVerified {
		return nil, apperrors.ErrPaymentNotVerified
	}

	now := e.Now()
	slotDate := booking.Slot.Date
	if slotDate != date || date != utils.DateOf(now) {
		return nil, apperrors.ErrWrongDate.WithMessage("this QR code is valid only for %s", slotDate)
	}

	count := player.CheckInCount
	if count >= models.MaxDailyScans {
		return nil, apperrors.ErrMaxCheckIns
	}

	action, message := models.ActionIn, "Successfully checked in"
	if count == 1 {
		action, message = models.ActionOut, "Successfully checked out"
	}

	applied, err := e.DB.RecordScan(ctx, player.ID, count, action, now, req.Location)
	if err != nil {
		return nil, err
	}
	if !applied {
		return nil, apperrors.ErrScanInProgress
	}

	player.CheckInCount = count + 1
	if action == models.ActionIn {
		player.LastCheckIn = &now
	} else {
		player.LastCheckOut = &now
	}

	e.Logger.LogCheckIn(action, player.ID, fmt.Sprintf("booking %d, count %d", booking.ID, player.CheckInCount))
	e.Events.PlayerScanned(ctx, strconv.FormatInt(player.ID, 10), scanEvent{
		PlayerID:     player.ID,
		BookingID:    booking.ID,
		Action:       action,
		CheckInCount: player.CheckInCount,
		Location:     req.Location,
		ScannedAt:    now,
	})

	return &models.ScanResult{
		Action:       action,
		Message:      message,
		Player:       player,
		CheckInCount: player.CheckInCount,
		Status:       player.Status(),
	}, nil
}

// resolve extracts player id and date. A token is verified before anything else is trusted.
func (e *Engine) resolve(req models.ScanRequest) (int64, string, error) {
	switch {
	case req.Token != "":
		return e.Signer.Verify(req.Token)
	case req.Payload != nil:
		p := req.Payload
		if p.Token != "" {
			id, date, err := e.Signer.Verify(p.Token)
			if err != nil {
				return 0, "", err
			}
			if id != p.PlayerID || date != p.Date {
				return 0, "", apperrors.ErrInvalidToken
			}
			return id, date, nil
		}
		if p.PlayerID <= 0 || p.Date == "" {
			return 0, "", apperrors.Validation(apperrors.CodeInvalidInput, "scan payload requires player_id and date")
		}
		return p.PlayerID, p.Date, nil
	default:
		return 0, "", apperrors.Validation(apperrors.CodeInvalidInput, "token or payload is required")
	}
}

// Player loads a player the actor may see. Other users' players read as not found.
func (e *Engine) Player(ctx context.Context, actor models.Actor, playerID int64) (*models.Player, error) {
	player, err := e.DB.GetPlayer(ctx, playerID)
	if err != nil {
		return nil, err
	}
	if player == nil || player.Booking == nil || !actor.CanManage(player.Booking.UserID) {
		return nil, apperrors.ErrPlayerNotFound.WithMessage("player not found")
	}
	return player, nil
}

func (e *Engine) Status(ctx context.Context, actor models.Actor, playerID int64) (string, error) {
	player, err := e.Player(ctx, actor, playerID)
	if err != nil {
		return "", err
	}
	return player.Status(), nil
}

func (e *Engine) Logs(ctx context.Context, actor models.Actor, playerID int64) ([]models.CheckInLog, error) {
	if _, err := e.Player(ctx, actor, playerID); err != nil {
		return nil, err
	}
	return e.DB.ListLogs(ctx, playerID)
}

// QRData returns the payload encoded in the player's QR code.
func (e *Engine) QRData(ctx context.Context, actor models.Actor, playerID int64) (*models.QRPayload, error) {
	player, err := e.Player(ctx, actor, playerID)
	if err != nil {
		return nil, err
	}
	return e.Signer.Payload(player)
}

// QRCode returns the player's QR code as a PNG.
func (e *Engine) QRCode(ctx context.Context, actor models.Actor, playerID int64) ([]byte, error) {
	player, err := e.Player(ctx, actor, playerID)
	if err != nil {
		return nil, err
	}
	return e.Signer.QRCode(player)
}
