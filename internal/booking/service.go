// Package booking owns the reservation ledger: reserving slots, cancelling,
// registering players and the payment handshake that confirms a booking.
package booking

import (
	"context"
	"fmt"
	"net/mail"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"ms-booking/internal/apperrors"
	"ms-booking/internal/checkin"
	"ms-booking/internal/kafka"
	"ms-booking/internal/logger"
	"ms-booking/internal/models"
	"ms-booking/internal/passes"
	"ms-booking/internal/utils"
)

var tracer = otel.Tracer("ms-booking/booking")

type Store interface {
	GetSlot(ctx context.Context, id int64) (*models.Slot, error)
	ListSlots(ctx context.Context, f models.SlotFilter) ([]models.Slot, error)
	ReserveSlot(ctx context.Context, booking *models.Booking) (bool, error)
	GetBooking(ctx context.Context, id int64) (*models.Booking, error)
	FindByOrderID(ctx context.Context, orderID string) (*models.Booking, error)
	ListBookings(ctx context.Context, userID string) ([]models.Booking, error)
	CancelBooking(ctx context.Context, booking *models.Booking, reason string, at time.Time) (bool, error)
	SetOrderID(ctx context.Context, bookingID int64, orderID string, at time.Time) error
	MarkVerified(ctx context.Context, bookingID int64, paymentID string, at time.Time) (bool, error)
	ListPlayers(ctx context.Context, bookingID int64) ([]*models.Player, error)
	AddPlayers(ctx context.Context, bookingID int64, capacity int, players []*models.Player) error
}

const DefaultCancelReason = "Cancelled by user"

type Ledger struct {
	DB     Store
	Signer *checkin.TokenSigner
	Events *kafka.Emitter
	Logger *logger.Logger
	Passes *passes.Renderer
	// Now reports wall time in the facility's timezone.
	Now func() time.Time
}

func NewLedger(store Store, signer *checkin.TokenSigner, events *kafka.Emitter, log *logger.Logger, loc *time.Location) *Ledger {
	return &Ledger{
		DB:     store,
		Signer: signer,
		Events: events,
		Logger: log,
		Passes: passes.NewRenderer(""),
		Now:    utils.ClockIn(loc),
	}
}

type bookingEvent struct {
	BookingID  int64           `json:"booking_id"`
	SlotID     int64           `json:"slot_id"`
	UserID     string          `json:"user_id"`
	AmountPaid decimal.Decimal `json:"amount_paid"`
	Reason     string          `json:"reason,omitempty"`
}

func eventOf(b *models.Booking) bookingEvent {
	return bookingEvent{
		BookingID:  b.ID,
		SlotID:     b.SlotID,
		UserID:     b.UserID,
		AmountPaid: b.AmountPaid,
		Reason:     b.CancellationReason,
	}
}

func key(id int64) string { return strconv.FormatInt(id, 10) }

// ---------------- RESERVATION ----------------

// Reserve books a slot for the actor. Of concurrent callers on one slot exactly one succeeds.
func (l *Ledger) Reserve(ctx context.Context, actor models.Actor, slotID int64) (*models.Booking, error) {
	ctx, span := tracer.Start(ctx, "booking.Reserve")
	defer span.End()
	span.SetAttributes(attribute.Int64("slot.id", slotID), attribute.String("user.id", actor.UserID))

	if actor.UserID == "" {
		return nil, apperrors.ErrForbidden.WithMessage("authentication required")
	}

	slot, err := l.DB.GetSlot(ctx, slotID)
	if err != nil {
		return nil, err
	}

	now := l.Now()
	if slot.Date < utils.DateOf(now) {
		return nil, apperrors.ErrSlotInPast
	}
	if slot.IsBooked {
		return nil, apperrors.ErrSlotAlreadyBooked
	}

	booking := &models.Booking{
		UserID:     actor.UserID,
		SlotID:     slot.ID,
		AmountPaid: slot.Price,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	won, err := l.DB.ReserveSlot(ctx, booking)
	if err != nil {
		return nil, err
	}
	if !won {
		l.Logger.LogBooking("RESERVE_LOST", 0, fmt.Sprintf("slot %d taken by a concurrent request", slot.ID))
		return nil, apperrors.ErrSlotAlreadyBooked
	}

	slot.IsBooked = true
	booking.Slot = slot

	l.Logger.LogBooking("RESERVED", booking.ID, fmt.Sprintf("slot %d for user %s", slot.ID, actor.UserID))
	l.Events.SlotReserved(ctx, key(booking.ID), eventOf(booking))
	return booking, nil
}

// Cancel marks the booking cancelled and frees its slot.
func (l *Ledger) Cancel(ctx context.Context, actor models.Actor, bookingID int64, reason string) (*models.Booking, error) {
	ctx, span := tracer.Start(ctx, "booking.Cancel")
	defer span.End()
	span.SetAttributes(attribute.Int64("booking.id", bookingID))

	booking, err := l.DB.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking == nil {
		return nil, apperrors.ErrBookingNotFound
	}
	if !actor.CanManage(booking.UserID) {
		return nil, apperrors.ErrForbidden.WithMessage("you can only cancel your own bookings")
	}
	if booking.IsCancelled {
		return nil, apperrors.ErrAlreadyCancelled
	}

	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = DefaultCancelReason
	}

	now := l.Now()
	applied, err := l.DB.CancelBooking(ctx, booking, reason, now)
	if err != nil {
		return nil, err
	}
	if !applied {
		return nil, apperrors.ErrAlreadyCancelled
	}

	booking.IsCancelled = true
	booking.CancellationReason = reason
	booking.UpdatedAt = now
	if booking.Slot != nil {
		booking.Slot.IsBooked = false
	}

	l.Logger.LogBooking("CANCELLED", booking.ID, reason)
	l.Events.BookingCancelled(ctx, key(booking.ID), eventOf(booking))
	return booking, nil
}

// ---------------- PLAYERS ----------------

// AddPlayers registers a batch of players on a verified booking. The batch is
// accepted or rejected as a whole.
func (l *Ledger) AddPlayers(ctx context.Context, actor models.Actor, bookingID int64, inputs []models.PlayerInput) ([]models.PlayerTicket, error) {
	ctx, span := tracer.Start(ctx, "booking.AddPlayers")
	defer span.End()
	span.SetAttributes(attribute.Int64("booking.id", bookingID), attribute.Int("players", len(inputs)))

	if len(inputs) == 0 {
		return nil, apperrors.Validation(apperrors.CodeInvalidInput, "at least one player is required")
	}

	booking, err := l.DB.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking == nil {
		return nil, apperrors.ErrBookingNotFound
	}
	if !actor.CanManage(booking.UserID) {
		return nil, apperrors.ErrForbidden.WithMessage("you can only add players to your own bookings")
	}
	if booking.IsCancelled {
		return nil, apperrors.ErrBookingCancelled
	}
	if !booking.PaymentVerified {
		return nil, apperrors.ErrPaymentNotVerified
	}

	players := make([]*models.Player, 0, len(inputs))
	for i, in := range inputs {
		p, err := newPlayer(in)
		if err != nil {
			return nil, err.WithMessage("player %d: %s", i+1, err.Message)
		}
		players = append(players, p)
	}

	if err := l.DB.AddPlayers(ctx, booking.ID, booking.Capacity(), players); err != nil {
		return nil, err
	}

	tickets := make([]models.PlayerTicket, 0, len(players))
	for _, p := range players {
		p.Booking = booking
		token, err := l.Signer.Issue(p.ID, booking.Slot.Date)
		if err != nil {
			return nil, fmt.Errorf("issue check-in token for player %d: %w", p.ID, err)
		}
		tickets = append(tickets, models.PlayerTicket{Player: p, Token: token, Status: p.Status()})
		l.Events.PlayerAdded(ctx, key(booking.ID), map[string]any{
			"booking_id": booking.ID,
			"player_id":  p.ID,
			"email":      p.Email,
		})
	}

	l.Logger.LogBooking("PLAYERS_ADDED", booking.ID, fmt.Sprintf("%d players", len(players)))
	return tickets, nil
}

func newPlayer(in models.PlayerInput) (*models.Player, *apperrors.Error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, apperrors.Validation(apperrors.CodeInvalidInput, "name is required")
	}
	addr, err := mail.ParseAddress(strings.TrimSpace(in.Email))
	if err != nil {
		return nil, apperrors.Validation(apperrors.CodeInvalidInput, "a valid email is required")
	}
	return &models.Player{
		Name:   name,
		Email:  addr.Address,
		Phone:  strings.TrimSpace(in.Phone),
		UserID: strings.TrimSpace(in.UserID),
	}, nil
}

// ListPlayers returns the booking's players with their check-in tokens.
func (l *Ledger) ListPlayers(ctx context.Context, actor models.Actor, bookingID int64) ([]models.PlayerTicket, error) {
	booking, err := l.GetBooking(ctx, actor, bookingID)
	if err != nil {
		return nil, err
	}

	tickets := make([]models.PlayerTicket, 0, len(booking.Players))
	for _, p := range booking.Players {
		token, err := l.Signer.Issue(p.ID, booking.Slot.Date)
		if err != nil {
			return nil, fmt.Errorf("issue check-in token for player %d: %w", p.ID, err)
		}
		tickets = append(tickets, models.PlayerTicket{Player: p, Token: token, Status: p.Status()})
	}
	return tickets, nil
}

// PassesPDF renders a printable pass with a check-in QR code for every player on the booking.
func (l *Ledger) PassesPDF(ctx context.Context, actor models.Actor, bookingID int64) ([]byte, error) {
	booking, err := l.GetBooking(ctx, actor, bookingID)
	if err != nil {
		return nil, err
	}
	if booking.IsCancelled {
		return nil, apperrors.ErrBookingCancelled
	}
	if len(booking.Players) == 0 {
		return nil, apperrors.Validation(apperrors.CodeInvalidInput, "booking has no players yet")
	}

	list := make([]passes.Pass, 0, len(booking.Players))
	for _, p := range booking.Players {
		p.Booking = booking
		png, err := l.Signer.QRCode(p)
		if err != nil {
			return nil, fmt.Errorf("qr code for player %d: %w", p.ID, err)
		}
		list = append(list, passes.Pass{Player: p, QRCode: png})
	}
	return l.Passes.Render(booking, list)
}

// ---------------- LISTINGS ----------------

// GetBooking returns a booking the actor owns, or any booking for staff.
func (l *Ledger) GetBooking(ctx context.Context, actor models.Actor, bookingID int64) (*models.Booking, error) {
	booking, err := l.DB.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking == nil || !actor.CanManage(booking.UserID) {
		return nil, apperrors.ErrBookingNotFound
	}
	return booking, nil
}

func (l *Ledger) ListBookings(ctx context.Context, actor models.Actor) ([]models.Booking, error) {
	if actor.IsStaff {
		return l.DB.ListBookings(ctx, "")
	}
	if actor.UserID == "" {
		return nil, apperrors.ErrForbidden.WithMessage("authentication required")
	}
	return l.DB.ListBookings(ctx, actor.UserID)
}

func (l *Ledger) ListSlots(ctx context.Context, f models.SlotFilter) ([]models.Slot, error) {
	if f.Date != "" {
		if _, err := utils.ParseDate(f.Date); err != nil {
			return nil, apperrors.Validation(apperrors.CodeInvalidDate, "date must be YYYY-MM-DD")
		}
	}
	return l.DB.ListSlots(ctx, f)
}

// AvailableSlots lists unbooked slots of a sport from today on.
func (l *Ledger) AvailableSlots(ctx context.Context, sportID int64) ([]models.Slot, error) {
	return l.DB.ListSlots(ctx, models.SlotFilter{
		SportID:       sportID,
		AvailableOnly: true,
		FromDate:      utils.DateOf(l.Now()),
	})
}
