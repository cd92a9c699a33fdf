package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"

	"ms-booking/internal/apperrors"
	"ms-booking/internal/models"
)

type DB struct {
	Bun *bun.DB
}

// ---------------- SLOTS ----------------

// GetSlot → slot with its sport
func (d *DB) GetSlot(ctx context.Context, id int64) (*models.Slot, error) {
	slot := new(models.Slot)
	err := d.Bun.NewSelect().Model(slot).Relation("Sport").Where("slot.id = ?", id).Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.ErrSlotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get slot %d: %w", id, err)
	}
	return slot, nil
}

// ListSlots → slots matching the filter ordered by date and start
func (d *DB) ListSlots(ctx context.Context, f models.SlotFilter) ([]models.Slot, error) {
	var slots []models.Slot
	q := d.Bun.NewSelect().Model(&slots).Relation("Sport").Order("slot.date ASC", "slot.start_time ASC")
	if f.SportID > 0 {
		q = q.Where("slot.sport_id = ?", f.SportID)
	}
	if f.Date != "" {
		q = q.Where("slot.date = ?", f.Date)
	}
	if f.FromDate != "" {
		q = q.Where("slot.date >= ?", f.FromDate)
	}
	if f.AvailableOnly {
		q = q.Where("slot.is_booked = ?", false)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("list slots: %w", err)
	}
	return slots, nil
}

// ReserveSlot → flip is_booked false→true and insert the booking in one tx.
// Returns false when another booking won the slot.
func (d *DB) ReserveSlot(ctx context.Context, booking *models.Booking) (bool, error) {
	won := false
	err := d.Bun.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewUpdate().
			Model((*models.Slot)(nil)).
			Set("is_booked = ?", true).
			Set("updated_at = ?", booking.CreatedAt).
			Where("id = ?", booking.SlotID).
			Where("is_booked = ?", false).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("mark slot booked: %w", err)
		}
		if n, _ := res.RowsAffected(); n != 1 {
			return nil
		}

		if _, err := tx.NewInsert().Model(booking).Exec(ctx); err != nil {
			return fmt.Errorf("insert booking: %w", err)
		}
		won = true
		return nil
	})
	return won, err
}

// ---------------- BOOKINGS ----------------

// GetBooking → booking with slot, sport and players, nil when missing
func (d *DB) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	booking := new(models.Booking)
	err := d.Bun.NewSelect().
		Model(booking).
		Relation("Slot").
		Relation("Slot.Sport").
		Relation("Players", func(q *bun.SelectQuery) *bun.SelectQuery { return q.Order("player.id ASC") }).
		Where("booking.id = ?", id).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get booking %d: %w", id, err)
	}
	return booking, nil
}

// FindByOrderID → booking carrying a provider order id, nil when missing
func (d *DB) FindByOrderID(ctx context.Context, orderID string) (*models.Booking, error) {
	booking := new(models.Booking)
	err := d.Bun.NewSelect().Model(booking).Where("order_id = ?", orderID).Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find booking by order: %w", err)
	}
	return booking, nil
}

// ListBookings → newest first; empty userID lists everyone's
func (d *DB) ListBookings(ctx context.Context, userID string) ([]models.Booking, error) {
	var bookings []models.Booking
	q := d.Bun.NewSelect().Model(&bookings).Relation("Slot").Relation("Slot.Sport").Order("booking.created_at DESC", "booking.id DESC")
	if userID != "" {
		q = q.Where("booking.user_id = ?", userID)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	return bookings, nil
}

// CancelBooking → mark cancelled and release the slot in one tx.
// Returns false when the booking was already cancelled.
func (d *DB) CancelBooking(ctx context.Context, booking *models.Booking, reason string, at time.Time) (bool, error) {
	applied := false
	err := d.Bun.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewUpdate().
			Model((*models.Booking)(nil)).
			Set("is_cancelled = ?", true).
			Set("cancellation_reason = ?", reason).
			Set("updated_at = ?", at).
			Where("id = ?", booking.ID).
			Where("is_cancelled = ?", false).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("cancel booking: %w", err)
		}
		if n, _ := res.RowsAffected(); n != 1 {
			return nil
		}

		if _, err := tx.NewUpdate().
			Model((*models.Slot)(nil)).
			Set("is_booked = ?", false).
			Set("updated_at = ?", at).
			Where("id = ?", booking.SlotID).
			Exec(ctx); err != nil {
			return fmt.Errorf("release slot: %w", err)
		}
		applied = true
		return nil
	})
	return applied, err
}

// SetOrderID → remember the provider order for an unverified booking
func (d *DB) SetOrderID(ctx context.Context, bookingID int64, orderID string, at time.Time) error {
	_, err := d.Bun.NewUpdate().
		Model((*models.Booking)(nil)).
		Set("order_id = ?", orderID).
		Set("updated_at = ?", at).
		Where("id = ?", bookingID).
		Where("payment_verified = ?", false).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("store order id: %w", err)
	}
	return nil
}

// MarkVerified → payment_verified false→true. Returns false when it was already set.
func (d *DB) MarkVerified(ctx context.Context, bookingID int64, paymentID string, at time.Time) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Booking)(nil)).
		Set("payment_verified = ?", true).
		Set("payment_id = ?", paymentID).
		Set("updated_at = ?", at).
		Where("id = ?", bookingID).
		Where("payment_verified = ?", false).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("mark payment verified: %w", err)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

// ---------------- PLAYERS ----------------

// ListPlayers → players of a booking in insertion order
func (d *DB) ListPlayers(ctx context.Context, bookingID int64) ([]*models.Player, error) {
	var players []*models.Player
	err := d.Bun.NewSelect().Model(&players).Where("booking_id = ?", bookingID).Order("id ASC").Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list players: %w", err)
	}
	return players, nil
}

// AddPlayers → capacity and duplicate-email checks plus insert, all in one tx.
// Touching the booking row first serializes concurrent adds on the same booking.
func (d *DB) AddPlayers(ctx context.Context, bookingID int64, capacity int, players []*models.Player) error {
	return d.Bun.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		now := time.Now()
		res, err := tx.NewUpdate().
			Model((*models.Booking)(nil)).
			Set("updated_at = ?", now).
			Where("id = ?", bookingID).
			Where("is_cancelled = ?", false).
			Where("payment_verified = ?", true).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("lock booking: %w", err)
		}
		if n, _ := res.RowsAffected(); n != 1 {
			return apperrors.ErrBookingCancelled
		}

		var existing []string
		if err := tx.NewSelect().
			Model((*models.Player)(nil)).
			Column("email").
			Where("booking_id = ?", bookingID).
			Scan(ctx, &existing); err != nil {
			return fmt.Errorf("load players: %w", err)
		}

		if len(existing)+len(players) > capacity {
			return apperrors.ErrCapacityExceeded.WithMessage(
				"booking allows %d players, %d already added, %d requested", capacity, len(existing), len(players))
		}

		taken := make(map[string]bool, len(existing))
		for _, e := range existing {
			taken[strings.ToLower(e)] = true
		}
		for _, p := range players {
			key := strings.ToLower(p.Email)
			if taken[key] {
				return apperrors.ErrDuplicateEmail.WithMessage("player email %s already added to this booking", p.Email)
			}
			taken[key] = true
			p.BookingID = bookingID
			p.CreatedAt = now
		}

		if _, err := tx.NewInsert().Model(&players).Exec(ctx); err != nil {
			return fmt.Errorf("insert players: %w", err)
		}
		return nil
	})
}
