// Package analytics aggregates booking figures for the admin dashboard.
package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"

	"ms-booking/internal/apperrors"
	"ms-booking/internal/models"
	"ms-booking/internal/utils"
)

// Service handles analytics operations
type Service struct {
	db  *bun.DB
	Now func() time.Time
}

// NewService creates a new analytics service reporting days in loc
func NewService(db *bun.DB, loc *time.Location) *Service {
	return &Service{db: db, Now: utils.ClockIn(loc)}
}

// Dashboard returns the admin overview. Staff only.
func (s *Service) Dashboard(ctx context.Context, actor models.Actor) (*models.Dashboard, error) {
	if !actor.IsStaff {
		return nil, apperrors.ErrForbidden.WithMessage("admin access required")
	}

	now := s.Now()
	today := utils.DateOf(now)
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	dayEnd := dayStart.AddDate(0, 0, 1)

	var (
		d   models.Dashboard
		err error
	)

	if d.TotalBookings, err = s.db.NewSelect().Model((*models.Booking)(nil)).Count(ctx); err != nil {
		return nil, fmt.Errorf("count bookings: %w", err)
	}

	d.ActiveBookings, err = s.db.NewSelect().
		Model((*models.Booking)(nil)).
		Join("JOIN slots AS s ON s.id = booking.slot_id").
		Where("booking.is_cancelled = ?", false).
		Where("s.date >= ?", today).
		Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("count active bookings: %w", err)
	}

	d.TotalRevenue, err = s.revenue(ctx)
	if err != nil {
		return nil, err
	}

	if d.TotalPlayers, err = s.db.NewSelect().Model((*models.Player)(nil)).Count(ctx); err != nil {
		return nil, fmt.Errorf("count players: %w", err)
	}

	d.CheckedInToday, err = s.db.NewSelect().
		Model((*models.Player)(nil)).
		Where("last_check_in >= ?", dayStart).
		Where("last_check_in < ?", dayEnd).
		Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("count checked-in players: %w", err)
	}

	d.AvailableSlots, err = s.db.NewSelect().
		Model((*models.Slot)(nil)).
		Where("is_booked = ?", false).
		Where("date >= ?", today).
		Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("count available slots: %w", err)
	}

	return &d, nil
}

// revenue sums amounts of verified bookings.
func (s *Service) revenue(ctx context.Context) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := s.db.NewSelect().
		Model((*models.Booking)(nil)).
		ColumnExpr("COALESCE(SUM(amount_paid), 0)").
		Where("payment_verified = ?", true).
		Scan(ctx, &total)
	if err != nil {
		return decimal.Zero, fmt.Errorf("sum revenue: %w", err)
	}
	return total, nil
}
