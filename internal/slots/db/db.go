package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"ms-booking/internal/apperrors"
	"ms-booking/internal/models"
)

type DB struct {
	Bun *bun.DB
}

// ---------------- SPORTS ----------------

// GetSport → one sport by id
func (d *DB) GetSport(ctx context.Context, id int64) (*models.Sport, error) {
	sport := new(models.Sport)
	err := d.Bun.NewSelect().Model(sport).Where("id = ?", id).Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.ErrSportNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get sport %d: %w", id, err)
	}
	return sport, nil
}

// ListSports → all sports ordered by name
func (d *DB) ListSports(ctx context.Context, activeOnly bool) ([]models.Sport, error) {
	var sports []models.Sport
	q := d.Bun.NewSelect().Model(&sports).Order("name ASC")
	if activeOnly {
		q = q.Where("is_active = ?", true)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("list sports: %w", err)
	}
	return sports, nil
}

// ListSportsWithConfiguration → active sports that carry an operating-hours configuration
func (d *DB) ListSportsWithConfiguration(ctx context.Context) ([]models.Sport, error) {
	var sports []models.Sport
	err := d.Bun.NewSelect().
		Model(&sports).
		Where("sport.is_active = ?", true).
		Where("EXISTS (SELECT 1 FROM slot_configurations AS c WHERE c.sport_id = sport.id)").
		Order("sport.id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list configured sports: %w", err)
	}
	return sports, nil
}

// CreateSport → insert, rejecting duplicate names
func (d *DB) CreateSport(ctx context.Context, sport *models.Sport) error {
	exists, err := d.Bun.NewSelect().Model((*models.Sport)(nil)).Where("name = ?", sport.Name).Exists(ctx)
	if err != nil {
		return fmt.Errorf("check sport name: %w", err)
	}
	if exists {
		return apperrors.ErrDuplicateSport
	}

	now := time.Now()
	sport.CreatedAt, sport.UpdatedAt = now, now
	if _, err := d.Bun.NewInsert().Model(sport).Exec(ctx); err != nil {
		return fmt.Errorf("create sport: %w", err)
	}
	return nil
}

// ---------------- CONFIGURATION ----------------

// GetConfiguration → nil, nil when the sport has none
func (d *DB) GetConfiguration(ctx context.Context, sportID int64) (*models.SlotConfiguration, error) {
	cfg := new(models.SlotConfiguration)
	err := d.Bun.NewSelect().Model(cfg).Where("sport_id = ?", sportID).Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get configuration for sport %d: %w", sportID, err)
	}
	return cfg, nil
}

// UpsertConfiguration → one configuration row per sport
func (d *DB) UpsertConfiguration(ctx context.Context, cfg *models.SlotConfiguration) error {
	now := time.Now()
	cfg.CreatedAt, cfg.UpdatedAt = now, now
	_, err := d.Bun.NewInsert().
		Model(cfg).
		On("CONFLICT (sport_id) DO UPDATE").
		Set("opening_time = EXCLUDED.opening_time").
		Set("closing_time = EXCLUDED.closing_time").
		Set("weekend_opening_time = EXCLUDED.weekend_opening_time").
		Set("weekend_closing_time = EXCLUDED.weekend_closing_time").
		Set("slot_duration = EXCLUDED.slot_duration").
		Set("buffer_time = EXCLUDED.buffer_time").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("upsert configuration for sport %d: %w", cfg.SportID, err)
	}
	return nil
}

func (d *DB) AddBreak(ctx context.Context, b *models.BreakTime) error {
	b.CreatedAt = time.Now()
	if _, err := d.Bun.NewInsert().Model(b).Exec(ctx); err != nil {
		return fmt.Errorf("add break for sport %d: %w", b.SportID, err)
	}
	return nil
}

func (d *DB) ListBreaks(ctx context.Context, sportID int64) ([]models.BreakTime, error) {
	var breaks []models.BreakTime
	err := d.Bun.NewSelect().Model(&breaks).Where("sport_id = ?", sportID).Order("start_time ASC").Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list breaks for sport %d: %w", sportID, err)
	}
	return breaks, nil
}

// AddBlackout → insert, or re-enable a soft-disabled row for the same date.
// Both steps are guarded by the (sport_id, date) unique key, so concurrent adds
// for one date leave exactly one winner and the rest get ErrDuplicateBlackout.
func (d *DB) AddBlackout(ctx context.Context, b *models.BlackoutDate) error {
	b.IsActive = true
	b.CreatedAt = time.Now()
	res, err := d.Bun.NewInsert().
		Model(b).
		On("CONFLICT (sport_id, date) DO NOTHING").
		Returning("NULL").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("add blackout: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return d.loadBlackout(ctx, b)
	}

	res, err = d.Bun.NewUpdate().Model((*models.BlackoutDate)(nil)).
		Set("is_active = ?", true).
		Set("reason = ?", b.Reason).
		Where("sport_id = ?", b.SportID).
		Where("date = ?", b.Date).
		Where("is_active = ?", false).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("re-enable blackout %s: %w", b.Date, err)
	}
	if n, _ := res.RowsAffected(); n != 1 {
		return apperrors.ErrDuplicateBlackout
	}
	return d.loadBlackout(ctx, b)
}

func (d *DB) loadBlackout(ctx context.Context, b *models.BlackoutDate) error {
	err := d.Bun.NewSelect().Model(b).
		Where("sport_id = ?", b.SportID).
		Where("date = ?", b.Date).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return fmt.Errorf("load blackout %s: %w", b.Date, err)
	}
	return nil
}

// DisableBlackout → soft disable, the row is kept
func (d *DB) DisableBlackout(ctx context.Context, id int64) error {
	res, err := d.Bun.NewUpdate().Model((*models.BlackoutDate)(nil)).
		Set("is_active = ?", false).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("disable blackout %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.ErrBlackoutNotFound
	}
	return nil
}

func (d *DB) ListBlackouts(ctx context.Context, sportID int64) ([]models.BlackoutDate, error) {
	var out []models.BlackoutDate
	err := d.Bun.NewSelect().Model(&out).Where("sport_id = ?", sportID).Order("date ASC").Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list blackouts for sport %d: %w", sportID, err)
	}
	return out, nil
}

// ActiveBlackoutDates → set of active blackout dates in [from, to]
func (d *DB) ActiveBlackoutDates(ctx context.Context, sportID int64, from, to string) (map[string]bool, error) {
	var dates []string
	err := d.Bun.NewSelect().
		Model((*models.BlackoutDate)(nil)).
		Column("date").
		Where("sport_id = ?", sportID).
		Where("is_active = ?", true).
		Where("date >= ? AND date <= ?", from, to).
		Scan(ctx, &dates)
	if err != nil {
		return nil, fmt.Errorf("list blackout dates: %w", err)
	}
	set := make(map[string]bool, len(dates))
	for _, date := range dates {
		set[date] = true
	}
	return set, nil
}

// ---------------- SLOTS ----------------

// FindSlot → nil, nil when no slot exists at (sport, date, start)
func (d *DB) FindSlot(ctx context.Context, sportID int64, date, start string) (*models.Slot, error) {
	slot := new(models.Slot)
	err := d.Bun.NewSelect().Model(slot).
		Where("sport_id = ?", sportID).
		Where("date = ?", date).
		Where("start_time = ?", start).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find slot: %w", err)
	}
	return slot, nil
}

// InsertSlot reports false when another writer already holds (sport, date, start_time).
func (d *DB) InsertSlot(ctx context.Context, slot *models.Slot) (bool, error) {
	now := time.Now()
	slot.CreatedAt, slot.UpdatedAt = now, now
	res, err := d.Bun.NewInsert().
		Model(slot).
		On("CONFLICT (sport_id, date, start_time) DO NOTHING").
		Returning("NULL").
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("insert slot: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return false, nil
	}

	stored, err := d.FindSlot(ctx, slot.SportID, slot.Date, slot.StartTime)
	if err != nil {
		return false, err
	}
	if stored != nil {
		slot.ID = stored.ID
	}
	return true, nil
}

// ReplaceSlot deletes the existing slot with its bookings, players and logs, then inserts slot, in one transaction.
func (d *DB) ReplaceSlot(ctx context.Context, existingID int64, slot *models.Slot) error {
	return d.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := deleteSlotsCascade(ctx, tx, []int64{existingID}); err != nil {
			return err
		}
		now := time.Now()
		slot.CreatedAt, slot.UpdatedAt = now, now
		if _, err := tx.NewInsert().Model(slot).Exec(ctx); err != nil {
			return fmt.Errorf("insert replacement slot: %w", err)
		}
		return nil
	})
}

// DeleteSlots removes every slot of the sport in [from, to] whatever its booking state.
func (d *DB) DeleteSlots(ctx context.Context, sportID int64, from, to string) (int, error) {
	var deleted int
	err := d.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var ids []int64
		err := tx.NewSelect().
			Model((*models.Slot)(nil)).
			Column("id").
			Where("sport_id = ?", sportID).
			Where("date >= ? AND date <= ?", from, to).
			Scan(ctx, &ids)
		if err != nil {
			return fmt.Errorf("select slots to clear: %w", err)
		}
		deleted, err = deleteSlotsCascade(ctx, tx, ids)
		return err
	})
	return deleted, err
}

func deleteSlotsCascade(ctx context.Context, tx bun.Tx, slotIDs []int64) (int, error) {
	if len(slotIDs) == 0 {
		return 0, nil
	}

	bookingIDs := tx.NewSelect().Model((*models.Booking)(nil)).Column("id").Where("slot_id IN (?)", bun.In(slotIDs))
	playerIDs := tx.NewSelect().Model((*models.Player)(nil)).Column("id").Where("booking_id IN (?)", bookingIDs)

	if _, err := tx.NewDelete().Model((*models.CheckInLog)(nil)).Where("player_id IN (?)", playerIDs).Exec(ctx); err != nil {
		return 0, fmt.Errorf("delete check-in logs: %w", err)
	}
	if _, err := tx.NewDelete().Model((*models.Player)(nil)).Where("booking_id IN (?)", bookingIDs).Exec(ctx); err != nil {
		return 0, fmt.Errorf("delete players: %w", err)
	}
	if _, err := tx.NewDelete().Model((*models.Booking)(nil)).Where("slot_id IN (?)", bun.In(slotIDs)).Exec(ctx); err != nil {
		return 0, fmt.Errorf("delete bookings: %w", err)
	}
	res, err := tx.NewDelete().Model((*models.Slot)(nil)).Where("id IN (?)", bun.In(slotIDs)).Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("delete slots: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
