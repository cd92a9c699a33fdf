package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"ms-booking/internal/models"
)

type DB struct {
	Bun *bun.DB
}

// GetPlayer → player with its booking and slot, nil when missing
func (d *DB) GetPlayer(ctx context.Context, id int64) (*models.Player, error) {
	player := new(models.Player)
	err := d.Bun.NewSelect().
		Model(player).
		Relation("Booking").
		Relation("Booking.Slot").
		Where("player.id = ?", id).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get player %d: %w", id, err)
	}
	return player, nil
}

// RecordScan → bump the counter from expected to expected+1 and append the log, in one tx.
// Returns false when the counter moved underneath.
func (d *DB) RecordScan(ctx context.Context, playerID int64, expected int, action string, at time.Time, location string) (bool, error) {
	applied := false
	err := d.Bun.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		q := tx.NewUpdate().
			Model((*models.Player)(nil)).
			Set("check_in_count = ?", expected+1).
			Where("id = ?", playerID).
			Where("check_in_count = ?", expected)
		if action == models.ActionIn {
			q = q.Set("last_check_in = ?", at)
		} else {
			q = q.Set("last_check_out = ?", at)
		}

		res, err := q.Exec(ctx)
		if err != nil {
			return fmt.Errorf("update check-in count: %w", err)
		}
		if n, _ := res.RowsAffected(); n != 1 {
			return nil
		}

		entry := &models.CheckInLog{PlayerID: playerID, Action: action, Timestamp: at, Location: location}
		if _, err := tx.NewInsert().Model(entry).Exec(ctx); err != nil {
			return fmt.Errorf("insert check-in log: %w", err)
		}
		applied = true
		return nil
	})
	return applied, err
}

// ListLogs → scan history of one player, oldest first
func (d *DB) ListLogs(ctx context.Context, playerID int64) ([]models.CheckInLog, error) {
	var logs []models.CheckInLog
	err := d.Bun.NewSelect().
		Model(&logs).
		Where("player_id = ?", playerID).
		Order("timestamp ASC", "id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list check-in logs: %w", err)
	}
	return logs, nil
}
