package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"ms-booking/internal/config"
	"ms-booking/internal/logger"
	"ms-booking/internal/models"
)

// Open connects to the configured database, retrying the initial ping.
func Open(ctx context.Context, cfg config.DatabaseConfig, log *logger.Logger) (*bun.DB, error) {
	if cfg.Driver == "sqlite" {
		return OpenSQLite(ctx, cfg.DSN)
	}

	retries := cfg.ConnectRetries
	if retries < 1 {
		retries = 1
	}

	var sqldb *sql.DB
	var err error
	for i := 0; i < retries; i++ {
		log.Info("DATABASE", fmt.Sprintf("Attempting to connect to PostgreSQL (attempt %d/%d)", i+1, retries))
		sqldb, err = sql.Open("postgres", cfg.DSN)
		if err == nil {
			err = sqldb.PingContext(ctx)
			if err == nil {
				break
			}
			sqldb.Close()
		}
		log.Error("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL: %v", err))
		if i < retries-1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(2 * time.Second):
			}
		}
	}
	if err != nil {
		return nil, fmt.Errorf("connect postgres after %d attempts: %w", retries, err)
	}

	sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.MaxLifetime)

	log.Info("DATABASE", "PostgreSQL connection successful")
	return bun.NewDB(sqldb, pgdialect.New()), nil
}

// OpenSQLite opens a SQLite database with foreign keys enforced. A single
// connection keeps a ":memory:" database alive and serializes writers.
func OpenSQLite(ctx context.Context, dsn string) (*bun.DB, error) {
	if dsn == "" {
		dsn = ":memory:"
	}
	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable sqlite foreign keys: %w", err)
	}
	return db, nil
}

type table struct {
	model       any
	foreignKeys []string
}

var tables = []table{
	{model: (*models.Sport)(nil)},
	{model: (*models.SlotConfiguration)(nil), foreignKeys: []string{`("sport_id") REFERENCES "sports" ("id") ON DELETE CASCADE`}},
	{model: (*models.BreakTime)(nil), foreignKeys: []string{`("sport_id") REFERENCES "sports" ("id") ON DELETE CASCADE`}},
	{model: (*models.BlackoutDate)(nil), foreignKeys: []string{`("sport_id") REFERENCES "sports" ("id") ON DELETE CASCADE`}},
	{model: (*models.Slot)(nil), foreignKeys: []string{`("sport_id") REFERENCES "sports" ("id") ON DELETE CASCADE`}},
	{model: (*models.Booking)(nil), foreignKeys: []string{`("slot_id") REFERENCES "slots" ("id") ON DELETE CASCADE`}},
	{model: (*models.Player)(nil), foreignKeys: []string{`("booking_id") REFERENCES "bookings" ("id") ON DELETE CASCADE`}},
	{model: (*models.CheckInLog)(nil), foreignKeys: []string{`("player_id") REFERENCES "players" ("id") ON DELETE CASCADE`}},
}

var indexes = []string{
	`CREATE UNIQUE INDEX IF NOT EXISTS bookings_active_slot_uniq ON bookings (slot_id) WHERE is_cancelled = FALSE`,
	`CREATE INDEX IF NOT EXISTS bookings_user_idx ON bookings (user_id)`,
	`CREATE INDEX IF NOT EXISTS slots_date_idx ON slots (date)`,
	`CREATE INDEX IF NOT EXISTS players_booking_idx ON players (booking_id)`,
	`CREATE INDEX IF NOT EXISTS check_in_logs_player_idx ON check_in_logs (player_id)`,
}

// CreateSchema builds the tables from the bun models. Used for SQLite and tests;
// Postgres deployments use the SQL migrations.
func CreateSchema(ctx context.Context, db bun.IDB) error {
	for _, t := range tables {
		q := db.NewCreateTable().Model(t.model).IfNotExists()
		for _, fk := range t.foreignKeys {
			q = q.ForeignKey(fk)
		}
		if _, err := q.Exec(ctx); err != nil {
			return fmt.Errorf("create table for %T: %w", t.model, err)
		}
	}
	for _, stmt := range indexes {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}
	return nil
}

// NewTestDB returns a migrated in-memory SQLite database.
func NewTestDB(ctx context.Context) (*bun.DB, error) {
	db, err := OpenSQLite(ctx, ":memory:")
	if err != nil {
		return nil, err
	}
	if err := CreateSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
