package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"

	"ms-booking/internal/config"
	"ms-booking/internal/database"
	"ms-booking/internal/database/migrations"
	"ms-booking/internal/logger"
	"ms-booking/internal/models"
)

func usage() {
	fmt.Fprintf(os.Stderr, "usage: migrate [-seed] up|down|version|to <n>\n")
	flag.PrintDefaults()
}

func main() {
	seed := flag.Bool("seed", false, "insert a demo sport with a configuration after migrating")
	flag.Usage = usage
	flag.Parse()

	logger := logger.NewLogger()
	defer logger.Close()

	_ = godotenv.Load()
	cfg := config.Load()
	ctx := context.Background()

	if cfg.Database.Driver != "postgres" {
		logger.Fatal("MIGRATE", "migrations only run against postgres; sqlite builds its schema on startup")
	}

	db, err := database.Open(ctx, cfg.Database, logger)
	if err != nil {
		logger.Fatal("DATABASE", err.Error())
	}
	defer db.Close()

	runner := migrations.NewRunner(db.DB, logger)

	cmd := flag.Arg(0)
	switch cmd {
	case "", "up":
		err = runner.Up()
	case "down":
		err = runner.Down()
	case "to":
		var v uint64
		v, err = strconv.ParseUint(flag.Arg(1), 10, 32)
		if err == nil {
			err = runner.To(uint(v))
		}
	case "version":
		v, dirty, verr := runner.Version()
		if verr == nil {
			logger.Info("MIGRATE", fmt.Sprintf("version=%d dirty=%t", v, dirty))
		}
		err = verr
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		logger.Fatal("MIGRATE", fmt.Sprintf("%s failed: %v", cmd, err))
	}

	if *seed {
		if err := seedData(ctx, db); err != nil {
			logger.Fatal("MIGRATE", fmt.Sprintf("seed failed: %v", err))
		}
		logger.Info("MIGRATE", "Seeded demo sport")
	}
	logger.Info("MIGRATE", "Done")
}

// seedData inserts one sport with a weekday/weekend configuration. Re-running is a no-op.
func seedData(ctx context.Context, db *bun.DB) error {
	return db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		sport := &models.Sport{
			Name:         "Cricket Nets",
			Description:  "Practice nets with bowling machine",
			PricePerHour: decimal.NewFromInt(800),
			Duration:     60,
			MaxPlayers:   6,
			IsActive:     true,
		}
		res, err := tx.NewInsert().Model(sport).On("CONFLICT (name) DO NOTHING").Exec(ctx)
		if err != nil {
			return fmt.Errorf("insert sport: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil
		}

		cfg := &models.SlotConfiguration{
			SportID:            sport.ID,
			OpeningTime:        "06:00",
			ClosingTime:        "22:00",
			WeekendOpeningTime: "07:00",
			WeekendClosingTime: "23:00",
			SlotDuration:       60,
			BufferTime:         0,
		}
		if _, err := tx.NewInsert().Model(cfg).Exec(ctx); err != nil {
			return fmt.Errorf("insert configuration: %w", err)
		}
		return nil
	})
}
