// Command slotgen generates or clears slots for a sport from the command line.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"ms-booking/internal/config"
	"ms-booking/internal/database"
	"ms-booking/internal/lock"
	"ms-booking/internal/logger"
	"ms-booking/internal/models"
	"ms-booking/internal/slots"
	slotsdb "ms-booking/internal/slots/db"
)

func main() {
	var (
		sportID    = flag.Int64("sport", 0, "sport id")
		from       = flag.String("start", "", "first date, YYYY-MM-DD")
		to         = flag.String("end", "", "last date, YYYY-MM-DD")
		windows    = flag.String("windows", "", "manual windows, e.g. 06:00-07:00,07:00-08:00")
		force      = flag.Bool("force", false, "replace existing unbooked slots")
		clearRange = flag.Bool("clear", false, "delete slots in the range instead of generating")
		ahead      = flag.Int("ahead", 0, "generate the next N days for every configured sport")
	)
	flag.Parse()

	logger := logger.NewLogger()
	defer logger.Close()

	_ = godotenv.Load()
	cfg := config.Load()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	db, err := database.Open(ctx, cfg.Database, logger)
	if err != nil {
		logger.Fatal("DATABASE", err.Error())
	}
	defer db.Close()

	locker, closeLocker, err := lock.New(ctx, cfg.Redis, logger)
	if err != nil {
		logger.Fatal("REDIS", err.Error())
	}
	defer closeLocker()

	gen := slots.NewGenerator(&slotsdb.DB{Bun: db}, locker, logger, cfg.Generation.MaxRangeDays)
	actor := models.SystemActor()

	switch {
	case *ahead > 0:
		summary, err := gen.GenerateAhead(ctx, *ahead)
		if err != nil {
			logger.Error("SLOTGEN", err.Error())
		}
		printJSON(summary)
		if err != nil {
			os.Exit(1)
		}

	case *clearRange:
		n, err := gen.ClearRange(ctx, actor, *sportID, *from, *to)
		if err != nil {
			logger.Fatal("SLOTGEN", err.Error())
		}
		printJSON(map[string]int{"deleted_count": n})

	default:
		req := models.GenerateRequest{
			SportID:      *sportID,
			StartDate:    *from,
			EndDate:      *to,
			ForceReplace: *force,
		}
		if *windows == "" {
			req.UseConfiguration = true
		} else {
			req.Windows, err = parseWindows(*windows)
			if err != nil {
				logger.Fatal("SLOTGEN", err.Error())
			}
		}
		res, err := gen.Generate(ctx, actor, req)
		if err != nil {
			logger.Fatal("SLOTGEN", err.Error())
		}
		res.Created = nil
		printJSON(res)
	}
}

func parseWindows(s string) ([]models.TimeWindow, error) {
	var out []models.TimeWindow
	for _, part := range strings.Split(s, ",") {
		start, end, ok := strings.Cut(strings.TrimSpace(part), "-")
		if !ok {
			return nil, fmt.Errorf("window %q must look like HH:MM-HH:MM", part)
		}
		out = append(out, models.TimeWindow{StartTime: start, EndTime: end})
	}
	return out, nil
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
