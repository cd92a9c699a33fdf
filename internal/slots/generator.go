package slots

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"ms-booking/internal/apperrors"
	"ms-booking/internal/lock"
	"ms-booking/internal/logger"
	"ms-booking/internal/models"
	"ms-booking/internal/utils"
)

var tracer = otel.Tracer("ms-booking/slots")

type Store interface {
	GetSport(ctx context.Context, id int64) (*models.Sport, error)
	ListSportsWithConfiguration(ctx context.Context) ([]models.Sport, error)
	GetConfiguration(ctx context.Context, sportID int64) (*models.SlotConfiguration, error)
	ListBreaks(ctx context.Context, sportID int64) ([]models.BreakTime, error)
	ActiveBlackoutDates(ctx context.Context, sportID int64, from, to string) (map[string]bool, error)
	FindSlot(ctx context.Context, sportID int64, date, start string) (*models.Slot, error)
	InsertSlot(ctx context.Context, slot *models.Slot) (bool, error)
	ReplaceSlot(ctx context.Context, existingID int64, slot *models.Slot) error
	DeleteSlots(ctx context.Context, sportID int64, from, to string) (int, error)
}

const DefaultMaxRangeDays = 366

type Generator struct {
	DB           Store
	Locker       lock.Locker
	Logger       *logger.Logger
	MaxRangeDays int
	Now          func() time.Time
}

func NewGenerator(store Store, locker lock.Locker, log *logger.Logger, maxRangeDays int) *Generator {
	if maxRangeDays <= 0 {
		maxRangeDays = DefaultMaxRangeDays
	}
	return &Generator{DB: store, Locker: locker, Logger: log, MaxRangeDays: maxRangeDays, Now: time.Now}
}

// Generate expands the request into slots. All validation happens before the
// first write; a storage failure midway is returned, never swallowed.
func (g *Generator) Generate(ctx context.Context, actor models.Actor, req models.GenerateRequest) (*models.GenerateResult, error) {
	ctx, span := tracer.Start(ctx, "slots.Generate")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("sport.id", req.SportID),
		attribute.String("range.start", req.StartDate),
		attribute.String("range.end", req.EndDate),
		attribute.Bool("force_replace", req.ForceReplace),
	)

	if !actor.IsStaff {
		return nil, apperrors.ErrForbidden.WithMessage("admin access required to generate slots")
	}

	start, end, err := g.parseRange(req.StartDate, req.EndDate)
	if err != nil {
		return nil, err
	}

	sport, err := g.DB.GetSport(ctx, req.SportID)
	if err != nil {
		return nil, err
	}

	rules, err := g.rules(ctx, sport, req, start, end)
	if err != nil {
		return nil, err
	}

	result := &models.GenerateResult{Created: []*models.Slot{}}
	for _, day := range Plan(start, end, rules) {
		if day.SkipReason != "" {
			result.SkippedDays = append(result.SkippedDays, models.SkippedDay{Date: day.Date, Reason: day.SkipReason})
			continue
		}
		for _, w := range day.Slots {
			if err := g.place(ctx, sport, day.Date, w, req.ForceReplace, result); err != nil {
				span.RecordError(err)
				return nil, fmt.Errorf("generation stopped at %s %s after creating %d slots: %w",
					day.Date, w.Start, result.CreatedCount, err)
			}
		}
	}

	span.SetAttributes(
		attribute.Int("slots.created", result.CreatedCount),
		attribute.Int("slots.skipped", result.SkippedCount),
		attribute.Int("slots.replaced", result.ReplacedCount),
	)
	g.Logger.LogSlots("GENERATE", sport.ID, fmt.Sprintf("%s..%s created=%d skipped=%d replaced=%d skipped_days=%d",
		req.StartDate, req.EndDate, result.CreatedCount, result.SkippedCount, result.ReplacedCount, len(result.SkippedDays)))
	return result, nil
}

func (g *Generator) parseRange(from, to string) (time.Time, time.Time, error) {
	start, err := utils.ParseDate(from)
	if err != nil {
		return time.Time{}, time.Time{}, apperrors.Validation(apperrors.CodeInvalidDate, fmt.Sprintf("invalid start date %q, expected YYYY-MM-DD", from))
	}
	end, err := utils.ParseDate(to)
	if err != nil {
		return time.Time{}, time.Time{}, apperrors.Validation(apperrors.CodeInvalidDate, fmt.Sprintf("invalid end date %q, expected YYYY-MM-DD", to))
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, apperrors.Validation(apperrors.CodeInvalidRange, "end date must be on or after start date")
	}
	if days := utils.DaysBetween(start, end) + 1; days > g.MaxRangeDays {
		return time.Time{}, time.Time{}, apperrors.Validation(apperrors.CodeInvalidRange,
			fmt.Sprintf("date range of %d days exceeds the maximum of %d", days, g.MaxRangeDays))
	}
	return start, end, nil
}

func (g *Generator) rules(ctx context.Context, sport *models.Sport, req models.GenerateRequest, start, end time.Time) (Rules, error) {
	var rules Rules

	breaks, err := g.DB.ListBreaks(ctx, sport.ID)
	if err != nil {
		return rules, err
	}
	for _, b := range breaks {
		w, err := ParseWindow(b.StartTime, b.EndTime)
		if err != nil {
			return rules, fmt.Errorf("break %d: %w", b.ID, err)
		}
		rules.Breaks = append(rules.Breaks, w)
	}

	rules.Blackouts, err = g.DB.ActiveBlackoutDates(ctx, sport.ID, utils.FormatDate(start), utils.FormatDate(end))
	if err != nil {
		return rules, err
	}

	if req.UseConfiguration {
		cfg, err := g.DB.GetConfiguration(ctx, sport.ID)
		if err != nil {
			return rules, err
		}
		if cfg != nil {
			sched, err := NewSchedule(cfg)
			if err != nil {
				return rules, err
			}
			rules.Schedule = &sched
			return rules, nil
		}
		if len(req.Windows) == 0 {
			return rules, apperrors.Validation(apperrors.CodeMissingConfig,
				fmt.Sprintf("sport %q has no slot configuration", sport.Name))
		}
		g.Logger.Warn("SLOTS", fmt.Sprintf("sport %d has no configuration, falling back to manual windows", sport.ID))
	}

	if len(req.Windows) == 0 {
		return rules, apperrors.Validation(apperrors.CodeMissingConfig, "either use_configuration or time_slots is required")
	}
	for _, tw := range req.Windows {
		w, err := ParseWindow(tw.StartTime, tw.EndTime)
		if err != nil {
			return rules, err
		}
		rules.Manual = append(rules.Manual, w)
	}
	rules.ManualDuration = sport.Duration
	if rules.ManualDuration <= 0 {
		rules.ManualDuration = models.DefaultSlotDuration
	}
	return rules, nil
}

func (g *Generator) place(ctx context.Context, sport *models.Sport, date string, w Window, force bool, result *models.GenerateResult) error {
	key := fmt.Sprintf("slotgen:%d:%s:%s", sport.ID, date, w.Start)
	release, err := g.Locker.Acquire(ctx, key)
	if err != nil {
		return fmt.Errorf("acquire %s: %w", key, err)
	}
	defer release()

	existing, err := g.DB.FindSlot(ctx, sport.ID, date, w.Start.String())
	if err != nil {
		return err
	}

	maxPlayers := sport.MaxPlayers
	if maxPlayers <= 0 {
		maxPlayers = models.DefaultMaxPlayers
	}
	slot := &models.Slot{
		SportID:    sport.ID,
		Date:       date,
		StartTime:  w.Start.String(),
		EndTime:    w.End.String(),
		Price:      sport.PricePerHour,
		MaxPlayers: maxPlayers,
	}

	if existing != nil {
		if !force {
			result.SkippedCount++
			return nil
		}
		if err := g.DB.ReplaceSlot(ctx, existing.ID, slot); err != nil {
			return err
		}
		msg := fmt.Sprintf("replaced slot %d at %s %s", existing.ID, date, existing.StartTime)
		if existing.IsBooked {
			msg += " (its booking, players and check-in logs were deleted)"
			result.DestroyedBookings++
			result.DestroyedSlotIDs = append(result.DestroyedSlotIDs, existing.ID)
		}
		g.Logger.Warn("SLOTS", msg)
		result.ReplacedCount++
		result.CreatedCount++
		result.Created = append(result.Created, slot)
		return nil
	}

	created, err := g.DB.InsertSlot(ctx, slot)
	if err != nil {
		return err
	}
	if !created {
		result.SkippedCount++
		return nil
	}
	result.CreatedCount++
	result.Created = append(result.Created, slot)
	return nil
}

// ClearRange deletes every slot for the sport in [from, to] with their bookings.
func (g *Generator) ClearRange(ctx context.Context, actor models.Actor, sportID int64, from, to string) (int, error) {
	ctx, span := tracer.Start(ctx, "slots.ClearRange")
	defer span.End()

	if !actor.IsStaff {
		return 0, apperrors.ErrForbidden.WithMessage("admin access required to clear slots")
	}
	start, end, err := g.parseRange(from, to)
	if err != nil {
		return 0, err
	}
	if _, err := g.DB.GetSport(ctx, sportID); err != nil {
		return 0, err
	}

	n, err := g.DB.DeleteSlots(ctx, sportID, utils.FormatDate(start), utils.FormatDate(end))
	if err != nil {
		return 0, err
	}
	g.Logger.Warn("SLOTS", fmt.Sprintf("actor %s cleared %d slots for sport %d between %s and %s", actor.UserID, n, sportID, from, to))
	return n, nil
}

type AheadSummary struct {
	Sports  int
	Created int
	Skipped int
}

// GenerateAhead fills the next days for every configured sport. It never
// force-replaces, so repeated runs only report skipped slots.
func (g *Generator) GenerateAhead(ctx context.Context, days int) (AheadSummary, error) {
	var summary AheadSummary
	if days <= 0 {
		return summary, nil
	}

	sports, err := g.DB.ListSportsWithConfiguration(ctx)
	if err != nil {
		return summary, err
	}

	today := g.Now()
	from := utils.FormatDate(today)
	to := utils.FormatDate(today.AddDate(0, 0, days-1))

	var errs []error
	for _, sport := range sports {
		res, err := g.Generate(ctx, models.SystemActor(), models.GenerateRequest{
			SportID:          sport.ID,
			StartDate:        from,
			EndDate:          to,
			UseConfiguration: true,
		})
		if err != nil {
			g.Logger.Error("SLOTS", fmt.Sprintf("rolling generation for sport %d failed: %v", sport.ID, err))
			errs = append(errs, fmt.Errorf("sport %d: %w", sport.ID, err))
			continue
		}
		summary.Sports++
		summary.Created += res.CreatedCount
		summary.Skipped += res.SkippedCount
	}
	return summary, errors.Join(errs...)
}
