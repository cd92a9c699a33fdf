package slots

import (
	"context"
	"fmt"
	"strings"

	"ms-booking/internal/apperrors"
	"ms-booking/internal/logger"
	"ms-booking/internal/models"
	"ms-booking/internal/utils"
)

type CatalogStore interface {
	GetSport(ctx context.Context, id int64) (*models.Sport, error)
	ListSports(ctx context.Context, activeOnly bool) ([]models.Sport, error)
	CreateSport(ctx context.Context, sport *models.Sport) error
	GetConfiguration(ctx context.Context, sportID int64) (*models.SlotConfiguration, error)
	UpsertConfiguration(ctx context.Context, cfg *models.SlotConfiguration) error
	AddBreak(ctx context.Context, b *models.BreakTime) error
	AddBlackout(ctx context.Context, b *models.BlackoutDate) error
	DisableBlackout(ctx context.Context, id int64) error
	ListBlackouts(ctx context.Context, sportID int64) ([]models.BlackoutDate, error)
}

// Catalog maintains sports and the per-sport generation rules.
type Catalog struct {
	DB     CatalogStore
	Logger *logger.Logger
}

func NewCatalog(store CatalogStore, log *logger.Logger) *Catalog {
	return &Catalog{DB: store, Logger: log}
}

func requireStaff(actor models.Actor) error {
	if !actor.IsStaff {
		return apperrors.ErrForbidden.WithMessage("admin access required")
	}
	return nil
}

func (c *Catalog) ListSports(ctx context.Context) ([]models.Sport, error) {
	return c.DB.ListSports(ctx, true)
}

func (c *Catalog) GetSport(ctx context.Context, id int64) (*models.Sport, error) {
	return c.DB.GetSport(ctx, id)
}

func (c *Catalog) CreateSport(ctx context.Context, actor models.Actor, req models.SportRequest) (*models.Sport, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, apperrors.Validation(apperrors.CodeInvalidInput, "sport name is required")
	}
	if req.PricePerHour.IsNegative() {
		return nil, apperrors.Validation(apperrors.CodeInvalidAmount, "price per hour cannot be negative")
	}
	if req.Duration < 0 || req.MaxPlayers < 0 {
		return nil, apperrors.Validation(apperrors.CodeInvalidInput, "duration and max players must be positive")
	}

	sport := &models.Sport{
		Name:         name,
		PricePerHour: req.PricePerHour,
		Description:  req.Description,
		Duration:     req.Duration,
		MaxPlayers:   req.MaxPlayers,
		IsActive:     true,
	}
	if sport.Duration == 0 {
		sport.Duration = models.DefaultSlotDuration
	}
	if sport.MaxPlayers == 0 {
		sport.MaxPlayers = models.DefaultMaxPlayers
	}

	if err := c.DB.CreateSport(ctx, sport); err != nil {
		return nil, err
	}
	c.Logger.LogSlots("SPORT_CREATED", sport.ID, sport.Name)
	return sport, nil
}

func (c *Catalog) SetConfiguration(ctx context.Context, actor models.Actor, sportID int64, req models.ConfigurationRequest) (*models.SlotConfiguration, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}

	cfg := &models.SlotConfiguration{
		SportID:            sportID,
		OpeningTime:        req.OpeningTime,
		ClosingTime:        req.ClosingTime,
		WeekendOpeningTime: req.WeekendOpeningTime,
		WeekendClosingTime: req.WeekendClosingTime,
		SlotDuration:       req.SlotDuration,
		BufferTime:         req.BufferTime,
	}
	sched, err := NewSchedule(cfg)
	if err != nil {
		return nil, err
	}

	// Store the normalized HH:MM form so string comparisons in SQL agree.
	cfg.OpeningTime = sched.Weekday.Start.String()
	cfg.ClosingTime = sched.Weekday.End.String()
	if sched.Weekend != nil {
		cfg.WeekendOpeningTime = sched.Weekend.Start.String()
		cfg.WeekendClosingTime = sched.Weekend.End.String()
	} else {
		cfg.WeekendOpeningTime, cfg.WeekendClosingTime = "", ""
	}

	if _, err := c.DB.GetSport(ctx, sportID); err != nil {
		return nil, err
	}
	if err := c.DB.UpsertConfiguration(ctx, cfg); err != nil {
		return nil, err
	}
	c.Logger.LogSlots("CONFIGURED", sportID, fmt.Sprintf("%s-%s every %d+%d min", cfg.OpeningTime, cfg.ClosingTime, cfg.SlotDuration, cfg.BufferTime))
	return c.DB.GetConfiguration(ctx, sportID)
}

func (c *Catalog) AddBreak(ctx context.Context, actor models.Actor, sportID int64, req models.BreakRequest) (*models.BreakTime, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}
	w, err := ParseWindow(req.StartTime, req.EndTime)
	if err != nil {
		return nil, err
	}
	if _, err := c.DB.GetSport(ctx, sportID); err != nil {
		return nil, err
	}

	b := &models.BreakTime{SportID: sportID, StartTime: w.Start.String(), EndTime: w.End.String(), Reason: req.Reason}
	if err := c.DB.AddBreak(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

func (c *Catalog) AddBlackout(ctx context.Context, actor models.Actor, sportID int64, req models.BlackoutRequest) (*models.BlackoutDate, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}
	d, err := utils.ParseDate(req.Date)
	if err != nil {
		return nil, apperrors.Validation(apperrors.CodeInvalidDate, fmt.Sprintf("invalid date %q, expected YYYY-MM-DD", req.Date))
	}
	if _, err := c.DB.GetSport(ctx, sportID); err != nil {
		return nil, err
	}

	b := &models.BlackoutDate{SportID: sportID, Date: utils.FormatDate(d), Reason: req.Reason}
	if err := c.DB.AddBlackout(ctx, b); err != nil {
		return nil, err
	}
	c.Logger.LogSlots("BLACKOUT", sportID, b.Date)
	return b, nil
}

func (c *Catalog) DisableBlackout(ctx context.Context, actor models.Actor, id int64) error {
	if err := requireStaff(actor); err != nil {
		return err
	}
	return c.DB.DisableBlackout(ctx, id)
}

func (c *Catalog) ListBlackouts(ctx context.Context, sportID int64) ([]models.BlackoutDate, error) {
	return c.DB.ListBlackouts(ctx, sportID)
}
