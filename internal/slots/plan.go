package slots

import (
	"fmt"
	"time"

	"ms-booking/internal/apperrors"
	"ms-booking/internal/models"
	"ms-booking/internal/utils"
)

// Clock is a time of day in minutes after midnight.
type Clock int

func ParseClock(s string) (Clock, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		t, err = time.Parse("15:04:05", s)
	}
	if err != nil {
		return 0, apperrors.Validation(apperrors.CodeInvalidTime, fmt.Sprintf("invalid time %q, expected HH:MM", s))
	}
	return Clock(t.Hour()*60 + t.Minute()), nil
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

// Window is the half-open interval [Start, End).
type Window struct {
	Start Clock
	End   Clock
}

func (w Window) Overlaps(o Window) bool {
	return w.Start < o.End && o.Start < w.End
}

func ParseWindow(start, end string) (Window, error) {
	s, err := ParseClock(start)
	if err != nil {
		return Window{}, err
	}
	e, err := ParseClock(end)
	if err != nil {
		return Window{}, err
	}
	if e <= s {
		return Window{}, apperrors.Validation(apperrors.CodeInvalidRange, fmt.Sprintf("end time %s must be after start time %s", end, start))
	}
	return Window{Start: s, End: e}, nil
}

// Schedule is a validated SlotConfiguration.
type Schedule struct {
	Weekday  Window
	Weekend  *Window
	Duration int
	Buffer   int
}

func NewSchedule(cfg *models.SlotConfiguration) (Schedule, error) {
	if cfg.SlotDuration <= 0 {
		return Schedule{}, apperrors.Validation(apperrors.CodeInvalidConfig, "slot duration must be greater than zero")
	}
	if cfg.BufferTime < 0 {
		return Schedule{}, apperrors.Validation(apperrors.CodeInvalidConfig, "buffer time cannot be negative")
	}

	weekday, err := ParseWindow(cfg.OpeningTime, cfg.ClosingTime)
	if err != nil {
		return Schedule{}, apperrors.Validation(apperrors.CodeInvalidConfig, "closing time must be after opening time: "+err.Error())
	}

	s := Schedule{Weekday: weekday, Duration: cfg.SlotDuration, Buffer: cfg.BufferTime}

	// A half-specified weekend override is ignored.
	if cfg.WeekendOpeningTime != "" && cfg.WeekendClosingTime != "" {
		weekend, err := ParseWindow(cfg.WeekendOpeningTime, cfg.WeekendClosingTime)
		if err != nil {
			return Schedule{}, apperrors.Validation(apperrors.CodeInvalidConfig, "weekend closing time must be after weekend opening time: "+err.Error())
		}
		s.Weekend = &weekend
	}
	return s, nil
}

func (s Schedule) WindowFor(day time.Weekday) Window {
	if s.Weekend != nil && (day == time.Saturday || day == time.Sunday) {
		return *s.Weekend
	}
	return s.Weekday
}

// Candidates walks w from its start in steps of duration+buffer. Candidates
// running past w.End are dropped, as are those overlapping a break.
func Candidates(w Window, duration, buffer int, breaks []Window) []Window {
	if duration <= 0 {
		return nil
	}
	step := Clock(duration + buffer)

	var out []Window
	for cursor := w.Start; cursor+Clock(duration) <= w.End; cursor += step {
		c := Window{Start: cursor, End: cursor + Clock(duration)}
		if overlapsAny(c, breaks) {
			continue
		}
		out = append(out, c)
	}
	return out
}

func overlapsAny(c Window, breaks []Window) bool {
	for _, b := range breaks {
		if c.Overlaps(b) {
			return true
		}
	}
	return false
}

// Rules is everything the planner needs for one sport. Exactly one of
// Schedule or Manual drives the walk; Schedule wins when both are set.
type Rules struct {
	Schedule       *Schedule
	Manual         []Window
	ManualDuration int
	Breaks         []Window
	Blackouts      map[string]bool
}

type DayPlan struct {
	Date       string
	Slots      []Window
	SkipReason string
}

const (
	SkipBlackout = "blackout"
	SkipNoFit    = "no_slots_fit"
)

// Plan expands [start, end] into per-day candidate slots.
func Plan(start, end time.Time, rules Rules) []DayPlan {
	var days []DayPlan
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		date := utils.FormatDate(d)

		if rules.Blackouts[date] {
			days = append(days, DayPlan{Date: date, SkipReason: SkipBlackout})
			continue
		}

		var slots []Window
		if rules.Schedule != nil {
			sched := rules.Schedule
			slots = Candidates(sched.WindowFor(d.Weekday()), sched.Duration, sched.Buffer, rules.Breaks)
		} else {
			seen := map[Clock]bool{}
			for _, w := range rules.Manual {
				for _, c := range Candidates(w, rules.ManualDuration, 0, rules.Breaks) {
					if seen[c.Start] {
						continue
					}
					seen[c.Start] = true
					slots = append(slots, c)
				}
			}
		}

		plan := DayPlan{Date: date, Slots: slots}
		if len(slots) == 0 {
			plan.SkipReason = SkipNoFit
		}
		days = append(days, plan)
	}
	return days
}
