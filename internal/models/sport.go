package models

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

type Sport struct {
	bun.BaseModel `bun:"table:sports,alias:sport"`

	ID           int64           `bun:"id,pk,autoincrement" json:"id"`
	Name         string          `bun:"name,notnull,unique" json:"name"`
	PricePerHour decimal.Decimal `bun:"price_per_hour,type:decimal(10,2),notnull" json:"price_per_hour"`
	Description  string          `bun:"description" json:"description,omitempty"`
	Duration     int             `bun:"duration,notnull" json:"duration"`
	MaxPlayers   int             `bun:"max_players,notnull" json:"max_players"`
	IsActive     bool            `bun:"is_active,notnull" json:"is_active"`
	CreatedAt    time.Time       `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt    time.Time       `bun:"updated_at,nullzero,notnull,default:current_timestamp" json:"updated_at"`
}

const (
	DefaultSlotDuration = 60
	DefaultMaxPlayers   = 10
)

// SlotConfiguration is the operating-hours template used by the slot generator.
type SlotConfiguration struct {
	bun.BaseModel `bun:"table:slot_configurations,alias:cfg"`

	ID                 int64     `bun:"id,pk,autoincrement" json:"id"`
	SportID            int64     `bun:"sport_id,notnull,unique" json:"sport_id"`
	OpeningTime        string    `bun:"opening_time,notnull" json:"opening_time"`
	ClosingTime        string    `bun:"closing_time,notnull" json:"closing_time"`
	WeekendOpeningTime string    `bun:"weekend_opening_time" json:"weekend_opening_time,omitempty"`
	WeekendClosingTime string    `bun:"weekend_closing_time" json:"weekend_closing_time,omitempty"`
	SlotDuration       int       `bun:"slot_duration,notnull" json:"slot_duration"`
	BufferTime         int       `bun:"buffer_time,notnull" json:"buffer_time"`
	CreatedAt          time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt          time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp" json:"updated_at"`
}

type BreakTime struct {
	bun.BaseModel `bun:"table:break_times,alias:brk"`

	ID        int64     `bun:"id,pk,autoincrement" json:"id"`
	SportID   int64     `bun:"sport_id,notnull" json:"sport_id"`
	StartTime string    `bun:"start_time,notnull" json:"start_time"`
	EndTime   string    `bun:"end_time,notnull" json:"end_time"`
	Reason    string    `bun:"reason" json:"reason,omitempty"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
}

type BlackoutDate struct {
	bun.BaseModel `bun:"table:blackout_dates,alias:blk"`

	ID        int64     `bun:"id,pk,autoincrement" json:"id"`
	SportID   int64     `bun:"sport_id,notnull,unique:blackout_sport_date" json:"sport_id"`
	Date      string    `bun:"date,notnull,unique:blackout_sport_date" json:"date"`
	Reason    string    `bun:"reason" json:"reason,omitempty"`
	IsActive  bool      `bun:"is_active,notnull" json:"is_active"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
}

type SportRequest struct {
	Name         string          `json:"name"`
	PricePerHour decimal.Decimal `json:"price_per_hour"`
	Description  string          `json:"description"`
	Duration     int             `json:"duration"`
	MaxPlayers   int             `json:"max_players"`
}
