package models

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

// Slot prices and capacities are copied from the Sport when the slot is created.
type Slot struct {
	bun.BaseModel `bun:"table:slots,alias:slot"`

	ID         int64           `bun:"id,pk,autoincrement" json:"id"`
	SportID    int64           `bun:"sport_id,notnull,unique:slot_sport_date_start" json:"sport_id"`
	Date       string          `bun:"date,notnull,unique:slot_sport_date_start" json:"date"`
	StartTime  string          `bun:"start_time,notnull,unique:slot_sport_date_start" json:"start_time"`
	EndTime    string          `bun:"end_time,notnull" json:"end_time"`
	Price      decimal.Decimal `bun:"price,type:decimal(10,2),notnull" json:"price"`
	MaxPlayers int             `bun:"max_players,notnull" json:"max_players"`
	IsBooked   bool            `bun:"is_booked,notnull" json:"is_booked"`
	CreatedAt  time.Time       `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt  time.Time       `bun:"updated_at,nullzero,notnull,default:current_timestamp" json:"updated_at"`

	Sport *Sport `bun:"rel:belongs-to,join:sport_id=id" json:"sport,omitempty"`
}

type Booking struct {
	bun.BaseModel `bun:"table:bookings,alias:booking"`

	ID                 int64           `bun:"id,pk,autoincrement" json:"id"`
	UserID             string          `bun:"user_id,notnull" json:"user_id"`
	SlotID             int64           `bun:"slot_id,notnull" json:"slot_id"`
	PaymentVerified    bool            `bun:"payment_verified,notnull" json:"payment_verified"`
	OrderID            string          `bun:"order_id" json:"order_id,omitempty"`
	PaymentID          string          `bun:"payment_id" json:"payment_id,omitempty"`
	AmountPaid         decimal.Decimal `bun:"amount_paid,type:decimal(10,2),notnull" json:"amount_paid"`
	IsCancelled        bool            `bun:"is_cancelled,notnull" json:"is_cancelled"`
	CancellationReason string          `bun:"cancellation_reason" json:"cancellation_reason,omitempty"`
	CreatedAt          time.Time       `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt          time.Time       `bun:"updated_at,nullzero,notnull,default:current_timestamp" json:"updated_at"`

	Slot    *Slot     `bun:"rel:belongs-to,join:slot_id=id" json:"slot,omitempty"`
	Players []*Player `bun:"rel:has-many,join:id=booking_id" json:"players,omitempty"`
}

// Capacity is the slot's snapshotted max players, falling back to the sport default.
func (b *Booking) Capacity() int {
	if b.Slot != nil && b.Slot.MaxPlayers > 0 {
		return b.Slot.MaxPlayers
	}
	if b.Slot != nil && b.Slot.Sport != nil && b.Slot.Sport.MaxPlayers > 0 {
		return b.Slot.Sport.MaxPlayers
	}
	return DefaultMaxPlayers
}

type Player struct {
	bun.BaseModel `bun:"table:players,alias:player"`

	ID           int64      `bun:"id,pk,autoincrement" json:"id"`
	BookingID    int64      `bun:"booking_id,notnull" json:"booking_id"`
	Name         string     `bun:"name,notnull" json:"name"`
	Email        string     `bun:"email,notnull" json:"email"`
	Phone        string     `bun:"phone" json:"phone,omitempty"`
	UserID       string     `bun:"user_id" json:"user_id,omitempty"`
	CheckInCount int        `bun:"check_in_count,notnull" json:"check_in_count"`
	LastCheckIn  *time.Time `bun:"last_check_in" json:"last_check_in,omitempty"`
	LastCheckOut *time.Time `bun:"last_check_out" json:"last_check_out,omitempty"`
	CreatedAt    time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`

	Booking *Booking `bun:"rel:belongs-to,join:booking_id=id" json:"-"`
}

const (
	ActionIn  = "IN"
	ActionOut = "OUT"

	MaxDailyScans = 2
)

const (
	StatusNotCheckedIn = "Not Checked In"
	StatusCheckedIn    = "Checked In"
	StatusCheckedOut   = "Checked Out"
)

func (p *Player) Status() string {
	switch p.CheckInCount {
	case 0:
		return StatusNotCheckedIn
	case 1:
		return StatusCheckedIn
	default:
		return StatusCheckedOut
	}
}

type CheckInLog struct {
	bun.BaseModel `bun:"table:check_in_logs,alias:log"`

	ID        int64     `bun:"id,pk,autoincrement" json:"id"`
	PlayerID  int64     `bun:"player_id,notnull" json:"player_id"`
	Action    string    `bun:"action,notnull" json:"action"`
	Timestamp time.Time `bun:"timestamp,notnull" json:"timestamp"`
	Location  string    `bun:"location" json:"location,omitempty"`
}
