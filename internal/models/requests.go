package models

import "github.com/shopspring/decimal"

// Actor is the already-authenticated caller handed to every service call.
type Actor struct {
	UserID  string `json:"user_id"`
	Email   string `json:"email,omitempty"`
	IsStaff bool   `json:"is_staff"`
}

func SystemActor() Actor {
	return Actor{UserID: "system", IsStaff: true}
}

func (a Actor) Owns(userID string) bool {
	return a.UserID != "" && a.UserID == userID
}

func (a Actor) CanManage(userID string) bool {
	return a.IsStaff || a.Owns(userID)
}

type TimeWindow struct {
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

type GenerateRequest struct {
	SportID          int64        `json:"sport_id"`
	StartDate        string       `json:"start_date"`
	EndDate          string       `json:"end_date"`
	Windows          []TimeWindow `json:"time_slots,omitempty"`
	UseConfiguration bool         `json:"use_configuration"`
	ForceReplace     bool         `json:"force_replace"`
}

type SkippedDay struct {
	Date   string `json:"date"`
	Reason string `json:"reason"`
}

// GenerateResult reports a generation run. DestroyedBookings counts active bookings
// deleted by force-replace and DestroyedSlotIDs names the slots they held.
type GenerateResult struct {
	Created           []*Slot      `json:"created"`
	CreatedCount      int          `json:"created_count"`
	SkippedCount      int          `json:"skipped_count"`
	ReplacedCount     int          `json:"replaced_count"`
	SkippedDays       []SkippedDay `json:"skipped_days,omitempty"`
	DestroyedBookings int          `json:"destroyed_bookings"`
	DestroyedSlotIDs  []int64      `json:"destroyed_slot_ids,omitempty"`
}

type ConfigurationRequest struct {
	OpeningTime        string `json:"opening_time"`
	ClosingTime        string `json:"closing_time"`
	WeekendOpeningTime string `json:"weekend_opening_time,omitempty"`
	WeekendClosingTime string `json:"weekend_closing_time,omitempty"`
	SlotDuration       int    `json:"slot_duration"`
	BufferTime         int    `json:"buffer_time"`
}

type BreakRequest struct {
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Reason    string `json:"reason"`
}

type BlackoutRequest struct {
	Date   string `json:"date"`
	Reason string `json:"reason"`
}

type SlotFilter struct {
	SportID       int64
	Date          string
	AvailableOnly bool
	// FromDate restricts to slots on or after this date when set.
	FromDate string
}

type PlayerInput struct {
	Name   string `json:"name"`
	Email  string `json:"email"`
	Phone  string `json:"phone,omitempty"`
	UserID string `json:"user_id,omitempty"`
}

// PlayerTicket is a created player together with its signed check-in token.
type PlayerTicket struct {
	Player *Player `json:"player"`
	Token  string  `json:"token"`
	Status string  `json:"check_in_status"`
}

type CreateOrderRequest struct {
	BookingID int64            `json:"booking_id"`
	Amount    *decimal.Decimal `json:"amount,omitempty"`
}

type OrderResult struct {
	OrderID      string          `json:"order_id"`
	Amount       decimal.Decimal `json:"amount"`
	AmountMinor  int64           `json:"amount_minor"`
	Currency     string          `json:"currency"`
	KeyID        string          `json:"key_id,omitempty"`
	ClientSecret string          `json:"client_secret,omitempty"`
	BookingID    int64           `json:"booking_id"`
}

type VerifyRequest struct {
	BookingID int64  `json:"booking_id"`
	OrderID   string `json:"order_id"`
	PaymentID string `json:"payment_id"`
	Signature string `json:"signature"`
}

type VerifyResult struct {
	BookingID       int64  `json:"booking_id"`
	PaymentVerified bool   `json:"payment_verified"`
	PaymentID       string `json:"payment_id"`
	AlreadyVerified bool   `json:"already_verified"`
}

// QRPayload is the structured content encoded in a player's QR code.
type QRPayload struct {
	PlayerID  int64  `json:"player_id"`
	BookingID int64  `json:"booking_id"`
	Date      string `json:"date"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Token     string `json:"token,omitempty"`
}

type ScanRequest struct {
	Token    string     `json:"token,omitempty"`
	Payload  *QRPayload `json:"payload,omitempty"`
	Location string     `json:"location,omitempty"`
}

type ScanResult struct {
	Action       string  `json:"action"`
	Message      string  `json:"message"`
	Player       *Player `json:"player"`
	CheckInCount int     `json:"check_in_count"`
	Status       string  `json:"status"`
}

type Dashboard struct {
	TotalBookings  int             `json:"total_bookings"`
	ActiveBookings int             `json:"active_bookings"`
	TotalRevenue   decimal.Decimal `json:"total_revenue"`
	TotalPlayers   int             `json:"total_players"`
	CheckedInToday int             `json:"checked_in_today"`
	AvailableSlots int             `json:"available_slots"`
}
