// Package apperrors holds the caller-visible failure taxonomy shared by the
// slot, booking, payment and check-in services.
package apperrors

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindConflict
	KindPermission
	KindGateway
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindPermission:
		return "permission"
	case KindGateway:
		return "gateway"
	case KindNotFound:
		return "not_found"
	default:
		return "internal"
	}
}

// Error carries a Kind plus a stable Code so callers can react to the specific
// rule that was violated.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Kind != KindGateway {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on Code, so a sentinel below matches any error carrying the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code != "" && t.Code == e.Code
}

// WithMessage returns a copy of a sentinel with a more specific message.
func (e *Error) WithMessage(format string, args ...any) *Error {
	cp := *e
	cp.Message = fmt.Sprintf(format, args...)
	return &cp
}

func Validation(code, message string) *Error {
	return &Error{Kind: KindValidation, Code: code, Message: message}
}

func Conflict(code, message string) *Error {
	return &Error{Kind: KindConflict, Code: code, Message: message}
}

func Permission(code, message string) *Error {
	return &Error{Kind: KindPermission, Code: code, Message: message}
}

func NotFound(code, message string) *Error {
	return &Error{Kind: KindNotFound, Code: code, Message: message}
}

// Gateway wraps a payment adapter failure. The adapter's message is surfaced verbatim.
func Gateway(err error) *Error {
	msg := "payment gateway error"
	if err != nil {
		msg = err.Error()
	}
	return &Error{Kind: KindGateway, Code: CodeGatewayError, Message: msg, Err: err}
}

func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return "internal_error"
}

const (
	CodeInvalidInput       = "invalid_input"
	CodeInvalidDate        = "invalid_date"
	CodeInvalidTime        = "invalid_time"
	CodeInvalidRange       = "invalid_range"
	CodeMissingConfig      = "missing_configuration"
	CodeInvalidConfig      = "invalid_configuration"
	CodeInvalidAmount      = "invalid_amount"
	CodeInvalidToken       = "invalid_token"
	CodeSlotAlreadyBooked  = "slot_already_booked"
	CodeSlotInPast         = "slot_in_past"
	CodeAlreadyCancelled   = "already_cancelled"
	CodeBookingCancelled   = "booking_cancelled"
	CodePaymentNotVerified = "payment_not_verified"
	CodeAlreadyVerified    = "payment_already_verified"
	CodeOrderMismatch      = "order_mismatch"
	CodeAmountMismatch     = "amount_mismatch"
	CodeVerificationFailed = "verification_failed"
	CodeCapacityExceeded   = "capacity_exceeded"
	CodeDuplicateEmail     = "duplicate_email"
	CodeDuplicateBlackout  = "duplicate_blackout"
	CodeDuplicateSport     = "duplicate_sport"
	CodeWrongDate          = "wrong_date"
	CodeMaxCheckIns        = "max_checkins_reached"
	CodeScanInProgress     = "scan_in_progress"
	CodeForbidden          = "forbidden"
	CodeGatewayError       = "gateway_error"
	CodeSportNotFound      = "sport_not_found"
	CodeSlotNotFound       = "slot_not_found"
	CodeBookingNotFound    = "booking_not_found"
	CodePlayerNotFound     = "player_not_found"
	CodeBlackoutNotFound   = "blackout_not_found"
)

var (
	ErrSlotAlreadyBooked  = Conflict(CodeSlotAlreadyBooked, "slot already booked")
	ErrSlotInPast         = Conflict(CodeSlotInPast, "slot is in the past")
	ErrAlreadyCancelled   = Conflict(CodeAlreadyCancelled, "booking already cancelled")
	ErrBookingCancelled   = Conflict(CodeBookingCancelled, "booking is cancelled")
	ErrPaymentNotVerified = Conflict(CodePaymentNotVerified, "payment not verified")
	ErrAlreadyVerified    = Conflict(CodeAlreadyVerified, "payment already verified")
	ErrOrderMismatch      = Conflict(CodeOrderMismatch, "order does not belong to booking")
	ErrAmountMismatch     = Conflict(CodeAmountMismatch, "amount does not match booking")
	ErrVerificationFailed = Conflict(CodeVerificationFailed, "payment verification failed")
	ErrCapacityExceeded   = Conflict(CodeCapacityExceeded, "player capacity exceeded")
	ErrDuplicateEmail     = Conflict(CodeDuplicateEmail, "duplicate player email")
	ErrDuplicateBlackout  = Conflict(CodeDuplicateBlackout, "blackout date already exists")
	ErrDuplicateSport     = Conflict(CodeDuplicateSport, "sport already exists")
	ErrWrongDate          = Conflict(CodeWrongDate, "QR code is not valid today")
	ErrMaxCheckIns        = Conflict(CodeMaxCheckIns, "maximum check-ins reached")
	ErrScanInProgress     = Conflict(CodeScanInProgress, "another scan for this player is in progress")
	ErrInvalidToken       = Validation(CodeInvalidToken, "invalid token")
	ErrForbidden          = Permission(CodeForbidden, "permission denied")
	ErrSportNotFound      = NotFound(CodeSportNotFound, "sport not found")
	ErrSlotNotFound       = NotFound(CodeSlotNotFound, "slot not found")
	ErrBookingNotFound    = NotFound(CodeBookingNotFound, "booking not found")
	ErrPlayerNotFound     = NotFound(CodePlayerNotFound, "invalid QR code")
	ErrBlackoutNotFound   = NotFound(CodeBlackoutNotFound, "blackout date not found")
)
