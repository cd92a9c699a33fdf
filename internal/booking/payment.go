package booking

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"ms-booking/internal/apperrors"
	"ms-booking/internal/kafka"
	"ms-booking/internal/logger"
	"ms-booking/internal/models"
	"ms-booking/internal/payment"
	"ms-booking/internal/utils"
)

// WebhookParser is implemented by gateways that push payment results.
type WebhookParser interface {
	ParseWebhook(payload []byte, signatureHeader string) (*payment.WebhookEvent, error)
}

// PaymentService ties a provider payment to exactly one booking.
type PaymentService struct {
	DB       Store
	Gateway  payment.Gateway
	Events   *kafka.Emitter
	Logger   *logger.Logger
	Currency string
	// Timeout bounds every gateway call.
	Timeout time.Duration
	Now     func() time.Time
}

func NewPaymentService(store Store, gateway payment.Gateway, events *kafka.Emitter, log *logger.Logger, currency string, timeout time.Duration) *PaymentService {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &PaymentService{
		DB:       store,
		Gateway:  gateway,
		Events:   events,
		Logger:   log,
		Currency: currency,
		Timeout:  timeout,
		Now:      time.Now,
	}
}

type paymentEvent struct {
	BookingID int64  `json:"booking_id"`
	OrderID   string `json:"order_id"`
	PaymentID string `json:"payment_id"`
	Provider  string `json:"provider"`
}

// ownedBooking hides bookings of other users behind not-found.
func (s *PaymentService) ownedBooking(ctx context.Context, actor models.Actor, id int64) (*models.Booking, error) {
	booking, err := s.DB.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	if booking == nil || !actor.Owns(booking.UserID) {
		return nil, apperrors.ErrBookingNotFound
	}
	return booking, nil
}

func gatewayError(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return apperrors.Gateway(fmt.Errorf("payment gateway timed out: %w", err))
	}
	return apperrors.Gateway(err)
}

// CreateOrder opens a provider order for the booking amount and remembers its id.
func (s *PaymentService) CreateOrder(ctx context.Context, actor models.Actor, req models.CreateOrderRequest) (*models.OrderResult, error) {
	ctx, span := tracer.Start(ctx, "booking.CreateOrder")
	defer span.End()
	span.SetAttributes(attribute.Int64("booking.id", req.BookingID), attribute.String("provider", s.Gateway.Name()))

	booking, err := s.ownedBooking(ctx, actor, req.BookingID)
	if err != nil {
		return nil, err
	}
	if booking.PaymentVerified {
		return nil, apperrors.ErrAlreadyVerified
	}
	if booking.IsCancelled {
		return nil, apperrors.ErrBookingCancelled
	}

	// The charge is always the amount captured at reservation.
	amount := booking.AmountPaid
	if req.Amount != nil {
		if !req.Amount.IsPositive() {
			return nil, apperrors.Validation(apperrors.CodeInvalidAmount, "amount must be greater than zero")
		}
		if !req.Amount.Equal(amount) {
			return nil, apperrors.ErrAmountMismatch.WithMessage("amount %s does not match booking amount %s", req.Amount.StringFixed(2), amount.StringFixed(2))
		}
	}
	if !amount.IsPositive() {
		return nil, apperrors.Validation(apperrors.CodeInvalidAmount, "amount must be greater than zero")
	}

	gctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	order, err := s.Gateway.CreateOrder(gctx, payment.OrderRequest{
		Amount:   amount,
		Currency: s.Currency,
		Receipt:  utils.GenerateReceipt(booking.ID),
		Notes: map[string]string{
			"booking_id": strconv.FormatInt(booking.ID, 10),
			"user_id":    booking.UserID,
		},
	})
	if err != nil {
		s.Logger.LogBooking("ORDER_FAILED", booking.ID, err.Error())
		return nil, gatewayError(gctx, err)
	}

	if err := s.DB.SetOrderID(ctx, booking.ID, order.ID, s.Now()); err != nil {
		return nil, err
	}

	s.Logger.LogBooking("ORDER_CREATED", booking.ID, fmt.Sprintf("%s order %s", s.Gateway.Name(), order.ID))
	return &models.OrderResult{
		OrderID:      order.ID,
		Amount:       amount,
		AmountMinor:  order.AmountMinor,
		Currency:     s.Currency,
		KeyID:        s.Gateway.PublicKey(),
		ClientSecret: order.ClientSecret,
		BookingID:    booking.ID,
	}, nil
}

// Verify confirms a payment. Repeating a successful verification is a no-op.
func (s *PaymentService) Verify(ctx context.Context, actor models.Actor, req models.VerifyRequest) (*models.VerifyResult, error) {
	ctx, span := tracer.Start(ctx, "booking.VerifyPayment")
	defer span.End()
	span.SetAttributes(attribute.Int64("booking.id", req.BookingID), attribute.String("order.id", req.OrderID))

	booking, err := s.ownedBooking(ctx, actor, req.BookingID)
	if err != nil {
		return nil, err
	}
	if booking.PaymentVerified {
		return alreadyVerified(booking), nil
	}
	if booking.IsCancelled {
		return nil, apperrors.ErrBookingCancelled
	}
	if booking.OrderID == "" || booking.OrderID != req.OrderID {
		return nil, apperrors.ErrOrderMismatch
	}

	gctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	ok, err := s.Gateway.VerifySignature(gctx, req.OrderID, req.PaymentID, req.Signature)
	if err != nil {
		return nil, gatewayError(gctx, err)
	}
	if !ok {
		s.Logger.LogSecurity("PAYMENT_SIGNATURE_MISMATCH", fmt.Sprintf("booking %d order %s", booking.ID, req.OrderID))
		return nil, apperrors.ErrVerificationFailed
	}

	return s.markVerified(ctx, booking, req.PaymentID)
}

func (s *PaymentService) markVerified(ctx context.Context, booking *models.Booking, paymentID string) (*models.VerifyResult, error) {
	applied, err := s.DB.MarkVerified(ctx, booking.ID, paymentID, s.Now())
	if err != nil {
		return nil, err
	}
	if !applied {
		// a concurrent verification won, report what it stored
		current, err := s.DB.GetBooking(ctx, booking.ID)
		if err != nil {
			return nil, err
		}
		if current == nil {
			return nil, apperrors.ErrBookingNotFound
		}
		return alreadyVerified(current), nil
	}

	booking.PaymentVerified = true
	booking.PaymentID = paymentID

	s.Logger.LogBooking("PAYMENT_VERIFIED", booking.ID, "payment "+paymentID)
	s.Events.PaymentVerified(ctx, key(booking.ID), paymentEvent{
		BookingID: booking.ID,
		OrderID:   booking.OrderID,
		PaymentID: paymentID,
		Provider:  s.Gateway.Name(),
	})
	return &models.VerifyResult{BookingID: booking.ID, PaymentVerified: true, PaymentID: paymentID}, nil
}

func alreadyVerified(b *models.Booking) *models.VerifyResult {
	return &models.VerifyResult{BookingID: b.ID, PaymentVerified: true, PaymentID: b.PaymentID, AlreadyVerified: true}
}

// HandleStripeWebhook marks the booking behind a succeeded PaymentIntent as verified.
func (s *PaymentService) HandleStripeWebhook(ctx context.Context, payload []byte, signatureHeader string) error {
	ctx, span := tracer.Start(ctx, "booking.StripeWebhook")
	defer span.End()

	parser, ok := s.Gateway.(WebhookParser)
	if !ok {
		return apperrors.Validation(apperrors.CodeInvalidInput, "webhooks are not supported by the configured payment provider")
	}

	event, err := parser.ParseWebhook(payload, signatureHeader)
	if err != nil {
		s.Logger.LogSecurity("WEBHOOK_REJECTED", err.Error())
		return err
	}
	span.SetAttributes(attribute.String("event.type", event.Type))

	if event.Type != "payment_intent.succeeded" || !event.Succeeded {
		s.Logger.Debug("PAYMENT", "ignoring stripe event "+event.Type)
		return nil
	}

	booking, err := s.bookingForIntent(ctx, event)
	if err != nil {
		return err
	}
	if booking.PaymentVerified {
		return nil
	}
	if booking.OrderID != event.IntentID {
		return apperrors.ErrOrderMismatch
	}

	_, err = s.markVerified(ctx, booking, event.ChargeID)
	return err
}

func (s *PaymentService) bookingForIntent(ctx context.Context, event *payment.WebhookEvent) (*models.Booking, error) {
	if raw := event.Metadata["booking_id"]; raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, apperrors.Validation(apperrors.CodeInvalidInput, "invalid booking_id metadata")
		}
		booking, err := s.DB.GetBooking(ctx, id)
		if err != nil {
			return nil, err
		}
		if booking == nil {
			return nil, apperrors.ErrBookingNotFound
		}
		return booking, nil
	}

	booking, err := s.DB.FindByOrderID(ctx, event.IntentID)
	if err != nil {
		return nil, err
	}
	if booking == nil {
		return nil, apperrors.ErrBookingNotFound
	}
	return booking, nil
}
