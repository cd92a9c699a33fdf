// Package payment adapts external payment providers to the order/verify
// handshake used by bookings.
package payment

import (
	"context"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"

	"ms-booking/internal/config"
)

type OrderRequest struct {
	Amount   decimal.Decimal
	Currency string
	Receipt  string
	Notes    map[string]string
}

type Order struct {
	ID           string
	AmountMinor  int64
	Currency     string
	Status       string
	ClientSecret string
}

// Gateway is the provider boundary. Any error is a definitive failure for the call.
type Gateway interface {
	Name() string
	// PublicKey is handed to clients so they can open the provider checkout.
	PublicKey() string
	CreateOrder(ctx context.Context, req OrderRequest) (*Order, error)
	VerifySignature(ctx context.Context, orderID, paymentID, signature string) (bool, error)
}

// ToMinorUnits converts 499.50 into 49950.
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

// NewGateway builds the provider selected by cfg.Provider.
func NewGateway(cfg config.PaymentConfig, client *http.Client) (Gateway, error) {
	switch cfg.Provider {
	case "razorpay":
		return NewRazorpayGateway(cfg.RazorpayKeyID, cfg.RazorpayKeySecret, cfg.RazorpayBaseURL, client), nil
	case "stripe":
		return NewStripeGateway(cfg.StripeSecretKey, cfg.StripePublishableKey, cfg.StripeWebhookSecret, client, ""), nil
	default:
		return nil, fmt.Errorf("unknown payment provider %q", cfg.Provider)
	}
}
