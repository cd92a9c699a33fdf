package payment

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
	"github.com/stripe/stripe-go/v82/webhook"
)

// StripeGateway maps orders onto PaymentIntents. The intent id is the order id,
// the charge id is the payment id and the client secret acts as the signature.
type StripeGateway struct {
	api            *client.API
	publishableKey string
	webhookSecret  string
}

// NewStripeGateway builds a client on its own backends. apiURL overrides the Stripe API host.
func NewStripeGateway(secretKey, publishableKey, webhookSecret string, httpClient *http.Client, apiURL string) *StripeGateway {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	backends := stripe.NewBackends(httpClient)
	if apiURL != "" {
		backends.API = stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
			URL:               stripe.String(apiURL),
			HTTPClient:        httpClient,
			MaxNetworkRetries: stripe.Int64(0),
			LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelError},
		})
	}

	return &StripeGateway{
		api:            client.New(secretKey, backends),
		publishableKey: publishableKey,
		webhookSecret:  webhookSecret,
	}
}

func (g *StripeGateway) Name() string      { return "stripe" }
func (g *StripeGateway) PublicKey() string { return g.publishableKey }

func (g *StripeGateway) CreateOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(ToMinorUnits(req.Amount)),
		Currency: stripe.String(strings.ToLower(req.Currency)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	if req.Receipt != "" {
		params.Description = stripe.String(req.Receipt)
	}
	for k, v := range req.Notes {
		params.AddMetadata(k, v)
	}

	intent, err := g.api.PaymentIntents.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripe: %w", err)
	}

	return &Order{
		ID:           intent.ID,
		AmountMinor:  intent.Amount,
		Currency:     string(intent.Currency),
		Status:       string(intent.Status),
		ClientSecret: intent.ClientSecret,
	}, nil
}

func (g *StripeGateway) VerifySignature(ctx context.Context, orderID, paymentID, signature string) (bool, error) {
	if orderID == "" || paymentID == "" || signature == "" {
		return false, nil
	}

	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	intent, err := g.api.PaymentIntents.Get(orderID, params)
	if err != nil {
		return false, fmt.Errorf("stripe: %w", err)
	}

	if subtle.ConstantTimeCompare([]byte(intent.ClientSecret), []byte(signature)) != 1 {
		return false, nil
	}
	if intent.Status != stripe.PaymentIntentStatusSucceeded {
		return false, nil
	}
	return intent.LatestCharge != nil && intent.LatestCharge.ID == paymentID, nil
}

// WebhookEvent is the subset of a Stripe event the booking flow acts on.
type WebhookEvent struct {
	Type      string
	IntentID  string
	ChargeID  string
	Metadata  map[string]string
	Succeeded bool
}

// WebhookError carries a client-safe message next to the detailed cause.
type WebhookError struct {
	StatusCode  int
	PublicError string
	Err         error
}

func (e *WebhookError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.PublicError, e.Err)
	}
	return e.PublicError
}

func (e *WebhookError) Unwrap() error { return e.Err }

// ParseWebhook verifies the Stripe-Signature header and decodes PaymentIntent events.
func (g *StripeGateway) ParseWebhook(payload []byte, signatureHeader string) (*WebhookEvent, error) {
	if g.webhookSecret == "" {
		return nil, &WebhookError{StatusCode: http.StatusInternalServerError, PublicError: "webhook processing error",
			Err: fmt.Errorf("stripe webhook secret is not configured")}
	}

	event, err := webhook.ConstructEventWithOptions(payload, signatureHeader, g.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, &WebhookError{StatusCode: http.StatusBadRequest, PublicError: "webhook signature verification failed", Err: err}
	}

	out := &WebhookEvent{Type: string(event.Type)}
	if !strings.HasPrefix(out.Type, "payment_intent.") {
		return out, nil
	}

	var intent stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		return nil, &WebhookError{StatusCode: http.StatusBadRequest, PublicError: "invalid payment intent payload", Err: err}
	}
	out.IntentID = intent.ID
	out.Metadata = intent.Metadata
	out.Succeeded = intent.Status == stripe.PaymentIntentStatusSucceeded
	if intent.LatestCharge != nil {
		out.ChargeID = intent.LatestCharge.ID
	}
	return out, nil
}
