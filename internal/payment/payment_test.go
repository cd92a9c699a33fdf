package payment_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82/webhook"

	"ms-booking/internal/config"
	"ms-booking/internal/payment"
)

func TestToMinorUnits(t *testing.T) {
	assert.Equal(t, int64(50000), payment.ToMinorUnits(decimal.NewFromInt(500)))
	assert.Equal(t, int64(49950), payment.ToMinorUnits(decimal.RequireFromString("499.50")))
	assert.Equal(t, int64(1), payment.ToMinorUnits(decimal.RequireFromString("0.005")))
}

func TestRazorpay_CreateOrder(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "rzp_key", user)
		assert.Equal(t, "rzp_secret", pass)
		assert.Equal(t, "/orders", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"order_abc","amount":50000,"currency":"INR","status":"created"}`)
	}))
	defer srv.Close()

	gw := payment.NewRazorpayGateway("rzp_key", "rzp_secret", srv.URL+"/", srv.Client())
	order, err := gw.CreateOrder(context.Background(), payment.OrderRequest{
		Amount:   decimal.NewFromInt(500),
		Currency: "INR",
		Receipt:  "booking_7",
		Notes:    map[string]string{"booking_id": "7"},
	})
	require.NoError(t, err)

	assert.Equal(t, "order_abc", order.ID)
	assert.Equal(t, int64(50000), order.AmountMinor)
	assert.EqualValues(t, 50000, got["amount"])
	assert.Equal(t, "booking_7", got["receipt"])
	assert.Equal(t, "rzp_key", gw.PublicKey())
}

func TestRazorpay_CreateOrderSurfacesProviderMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":{"code":"BAD_REQUEST_ERROR","description":"Authentication failed"}}`)
	}))
	defer srv.Close()

	gw := payment.NewRazorpayGateway("k", "s", srv.URL, srv.Client())
	_, err := gw.CreateOrder(context.Background(), payment.OrderRequest{Amount: decimal.NewFromInt(1), Currency: "INR"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Authentication failed")
}

func TestRazorpay_CreateOrderHonoursContext(t *testing.T) {
	unblock := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		select {
		case <-unblock:
		case <-r.Context().Done():
		}
	}))
	defer func() {
		close(unblock)
		srv.CloseClientConnections()
		srv.Close()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	gw := payment.NewRazorpayGateway("k", "s", srv.URL, srv.Client())
	_, err := gw.CreateOrder(ctx, payment.OrderRequest{Amount: decimal.NewFromInt(1), Currency: "INR"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRazorpay_VerifySignature(t *testing.T) {
	gw := payment.NewRazorpayGateway("k", "secret", "http://unused", nil)
	ctx := context.Background()

	sig := payment.Sign("secret", "order_1", "pay_1")

	ok, err := gw.VerifySignature(ctx, "order_1", "pay_1", sig)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, _ = gw.VerifySignature(ctx, "order_1", "pay_2", sig)
	assert.False(t, ok, "signature is bound to the payment id")

	ok, _ = gw.VerifySignature(ctx, "order_1", "pay_1", payment.Sign("other", "order_1", "pay_1"))
	assert.False(t, ok)

	ok, _ = gw.VerifySignature(ctx, "order_1", "pay_1", "")
	assert.False(t, ok)
}

func stripeServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/v1/payment_intents":
			require.NoError(t, r.ParseForm())
			assert.Equal(t, "50000", r.PostForm.Get("amount"))
			assert.Equal(t, "inr", r.PostForm.Get("currency"))
			assert.Equal(t, "7", r.PostForm.Get("metadata[booking_id]"))
			fmt.Fprint(w, `{"id":"pi_1","object":"payment_intent","amount":50000,"currency":"inr","status":"requires_payment_method","client_secret":"pi_1_secret_abc"}`)
		case r.Method == http.MethodGet && r.URL.Path == "/v1/payment_intents/pi_1":
			fmt.Fprint(w, `{"id":"pi_1","object":"payment_intent","amount":50000,"currency":"inr","status":"succeeded","client_secret":"pi_1_secret_abc","latest_charge":"ch_1"}`)
		case r.Method == http.MethodGet && r.URL.Path == "/v1/payment_intents/pi_2":
			fmt.Fprint(w, `{"id":"pi_2","object":"payment_intent","amount":50000,"currency":"inr","status":"processing","client_secret":"pi_2_secret_abc","latest_charge":"ch_2"}`)
		default:
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"error":{"type":"invalid_request_error","message":"No such payment_intent"}}`)
		}
	}))
}

func TestStripe_CreateOrderAndVerify(t *testing.T) {
	srv := stripeServer(t)
	defer srv.Close()

	gw := payment.NewStripeGateway("sk_test", "pk_test", "", srv.Client(), srv.URL)
	ctx := context.Background()

	order, err := gw.CreateOrder(ctx, payment.OrderRequest{
		Amount:   decimal.NewFromInt(500),
		Currency: "INR",
		Notes:    map[string]string{"booking_id": "7"},
	})
	require.NoError(t, err)
	assert.Equal(t, "pi_1", order.ID)
	assert.Equal(t, "pi_1_secret_abc", order.ClientSecret)
	assert.Equal(t, "pk_test", gw.PublicKey())

	ok, err := gw.VerifySignature(ctx, "pi_1", "ch_1", "pi_1_secret_abc")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = gw.VerifySignature(ctx, "pi_1", "ch_9", "pi_1_secret_abc")
	require.NoError(t, err)
	assert.False(t, ok, "charge must belong to the intent")

	ok, err = gw.VerifySignature(ctx, "pi_1", "ch_1", "wrong")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = gw.VerifySignature(ctx, "pi_2", "ch_2", "pi_2_secret_abc")
	require.NoError(t, err)
	assert.False(t, ok, "intent has not succeeded yet")

	_, err = gw.VerifySignature(ctx, "pi_missing", "ch_1", "x")
	assert.Error(t, err)
}

func TestStripe_ParseWebhook(t *testing.T) {
	gw := payment.NewStripeGateway("sk_test", "pk_test", "whsec_test", nil, "")

	body := []byte(`{
		"id": "evt_1",
		"object": "event",
		"type": "payment_intent.succeeded",
		"api_version": "2020-08-27",
		"data": {"object": {"id": "pi_1", "object": "payment_intent", "status": "succeeded",
			"latest_charge": "ch_1", "metadata": {"booking_id": "7"}}}
	}`)
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   body,
		Secret:    "whsec_test",
		Timestamp: time.Now(),
	})

	evt, err := gw.ParseWebhook(signed.Payload, signed.Header)
	require.NoError(t, err)
	assert.Equal(t, "payment_intent.succeeded", evt.Type)
	assert.Equal(t, "pi_1", evt.IntentID)
	assert.Equal(t, "ch_1", evt.ChargeID)
	assert.Equal(t, "7", evt.Metadata["booking_id"])
	assert.True(t, evt.Succeeded)

	_, err = gw.ParseWebhook(body, "t=1,v1=deadbeef")
	var whErr *payment.WebhookError
	require.ErrorAs(t, err, &whErr)
	assert.Equal(t, http.StatusBadRequest, whErr.StatusCode)
}

func TestNewGateway(t *testing.T) {
	gw, err := payment.NewGateway(config.PaymentConfig{Provider: "razorpay", RazorpayKeyID: "k"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "razorpay", gw.Name())

	gw, err = payment.NewGateway(config.PaymentConfig{Provider: "stripe"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "stripe", gw.Name())

	_, err = payment.NewGateway(config.PaymentConfig{Provider: "paypal"}, nil)
	assert.Error(t, err)
}
