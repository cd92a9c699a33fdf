// Package api exposes the booking services over HTTP.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"ms-booking/internal/analytics"
	"ms-booking/internal/auth"
	"ms-booking/internal/booking"
	"ms-booking/internal/checkin"
	"ms-booking/internal/logger"
	"ms-booking/internal/slots"
	"ms-booking/internal/utils"
)

type Pinger interface {
	PingContext(ctx context.Context) error
}

type Handler struct {
	Catalog   *slots.Catalog
	Generator *slots.Generator
	Ledger    *booking.Ledger
	Payments  *booking.PaymentService
	CheckIn   *checkin.Engine
	Analytics *analytics.Service
	DB        Pinger
	Logger    *logger.Logger
}

// NewRouter wires every route. Authenticated routes go through verifier.
func NewRouter(h *Handler, verifier auth.Verifier) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(h.requestLogger)

	r.Get("/health", h.Health)

	r.Route("/api", func(r chi.Router) {
		// --- Public Routes ---
		r.Get("/sports", h.ListSports)
		r.Get("/sports/{sportId}/available-slots", h.AvailableSlots)
		r.Get("/slots", h.ListSlots)
		r.Post("/payments/stripe/webhook", h.StripeWebhook)

		// --- Protected Routes ---
		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware(verifier, h.Logger))

			r.Route("/bookings", func(r chi.Router) {
				r.Post("/", h.CreateBooking)
				r.Get("/", h.ListBookings)
				r.Get("/{bookingId}", h.GetBooking)
				r.Post("/{bookingId}/cancel", h.CancelBooking)
				r.Get("/{bookingId}/players", h.ListPlayers)
				r.Post("/{bookingId}/players", h.AddPlayers)
				r.Get("/{bookingId}/passes.pdf", h.BookingPasses)
			})

			r.Post("/payments/create-order", h.CreateOrder)
			r.Post("/payments/verify", h.VerifyPayment)

			r.Get("/players/{playerId}/qr", h.PlayerQR)
			r.Get("/players/{playerId}/qr-data", h.PlayerQRData)
			r.Get("/players/{playerId}/logs", h.PlayerLogs)
			r.With(auth.RequireStaff).Post("/players/scan", h.Scan)

			r.Route("/admin", func(r chi.Router) {
				r.Use(auth.RequireStaff)
				r.Post("/sports", h.CreateSport)
				r.Put("/sports/{sportId}/configuration", h.SetConfiguration)
				r.Post("/sports/{sportId}/breaks", h.AddBreak)
				r.Get("/sports/{sportId}/blackouts", h.ListBlackouts)
				r.Post("/sports/{sportId}/blackouts", h.AddBlackout)
				r.Delete("/blackouts/{blackoutId}", h.DisableBlackout)
				r.Post("/slots/generate", h.GenerateSlots)
				r.Delete("/slots", h.ClearSlots)
				r.Get("/dashboard", h.Dashboard)
			})
		})
	})

	return otelhttp.NewHandler(r, "ms-booking",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
}

func (h *Handler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = utils.GenerateRequestID()
		}
		w.Header().Set("X-Request-ID", reqID)

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		h.Logger.LogAPI(r.Method, r.URL.Path, fmt.Sprintf("%d", status), time.Since(start).String())
	})
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if h.DB != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.DB.PingContext(ctx); err != nil {
			utils.WriteJSON(w, http.StatusServiceUnavailable, utils.ErrorResponse("database unavailable", err.Error(), "unhealthy"))
			return
		}
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("ok", nil))
}
