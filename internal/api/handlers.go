package api

import (
	"io"
	"net/http"
	"strconv"

	"ms-booking/internal/apperrors"
	"ms-booking/internal/auth"
	"ms-booking/internal/models"
)

// ---------------- SLOTS ----------------

func (h *Handler) ListSports(w http.ResponseWriter, r *http.Request) {
	sports, err := h.Catalog.ListSports(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ok(w, http.StatusOK, "sports retrieved", sports)
}

func (h *Handler) AvailableSlots(w http.ResponseWriter, r *http.Request) {
	sportID, err := pathID(r, "sportId")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	slots, err := h.Ledger.AvailableSlots(r.Context(), sportID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ok(w, http.StatusOK, "available slots retrieved", slots)
}

func (h *Handler) ListSlots(w http.ResponseWriter, r *http.Request) {
	sportID, err := queryID(r, "sport", false)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	available, _ := strconv.ParseBool(r.URL.Query().Get("available"))

	slots, err := h.Ledger.ListSlots(r.Context(), models.SlotFilter{
		SportID:       sportID,
		Date:          r.URL.Query().Get("date"),
		AvailableOnly: available,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ok(w, http.StatusOK, "slots retrieved", slots)
}

// ---------------- BOOKINGS ----------------

func (h *Handler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SlotID int64 `json:"slot_id"`
	}
	if err := decode(r, &req, false); err != nil {
		h.fail(w, r, err)
		return
	}
	if req.SlotID <= 0 {
		h.fail(w, r, apperrors.Validation(apperrors.CodeInvalidInput, "slot_id is required"))
		return
	}

	b, err := h.Ledger.Reserve(r.Context(), auth.ActorFrom(r.Context()), req.SlotID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ok(w, http.StatusCreated, "slot reserved", b)
}

func (h *Handler) ListBookings(w http.ResponseWriter, r *http.Request) {
	bookings, err := h.Ledger.ListBookings(r.Context(), auth.ActorFrom(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ok(w, http.StatusOK, "bookings retrieved", bookings)
}

func (h *Handler) GetBooking(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "bookingId")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	b, err := h.Ledger.GetBooking(r.Context(), auth.ActorFrom(r.Context()), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ok(w, http.StatusOK, "booking retrieved", b)
}

func (h *Handler) CancelBooking(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "bookingId")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req struct {
		Reason string `json:"reason"`
	}
	if err := decode(r, &req, true); err != nil {
		h.fail(w, r, err)
		return
	}

	b, err := h.Ledger.Cancel(r.Context(), auth.ActorFrom(r.Context()), id, req.Reason)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ok(w, http.StatusOK, "booking cancelled", b)
}

func (h *Handler) ListPlayers(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "bookingId")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	players, err := h.Ledger.ListPlayers(r.Context(), auth.ActorFrom(r.Context()), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ok(w, http.StatusOK, "players retrieved", players)
}

func (h *Handler) AddPlayers(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "bookingId")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req struct {
		Players []models.PlayerInput `json:"players"`
	}
	if err := decode(r, &req, false); err != nil {
		h.fail(w, r, err)
		return
	}

	tickets, err := h.Ledger.AddPlayers(r.Context(), auth.ActorFrom(r.Context()), id, req.Players)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ok(w, http.StatusCreated, "players added", tickets)
}

func (h *Handler) BookingPasses(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "bookingId")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	pdf, err := h.Ledger.PassesPDF(r.Context(), auth.ActorFrom(r.Context()), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", "inline; filename=booking-"+strconv.FormatInt(id, 10)+"-passes.pdf")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pdf)
}

// ---------------- PAYMENTS ----------------

func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req models.CreateOrderRequest
	if err := decode(r, &req, false); err != nil {
		h.fail(w, r, err)
		return
	}
	order, err := h.Payments.CreateOrder(r.Context(), auth.ActorFrom(r.Context()), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ok(w, http.StatusCreated, "payment order created", order)
}

func (h *Handler) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	var req models.VerifyRequest
	if err := decode(r, &req, false); err != nil {
		h.fail(w, r, err)
		return
	}
	res, err := h.Payments.Verify(r.Context(), auth.ActorFrom(r.Context()), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	msg := "payment verified"
	if res.AlreadyVerified {
		msg = "payment already verified"
	}
	ok(w, http.StatusOK, msg, res)
}

func (h *Handler) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		h.fail(w, r, apperrors.Validation(apperrors.CodeInvalidInput, "could not read webhook body"))
		return
	}
	if err := h.Payments.HandleStripeWebhook(r.Context(), payload, r.Header.Get("Stripe-Signature")); err != nil {
		h.fail(w, r, err)
		return
	}
	ok(w, http.StatusOK, "webhook processed", nil)
}

// ---------------- CHECK-IN ----------------

func (h *Handler) PlayerQR(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "playerId")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	png, err := h.CheckIn.QRCode(r.Context(), auth.ActorFrom(r.Context()), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

func (h *Handler) PlayerQRData(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "playerId")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	payload, err := h.CheckIn.QRData(r.Context(), auth.ActorFrom(r.Context()), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ok(w, http.StatusOK, "qr data retrieved", payload)
}

func (h *Handler) PlayerLogs(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "playerId")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	logs, err := h.CheckIn.Logs(r.Context(), auth.ActorFrom(r.Context()), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ok(w, http.StatusOK, "check-in logs retrieved", logs)
}

func (h *Handler) Scan(w http.ResponseWriter, r *http.Request) {
	var req models.ScanRequest
	if err := decode(r, &req, false); err != nil {
		h.fail(w, r, err)
		return
	}
	res, err := h.CheckIn.Scan(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ok(w, http.StatusOK, res.Message, res)
}
