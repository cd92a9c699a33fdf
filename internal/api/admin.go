package api

import (
	"net/http"

	"ms-booking/internal/auth"
	"ms-booking/internal/models"
)

func (h *Handler) CreateSport(w http.ResponseWriter, r *http.Request) {
	var req models.SportRequest
	if err := decode(r, &req, false); err != nil {
		h.fail(w, r, err)
		return
	}
	sport, err := h.Catalog.CreateSport(r.Context(), auth.ActorFrom(r.Context()), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ok(w, http.StatusCreated, "sport created", sport)
}

func (h *Handler) SetConfiguration(w http.ResponseWriter, r *http.Request) {
	sportID, err := pathID(r, "sportId")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req models.ConfigurationRequest
	if err := decode(r, &req, false); err != nil {
		h.fail(w, r, err)
		return
	}
	cfg, err := h.Catalog.SetConfiguration(r.Context(), auth.ActorFrom(r.Context()), sportID, req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ok(w, http.StatusOK, "configuration saved", cfg)
}

func (h *Handler) AddBreak(w http.ResponseWriter, r *http.Request) {
	sportID, err := pathID(r, "sportId")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req models.BreakRequest
	if err := decode(r, &req, false); err != nil {
		h.fail(w, r, err)
		return
	}
	b, err := h.Catalog.AddBreak(r.Context(), auth.ActorFrom(r.Context()), sportID, req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ok(w, http.StatusCreated, "break added", b)
}

func (h *Handler) ListBlackouts(w http.ResponseWriter, r *http.Request) {
	sportID, err := pathID(r, "sportId")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	blackouts, err := h.Catalog.ListBlackouts(r.Context(), sportID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ok(w, http.StatusOK, "blackout dates retrieved", blackouts)
}

func (h *Handler) AddBlackout(w http.ResponseWriter, r *http.Request) {
	sportID, err := pathID(r, "sportId")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req models.BlackoutRequest
	if err := decode(r, &req, false); err != nil {
		h.fail(w, r, err)
		return
	}
	b, err := h.Catalog.AddBlackout(r.Context(), auth.ActorFrom(r.Context()), sportID, req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ok(w, http.StatusCreated, "blackout date added", b)
}

// DisableBlackout soft-disables the blackout; the row is kept.
func (h *Handler) DisableBlackout(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "blackoutId")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.Catalog.DisableBlackout(r.Context(), auth.ActorFrom(r.Context()), id); err != nil {
		h.fail(w, r, err)
		return
	}
	ok(w, http.StatusOK, "blackout date disabled", nil)
}

func (h *Handler) GenerateSlots(w http.ResponseWriter, r *http.Request) {
	var req models.GenerateRequest
	if err := decode(r, &req, false); err != nil {
		h.fail(w, r, err)
		return
	}
	res, err := h.Generator.Generate(r.Context(), auth.ActorFrom(r.Context()), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ok(w, http.StatusCreated, "slots generated", res)
}

func (h *Handler) ClearSlots(w http.ResponseWriter, r *http.Request) {
	sportID, err := queryID(r, "sport", true)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	q := r.URL.Query()
	n, err := h.Generator.ClearRange(r.Context(), auth.ActorFrom(r.Context()), sportID, q.Get("start"), q.Get("end"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ok(w, http.StatusOK, "slots cleared", map[string]int{"deleted_count": n})
}

func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	d, err := h.Analytics.Dashboard(r.Context(), auth.ActorFrom(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ok(w, http.StatusOK, "dashboard retrieved", d)
}
