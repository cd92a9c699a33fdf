package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"ms-booking/internal/apperrors"
	"ms-booking/internal/payment"
	"ms-booking/internal/utils"
)

const maxBodyBytes = 1 << 20

func statusFor(err error) int {
	switch apperrors.KindOf(err) {
	case apperrors.KindValidation:
		return http.StatusBadRequest
	case apperrors.KindConflict:
		return http.StatusConflict
	case apperrors.KindPermission:
		return http.StatusForbidden
	case apperrors.KindGateway:
		return http.StatusBadGateway
	case apperrors.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	var whErr *payment.WebhookError
	if errors.As(err, &whErr) {
		h.Logger.Warn("HTTP", fmt.Sprintf("%s %s: %v", r.Method, r.URL.Path, err))
		utils.WriteJSON(w, whErr.StatusCode, utils.ErrorResponse(whErr.PublicError, whErr.PublicError, "webhook_rejected"))
		return
	}

	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.Logger.Error("HTTP", fmt.Sprintf("%s %s: %v", r.Method, r.URL.Path, err))
		utils.WriteJSON(w, status, utils.ErrorResponse("internal server error", "internal server error", apperrors.CodeOf(err)))
		return
	}

	message := err.Error()
	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		message = appErr.Message
	}
	utils.WriteJSON(w, status, utils.ErrorResponse(message, err.Error(), apperrors.CodeOf(err)))
}

// decode reads a JSON body. An empty body leaves dst untouched when optional is set.
func decode(r *http.Request, dst any, optional bool) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return nil
		}
		return apperrors.Validation(apperrors.CodeInvalidInput, "invalid request body: "+err.Error())
	}
	return nil
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperrors.Validation(apperrors.CodeInvalidInput, "invalid "+name)
	}
	return id, nil
}

func queryID(r *http.Request, name string, required bool) (int64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		if required {
			return 0, apperrors.Validation(apperrors.CodeInvalidInput, name+" is required")
		}
		return 0, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, apperrors.Validation(apperrors.CodeInvalidInput, "invalid "+name)
	}
	return id, nil
}

func ok(w http.ResponseWriter, status int, message string, data any) {
	utils.WriteJSON(w, status, utils.SuccessResponse(message, data))
}
