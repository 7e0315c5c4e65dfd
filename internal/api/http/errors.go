package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"toolshare-backend/internal/domain"
	"toolshare-backend/internal/logger"
)

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// statusFor maps a business kind to its HTTP status. Anything that is not
// a business error is a 500.
func statusFor(err error) (int, string) {
	kind, ok := domain.KindOf(err)
	if !ok {
		return http.StatusInternalServerError, "INTERNAL"
	}
	switch kind {
	case domain.KindInvalidInput:
		return http.StatusBadRequest, string(kind)
	case domain.KindNotAuthorized, domain.KindSelfBorrowNotAllowed, domain.KindSelfVerification:
		return http.StatusForbidden, string(kind)
	case domain.KindNotFound:
		return http.StatusNotFound, string(kind)
	case domain.KindInvalidTransition, domain.KindConflict, domain.KindToolUnavailable,
		domain.KindAlreadyRated, domain.KindAlreadyHeld, domain.KindAlreadySettled:
		return http.StatusConflict, string(kind)
	case domain.KindExpired:
		return http.StatusGone, string(kind)
	case domain.KindMismatch, domain.KindNoActiveCode, domain.KindTooManyAttempts:
		return http.StatusUnprocessableEntity, string(kind)
	case domain.KindPaymentProvider:
		return http.StatusBadGateway, string(kind)
	}
	return http.StatusInternalServerError, "INTERNAL"
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	msg := "internal error"
	var de *domain.Error
	if errors.As(err, &de) {
		msg = de.Message
		if msg == "" {
			msg = string(de.Kind)
		}
	} else {
		logger.FromContext(r.Context()).Error("Request failed", "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, errorBody{Error: code, Message: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func badRequest(w http.ResponseWriter, r *http.Request, msg string) {
	writeError(w, r, domain.NewError(domain.KindInvalidInput, "%s", msg))
}
