// Package http exposes the borrow lifecycle as a JSON API.
package http

import (
	"net/http"

	"toolshare-backend/internal/security"
	"toolshare-backend/internal/service"

	"github.com/gorilla/mux"
)

// Handler serves the lifecycle API for one engine.
type Handler struct {
	engine *service.Engine
	notes  service.NotificationService
}

func NewHandler(engine *service.Engine, notes service.NotificationService) *Handler {
	return &Handler{engine: engine, notes: notes}
}

// NewRouter registers every route. Everything under /api/v1 requires a
// bearer access token.
func NewRouter(h *Handler, tm security.TokenManager) *mux.Router {
	router := mux.NewRouter()
	router.Use(requestLogging)
	router.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)

	api := router.PathPrefix("/api/v1").Subrouter()
	api.Use(bearerAuth(tm))

	api.HandleFunc("/borrows", h.CreateBorrow).Methods(http.MethodPost)
	api.HandleFunc("/borrows", h.ListBorrows).Methods(http.MethodGet)
	api.HandleFunc("/borrows/{id:[0-9]+}", h.GetBorrow).Methods(http.MethodGet)
	api.HandleFunc("/borrows/{id:[0-9]+}/history", h.GetHistory).Methods(http.MethodGet)
	api.HandleFunc("/borrows/{id:[0-9]+}/approve", h.Approve).Methods(http.MethodPost)
	api.HandleFunc("/borrows/{id:[0-9]+}/deny", h.Deny).Methods(http.MethodPost)
	api.HandleFunc("/borrows/{id:[0-9]+}/cancel", h.Cancel).Methods(http.MethodPost)
	api.HandleFunc("/borrows/{id:[0-9]+}/pickup", h.CompletePickup).Methods(http.MethodPost)
	api.HandleFunc("/borrows/{id:[0-9]+}/return", h.CompleteReturn).Methods(http.MethodPost)
	api.HandleFunc("/borrows/{id:[0-9]+}/extend", h.Extend).Methods(http.MethodPost)

	api.HandleFunc("/borrows/{id:[0-9]+}/handover/{type}", h.HandoverStatus).Methods(http.MethodGet)
	api.HandleFunc("/borrows/{id:[0-9]+}/handover/{type}/code", h.GenerateCode).Methods(http.MethodPost)
	api.HandleFunc("/borrows/{id:[0-9]+}/handover/{type}/verify", h.VerifyCode).Methods(http.MethodPost)

	api.HandleFunc("/borrows/{id:[0-9]+}/deposit", h.GetDeposit).Methods(http.MethodGet)
	api.HandleFunc("/borrows/{id:[0-9]+}/deposit/forfeit", h.ForfeitDeposit).Methods(http.MethodPost)

	api.HandleFunc("/borrows/{id:[0-9]+}/ratings/eligibility", h.RatingEligibility).Methods(http.MethodGet)
	api.HandleFunc("/borrows/{id:[0-9]+}/ratings/user", h.RateUser).Methods(http.MethodPost)
	api.HandleFunc("/borrows/{id:[0-9]+}/ratings/tool", h.RateTool).Methods(http.MethodPost)

	api.HandleFunc("/tools/{id:[0-9]+}/commitments", h.ListCommitments).Methods(http.MethodGet)

	api.HandleFunc("/notifications", h.ListNotifications).Methods(http.MethodGet)
	api.HandleFunc("/notifications/{id:[0-9]+}/read", h.MarkNotificationRead).Methods(http.MethodPost)

	return router
}
