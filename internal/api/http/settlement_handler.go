package http

import (
	"net/http"

	"toolshare-backend/internal/domain"
)

type forfeitRequest struct {
	AmountCents int32  `json:"amount_cents"`
	Reason      string `json:"reason"`
}

type rateUserRequest struct {
	TargetID int32  `json:"target_id"`
	Role     string `json:"role"`
	Score    int32  `json:"score"`
	Review   string `json:"review"`
}

type rateToolRequest struct {
	Score  int32  `json:"score"`
	Review string `json:"review"`
}

func (h *Handler) GetDeposit(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	d, err := h.engine.Deposits.Get(r.Context(), id, actor(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *Handler) ForfeitDeposit(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req forfeitRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	d, err := h.engine.Deposits.Forfeit(r.Context(), id, req.AmountCents, req.Reason, actor(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *Handler) RatingEligibility(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	e, err := h.engine.Ratings.Eligibility(r.Context(), id, actor(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (h *Handler) RateUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req rateUserRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	ur, err := h.engine.Ratings.RateUser(r.Context(), id, actor(r), req.TargetID, domain.RatingRole(req.Role), req.Score, req.Review)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ur)
}

func (h *Handler) RateTool(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req rateToolRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	tr, err := h.engine.Ratings.RateTool(r.Context(), id, actor(r), req.Score, req.Review)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, tr)
}

func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	p, size, err := page(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	items, total, err := h.notes.GetNotifications(r.Context(), actor(r), p, size)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newList(items, total))
}

func (h *Handler) MarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.notes.MarkAsRead(r.Context(), actor(r), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
