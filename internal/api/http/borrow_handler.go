package http

import (
	"net/http"

	"toolshare-backend/internal/domain"
)

type createBorrowRequest struct {
	ToolID        int32  `json:"tool_id"`
	DurationHours int32  `json:"duration_hours"`
	Notes         string `json:"notes"`
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

type extendRequest struct {
	ExtraHours int32  `json:"extra_hours"`
	Reason     string `json:"reason"`
}

type historyResponse struct {
	Changes    []domain.StatusChange    `json:"changes"`
	Extensions []domain.ExtensionRecord `json:"extensions"`
}

func (h *Handler) CreateBorrow(w http.ResponseWriter, r *http.Request) {
	var req createBorrowRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.ToolID <= 0 {
		badRequest(w, r, "tool_id is required")
		return
	}
	b, err := h.engine.Borrows.Create(r.Context(), req.ToolID, actor(r), req.DurationHours, req.Notes)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

// ListBorrows lists the caller's borrows; role=lender lists requests for
// the caller's tools instead.
func (h *Handler) ListBorrows(w http.ResponseWriter, r *http.Request) {
	p, size, err := page(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	status := r.URL.Query().Get("status")

	var items []domain.BorrowRequest
	var total int32
	switch r.URL.Query().Get("role") {
	case "", "borrower":
		items, total, err = h.engine.Borrows.ListForBorrower(r.Context(), actor(r), status, p, size)
	case "lender":
		items, total, err = h.engine.Borrows.ListForLender(r.Context(), actor(r), status, p, size)
	default:
		badRequest(w, r, "role must be borrower or lender")
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newList(items, total))
}

func (h *Handler) GetBorrow(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	b, err := h.engine.Borrows.Get(r.Context(), id, actor(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	changes, extensions, err := h.engine.Borrows.History(r.Context(), id, actor(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if changes == nil {
		changes = []domain.StatusChange{}
	}
	if extensions == nil {
		extensions = []domain.ExtensionRecord{}
	}
	writeJSON(w, http.StatusOK, historyResponse{Changes: changes, Extensions: extensions})
}

func (h *Handler) Approve(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	b, err := h.engine.Borrows.Approve(r.Context(), id, actor(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (h *Handler) Deny(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req reasonRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	b, err := h.engine.Borrows.Deny(r.Context(), id, actor(r), req.Reason)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req reasonRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	b, err := h.engine.Borrows.Cancel(r.Context(), id, actor(r), req.Reason)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (h *Handler) CompletePickup(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	b, err := h.engine.Borrows.CompletePickup(r.Context(), id, actor(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (h *Handler) CompleteReturn(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	b, err := h.engine.Borrows.CompleteReturn(r.Context(), id, actor(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (h *Handler) Extend(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req extendRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	b, err := h.engine.Borrows.Extend(r.Context(), id, req.ExtraHours, req.Reason, actor(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (h *Handler) ListCommitments(w http.ResponseWriter, r *http.Request) {
	toolID, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	from, err := queryTime(r, "from")
	if err != nil {
		writeError(w, r, err)
		return
	}
	to, err := queryTime(r, "to")
	if err != nil {
		writeError(w, r, err)
		return
	}
	items, err := h.engine.Availability.Commitments(r.Context(), toolID, from, to)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newList(items, int32(len(items))))
}
