package http

import (
	"net/http"

	"toolshare-backend/internal/domain"
)

type verifyRequest struct {
	Code string `json:"code"`
}

type codeResponse struct {
	*domain.CodeView
	RemainingText string `json:"remaining_text"`
}

func (h *Handler) GenerateCode(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	typ, err := handoverType(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	v, err := h.engine.Handover.Generate(r.Context(), id, typ, actor(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, codeResponse{CodeView: v, RemainingText: duration(v.Remaining)})
}

func (h *Handler) VerifyCode(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	typ, err := handoverType(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req verifyRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.engine.Handover.Verify(r.Context(), id, typ, req.Code, actor(r)); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"verified": true})
}

func (h *Handler) HandoverStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	typ, err := handoverType(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	v, err := h.engine.Handover.Status(r.Context(), id, typ, actor(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, codeResponse{CodeView: v, RemainingText: duration(v.Remaining)})
}
