package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/YinkaFoster/fostertours-sub001/internal/core/domain"
	"github.com/go-chi/chi/v5"
)

type initiateRequest struct {
	ReceiverID domain.UserID `json:"receiver_id"`
	CallType   string        `json:"call_type"`
}

type callResponse struct {
	Call *domain.CallRecord `json:"call"`
}

type historyResponse struct {
	Calls []domain.HistoryEntry `json:"calls"`
}

func (h *Handler) InitiateCall(w http.ResponseWriter, r *http.Request) {
	var req initiateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fmt.Errorf("%w: %v", domain.ErrBadRequest, err))
		return
	}
	callType, err := domain.ParseCallType(req.CallType)
	if err != nil {
		writeError(w, err)
		return
	}
	rec, err := h.Records.Initiate(r.Context(), userFrom(r.Context()), req.ReceiverID, callType)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, callResponse{Call: rec})
}

func (h *Handler) AnswerCall(w http.ResponseWriter, r *http.Request) {
	h.updateCall(w, r, h.Records.Answer)
}

func (h *Handler) RejectCall(w http.ResponseWriter, r *http.Request) {
	h.updateCall(w, r, h.Records.Reject)
}

func (h *Handler) EndCall(w http.ResponseWriter, r *http.Request) {
	h.updateCall(w, r, h.Records.End)
}

type recordUpdate func(ctx context.Context, user domain.UserID, id domain.CallID) (*domain.CallRecord, error)

func (h *Handler) updateCall(w http.ResponseWriter, r *http.Request, fn recordUpdate) {
	id := domain.CallID(chi.URLParam(r, "callID"))
	rec, err := fn(r.Context(), userFrom(r.Context()), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, callResponse{Call: rec})
}

func (h *Handler) CallHistory(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, fmt.Errorf("%w: invalid limit %q", domain.ErrBadRequest, v))
			return
		}
		limit = n
	}
	entries, err := h.Records.History(r.Context(), userFrom(r.Context()), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, historyResponse{Calls: entries})
}
