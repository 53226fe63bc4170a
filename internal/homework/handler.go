package homework

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-ilearn-go/internal/authz"
	"github.com/ovaphlow/pitchfork/service-ilearn-go/pkg/utilities"
)

// Handler contains dependencies for handling homework endpoints.
type Handler struct {
	svc    *Service
	logger *zap.SugaredLogger
}

func NewHandler(svc *Service, logger *zap.SugaredLogger) *Handler {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Handler{svc: svc, logger: logger}
}

// List handles GET /homework/{uid}?type=0|1. type defaults to 0.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	kind := ListPending
	if v := r.URL.Query().Get("type"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			utilities.WriteError(w, http.StatusBadRequest, "invalid type")
			return
		}
		kind = n
	}
	items, err := h.svc.List(r.Context(), chi.URLParam(r, "uid"), kind)
	if err != nil {
		h.writeErr(w, "list homework failed", err)
		return
	}
	utilities.WriteJSON(w, http.StatusOK, items)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var in CreateInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		utilities.WriteError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	p, _ := authz.PrincipalFromContext(r.Context())
	hw, err := h.svc.Create(r.Context(), p.UID, in)
	if err != nil {
		h.writeErr(w, "create homework failed", err)
		return
	}
	utilities.WriteJSON(w, http.StatusCreated, hw)
}

// ConfirmRequest names the student whose submission is confirmed.
type ConfirmRequest struct {
	UID    string `json:"uid"`
	Status int    `json:"status"`
}

func (h *Handler) Confirm(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		utilities.WriteError(w, http.StatusBadRequest, "invalid id")
		return
	}
	var req ConfirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utilities.WriteError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if err := h.svc.Confirm(r.Context(), id, req.UID, req.Status); err != nil {
		h.writeErr(w, "confirm homework failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeErr(w http.ResponseWriter, msg string, err error) {
	switch {
	case errors.Is(err, ErrInvalidInput):
		utilities.WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNotFound):
		utilities.WriteError(w, http.StatusNotFound, "not found")
	default:
		h.logger.Errorw(msg, "err", err)
		utilities.WriteError(w, http.StatusInternalServerError, msg)
	}
}
