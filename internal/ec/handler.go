package ec

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-ilearn-go/internal/authz"
	"github.com/ovaphlow/pitchfork/service-ilearn-go/pkg/utilities"
)

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

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	ecs, err := h.svc.List(r.Context())
	if err != nil {
		h.logger.Errorw("list ec failed", "err", err)
		utilities.WriteError(w, http.StatusInternalServerError, "list ec failed")
		return
	}
	utilities.WriteJSON(w, http.StatusOK, ecs)
}

// JoinRequest lists the activity ids to join.
type JoinRequest struct {
	ECIDs []int64 `json:"ec_ids"`
}

// Join enrols the caller; the uid always comes from the access token.
func (h *Handler) Join(w http.ResponseWriter, r *http.Request) {
	p, ok := authz.PrincipalFromContext(r.Context())
	if !ok {
		authz.WriteDecision(w, authz.ErrUnauthorized)
		return
	}
	var req JoinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utilities.WriteError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	n, err := h.svc.Join(r.Context(), p.UID, req.ECIDs)
	switch {
	case err == nil:
		utilities.WriteJSON(w, http.StatusOK, map[string]int{"joined": n})
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrNoneJoined):
		utilities.WriteError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Errorw("join ec failed", "uid", p.UID, "err", err)
		utilities.WriteError(w, http.StatusInternalServerError, "could not join selected ec")
	}
}

// Attendance handles GET /ec/attendance/{uid}.
func (h *Handler) Attendance(w http.ResponseWriter, r *http.Request) {
	uid := chi.URLParam(r, "uid")
	ecs, err := h.svc.Attendance(r.Context(), uid)
	if err != nil {
		h.logger.Errorw("list attendance failed", "uid", uid, "err", err)
		utilities.WriteError(w, http.StatusInternalServerError, "list attendance failed")
		return
	}
	utilities.WriteJSON(w, http.StatusOK, ecs)
}
