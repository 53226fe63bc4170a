package user

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-ilearn-go/internal/authz"
	"github.com/ovaphlow/pitchfork/service-ilearn-go/internal/token"
	userrepo "github.com/ovaphlow/pitchfork/service-ilearn-go/internal/user/repo"
	"github.com/ovaphlow/pitchfork/service-ilearn-go/pkg/utilities"
)

// HandlerConfig holds transport settings for the auth and user endpoints.
type HandlerConfig struct {
	CookieSecure bool
	// PFPDir holds profile pictures named <uid>.jpg.
	PFPDir string
}

// Handler exposes HTTP endpoints for auth and user profile operations.
type Handler struct {
	svc    *Service
	cfg    HandlerConfig
	logger *zap.SugaredLogger
}

func NewHandler(svc *Service, cfg HandlerConfig, logger *zap.SugaredLogger) *Handler {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Handler{svc: svc, cfg: cfg, logger: logger}
}

// LoginRequest login payload.
type LoginRequest struct {
	UID      string `json:"uid"`
	Password string `json:"password"`
}

// TokenResponse is returned by login and refresh. RefreshToken is omitted on
// refresh since the refresh token is not rotated.
type TokenResponse struct {
	AccessToken      string `json:"access_token"`
	RefreshToken     string `json:"refresh_token,omitempty"`
	TokenType        string `json:"token_type"`
	ExpiresIn        int64  `json:"expires_in"`
	RefreshExpiresIn int64  `json:"refresh_expires_in,omitempty"`
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Debugw("invalid login payload", "err", err)
		utilities.WriteError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	pair, err := h.svc.Login(r.Context(), req.UID, req.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			utilities.WriteError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		h.logger.Errorw("login failed", "err", err)
		utilities.WriteError(w, http.StatusInternalServerError, "login failed")
		return
	}
	h.setCookie(w, authz.AccessCookie, pair.Access)
	h.setCookie(w, authz.RefreshCookie, pair.Refresh)
	utilities.WriteJSON(w, http.StatusOK, TokenResponse{
		AccessToken:      pair.Access.Token,
		RefreshToken:     pair.Refresh.Token,
		TokenType:        "Bearer",
		ExpiresIn:        int64(pair.Access.TTL / time.Second),
		RefreshExpiresIn: int64(pair.Refresh.TTL / time.Second),
	})
}

// RefreshRequest optional body for clients that do not keep cookies.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	raw := authz.TokenFromRequest(r, authz.RefreshCookie)
	if raw == "" && r.Body != nil && r.ContentLength != 0 {
		var req RefreshRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err == nil {
			raw = req.RefreshToken
		}
	}
	issued, err := h.svc.Refresh(raw)
	if err != nil {
		if errors.Is(err, authz.ErrUnauthorized) {
			authz.WriteDecision(w, err)
			return
		}
		h.logger.Errorw("refresh failed", "err", err)
		utilities.WriteError(w, http.StatusInternalServerError, "refresh failed")
		return
	}
	h.setCookie(w, authz.AccessCookie, issued)
	utilities.WriteJSON(w, http.StatusOK, TokenResponse{
		AccessToken: issued.Token,
		TokenType:   "Bearer",
		ExpiresIn:   int64(issued.TTL / time.Second),
	})
}

// Logout clears both cookies. Tokens already handed out stay valid until
// they expire.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	for _, name := range []string{authz.AccessCookie, authz.RefreshCookie} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   h.cfg.CookieSecure,
			SameSite: http.SameSiteStrictMode,
		})
	}
	w.WriteHeader(http.StatusNoContent)
}

// IntrospectRequest form of RFC 7662 without client authentication.
type IntrospectRequest struct {
	Token string `json:"token"`
}

func (h *Handler) Introspect(w http.ResponseWriter, r *http.Request) {
	var req IntrospectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utilities.WriteError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	utilities.WriteJSON(w, http.StatusOK, h.svc.Introspect(req.Token))
}

// RegisterRequest payload for admin registration.
type RegisterRequest struct {
	UID      string `json:"uid"`
	Password string `json:"password"`
	Role     int    `json:"role"`
	ChiName  string `json:"chi_name"`
	EngName  string `json:"eng_name"`
	Email    string `json:"email"`
	Form     int    `json:"form"`
	Class    string `json:"class"`
	ClassNo  int    `json:"class_no"`
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Debugw("invalid register payload", "err", err)
		utilities.WriteError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	err := h.svc.Register(r.Context(), RegisterInput(req))
	switch {
	case err == nil:
		if p, ok := authz.PrincipalFromContext(r.Context()); ok {
			h.logger.Infow("identity registered", "uid", req.UID, "role", req.Role, "by", p.UID)
		}
		utilities.WriteJSON(w, http.StatusCreated, map[string]string{"uid": req.UID})
	case errors.Is(err, ErrInvalidInput):
		utilities.WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, userrepo.ErrDuplicate):
		utilities.WriteError(w, http.StatusConflict, "uid already exists")
	default:
		h.logger.Errorw("register failed", "uid", req.UID, "err", err)
		utilities.WriteError(w, http.StatusInternalServerError, "register failed")
	}
}

// ProfileResponse is the profile with the name chosen by ?lang=.
type ProfileResponse struct {
	UID     string `json:"uid"`
	Name    string `json:"name"`
	ChiName string `json:"chi_name"`
	EngName string `json:"eng_name"`
	Email   string `json:"email"`
	Form    int    `json:"form"`
	Class   string `json:"class"`
	ClassNo int    `json:"class_no"`
	Role    int    `json:"role"`
}

func (h *Handler) Profile(w http.ResponseWriter, r *http.Request) {
	uid := chi.URLParam(r, "uid")
	p, err := h.svc.Profile(r.Context(), uid)
	if err != nil {
		if errors.Is(err, userrepo.ErrNotFound) {
			utilities.WriteError(w, http.StatusNotFound, "not found")
			return
		}
		h.logger.Errorw("get profile failed", "uid", uid, "err", err)
		utilities.WriteError(w, http.StatusInternalServerError, "get profile failed")
		return
	}
	utilities.WriteJSON(w, http.StatusOK, ProfileResponse{
		UID:     p.UID,
		Name:    p.DisplayName(r.URL.Query().Get("lang")),
		ChiName: p.ChiName,
		EngName: p.EngName,
		Email:   p.Email,
		Form:    p.Form,
		Class:   p.ClassName(),
		ClassNo: p.ClassNo,
		Role:    p.Role,
	})
}

// ProfilePicture serves <PFPDir>/<uid>.jpg.
func (h *Handler) ProfilePicture(w http.ResponseWriter, r *http.Request) {
	name := filepath.Base(chi.URLParam(r, "uid"))
	if h.cfg.PFPDir == "" || name == "." || name == string(filepath.Separator) {
		utilities.WriteError(w, http.StatusNotFound, "not found")
		return
	}
	path := filepath.Join(h.cfg.PFPDir, name+".jpg")
	if fi, err := os.Stat(path); err != nil || fi.IsDir() {
		utilities.WriteError(w, http.StatusNotFound, "not found")
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	http.ServeFile(w, r, path)
}

func (h *Handler) setCookie(w http.ResponseWriter, name string, t token.Issued) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    t.Token,
		Path:     "/",
		Expires:  t.ExpiresAt,
		MaxAge:   int(t.TTL / time.Second),
		HttpOnly: true,
		Secure:   h.cfg.CookieSecure,
		SameSite: http.SameSiteStrictMode,
	})
}
