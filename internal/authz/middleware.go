package authz

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ovaphlow/pitchfork/service-ilearn-go/pkg/utilities"
)

const (
	AccessCookie  = "accessToken"
	RefreshCookie = "refreshToken"
)

// TokenFromRequest returns the named cookie, falling back to an
// Authorization: Bearer header.
func TokenFromRequest(r *http.Request, cookie string) string {
	if c, err := r.Cookie(cookie); err == nil && c.Value != "" {
		return c.Value
	}
	tok, _ := bearerToken(r.Header.Get("Authorization"))
	return tok
}

func bearerToken(value string) (string, bool) {
	const bearer = "bearer "
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}
	tok := strings.TrimSpace(value[len(bearer):])
	return tok, tok != ""
}

// RequireAccess rejects requests without a valid access token and stores the
// principal in the request context.
func (g *Gate) RequireAccess(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, err := g.Check(TokenFromRequest(r, AccessCookie), Requirement{})
		if err != nil {
			WriteDecision(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
	})
}

// RequireRole must be mounted after RequireAccess.
func RequireRole(min int) func(http.Handler) http.Handler {
	return require(func(*http.Request) Requirement { return Requirement{MinRole: min} })
}

// RequireOwner permits the request when the URL parameter param names the
// caller, or the caller holds an elevated role. Mount after RequireAccess.
func RequireOwner(param string) func(http.Handler) http.Handler {
	return require(func(r *http.Request) Requirement { return Requirement{Owner: chi.URLParam(r, param)} })
}

func require(reqFn func(*http.Request) Requirement) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFromContext(r.Context())
			if !ok {
				WriteDecision(w, ErrUnauthorized)
				return
			}
			if err := Authorize(p, reqFn(r)); err != nil {
				WriteDecision(w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WriteDecision maps a gate error to 401 or 403 without leaking the reason.
func WriteDecision(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrForbidden) {
		utilities.WriteError(w, http.StatusForbidden, "forbidden")
		return
	}
	utilities.WriteError(w, http.StatusUnauthorized, "unauthorized")
}
