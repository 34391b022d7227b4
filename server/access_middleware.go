package server

import (
	"context"
	"net/http"

	"github.com/jrsteele09/betul-abla-portal/gate"
	"github.com/jrsteele09/betul-abla-portal/internal/metrics"
	"github.com/jrsteele09/betul-abla-portal/session"
	"github.com/rs/zerolog/log"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

const (
	// ContextKeySession stores the browser session's manager
	ContextKeySession ContextKey = "session"
)

func managerFrom(ctx context.Context) *session.Manager {
	m, _ := ctx.Value(ContextKeySession).(*session.Manager)
	return m
}

// BrowserSession attaches the browser's session manager to the request,
// issuing a session cookie when the browser has none.
func (s *Server) BrowserSession(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var current string
		if c, err := r.Cookie(sessionCookieName); err == nil {
			current = c.Value
		}

		m, id, err := s.sessions.Open(current)
		if err != nil {
			log.Err(err).Msg("Failed to open browser session")
			http.Error(w, "500 - Internal Server Error", http.StatusInternalServerError)
			return
		}
		if id != current {
			s.setSessionCookie(w, r, id)
		}

		next(w, r.WithContext(context.WithValue(r.Context(), ContextKeySession, m)))
	}
}

// RequireAccess gates an HTML route on the access policy for dest.
// It must run after BrowserSession.
func (s *Server) RequireAccess(dest string) Middleware {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			m := managerFrom(r.Context())
			decision := s.policy.Evaluate(gate.SnapshotOf(m), dest)
			metrics.RecordDecision(decision.Outcome.String())

			switch decision.Outcome {
			case gate.Allow:
				noStore(w)
				next(w, r)
			case gate.Loading:
				noStore(w)
				w.Header().Set("Retry-After", "1")
				s.render(w, http.StatusOK, "loading.html", s.page(w, r, "Verifying access", r.URL.RequestURI()))
			case gate.Deactivated:
				noStore(w)
				s.render(w, http.StatusForbidden, "deactivated.html", s.page(w, r, "Account deactivated", nil))
			case gate.RedirectLogin:
				location := decision.Location
				if r.Method == http.MethodGet {
					location = gate.LoginLocation(r.URL.RequestURI())
				}
				http.Redirect(w, r, location, http.StatusSeeOther)
			default:
				http.Redirect(w, r, decision.Location, http.StatusSeeOther)
			}
		}
	}
}

// RequireAPIAccess is RequireAccess for JSON routes: denials are status codes,
// never redirects.
func (s *Server) RequireAPIAccess(dest string) Middleware {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			m := managerFrom(r.Context())
			decision := s.policy.Evaluate(gate.SnapshotOf(m), dest)
			metrics.RecordDecision(decision.Outcome.String())

			switch decision.Outcome {
			case gate.Allow:
				next(w, r)
			case gate.Loading:
				w.Header().Set("Retry-After", "1")
				writeJSONError(w, http.StatusServiceUnavailable, "session_restoring", "session is being verified, retry shortly")
			case gate.RedirectLogin:
				writeJSONError(w, http.StatusUnauthorized, "not_authenticated", "sign in required")
			case gate.Deactivated:
				writeJSONError(w, http.StatusForbidden, "account_deactivated", "this account has been deactivated")
			default:
				writeJSONError(w, http.StatusForbidden, "forbidden", "your role cannot access this resource")
			}
		}
	}
}
