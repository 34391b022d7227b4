package server

import (
	"net/http"
	"strings"

	"github.com/jrsteele09/betul-abla-portal/gate"
	"github.com/jrsteele09/betul-abla-portal/identity"
	"github.com/jrsteele09/betul-abla-portal/internal/errors"
	"github.com/jrsteele09/betul-abla-portal/session"
	"github.com/rs/zerolog/log"
)

const msgInvalidCredentials = "Invalid username or password"

// LoginPageData contains data for rendering the login page
type LoginPageData struct {
	Username string // Preserve username on error
	Next     string
}

// LoginPageHandler displays the login page (GET /login)
func (s *Server) LoginPageHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m := managerFrom(r.Context())
		next := r.URL.Query().Get("next")

		state, id := m.Snapshot()
		if state == session.StateAuthenticated && id != nil {
			http.Redirect(w, r, gate.SafeNext(next, identity.Home(id.Role)), http.StatusSeeOther)
			return
		}

		noStore(w)
		s.render(w, http.StatusOK, "login.html", s.page(w, r, "Sign in", LoginPageData{Next: next}))
	}
}

// LoginSubmissionHandler processes the login form submission (POST /login)
func (s *Server) LoginSubmissionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "Invalid form data", http.StatusBadRequest)
			return
		}

		username := strings.TrimSpace(r.FormValue("username"))
		password := r.FormValue("password")
		data := LoginPageData{Username: username, Next: r.FormValue("next")}

		m := managerFrom(r.Context())
		if err := m.SignIn(r.Context(), username, password); err != nil {
			page := s.page(w, r, "Sign in", data)
			status := http.StatusUnauthorized
			page.Error = msgInvalidCredentials
			if !errors.Is(err, errors.ErrInvalidCredentials) {
				log.Err(err).Str("user", username).Msg("sign in failed")
				status = http.StatusBadGateway
				page.Error = msgGenericFailure
			}
			noStore(w)
			s.render(w, status, "login.html", page)
			return
		}

		_, id := m.Snapshot()
		home := RouteStaffHome
		if id != nil {
			home = identity.Home(id.Role)
		}
		http.Redirect(w, r, gate.SafeNext(data.Next, home), http.StatusSeeOther)
	}
}

// LogoutHandler ends the browser session locally and returns to the login page
func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := r.Cookie(sessionCookieName)
		if err != nil || c.Value == "" {
			http.Redirect(w, r, RouteLogin, http.StatusSeeOther)
			return
		}

		if err := s.sessions.SignOut(r.Context(), c.Value); err != nil {
			log.Err(err).Msg("Failed to clear credentials on logout")
		}
		s.clearSessionCookie(w, r)
		successRedirect(w, r, RouteLogin, "You have been signed out")
	}
}
