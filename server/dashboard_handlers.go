package server

import (
	"net/http"

	"github.com/jrsteele09/betul-abla-portal/entities"
	"github.com/jrsteele09/betul-abla-portal/gate"
)

// DashboardData is the model of the role home pages
type DashboardData struct {
	Summary   *entities.Summary
	WithUsers bool
}

// DashboardHandler renders a role home with the collection statistics.
// withUsers adds the user counts for admins.
func (s *Server) DashboardHandler(title string, withUsers bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m := managerFrom(r.Context())
		data := DashboardData{WithUsers: withUsers}

		summary, err := entities.NewDirectory(m.Client()).Summarize(r.Context(), withUsers)
		if err != nil && sessionEnded(r, err) {
			setFlash(w, "error", msgSessionExpired)
			http.Redirect(w, r, gate.LoginLocation(r.URL.RequestURI()), http.StatusSeeOther)
			return
		}

		page := s.page(w, r, title, &data)
		if err != nil {
			page.Error = "Statistics are unavailable: " + userMessage(err)
		} else {
			data.Summary = &summary
		}
		s.render(w, http.StatusOK, "dashboard.html", page)
	}
}
