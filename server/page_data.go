package server

import (
	"net/http"

	"github.com/jrsteele09/betul-abla-portal/gate"
	"github.com/jrsteele09/betul-abla-portal/identity"
	"github.com/jrsteele09/betul-abla-portal/session"
)

// PageData is the model every template is rendered with
type PageData struct {
	AppName string
	Title   string
	User    *identity.Identity
	Nav     []NavLink
	Flash   *Flash
	Error   string
	Data    any
}

type NavLink struct {
	Label  string
	Path   string
	Active bool
}

var dashboardLinks = []NavLink{
	{Label: "Admin", Path: RouteAdminHome},
	{Label: "Coordinator", Path: RouteCoordinatorHome},
	{Label: "Staff", Path: RouteStaffHome},
	{Label: "Orphans", Path: RouteAdminOrphans},
	{Label: "Boreholes", Path: RouteAdminBoreholes},
	{Label: "Reports", Path: RouteAdminReports},
	{Label: "Users", Path: RouteAdminUsers},
	{Label: "Account", Path: RouteAccount},
}

// page builds the common page model for the request
func (s *Server) page(w http.ResponseWriter, r *http.Request, title string, data any) *PageData {
	p := &PageData{
		AppName: s.config.GetAppName(),
		Title:   title,
		Flash:   takeFlash(w, r),
		Data:    data,
	}

	m := managerFrom(r.Context())
	if m == nil {
		if c, err := r.Cookie(sessionCookieName); err == nil {
			m, _ = s.sessions.Get(c.Value)
		}
	}
	if m == nil {
		return p
	}

	snap := gate.SnapshotOf(m)
	if snap.State != session.StateAuthenticated || snap.Identity == nil {
		return p
	}
	p.User = snap.Identity
	for _, link := range dashboardLinks {
		if s.policy.Evaluate(snap, link.Path).Outcome == gate.Allow {
			link.Active = r.URL.Path == link.Path
			p.Nav = append(p.Nav, link)
		}
	}
	return p
}
