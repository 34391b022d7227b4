package server

import (
	"context"
	"net/http"

	"github.com/jrsteele09/betul-abla-portal/entities"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) initRoutes() {
	// Public pages
	s.RegisterRouteHandler("GET /{$}", ChainMiddleware(s.IndexHandler(), s.HTMLMiddleWare()...))
	s.RegisterRouteHandler("GET "+RouteServices, ChainMiddleware(s.ServicesHandler(), s.HTMLMiddleWare()...))
	s.RegisterRouteHandler("GET "+RouteAbout, ChainMiddleware(s.AboutHandler(), s.HTMLMiddleWare()...))
	s.RegisterRouteHandler("GET "+RouteContact, ChainMiddleware(s.ContactPageHandler(), s.HTMLMiddleWare()...))
	s.RegisterRouteHandler("POST "+RouteContact, ChainMiddleware(s.ContactSubmissionHandler(), s.HTMLMiddleWare()...))

	// LOGIN
	s.RegisterRouteHandler("GET "+RouteLogin, ChainMiddleware(s.LoginPageHandler(), s.HTMLMiddleWare(s.BrowserSession)...))
	s.RegisterRouteHandler("POST "+RouteLogin, ChainMiddleware(s.LoginSubmissionHandler(), s.HTMLMiddleWare(s.BrowserSession)...))
	s.RegisterRouteHandler("GET "+RouteLogout, ChainMiddleware(s.LogoutHandler(), s.HTMLMiddleWare()...))
	s.RegisterRouteHandler("POST "+RouteLogout, ChainMiddleware(s.LogoutHandler(), s.HTMLMiddleWare()...))

	// Role homes
	s.protected("GET "+RouteAdminHome, RouteAdminHome, s.DashboardHandler("Administration", true))
	s.protected("GET "+RouteCoordinatorHome, RouteCoordinatorHome, s.DashboardHandler("Coordination", false))
	s.protected("GET "+RouteStaffHome, RouteStaffHome, s.DashboardHandler("Field staff", false))

	// Orphans
	s.protected("GET "+RouteAdminOrphans, RouteAdminOrphans, s.OrphansPageHandler())
	s.protected("POST "+RouteAdminOrphans, RouteAdminOrphans, s.OrphanCreateHandler())
	s.protected("POST "+RouteAdminOrphans+"/{id}/status", RouteAdminOrphans, s.OrphanStatusHandler())
	s.protected("POST "+RouteAdminOrphans+"/{id}/delete", RouteAdminOrphans, s.RecordDeleteHandler(RouteAdminOrphans,
		func(ctx context.Context, d *entities.Directory, id entities.ID) error { return d.Orphans.Delete(ctx, id) }))

	// Boreholes
	s.protected("GET "+RouteAdminBoreholes, RouteAdminBoreholes, s.BoreholesPageHandler())
	s.protected("POST "+RouteAdminBoreholes, RouteAdminBoreholes, s.BoreholeCreateHandler())
	s.protected("POST "+RouteAdminBoreholes+"/{id}/status", RouteAdminBoreholes, s.BoreholeStatusHandler())
	s.protected("POST "+RouteAdminBoreholes+"/{id}/delete", RouteAdminBoreholes, s.RecordDeleteHandler(RouteAdminBoreholes,
		func(ctx context.Context, d *entities.Directory, id entities.ID) error { return d.Boreholes.Delete(ctx, id) }))

	// Reports
	s.protected("GET "+RouteAdminReports, RouteAdminReports, s.ReportsPageHandler())
	s.protected("POST "+RouteAdminReports, RouteAdminReports, s.ReportCreateHandler())
	s.protected("POST "+RouteAdminReports+"/{id}/approve", RouteAdminReports, s.ReportApproveHandler())
	s.protected("POST "+RouteAdminReports+"/{id}/publish", RouteAdminReports, s.ReportPublishHandler())
	s.protected("GET "+RouteAdminReports+"/{id}/download", RouteAdminReports, s.ReportDownloadHandler(false))
	s.protected("POST "+RouteAdminReports+"/{id}/delete", RouteAdminReports, s.RecordDeleteHandler(RouteAdminReports,
		func(ctx context.Context, d *entities.Directory, id entities.ID) error { return d.Reports.Delete(ctx, id) }))

	// Users
	s.protected("GET "+RouteAdminUsers, RouteAdminUsers, s.UsersPageHandler())

	// Self service
	s.protected("GET "+RouteAccount, RouteAccount, s.AccountPageHandler())
	s.protected("POST "+RouteAccountProfile, RouteAccount, s.AccountProfileHandler())
	s.protected("POST "+RouteAccountPassword, RouteAccount, s.AccountPasswordHandler())

	// JSON API, gated on the same destinations as the pages
	s.api("GET "+RouteAPIOrphans, RouteAdminOrphans, apiList(s, orphanCollection, "search", "status", "gender"))
	s.api("POST "+RouteAPIOrphans, RouteAdminOrphans, apiCreate(s, orphanCollection))
	s.api("GET "+RouteAPIOrphans+"/{id}", RouteAdminOrphans, apiGet(s, orphanCollection))
	s.api("PUT "+RouteAPIOrphans+"/{id}", RouteAdminOrphans, apiUpdate(s, orphanCollection))
	s.api("DELETE "+RouteAPIOrphans+"/{id}", RouteAdminOrphans, apiDelete(s, orphanCollection))

	s.api("GET "+RouteAPIBoreholes, RouteAdminBoreholes, apiList(s, boreholeCollection, "search", "status", "water_quality"))
	s.api("POST "+RouteAPIBoreholes, RouteAdminBoreholes, apiCreate(s, boreholeCollection))
	s.api("GET "+RouteAPIBoreholes+"/{id}", RouteAdminBoreholes, apiGet(s, boreholeCollection))
	s.api("PUT "+RouteAPIBoreholes+"/{id}", RouteAdminBoreholes, apiUpdate(s, boreholeCollection))
	s.api("DELETE "+RouteAPIBoreholes+"/{id}", RouteAdminBoreholes, apiDelete(s, boreholeCollection))

	s.api("GET "+RouteAPIReports, RouteAdminReports, apiList(s, reportCollection, "search", "status", "report_type"))
	s.api("POST "+RouteAPIReports, RouteAdminReports, apiCreate(s, reportCollection))
	s.api("GET "+RouteAPIReports+"/{id}", RouteAdminReports, apiGet(s, reportCollection))
	s.api("PUT "+RouteAPIReports+"/{id}", RouteAdminReports, apiUpdate(s, reportCollection))
	s.api("DELETE "+RouteAPIReports+"/{id}", RouteAdminReports, apiDelete(s, reportCollection))
	s.api("GET "+RouteAPIReports+"/{id}/download", RouteAdminReports, s.ReportDownloadHandler(true))

	s.api("GET "+RouteAPISummary, RouteStaffHome, s.SummaryAPIHandler())

	s.RegisterRouteHandler("OPTIONS /api/", ChainMiddleware(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}, s.APIMiddleware()...))
	s.RegisterRouteHandler("/api/", ChainMiddleware(s.NotFoundAPIHandler(), s.APIMiddleware()...))

	s.RegisterRouteHandler("GET "+RouteMetrics, ChainMiddleware(promhttp.Handler().ServeHTTP, s.RecoverMiddleware))

	// Static files
	s.RegisterRouteHandler("GET "+RouteStaticCSS, ChainMiddleware(s.serveFileHandler("css"), s.StaticMiddleware()...))

	s.RegisterRouteHandler("/", ChainMiddleware(s.NotFoundHandler(), s.HTMLMiddleWare()...))
}

// protected registers an HTML route behind the access policy for dest
func (s *Server) protected(pattern, dest string, h http.HandlerFunc) {
	s.RegisterRouteHandler(pattern, ChainMiddleware(h, s.HTMLMiddleWare(s.BrowserSession, s.RequireAccess(dest))...))
}

// api registers a JSON route behind the access policy for dest
func (s *Server) api(pattern, dest string, h http.HandlerFunc) {
	s.RegisterRouteHandler(pattern, ChainMiddleware(h, s.APIMiddleware(s.BrowserSession, s.RequireAPIAccess(dest))...))
}
