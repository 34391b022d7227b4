package server

// Route path constants
// All application routes are defined here to ensure consistency and prevent typos
const (
	// Public pages
	RouteIndex    = "/"
	RouteServices = "/services"
	RouteAbout    = "/about"
	RouteContact  = "/contact"

	// Login & Logout
	RouteLogin  = "/login"
	RouteLogout = "/logout"

	// Role homes
	RouteAdminHome       = "/admin"
	RouteCoordinatorHome = "/coordinator"
	RouteStaffHome       = "/staff"

	// Record management
	RouteAdminOrphans   = "/admin/orphans"
	RouteAdminBoreholes = "/admin/boreholes"
	RouteAdminReports   = "/admin/reports"
	RouteAdminUsers     = "/admin/users"

	// Self service
	RouteAccount         = "/account"
	RouteAccountProfile  = "/account/profile"
	RouteAccountPassword = "/account/password"

	// JSON API
	RouteAPIOrphans   = "/api/orphans"
	RouteAPIBoreholes = "/api/boreholes"
	RouteAPIReports   = "/api/reports"
	RouteAPISummary   = "/api/summary"

	// Operations
	RouteMetrics = "/metrics"

	// Static Asset Routes (patterns)
	RouteStaticCSS = "/css/{file}"
)
