package server

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/jrsteele09/betul-abla-portal/entities"
	"github.com/jrsteele09/betul-abla-portal/identity"
	"github.com/rs/zerolog/log"
)

// RecordsData is the model of the record list pages
type RecordsData[T any] struct {
	Items     []T
	Search    string
	Status    string
	Statuses  []string
	Choices   map[string][]string
	CanDelete bool
}

func (s *Server) directory(r *http.Request) *entities.Directory {
	return entities.NewDirectory(managerFrom(r.Context()).Client())
}

func isAdmin(r *http.Request) bool {
	_, id := managerFrom(r.Context()).Snapshot()
	return id != nil && id.HasRole(identity.RoleAdmin)
}

func recordID(r *http.Request) entities.ID {
	return entities.ID(r.PathValue("id"))
}

// listPage renders a record list, or an error banner when the service fails
func listPage[T any](s *Server, w http.ResponseWriter, r *http.Request, name, title string, data *RecordsData[T], list func() ([]T, error)) {
	items, err := list()
	if err != nil && sessionEnded(r, err) {
		failRedirect(w, r, r.URL.RequestURI(), err)
		return
	}

	data.Search = r.URL.Query().Get("search")
	data.Status = r.URL.Query().Get("status")
	data.CanDelete = isAdmin(r)
	page := s.page(w, r, title, data)
	if err != nil {
		page.Error = userMessage(err)
	} else {
		data.Items = items
	}
	s.render(w, http.StatusOK, name, page)
}

func formInt(r *http.Request, field string, problems map[string]string) int {
	v := strings.TrimSpace(r.FormValue(field))
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		problems[field] = "must be a whole number"
	}
	return n
}

func formValue(r *http.Request, field string) string {
	return strings.TrimSpace(r.FormValue(field))
}

func orphanFromForm(r *http.Request) entities.Orphan {
	return entities.Orphan{
		FullName:         formValue(r, "full_name"),
		DateOfBirth:      formValue(r, "date_of_birth"),
		Gender:           formValue(r, "gender"),
		Address:          formValue(r, "address"),
		GuardianName:     formValue(r, "guardian_name"),
		GuardianPhone:    formValue(r, "guardian_phone"),
		SchoolName:       formValue(r, "school_name"),
		EducationLevel:   formValue(r, "education_level"),
		HealthStatus:     formValue(r, "health_status"),
		SpecialNeeds:     formValue(r, "special_needs"),
		MonthlyAllowance: entities.Decimal(formValue(r, "monthly_allowance")),
		Status:           formValue(r, "status"),
	}
}

func boreholeFromForm(r *http.Request) (entities.Borehole, error) {
	problems := map[string]string{}
	b := entities.Borehole{
		Name:               formValue(r, "name"),
		Location:           formValue(r, "location"),
		CommunityServed:    formValue(r, "community_served"),
		Latitude:           entities.Decimal(formValue(r, "latitude")),
		Longitude:          entities.Decimal(formValue(r, "longitude")),
		DepthMeters:        formInt(r, "depth_meters", problems),
		WaterQuality:       formValue(r, "water_quality"),
		InstallationDate:   formValue(r, "installation_date"),
		BeneficiariesCount: formInt(r, "beneficiaries_count", problems),
		Status:             formValue(r, "status"),
	}
	if len(problems) > 0 {
		return b, &entities.ValidationError{Fields: problems}
	}
	return b, nil
}

func reportFromForm(r *http.Request) entities.Report {
	return entities.Report{
		Title:      formValue(r, "title"),
		ReportType: formValue(r, "report_type"),
		Content:    formValue(r, "content"),
		Orphan:     entities.ID(formValue(r, "orphan")),
		Borehole:   entities.ID(formValue(r, "borehole")),
	}
}

// OrphansPageHandler lists orphan records (GET /admin/orphans)
func (s *Server) OrphansPageHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data := &RecordsData[entities.Orphan]{
			Statuses: entities.OrphanStatuses,
			Choices: map[string][]string{
				"gender":          entities.Genders,
				"education_level": entities.EducationLevels,
				"health_status":   entities.HealthStatuses,
			},
		}
		listPage(s, w, r, "orphans.html", "Orphans", data, func() ([]entities.Orphan, error) {
			return s.directory(r).Orphans.List(r.Context(), queryFilters(r, "search", "status", "gender"))
		})
	}
}

// OrphanCreateHandler registers an orphan (POST /admin/orphans)
func (s *Server) OrphanCreateHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "Invalid form data", http.StatusBadRequest)
			return
		}
		created, err := s.directory(r).Orphans.Create(r.Context(), orphanFromForm(r))
		if err != nil {
			failRedirect(w, r, RouteAdminOrphans, err)
			return
		}
		successRedirect(w, r, RouteAdminOrphans, fmt.Sprintf("%s was registered", created.FullName))
	}
}

// OrphanStatusHandler moves an orphan to a new status (POST /admin/orphans/{id}/status)
func (s *Server) OrphanStatusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "Invalid form data", http.StatusBadRequest)
			return
		}
		updated, err := s.directory(r).Orphans.SetStatus(r.Context(), recordID(r), formValue(r, "status"))
		if err != nil {
			failRedirect(w, r, RouteAdminOrphans, err)
			return
		}
		successRedirect(w, r, RouteAdminOrphans, fmt.Sprintf("%s is now %s", updated.FullName, updated.Status))
	}
}

// BoreholesPageHandler lists boreholes (GET /admin/boreholes)
func (s *Server) BoreholesPageHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data := &RecordsData[entities.Borehole]{
			Statuses: entities.BoreholeStatuses,
			Choices:  map[string][]string{"water_quality": entities.WaterQualities},
		}
		listPage(s, w, r, "boreholes.html", "Boreholes", data, func() ([]entities.Borehole, error) {
			return s.directory(r).Boreholes.List(r.Context(), queryFilters(r, "search", "status", "water_quality"))
		})
	}
}

// BoreholeCreateHandler registers a borehole (POST /admin/boreholes)
func (s *Server) BoreholeCreateHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "Invalid form data", http.StatusBadRequest)
			return
		}
		b, err := boreholeFromForm(r)
		if err == nil {
			b, err = s.directory(r).Boreholes.Create(r.Context(), b)
		}
		if err != nil {
			failRedirect(w, r, RouteAdminBoreholes, err)
			return
		}
		successRedirect(w, r, RouteAdminBoreholes, fmt.Sprintf("%s was registered", b.Name))
	}
}

// BoreholeStatusHandler moves a borehole to a new status (POST /admin/boreholes/{id}/status)
func (s *Server) BoreholeStatusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "Invalid form data", http.StatusBadRequest)
			return
		}
		updated, err := s.directory(r).Boreholes.SetStatus(r.Context(), recordID(r), formValue(r, "status"))
		if err != nil {
			failRedirect(w, r, RouteAdminBoreholes, err)
			return
		}
		successRedirect(w, r, RouteAdminBoreholes, fmt.Sprintf("%s is now %s", updated.Name, updated.Status))
	}
}

// ReportsPageHandler lists reports (GET /admin/reports)
func (s *Server) ReportsPageHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data := &RecordsData[entities.Report]{
			Statuses: entities.ReportStatuses,
			Choices:  map[string][]string{"report_type": entities.ReportTypes},
		}
		listPage(s, w, r, "reports.html", "Reports", data, func() ([]entities.Report, error) {
			return s.directory(r).Reports.List(r.Context(), queryFilters(r, "search", "status", "report_type"))
		})
	}
}

// ReportCreateHandler drafts a report (POST /admin/reports)
func (s *Server) ReportCreateHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "Invalid form data", http.StatusBadRequest)
			return
		}
		created, err := s.directory(r).Reports.Create(r.Context(), reportFromForm(r))
		if err != nil {
			failRedirect(w, r, RouteAdminReports, err)
			return
		}
		successRedirect(w, r, RouteAdminReports, fmt.Sprintf("%q was saved as a draft", created.Title))
	}
}

// ReportApproveHandler approves a report (POST /admin/reports/{id}/approve)
func (s *Server) ReportApproveHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		updated, err := s.directory(r).Reports.Approve(r.Context(), recordID(r))
		if err != nil {
			failRedirect(w, r, RouteAdminReports, err)
			return
		}
		successRedirect(w, r, RouteAdminReports, fmt.Sprintf("%q was approved", updated.Title))
	}
}

// ReportPublishHandler publishes an approved report (POST /admin/reports/{id}/publish)
func (s *Server) ReportPublishHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		updated, err := s.directory(r).Reports.Publish(r.Context(), recordID(r))
		if err != nil {
			failRedirect(w, r, RouteAdminReports, err)
			return
		}
		successRedirect(w, r, RouteAdminReports, fmt.Sprintf("%q was published", updated.Title))
	}
}

// ReportDownloadHandler streams a report's file
// (GET /admin/reports/{id}/download and GET /api/reports/{id}/download)
func (s *Server) ReportDownloadHandler(api bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		dl, err := s.directory(r).Reports.Download(r.Context(), recordID(r))
		if err != nil {
			if api {
				writeAPIFailure(w, r, err)
			} else {
				failRedirect(w, r, RouteAdminReports, err)
			}
			return
		}
		defer dl.Body.Close()

		contentType := dl.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": dl.Filename}))
		if dl.ContentLength > 0 {
			w.Header().Set("Content-Length", strconv.FormatInt(dl.ContentLength, 10))
		}
		if _, err := io.Copy(w, dl.Body); err != nil {
			log.Err(err).Str("report", recordID(r).String()).Msg("report download interrupted")
		}
	}
}

// RecordDeleteHandler removes a record (POST /admin/{kind}/{id}/delete). Only
// admins may delete.
func (s *Server) RecordDeleteHandler(back string, remove func(ctx context.Context, d *entities.Directory, id entities.ID) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !isAdmin(r) {
			setFlash(w, "error", "Only administrators can delete records")
			http.Redirect(w, r, back, http.StatusSeeOther)
			return
		}
		if err := remove(r.Context(), s.directory(r), recordID(r)); err != nil {
			failRedirect(w, r, back, err)
			return
		}
		successRedirect(w, r, back, "The record was deleted")
	}
}

// UsersPageHandler lists portal users (GET /admin/users)
func (s *Server) UsersPageHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data := &RecordsData[identity.Identity]{}
		listPage(s, w, r, "users.html", "Users", data, func() ([]identity.Identity, error) {
			return s.directory(r).Users.List(r.Context(), queryFilters(r, "search", "role"))
		})
	}
}
