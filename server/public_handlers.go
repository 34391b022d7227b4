package server

import (
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/jrsteele09/betul-abla-portal/internal/errors"
	"github.com/rs/zerolog/log"
)

// Service is one programme shown on the services page
type Service struct {
	Name        string
	Description string
}

var services = []Service{
	{Name: "Orphan sponsorship", Description: "Monthly support for food, schooling and healthcare of orphaned children."},
	{Name: "Clean water", Description: "Drilling and maintaining boreholes that serve rural communities."},
	{Name: "Education", Description: "School fees, uniforms and learning materials for sponsored children."},
	{Name: "Reporting", Description: "Regular field and financial reports to donors and partners."},
}

// ContactForm is the public contact form
type ContactForm struct {
	Name    string `form:"name" validate:"required,max=100"`
	Email   string `form:"email" validate:"required,email"`
	Message string `form:"message" validate:"required,max=5000"`
}

var formValidator = newFormValidator()

func newFormValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		return fld.Tag.Get("form")
	})
	return v
}

// problems lists the form's validation failures as short messages
func (f ContactForm) problems() []string {
	err := formValidator.Struct(f)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []string{err.Error()}
	}

	out := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			out = append(out, fe.Field()+" is required")
		case "email":
			out = append(out, "a valid email address is required")
		case "max":
			out = append(out, fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param()))
		default:
			out = append(out, fe.Field()+" is not valid")
		}
	}
	return out
}

// staticPage renders a public page that needs no data
func (s *Server) staticPage(name, title string, data any) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.render(w, http.StatusOK, name, s.page(w, r, title, data))
	}
}

func (s *Server) IndexHandler() http.HandlerFunc {
	return s.staticPage("index.html", "Home", nil)
}

func (s *Server) ServicesHandler() http.HandlerFunc {
	return s.staticPage("services.html", "Our services", services)
}

func (s *Server) AboutHandler() http.HandlerFunc {
	return s.staticPage("about.html", "About us", nil)
}

func (s *Server) ContactPageHandler() http.HandlerFunc {
	return s.staticPage("contact.html", "Contact", ContactForm{})
}

// ContactSubmissionHandler accepts the contact form (POST /contact)
func (s *Server) ContactSubmissionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "Invalid form data", http.StatusBadRequest)
			return
		}
		form := ContactForm{
			Name:    strings.TrimSpace(r.FormValue("name")),
			Email:   strings.TrimSpace(r.FormValue("email")),
			Message: strings.TrimSpace(r.FormValue("message")),
		}

		if problems := form.problems(); len(problems) > 0 {
			page := s.page(w, r, "Contact", form)
			page.Error = "Please check the form: " + strings.Join(problems, "; ")
			s.render(w, http.StatusBadRequest, "contact.html", page)
			return
		}

		log.Info().Str("name", form.Name).Str("email", form.Email).Int("length", len(form.Message)).Msg("contact message received")
		successRedirect(w, r, RouteContact, "Thank you, we will be in touch soon")
	}
}

// NotFoundHandler renders the 404 page for anything unrouted
func (s *Server) NotFoundHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.render(w, http.StatusNotFound, "not_found.html", s.page(w, r, "Page not found", nil))
	}
}
