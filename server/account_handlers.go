package server

import (
	"net/http"

	"github.com/jrsteele09/betul-abla-portal/session"
)

// AccountPageHandler shows the signed-in user's profile (GET /account)
func (s *Server) AccountPageHandler() http.HandlerFunc {
	return s.staticPage("account.html", "My account", nil)
}

// AccountProfileHandler saves the profile form (POST /account/profile)
func (s *Server) AccountProfileHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "Invalid form data", http.StatusBadRequest)
			return
		}
		update := session.ProfileUpdate{
			FullName: formValue(r, "full_name"),
			Email:    formValue(r, "email"),
		}
		if _, err := managerFrom(r.Context()).UpdateProfile(r.Context(), update); err != nil {
			failRedirect(w, r, RouteAccount, err)
			return
		}
		successRedirect(w, r, RouteAccount, "Your profile was updated")
	}
}

// AccountPasswordHandler changes the password (POST /account/password)
func (s *Server) AccountPasswordHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "Invalid form data", http.StatusBadRequest)
			return
		}
		newPassword := r.FormValue("new_password")
		if newPassword != r.FormValue("confirm_password") {
			setFlash(w, "error", "The new passwords do not match")
			http.Redirect(w, r, RouteAccount, http.StatusSeeOther)
			return
		}
		if err := managerFrom(r.Context()).ChangePassword(r.Context(), r.FormValue("old_password"), newPassword); err != nil {
			failRedirect(w, r, RouteAccount, err)
			return
		}
		successRedirect(w, r, RouteAccount, "Your password was changed")
	}
}
