package server

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/jrsteele09/betul-abla-portal/apiclient"
	"github.com/jrsteele09/betul-abla-portal/entities"
	"github.com/jrsteele09/betul-abla-portal/gate"
	"github.com/jrsteele09/betul-abla-portal/internal/errors"
	"github.com/jrsteele09/betul-abla-portal/session"
	"github.com/rs/zerolog/log"
)

const (
	msgGenericFailure = "Something went wrong, please try again"
	msgSessionExpired = "Your session has expired, please sign in again"
)

type apiError struct {
	Error  string            `json:"error"`
	Detail string            `json:"detail,omitempty"`
	Fields map[string]string `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Err(err).Msg("Failed to encode response")
	}
}

func writeJSONError(w http.ResponseWriter, status int, code, detail string) {
	writeJSON(w, status, apiError{Error: code, Detail: detail})
}

// writeAPIFailure maps an error from the remote service onto a JSON response
func writeAPIFailure(w http.ResponseWriter, r *http.Request, err error) {
	var verr *entities.ValidationError
	var statusErr *apiclient.StatusError

	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, apiError{Error: "validation_failed", Fields: verr.Fields})
	case errors.Is(err, errors.ErrValidation):
		writeJSONError(w, http.StatusBadRequest, "validation_failed", err.Error())
	case sessionEnded(r, err):
		writeJSONError(w, http.StatusUnauthorized, "session_expired", msgSessionExpired)
	case errors.As(err, &statusErr):
		status := statusErr.StatusCode
		if status < 400 || status >= 600 {
			status = http.StatusBadGateway
		}
		writeJSON(w, status, apiError{Error: "remote_error", Detail: statusErr.Body})
	default:
		log.Err(err).Str("path", r.URL.Path).Msg("remote call failed")
		writeJSONError(w, http.StatusBadGateway, "remote_unavailable", msgGenericFailure)
	}
}

// failRedirect reports a failed form action. When the failure ended the
// session the browser is sent to login instead of back.
func failRedirect(w http.ResponseWriter, r *http.Request, back string, err error) {
	if sessionEnded(r, err) {
		setFlash(w, "error", msgSessionExpired)
		http.Redirect(w, r, gate.LoginLocation(back), http.StatusSeeOther)
		return
	}
	setFlash(w, "error", userMessage(err))
	http.Redirect(w, r, back, http.StatusSeeOther)
}

func successRedirect(w http.ResponseWriter, r *http.Request, back, message string) {
	setFlash(w, "success", message)
	http.Redirect(w, r, back, http.StatusSeeOther)
}

// sessionEnded reports whether err, or the session's state after it, shows
// the credentials were dropped while the request ran
func sessionEnded(r *http.Request, err error) bool {
	if errors.Is(err, errors.ErrRefreshFailed) || errors.Is(err, errors.ErrSessionExpired) || errors.Is(err, errors.ErrNoRefreshToken) {
		return true
	}
	m := managerFrom(r.Context())
	return m != nil && m.State() == session.StateAnonymous
}

// userMessage turns an error into a short notification
func userMessage(err error) string {
	var verr *entities.ValidationError
	var statusErr *apiclient.StatusError
	switch {
	case errors.As(err, &verr):
		return "Please check the form: " + strings.TrimPrefix(verr.Error(), "validation failed: ")
	case errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusBadRequest:
		return "The request was rejected: " + statusErr.Body
	case errors.Is(err, errors.ErrValidation):
		msg := err.Error()
		if i := strings.LastIndex(msg, errors.ErrValidation.Error()+": "); i >= 0 {
			msg = msg[i+len(errors.ErrValidation.Error())+2:]
		}
		return "Please check the form: " + msg
	case errors.Is(err, errors.ErrNotFound):
		return "That record no longer exists"
	case errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusForbidden:
		return "You do not have permission to do that"
	default:
		log.Err(err).Msg("remote call failed")
		return msgGenericFailure
	}
}

// queryFilters copies the supported list filters from the request
func queryFilters(r *http.Request, keys ...string) url.Values {
	q := url.Values{}
	for _, k := range keys {
		if v := r.URL.Query().Get(k); v != "" {
			q.Set(k, v)
		}
	}
	return q
}
