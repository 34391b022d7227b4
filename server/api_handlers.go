package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/jrsteele09/betul-abla-portal/entities"
	"github.com/jrsteele09/betul-abla-portal/internal/errors"
)

const maxAPIBody = 1 << 20

func orphanCollection(d *entities.Directory) *entities.Resource[entities.Orphan] {
	return d.Orphans.Resource
}

func boreholeCollection(d *entities.Directory) *entities.Resource[entities.Borehole] {
	return d.Boreholes.Resource
}

func reportCollection(d *entities.Directory) *entities.Resource[entities.Report] {
	return d.Reports.Resource
}

// decodeRecord reads a JSON record from the body. A non-empty id replaces
// whatever id the body carries.
func decodeRecord[T entities.Record](w http.ResponseWriter, r *http.Request, id entities.ID) (T, error) {
	var rec T
	var fields map[string]json.RawMessage
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxAPIBody)).Decode(&fields); err != nil {
		return rec, fmt.Errorf("%w: body must be a JSON object: %w", errors.ErrValidation, err)
	}
	if fields == nil {
		fields = map[string]json.RawMessage{}
	}
	if id != "" {
		raw, _ := json.Marshal(id.String())
		fields["id"] = raw
	}
	merged, err := json.Marshal(fields)
	if err != nil {
		return rec, err
	}
	if err := json.Unmarshal(merged, &rec); err != nil {
		return rec, fmt.Errorf("%w: %w", errors.ErrValidation, err)
	}
	return rec, nil
}

func apiList[T entities.Record](s *Server, pick func(*entities.Directory) *entities.Resource[T], filters ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		items, err := pick(s.directory(r)).List(r.Context(), queryFilters(r, filters...))
		if err != nil {
			writeAPIFailure(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, items)
	}
}

func apiGet[T entities.Record](s *Server, pick func(*entities.Directory) *entities.Resource[T]) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec, err := pick(s.directory(r)).Get(r.Context(), recordID(r))
		if err != nil {
			writeAPIFailure(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, rec)
	}
}

func apiCreate[T entities.Record](s *Server, pick func(*entities.Directory) *entities.Resource[T]) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec, err := decodeRecord[T](w, r, "")
		if err == nil {
			rec, err = pick(s.directory(r)).Create(r.Context(), rec)
		}
		if err != nil {
			writeAPIFailure(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, rec)
	}
}

func apiUpdate[T entities.Record](s *Server, pick func(*entities.Directory) *entities.Resource[T]) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec, err := decodeRecord[T](w, r, recordID(r))
		if err == nil {
			rec, err = pick(s.directory(r)).Update(r.Context(), rec)
		}
		if err != nil {
			writeAPIFailure(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, rec)
	}
}

func apiDelete[T entities.Record](s *Server, pick func(*entities.Directory) *entities.Resource[T]) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !isAdmin(r) {
			writeJSONError(w, http.StatusForbidden, "forbidden", "only administrators can delete records")
			return
		}
		if err := pick(s.directory(r)).Delete(r.Context(), recordID(r)); err != nil {
			writeAPIFailure(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// SummaryAPIHandler returns the dashboard statistics (GET /api/summary)
func (s *Server) SummaryAPIHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		summary, err := s.directory(r).Summarize(r.Context(), isAdmin(r))
		if err != nil {
			writeAPIFailure(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, summary)
	}
}

// NotFoundAPIHandler answers unknown /api/ paths
func (s *Server) NotFoundAPIHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSONError(w, http.StatusNotFound, "not_found", "no such endpoint")
	}
}
