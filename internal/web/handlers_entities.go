package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// handleListEntities returns the importable entity types.
func (s *Server) handleListEntities(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.service.ListEntities())
}

// handleEntityFields returns the field catalog of an entity type.
func (s *Server) handleEntityFields(w http.ResponseWriter, r *http.Request) {
	cat, err := s.service.Fields(chi.URLParam(r, "entity"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	writeJSON(w, map[string]any{
		"entity": cat.Entity,
		"fields": toFieldResponses(cat.Fields),
	})
}

// handleDownloadTemplate serves an empty sheet whose header row is the
// catalog labels, so a filled-in copy maps without edits.
// ?format=xlsx selects a workbook; CSV is the default.
func (s *Server) handleDownloadTemplate(w http.ResponseWriter, r *http.Request) {
	cat, err := s.service.Fields(chi.URLParam(r, "entity"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	header := make([]string, len(cat.Fields))
	for i, f := range cat.Fields {
		header[i] = f.Label
	}

	if err := writeTable(w, r.URL.Query().Get("format"), cat.Entity.Key+"_template", cat.Entity.Label, header, nil); err != nil {
		s.respondError(w, r, err)
	}
}
