package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/fleetimport/internal/core"
)

// handleListProfiles returns the saved mapping profiles of an entity type.
func (s *Server) handleListProfiles(w http.ResponseWriter, r *http.Request) {
	profiles, err := s.service.ListProfiles(r.Context(), chi.URLParam(r, "entity"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, profiles)
}

// handleSaveProfile creates or replaces a named profile.
func (s *Server) handleSaveProfile(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name       string             `json:"name"`
		EntityType string             `json:"entityType"`
		Mapping    core.ColumnMapping `json:"mapping"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}

	id, err := s.service.SaveProfile(r.Context(), req.Name, req.EntityType, req.Mapping)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, map[string]string{"id": id})
}

// handleSaveSessionProfile saves the session's current mapping under a name.
func (s *Server) handleSaveSessionProfile(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}

	id, err := s.service.SaveSessionProfile(r.Context(), chi.URLParam(r, "sessionID"), req.Name)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, map[string]string{"id": id})
}

// handleMatchProfiles ranks saved profiles against the session's headers.
func (s *Server) handleMatchProfiles(w http.ResponseWriter, r *http.Request) {
	matches, err := s.service.MatchProfiles(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, matches)
}

// handleApplyProfile applies a saved profile to the session's mapping.
func (s *Server) handleApplyProfile(w http.ResponseWriter, r *http.Request) {
	view, err := s.service.ApplyProfile(r.Context(), chi.URLParam(r, "sessionID"), chi.URLParam(r, "profileID"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, view)
}
