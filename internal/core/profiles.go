package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// ProfileMatchThreshold is the minimum share of a profile's columns that
// must be present in a file for the profile to be suggested.
const ProfileMatchThreshold = 0.7

// ProfileMatch is a saved profile ranked against a file's headers.
type ProfileMatch struct {
	Profile    Profile `json:"profile"`
	MatchScore float64 `json:"matchScore"`
}

// ListProfiles returns the saved profiles for an entity type.
func (s *Service) ListProfiles(ctx context.Context, entityType string) ([]Profile, error) {
	if s.profiles == nil {
		return []Profile{}, nil
	}
	if _, err := CatalogFor(entityType); err != nil {
		return nil, err
	}
	profiles, err := s.profiles.List(ctx, entityType)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	return profiles, nil
}

// SaveProfile stores a named mapping. Targets outside the catalog are rejected.
func (s *Service) SaveProfile(ctx context.Context, name, entityType string, mapping ColumnMapping) (string, error) {
	if s.profiles == nil {
		return "", fmt.Errorf("profile storage is not configured")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrInvalidProfile
	}
	cat, err := CatalogFor(entityType)
	if err != nil {
		return "", err
	}
	if err := checkMapping(cat, mapping); err != nil {
		return "", err
	}

	clean := make(ColumnMapping, len(mapping))
	for col, field := range mapping {
		if field != "" {
			clean[col] = field
		}
	}

	id, err := s.profiles.Save(ctx, name, entityType, clean)
	if err != nil {
		return "", fmt.Errorf("save profile: %w", err)
	}
	s.logger.Info("mapping profile saved", "profile_id", id, "name", name, "entity", entityType, "columns", len(clean))
	return id, nil
}

// SaveSessionProfile stores the session's current mapping under name.
func (s *Service) SaveSessionProfile(ctx context.Context, sessionID, name string) (string, error) {
	sess, err := s.session(sessionID)
	if err != nil {
		return "", err
	}
	return s.SaveProfile(ctx, name, sess.EntityType, sess.Mapping.Mapping())
}

// ApplyProfile layers a saved profile onto the session's mapping.
func (s *Service) ApplyProfile(ctx context.Context, sessionID, profileID string) (*SessionView, error) {
	sess, err := s.session(sessionID)
	if err != nil {
		return nil, err
	}
	profiles, err := s.ListProfiles(ctx, sess.EntityType)
	if err != nil {
		return nil, err
	}
	for _, p := range profiles {
		if p.ID == profileID {
			sess.Mapping.ApplyProfile(p)
			return sess.view(), nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrProfileNotFound, profileID)
}

// MatchProfiles ranks the saved profiles by how many of their columns the
// session's file has. Only profiles at or above ProfileMatchThreshold are returned.
func (s *Service) MatchProfiles(ctx context.Context, sessionID string) ([]ProfileMatch, error) {
	sess, err := s.session(sessionID)
	if err != nil {
		return nil, err
	}
	profiles, err := s.ListProfiles(ctx, sess.EntityType)
	if err != nil {
		return nil, err
	}

	matches := []ProfileMatch{}
	for _, p := range profiles {
		score := matchProfileHeaders(sess.Headers, p.Mapping)
		if score >= ProfileMatchThreshold {
			matches = append(matches, ProfileMatch{Profile: p, MatchScore: score})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].MatchScore > matches[j].MatchScore
	})
	return matches, nil
}

// matchProfileHeaders returns the share of the profile's source columns found in headers.
func matchProfileHeaders(headers []string, mapping ColumnMapping) float64 {
	if len(mapping) == 0 {
		return 0
	}

	present := make(map[string]bool, len(headers))
	for _, h := range headers {
		present[NormalizeHeader(h)] = true
	}

	matched := 0
	for col := range mapping {
		if present[NormalizeHeader(col)] {
			matched++
		}
	}
	return float64(matched) / float64(len(mapping))
}
