// This file contains shared utilities and helper functions used across handlers.
package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/JonMunkholm/fleetimport/internal/core"
)

// maxJSONBody bounds JSON request bodies. Files go through multipart.
const maxJSONBody = 1 << 20

// maxWait caps the ?wait parameter of blocking endpoints.
const maxWait = 2 * time.Minute

// decodeJSON reads a JSON body into v. An empty body leaves v untouched.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	body := http.MaxBytesReader(w, r.Body, maxJSONBody)
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return &badRequest{err: err}
	}
	return nil
}

// parseWaitParam parses a duration query parameter such as ?wait=5s.
// Missing or invalid values yield 0; values are capped at maxWait.
func parseWaitParam(r *http.Request, name string) time.Duration {
	val := r.URL.Query().Get(name)
	if val == "" {
		return 0
	}
	d, err := time.ParseDuration(val)
	if err != nil || d < 0 {
		return 0
	}
	if d > maxWait {
		return maxWait
	}
	return d
}

// FieldResponse is the API shape of a catalog field.
type FieldResponse struct {
	Name        string   `json:"name"`
	Label       string   `json:"label"`
	Type        string   `json:"type"`
	Required    bool     `json:"required"`
	Recommended bool     `json:"recommended"`
	Synonyms    []string `json:"synonyms,omitempty"`
	EnumValues  []string `json:"enumValues,omitempty"`
}

func toFieldResponses(fields []core.FieldSpec) []FieldResponse {
	out := make([]FieldResponse, len(fields))
	for i, f := range fields {
		out[i] = FieldResponse{
			Name:        f.Name,
			Label:       f.Label,
			Type:        f.Type.String(),
			Required:    f.Required,
			Recommended: f.Recommended,
			Synonyms:    f.Synonyms,
			EnumValues:  f.EnumValues,
		}
	}
	return out
}

// attachment sets download headers with a timestamped file name.
func attachment(w http.ResponseWriter, contentType, prefix, ext string) {
	timestamp := time.Now().Format("20060102_150405")
	filename := fmt.Sprintf("%s_%s.%s", prefix, timestamp, ext)
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
}
