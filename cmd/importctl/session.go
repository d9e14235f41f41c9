package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/fleetimport/internal/core"
)

// sessionFlags are the mapping choices shared by map, preview and commit.
type sessionFlags struct {
	sets    []string
	fixed   []string
	profile string
}

func (f *sessionFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringArrayVar(&f.sets, "set", nil, `Map a column to a field, "Column=field"; "Column=" unmaps it`)
	cmd.Flags().StringArrayVar(&f.fixed, "fixed", nil, `Apply a value to every row, "field=value"`)
	cmd.Flags().StringVar(&f.profile, "profile", "", "Apply a saved mapping profile by name or id")
}

// openSession selects the file, waits for the assisted pass and then
// applies the profile, the column overrides and the fixed values.
func openSession(ctx context.Context, svc *core.Service, entity, path string, f sessionFlags) (*core.SessionView, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, err
	}

	view, err := svc.SelectFile(ctx, entity, filepath.Base(path), file, info.Size())
	if err != nil {
		return nil, err
	}
	if view, err = svc.WaitForAdvisor(ctx, view.ID); err != nil {
		return nil, err
	}

	if f.profile != "" {
		id, err := resolveProfile(ctx, svc, entity, f.profile)
		if err != nil {
			return nil, err
		}
		if view, err = svc.ApplyProfile(ctx, view.ID, id); err != nil {
			return nil, err
		}
	}

	if len(f.sets) > 0 {
		edits, err := parseAssignments("--set", f.sets, cutLast)
		if err != nil {
			return nil, err
		}
		if view, err = svc.UpdateMapping(view.ID, core.ColumnMapping(edits)); err != nil {
			return nil, err
		}
	}

	if len(f.fixed) > 0 {
		fixed, err := parseAssignments("--fixed", f.fixed, strings.Cut)
		if err != nil {
			return nil, err
		}
		if view, err = svc.SetFixedValues(view.ID, core.FixedValues(fixed)); err != nil {
			return nil, err
		}
	}
	return view, nil
}

// resolveProfile finds a profile id by id or by name, ignoring case.
func resolveProfile(ctx context.Context, svc *core.Service, entity, ref string) (string, error) {
	profiles, err := svc.ListProfiles(ctx, entity)
	if err != nil {
		return "", err
	}
	for _, p := range profiles {
		if p.ID == ref {
			return p.ID, nil
		}
	}
	for _, p := range profiles {
		if strings.EqualFold(p.Name, ref) {
			return p.ID, nil
		}
	}
	return "", fmt.Errorf("%w: %s", core.ErrProfileNotFound, ref)
}

// parseAssignments turns "key=value" flag values into a map. Columns may
// contain '=' so --set splits on the last one; values split on the first.
func parseAssignments(flag string, values []string, cut func(s, sep string) (string, string, bool)) (map[string]string, error) {
	out := make(map[string]string, len(values))
	for _, v := range values {
		key, value, ok := cut(v, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid %s %q: want key=value", flag, v)
		}
		out[key] = strings.TrimSpace(value)
	}
	return out, nil
}

func cutLast(s, sep string) (before, after string, found bool) {
	if i := strings.LastIndex(s, sep); i >= 0 {
		return s[:i], s[i+len(sep):], true
	}
	return s, "", false
}
