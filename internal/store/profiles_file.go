package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/JonMunkholm/fleetimport/internal/core"
)

// FileProfiles keeps mapping profiles in a YAML file. It is meant for
// single-instance deployments and for the importctl tool.
type FileProfiles struct {
	path string
	mu   sync.Mutex
}

type profileFile struct {
	Profiles []profileEntry `yaml:"profiles"`
}

type profileEntry struct {
	ID         string            `yaml:"id"`
	Name       string            `yaml:"name"`
	EntityType string            `yaml:"entityType"`
	Mapping    map[string]string `yaml:"mapping"`
}

// NewFileProfiles creates a YAML profile store. The file is created on
// first save.
func NewFileProfiles(path string) *FileProfiles {
	return &FileProfiles{path: path}
}

// List implements core.ProfileStore.
func (p *FileProfiles) List(ctx context.Context, entityType string) ([]core.Profile, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	pf, err := p.read()
	if err != nil {
		return nil, err
	}

	out := []core.Profile{}
	for _, e := range pf.Profiles {
		if e.EntityType != entityType {
			continue
		}
		out = append(out, core.Profile{
			ID:         e.ID,
			Name:       e.Name,
			EntityType: e.EntityType,
			Mapping:    core.ColumnMapping(e.Mapping),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Save implements core.ProfileStore.
func (p *FileProfiles) Save(ctx context.Context, name, entityType string, mapping core.ColumnMapping) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	pf, err := p.read()
	if err != nil {
		return "", err
	}

	entry := profileEntry{Name: name, EntityType: entityType, Mapping: map[string]string(mapping.Clone())}
	replaced := false
	for i, e := range pf.Profiles {
		if e.EntityType == entityType && e.Name == name {
			entry.ID = e.ID
			pf.Profiles[i] = entry
			replaced = true
			break
		}
	}
	if !replaced {
		entry.ID = uuid.NewString()
		pf.Profiles = append(pf.Profiles, entry)
	}

	if err := p.write(pf); err != nil {
		return "", err
	}
	return entry.ID, nil
}

func (p *FileProfiles) read() (*profileFile, error) {
	data, err := os.ReadFile(p.path)
	if errors.Is(err, fs.ErrNotExist) {
		return &profileFile{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read profiles: %w", err)
	}

	var pf profileFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("parse profiles %s: %w", p.path, err)
	}
	return &pf, nil
}

// write replaces the file atomically.
func (p *FileProfiles) write(pf *profileFile) error {
	data, err := yaml.Marshal(pf)
	if err != nil {
		return err
	}

	dir := filepath.Dir(p.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create profile dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".profiles-*.yaml")
	if err != nil {
		return fmt.Errorf("write profiles: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write profiles: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write profiles: %w", err)
	}
	return os.Rename(tmp.Name(), p.path)
}
