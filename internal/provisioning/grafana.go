// Package provisioning writes Grafana datasource provisioning files.
package provisioning

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// Datasource is one entry of a Grafana datasource provisioning file.
type Datasource struct {
	Name     string `yaml:"name"`
	Type     string `yaml:"type"`
	Access   string `yaml:"access"`
	URL      string `yaml:"url"`
	Database string `yaml:"database"`
	Editable bool   `yaml:"editable"`
}

// File is the provisioning document.
type File struct {
	APIVersion  int          `yaml:"apiVersion"`
	Datasources []Datasource `yaml:"datasources"`
}

// GrafanaProvisioner renders one datasource per database into a YAML file.
type GrafanaProvisioner struct {
	Path string
	URL  string
	Type string
}

// NewGrafanaProvisioner creates a provisioner writing to path.
func NewGrafanaProvisioner(path, url, dsType string) *GrafanaProvisioner {
	return &GrafanaProvisioner{Path: path, URL: url, Type: dsType}
}

// Build returns the provisioning document for databases, sorted by name and
// without duplicates.
func (g *GrafanaProvisioner) Build(databases []string) File {
	names := make([]string, 0, len(databases))
	seen := make(map[string]bool, len(databases))
	for _, db := range databases {
		if db == "" || seen[db] {
			continue
		}
		seen[db] = true
		names = append(names, db)
	}
	sort.Strings(names)

	f := File{APIVersion: 1, Datasources: make([]Datasource, 0, len(names))}
	for _, name := range names {
		f.Datasources = append(f.Datasources, Datasource{
			Name:     name,
			Type:     g.Type,
			Access:   "proxy",
			URL:      g.URL,
			Database: name,
			Editable: false,
		})
	}
	return f
}

// WriteDatasources renders databases and replaces the file atomically.
func (g *GrafanaProvisioner) WriteDatasources(databases []string) error {
	if g.Path == "" {
		return errors.New("provisioning path is empty")
	}

	out, err := yaml.Marshal(g.Build(databases))
	if err != nil {
		return fmt.Errorf("failed to render datasources: %w", err)
	}

	dir := filepath.Dir(g.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create provisioning directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".datasources-*.yaml")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(out); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write datasources: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write datasources: %w", err)
	}
	if err := os.Rename(tmp.Name(), g.Path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", g.Path, err)
	}
	return nil
}

// ReadFile parses an existing provisioning file.
func ReadFile(path string) (*File, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f File
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("invalid provisioning file %s: %w", path, err)
	}
	return &f, nil
}
