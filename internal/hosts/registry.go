// Package hosts keeps the registry of named Hyper-V management hosts.
package hosts

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when a named host is not registered.
	ErrNotFound = errors.New("host not found")

	// ErrExists is returned when adding a host under a taken name.
	ErrExists = errors.New("host already exists")

	// ErrNoActive is returned when no host is given and none is active.
	ErrNoActive = errors.New("no active host")
)

// Entry is a single management host in the registry.
type Entry struct {
	Name      string    `json:"name"`
	Address   string    `json:"address"`
	User      string    `json:"user,omitempty"`
	Port      int       `json:"port,omitempty"`
	KeyPath   string    `json:"key_path,omitempty"`
	Namespace string    `json:"namespace,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Target returns the address with the port appended when set.
func (e Entry) Target() string {
	if e.Port == 0 || strings.Contains(e.Address, ":") {
		return e.Address
	}
	return fmt.Sprintf("%s:%d", e.Address, e.Port)
}

// Data holds the registry file contents.
type Data struct {
	Hosts []Entry `json:"hosts"`
}

// Registry manages the named hosts and the active selection.
type Registry struct {
	baseDir      string
	registryPath string
	activePath   string
}

// NewRegistry creates a registry rooted at baseDir.
func NewRegistry(baseDir string) *Registry {
	return &Registry{
		baseDir:      baseDir,
		registryPath: filepath.Join(baseDir, "hosts.json"),
		activePath:   filepath.Join(baseDir, "active"),
	}
}

// Load reads the registry from disk.
func (r *Registry) Load() (*Data, error) {
	data, err := os.ReadFile(r.registryPath)
	if err != nil {
		if os.IsNotExist(err) {
			return &Data{Hosts: []Entry{}}, nil
		}
		return nil, fmt.Errorf("read registry: %w", err)
	}

	var reg Data
	if err := json.Unmarshal(data, &reg); err != nil {
		return nil, fmt.Errorf("parse registry: %w", err)
	}
	return &reg, nil
}

// Save writes the registry to disk atomically.
func (r *Registry) Save(reg *Data) error {
	data, err := json.MarshalIndent(reg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal registry: %w", err)
	}
	return writeAtomic(r.registryPath, data)
}

// Add registers a new host.
func (r *Registry) Add(entry Entry) error {
	if entry.Name == "" {
		return errors.New("host name must not be empty")
	}
	if entry.Address == "" {
		entry.Address = entry.Name
	}

	reg, err := r.Load()
	if err != nil {
		return err
	}
	for _, h := range reg.Hosts {
		if strings.EqualFold(h.Name, entry.Name) {
			return fmt.Errorf("%w: %s", ErrExists, entry.Name)
		}
	}

	entry.CreatedAt = time.Now()
	reg.Hosts = append(reg.Hosts, entry)
	return r.Save(reg)
}

// Get returns a host entry by name.
func (r *Registry) Get(name string) (*Entry, error) {
	reg, err := r.Load()
	if err != nil {
		return nil, err
	}
	for _, h := range reg.Hosts {
		if strings.EqualFold(h.Name, name) {
			return &h, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
}

// List returns all host entries.
func (r *Registry) List() ([]Entry, error) {
	reg, err := r.Load()
	if err != nil {
		return nil, err
	}
	return reg.Hosts, nil
}

// Remove deletes a host from the registry, clearing the active selection
// when it pointed at that host.
func (r *Registry) Remove(name string) error {
	reg, err := r.Load()
	if err != nil {
		return err
	}

	found := false
	kept := make([]Entry, 0, len(reg.Hosts))
	for _, h := range reg.Hosts {
		if strings.EqualFold(h.Name, name) {
			found = true
		} else {
			kept = append(kept, h)
		}
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	reg.Hosts = kept

	if active, _ := r.GetActive(); strings.EqualFold(active, name) {
		if err := r.ClearActive(); err != nil {
			return err
		}
	}
	return r.Save(reg)
}

// SetActive selects the host used when none is given.
func (r *Registry) SetActive(name string) error {
	h, err := r.Get(name)
	if err != nil {
		return err
	}
	return writeAtomic(r.activePath, []byte(h.Name))
}

// GetActive returns the name of the active host, or "" when none is set.
func (r *Registry) GetActive() (string, error) {
	data, err := os.ReadFile(r.activePath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("read active file: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// ClearActive removes the active host setting.
func (r *Registry) ClearActive() error {
	if err := os.Remove(r.activePath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove active file: %w", err)
	}
	return nil
}

// Resolve picks the host to connect to. A registered name resolves to its
// entry; any other non-empty value is used as a bare address. An empty
// name selects the active host.
func (r *Registry) Resolve(name string) (*Entry, error) {
	if name == "" {
		active, err := r.GetActive()
		if err != nil {
			return nil, err
		}
		if active == "" {
			return nil, ErrNoActive
		}
		return r.Get(active)
	}

	h, err := r.Get(name)
	if errors.Is(err, ErrNotFound) {
		return &Entry{Name: name, Address: name}, nil
	}
	return h, err
}

func writeAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return os.Rename(tmpPath, path)
}
