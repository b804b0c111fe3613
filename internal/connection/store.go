package connection

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// Item is one saved connection as shown on the connect screen.
type Item struct {
	Name           string `yaml:"name" json:"name"`
	Host           string `yaml:"host" json:"host"`
	SchemaRegistry string `yaml:"schema_registry,omitempty" json:"schema_registry,omitempty"`
}

type storeFile struct {
	Connections []Item `yaml:"connections"`
}

// Store persists saved connections in a YAML file, most recent first.
type Store struct {
	path string
	mu   sync.Mutex
}

func NewStore(path string) *Store { return &Store{path: path} }

// DefaultPath is $HOME/.komprender/connections.yml.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".komprender", "connections.yml")
}

func (s *Store) Load() ([]Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *Store) load() ([]Item, error) {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var f storeFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, err
	}
	return f.Connections, nil
}

// Add saves item, replacing any entry with the same name.
func (s *Store) Add(item Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	items, err := s.load()
	if err != nil {
		return err
	}
	out := []Item{item}
	for _, it := range items {
		if it.Name != item.Name {
			out = append(out, it)
		}
	}
	return s.save(out)
}

func (s *Store) Remove(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	items, err := s.load()
	if err != nil {
		return err
	}
	out := items[:0]
	for _, it := range items {
		if it.Name != name {
			out = append(out, it)
		}
	}
	return s.save(out)
}

func (s *Store) save(items []Item) error {
	raw, err := yaml.Marshal(storeFile{Connections: items})
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(s.path, raw, 0o600)
}
