package settings

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/ghodss/yaml"
)

// FileStore persists settings as a YAML file. Writes are atomic
// (write-to-temp then rename) so a crash never leaves a half-written file.
type FileStore struct {
	mu   sync.Mutex
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (f *FileStore) Path() string { return f.path }

// Load reads settings from disk, merging missing fields with defaults. The
// returned needsReset flag is true when the stored schema version predates
// the current one: the caller must wipe persisted domain states to force a
// clean re-initialization. A missing file yields defaults and writes them.
func (f *FileStore) Load() (Settings, bool, error) {
	f.mu.Lock()
	data, err := os.ReadFile(f.path)
	f.mu.Unlock()
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return Default(), false, fmt.Errorf("read settings: %w", err)
		}
		s := Default()
		return s, false, f.Save(s)
	}

	// Unmarshal over a defaults-prefilled struct so absent fields keep their
	// default values.
	s := Default()
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Default(), false, fmt.Errorf("parse settings: %w", err)
	}
	s = normalize(s)

	needsReset := s.StorageVersion < StorageVersion
	if needsReset || s.StorageVersion != StorageVersion {
		s.StorageVersion = StorageVersion
		if err := f.Save(s); err != nil {
			return s, needsReset, err
		}
	}
	return s, needsReset, nil
}

// Save writes settings to disk.
func (f *FileStore) Save(s Settings) error {
	s.StorageVersion = StorageVersion
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("create settings dir: %w", err)
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("replace settings: %w", err)
	}
	return nil
}
