package permission

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// FileStore keeps the consent state in a YAML file.
type FileStore struct {
	path string
	mu   sync.Mutex
}

type fileRecord struct {
	Microphone Status    `yaml:"microphone"`
	UpdatedAt  time.Time `yaml:"updated_at"`
}

// NewFileStore returns a store backed by path. The file is created on the
// first Save.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the backing file path.
func (s *FileStore) Path() string { return s.path }

// Load returns Undetermined when the file does not exist yet.
func (s *FileStore) Load() (Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return Undetermined, nil
	}
	if err != nil {
		return Undetermined, fmt.Errorf("reading %s: %w", s.path, err)
	}

	var rec fileRecord
	if err := yaml.Unmarshal(data, &rec); err != nil {
		return Undetermined, fmt.Errorf("parsing %s: %w", s.path, err)
	}
	switch rec.Microphone {
	case Granted, Denied:
		return rec.Microphone, nil
	default:
		return Undetermined, nil
	}
}

func (s *FileStore) Save(st Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := yaml.Marshal(fileRecord{Microphone: st, UpdatedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("marshaling permission: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("creating permission dir: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("writing %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replacing %s: %w", s.path, err)
	}
	return nil
}

// Watch calls onChange whenever the backing file is written, replaced or
// removed, including by another process. It returns once the watch is
// established; watching stops when ctx is done.
func (s *FileStore) Watch(ctx context.Context, onChange func()) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating permission dir: %w", err)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	// Watch the directory: Save replaces the file by rename.
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return fmt.Errorf("watching %s: %w", dir, err)
	}

	target := filepath.Clean(s.path)
	go func() {
		defer w.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != target {
					continue
				}
				if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) || ev.Has(fsnotify.Remove) {
					onChange()
				}
			case _, ok := <-w.Errors:
				if !ok {
					return
				}
			}
		}
	}()
	return nil
}

// MemoryStore keeps the consent state in memory.
type MemoryStore struct {
	mu     sync.Mutex
	status Status
}

// NewMemoryStore returns a store starting at initial.
func NewMemoryStore(initial Status) *MemoryStore {
	if initial == "" {
		initial = Undetermined
	}
	return &MemoryStore{status: initial}
}

func (s *MemoryStore) Load() (Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status, nil
}

func (s *MemoryStore) Save(st Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = st
	return nil
}
