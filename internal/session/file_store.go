package session

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// FileStore persists sessions in a YAML file readable only by the owner.
// It is what the terminal client uses in place of browser local storage.
type FileStore struct {
	path string
	mu   sync.Mutex
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// DefaultFilePath is ~/.config/storefront/session.yaml (or the platform
// equivalent).
func DefaultFilePath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "storefront", "session.yaml"), nil
}

type fileContents struct {
	Sessions map[string]*Record `yaml:"sessions"`
}

func (f *FileStore) Load(ctx context.Context, id string) (*Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	contents, err := f.read()
	if err != nil {
		return nil, err
	}
	rec, ok := contents.Sessions[id]
	if !ok || rec == nil {
		return nil, ErrNotFound
	}
	return rec, nil
}

func (f *FileStore) Save(ctx context.Context, id string, rec *Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	contents, err := f.read()
	if err != nil {
		return err
	}
	contents.Sessions[id] = rec
	return f.write(contents)
}

func (f *FileStore) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	contents, err := f.read()
	if err != nil {
		return err
	}
	if _, ok := contents.Sessions[id]; !ok {
		return nil
	}
	delete(contents.Sessions, id)
	return f.write(contents)
}

func (f *FileStore) DeleteIfToken(ctx context.Context, id, token string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	contents, err := f.read()
	if err != nil {
		return false, err
	}
	rec, ok := contents.Sessions[id]
	if !ok || rec == nil || rec.Token != token {
		return false, nil
	}
	delete(contents.Sessions, id)
	if err := f.write(contents); err != nil {
		return false, err
	}
	return true, nil
}

func (f *FileStore) read() (*fileContents, error) {
	contents := &fileContents{Sessions: map[string]*Record{}}
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return contents, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read session file: %w", err)
	}
	if err := yaml.Unmarshal(data, contents); err != nil {
		return nil, fmt.Errorf("parse session file: %w", err)
	}
	if contents.Sessions == nil {
		contents.Sessions = map[string]*Record{}
	}
	return contents, nil
}

func (f *FileStore) write(contents *fileContents) error {
	data, err := yaml.Marshal(contents)
	if err != nil {
		return fmt.Errorf("encode session file: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write session file: %w", err)
	}
	return os.Rename(tmp, f.path)
}
