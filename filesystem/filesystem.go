// Package filesystem routes every file the program touches (config, logs, saved
// preferences, media source descriptions) through one swappable afero backend.
package filesystem

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/spf13/afero"
)

var (
	mu      sync.RWMutex
	backend = afero.Afero{Fs: afero.NewOsFs()}
)

// API returns the active backend.
func API() afero.Afero {
	mu.RLock()
	defer mu.RUnlock()
	return backend
}

func set(fs afero.Fs) {
	mu.Lock()
	backend = afero.Afero{Fs: fs}
	mu.Unlock()
}

// SetOsFs switches to the real filesystem.
func SetOsFs() {
	set(afero.NewOsFs())
}

// SetMemMapFs switches to an empty in-memory filesystem. Tests use it.
func SetMemMapFs() {
	set(afero.NewMemMapFs())
}

// ReadJSON decodes the JSON document at path into v.
func ReadJSON(path string, v any) error {
	data, err := API().ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// Gache lets gache store its files on the active backend.
type Gache struct{}

func (Gache) OpenFile(name string, flag int, perm os.FileMode) (io.ReadWriteCloser, error) {
	return API().OpenFile(name, flag, perm)
}

func (Gache) MkdirAll(path string, perm os.FileMode) error {
	return API().MkdirAll(path, perm)
}
