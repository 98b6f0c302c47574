// Package settings persists the player preferences that outlive a single source.
package settings

import (
	"sync"

	"github.com/metafates/gache"
	"github.com/mpvbridge/mpvbridge/filesystem"
	"github.com/mpvbridge/mpvbridge/where"
)

// Preferences is the on-disk record.
type Preferences struct {
	Volume       *float64 `json:"volume,omitempty"`
	PlaybackRate *float64 `json:"playback_rate,omitempty"`
}

// Store reads and writes Preferences through gache.
type Store struct {
	mu     sync.Mutex
	cacher *gache.Cache[*Preferences]
}

// New returns a store backed by the file at path.
func New(path string) *Store {
	return &Store{
		cacher: gache.New[*Preferences](
			&gache.Options{
				Path:       path,
				FileSystem: filesystem.Gache{},
			},
		),
	}
}

var (
	defaultStore *Store
	defaultOnce  sync.Once
)

// Default returns the store at the standard settings location.
func Default() *Store {
	defaultOnce.Do(func() {
		defaultStore = New(where.Settings())
	})
	return defaultStore
}

// Load returns the saved preferences; a missing file yields empty preferences.
func (s *Store) Load() (Preferences, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *Store) load() (Preferences, error) {
	cached, expired, err := s.cacher.Get()
	if err != nil {
		return Preferences{}, err
	}
	if expired || cached == nil {
		return Preferences{}, nil
	}
	return *cached, nil
}

func (s *Store) update(f func(*Preferences)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prefs, err := s.load()
	if err != nil {
		return err
	}
	f(&prefs)
	return s.cacher.Set(&prefs)
}

// Volume returns the saved volume, if any.
func (s *Store) Volume() (float64, bool) {
	prefs, err := s.Load()
	if err != nil || prefs.Volume == nil {
		return 0, false
	}
	return *prefs.Volume, true
}

// SetVolume saves the volume.
func (s *Store) SetVolume(v float64) error {
	return s.update(func(p *Preferences) { p.Volume = &v })
}

// PlaybackRate returns the saved playback rate, if any.
func (s *Store) PlaybackRate() (float64, bool) {
	prefs, err := s.Load()
	if err != nil || prefs.PlaybackRate == nil {
		return 0, false
	}
	return *prefs.PlaybackRate, true
}

// SetPlaybackRate saves the playback rate.
func (s *Store) SetPlaybackRate(r float64) error {
	return s.update(func(p *Preferences) { p.PlaybackRate = &r })
}
