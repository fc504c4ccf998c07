package prefs

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
)

// Prefs is the on-disk local preference state. It never round-trips
// through the document store; each installation keeps its own copy.
type Prefs struct {
	FocusTotalMinutes int            `toml:"focus_total_minutes"`
	FocusByMode       map[string]int `toml:"focus_by_mode"`
	PreferredMode     string         `toml:"preferred_mode"`
	LastUsed          time.Time      `toml:"last_used"`
}

// Store reads and writes Prefs at a fixed path. A missing file is not
// an error; it reads as zero values.
type Store struct {
	path string

	mu sync.Mutex
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

func (s *Store) Load() (Prefs, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *Store) load() (Prefs, error) {
	var p Prefs
	if _, err := toml.DecodeFile(s.path, &p); err != nil {
		if os.IsNotExist(err) {
			return Prefs{}, nil
		}
		return Prefs{}, errors.Wrap(err, "reading prefs")
	}
	return p, nil
}

func (s *Store) Save(p Prefs) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(p)
}

func (s *Store) save(p Prefs) error {
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return errors.Wrap(err, "creating prefs dir")
		}
	}
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return errors.Wrap(err, "opening prefs file")
	}
	defer f.Close()
	if err = toml.NewEncoder(f).Encode(p); err != nil {
		return errors.Wrap(err, "writing prefs")
	}
	return nil
}

// AddFocusMinutes records a completed focus-timer stretch under mode
// and stamps the last-used time.
func (s *Store) AddFocusMinutes(mode string, minutes int, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.load()
	if err != nil {
		return err
	}
	p.FocusTotalMinutes += minutes
	if p.FocusByMode == nil {
		p.FocusByMode = make(map[string]int)
	}
	p.FocusByMode[mode] += minutes
	p.PreferredMode = mode
	p.LastUsed = now.UTC()
	return s.save(p)
}
