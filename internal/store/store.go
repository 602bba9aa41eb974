// Package store keeps the saved preset list and mirrors it to a JSON file
// after every change.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/chase3718/thr-comm/internal/fault"
	"github.com/chase3718/thr-comm/internal/logging"
	"github.com/chase3718/thr-comm/internal/preset"
)

// DefaultPath is used when no preset file is configured.
const DefaultPath = "presets.json"

// ErrNotFound is returned by LoadFile when the file does not exist.
var ErrNotFound = errors.New("store: preset file not found")

// LoadFile reads a preset list.
func LoadFile(path string) ([]preset.Preset, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fault.New(fault.IO, "store.Load", err)
	}
	var list []preset.Preset
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fault.New(fault.IO, "store.Load", fmt.Errorf("%s: %w", path, err))
	}
	return list, nil
}

// SaveFile writes list to path through a temporary file so a crash never
// leaves a half written list behind.
func SaveFile(path string, list []preset.Preset) error {
	if list == nil {
		list = []preset.Preset{}
	}
	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return fault.New(fault.IO, "store.Save", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*")
	if err != nil {
		return fault.New(fault.IO, "store.Save", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return fault.New(fault.IO, "store.Save", err)
	}
	if err := tmp.Close(); err != nil {
		return fault.New(fault.IO, "store.Save", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fault.New(fault.IO, "store.Save", err)
	}
	return nil
}

// Store is the in-memory preset list bound to its file. It is owned by a
// single goroutine and does no locking.
type Store struct {
	path    string
	presets []preset.Preset
	log     *slog.Logger
}

// Open loads path. A missing or unreadable file is replaced by an empty list,
// which is written out immediately. Failing to write it is only logged; the
// store still works in memory and retries on the next change.
func Open(path string) (*Store, error) {
	s := &Store{path: path, log: logging.Get(logging.Store).With("path", path)}

	list, err := LoadFile(path)
	switch {
	case err == nil:
		s.presets = list
		s.log.Info("store: presets loaded", "count", len(list))
		return s, nil
	case errors.Is(err, ErrNotFound):
		s.log.Info("store: no preset file, creating an empty one")
	default:
		s.log.Error("store: cannot read presets, starting empty", "err", err)
	}
	if err := SaveFile(path, nil); err != nil {
		s.log.Error("store: cannot write empty preset file", "err", err)
	}
	return s, nil
}

func (s *Store) Path() string { return s.path }

func (s *Store) Len() int { return len(s.presets) }

// All returns a copy of the list.
func (s *Store) All() []preset.Preset {
	return append([]preset.Preset(nil), s.presets...)
}

// Get returns the preset at index.
func (s *Store) Get(index int) (preset.Preset, error) {
	if err := s.check("store.Get", index); err != nil {
		return preset.Preset{}, err
	}
	return s.presets[index], nil
}

// Add appends p and saves. The returned error is a save failure; the preset
// stays in memory regardless.
func (s *Store) Add(p preset.Preset) error {
	s.presets = append(s.presets, p)
	return s.save()
}

// RemoveAt deletes the preset at index and saves.
func (s *Store) RemoveAt(index int) error {
	if err := s.check("store.RemoveAt", index); err != nil {
		return err
	}
	s.presets = append(s.presets[:index], s.presets[index+1:]...)
	return s.save()
}

// ReplaceAll swaps in a new list and saves.
func (s *Store) ReplaceAll(list []preset.Preset) error {
	s.presets = append([]preset.Preset(nil), list...)
	return s.save()
}

func (s *Store) check(op string, index int) error {
	if index < 0 || index >= len(s.presets) {
		return fault.Errorf(fault.Validation, op, "index %d out of range [0, %d)", index, len(s.presets))
	}
	return nil
}

func (s *Store) save() error {
	if err := SaveFile(s.path, s.presets); err != nil {
		s.log.Error("store: save failed, file is behind memory", "err", err)
		return err
	}
	s.log.Debug("store: presets saved", "count", len(s.presets))
	return nil
}
