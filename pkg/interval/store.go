// Package interval persists the marked frame interval of a stack in a small
// JSON sidecar file next to the stack.
package interval

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DefaultSuffix replaces the stack extension to form the sidecar path
const DefaultSuffix = "_interval.json"

var (
	// ErrNotFound means no sidecar exists yet; it is not a failure
	ErrNotFound = errors.New("no stored interval")

	// ErrCorruptSidecar is returned for sidecars that exist but cannot be used
	ErrCorruptSidecar = errors.New("corrupt interval sidecar")

	// ErrPersist is returned when a sidecar cannot be written
	ErrPersist = errors.New("failed to persist interval")
)

// Interval is an inclusive frame range with optionally unset bounds
type Interval struct {
	Start, End       int
	HasStart, HasEnd bool
}

// Range returns a fully marked interval, ordered
func Range(a, b int) Interval {
	if a > b {
		a, b = b, a
	}
	return Interval{Start: a, End: b, HasStart: true, HasEnd: true}
}

// Complete reports whether both bounds are set
func (iv Interval) Complete() bool {
	return iv.HasStart && iv.HasEnd
}

// Ordered returns iv with the smaller bound as Start once both are set
func (iv Interval) Ordered() Interval {
	if iv.Complete() && iv.Start > iv.End {
		iv.Start, iv.End = iv.End, iv.Start
	}
	return iv
}

// Len is the number of frames covered by a complete interval
func (iv Interval) Len() int {
	if !iv.Complete() {
		return 0
	}
	return iv.End - iv.Start + 1
}

func (iv Interval) String() string {
	switch {
	case iv.Complete():
		return fmt.Sprintf("%d-%d", iv.Start, iv.End)
	case iv.HasStart:
		return fmt.Sprintf("start %d", iv.Start)
	case iv.HasEnd:
		return fmt.Sprintf("end %d", iv.End)
	}
	return "not set"
}

// record is the on-disk shape of a sidecar
type record struct {
	StartFrame *int `json:"start_frame"`
	EndFrame   *int `json:"end_frame"`
}

// Store reads and writes sidecars. The zero value uses DefaultSuffix.
type Store struct {
	Suffix string
}

// NewStore returns a store using suffix, or DefaultSuffix when empty
func NewStore(suffix string) *Store {
	if suffix == "" {
		suffix = DefaultSuffix
	}
	return &Store{Suffix: suffix}
}

// PathFor derives the sidecar path: the stack path with its extension
// replaced by the suffix.
func (s *Store) PathFor(stackPath string) string {
	suffix := s.Suffix
	if suffix == "" {
		suffix = DefaultSuffix
	}
	return strings.TrimSuffix(stackPath, filepath.Ext(stackPath)) + suffix
}

// Load returns the stored interval for stackPath. A missing sidecar yields
// ErrNotFound; unreadable or invalid content yields ErrCorruptSidecar.
func (s *Store) Load(stackPath string) (Interval, error) {
	path := s.PathFor(stackPath)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Interval{}, ErrNotFound
		}
		return Interval{}, fmt.Errorf("%w: %s: %v", ErrCorruptSidecar, path, err)
	}

	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Interval{}, fmt.Errorf("%w: %s: %v", ErrCorruptSidecar, path, err)
	}
	if rec.StartFrame == nil || rec.EndFrame == nil {
		return Interval{}, fmt.Errorf("%w: %s: start_frame and end_frame are required", ErrCorruptSidecar, path)
	}
	if *rec.StartFrame < 0 || *rec.EndFrame < 0 {
		return Interval{}, fmt.Errorf("%w: %s: negative frame index", ErrCorruptSidecar, path)
	}

	return Range(*rec.StartFrame, *rec.EndFrame), nil
}

// Save replaces the sidecar for stackPath with iv. The record is written to
// a temporary file in the same directory and renamed over the sidecar, so
// readers see either the old or the new record.
func (s *Store) Save(stackPath string, iv Interval) error {
	if !iv.Complete() {
		return fmt.Errorf("%w: interval %s is incomplete", ErrPersist, iv)
	}
	iv = iv.Ordered()

	data, err := json.MarshalIndent(record{StartFrame: &iv.Start, EndFrame: &iv.End}, "", "    ")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersist, err)
	}
	data = append(data, '\n')

	path := s.PathFor(stackPath)
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersist, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("%w: %v", ErrPersist, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: %v", ErrPersist, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: %v", ErrPersist, err)
	}
	return nil
}

// Remove deletes the sidecar for stackPath; a missing sidecar is not an error
func (s *Store) Remove(stackPath string) error {
	err := os.Remove(s.PathFor(stackPath))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %v", ErrPersist, err)
	}
	return nil
}
