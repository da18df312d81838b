// Package browser lists the stack files of a folder and steps through them.
package browser

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"cellviewer/pkg/codec"
)

// ErrNoStacks is returned for folders without any stack file
var ErrNoStacks = errors.New("no stack files found")

// Browser is a cursor over the stack files of one folder
type Browser struct {
	dir   string
	files []string
	pos   int
}

// Open lists the .npy, .tif and .tiff files in dir. Files are ordered by
// name, with embedded numbers compared by value so cell2 precedes cell10.
func Open(dir string) (*Browser, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read folder: %w", err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() || !codec.IsStackFile(e.Name()) {
			continue
		}
		files = append(files, e.Name())
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoStacks, dir)
	}

	sort.Slice(files, func(i, j int) bool {
		return naturalLess(files[i], files[j])
	})
	return &Browser{dir: dir, files: files}, nil
}

// At opens the folder of path and positions the cursor on it
func At(path string) (*Browser, error) {
	b, err := Open(filepath.Dir(path))
	if err != nil {
		return nil, err
	}
	name := filepath.Base(path)
	for i, f := range b.files {
		if f == name {
			b.pos = i
			return b, nil
		}
	}
	return nil, fmt.Errorf("%s is not a stack file in %s", name, b.dir)
}

// Dir returns the folder being browsed
func (b *Browser) Dir() string {
	return b.dir
}

// Files returns the full paths of all listed stacks
func (b *Browser) Files() []string {
	out := make([]string, len(b.files))
	for i, f := range b.files {
		out[i] = filepath.Join(b.dir, f)
	}
	return out
}

// Index returns the cursor position
func (b *Browser) Index() int {
	return b.pos
}

// Len returns the number of listed stacks
func (b *Browser) Len() int {
	return len(b.files)
}

// Current returns the full path of the stack under the cursor
func (b *Browser) Current() string {
	return filepath.Join(b.dir, b.files[b.pos])
}

// HasNext reports whether Next would move
func (b *Browser) HasNext() bool {
	return b.pos < len(b.files)-1
}

// HasPrev reports whether Prev would move
func (b *Browser) HasPrev() bool {
	return b.pos > 0
}

// Next moves to the following stack. At the last one it stays put and
// returns false.
func (b *Browser) Next() (string, bool) {
	if !b.HasNext() {
		return b.Current(), false
	}
	b.pos++
	return b.Current(), true
}

// Prev moves to the preceding stack. At the first one it stays put and
// returns false.
func (b *Browser) Prev() (string, bool) {
	if !b.HasPrev() {
		return b.Current(), false
	}
	b.pos--
	return b.Current(), true
}

// naturalLess compares names chunk by chunk, digit runs by numeric value
func naturalLess(a, b string) bool {
	for a != "" && b != "" {
		ca, ra := chunk(a)
		cb, rb := chunk(b)
		if ca != cb {
			na, errA := strconv.Atoi(ca)
			nb, errB := strconv.Atoi(cb)
			if errA == nil && errB == nil && na != nb {
				return na < nb
			}
			return ca < cb
		}
		a, b = ra, rb
	}
	return len(a) < len(b)
}

// chunk splits off the leading run of digits or non-digits
func chunk(s string) (head, rest string) {
	digit := isDigit(s[0])
	i := 1
	for i < len(s) && isDigit(s[i]) == digit {
		i++
	}
	return s[:i], s[i:]
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
