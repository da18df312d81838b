// Package codec reads and writes image stacks in the two container formats
// the viewer understands: multi-page TIFF and NumPy .npy arrays.
package codec

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cellviewer/pkg/stack"
)

// ErrUnknownFormat is returned for paths whose extension names no supported container
var ErrUnknownFormat = errors.New("unknown stack format")

// Format identifies a container format
type Format string

const (
	FormatTIFF Format = "tiff"
	FormatNPY  Format = "npy"
)

// Extension returns the canonical file extension for the format
func (f Format) Extension() string {
	switch f {
	case FormatTIFF:
		return ".tif"
	case FormatNPY:
		return ".npy"
	}
	return ""
}

// FormatOf infers the container format from a file extension
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".tif", ".tiff":
		return FormatTIFF, nil
	case ".npy":
		return FormatNPY, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, filepath.Ext(path))
}

// IsStackFile reports whether path has a supported stack extension
func IsStackFile(path string) bool {
	_, err := FormatOf(path)
	return err == nil
}

// Codec reads and writes whole stacks. Shape problems are reported with the
// stack package's sentinel errors so callers can classify them.
type Codec interface {
	Read(path string) (*stack.Stack, Format, error)
	Write(path string, s *stack.Stack, format Format) error
}

// Files is the Codec backed by the local filesystem
type Files struct{}

// Read loads the stack at path, picking the decoder by extension
func (Files) Read(path string) (*stack.Stack, Format, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, "", err
	}

	var s *stack.Stack
	switch format {
	case FormatTIFF:
		s, err = ReadTIFF(path)
	case FormatNPY:
		s, err = ReadNPY(path)
	}
	if err != nil {
		return nil, "", err
	}
	return s, format, nil
}

// Write stores s at path in the given format
func (Files) Write(path string, s *stack.Stack, format Format) error {
	switch format {
	case FormatTIFF:
		return WriteTIFF(path, s)
	case FormatNPY:
		return WriteNPY(path, s)
	}
	return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
}

// writeFile streams write into a temporary file next to path and renames it
// over path once everything is flushed. On failure path is left as it was
// and the temporary file is removed.
func writeFile(path string, write func(w *bufio.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	w := bufio.NewWriter(tmp)
	err = write(w)
	if err == nil {
		err = w.Flush()
	}
	if err == nil {
		err = tmp.Chmod(0644)
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Rename(tmpName, path)
	}
	if err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
