package codec

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/sbinet/npyio"

	"cellviewer/pkg/stack"
)

// npyMagic opens every .npy file
const npyMagic = "\x93NUMPY"

// sample is the set of Go types a stack sample can be stored as
type sample interface {
	~uint8 | ~uint16 | ~uint32 | ~uint64 | ~int8 | ~int16 | ~int32 | ~int64 | ~float32 | ~float64
}

// ReadNPY loads a C-ordered .npy array as a stack
func ReadNPY(path string) (*stack.Stack, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r, err := npyio.NewReader(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("failed to read npy header: %w", err)
	}

	descr := r.Header.Descr
	if descr.Fortran {
		return nil, fmt.Errorf("fortran-ordered arrays are not supported")
	}

	// Validate before allocating so a bad shape never costs a full read
	if _, err := stack.ParseShape(descr.Shape); err != nil {
		return nil, err
	}

	n := 1
	for _, d := range descr.Shape {
		n *= d
	}

	dtype, data, err := readNPYSamples(r, descr.Type, n)
	if err != nil {
		return nil, err
	}

	return stack.FromInterleaved(descr.Shape, dtype, data)
}

// readNPYSamples decodes n samples of the numpy type string typ ("<u2", "|u1", ">f4", ...)
func readNPYSamples(r *npyio.Reader, typ string, n int) (stack.DType, []float64, error) {
	if len(typ) < 2 {
		return "", nil, fmt.Errorf("malformed npy dtype %q", typ)
	}

	var (
		dtype stack.DType
		data  []float64
		err   error
	)
	switch typ[1:] {
	case "u1":
		dtype = stack.Uint8
		data, err = readAs[uint8](r, n)
	case "u2":
		dtype = stack.Uint16
		data, err = readAs[uint16](r, n)
	case "u4":
		dtype = stack.Uint32
		data, err = readAs[uint32](r, n)
	case "i1":
		dtype = stack.Int8
		data, err = readAs[int8](r, n)
	case "i2":
		dtype = stack.Int16
		data, err = readAs[int16](r, n)
	case "i4":
		dtype = stack.Int32
		data, err = readAs[int32](r, n)
	case "i8":
		dtype = stack.Int64
		data, err = readExact[int64](r, n)
	case "u8":
		dtype = stack.Uint64
		data, err = readExact[uint64](r, n)
	case "f4":
		dtype = stack.Float32
		data, err = readAs[float32](r, n)
	case "f8":
		dtype = stack.Float64
		data, err = readAs[float64](r, n)
	default:
		return "", nil, fmt.Errorf("unsupported npy dtype %q", typ)
	}
	if err != nil {
		return "", nil, fmt.Errorf("failed to read npy data: %w", err)
	}
	return dtype, data, nil
}

func readAs[T sample](r *npyio.Reader, n int) ([]float64, error) {
	raw := make([]T, n)
	if err := r.Read(&raw); err != nil {
		return nil, err
	}
	out := make([]float64, n)
	for i, v := range raw {
		out[i] = float64(v)
	}
	return out, nil
}

// readExact reads 64-bit integers, failing on any sample float64 cannot hold
func readExact[T int64 | uint64](r *npyio.Reader, n int) ([]float64, error) {
	raw := make([]T, n)
	if err := r.Read(&raw); err != nil {
		return nil, err
	}
	out := make([]float64, n)
	for i, v := range raw {
		f := float64(v)
		if f > stack.MaxExactInt || f < -stack.MaxExactInt || T(f) != v {
			return nil, fmt.Errorf("sample %d (%v) exceeds the exact float64 range", i, v)
		}
		out[i] = f
	}
	return out, nil
}

// npyDescr returns the numpy type string for a stack dtype, little-endian
func npyDescr(d stack.DType) (string, error) {
	switch d {
	case stack.Uint8:
		return "|u1", nil
	case stack.Int8:
		return "|i1", nil
	case stack.Uint16:
		return "<u2", nil
	case stack.Int16:
		return "<i2", nil
	case stack.Uint32:
		return "<u4", nil
	case stack.Int32:
		return "<i4", nil
	case stack.Int64:
		return "<i8", nil
	case stack.Uint64:
		return "<u8", nil
	case stack.Float32:
		return "<f4", nil
	case stack.Float64:
		return "<f8", nil
	}
	return "", fmt.Errorf("unsupported dtype %q", d)
}

// npyHeader builds a version 1.0 header padded so the data starts on a
// 64-byte boundary.
func npyHeader(descr string, dims []int) []byte {
	parts := make([]string, len(dims))
	for i, d := range dims {
		parts[i] = strconv.Itoa(d)
	}
	shape := strings.Join(parts, ", ")
	if len(dims) == 1 {
		shape += ","
	}

	dict := fmt.Sprintf("{'descr': '%s', 'fortran_order': False, 'shape': (%s), }", descr, shape)

	// magic(6) + version(2) + length(2) + dict + padding + '\n'
	prefix := len(npyMagic) + 4
	total := prefix + len(dict) + 1
	if rem := total % 64; rem != 0 {
		dict += strings.Repeat(" ", 64-rem)
	}
	dict += "\n"

	buf := make([]byte, 0, prefix+len(dict))
	buf = append(buf, npyMagic...)
	buf = append(buf, 1, 0)
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(dict)))
	buf = append(buf, dict...)
	return buf
}

// WriteNPY stores s as a C-ordered little-endian .npy file, keeping the
// stack's dtype and axis layout.
func WriteNPY(path string, s *stack.Stack) error {
	descr, err := npyDescr(s.DType)
	if err != nil {
		return err
	}

	return writeFile(path, func(w *bufio.Writer) error {
		if _, err := w.Write(npyHeader(descr, s.Shape.Dims())); err != nil {
			return err
		}
		if err := writeSamples(w, s.DType, binary.LittleEndian, s.Interleaved()); err != nil {
			return fmt.Errorf("failed to write npy data: %w", err)
		}
		return nil
	})
}

// writeSamples converts data back to dtype and writes it in the given byte order
func writeSamples(w io.Writer, d stack.DType, order binary.ByteOrder, data []float64) error {
	switch d {
	case stack.Uint8:
		return writeAs[uint8](w, order, data)
	case stack.Uint16:
		return writeAs[uint16](w, order, data)
	case stack.Uint32:
		return writeAs[uint32](w, order, data)
	case stack.Int8:
		return writeAs[int8](w, order, data)
	case stack.Int16:
		return writeAs[int16](w, order, data)
	case stack.Int32:
		return writeAs[int32](w, order, data)
	case stack.Int64:
		return writeAs[int64](w, order, data)
	case stack.Uint64:
		return writeAs[uint64](w, order, data)
	case stack.Float32:
		return writeAs[float32](w, order, data)
	case stack.Float64:
		return writeAs[float64](w, order, data)
	}
	return fmt.Errorf("unsupported dtype %q", d)
}

func writeAs[T sample](w io.Writer, order binary.ByteOrder, data []float64) error {
	out := make([]T, len(data))
	for i, v := range data {
		out[i] = T(v)
	}
	return binary.Write(w, order, out)
}
