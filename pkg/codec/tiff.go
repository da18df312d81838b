package codec

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"io"
	"math"
	"os"

	"golang.org/x/image/tiff"

	"cellviewer/pkg/stack"
)

// TIFF tags used when walking and writing image file directories
const (
	tagImageWidth      = 256
	tagImageLength     = 257
	tagBitsPerSample   = 258
	tagCompression     = 259
	tagPhotometric     = 262
	tagStripOffsets    = 273
	tagSamplesPerPixel = 277
	tagRowsPerStrip    = 278
	tagStripByteCounts = 279
	tagPlanarConfig    = 284
	tagSampleFormat    = 339
)

// TIFF field types
const (
	typeShort = 3
	typeLong  = 4
)

// maxPages bounds the IFD walk so a looping chain cannot hang the reader
const maxPages = 1 << 16

var errBadTIFF = errors.New("malformed tiff")

// page is what the IFD walk learns about one image directory
type page struct {
	offset          int64
	width, height   int
	bitsPerSample   int
	samplesPerPixel int
}

// ReadTIFF loads every page of a multi-page TIFF as one frame. Pages are
// decoded by golang.org/x/image/tiff, which handles the compression schemes;
// the page chain itself is walked here because that decoder only reads the
// first directory.
func ReadTIFF(path string) (*stack.Stack, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}

	order, pages, err := walkIFDs(f)
	if err != nil {
		return nil, err
	}
	if len(pages) == 0 {
		return nil, fmt.Errorf("%w: no pages", errBadTIFF)
	}

	first := pages[0]
	channels := first.samplesPerPixel
	if channels != 1 && channels != stack.RGBChannels {
		return nil, fmt.Errorf("%w: tiff has %d samples per pixel", stack.ErrUnsupportedChannelCount, channels)
	}
	for i, p := range pages[1:] {
		if p.width != first.width || p.height != first.height || p.samplesPerPixel != channels {
			return nil, fmt.Errorf("%w: page %d is %dx%dx%d, page 0 is %dx%dx%d", stack.ErrInvalidShape,
				i+1, p.width, p.height, p.samplesPerPixel, first.width, first.height, channels)
		}
	}

	dtype := stack.Uint8
	if first.bitsPerSample == 16 {
		dtype = stack.Uint16
	}

	shape := stack.Shape{
		Frames:   len(pages),
		Height:   first.height,
		Width:    first.width,
		Channels: channels,
		Layout:   stack.Planar,
	}
	if channels == stack.RGBChannels {
		shape.Layout = stack.ChannelsLast
	}

	frames := make([]stack.Frame, len(pages))
	for i, p := range pages {
		img, err := tiff.Decode(newPageReader(f, info.Size(), order, p.offset))
		if err != nil {
			return nil, fmt.Errorf("failed to decode page %d: %w", i, err)
		}
		planes, err := imagePlanes(img, channels)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i, err)
		}
		frames[i].Planes = planes
	}

	return stack.FromFrames(shape, dtype, frames)
}

// walkIFDs follows the directory chain and records the tags needed to
// validate the stack shape.
func walkIFDs(r io.ReaderAt) (binary.ByteOrder, []page, error) {
	header := make([]byte, 8)
	if _, err := r.ReadAt(header, 0); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", errBadTIFF, err)
	}

	var order binary.ByteOrder
	switch string(header[:2]) {
	case "II":
		order = binary.LittleEndian
	case "MM":
		order = binary.BigEndian
	default:
		return nil, nil, fmt.Errorf("%w: bad byte order mark", errBadTIFF)
	}
	if order.Uint16(header[2:4]) != 42 {
		return nil, nil, fmt.Errorf("%w: bad magic", errBadTIFF)
	}

	var pages []page
	seen := make(map[int64]bool)
	offset := int64(order.Uint32(header[4:8]))
	for offset != 0 {
		if seen[offset] || len(pages) >= maxPages {
			return nil, nil, fmt.Errorf("%w: directory chain loops", errBadTIFF)
		}
		seen[offset] = true

		p, next, err := readIFD(r, order, offset)
		if err != nil {
			return nil, nil, err
		}
		pages = append(pages, p)
		offset = next
	}
	return order, pages, nil
}

func readIFD(r io.ReaderAt, order binary.ByteOrder, offset int64) (page, int64, error) {
	p := page{offset: offset, bitsPerSample: 1, samplesPerPixel: 1}

	countBuf := make([]byte, 2)
	if _, err := r.ReadAt(countBuf, offset); err != nil {
		return p, 0, fmt.Errorf("%w: directory at %d: %v", errBadTIFF, offset, err)
	}
	count := int(order.Uint16(countBuf))

	entries := make([]byte, 12*count+4)
	if _, err := r.ReadAt(entries, offset+2); err != nil {
		return p, 0, fmt.Errorf("%w: directory at %d: %v", errBadTIFF, offset, err)
	}

	for i := 0; i < count; i++ {
		e := entries[12*i : 12*i+12]
		tag := order.Uint16(e[0:2])
		typ := order.Uint16(e[2:4])

		// Only the first value of each tag matters here, and it always
		// sits inline for SHORT and LONG fields except BitsPerSample arrays.
		var v int
		switch typ {
		case typeShort:
			v = int(order.Uint16(e[8:10]))
			if tag == tagBitsPerSample && order.Uint32(e[4:8]) > 2 {
				buf := make([]byte, 2)
				if _, err := r.ReadAt(buf, int64(order.Uint32(e[8:12]))); err != nil {
					return p, 0, fmt.Errorf("%w: bits per sample: %v", errBadTIFF, err)
				}
				v = int(order.Uint16(buf))
			}
		case typeLong:
			v = int(order.Uint32(e[8:12]))
		default:
			continue
		}

		switch tag {
		case tagImageWidth:
			p.width = v
		case tagImageLength:
			p.height = v
		case tagBitsPerSample:
			p.bitsPerSample = v
		case tagSamplesPerPixel:
			p.samplesPerPixel = v
		}
	}

	if p.width <= 0 || p.height <= 0 {
		return p, 0, fmt.Errorf("%w: directory at %d has no dimensions", errBadTIFF, offset)
	}
	next := int64(order.Uint32(entries[12*count:]))
	return p, next, nil
}

// pageReader exposes the file with its header pointing at one directory, so
// the single-image decoder sees that page as the first one.
type pageReader struct {
	ra     io.ReaderAt
	size   int64
	header [8]byte
	pos    int64
}

func newPageReader(ra io.ReaderAt, size int64, order binary.ByteOrder, ifd int64) *pageReader {
	pr := &pageReader{ra: ra, size: size}
	if order == binary.LittleEndian {
		copy(pr.header[:], "II")
	} else {
		copy(pr.header[:], "MM")
	}
	order.PutUint16(pr.header[2:4], 42)
	order.PutUint32(pr.header[4:8], uint32(ifd))
	return pr
}

func (pr *pageReader) ReadAt(p []byte, off int64) (int, error) {
	if off >= pr.size {
		return 0, io.EOF
	}
	n, err := pr.ra.ReadAt(p, off)
	// Overlay the patched header on whatever part of it was requested
	for i := off; i < int64(len(pr.header)) && i-off < int64(n); i++ {
		p[i-off] = pr.header[i]
	}
	return n, err
}

func (pr *pageReader) Read(p []byte) (int, error) {
	n, err := pr.ReadAt(p, pr.pos)
	pr.pos += int64(n)
	return n, err
}

// imagePlanes splits a decoded page into per-channel sample planes
func imagePlanes(img image.Image, channels int) ([][]float64, error) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	planes := make([][]float64, channels)
	for c := range planes {
		planes[c] = make([]float64, w*h)
	}

	gray := false
	switch img.(type) {
	case *image.Gray, *image.Gray16:
		gray = true
	}
	if gray != (channels == 1) {
		return nil, fmt.Errorf("%d-channel page decoded as %T", channels, img)
	}

	switch m := img.(type) {
	case *image.Gray:
		for y := 0; y < h; y++ {
			row := m.Pix[y*m.Stride : y*m.Stride+w]
			for x, v := range row {
				planes[0][y*w+x] = float64(v)
			}
		}
	case *image.Gray16:
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				planes[0][y*w+x] = float64(m.Gray16At(b.Min.X+x, b.Min.Y+y).Y)
			}
		}
	case *image.RGBA:
		copyRGB8(planes, m.Pix, m.Stride, w, h)
	case *image.NRGBA:
		copyRGB8(planes, m.Pix, m.Stride, w, h)
	case *image.RGBA64:
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				px := m.RGBA64At(b.Min.X+x, b.Min.Y+y)
				planes[0][y*w+x] = float64(px.R)
				planes[1][y*w+x] = float64(px.G)
				planes[2][y*w+x] = float64(px.B)
			}
		}
	case *image.NRGBA64:
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				px := m.NRGBA64At(b.Min.X+x, b.Min.Y+y)
				planes[0][y*w+x] = float64(px.R)
				planes[1][y*w+x] = float64(px.G)
				planes[2][y*w+x] = float64(px.B)
			}
		}
	default:
		return nil, fmt.Errorf("unsupported tiff pixel type %T", img)
	}
	return planes, nil
}

func copyRGB8(planes [][]float64, pix []uint8, stride, w, h int) {
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*stride + x*4
			planes[0][y*w+x] = float64(pix[i])
			planes[1][y*w+x] = float64(pix[i+1])
			planes[2][y*w+x] = float64(pix[i+2])
		}
	}
}

// tiffSampleFormat maps a dtype to the SampleFormat tag value
func tiffSampleFormat(d stack.DType) int {
	switch d {
	case stack.Int8, stack.Int16, stack.Int32, stack.Int64:
		return 2
	case stack.Float32, stack.Float64:
		return 3
	}
	return 1
}

// ifdEntry is one directory entry with its value or value offset
type ifdEntry struct {
	tag, typ uint16
	count    uint32
	value    uint32
}

// tiffLayout is the byte layout shared by every page of a written TIFF:
// sample data (padded to a word boundary), the directory and the
// out-of-line per-sample arrays.
type tiffLayout struct {
	dataLen, padded int64
	ifdLen, extra   int64
}

// tiffIFDEntries is the number of directory entries WriteTIFF emits
const tiffIFDEntries = 11

// layoutTIFF computes the page layout for sh. Classic TIFF addresses the
// file with 32-bit offsets, so a stack that would not fit in that range is
// rejected.
func layoutTIFF(sh stack.Shape, d stack.DType) (tiffLayout, error) {
	l := tiffLayout{
		dataLen: int64(sh.Width) * int64(sh.Height) * int64(sh.Channels) * int64(d.Size()),
		ifdLen:  int64(2 + 12*tiffIFDEntries + 4),
	}
	l.padded = l.dataLen + l.dataLen%2

	// Per-sample arrays only need out-of-line storage beyond two SHORTs
	if sh.Channels > 2 {
		l.extra = int64(4 * sh.Channels)
	}

	if end := 8 + int64(sh.Frames)*l.block(); end > math.MaxUint32 {
		return l, fmt.Errorf("stack needs %d bytes, beyond the 4 GiB limit of a tiff file", end)
	}
	return l, nil
}

func (l tiffLayout) block() int64 {
	return l.padded + l.ifdLen + l.extra
}

// WriteTIFF stores s as an uncompressed little-endian multi-page TIFF, one
// page per frame, samples interleaved per pixel.
func WriteTIFF(path string, s *stack.Stack) error {
	if !s.DType.Valid() {
		return fmt.Errorf("unsupported dtype %q", s.DType)
	}
	l, err := layoutTIFF(s.Shape, s.DType)
	if err != nil {
		return err
	}

	width, height := s.Shape.Width, s.Shape.Height
	spp := s.Shape.Channels
	size := s.DType.Size()
	block := l.block()

	photometric := uint32(1)
	if spp == stack.RGBChannels {
		photometric = 2
	}

	return writeFile(path, func(w *bufio.Writer) error {
		le := binary.LittleEndian
		header := make([]byte, 8)
		copy(header, "II")
		le.PutUint16(header[2:4], 42)
		le.PutUint32(header[4:8], uint32(8+l.padded))
		if _, err := w.Write(header); err != nil {
			return err
		}

		for i := 0; i < s.Len(); i++ {
			start := int64(8) + int64(i)*block
			ifdOff := start + l.padded
			extraOff := ifdOff + l.ifdLen

			if err := writeSamples(w, s.DType, le, pixelOrder(s.Frame(i), width*height)); err != nil {
				return err
			}
			if l.padded != l.dataLen {
				if err := w.WriteByte(0); err != nil {
					return err
				}
			}

			bits := ifdEntry{tagBitsPerSample, typeShort, uint32(spp), uint32(size * 8)}
			format := ifdEntry{tagSampleFormat, typeShort, uint32(spp), uint32(tiffSampleFormat(s.DType))}
			if spp > 2 {
				bits.value = uint32(extraOff)
				format.value = uint32(extraOff) + uint32(2*spp)
			}

			next := uint32(0)
			if i < s.Len()-1 {
				next = uint32(ifdOff + block)
			}

			entries := []ifdEntry{
				{tagImageWidth, typeLong, 1, uint32(width)},
				{tagImageLength, typeLong, 1, uint32(height)},
				bits,
				{tagCompression, typeShort, 1, 1},
				{tagPhotometric, typeShort, 1, photometric},
				{tagStripOffsets, typeLong, 1, uint32(start)},
				{tagSamplesPerPixel, typeShort, 1, uint32(spp)},
				{tagRowsPerStrip, typeLong, 1, uint32(height)},
				{tagStripByteCounts, typeLong, 1, uint32(l.dataLen)},
				{tagPlanarConfig, typeShort, 1, 1},
				format,
			}
			if err := writeIFD(w, entries, next, spp > 2); err != nil {
				return err
			}

			if spp > 2 {
				for _, v := range []int{size * 8, tiffSampleFormat(s.DType)} {
					for c := 0; c < spp; c++ {
						if err := binary.Write(w, le, uint16(v)); err != nil {
							return err
						}
					}
				}
			}
		}
		return nil
	})
}

// writeIFD writes the entries followed by the next-directory offset.
// outOfLine marks per-sample SHORT arrays whose value field is an offset.
func writeIFD(w io.Writer, entries []ifdEntry, next uint32, outOfLine bool) error {
	le := binary.LittleEndian
	buf := make([]byte, 0, 2+12*len(entries)+4)
	buf = le.AppendUint16(buf, uint16(len(entries)))
	for _, e := range entries {
		buf = le.AppendUint16(buf, e.tag)
		buf = le.AppendUint16(buf, e.typ)
		buf = le.AppendUint32(buf, e.count)
		switch {
		case e.typ == typeShort && e.count > 2 && outOfLine:
			buf = le.AppendUint32(buf, e.value)
		case e.typ == typeShort && e.count == 2:
			buf = le.AppendUint16(buf, uint16(e.value))
			buf = le.AppendUint16(buf, uint16(e.value))
		case e.typ == typeShort:
			buf = le.AppendUint16(buf, uint16(e.value))
			buf = le.AppendUint16(buf, 0)
		default:
			buf = le.AppendUint32(buf, e.value)
		}
	}
	buf = le.AppendUint32(buf, next)
	_, err := w.Write(buf)
	return err
}

// pixelOrder interleaves a frame's planes pixel by pixel
func pixelOrder(f stack.Frame, n int) []float64 {
	if len(f.Planes) == 1 {
		return f.Planes[0]
	}
	out := make([]float64, 0, n*len(f.Planes))
	for p := 0; p < n; p++ {
		for _, plane := range f.Planes {
			out = append(out, plane[p])
		}
	}
	return out
}
