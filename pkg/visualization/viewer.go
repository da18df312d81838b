package visualization

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// upperHalf draws the top pixel in the foreground and the bottom one in the
// background, so every terminal cell shows two pixel rows.
const upperHalf = "▀"

// FrameSource is anything that can be stepped through frame by frame
type FrameSource interface {
	Frames() int
	SetFrame(i int) error
	CurrentDisplayFrame() *image.Gray
}

// Viewer renders display frames as terminal cells within a fixed area
type Viewer struct {
	// maxWidth and maxHeight bound the rendering in pixels; each terminal
	// line holds two pixel rows
	maxWidth  int
	maxHeight int

	// cells caches rendered cells
	cells map[cellKey]string
}

type cellKey struct {
	top, bottom color.RGBA
	hasBottom   bool
}

// NewViewer creates a viewer for a terminal area of cols x rows cells
func NewViewer(cols, rows int) *Viewer {
	v := &Viewer{cells: make(map[cellKey]string)}
	v.Resize(cols, rows)
	return v
}

// Resize changes the terminal area
func (v *Viewer) Resize(cols, rows int) {
	v.maxWidth = max(cols, 1)
	v.maxHeight = max(rows, 1) * 2
}

// Size returns the pixel area frames are fitted into
func (v *Viewer) Size() (width, height int) {
	return v.maxWidth, v.maxHeight
}

// Fit downsamples img with nearest-neighbour sampling so it fits within
// maxW x maxH pixels, preserving the aspect ratio. Images that already fit
// are returned unchanged.
func Fit(img image.Image, maxW, maxH int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 || (w <= maxW && h <= maxH) {
		return img
	}

	scale := min(float64(maxW)/float64(w), float64(maxH)/float64(h))
	dw := max(int(float64(w)*scale), 1)
	dh := max(int(float64(h)*scale), 1)

	out := image.NewRGBA(image.Rect(0, 0, dw, dh))
	for y := 0; y < dh; y++ {
		sy := b.Min.Y + y*h/dh
		for x := 0; x < dw; x++ {
			sx := b.Min.X + x*w/dw
			out.Set(x, y, img.At(sx, sy))
		}
	}
	return out
}

// Render fits img into the viewer area and draws it
func (v *Viewer) Render(img image.Image) string {
	if img == nil {
		return ""
	}
	return v.RenderBlocks(Fit(img, v.maxWidth, v.maxHeight))
}

// RenderBlocks draws img at one pixel per column and two pixel rows per line
func (v *Viewer) RenderBlocks(img image.Image) string {
	b := img.Bounds()
	var sb strings.Builder
	for y := b.Min.Y; y < b.Max.Y; y += 2 {
		if y > b.Min.Y {
			sb.WriteByte('\n')
		}
		for x := b.Min.X; x < b.Max.X; x++ {
			top := rgba(img.At(x, y))
			var bottom color.RGBA
			if y+1 < b.Max.Y {
				bottom = rgba(img.At(x, y+1))
			}
			sb.WriteString(v.cell(top, bottom, y+1 < b.Max.Y))
		}
	}
	return sb.String()
}

func (v *Viewer) cell(top, bottom color.RGBA, hasBottom bool) string {
	key := cellKey{top: top, bottom: bottom, hasBottom: hasBottom}
	if s, ok := v.cells[key]; ok {
		return s
	}

	style := lipgloss.NewStyle().Foreground(hex(top))
	if hasBottom {
		style = style.Background(hex(bottom))
	}
	s := style.Render(upperHalf)
	v.cells[key] = s
	return s
}

func rgba(c color.Color) color.RGBA {
	r, g, b, _ := c.RGBA()
	return color.RGBA{R: uint8(r >> 8), G: uint8(g >> 8), B: uint8(b >> 8), A: 0xff}
}

func hex(c color.RGBA) lipgloss.Color {
	return lipgloss.Color(fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B))
}

// SaveSnapshot writes img as PNG or JPEG, chosen by the file extension
func SaveSnapshot(img image.Image, filename string) error {
	if img == nil {
		return fmt.Errorf("no frame to save")
	}

	var encode func(*os.File) error
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".png":
		encode = func(f *os.File) error { return png.Encode(f, img) }
	case ".jpg", ".jpeg":
		encode = func(f *os.File) error { return jpeg.Encode(f, img, &jpeg.Options{Quality: 90}) }
	default:
		return fmt.Errorf("unsupported snapshot format %q (want .png, .jpg or .jpeg)", filepath.Ext(filename))
	}

	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	if err := encode(file); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// SaveFrameSequence writes every display frame of src into outputDir as
// frame_NNN<ext>. The source is left on its last frame.
func SaveFrameSequence(src FrameSource, outputDir, ext string) error {
	if ext == "" {
		ext = ".png"
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return err
	}

	for i := 0; i < src.Frames(); i++ {
		if err := src.SetFrame(i); err != nil {
			return err
		}
		filename := filepath.Join(outputDir, fmt.Sprintf("frame_%03d%s", i, ext))
		if err := SaveSnapshot(src.CurrentDisplayFrame(), filename); err != nil {
			return fmt.Errorf("failed to save frame %d: %w", i, err)
		}
	}

	return nil
}
