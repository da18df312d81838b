package visualization

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
)

// createTestImage builds a gray gradient image
func createTestImage(width, height int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetGray(x, y, color.Gray{Y: uint8((x + y) * 255 / (width + height))})
		}
	}
	return img
}

// fakeSource serves generated frames
type fakeSource struct {
	frames  int
	current int
}

func (f *fakeSource) Frames() int { return f.frames }

func (f *fakeSource) SetFrame(i int) error {
	if i < 0 || i >= f.frames {
		return fmt.Errorf("frame %d out of range", i)
	}
	f.current = i
	return nil
}

func (f *fakeSource) CurrentDisplayFrame() *image.Gray {
	img := createTestImage(4, 4)
	img.SetGray(0, 0, color.Gray{Y: uint8(f.current)})
	return img
}

// TestNewViewer verifies the pixel area derived from the terminal size
func TestNewViewer(t *testing.T) {
	viewer := NewViewer(80, 24)
	w, h := viewer.Size()
	if w != 80 || h != 48 {
		t.Errorf("Expected 80x48 pixels, got %dx%d", w, h)
	}

	viewer.Resize(0, -3)
	w, h = viewer.Size()
	if w != 1 || h != 2 {
		t.Errorf("Expected minimum area 1x2, got %dx%d", w, h)
	}
}

// TestFit verifies aspect-preserving nearest-neighbour downsampling
func TestFit(t *testing.T) {
	img := createTestImage(100, 50)

	fitted := Fit(img, 40, 40)
	b := fitted.Bounds()
	if b.Dx() != 40 || b.Dy() != 20 {
		t.Errorf("Expected 40x20, got %dx%d", b.Dx(), b.Dy())
	}

	// Nearest-neighbour keeps the top-left sample
	r, _, _, _ := fitted.At(0, 0).RGBA()
	want, _, _, _ := img.At(0, 0).RGBA()
	if r != want {
		t.Errorf("Expected top-left sample %d, got %d", want, r)
	}

	if small := Fit(img, 200, 200); small != image.Image(img) {
		t.Error("Expected an image that fits to be returned unchanged")
	}
}

// TestRenderBlocks verifies two pixel rows per line and one column per pixel
func TestRenderBlocks(t *testing.T) {
	viewer := NewViewer(80, 24)

	out := viewer.RenderBlocks(createTestImage(6, 5))
	lines := strings.Split(out, "\n")
	if len(lines) != 3 {
		t.Fatalf("Expected 3 lines for 5 pixel rows, got %d", len(lines))
	}
	for i, line := range lines {
		if lipgloss.Width(line) != 6 {
			t.Errorf("Line %d: expected width 6, got %d", i, lipgloss.Width(line))
		}
		if strings.Count(line, upperHalf) != 6 {
			t.Errorf("Line %d: expected 6 half blocks, got %d", i, strings.Count(line, upperHalf))
		}
	}
}

// TestRender verifies that frames are fitted into the viewer area
func TestRender(t *testing.T) {
	viewer := NewViewer(10, 5)
	out := viewer.Render(createTestImage(100, 100))
	if lipgloss.Height(out) != 5 || lipgloss.Width(out) != 10 {
		t.Errorf("Expected a 10x5 rendering, got %dx%d", lipgloss.Width(out), lipgloss.Height(out))
	}
	if viewer.Render(nil) != "" {
		t.Error("Expected empty output for no image")
	}
}

// TestSaveSnapshot verifies that frames can be saved to disk
func TestSaveSnapshot(t *testing.T) {
	tempDir := t.TempDir()
	img := createTestImage(8, 8)

	for _, name := range []string{"snap.png", "snap.jpg", "snap.JPEG"} {
		filename := filepath.Join(tempDir, name)
		if err := SaveSnapshot(img, filename); err != nil {
			t.Fatalf("Failed to save %s: %v", name, err)
		}
		if _, err := os.Stat(filename); os.IsNotExist(err) {
			t.Errorf("Saved file does not exist: %s", filename)
		}
	}

	// PNG is lossless
	f, err := os.Open(filepath.Join(tempDir, "snap.png"))
	if err != nil {
		t.Fatalf("Failed to open snapshot: %v", err)
	}
	defer f.Close()
	decoded, err := png.Decode(f)
	if err != nil {
		t.Fatalf("Failed to decode snapshot: %v", err)
	}
	if decoded.At(3, 5) != img.At(3, 5) {
		t.Errorf("Expected %v at (3,5), got %v", img.At(3, 5), decoded.At(3, 5))
	}

	if err := SaveSnapshot(img, filepath.Join(tempDir, "snap.bmp")); err == nil {
		t.Error("Expected error for unsupported extension, got nil")
	}
}

// TestSaveFrameSequence verifies that every frame is written
func TestSaveFrameSequence(t *testing.T) {
	outputDir := filepath.Join(t.TempDir(), "frames")
	src := &fakeSource{frames: 3}

	if err := SaveFrameSequence(src, outputDir, ""); err != nil {
		t.Fatalf("Failed to save frame sequence: %v", err)
	}
	for i := 0; i < 3; i++ {
		filename := filepath.Join(outputDir, fmt.Sprintf("frame_%03d.png", i))
		if _, err := os.Stat(filename); os.IsNotExist(err) {
			t.Errorf("Expected frame file does not exist: %s", filename)
		}
	}
	if src.current != 2 {
		t.Errorf("Expected source on last frame, got %d", src.current)
	}

	if err := SaveFrameSequence(src, outputDir, ".gif"); err == nil {
		t.Error("Expected error for unsupported extension, got nil")
	}
}
