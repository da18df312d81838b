package tui

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"cellviewer/pkg/browser"
	"cellviewer/pkg/codec"
	"cellviewer/pkg/playback"
	"cellviewer/pkg/session"
	"cellviewer/pkg/stack"
)

// writeTestStack writes a grayscale uint8 stack with frames*4*4 samples
func writeTestStack(t *testing.T, path string, frames int) {
	t.Helper()
	data := make([]float64, frames*16)
	for i := range data {
		data[i] = float64(i % 251)
	}
	st, err := stack.FromInterleaved([]int{frames, 4, 4}, stack.Uint8, data)
	if err != nil {
		t.Fatalf("Failed to build stack: %v", err)
	}
	if err := codec.WriteNPY(path, st); err != nil {
		t.Fatalf("Failed to write stack: %v", err)
	}
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

// newTestModel loads a 10-frame stack and sizes the window
func newTestModel(t *testing.T) (*model, string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "cells.npy")
	writeTestStack(t, path, 10)

	m := newModel(Options{Session: session.New(session.Options{}), Path: path, PlaybackInterval: playback.MinInterval})
	m.Update(tea.WindowSizeMsg{Width: 60, Height: 30})

	cmd := m.Init()
	if cmd == nil {
		t.Fatal("Expected an initial load command")
	}
	m.Update(cmd())
	if !m.stack.HasStack {
		t.Fatalf("Expected the stack to load, status %q", m.status.Message)
	}
	return m, dir
}

func TestNavigationKeys(t *testing.T) {
	m, _ := newTestModel(t)

	m.Update(tea.KeyMsg{Type: tea.KeyRight})
	m.Update(tea.KeyMsg{Type: tea.KeyRight})
	if m.frame.Frame != 2 {
		t.Errorf("Expected frame 2, got %d", m.frame.Frame)
	}

	m.Update(tea.KeyMsg{Type: tea.KeyEnd})
	if m.frame.Frame != 9 {
		t.Errorf("Expected last frame 9, got %d", m.frame.Frame)
	}
	m.Update(tea.KeyMsg{Type: tea.KeyRight})
	if m.frame.Frame != 0 {
		t.Errorf("Expected wrap to frame 0, got %d", m.frame.Frame)
	}
	m.Update(tea.KeyMsg{Type: tea.KeyLeft})
	if m.frame.Frame != 9 {
		t.Errorf("Expected backward wrap to frame 9, got %d", m.frame.Frame)
	}
	m.Update(tea.KeyMsg{Type: tea.KeyHome})
	if m.frame.Frame != 0 {
		t.Errorf("Expected first frame, got %d", m.frame.Frame)
	}
}

func TestMarkAndExport(t *testing.T) {
	m, dir := newTestModel(t)

	m.Update(tea.KeyMsg{Type: tea.KeyRight})
	m.Update(tea.KeyMsg{Type: tea.KeyRight})
	m.Update(runes("s"))
	for i := 0; i < 3; i++ {
		m.Update(tea.KeyMsg{Type: tea.KeyRight})
	}
	m.Update(runes("e"))

	if m.interval.Start != 2 || m.interval.End != 5 {
		t.Fatalf("Expected interval 2-5, got %+v", m.interval)
	}
	if _, err := os.Stat(filepath.Join(dir, "cells_interval.json")); err != nil {
		t.Errorf("Expected a sidecar: %v", err)
	}

	m.Update(runes("x"))
	if m.status.Err != nil {
		t.Fatalf("Export failed: %s", m.status.Message)
	}
	exported, _, err := (codec.Files{}).Read(filepath.Join(dir, "cells_trimmed.npy"))
	if err != nil {
		t.Fatalf("Failed to read export: %v", err)
	}
	if exported.Len() != 4 {
		t.Errorf("Expected 4 exported frames, got %d", exported.Len())
	}

	m.Update(runes("u"))
	if m.interval.Complete() {
		t.Error("Expected the interval to be cleared")
	}
}

func TestExportWithoutInterval(t *testing.T) {
	m, _ := newTestModel(t)
	m.Update(runes("x"))
	if m.status.Err == nil || !strings.Contains(m.status.Message, "no interval marked") {
		t.Errorf("Expected a no-interval error, got %q", m.status.Message)
	}
}

func TestPlayback(t *testing.T) {
	m, _ := newTestModel(t)

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeySpace})
	if cmd == nil || !m.clock.Running() {
		t.Fatal("Expected playback to start")
	}

	// Delivering the scheduled tick advances one frame and schedules the next
	_, next := m.Update(cmd())
	if m.frame.Frame != 1 {
		t.Errorf("Expected frame 1 after a tick, got %d", m.frame.Frame)
	}
	if next == nil {
		t.Error("Expected the next tick to be scheduled")
	}

	_, cmd = m.Update(runes("-"))
	if cmd == nil || m.clock.Interval() != 2*playback.MinInterval {
		t.Errorf("Expected a rescheduled tick at %v, got %v", 2*playback.MinInterval, m.clock.Interval())
	}

	// The tick scheduled before the cadence change is stale
	msg := next()
	m.Update(msg)
	if m.frame.Frame != 1 {
		t.Errorf("Expected the stale tick to be ignored, got frame %d", m.frame.Frame)
	}

	m.Update(tea.KeyMsg{Type: tea.KeySpace})
	if m.clock.Running() {
		t.Error("Expected playback to stop")
	}
}

func TestPlaybackStopsOnFailedLoad(t *testing.T) {
	m, dir := newTestModel(t)
	m.Update(tea.KeyMsg{Type: tea.KeySpace})

	m.Update(loadMsg{path: filepath.Join(dir, "missing.npy")})
	if m.clock.Running() || m.stack.HasStack {
		t.Error("Expected playback stopped and no stack after a failed load")
	}
	if m.status.Err == nil {
		t.Error("Expected an error status")
	}
	if !strings.Contains(m.View(), "No stack loaded") {
		t.Error("Expected the empty placeholder")
	}
}

func TestFileNavigation(t *testing.T) {
	dir := t.TempDir()
	writeTestStack(t, filepath.Join(dir, "a.npy"), 3)
	writeTestStack(t, filepath.Join(dir, "b.npy"), 5)

	b, err := browser.Open(dir)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	m := newModel(Options{Session: session.New(session.Options{}), Browser: b})
	m.Update(tea.WindowSizeMsg{Width: 60, Height: 30})
	m.Update(m.Init()())
	if m.frame.Frames != 3 {
		t.Fatalf("Expected a.npy with 3 frames, got %d", m.frame.Frames)
	}

	_, cmd := m.Update(runes("n"))
	if cmd == nil {
		t.Fatal("Expected a load command for the next file")
	}
	m.Update(cmd())
	if m.frame.Frames != 5 || !strings.Contains(m.View(), "b.npy [2/2]") {
		t.Errorf("Expected b.npy loaded, got %d frames", m.frame.Frames)
	}

	if _, cmd := m.Update(runes("n")); cmd != nil {
		t.Error("Expected no load past the last file")
	}
}

func TestSnapshot(t *testing.T) {
	m, dir := newTestModel(t)
	m.Update(tea.KeyMsg{Type: tea.KeyRight})
	m.Update(runes("w"))
	if m.status.Err != nil {
		t.Fatalf("Snapshot failed: %s", m.status.Message)
	}
	if _, err := os.Stat(filepath.Join(dir, "cells_frame_001.png")); err != nil {
		t.Errorf("Expected a snapshot file: %v", err)
	}
}

func TestView(t *testing.T) {
	m, _ := newTestModel(t)
	view := m.View()
	for _, want := range []string{"cells.npy", "Frame 1/10", "Interval not set", "minmax"} {
		if !strings.Contains(view, want) {
			t.Errorf("Expected view to contain %q", want)
		}
	}

	_, cmd := m.Update(runes("q"))
	if cmd == nil || m.View() != "" {
		t.Error("Expected quit to clear the view")
	}
}

func TestTickInterval(t *testing.T) {
	m := newModel(Options{Session: session.New(session.Options{})})
	if m.clock.Interval() != playback.DefaultInterval {
		t.Errorf("Expected default cadence, got %v", m.clock.Interval())
	}
	if _, cmd := m.Update(tea.KeyMsg{Type: tea.KeySpace}); cmd != nil || m.clock.Running() {
		t.Error("Expected playback to refuse to start without a stack")
	}
	if _, cmd := m.Update(runes("+")); cmd != nil || m.clock.Interval() != 50*time.Millisecond {
		t.Errorf("Expected 50ms without scheduling, got %v", m.clock.Interval())
	}
}
