package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"cellviewer/pkg/browser"
	"cellviewer/pkg/codec"
	"cellviewer/pkg/config"
	"cellviewer/pkg/interval"
	"cellviewer/pkg/normalize"
	"cellviewer/pkg/stack"
)

func writeStack(t *testing.T, path string, frames int) {
	t.Helper()
	data := make([]float64, frames*9)
	for i := range data {
		data[i] = float64(i)
	}
	st, err := stack.FromInterleaved([]int{frames, 3, 3}, stack.Uint16, data)
	if err != nil {
		t.Fatalf("Failed to build stack: %v", err)
	}
	if err := codec.WriteNPY(path, st); err != nil {
		t.Fatalf("Failed to write stack: %v", err)
	}
}

func testFlags(t *testing.T) *globalFlags {
	return &globalFlags{configPath: filepath.Join(t.TempDir(), "config.yaml")}
}

// execute runs cmd with args and returns what it printed
func execute(cmd *cobra.Command, args ...string) (string, error) {
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true
	err := cmd.Execute()
	return out.String(), err
}

func storedInterval(t *testing.T, path string) interval.Interval {
	t.Helper()
	iv, err := interval.NewStore("").Load(path)
	if err != nil {
		t.Fatalf("Failed to load stored interval: %v", err)
	}
	return iv
}

func TestNewAppOverrides(t *testing.T) {
	flags := testFlags(t)
	flags.policy = "percentile"
	a, err := newApp(flags, false)
	if err != nil {
		t.Fatalf("newApp failed: %v", err)
	}
	defer a.Close()
	if a.cfg.Policy() != normalize.PolicyPercentile {
		t.Errorf("Expected percentile override, got %s", a.cfg.Policy())
	}

	flags.policy = "gamma"
	if _, err := newApp(flags, false); err == nil {
		t.Error("Expected an error for an unknown policy")
	}
}

func TestNewAppLogFile(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "logs", "viewer.log")
	cfgPath := filepath.Join(dir, "config.yaml")
	content := "output:\n  logFile: " + logPath + "\n"
	if err := os.WriteFile(cfgPath, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	a, err := newApp(&globalFlags{configPath: cfgPath}, true)
	if err != nil {
		t.Fatalf("newApp failed: %v", err)
	}
	a.log.Info("hello")
	if err := a.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	data, err := os.ReadFile(logPath)
	if err != nil || len(data) == 0 {
		t.Errorf("Expected log output in %s, got %q (%v)", logPath, data, err)
	}
}

func TestIntervalAndExportCommands(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cells.npy")
	writeStack(t, path, 8)
	flags := testFlags(t)

	out, err := execute(intervalCmd(flags), path, "--start", "6", "--end", "2")
	if err != nil {
		t.Fatalf("interval failed: %v", err)
	}
	if iv := storedInterval(t, path); iv != interval.Range(2, 6) {
		t.Fatalf("Expected stored 2-6, got %v", iv)
	}
	if !strings.Contains(out, "Interval 2-6 (5 of 8 frames)") {
		t.Errorf("Unexpected interval output %q", out)
	}

	if _, err := execute(exportCmd(flags), path); err != nil {
		t.Fatalf("export failed: %v", err)
	}
	exported, _, err := (codec.Files{}).Read(filepath.Join(dir, "cells_trimmed.npy"))
	if err != nil {
		t.Fatalf("Failed to read export: %v", err)
	}
	if exported.Len() != 5 || exported.Plane(0, 0)[0] != 18 {
		t.Errorf("Expected frames 2-6, got %d frames starting at %v", exported.Len(), exported.Plane(0, 0)[0])
	}

	if _, err := execute(intervalCmd(flags), path, "--clear"); err != nil {
		t.Fatalf("interval --clear failed: %v", err)
	}
	if _, err := interval.NewStore("").Load(path); !errors.Is(err, interval.ErrNotFound) {
		t.Errorf("Expected sidecar removed, got %v", err)
	}
}

func TestExplicitRangeReplacesStoredInterval(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cells.npy")
	writeStack(t, path, 10)
	flags := testFlags(t)

	if _, err := execute(intervalCmd(flags), path, "--start", "0", "--end", "3"); err != nil {
		t.Fatalf("interval failed: %v", err)
	}
	out, err := execute(intervalCmd(flags), path, "--start", "5", "--end", "8")
	if err != nil {
		t.Fatalf("interval failed: %v", err)
	}
	if iv := storedInterval(t, path); iv != interval.Range(5, 8) {
		t.Errorf("Expected stored 5-8, got %v", iv)
	}
	if !strings.Contains(out, "Interval 5-8 (4 of 10 frames)") {
		t.Errorf("Unexpected interval output %q", out)
	}

	dest := filepath.Join(dir, "out.npy")
	if _, err := execute(exportCmd(flags), path, dest, "--start", "7", "--end", "9"); err != nil {
		t.Fatalf("export failed: %v", err)
	}
	if iv := storedInterval(t, path); iv != interval.Range(7, 9) {
		t.Errorf("Expected stored 7-9, got %v", iv)
	}
	exported, _, err := (codec.Files{}).Read(dest)
	if err != nil {
		t.Fatalf("Failed to read export: %v", err)
	}
	if exported.Len() != 3 || exported.Plane(0, 0)[0] != 63 {
		t.Errorf("Expected frames 7-9, got %d frames starting at %v", exported.Len(), exported.Plane(0, 0)[0])
	}
}

func TestIntervalCommandRejectsBadInput(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cells.npy")
	writeStack(t, path, 4)

	tests := map[string][]string{
		"start only":    {path, "--start", "1"},
		"out of range":  {path, "--start", "1", "--end", "4"},
		"clear and set": {path, "--clear", "--start", "0", "--end", "1"},
	}
	for name, args := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := execute(intervalCmd(testFlags(t)), args...); err == nil {
				t.Error("Expected an error")
			}
		})
	}
}

func TestExportCommandFormatMismatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cells.npy")
	writeStack(t, path, 4)

	dest := filepath.Join(dir, "out.tif")
	if _, err := execute(exportCmd(testFlags(t)), path, dest, "--start", "0", "--end", "1"); err == nil {
		t.Error("Expected a format mismatch error")
	}
	if _, err := os.Stat(dest); !os.IsNotExist(err) {
		t.Errorf("Expected no file at %s, got %v", dest, err)
	}
}

func TestInfoCommand(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cells.npy")
	writeStack(t, path, 4)
	flags := testFlags(t)

	out, err := execute(infoCmd(flags), path)
	if err != nil {
		t.Fatalf("info failed: %v", err)
	}
	for _, want := range []string{"=== Stack ===", "Frames:   4", "Size:     3x3", "DType:    uint16", "0: min 0  max 35", "Frames:   not set"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected %q in info output:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Problem:") {
		t.Errorf("Expected no sidecar problem:\n%s", out)
	}

	if _, err := execute(intervalCmd(flags), path, "--start", "1", "--end", "2"); err != nil {
		t.Fatalf("interval failed: %v", err)
	}
	out, err = execute(infoCmd(flags), path)
	if err != nil {
		t.Fatalf("info failed: %v", err)
	}
	if !strings.Contains(out, "Frames:   1-2 (2 frames)") {
		t.Errorf("Expected stored interval in info output:\n%s", out)
	}
}

func TestInfoCommandReportsSidecarProblems(t *testing.T) {
	tests := map[string]struct {
		content string
		want    string
	}{
		"corrupt":      {"{not json", interval.ErrCorruptSidecar.Error()},
		"out of range": {`{"start_frame": 1, "end_frame": 9}`, "exceeds 4 frames"},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			path := filepath.Join(dir, "cells.npy")
			writeStack(t, path, 4)
			if err := os.WriteFile(interval.NewStore("").PathFor(path), []byte(tt.content), 0644); err != nil {
				t.Fatalf("Failed to write sidecar: %v", err)
			}

			out, err := execute(infoCmd(testFlags(t)), path)
			if err != nil {
				t.Fatalf("info failed: %v", err)
			}
			if !strings.Contains(out, "Frames:   not set") || !strings.Contains(out, "Problem:") || !strings.Contains(out, tt.want) {
				t.Errorf("Expected the sidecar problem %q in info output:\n%s", tt.want, out)
			}
		})
	}
}

func TestInfoCommandMissingStack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.npy")
	if _, err := execute(infoCmd(testFlags(t)), path); err == nil {
		t.Error("Expected an error for a missing stack")
	}
}

func TestFramesCommand(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cells.npy")
	writeStack(t, path, 3)

	tests := []struct {
		format string
		ext    string
	}{
		{"png", ".png"},
		{"jpg", ".jpg"},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			outDir := filepath.Join(t.TempDir(), "frames")
			out, err := execute(framesCmd(testFlags(t)), path, outDir, "--format", tt.format)
			if err != nil {
				t.Fatalf("frames failed: %v", err)
			}
			if !strings.Contains(out, "Saved 3 frames") {
				t.Errorf("Unexpected frames output %q", out)
			}
			for i := 0; i < 3; i++ {
				name := filepath.Join(outDir, fmt.Sprintf("frame_%03d%s", i, tt.ext))
				if _, err := os.Stat(name); err != nil {
					t.Errorf("Expected %s: %v", name, err)
				}
			}
		})
	}

	if _, err := execute(framesCmd(testFlags(t)), path, t.TempDir(), "--format", "bmp"); err == nil {
		t.Error("Expected an error for an unknown format")
	}
}

func TestViewCommandRejectsBadPaths(t *testing.T) {
	dir := t.TempDir()
	text := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(text, []byte("x"), 0644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}
	empty := filepath.Join(dir, "empty")
	if err := os.Mkdir(empty, 0755); err != nil {
		t.Fatalf("Failed to create dir: %v", err)
	}

	tests := []struct {
		name string
		path string
		want error
	}{
		{"missing", filepath.Join(dir, "missing.npy"), os.ErrNotExist},
		{"not a stack", text, nil},
		{"empty folder", empty, browser.ErrNoStacks},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(viewCmd(testFlags(t)), tt.path)
			if err == nil {
				t.Fatal("Expected an error")
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, err)
			}
		})
	}

	if _, err := execute(viewCmd(testFlags(t)), dir, empty); err == nil {
		t.Error("Expected an error for two paths")
	}
}

func TestConfigInitCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	flags := testFlags(t)

	if _, err := execute(configCmd(flags), "init", path); err != nil {
		t.Fatalf("config init failed: %v", err)
	}
	cfg, err := config.LoadConfig(path)
	if err != nil {
		t.Fatalf("Failed to load written config: %v", err)
	}
	if cfg.Playback.IntervalMs != config.DefaultConfig().Playback.IntervalMs {
		t.Errorf("Expected default interval, got %d", cfg.Playback.IntervalMs)
	}

	if err := os.WriteFile(path, []byte("playback:\n  intervalMs: 500\n"), 0644); err != nil {
		t.Fatalf("Failed to edit config: %v", err)
	}
	if _, err := execute(configCmd(flags), "init", path); err == nil {
		t.Error("Expected an error for an existing file without --force")
	}
	if cfg, _ := config.LoadConfig(path); cfg == nil || cfg.Playback.IntervalMs != 500 {
		t.Error("Expected the existing file to be kept")
	}

	if _, err := execute(configCmd(flags), "init", path, "--force"); err != nil {
		t.Fatalf("config init --force failed: %v", err)
	}
	cfg, err = config.LoadConfig(path)
	if err != nil {
		t.Fatalf("Failed to load overwritten config: %v", err)
	}
	if cfg.Playback.IntervalMs != config.DefaultConfig().Playback.IntervalMs {
		t.Errorf("Expected --force to restore defaults, got %d", cfg.Playback.IntervalMs)
	}
}

func TestConfigShowCommand(t *testing.T) {
	flags := testFlags(t)
	flags.policy = "minmax"

	out, err := execute(configCmd(flags), "show")
	if err != nil {
		t.Fatalf("config show failed: %v", err)
	}

	var cfg config.Config
	if err := yaml.Unmarshal([]byte(out), &cfg); err != nil {
		t.Fatalf("Expected YAML output, got %q: %v", out, err)
	}
	if cfg.Normalization.Policy != "minmax" {
		t.Errorf("Expected the policy override in effect, got %q", cfg.Normalization.Policy)
	}
	if cfg.Export.Suffix != config.DefaultConfig().Export.Suffix {
		t.Errorf("Expected default export suffix, got %q", cfg.Export.Suffix)
	}
}
