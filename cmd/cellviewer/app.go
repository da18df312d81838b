package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"cellviewer/pkg/codec"
	"cellviewer/pkg/config"
	"cellviewer/pkg/interval"
	"cellviewer/pkg/normalize"
	"cellviewer/pkg/session"
)

// app bundles what every command needs
type app struct {
	cfg     *config.Config
	log     *slog.Logger
	closeFn func() error
}

// newApp loads the configuration and sets up logging. Terminal commands log
// warnings to stderr; the viewer owns the terminal and logs to a file.
func newApp(flags *globalFlags, logToFile bool) (*app, error) {
	path := flags.configPath
	if path == "" {
		path = config.DefaultPath()
	}
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, err
	}

	if flags.policy != "" {
		if _, err := normalize.ParsePolicy(flags.policy); err != nil {
			return nil, err
		}
		cfg.Normalization.Policy = flags.policy
	}
	if flags.verbose {
		cfg.Output.Verbose = true
	}

	a := &app{cfg: cfg, closeFn: func() error { return nil }}

	level := slog.LevelWarn
	var out io.Writer = os.Stderr
	if logToFile {
		level = slog.LevelInfo
		logPath := cfg.Output.LogFile
		if logPath == "" {
			logPath = config.DefaultLogFile()
		}
		if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
			return nil, fmt.Errorf("error creating log directory: %w", err)
		}
		f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("error opening log file: %w", err)
		}
		out = f
		a.closeFn = f.Close
	}
	if cfg.Output.Verbose {
		level = slog.LevelDebug
	}

	a.log = slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(a.log)
	a.log.Debug("config loaded", "path", path, "policy", cfg.Normalization.Policy)
	return a, nil
}

// newSession builds a session from the configuration
func (a *app) newSession() *session.Session {
	return session.New(session.Options{
		Codec:          codec.Files{},
		Store:          interval.NewStore(a.cfg.Interval.SidecarSuffix),
		Policy:         a.cfg.Policy(),
		LowPercentile:  a.cfg.Normalization.LowPercentile,
		HighPercentile: a.cfg.Normalization.HighPercentile,
		ExportSuffix:   a.cfg.Export.Suffix,
		Logger:         a.log,
	})
}

// load opens a session on path
func (a *app) load(path string) (*session.Session, error) {
	sess := a.newSession()
	if _, err := sess.Load(path); err != nil {
		return nil, err
	}
	return sess, nil
}

func (a *app) Close() error {
	return a.closeFn()
}
