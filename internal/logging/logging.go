package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/cruciblehq/cruxbuild/internal/fault"
	"github.com/cruciblehq/cruxbuild/internal/paths"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Controls logger construction.
type Options struct {
	Level      slog.Level
	Verbose    bool      // Adds source locations to console records.
	Stream     io.Writer // Console destination. Defaults to stderr.
	File       string    // JSON log file. Empty disables it.
	MaxSize    int       // Megabytes before the file is rotated.
	MaxBackups int       // Rotated files kept.
	Compress   bool      // Gzip rotated files.
}

// Returns the level selected by the debug and quiet switches.
func Level(debug, quiet bool) slog.Level {
	if debug {
		return slog.LevelDebug
	}
	if quiet {
		return slog.LevelWarn
	}
	return slog.LevelInfo
}

// Builds a logger from opts.
//
// The returned closer releases the log file and must be closed once the
// logger is no longer in use. It is a no-op when no file is configured.
func Setup(opts Options) (*slog.Logger, io.Closer, error) {
	stream := opts.Stream
	if stream == nil {
		stream = os.Stderr
	}

	console := slog.NewTextHandler(stream, &slog.HandlerOptions{
		Level:     opts.Level,
		AddSource: opts.Verbose,
	})

	if opts.File == "" {
		return slog.New(console), nopCloser{}, nil
	}

	if err := os.MkdirAll(filepath.Dir(opts.File), paths.DefaultDirMode); err != nil {
		return nil, nil, fault.Wrap(ErrLogFile, err)
	}

	rotator := &lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    opts.MaxSize,
		MaxBackups: opts.MaxBackups,
		Compress:   opts.Compress,
		LocalTime:  true,
	}

	file := slog.NewJSONHandler(rotator, &slog.HandlerOptions{
		Level:     opts.Level,
		AddSource: true,
	})

	return slog.New(newFanout(console, file)), rotator, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
