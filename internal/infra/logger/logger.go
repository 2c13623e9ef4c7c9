// Package logger provides structured logging using zerolog.
package logger

import (
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
)

// Config represents logger configuration.
type Config struct {
	Output  string    // "stdout", "stderr", or "file"
	Level   string    // "debug", "info", "warn", "error"
	File    string    // log file path (used when Output is "file")
	NoColor bool      // disable console colors
	Writer  io.Writer // overrides Output when set
}

// Init initializes the global zerolog logger with the given configuration.
// The returned closer releases the log file, if any.
func Init(cfg Config) (io.Closer, error) {
	level := parseLevel(cfg.Level)

	writer, closer, console, err := openOutput(cfg)
	if err != nil {
		return nil, err
	}

	zerolog.SetGlobalLevel(level)
	zerolog.TimestampFieldName = "time"
	zerolog.LevelFieldName = "level"
	zerolog.MessageFieldName = "message"
	zerolog.CallerMarshalFunc = shortCaller

	var logger zerolog.Logger
	if console {
		zerolog.TimeFieldFormat = time.TimeOnly
		cw := zerolog.ConsoleWriter{
			Out:        writer,
			TimeFormat: time.TimeOnly,
			NoColor:    cfg.NoColor,
		}
		if level == zerolog.DebugLevel {
			// Add Caller only for DEBUG level
			cw.PartsOrder = []string{"time", "level", "message", "caller"}
			cw.FormatCaller = func(i interface{}) string {
				s, _ := i.(string)
				return "(" + s + ")"
			}
		}
		logger = zerolog.New(cw).With().Timestamp().Logger()
	} else {
		// JSON lines for files
		zerolog.TimeFieldFormat = time.RFC3339
		logger = zerolog.New(writer).With().Timestamp().Logger()
	}
	if level == zerolog.DebugLevel {
		logger = logger.With().Caller().Logger()
	}

	zerolog.DefaultContextLogger = &logger
	zlog.Logger = logger
	return closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func openOutput(cfg Config) (io.Writer, io.Closer, bool, error) {
	if cfg.Writer != nil {
		return cfg.Writer, nopCloser{}, strings.ToLower(cfg.Output) != "file", nil
	}

	switch strings.ToLower(cfg.Output) {
	case "stdout", "":
		return os.Stdout, nopCloser{}, true, nil
	case "stderr":
		return os.Stderr, nopCloser{}, true, nil
	case "file":
		if cfg.File == "" {
			return nil, nil, false, errors.New("log file path is required for file output")
		}
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, nil, false, errors.Wrapf(err, "failed to open log file %s", cfg.File)
		}
		return f, f, false, nil
	default:
		return nil, nil, false, errors.Newf("unknown log output %q", cfg.Output)
	}
}

// shortCaller keeps the last directory and the file name.
func shortCaller(pc uintptr, file string, line int) string {
	parts := strings.Split(file, string(filepath.Separator))
	if len(parts) > 1 {
		return filepath.Join(parts[len(parts)-2:]...) + ":" + strconv.Itoa(line)
	}
	return filepath.Base(file) + ":" + strconv.Itoa(line)
}

// parseLevel parses the log level string.
func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "info", "":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
