// Package logging holds the process-wide zerolog logger.
//
// Console output goes to Config.Output, plain JSON or pretty printed.
// When Config.File names a path, every record is also appended to that
// file as JSON.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the global logger instance.
var Logger zerolog.Logger

// Level represents log levels.
type Level = zerolog.Level

const (
	DebugLevel = zerolog.DebugLevel
	InfoLevel  = zerolog.InfoLevel
	WarnLevel  = zerolog.WarnLevel
	ErrorLevel = zerolog.ErrorLevel
	FatalLevel = zerolog.FatalLevel
)

var levels = map[string]Level{
	"debug":   DebugLevel,
	"info":    InfoLevel,
	"warn":    WarnLevel,
	"warning": WarnLevel,
	"error":   ErrorLevel,
	"fatal":   FatalLevel,
}

var (
	fileMu  sync.Mutex
	file    *os.File
	console io.Writer = os.Stderr
)

// Config holds logger configuration.
type Config struct {
	Level  Level
	Output io.Writer // os.Stderr when nil
	Pretty bool
	// TimeFormat defaults to RFC3339.
	TimeFormat string
	// File, when set, receives a JSON copy of every record.
	File string
}

// DefaultConfig logs info and above to stderr as JSON.
func DefaultConfig() Config {
	return Config{
		Level:      InfoLevel,
		Output:     os.Stderr,
		TimeFormat: time.RFC3339,
	}
}

// Init replaces the global logger. Any file opened by an earlier Init is
// closed. When cfg.File cannot be opened the console logger is still
// installed and the error is returned.
func Init(cfg Config) error {
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}
	if cfg.TimeFormat == "" {
		cfg.TimeFormat = time.RFC3339
	}
	zerolog.TimeFieldFormat = cfg.TimeFormat

	fileMu.Lock()
	defer fileMu.Unlock()

	console = cfg.Output
	if cfg.Pretty {
		console = zerolog.ConsoleWriter{Out: cfg.Output, TimeFormat: cfg.TimeFormat}
	}
	closeFile()
	var openErr error
	out := console
	if cfg.File != "" {
		f, err := openFile(cfg.File)
		if err != nil {
			openErr = err
		} else {
			file = f
			out = zerolog.MultiLevelWriter(console, f)
		}
	}

	Logger = zerolog.New(out).Level(cfg.Level).With().Timestamp().Logger()
	return openErr
}

func openFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return f, nil
}

func closeFile() error {
	if file == nil {
		return nil
	}
	err := file.Close()
	file = nil
	return err
}

// LogFile returns the path records are copied to, or "".
func LogFile() string {
	fileMu.Lock()
	defer fileMu.Unlock()
	if file == nil {
		return ""
	}
	return file.Name()
}

// Close stops copying records to the log file. Console logging goes on.
func Close() error {
	fileMu.Lock()
	defer fileMu.Unlock()
	if file == nil {
		return nil
	}
	Logger = Logger.Output(console)
	return closeFile()
}

// ParseLevel maps a case-insensitive level name to a Level. Unknown
// names give InfoLevel.
func ParseLevel(level string) Level {
	if l, ok := levels[strings.ToLower(strings.TrimSpace(level))]; ok {
		return l
	}
	return InfoLevel
}

func Debug() *zerolog.Event { return Logger.Debug() }
func Info() *zerolog.Event  { return Logger.Info() }
func Warn() *zerolog.Event  { return Logger.Warn() }
func Error() *zerolog.Event { return Logger.Error() }

// With creates a child logger with the given fields.
func With() zerolog.Context {
	return Logger.With()
}

func init() {
	Init(DefaultConfig())
}
