// Package logging provides the leveled, component-tagged logger used
// across cmd and internal: console output always, plus an optional
// lumberjack-rotated file when configured (§10 ambient stack).
package logging

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/lumberjack.v2"
)

// Level is a logging severity.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel parses a level name, defaulting to LevelInfo on anything
// unrecognized rather than failing startup over a typo'd config value.
func ParseLevel(level string) Level {
	switch strings.ToLower(level) {
	case "debug":
		return LevelDebug
	case "info":
		return LevelInfo
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Config configures a Logger. Field names mirror the config package's
// log_* settings.
type Config struct {
	Level      string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// Logger writes timestamped, component-tagged lines to the console and,
// when File is set, to a lumberjack-rotated file.
type Logger struct {
	level        Level
	console      *log.Logger
	file         *log.Logger
	rotatingFile *lumberjack.Logger
}

// New constructs a Logger from cfg. Console logging is always enabled;
// file logging is added on top when cfg.File is non-empty.
func New(cfg Config) (*Logger, error) {
	l := &Logger{
		level:   ParseLevel(cfg.Level),
		console: log.New(os.Stderr, "", 0),
	}

	if cfg.File != "" {
		if dir := filepath.Dir(cfg.File); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("logging: create log directory: %w", err)
			}
		}
		l.rotatingFile = &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		}
		l.file = log.New(l.rotatingFile, "", 0)
	}

	return l, nil
}

// Close releases the rotating file handle, if any.
func (l *Logger) Close() error {
	if l == nil || l.rotatingFile == nil {
		return nil
	}
	return l.rotatingFile.Close()
}

func (l *Logger) shouldLog(level Level) bool {
	return l != nil && level >= l.level
}

func (l *Logger) format(level Level, component, message string) string {
	ts := time.Now().Format("2006-01-02 15:04:05.000")
	return fmt.Sprintf("%s [%s] %s: %s", ts, level.String(), component, message)
}

func (l *Logger) write(level Level, component, message string) {
	if !l.shouldLog(level) {
		return
	}
	line := l.format(level, component, message)
	if l.console != nil {
		l.console.Println(line)
	}
	if l.file != nil {
		l.file.Println(line)
	}
}

func (l *Logger) Debug(component, message string) { l.write(LevelDebug, component, message) }
func (l *Logger) Info(component, message string)   { l.write(LevelInfo, component, message) }
func (l *Logger) Warn(component, message string)   { l.write(LevelWarn, component, message) }
func (l *Logger) Error(component, message string)  { l.write(LevelError, component, message) }

func (l *Logger) Debugf(component, format string, args ...interface{}) {
	l.Debug(component, fmt.Sprintf(format, args...))
}
func (l *Logger) Infof(component, format string, args ...interface{}) {
	l.Info(component, fmt.Sprintf(format, args...))
}
func (l *Logger) Warnf(component, format string, args ...interface{}) {
	l.Warn(component, fmt.Sprintf(format, args...))
}
func (l *Logger) Errorf(component, format string, args ...interface{}) {
	l.Error(component, fmt.Sprintf(format, args...))
}

var global *Logger

// Init installs cfg as the global logger, used by the convenience
// functions below and by components that do not carry their own
// *Logger reference.
func Init(cfg Config) error {
	l, err := New(cfg)
	if err != nil {
		return err
	}
	global = l
	return nil
}

// Global returns the installed global logger, falling back to a
// console-only, info-level logger if Init was never called.
func Global() *Logger {
	if global == nil {
		global = &Logger{level: LevelInfo, console: log.New(os.Stderr, "", 0)}
	}
	return global
}

// CloseGlobal releases the global logger's file handle, if any.
func CloseGlobal() error {
	if global != nil {
		return global.Close()
	}
	return nil
}

func Debug(component, message string) { Global().Debug(component, message) }
func Info(component, message string)  { Global().Info(component, message) }
func Warn(component, message string)  { Global().Warn(component, message) }
func Error(component, message string) { Global().Error(component, message) }

func Debugf(component, format string, args ...interface{}) { Global().Debugf(component, format, args...) }
func Infof(component, format string, args ...interface{})  { Global().Infof(component, format, args...) }
func Warnf(component, format string, args ...interface{})  { Global().Warnf(component, format, args...) }
func Errorf(component, format string, args ...interface{}) { Global().Errorf(component, format, args...) }
