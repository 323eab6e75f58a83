package log

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
)

type Level int

const (
	TRACE Level = iota
	DEBUG
	INFO
	WARN
	ERROR
	NONE
)

var levelNames = [...]string{"TRACE", "DEBUG", "INFO", "WARN", "ERROR", "NONE"}

var levelColors = [...]string{
	"\033[90m", // Grey
	"\033[36m", // Cyan
	"\033[32m", // Green
	"\033[33m", // Yellow
	"\033[31m", // Red
}

const resetColor = "\033[0m"

// Logger is a leveled logger for a named component. All loggers created
// through NewLogger share the output configured by Init.
type Logger struct {
	component string
	level     Level
	fixed     bool
}

var (
	mu         sync.Mutex
	out        = log.New(os.Stderr, "", log.LstdFlags)
	color      bool
	fileHandle *os.File
	baseLevel  = ERROR
)

// Init configures the shared output for all component loggers. When logFile
// is empty, output goes to stderr.
func Init(logLevel string, logFile string, useColor bool) {
	mu.Lock()
	defer mu.Unlock()

	baseLevel = ParseLevel(logLevel)

	var w io.Writer = os.Stderr
	if logFile != "" {
		fh, err := os.OpenFile(logFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file: %v\n", err)
		} else {
			fileHandle = fh
			w = fh
		}
	}
	out = log.New(w, "", log.LstdFlags)
	color = useColor && isTerminal(w)
}

// NewLogger returns a logger for the named component that follows the
// shared level, including changes made by a later Init.
func NewLogger(component string) *Logger {
	return &Logger{component: component}
}

// NewLoggerAt returns a logger for the named component pinned to an
// explicit level.
func NewLoggerAt(component string, level Level) *Logger {
	return &Logger{component: component, level: level, fixed: true}
}

func ParseLevel(s string) Level {
	switch strings.ToLower(s) {
	case "trace":
		return TRACE
	case "debug":
		return DEBUG
	case "warn":
		return WARN
	case "error":
		return ERROR
	case "info":
		return INFO
	default:
		return NONE
	}
}

func isTerminal(w io.Writer) bool {
	if f, ok := w.(*os.File); ok {
		fi, _ := f.Stat()
		return (fi.Mode() & os.ModeCharDevice) != 0
	}
	return false
}

func (l *Logger) log(level Level, format string, v ...any) {
	mu.Lock()
	defer mu.Unlock()

	threshold := baseLevel
	if l.fixed {
		threshold = l.level
	}
	if level < threshold {
		return
	}

	msg := fmt.Sprintf(format, v...)
	tag := levelNames[level]
	if color {
		tag = fmt.Sprintf("%s%-5s%s", levelColors[level], tag, resetColor)
	}
	out.Printf("[%s] %s: %s", tag, l.component, msg)
}

func (l *Logger) Tracef(format string, v ...any) { l.log(TRACE, format, v...) }
func (l *Logger) Debugf(format string, v ...any) { l.log(DEBUG, format, v...) }
func (l *Logger) Infof(format string, v ...any)  { l.log(INFO, format, v...) }
func (l *Logger) Warnf(format string, v ...any)  { l.log(WARN, format, v...) }
func (l *Logger) Errorf(format string, v ...any) { l.log(ERROR, format, v...) }

func Close() {
	mu.Lock()
	defer mu.Unlock()
	if fileHandle != nil {
		_ = fileHandle.Close()
		fileHandle = nil
	}
}
