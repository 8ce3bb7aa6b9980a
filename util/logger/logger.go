// Package logger provides a single leveled log sink for the router. Log
// messages are human-readable only; nothing in the protocol inspects them
// (they are not part of the wire format).
package logger

import (
	"fmt"
	"log"
	"os"
	"sync/atomic"

	"github.com/mitchellh/colorstring"

	"github.com/linkstate/routerd/util/assert"
)

type LogLevel int

const (
	NONE LogLevel = iota
	WARN
	INFO
	DEBUG
	TRACE
)

const LOG_LEVEL_ENV = "LOG_LEVEL"

var logLevel LogLevel
var enabled atomic.Bool

func init() {
	enabled.Store(true)

	envvar, present := os.LookupEnv(LOG_LEVEL_ENV)
	if !present {
		logLevel = INFO
		return
	}

	switch envvar {
	case "NONE":
		logLevel = NONE
	case "WARN":
		logLevel = WARN
	case "INFO":
		logLevel = INFO
	case "DEBUG":
		logLevel = DEBUG
	case "TRACE":
		logLevel = TRACE
	default:
		logLevel = INFO
		Warnf("Unknown log level '%s', defaulting to INFO", envvar)
	}
}

// SetEnable turns logging on or off entirely, independent of the configured
// level. Useful for silencing noisy loops (e.g. a bulk LSDB sync) without
// losing the configured level.
func SetEnable(v bool) {
	enabled.Store(v)
}

var tags = map[LogLevel]string{
	WARN:  "[yellow][WARN][reset] ",
	INFO:  "[INFO] ",
	DEBUG: "[dim][DEBUG][reset] ",
	TRACE: "[dim][TRACE][reset] ",
}

func printf(level LogLevel, format string, v ...any) {
	if !enabled.Load() || logLevel < level {
		return
	}
	log.Print(colorstring.Color(tags[level] + fmt.Sprintf(format, v...)))
}

// Errorf prints an error message prefixed with "[ERROR] " and stops
// execution. Nothing after Errorf executes.
func Errorf(format string, v ...any) {
	log.Fatal(colorstring.Color(fmt.Sprintf("[red][ERROR][reset] "+format, v...)))
	assert.Never()
}

// Panicf acts like Errorf but panics instead of exiting, so deferred
// functions run and a stack trace is printed. Not meant to be recovered
// from in normal operation.
func Panicf(format string, v ...any) {
	log.Panic(colorstring.Color(fmt.Sprintf("[red][ERROR][reset] "+format, v...)))
}

// Warnf prints a message prefixed with "[WARN] ".
func Warnf(format string, v ...any) { printf(WARN, format, v...) }

// Infof prints an informational message prefixed with "[INFO] ".
func Infof(format string, v ...any) { printf(INFO, format, v...) }

// Debugf prints a debug message prefixed with "[DEBUG] ".
func Debugf(format string, v ...any) { printf(DEBUG, format, v...) }

// Tracef prints a trace message prefixed with "[TRACE] ". The most verbose
// level; used for per-packet send/receive logging.
func Tracef(format string, v ...any) { printf(TRACE, format, v...) }
