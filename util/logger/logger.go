// Package logger prints leveled log lines with colored level tags.
// The initial level is read from the LOG_LEVEL environment variable and can be changed at runtime.
package logger

import (
	"fmt"
	"log"
	"os"
	"strings"
	"sync/atomic"

	"github.com/fatih/color"
)

type LogLevel int32

const (
	None LogLevel = iota
	Warn
	Info
	Debug
	Trace
)

const LOG_LEVEL_ENV = "LOG_LEVEL"

var logLevel atomic.Int32

var (
	warnTag  = color.New(color.FgYellow).Sprint("[WARN]")
	infoTag  = color.New(color.FgCyan).Sprint("[INFO]")
	debugTag = color.New(color.FgMagenta).Sprint("[DEBUG]")
	traceTag = color.New(color.Faint).Sprint("[TRACE]")
)

func init() {
	envvar, present := os.LookupEnv(LOG_LEVEL_ENV)
	if !present {
		SetLogLevel(Info)
		return
	}

	level, ok := ParseLogLevel(envvar)
	if !ok {
		SetLogLevel(Info)
		Warnf("Unknown log level '%s', defaulting to INFO", envvar)
		return
	}
	SetLogLevel(level)
}

// ParseLogLevel converts a case-insensitive level name into a LogLevel.
func ParseLogLevel(s string) (LogLevel, bool) {
	switch strings.ToUpper(s) {
	case "NONE":
		return None, true
	case "WARN":
		return Warn, true
	case "INFO":
		return Info, true
	case "DEBUG":
		return Debug, true
	case "TRACE":
		return Trace, true
	}
	return None, false
}

func (l LogLevel) String() string {
	switch l {
	case None:
		return "NONE"
	case Warn:
		return "WARN"
	case Info:
		return "INFO"
	case Debug:
		return "DEBUG"
	case Trace:
		return "TRACE"
	}
	return fmt.Sprintf("LogLevel(%d)", int32(l))
}

func SetLogLevel(level LogLevel) {
	logLevel.Store(int32(level))
}

func GetLogLevel() LogLevel {
	return LogLevel(logLevel.Load())
}

// Warnf prints a message prefixed with "[WARN] ".
func Warnf(format string, v ...any) {
	printf(Warn, warnTag, format, v...)
}

// Infof prints an informational message prefixed with "[INFO] ".
func Infof(format string, v ...any) {
	printf(Info, infoTag, format, v...)
}

// Debugf prints a debug message prefixed with "[DEBUG] ".
func Debugf(format string, v ...any) {
	printf(Debug, debugTag, format, v...)
}

// Tracef is for per-datagram output.
func Tracef(format string, v ...any) {
	printf(Trace, traceTag, format, v...)
}

func printf(level LogLevel, tag string, format string, v ...any) {
	if GetLogLevel() < level {
		return
	}
	log.Printf(tag+" "+format, v...)
}
