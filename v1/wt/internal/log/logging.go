// Copyright (C) 2021 Webtrace. All rights reserved.

// Package log implements a leveled logging system for the webtrace shim. It
// checks the current log level and decides whether to print the logging texts
// or ignore them.
package log

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
)

// LogLevel is a type that defines the log level.
type LogLevel uint8

// logLevel is the type for the protected log level
// DO NOT COPY ME
type logLevel struct {
	LogLevel
	sync.RWMutex
}

// log levels
const (
	DEBUG LogLevel = iota
	INFO
	WARNING
	ERROR
)

const envWebtraceLogLevel = "WEBTRACE_DEBUG_LEVEL"

// LevelStr represents the log levels in strings
var LevelStr = []string{
	DEBUG:   "DEBUG",
	INFO:    "INFO",
	WARNING: "WARN",
	ERROR:   "ERROR",
}

// DefaultLevel defines the default log level
const DefaultLevel = WARNING

// The global log level.
var (
	globalLevel = &logLevel{LogLevel: DefaultLevel}
	logger      = log.New(os.Stderr, "", log.LstdFlags|log.Lmicroseconds)
)

func init() {
	SetLevelFromStr(os.Getenv(envWebtraceLogLevel))
}

// SetOutput sets the output destination for the internal logger.
func SetOutput(w io.Writer) {
	logger.SetOutput(w)
}

// SetLevelFromStr parses the input string to a LogLevel and changes the level
// of the global logger accordingly.
func SetLevelFromStr(s string) {
	level := DefaultLevel

	if l, valid := ToLogLevel(s); valid {
		level = l
	}

	SetLevel(level)
}

// ToLogLevel converts a string to a log level, or returns false for any error
func ToLogLevel(level string) (LogLevel, bool) {
	s := strings.ToUpper(strings.TrimSpace(level))
	for idx, str := range LevelStr {
		if s == str {
			return LogLevel(idx), true
		}
	}
	return DefaultLevel, false
}

// SetLevel sets the log level of the webtrace shim
func (l *logLevel) SetLevel(level LogLevel) {
	l.Lock()
	defer l.Unlock()
	l.LogLevel = level
}

// Level returns the current log level of the webtrace shim
func (l *logLevel) Level() LogLevel {
	l.RLock()
	defer l.RUnlock()
	return l.LogLevel
}

var (
	// SetLevel is the wrapper for the global logger
	SetLevel = globalLevel.SetLevel

	// Level is the wrapper for the global logger
	Level = globalLevel.Level
)

// shouldLog checks if a message should be logged with the current level.
func shouldLog(lv LogLevel) bool {
	return lv >= Level()
}

// logIt prints logs based on the debug level.
func logIt(level LogLevel, msg string, args []interface{}) {
	if !shouldLog(level) {
		return
	}

	var buffer bytes.Buffer
	// layer 1: logIt(), layer 2: its wrappers, e.g., Info()
	const numberOfLayersToSkip = 2

	var pre string
	if level == DEBUG {
		// file:line of the caller of the logging wrapper, skipping logIt
		// and the wrapper itself.
		_, file, line, ok := runtime.Caller(numberOfLayersToSkip)
		if ok {
			pre = fmt.Sprintf("%-5s [WT] %s:%d ", LevelStr[level], filepath.Base(file), line)
		} else {
			pre = fmt.Sprintf("%-5s [WT] %s:%s ", LevelStr[level], "na", "na")
		}
	} else { // avoid expensive reflections in production
		pre = fmt.Sprintf("%-5s [WT] ", LevelStr[level])
	}

	buffer.WriteString(pre)

	s := msg
	if msg == "" {
		s = fmt.Sprint(args...)
	} else {
		s = fmt.Sprintf(msg, args...)
	}
	buffer.WriteString(s)

	logger.Print(buffer.String())
}

// Debugf formats the log message with specified args
// and prints it in the DEBUG level
func Debugf(msg string, args ...interface{}) {
	logIt(DEBUG, msg, args)
}

// Debug prints the log message in the DEBUG level
func Debug(args ...interface{}) {
	logIt(DEBUG, "", args)
}

// Infof formats the log message with specified args
// and prints it in the INFO level
func Infof(msg string, args ...interface{}) {
	logIt(INFO, msg, args)
}

// Info prints the log message in the INFO level
func Info(args ...interface{}) {
	logIt(INFO, "", args)
}

// Warningf formats the log message with specified args
// and prints it in the WARNING level
func Warningf(msg string, args ...interface{}) {
	logIt(WARNING, msg, args)
}

// Warning prints the log message in the WARNING level
func Warning(args ...interface{}) {
	logIt(WARNING, "", args)
}

// Errorf formats the log message with specified args
// and prints it in the ERROR level
func Errorf(msg string, args ...interface{}) {
	logIt(ERROR, msg, args)
}

// Error prints the log message in the ERROR level
func Error(args ...interface{}) {
	logIt(ERROR, "", args)
}
