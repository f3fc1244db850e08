// Package logger is a small leveled logger shared by the whole service.
// The level is set once at startup from the LOG_LEVEL environment value.
package logger

import (
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

var (
	mu    sync.RWMutex
	out   *log.Logger = log.New(os.Stdout, "", 0)
	level Level       = LevelInfo
)

// Init sets the global level (debug, info, warn, error, fatal;
// case-insensitive). Unknown values fall back to info.
func Init(l string) {
	mu.Lock()
	defer mu.Unlock()
	switch strings.ToLower(strings.TrimSpace(l)) {
	case "debug":
		level = LevelDebug
	case "warn", "warning":
		level = LevelWarn
	case "error":
		level = LevelError
	case "fatal":
		level = LevelFatal
	default:
		level = LevelInfo
	}
}

func header(lvl string) string {
	return fmt.Sprintf("%s [%s] ", time.Now().Format(time.RFC3339), strings.ToUpper(lvl))
}

func enabled(l Level) bool {
	mu.RLock()
	defer mu.RUnlock()
	return l >= level
}

func Debugf(format string, v ...any) {
	if enabled(LevelDebug) {
		out.Printf(header("debug")+format, v...)
	}
}

func Infof(format string, v ...any) {
	if enabled(LevelInfo) {
		out.Printf(header("info")+format, v...)
	}
}

func Warnf(format string, v ...any) {
	if enabled(LevelWarn) {
		out.Printf(header("warn")+format, v...)
	}
}

func Errorf(format string, v ...any) {
	if enabled(LevelError) {
		out.Printf(header("error")+format, v...)
	}
}

// Fatalf logs and exits the process.
func Fatalf(format string, v ...any) {
	out.Printf(header("fatal")+format, v...)
	os.Exit(1)
}

// LevelString returns the current level as text.
func LevelString() string {
	mu.RLock()
	defer mu.RUnlock()
	switch level {
	case LevelDebug:
		return "debug"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	case LevelFatal:
		return "fatal"
	default:
		return "info"
	}
}
