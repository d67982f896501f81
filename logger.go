package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
)

var (
	std     = log.New(os.Stderr, "", log.Ldate|log.Ltime|log.Lmicroseconds)
	logFile *os.File
)

// initLogger redirects log output to path. An empty path keeps stderr.
func initLogger(path string) error {
	if path == "" {
		return nil
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("cannot create log directory: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("cannot open log file: %w", err)
	}
	logFile = f
	std.SetOutput(f)
	return nil
}

func setLogOutput(w io.Writer) { std.SetOutput(w) }

func closeLogger() error {
	if logFile == nil {
		return nil
	}
	std.SetOutput(os.Stderr)
	err := logFile.Close()
	logFile = nil
	return err
}

func Infof(format string, args ...any)  { write("INFO", format, args...) }
func Warnf(format string, args ...any)  { write("WARN", format, args...) }
func Errorf(format string, args ...any) { write("ERROR", format, args...) }

// Fatalf logs at error level and exits.
func Fatalf(format string, args ...any) {
	write("FATAL", format, args...)
	closeLogger()
	os.Exit(1)
}

func write(level string, format string, args ...any) {
	std.Printf("[%s] %s", level, fmt.Sprintf(format, args...))
}
