package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/apex/log"
	"github.com/apex/log/handlers/cli"
	"github.com/apex/log/handlers/multi"
	"github.com/apex/log/handlers/text"
)

// InitializeAppLog sends log output to stderr and appends it to logPath.
// An empty logPath logs to stderr only.
func InitializeAppLog(logPath string, debug bool) error {
	level := log.InfoLevel
	if debug {
		level = log.DebugLevel
	}
	log.SetLevel(level)

	if logPath == "" {
		log.SetHandler(cli.New(os.Stderr))
		return nil
	}
	logFile, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		log.SetHandler(cli.New(os.Stderr))
		return fmt.Errorf("open log file %s: %w", logPath, err)
	}
	log.SetHandler(multi.New(cli.New(os.Stderr), text.New(logFile)))
	log.Infof("Application started, logging to %s", logPath)
	return nil
}

// IfError logs a non-fatal error along with the caller's file and line.
func IfError(err error, message string) {
	if err != nil {
		_, file, line, _ := runtime.Caller(1)
		log.WithField("at", fmt.Sprintf("%s:%d", filepath.Base(file), line)).WithError(err).Warn(message)
	}
}

// RemoveSpaces strips spaces and tabs from a hex string.
func RemoveSpaces(s string) string {
	return strings.NewReplacer(" ", "", "\t", "").Replace(s)
}

// ReadNullTerminatedString converts a byte slice to a string, stopping at the first null byte.
func ReadNullTerminatedString(data []byte) string {
	for i, b := range data {
		if b == 0 {
			return string(data[:i])
		}
	}
	return string(data)
}
