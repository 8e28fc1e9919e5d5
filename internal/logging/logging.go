// Package logging hands out per-service loggers so each table's run is
// traceable in its own file while the live console stays readable.
package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
)

const logDir = "logs"

var (
	mu      sync.Mutex
	loggers = make(map[string]*log.Logger)
)

// ForService returns a logger writing to logs/etl_<name>.log, creating the
// directory and file on first use. Loggers are cached so repeated calls for
// the same service share one file handle. If the file cannot be opened the
// logger falls back to stderr rather than failing the run.
func ForService(name string) *log.Logger {
	mu.Lock()
	defer mu.Unlock()

	if logger, ok := loggers[name]; ok {
		return logger
	}

	logger := log.New(openLogFile(name), fmt.Sprintf("[%s] ", name), log.LstdFlags)
	loggers[name] = logger
	return logger
}

func openLogFile(name string) io.Writer {
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		log.Printf("Warning: cannot create log directory: %v", err)
		return os.Stderr
	}

	path := filepath.Join(logDir, fmt.Sprintf("etl_%s.log", name))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		log.Printf("Warning: cannot open %s: %v", path, err)
		return os.Stderr
	}
	return f
}
