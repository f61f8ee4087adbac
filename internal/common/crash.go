package common

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"
)

var (
	crashMu  sync.Mutex
	crashDir = "./logs"
)

// InstallCrashHandler sets the directory crash reports are written to.
// Call it first in main, then defer RecoverWithCrashFile.
func InstallCrashHandler(dir string) {
	crashMu.Lock()
	defer crashMu.Unlock()

	if dir != "" {
		crashDir = dir
	}
	if err := os.MkdirAll(crashDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "CRASH: failed to create crash directory: %v\n", err)
	}
}

// WriteCrashFile writes the panic value, its stack and every goroutine's
// stack to crash-<timestamp>.log and returns the path. On failure the report
// goes to stderr and "" is returned.
func WriteCrashFile(panicVal interface{}, stackTrace string) string {
	crashMu.Lock()
	dir := crashDir
	crashMu.Unlock()

	now := time.Now()
	path := filepath.Join(dir, fmt.Sprintf("crash-%s.log", now.Format("2006-01-02T15-04-05")))

	var b strings.Builder
	fmt.Fprintf(&b, "=== VALUESCREEN CRASH REPORT ===\n")
	fmt.Fprintf(&b, "Time: %s\nVersion: %s\n", now.Format(time.RFC3339), GetFullVersion())
	fmt.Fprintf(&b, "Goroutines: %d  GOOS: %s  GOARCH: %s\n\n", runtime.NumGoroutine(), runtime.GOOS, runtime.GOARCH)
	fmt.Fprintf(&b, "=== PANIC ===\n%v\n\n", panicVal)
	fmt.Fprintf(&b, "=== STACK ===\n%s\n\n", stackTrace)
	fmt.Fprintf(&b, "=== ALL GOROUTINES ===\n%s\n", allStacks())

	report := b.String()
	if err := os.WriteFile(path, []byte(report), 0644); err != nil {
		fmt.Fprintf(os.Stderr, "CRASH: failed to write crash file: %v\n%s", err, report)
		return ""
	}

	fmt.Fprintf(os.Stderr, "\n!!! FATAL CRASH - report saved to: %s !!!\nPanic: %v\n", path, panicVal)
	return path
}

func allStacks() string {
	buf := make([]byte, 64*1024)
	for {
		n := runtime.Stack(buf, true)
		if n < len(buf) || len(buf) >= 64*1024*1024 {
			return string(buf[:n])
		}
		buf = make([]byte, len(buf)*2)
	}
}

// RecoverWithCrashFile writes a crash report for a panic and exits.
// Usage: defer common.RecoverWithCrashFile()
func RecoverWithCrashFile() {
	if r := recover(); r != nil {
		WriteCrashFile(r, stack())
		os.Exit(1)
	}
}
