// Package main implements the kotoba command line interface. Kotoba is a
// graph transformation engine: rules rewrite property graphs by pattern
// matching, and strategies compose rules into fixpoints, sagas, parallel
// branches and long-running workflow steps.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"runtime"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "kotoba"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := newRootCommand().Execute(); err != nil {
		slog.Error("command failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}
