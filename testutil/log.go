package testutil

import (
	"io"
	"log/slog"
)

// QuietLogger returns a logger that discards everything. Tests pass it to
// constructors whose log output would otherwise drown the test run.
func QuietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
