package ams

import (
	"fmt"
	"log/slog"
	"os"
)

// Logger is the minimal logging contract the reader loop and dispatcher
// workers use to report drained/malformed frames, mirroring the LOG_WARN
// and LOG_INFO call sites of the protocol's reference implementation.
// Callers that want their own structured logging wire it in through
// Options.Logger; the default wraps log/slog.
type Logger interface {
	Warnf(format string, args ...any)
	Infof(format string, args ...any)
}

type slogLogger struct {
	log *slog.Logger
}

func (l slogLogger) Warnf(format string, args ...any) {
	l.log.Warn(fmt.Sprintf(format, args...))
}

func (l slogLogger) Infof(format string, args ...any) {
	l.log.Info(fmt.Sprintf(format, args...))
}

func defaultLogger() Logger {
	return slogLogger{log: slog.New(slog.NewTextHandler(os.Stderr, nil))}
}
