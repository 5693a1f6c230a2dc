// ABOUTME: slog-backed ErrorSink used as the default managed-error reporter.

package backend

import "log/slog"

// SlogSink reports managed errors through a structured logger.
type SlogSink struct {
	logger *slog.Logger
}

// NewSlogSink creates a sink writing to logger.
func NewSlogSink(logger *slog.Logger) *SlogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogSink{logger: logger.With("component", "error-sink")}
}

// Report logs the error with its context fields at error level.
func (s *SlogSink) Report(err error, fields map[string]any) {
	attrs := make([]any, 0, 2+2*len(fields))
	attrs = append(attrs, "error", err)
	for k, v := range fields {
		attrs = append(attrs, k, v)
	}
	s.logger.Error("managed error", attrs...)
}
