package logging

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestNewLoggerLevels(t *testing.T) {
	cases := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		"":        zapcore.InfoLevel,
		"WARNING": zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"bogus":   zapcore.InfoLevel,
	}
	for level, expected := range cases {
		for _, format := range []string{"json", "console"} {
			logger, err := NewLogger(level, format)
			if err != nil {
				t.Fatalf("NewLogger(%q, %q) failed: %v", level, format, err)
			}
			if !logger.Core().Enabled(expected) {
				t.Fatalf("expected level %v enabled for %q", expected, level)
			}
			if expected > zapcore.DebugLevel && logger.Core().Enabled(expected-1) {
				t.Fatalf("expected level below %v disabled for %q", expected, level)
			}
		}
	}
}
