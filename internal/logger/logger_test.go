package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// TestParseLogLevel verifies mapping from strings to zapcore.Level and handling of unknown values.
func TestParseLogLevel(t *testing.T) {
	t.Parallel()

	cases := map[string]zapcore.Level{
		"debug":  zapcore.DebugLevel,
		"info":   zapcore.InfoLevel,
		" WARN ": zapcore.WarnLevel,
		"error":  zapcore.ErrorLevel,
		"panic":  zapcore.PanicLevel,
		"fatal":  zapcore.FatalLevel,
	}
	for s, lvl := range cases {
		got, ok := ParseLogLevel(s)
		require.True(t, ok)
		require.Equal(t, lvl, got)
	}

	_, ok := ParseLogLevel("unknown")
	require.False(t, ok)
}

// TestFromContext_FallsBackToGlobal ensures a bare context yields the global logger.
func TestFromContext_FallsBackToGlobal(t *testing.T) {
	t.Parallel()

	require.Same(t, Logger(), FromContext(context.Background()))
}

// TestWithKV_AddsFields checks that fields attached to the context end up in log entries.
func TestWithKV_AddsFields(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.DebugLevel)
	ctx := ToContext(context.Background(), zap.New(core).Sugar())
	ctx = WithName(ctx, "escalation")
	ctx = WithKV(ctx, "subject_id", "s-1")

	InfoKV(ctx, "Tick finished", "created", 2)

	entries := logs.All()
	require.Len(t, entries, 1)
	require.Equal(t, "escalation", entries[0].LoggerName)
	require.Equal(t, "s-1", entries[0].ContextMap()["subject_id"])
	require.EqualValues(t, 2, entries[0].ContextMap()["created"])
}

// TestSetup_RejectsUnknownValues ensures configuration typos are reported instead of ignored.
func TestSetup_RejectsUnknownValues(t *testing.T) {
	t.Parallel()

	require.Error(t, Setup("verbose", FormatConsole))
	require.Error(t, Setup("info", "xml"))
}

// TestWithLevel_OverridesCoreLevel verifies that a wrapped core follows its own threshold.
func TestWithLevel_OverridesCoreLevel(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.DebugLevel)
	l := zap.New(core, WithLevel(zapcore.WarnLevel))

	l.Info("dropped")
	l.Warn("kept")

	require.Equal(t, 1, logs.Len())
	require.Equal(t, "kept", logs.All()[0].Message)
}
