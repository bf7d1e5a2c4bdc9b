package zap

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/unkn0wn-root/swrcache"
)

func TestZapLoggerLevelsAndFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := ZapLogger{L: zap.New(core)}

	l.Debug("fetch failed", swrcache.Fields{"key": "analyses:list", "err": errors.New("boom")})
	l.Warn("background revalidation failed", nil)

	entries := logs.All()
	require.Len(t, entries, 2)
	require.Equal(t, zapcore.DebugLevel, entries[0].Level)
	ctx := entries[0].ContextMap()
	require.Equal(t, "analyses:list", ctx["key"])
	require.Equal(t, "boom", ctx["err"])
	require.Equal(t, zapcore.WarnLevel, entries[1].Level)
	require.Empty(t, entries[1].Context)
}
