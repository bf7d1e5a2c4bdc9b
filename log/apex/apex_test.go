package apex

import (
	"testing"

	"github.com/apex/log"
	"github.com/apex/log/handlers/memory"
	"github.com/stretchr/testify/require"

	"github.com/unkn0wn-root/swrcache"
)

func TestApexLoggerLevelsAndFields(t *testing.T) {
	h := memory.New()
	l := Logger{L: &log.Logger{Handler: h, Level: log.InfoLevel}}

	l.Debug("hidden", swrcache.Fields{"key": "k"})
	l.Info("cache reset", swrcache.Fields{"removed": 2})
	l.Error("close failed", nil)

	require.Len(t, h.Entries, 2)
	require.Equal(t, log.InfoLevel, h.Entries[0].Level)
	require.Equal(t, "cache reset", h.Entries[0].Message)
	require.Equal(t, 2, h.Entries[0].Fields.Get("removed"))
	require.Equal(t, log.ErrorLevel, h.Entries[1].Level)
}
