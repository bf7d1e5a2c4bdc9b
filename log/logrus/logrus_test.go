package logrus

import (
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/unkn0wn-root/swrcache"
)

func TestLogrusLoggerLevelsAndFields(t *testing.T) {
	base, hook := test.NewNullLogger()
	base.SetLevel(logrus.DebugLevel)
	l := LogrusLogger{E: logrus.NewEntry(base)}

	boom := errors.New("boom")
	l.Warn("prefetch failed", swrcache.Fields{"key": "projects:list", "err": boom})
	l.Debug("cache reset", swrcache.Fields{"removed": 3})

	require.Len(t, hook.Entries, 2)
	warn := hook.Entries[0]
	require.Equal(t, logrus.WarnLevel, warn.Level)
	require.Equal(t, "prefetch failed", warn.Message)
	require.Equal(t, "projects:list", warn.Data["key"])
	require.Equal(t, boom, warn.Data[logrus.ErrorKey])

	last := hook.LastEntry()
	require.Equal(t, logrus.DebugLevel, last.Level)
	require.Equal(t, 3, last.Data["removed"])
}
