package command

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/unkn0wn-root/swrcache"
)

const strictConfig = "../../config/testdata/strict.yaml"

func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	err := InitApp(&out, &errOut).Run(context.Background(), append([]string{"swrctl"}, args...))
	return out.String(), errOut.String(), err
}

func TestSimulateDedup(t *testing.T) {
	out, _, err := run(t, "simulate", "--callers", "4", "--latency", "1ms", "dedup")
	require.NoError(t, err)
	require.Contains(t, out, "scenario:  dedup")
	require.Contains(t, out, "fetches:   1\n")
	require.Contains(t, out, "1 distinct result(s) across 4 callers")
}

func TestSimulateWithConfigBuildsProviderPerCache(t *testing.T) {
	// invalidate runs two caches; each needs its own lru
	out, _, err := run(t, "--config", strictConfig, "--logger", "none", "simulate", "--latency", "1ms", "invalidate")
	require.NoError(t, err)
	require.Contains(t, out, "final:     dashboard:stats,projects:list")
}

func TestSimulateNeedsScenario(t *testing.T) {
	_, _, err := run(t, "simulate")
	require.ErrorContains(t, err, "scenario required")

	_, _, err = run(t, "simulate", "chaos")
	require.ErrorContains(t, err, "unknown scenario")
}

func TestConfigPrintsResolvedSettings(t *testing.T) {
	out, _, err := run(t, "config", strictConfig)
	require.NoError(t, err)
	require.Contains(t, out, "ttl:             750ms")
	require.Contains(t, out, "policy:          strict")
	require.Contains(t, out, "sweep interval:  5s")
	require.Contains(t, out, "provider:        lru")
}

func TestConfigRejectsInvalidFile(t *testing.T) {
	_, _, err := run(t, "config", "../../config/testdata/invalid.yaml")
	require.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	for _, backend := range []string{"slog", "zap", "logrus", "apex"} {
		t.Run(backend, func(t *testing.T) {
			var buf bytes.Buffer
			l, flush, err := newLogger(backend, "debug", &buf)
			require.NoError(t, err)
			l.Warn("background revalidation failed", swrcache.Fields{"key": "analyses:list"})
			flush()
			require.Contains(t, buf.String(), "background revalidation failed")
			require.Contains(t, buf.String(), "analyses:list")
		})
	}

	l, _, err := newLogger("none", "", nil)
	require.NoError(t, err)
	require.IsType(t, swrcache.NopLogger{}, l)

	_, _, err = newLogger("syslog", "info", nil)
	require.ErrorContains(t, err, "unknown logger")

	_, _, err = newLogger("zap", "loud", nil)
	require.Error(t, err)
}

func TestInvalidateNeedsBus(t *testing.T) {
	_, _, err := run(t, "--config", strictConfig, "invalidate", "analyses:list")
	require.ErrorContains(t, err, "no bus transport configured")
}

func TestConfigPrintsBus(t *testing.T) {
	out, _, err := run(t, "config", "../../config/testdata/full.yaml")
	require.NoError(t, err)
	require.Contains(t, out, "bus:             redis localhost:6379 channel=app:invalidate codec=msgpack max=4096")
}
