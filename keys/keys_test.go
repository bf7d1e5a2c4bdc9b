package keys

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestJoin(t *testing.T) {
	require.Equal(t, "analyses:detail:42", Join("analyses", "detail", "42"))
	require.Equal(t, "analyses", Join("analyses"))
	require.NotEqual(t, Join("a", "", "b"), Join("a", "b"))
}

func TestPrefix(t *testing.T) {
	re := Prefix("analyses")
	for key, want := range map[string]bool{
		"analyses:list":      true,
		"analyses:detail:42": true,
		"analyses":           false,
		"analysesX:list":     false,
		"old:analyses:list":  false,
	} {
		require.Equal(t, want, re.MatchString(key), key)
	}

	// metacharacters in segments are literal
	require.False(t, Prefix("a.b").MatchString("aXb:1"))
	require.True(t, Prefix("a.b").MatchString("a.b:1"))
}

func TestSetIsOrderInsensitive(t *testing.T) {
	a := Set("projects:batch", []string{"3", "1", "2"})
	b := Set("projects:batch", []string{"1", "2", "3"})
	require.Equal(t, a, b)
	require.Len(t, a, len("projects:batch")+1+16)
	require.NotEqual(t, a, Set("projects:batch", []string{"1", "2"}))
}

func TestFingerprint(t *testing.T) {
	require.Len(t, Fingerprint("analyses:list"), 16)
	require.Equal(t, Fingerprint("x"), Fingerprint("x"))
	require.NotEqual(t, Fingerprint("x"), Fingerprint("y"))
}
