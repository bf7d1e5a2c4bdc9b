// Package keys builds cache keys in the "segment:segment" vocabulary used by
// hosts, e.g. "analyses:list" or "analyses:detail:42".
package keys

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

const Sep = ":"

// Join joins segments with Sep. Empty segments are kept so that
// Join("a", "", "b") and Join("a", "b") stay distinct.
func Join(segments ...string) string {
	return strings.Join(segments, Sep)
}

// Prefix returns an anchored pattern matching every key under the given
// segments, e.g. Prefix("analyses") matches "analyses:list" but not
// "analysesX" or "old:analyses:list".
func Prefix(segments ...string) *regexp.Regexp {
	return regexp.MustCompile("^" + regexp.QuoteMeta(Join(segments...)+Sep))
}

// Set returns a deterministic key for a set of members: order-insensitive,
// with a short hash so long member lists stay bounded.
func Set(prefix string, members []string) string {
	s := make([]string, len(members))
	copy(s, members)
	sort.Strings(s)
	sum := sha256.Sum256([]byte(strings.Join(s, ",")))
	return fmt.Sprintf("%s%s%x", prefix, Sep, sum[:8]) // prefix + ":" + 16 hex chars
}

// Fingerprint returns a short stable hash of key, safe to log.
func Fingerprint(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:8])
}
