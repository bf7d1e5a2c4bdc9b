// Package apex adapts github.com/apex/log to swrcache.Logger.
package apex

import (
	"github.com/apex/log"

	"github.com/unkn0wn-root/swrcache"
)

var _ swrcache.Logger = Logger{}

// Logger forwards to L, or to the apex package-level logger when L is nil.
type Logger struct{ L log.Interface }

func (a Logger) Debug(msg string, f swrcache.Fields) { a.entry(f).Debug(msg) }
func (a Logger) Info(msg string, f swrcache.Fields)  { a.entry(f).Info(msg) }
func (a Logger) Warn(msg string, f swrcache.Fields)  { a.entry(f).Warn(msg) }
func (a Logger) Error(msg string, f swrcache.Fields) { a.entry(f).Error(msg) }

func (a Logger) entry(f swrcache.Fields) log.Interface {
	l := a.L
	if l == nil {
		l = log.Log
	}
	if len(f) == 0 {
		return l
	}
	return l.WithFields(log.Fields(f))
}
