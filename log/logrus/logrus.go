package logrus

import (
	"github.com/sirupsen/logrus"

	"github.com/unkn0wn-root/swrcache"
)

var _ swrcache.Logger = LogrusLogger{}

type LogrusLogger struct{ E *logrus.Entry }

func (l LogrusLogger) Debug(msg string, f swrcache.Fields) { l.with(f).Debug(msg) }
func (l LogrusLogger) Info(msg string, f swrcache.Fields)  { l.with(f).Info(msg) }
func (l LogrusLogger) Warn(msg string, f swrcache.Fields)  { l.with(f).Warn(msg) }
func (l LogrusLogger) Error(msg string, f swrcache.Fields) { l.with(f).Error(msg) }

// with maps an "err" field onto logrus' own error key.
func (l LogrusLogger) with(f swrcache.Fields) *logrus.Entry {
	e := l.E
	if err, ok := f["err"].(error); ok {
		e = e.WithError(err)
	}
	fields := make(logrus.Fields, len(f))
	for k, v := range f {
		if k != "err" {
			fields[k] = v
		}
	}
	return e.WithFields(fields)
}
