package command

import (
	"fmt"
	"io"
	stdslog "log/slog"
	"strings"

	apexlog "github.com/apex/log"
	"github.com/sirupsen/logrus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/unkn0wn-root/swrcache"
	mylog "github.com/unkn0wn-root/swrcache/internal/log"
	apexadapter "github.com/unkn0wn-root/swrcache/log/apex"
	logrusadapter "github.com/unkn0wn-root/swrcache/log/logrus"
	slogadapter "github.com/unkn0wn-root/swrcache/log/slog"
	zapadapter "github.com/unkn0wn-root/swrcache/log/zap"
)

// newLogger builds the cache logger for backend at level, writing to w.
// The returned func flushes buffered output.
func newLogger(backend, level string, w io.Writer) (swrcache.Logger, func(), error) {
	level = strings.ToLower(level)
	if level == "" {
		level = "info"
	}
	nop := func() {}

	switch strings.ToLower(backend) {
	case "", "slog":
		var lv stdslog.Level
		if err := lv.UnmarshalText([]byte(level)); err != nil {
			return nil, nil, fmt.Errorf("slog level: %w", err)
		}
		h := stdslog.NewTextHandler(w, &stdslog.HandlerOptions{Level: lv})
		return slogadapter.Logger{L: stdslog.New(h)}, nop, nil

	case "zap":
		lv, err := zapcore.ParseLevel(level)
		if err != nil {
			return nil, nil, fmt.Errorf("zap level: %w", err)
		}
		enc := zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
		l := zap.New(zapcore.NewCore(enc, zapcore.AddSync(w), lv))
		return zapadapter.ZapLogger{L: l}, func() { _ = l.Sync() }, nil

	case "logrus":
		lv, err := logrus.ParseLevel(level)
		if err != nil {
			return nil, nil, fmt.Errorf("logrus level: %w", err)
		}
		l := logrus.New()
		l.SetOutput(w)
		l.SetLevel(lv)
		return logrusadapter.LogrusLogger{E: logrus.NewEntry(l)}, nop, nil

	case "apex":
		lv, err := apexlog.ParseLevel(level)
		if err != nil {
			return nil, nil, fmt.Errorf("apex level: %w", err)
		}
		l := &apexlog.Logger{Handler: mylog.NewHandler(w), Level: lv}
		return apexadapter.Logger{L: l}, nop, nil

	case "none":
		return swrcache.NopLogger{}, nop, nil

	default:
		return nil, nil, fmt.Errorf("unknown logger %q (want slog, zap, logrus, apex or none)", backend)
	}
}
