// Package log configures apex/log for swrctl.
package log

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/apex/log"
)

// EnvVar sets the apex level: DEBUG, INFO, WARN, ERROR (default), FATAL.
const EnvVar = "SWRCTL_LOG"

// InitLogger installs Handler on stderr with the level from SWRCTL_LOG.
func InitLogger() {
	level, err := log.ParseLevel(strings.ToLower(os.Getenv(EnvVar)))
	if err != nil {
		level = log.ErrorLevel
	}
	log.SetHandler(NewHandler(os.Stderr))
	log.SetLevel(level)
}

// Handler prints "time L message key=value ..." lines.
type Handler struct {
	mu  sync.Mutex
	w   io.Writer
	now func() time.Time
}

func NewHandler(w io.Writer) *Handler { return &Handler{w: w, now: time.Now} }

func (h *Handler) HandleLog(e *log.Entry) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	ts := h.now().Format("2006-01-02 15:04:05")
	level := strings.ToUpper(e.Level.String())
	fmt.Fprintf(h.w, "%s %.1s %s", ts, level, e.Message)
	for _, name := range e.Fields.Names() {
		fmt.Fprintf(h.w, " %s=%v", name, e.Fields.Get(name))
	}
	fmt.Fprintln(h.w)
	return nil
}
