// Package audit appends one NDJSON line per script execution to a daily
// log file.
package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Entry is one script execution. Args are redacted before writing.
type Entry struct {
	TS         string   `json:"ts"`
	Invocation string   `json:"invocation"`
	Command    string   `json:"command"`
	User       string   `json:"user"`
	Channel    string   `json:"channel"`
	Args       []string `json:"args,omitempty"`
	Status     string   `json:"status"`
	Category   string   `json:"category,omitempty"`
	MS         int64    `json:"ms"`
	BytesOut   int      `json:"bytesOut"`
	Truncated  bool     `json:"truncated"`
}

// Logger writes entries under dir as YYYYMMDD.log. A nil Logger discards
// everything.
type Logger struct {
	dir      string
	redactor *Redactor
	now      func() time.Time

	mu sync.Mutex
}

// New returns a Logger rooted at dir, or nil when dir is empty.
func New(dir string, redactor *Redactor) *Logger {
	if dir == "" {
		return nil
	}
	return &Logger{dir: dir, redactor: redactor, now: time.Now}
}

// Record appends e. TS is filled in when empty.
func (l *Logger) Record(e Entry) error {
	if l == nil {
		return nil
	}
	now := l.now().UTC()
	if e.TS == "" {
		e.TS = now.Format(time.RFC3339Nano)
	}
	e.Args = l.redactor.Strings(e.Args)
	e.User = l.redactor.String(e.User)

	b, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal audit entry: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return fmt.Errorf("create audit dir: %w", err)
	}
	path := filepath.Join(l.dir, now.Format("20060102")+".log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil {
			_ = cerr
		}
	}()
	if _, err := f.Write(append(b, '\n')); err != nil {
		return fmt.Errorf("append audit log: %w", err)
	}
	return nil
}
