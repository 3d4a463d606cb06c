// Package sandbox runs untrusted command scripts. Each run gets a fresh goja
// runtime stripped down to an allow-list of pure globals, a hard wall-clock
// deadline enforced by interrupting the runtime from the host goroutine, and
// a bounded output buffer.
//
// The source deny-list in policy.go is best-effort. It rejects known
// dangerous spellings before anything runs; it is not a proof that a script
// which passes is safe.
package sandbox

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dop251/goja"

	"github.com/hyperifyio/cmdbot/internal/command"
)

const (
	DefaultTimeout         = 5 * time.Second
	DefaultMaxSourceLength = 10000
	DefaultOutputKB        = 4
	DefaultMaxCallStack    = 512

	// interruptGrace bounds how long Run waits for an interrupted runtime to
	// unwind before abandoning it.
	interruptGrace = time.Second
	maxErrorLength = 200
)

// Config bounds script cost.
type Config struct {
	// MaxSourceLength is measured in characters.
	MaxSourceLength int
	Timeout         time.Duration
	OutputKB        int
	MaxCallStack    int
}

func (c Config) withDefaults() Config {
	if c.MaxSourceLength <= 0 {
		c.MaxSourceLength = DefaultMaxSourceLength
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.OutputKB <= 0 {
		c.OutputKB = DefaultOutputKB
	}
	if c.MaxCallStack <= 0 {
		c.MaxCallStack = DefaultMaxCallStack
	}
	return c
}

// Engine validates and runs scripts. It holds no per-run state and is safe
// for concurrent use.
type Engine struct {
	cfg    Config
	logger *slog.Logger
}

// New returns an Engine with cfg, filling zero fields with defaults.
func New(cfg Config, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Engine{cfg: cfg.withDefaults(), logger: logger}
}

// Config returns the effective limits.
func (e *Engine) Config() Config { return e.cfg }

// Validate checks a script before it is stored: it must be non-empty, fit
// the length limit, avoid the deny-list and compile.
func (e *Engine) Validate(source string) error {
	if strings.TrimSpace(source) == "" {
		return ErrEmptySource
	}
	if err := e.precheck(source); err != nil {
		return err
	}
	if _, err := compile(source); err != nil {
		return err
	}
	return nil
}

// Precheck applies the cheap pre-execution checks: the length limit, then
// the deny-list scan. Run performs them itself.
func (e *Engine) Precheck(source string) error {
	return e.precheck(source)
}

func (e *Engine) precheck(source string) error {
	if utf8.RuneCountInString(source) > e.cfg.MaxSourceLength {
		return ErrLengthExceeded
	}
	return scanSource(source)
}

// Run executes source with ec as its only view of the invocation. It never
// returns an error; every outcome is a Result.
func (e *Engine) Run(ctx context.Context, source string, ec command.ExecContext) Result {
	if err := e.precheck(source); err != nil {
		return Rejected(err)
	}
	prog, err := compile(source)
	if err != nil {
		return Result{Status: StatusFailed, Err: err}
	}

	out := NewBoundedBuffer(e.cfg.OutputKB)
	r, err := newRealm(ec, out, e.cfg.MaxCallStack)
	if err != nil {
		e.logger.Error("build sandbox realm", "error", err)
		return failed("sandbox unavailable")
	}

	runCtx, cancel := WithWallTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	done := make(chan Result, 1)
	go func() {
		done <- execute(r, prog, out)
	}()

	select {
	case res := <-done:
		return res
	case <-runCtx.Done():
		r.vm.Interrupt("deadline exceeded")
		select {
		case <-done:
		case <-time.After(interruptGrace):
			e.logger.Warn("interrupted script did not unwind; abandoning runtime")
		}
		return timedOut()
	}
}

// execute runs prog and coerces its value. It runs on its own goroutine so
// that Run can interrupt it; coercion happens here too because it may call
// back into script code (toString, getters).
func execute(r *realm, prog *goja.Program, out *BoundedBuffer) (res Result) {
	defer func() {
		if p := recover(); p != nil {
			res = failed(panicMessage(p))
		}
	}()

	v, err := r.vm.RunProgram(prog)
	if err != nil {
		return classify(err)
	}
	text, err := r.coerce(v)
	if err != nil {
		return classify(err)
	}
	// The return value shares the output cap with emit.
	_, _ = out.WriteString(text)
	res = Completed(out.String())
	res.Truncated = out.Truncated()
	return res
}

func wrap(source string) string {
	return "(function () {\n'use strict';\n" + source + "\n})()"
}

func compile(source string) (*goja.Program, error) {
	prog, err := goja.Compile("command", wrap(source), false)
	if err != nil {
		return nil, &RuntimeError{Message: sanitize(err.Error())}
	}
	return prog, nil
}

func classify(err error) Result {
	switch e := err.(type) {
	case *goja.InterruptedError:
		return timedOut()
	case *goja.Exception:
		msg := "uncaught exception"
		if val := e.Value(); val != nil {
			msg = val.String()
		}
		return failed(sanitize(msg))
	default:
		return failed(sanitize(err.Error()))
	}
}

func panicMessage(r interface{}) string {
	switch v := r.(type) {
	case *goja.Exception:
		if val := v.Value(); val != nil {
			return sanitize(val.String())
		}
	case *goja.InterruptedError:
		return "execution interrupted"
	}
	return "internal error"
}

var (
	locationPattern = regexp.MustCompile(`\s*at\s+\S*:\d+:\d+(\(\d+\))?`)
	linePattern     = regexp.MustCompile(`command:\s*(Line\s+)?\d+:\d+\s*`)
)

// sanitize strips stack frames and source locations and caps the length so
// nothing about the host leaks into a reply.
func sanitize(msg string) string {
	if i := strings.IndexAny(msg, "\r\n"); i >= 0 {
		msg = msg[:i]
	}
	msg = locationPattern.ReplaceAllString(msg, "")
	msg = linePattern.ReplaceAllString(msg, "")
	msg = strings.TrimSpace(msg)
	if utf8.RuneCountInString(msg) > maxErrorLength {
		msg = string([]rune(msg)[:maxErrorLength]) + "…"
	}
	if msg == "" {
		return "script failed"
	}
	return msg
}

// Describe renders a non-completed result for humans. It is used for logs
// and as the basis of user-facing diagnostics.
func Describe(res Result, cfg Config) string {
	switch res.Status {
	case StatusCompleted:
		return "completed"
	case StatusTimedOut:
		return fmt.Sprintf("execution exceeded %s", cfg.Timeout)
	case StatusRejected:
		if cat := res.Category(); cat != "" {
			return "forbidden pattern: " + string(cat)
		}
		if res.LengthExceeded() {
			return fmt.Sprintf("source longer than %d characters", cfg.MaxSourceLength)
		}
	}
	if res.Err != nil {
		return res.Err.Error()
	}
	return res.Status.String()
}
