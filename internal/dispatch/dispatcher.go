// Package dispatch turns inbound chat messages into command executions. It
// resolves the invocation, builds the registry view for this one dispatch,
// routes to the native, template or script path and publishes the outcome.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hyperifyio/cmdbot/internal/apperr"
	"github.com/hyperifyio/cmdbot/internal/audit"
	"github.com/hyperifyio/cmdbot/internal/command"
	"github.com/hyperifyio/cmdbot/internal/gateway"
	"github.com/hyperifyio/cmdbot/internal/sandbox"
	"github.com/hyperifyio/cmdbot/internal/store"
)

const tracerName = "github.com/hyperifyio/cmdbot/internal/dispatch"

// Options are the dispatcher's collaborators. Natives, Store, Engine and
// Sender are required.
type Options struct {
	Natives *command.Natives
	Store   store.Store
	Engine  *sandbox.Engine
	Sender  gateway.Sender
	Logger  *slog.Logger
	Audit   *audit.Logger
	Tracer  trace.Tracer
	// BotID drops messages the bot itself authored.
	BotID string
	// ReplyUnknown makes unknown commands answer "does not exist" instead
	// of staying silent.
	ReplyUnknown bool
}

// Dispatcher is safe for concurrent use; every Handle call owns its own
// registry view and execution context.
type Dispatcher struct {
	natives      *command.Natives
	store        store.Store
	engine       *sandbox.Engine
	sender       gateway.Sender
	publisher    *Publisher
	logger       *slog.Logger
	audit        *audit.Logger
	tracer       trace.Tracer
	botID        string
	replyUnknown bool

	wg sync.WaitGroup
}

// New validates opts and returns a Dispatcher.
func New(opts Options) (*Dispatcher, error) {
	if opts.Natives == nil {
		return nil, errors.New("dispatch: natives are required")
	}
	if opts.Store == nil {
		return nil, errors.New("dispatch: store is required")
	}
	if opts.Engine == nil {
		return nil, errors.New("dispatch: sandbox engine is required")
	}
	if opts.Sender == nil {
		return nil, errors.New("dispatch: sender is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}
	return &Dispatcher{
		natives:      opts.Natives,
		store:        opts.Store,
		engine:       opts.Engine,
		sender:       opts.Sender,
		publisher:    NewPublisher(opts.Sender, opts.Engine.Config()),
		logger:       logger,
		audit:        opts.Audit,
		tracer:       tracer,
		botID:        opts.BotID,
		replyUnknown: opts.ReplyUnknown,
	}, nil
}

// Outcome describes what Handle did with one message.
type Outcome struct {
	// Matched is false when the text was not an invocation or was ignored.
	Matched    bool
	Invocation command.Invocation
	Kind       command.Kind
	// Err is the lookup or native handler error, if any.
	Err error
	// Result and Trail are set on the script path.
	Result *sandbox.Result
	Trail  []State
}

// Serve dispatches every message from msgs on its own goroutine until msgs
// is closed or ctx is done, then waits for in-flight invocations.
func (d *Dispatcher) Serve(ctx context.Context, msgs <-chan gateway.Message) error {
	defer d.wg.Wait()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			d.wg.Add(1)
			go func(m gateway.Message) {
				defer d.wg.Done()
				d.Handle(ctx, m)
			}(msg)
		}
	}
}

// Handle processes one message to completion. Non-invocations return
// immediately without touching the store.
func (d *Dispatcher) Handle(ctx context.Context, msg gateway.Message) Outcome {
	if d.botID != "" && msg.AuthorID == d.botID {
		return Outcome{}
	}
	inv, ok := command.Resolve(msg.Text)
	if !ok {
		return Outcome{}
	}
	out := Outcome{Matched: true, Invocation: inv}

	id := uuid.NewString()
	ec := command.ExecContext{
		User:    command.User{ID: msg.AuthorID, Name: msg.AuthorName},
		Args:    inv.Tokens(),
		Channel: command.Channel{ID: msg.ChannelID},
	}
	logger := d.logger.With("invocation", id, "command", inv.Name, "user", msg.AuthorID, "channel", msg.ChannelID)

	ctx, span := d.tracer.Start(ctx, "command.dispatch", trace.WithAttributes(
		attribute.String("command.name", inv.Name),
		attribute.String("command.invocation", id),
	))
	defer span.End()

	reg := d.registry(ctx, logger)
	desc, err := reg.Lookup(inv.Name)
	if err != nil {
		out.Err = err
		d.lookupFailed(ctx, logger, span, inv, ec, err)
		return out
	}
	out.Kind = desc.Kind()
	span.SetAttributes(attribute.String("command.kind", out.Kind.String()))

	switch body := desc.Body.(type) {
	case command.NativeBody:
		call := &command.Call{
			Invocation: inv,
			Exec:       ec,
			Registry:   reg,
			Sender:     d.sender,
			Store:      d.store,
			Validator:  d.engine,
			Logger:     logger,
		}
		if err := runNative(ctx, body.Handler, call); err != nil {
			out.Err = err
			logger.Error("native command failed", "error", err)
			span.RecordError(err)
			span.SetStatus(codes.Error, "native command failed")
			d.reply(ctx, logger, ec, MsgNativeFailure)
		}
	case command.TemplateBody:
		if err := d.publisher.Template(ctx, ec, body.Text); err != nil {
			logger.Error("publish template reply", "error", err)
		}
	case command.ScriptBody:
		res, trail := d.runScript(ctx, logger, id, inv, ec, body.Source)
		out.Result = &res
		out.Trail = trail
		span.SetAttributes(attribute.String("script.status", res.Status.String()))
		if res.Status != sandbox.StatusCompleted {
			span.SetStatus(codes.Error, res.Status.String())
		}
	default:
		logger.Error("descriptor has no runnable body", "kind", desc.Kind().String())
		d.reply(ctx, logger, ec, MsgMisconfigured)
	}
	return out
}

// registry builds this dispatch's view. A store failure degrades to natives
// only and is not surfaced to the user.
func (d *Dispatcher) registry(ctx context.Context, logger *slog.Logger) *command.Registry {
	recs, err := d.store.FindAll(ctx)
	if err != nil {
		logger.Warn("command store unavailable; serving natives only", "error", err)
		recs = nil
	}
	return command.BuildRegistry(d.natives, recs, logger)
}

func (d *Dispatcher) lookupFailed(ctx context.Context, logger *slog.Logger, span trace.Span, inv command.Invocation, ec command.ExecContext, err error) {
	switch apperr.CodeOf(err) {
	case apperr.CodeNotFound:
		logger.Debug("unknown command")
		if d.replyUnknown {
			d.reply(ctx, logger, ec, fmt.Sprintf("command `%s` does not exist.", inv.Name))
		}
	case apperr.CodeMisconfigured:
		logger.Error("refusing misconfigured command", "error", err)
		span.SetStatus(codes.Error, "misconfigured")
		d.reply(ctx, logger, ec, MsgMisconfigured)
	default:
		logger.Error("command lookup failed", "error", err)
		span.SetStatus(codes.Error, "lookup failed")
	}
}

func (d *Dispatcher) runScript(ctx context.Context, logger *slog.Logger, id string, inv command.Invocation, ec command.ExecContext, source string) (sandbox.Result, []State) {
	lc := newLifecycle()
	start := time.Now()

	lc.must(StateValidating)
	var res sandbox.Result
	if err := d.engine.Precheck(source); err != nil {
		lc.must(StateRejected)
		res = sandbox.Rejected(err)
	} else {
		lc.must(StateExecuting)
		res = d.engine.Run(ctx, source, ec)
		switch res.Status {
		case sandbox.StatusCompleted:
			lc.must(StateCompleted)
		case sandbox.StatusTimedOut:
			lc.must(StateTimedOut)
		default:
			lc.must(StateFailed)
		}
	}
	elapsed := time.Since(start)

	if res.Status == sandbox.StatusCompleted {
		logger.Info("script completed", "ms", elapsed.Milliseconds(), "bytes", len(res.Text), "truncated", res.Truncated)
	} else {
		logger.Warn("script did not complete", "status", res.Status.String(), "reason", sandbox.Describe(res, d.engine.Config()))
	}

	if err := d.publisher.Result(ctx, ec, res); err != nil {
		logger.Error("publish script reply", "error", err)
	}
	lc.must(StatePublished)

	if err := d.audit.Record(audit.Entry{
		Invocation: id,
		Command:    inv.Name,
		User:       ec.User.ID,
		Channel:    ec.Channel.ID,
		Args:       ec.Args,
		Status:     res.Status.String(),
		Category:   string(res.Category()),
		MS:         elapsed.Milliseconds(),
		BytesOut:   len(res.Text),
		Truncated:  res.Truncated,
	}); err != nil {
		logger.Warn("write audit entry", "error", err)
	}
	return res, lc.trail
}

func (d *Dispatcher) reply(ctx context.Context, logger *slog.Logger, ec command.ExecContext, text string) {
	if err := d.publisher.Reply(ctx, ec, text); err != nil {
		logger.Error("publish reply", "error", err)
	}
}

// runNative calls a trusted handler, converting a panic into an error so a
// broken built-in cannot take down the intake loop.
func runNative(ctx context.Context, fn command.NativeFunc, call *command.Call) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("native command panicked: %v", r)
		}
	}()
	return fn(ctx, call)
}
