package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hyperifyio/cmdbot/internal/command"
	"github.com/hyperifyio/cmdbot/internal/gateway"
	"github.com/hyperifyio/cmdbot/internal/sandbox"
)

// UserPlaceholder in a template body is replaced by the invoker's mention.
const UserPlaceholder = "{user}"

// User-facing diagnostics. None of them carry internal detail.
const (
	MsgNoOutput      = "(no output)"
	MsgTruncated     = " …(output truncated)"
	MsgTimedOut      = "that command took too long and was stopped."
	MsgMisconfigured = "that command is misconfigured and cannot run."
	MsgNativeFailure = "something went wrong running that command."
	MsgCommandIssue  = "there is some issue with that command."
)

// Publisher renders outcomes and delivers them to the invoking user.
type Publisher struct {
	sender gateway.Sender
	limits sandbox.Config
}

// NewPublisher returns a Publisher; limits are quoted in rejection replies.
func NewPublisher(sender gateway.Sender, limits sandbox.Config) *Publisher {
	return &Publisher{sender: sender, limits: limits}
}

// Reply sends text addressed to the invoking user.
func (p *Publisher) Reply(ctx context.Context, ec command.ExecContext, text string) error {
	return p.sender.Send(ctx, ec.Channel.ID, command.Mention(ec.User)+" "+text)
}

// Template sends a template body. The placeholder is substituted, or the
// mention is prefixed when the template has none.
func (p *Publisher) Template(ctx context.Context, ec command.ExecContext, text string) error {
	if strings.Contains(text, UserPlaceholder) {
		return p.sender.Send(ctx, ec.Channel.ID, strings.ReplaceAll(text, UserPlaceholder, command.Mention(ec.User)))
	}
	return p.Reply(ctx, ec, text)
}

// Result sends the single reply for a script execution.
func (p *Publisher) Result(ctx context.Context, ec command.ExecContext, res sandbox.Result) error {
	return p.Reply(ctx, ec, FormatResult(res, p.limits))
}

// FormatResult renders a sandbox result as reply text, without the mention.
func FormatResult(res sandbox.Result, limits sandbox.Config) string {
	switch res.Status {
	case sandbox.StatusCompleted:
		text := res.Text
		if text == "" {
			text = MsgNoOutput
		}
		if res.Truncated {
			text += MsgTruncated
		}
		return text
	case sandbox.StatusTimedOut:
		return MsgTimedOut
	case sandbox.StatusRejected:
		if cat := res.Category(); cat != "" {
			return fmt.Sprintf("that command was not run: it uses a forbidden capability (%s).", cat)
		}
		if res.LengthExceeded() {
			return fmt.Sprintf("that command was not run: scripts are limited to %d characters.", limits.MaxSourceLength)
		}
		return "that command was not run."
	case sandbox.StatusFailed:
		var rerr *sandbox.RuntimeError
		if errors.As(res.Err, &rerr) {
			return fmt.Sprintf("%s `%s`", MsgCommandIssue, rerr.Message)
		}
		return MsgCommandIssue
	default:
		return MsgCommandIssue
	}
}
