package command

import (
	"context"
	"log/slog"

	"github.com/hyperifyio/cmdbot/internal/gateway"
	"github.com/hyperifyio/cmdbot/internal/store"
)

// User identifies the member who invoked a command.
type User struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Channel identifies where the invocation happened.
type Channel struct {
	ID string `json:"id"`
}

// ExecContext is the per-invocation view handed to a command body. A new
// value is built for every dispatch and is never shared.
type ExecContext struct {
	User    User     `json:"user"`
	Args    []string `json:"args"`
	Channel Channel  `json:"channel"`
}

// Mention renders the platform mention for u.
func Mention(u User) string {
	return "<@" + u.ID + ">"
}

// ScriptValidator checks a script body before it is persisted.
type ScriptValidator interface {
	Validate(source string) error
}

// Call is everything a native handler may use.
type Call struct {
	Invocation Invocation
	Exec       ExecContext
	Registry   *Registry
	Sender     gateway.Sender
	Store      store.Store
	Validator  ScriptValidator
	Logger     *slog.Logger
}

// Reply sends text to the invocation's channel, addressed to the invoking user.
func (c *Call) Reply(ctx context.Context, text string) error {
	return c.Sender.Send(ctx, c.Exec.Channel.ID, Mention(c.Exec.User)+" "+text)
}
