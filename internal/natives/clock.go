package natives

import (
	"context"
	"fmt"
	"time"

	"github.com/hyperifyio/cmdbot/internal/command"
)

const countdownLayout = "2006-01-02"

type clock struct {
	started time.Time
	now     func() time.Time
}

func (c clock) uptime(ctx context.Context, call *command.Call) error {
	d := c.now().Sub(c.started)
	if d < 0 {
		d = 0
	}
	days := int(d / (24 * time.Hour))
	hours := int(d/time.Hour) % 24
	minutes := int(d/time.Minute) % 60
	seconds := int(d/time.Second) % 60
	return call.Reply(ctx, fmt.Sprintf("**Bot Uptime**: %dd %dh %dm %ds", days, hours, minutes, seconds))
}

func (c clock) countdown(ctx context.Context, call *command.Call) error {
	arg := firstToken(call.Invocation.Args)
	if arg == "" {
		return call.Reply(ctx, "Provide a date! Example: `!!countdown 2026-12-25`")
	}
	target, err := time.Parse(countdownLayout, arg)
	if err != nil {
		return call.Reply(ctx, "Invalid date. Use format: YYYY-MM-DD")
	}
	diff := target.Sub(c.now())
	if diff < 0 {
		return call.Reply(ctx, "That date has passed!")
	}
	days := int(diff / (24 * time.Hour))
	hours := int(diff/time.Hour) % 24
	minutes := int(diff/time.Minute) % 60
	return call.Reply(ctx, fmt.Sprintf("**Time until %s**: %d days, %d hours, %d minutes", arg, days, hours, minutes))
}
