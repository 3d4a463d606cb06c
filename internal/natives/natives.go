// Package natives contains the built-in commands. They are trusted Go code
// and run with full host capabilities; their names are protected from
// addCommand and removeCommand.
package natives

import (
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/hyperifyio/cmdbot/internal/command"
)

// Options configures the built-ins. Zero values are replaced with
// production defaults.
type Options struct {
	// Started is when the process came up; uptime reports from here.
	Started time.Time
	Now     func() time.Time
	// IntN returns a uniform int in [0, n). It must be safe for concurrent use.
	IntN       func(n int) int
	HTTPClient *http.Client
	// LinkMaxBytes caps how much of a linked document is read.
	LinkMaxBytes int64
}

func (o Options) withDefaults() Options {
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Started.IsZero() {
		o.Started = o.Now()
	}
	if o.IntN == nil {
		o.IntN = rand.IntN
	}
	if o.HTTPClient == nil {
		o.HTTPClient = &http.Client{Timeout: defaultLinkTimeout, CheckRedirect: limitRedirects}
	}
	if o.LinkMaxBytes <= 0 {
		o.LinkMaxBytes = defaultLinkMaxBytes
	}
	return o
}

// Builtins returns every native descriptor.
func Builtins(opts Options) []command.Descriptor {
	opts = opts.withDefaults()
	clock := clock{started: opts.Started, now: opts.Now}
	fun := fun{intN: opts.IntN}
	links := &linkPreviewer{client: opts.HTTPClient, maxBytes: opts.LinkMaxBytes}
	return []command.Descriptor{
		command.Native("help", "Describe a command: `!!help <command>`.", help),
		command.Native("listCommands", "List every available command.", listCommands),
		command.Native("addCommand", "Add or replace a command: `!!addCommand <name> <script>` or `!!addCommand -t <name> <reply text>`.", addCommand),
		command.Native("removeCommand", "Remove a custom command: `!!removeCommand <name>`.", removeCommand),
		command.Native("coinflip", "Flip a coin.", fun.coinflip),
		command.Native("choose", "Pick one of several options: `!!choose pizza pasta burger`.", fun.choose),
		command.Native("dice", "Roll dice: `!!dice 2d20`, `!!dice 3d6+5`.", fun.dice),
		command.Native("eightball", "Ask the magic 8-ball a yes/no question.", fun.eightball),
		command.Native("uptime", "Show how long the bot has been running.", clock.uptime),
		command.Native("countdown", "Time left until a date: `!!countdown 2026-12-25`.", clock.countdown),
		command.Native("link", "Preview a web page or PDF: `!!link <url>`.", links.preview),
	}
}

// New builds the protected native set.
func New(opts Options) (*command.Natives, error) {
	return command.NewNatives(Builtins(opts)...)
}
