// Package console is a line-oriented gateway over a reader and a writer,
// used for local testing of commands without a chat server.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/hyperifyio/cmdbot/internal/gateway"
)

// ErrClosed is returned by Send after Close.
var ErrClosed = errors.New("console gateway closed")

// Identity is who the console user appears as.
type Identity struct {
	UserID    string
	UserName  string
	ChannelID string
}

// Gateway reads one message per line from in and writes replies to out.
type Gateway struct {
	out  io.Writer
	msgs chan gateway.Message
	done chan struct{}

	mu        sync.Mutex
	closed    bool
	closeOnce sync.Once
}

// New starts reading lines from in. Messages is closed at EOF or Close.
func New(in io.Reader, out io.Writer, id Identity) *Gateway {
	if id.UserID == "" {
		id.UserID = "console"
	}
	if id.UserName == "" {
		id.UserName = id.UserID
	}
	if id.ChannelID == "" {
		id.ChannelID = "console"
	}
	g := &Gateway{
		out:  out,
		msgs: make(chan gateway.Message),
		done: make(chan struct{}),
	}
	go g.read(in, id)
	return g
}

func (g *Gateway) read(in io.Reader, id Identity) {
	defer close(g.msgs)
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		m := gateway.Message{AuthorID: id.UserID, AuthorName: id.UserName, Text: sc.Text(), ChannelID: id.ChannelID}
		select {
		case g.msgs <- m:
		case <-g.done:
			return
		}
	}
}

// Messages returns the inbound stream.
func (g *Gateway) Messages() <-chan gateway.Message { return g.msgs }

// Send writes "[channel] text" on its own line.
func (g *Gateway) Send(_ context.Context, channelID, text string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return ErrClosed
	}
	if _, err := fmt.Fprintf(g.out, "[%s] %s\n", channelID, text); err != nil {
		return fmt.Errorf("write reply: %w", err)
	}
	return nil
}

// Close stops delivery. A read blocked on in is abandoned.
func (g *Gateway) Close() error {
	g.closeOnce.Do(func() {
		g.mu.Lock()
		g.closed = true
		g.mu.Unlock()
		close(g.done)
	})
	return nil
}
