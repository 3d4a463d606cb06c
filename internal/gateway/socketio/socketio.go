// Package socketio connects the bot to a chat relay over socket.io.
//
// Inbound chat events arrive as "message" with a JSON object payload
// {author_id, author_name, text, channel_id}; replies are emitted as "send"
// with {channel_id, text}.
package socketio

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"

	"github.com/hyperifyio/cmdbot/internal/gateway"
)

const (
	EventMessage = "message"
	EventSend    = "send"

	defaultConnectTimeout = 15 * time.Second
	inboundBuffer         = 256
)

// ErrClosed is returned by Send after Close.
var ErrClosed = errors.New("socket.io gateway closed")

// Options configures Dial.
type Options struct {
	URL                string
	Namespace          string
	InsecureSkipVerify bool
	ConnectTimeout     time.Duration
	Logger             *slog.Logger
}

// Gateway is a connected socket.io client.
type Gateway struct {
	io     *socket.Socket
	logger *slog.Logger
	msgs   chan gateway.Message

	mu        sync.Mutex
	closed    bool
	closeOnce sync.Once
}

// wireMessage is the inbound payload.
type wireMessage struct {
	AuthorID   string `json:"author_id"`
	AuthorName string `json:"author_name"`
	Text       string `json:"text"`
	ChannelID  string `json:"channel_id"`
}

// Dial connects and waits for the namespace handshake.
func Dial(ctx context.Context, opts Options) (*Gateway, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	logger = logger.With("gateway", "socketio", "url", opts.URL)

	parsedURL, err := url.Parse(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}
	if parsedURL.Scheme == "" || parsedURL.Host == "" {
		return nil, fmt.Errorf("socket.io URL must be absolute, got %q", opts.URL)
	}
	namespace := opts.Namespace
	if namespace == "" {
		namespace = "/"
	}
	timeout := opts.ConnectTimeout
	if timeout <= 0 {
		timeout = defaultConnectTimeout
	}

	sopts := socket.DefaultOptions()
	if parsedURL.Path != "" {
		sopts.SetPath(parsedURL.Path)
	}
	if opts.InsecureSkipVerify {
		logger.Warn("Skipping TLS certificate verification")
		sopts.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	}
	sopts.SetTransports(types.NewSet(transports.WebSocket))

	baseURL := fmt.Sprintf("%s://%s", parsedURL.Scheme, parsedURL.Host)
	manager := socket.NewManager(baseURL, sopts)
	io := manager.Socket(namespace, sopts)

	g := &Gateway{
		io:     io,
		logger: logger,
		msgs:   make(chan gateway.Message, inboundBuffer),
	}

	connectChan := make(chan error, 1)
	io.Once(types.EventName("connect"), func(...any) {
		logger.Info("Connected", "sid", io.Id())
		connectChan <- nil
	})
	io.Once(types.EventName("connect_error"), func(errs ...any) {
		err := errors.New("connect error")
		if len(errs) > 0 {
			if e, ok := errs[0].(error); ok {
				err = e
			}
		}
		connectChan <- err
	})
	io.On(types.EventName("disconnect"), func(reason ...any) {
		logger.Warn("Disconnected", "reason", fmt.Sprint(reason...))
	})
	io.On(types.EventName(EventMessage), g.receive)

	io.Connect()
	select {
	case err := <-connectChan:
		if err != nil {
			io.Disconnect()
			return nil, fmt.Errorf("socket.io connection failed: %w", err)
		}
		return g, nil
	case <-ctx.Done():
		io.Disconnect()
		return nil, fmt.Errorf("context cancelled while waiting for socket.io connection: %w", ctx.Err())
	case <-time.After(timeout):
		io.Disconnect()
		return nil, fmt.Errorf("timed out after %s waiting for socket.io connection", timeout)
	}
}

func (g *Gateway) receive(data ...any) {
	if len(data) == 0 {
		return
	}
	m, err := decodeMessage(data[0])
	if err != nil {
		g.logger.Warn("dropping malformed message event", "error", err)
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return
	}
	select {
	case g.msgs <- m:
	default:
		g.logger.Warn("inbound queue full; dropping message", "channel", m.ChannelID)
	}
}

// decodeMessage accepts the payload as a decoded JSON object, raw JSON
// bytes or a JSON string.
func decodeMessage(payload any) (gateway.Message, error) {
	var raw []byte
	switch v := payload.(type) {
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return gateway.Message{}, fmt.Errorf("encode payload: %w", err)
		}
		raw = b
	}
	var w wireMessage
	if err := json.Unmarshal(raw, &w); err != nil {
		return gateway.Message{}, fmt.Errorf("decode payload: %w", err)
	}
	if w.ChannelID == "" || w.AuthorID == "" {
		return gateway.Message{}, errors.New("payload needs author_id and channel_id")
	}
	return gateway.Message{AuthorID: w.AuthorID, AuthorName: w.AuthorName, Text: w.Text, ChannelID: w.ChannelID}, nil
}

// Messages returns the inbound stream. It is closed by Close.
func (g *Gateway) Messages() <-chan gateway.Message { return g.msgs }

// Send emits a reply to channelID.
func (g *Gateway) Send(_ context.Context, channelID, text string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return ErrClosed
	}
	if !g.io.Connected() {
		return fmt.Errorf("socket.io client is not connected")
	}
	g.io.Emit(EventSend, map[string]any{"channel_id": channelID, "text": text})
	return nil
}

// Close disconnects and ends the inbound stream.
func (g *Gateway) Close() error {
	g.closeOnce.Do(func() {
		g.logger.Info("Closing socket.io client", "sid", g.io.Id())
		g.io.Disconnect()
		g.mu.Lock()
		g.closed = true
		close(g.msgs)
		g.mu.Unlock()
	})
	return nil
}
