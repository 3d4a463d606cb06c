// Package gateway defines the messaging collaborator contract: an inbound
// message stream and an outbound sender. Connection lifecycle belongs to the
// concrete gateways in the subpackages.
package gateway

import "context"

// Message is one inbound chat event.
type Message struct {
	AuthorID   string
	AuthorName string
	Text       string
	ChannelID  string
}

// Sender delivers text to a channel.
type Sender interface {
	Send(ctx context.Context, channelID, text string) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, channelID, text string) error

// Send calls f.
func (f SenderFunc) Send(ctx context.Context, channelID, text string) error {
	return f(ctx, channelID, text)
}

// Gateway is a connected chat transport.
type Gateway interface {
	Sender
	// Messages returns the inbound stream. It is closed when the gateway
	// stops delivering.
	Messages() <-chan Message
	Close() error
}
