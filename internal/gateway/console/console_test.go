package console

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperifyio/cmdbot/internal/gateway"
)

var _ gateway.Gateway = (*Gateway)(nil)

func TestGateway_ReadsLinesUntilEOF(t *testing.T) {
	var out bytes.Buffer
	g := New(strings.NewReader("!!help\nhello\n"), &out, Identity{UserID: "u1"})

	var got []gateway.Message
	for m := range g.Messages() {
		got = append(got, m)
	}
	require.Len(t, got, 2)
	assert.Equal(t, gateway.Message{AuthorID: "u1", AuthorName: "u1", Text: "!!help", ChannelID: "console"}, got[0])
	assert.Equal(t, "hello", got[1].Text)
}

func TestGateway_SendAndClose(t *testing.T) {
	var out bytes.Buffer
	g := New(strings.NewReader(""), &out, Identity{})

	require.NoError(t, g.Send(context.Background(), "console", "<@console> hi"))
	assert.Equal(t, "[console] <@console> hi\n", out.String())

	require.NoError(t, g.Close())
	require.NoError(t, g.Close())
	assert.ErrorIs(t, g.Send(context.Background(), "console", "late"), ErrClosed)
}
