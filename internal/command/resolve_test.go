package command

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolve(t *testing.T) {
	cases := []struct {
		text string
		ok   bool
		want Invocation
	}{
		{text: "!!roll pick a winner", ok: true, want: Invocation{Name: "roll", Args: "pick a winner"}},
		{text: "!!dice 2d20+5", ok: true, want: Invocation{Name: "dice", Args: "2d20+5"}},
		{text: "!!ping", ok: true, want: Invocation{Name: "ping"}},
		{text: "!!help   weather  ", ok: true, want: Invocation{Name: "help", Args: "weather"}},
		{text: "!!addCommand greet return 'hi'\nsecond line", ok: true, want: Invocation{Name: "addCommand", Args: "greet return 'hi'\nsecond line"}},
		{text: "!ping", ok: false},
		{text: "ping", ok: false},
		{text: "!!", ok: false},
		{text: "!!8ball will it rain", ok: false},
		{text: "!!greet123", ok: false},
		{text: " !!ping", ok: false},
		{text: "hello !!ping", ok: false},
	}
	for _, tc := range cases {
		got, ok := Resolve(tc.text)
		assert.Equal(t, tc.ok, ok, tc.text)
		if tc.ok {
			assert.Equal(t, tc.want, got, tc.text)
		}
	}
}

func TestInvocation_Tokens(t *testing.T) {
	inv := Invocation{Name: "choose", Args: "pizza  pasta\tburger"}
	assert.Equal(t, []string{"pizza", "pasta", "burger"}, inv.Tokens())
	assert.Empty(t, Invocation{Name: "x"}.Tokens())
}

func TestValidName(t *testing.T) {
	assert.True(t, ValidName("listCommands"))
	assert.False(t, ValidName(""))
	assert.False(t, ValidName("eight-ball"))
	assert.False(t, ValidName("dé"))
}
