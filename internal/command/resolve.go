package command

import (
	"regexp"
	"strings"
)

// Prefix introduces every command invocation.
const Prefix = "!!"

var invocationPattern = regexp.MustCompile(`^!!([A-Za-z]+)(?:\s+([\s\S]*))?$`)

// Invocation is a parsed command call.
type Invocation struct {
	Name string
	Args string
}

// Resolve parses text of the form "!!name optional remainder". The second
// return value is false when text does not match the grammar.
func Resolve(text string) (Invocation, bool) {
	m := invocationPattern.FindStringSubmatch(strings.TrimRight(text, " \t\r\n"))
	if m == nil {
		return Invocation{}, false
	}
	return Invocation{Name: m[1], Args: strings.TrimSpace(m[2])}, true
}

// Tokens splits the argument string on whitespace.
func (inv Invocation) Tokens() []string {
	return strings.Fields(inv.Args)
}
