package natives

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/hyperifyio/cmdbot/internal/command"
)

const (
	maxDice  = 100
	minSides = 2
	maxSides = 1000
)

var dicePattern = regexp.MustCompile(`^(\d+)[dD](\d+)([+-]\d+)?$`)

var eightBallAnswers = []string{
	"Yes, definitely!",
	"No way!",
	"Maybe... ask again later.",
	"The stars say yes.",
	"Not looking good...",
	"Absolutely!",
	"Don't count on it.",
	"Signs point to yes.",
	"Very doubtful.",
	"Without a doubt!",
	"My sources say no.",
	"Outlook good.",
	"Cannot predict now.",
	"Reply hazy, try again.",
	"Better not tell you now.",
	"It is certain.",
	"Most likely.",
	"Outlook not so good.",
	"Yes.",
	"Concentrate and ask again.",
}

type fun struct {
	intN func(int) int
}

func (f fun) coinflip(ctx context.Context, call *command.Call) error {
	side := "Heads"
	if f.intN(2) == 1 {
		side = "Tails"
	}
	return call.Reply(ctx, "**"+side+"!**")
}

func (f fun) choose(ctx context.Context, call *command.Call) error {
	options := call.Invocation.Tokens()
	switch len(options) {
	case 0:
		return call.Reply(ctx, "Provide some options to choose from! Example: `!!choose pizza pasta burger`")
	case 1:
		return call.Reply(ctx, "Only one option? I choose: **"+options[0]+"**")
	}
	return call.Reply(ctx, "I choose: **"+options[f.intN(len(options))]+"**")
}

func (f fun) eightball(ctx context.Context, call *command.Call) error {
	question := call.Invocation.Args
	if question == "" {
		return call.Reply(ctx, "Ask me a yes/no question! Example: `!!eightball Will it rain tomorrow?`")
	}
	answer := eightBallAnswers[f.intN(len(eightBallAnswers))]
	return call.Reply(ctx, fmt.Sprintf("**Question**: %s\n**Answer**: %s", question, answer))
}

// usageError is a reply-ready explanation of bad input.
type usageError string

func (e usageError) Error() string { return string(e) }

// diceRoll is a parsed XdY±Z expression.
type diceRoll struct {
	count, sides, modifier int
}

func parseDice(expr string) (diceRoll, error) {
	if expr == "" {
		expr = "1d6"
	}
	m := dicePattern.FindStringSubmatch(expr)
	if m == nil {
		return diceRoll{}, usageError("Format: XdY or XdY+Z (e.g. `2d20+5`, `3d6-2`)")
	}
	count, err := strconv.Atoi(m[1])
	if err != nil || count > maxDice {
		return diceRoll{}, usageError(fmt.Sprintf("Maximum %d dice allowed", maxDice))
	}
	sides, err := strconv.Atoi(m[2])
	if err != nil || sides > maxSides {
		return diceRoll{}, usageError(fmt.Sprintf("Maximum %d sides allowed", maxSides))
	}
	if count < 1 {
		return diceRoll{}, usageError("Must roll at least 1 die")
	}
	if sides < minSides {
		return diceRoll{}, usageError(fmt.Sprintf("Dice must have at least %d sides", minSides))
	}
	var mod int
	if m[3] != "" {
		if mod, err = strconv.Atoi(m[3]); err != nil {
			return diceRoll{}, usageError("Modifier out of range")
		}
	}
	return diceRoll{count: count, sides: sides, modifier: mod}, nil
}

func (d diceRoll) String() string {
	s := fmt.Sprintf("%dd%d", d.count, d.sides)
	if d.modifier != 0 {
		s += fmt.Sprintf("%+d", d.modifier)
	}
	return s
}

func (f fun) dice(ctx context.Context, call *command.Call) error {
	roll, err := parseDice(firstToken(call.Invocation.Args))
	if err != nil {
		return call.Reply(ctx, err.Error())
	}
	rolls := make([]string, roll.count)
	sum := 0
	for i := range rolls {
		v := f.intN(roll.sides) + 1
		sum += v
		rolls[i] = strconv.Itoa(v)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n**Rolls**: [%s]\n**Sum**: %d", roll, strings.Join(rolls, ", "), sum)
	if roll.modifier != 0 {
		fmt.Fprintf(&b, " %+d", roll.modifier)
	}
	fmt.Fprintf(&b, " = **%d**", sum+roll.modifier)
	return call.Reply(ctx, b.String())
}
