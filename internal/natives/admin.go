package natives

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hyperifyio/cmdbot/internal/apperr"
	"github.com/hyperifyio/cmdbot/internal/command"
	"github.com/hyperifyio/cmdbot/internal/sandbox"
	"github.com/hyperifyio/cmdbot/internal/store"
)

const (
	helpUsage       = "Please use as follows: `!!help <command>` describes one command, `!!listCommands` lists them all."
	addUsage        = "Please use as follows: `!!addCommand <name> <script>` or `!!addCommand -t <name> <reply text>`."
	removeUsage     = "Please use as follows: `!!removeCommand <name>`."
	templateFlag    = "-t"
	templateFlagAlt = "--template"
)

func help(ctx context.Context, call *command.Call) error {
	name := firstToken(call.Invocation.Args)
	if name == "" {
		return call.Reply(ctx, helpUsage)
	}
	return call.Reply(ctx, describe(call.Registry, name))
}

func describe(reg *command.Registry, name string) string {
	desc, err := reg.Lookup(name)
	switch {
	case apperr.CodeOf(err) == apperr.CodeNotFound:
		return doesNotExist(name)
	case command.IsMisconfigured(err):
		return fmt.Sprintf("command `%s` is misconfigured and cannot run.", name)
	case err != nil:
		return doesNotExist(name)
	}
	text := desc.Description
	if text == "" {
		text = fmt.Sprintf("custom %s command.", desc.Kind())
	}
	if reg.IsProtected(name) {
		return fmt.Sprintf("`!!%s` (built-in): %s", name, text)
	}
	return fmt.Sprintf("`!!%s` (%s): %s", name, desc.Kind(), text)
}

func listCommands(ctx context.Context, call *command.Call) error {
	names := call.Registry.Names()
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = "`" + n + "`"
	}
	return call.Reply(ctx, "Available commands: "+strings.Join(quoted, ", "))
}

func addCommand(ctx context.Context, call *command.Call) error {
	rest := call.Invocation.Args
	template := false
	if tok := firstToken(rest); tok == templateFlag || tok == templateFlagAlt {
		template = true
		rest = afterFirstToken(rest)
	}
	name := firstToken(rest)
	body := afterFirstToken(rest)
	if name == "" || body == "" {
		return call.Reply(ctx, addUsage)
	}
	if !command.ValidName(name) {
		return call.Reply(ctx, "command names may only contain letters.")
	}
	if call.Registry.IsProtected(name) {
		return call.Reply(ctx, cannotBeChanged(name))
	}

	rec := store.Record{Name: name}
	if template {
		rec.Template = body
	} else {
		if err := call.Validator.Validate(body); err != nil {
			call.Logger.Info("rejected script for new command", "name", name, "error", err)
			return call.Reply(ctx, fmt.Sprintf("command `%s` was not added: %s", name, validationReason(err)))
		}
		rec.Script = body
	}
	if err := call.Store.Upsert(ctx, rec); err != nil {
		return apperr.Wrap(apperr.CodeExternalService, "store command", err)
	}
	call.Logger.Info("command added", "name", name, "template", template)
	return call.Reply(ctx, fmt.Sprintf("command `%s` added.", name))
}

func removeCommand(ctx context.Context, call *command.Call) error {
	name := firstToken(call.Invocation.Args)
	if name == "" {
		return call.Reply(ctx, removeUsage)
	}
	if call.Registry.IsProtected(name) {
		return call.Reply(ctx, cannotBeChanged(name))
	}
	if _, err := call.Registry.Lookup(name); apperr.CodeOf(err) == apperr.CodeNotFound {
		return call.Reply(ctx, doesNotExist(name))
	}
	if err := call.Store.Delete(ctx, name); err != nil {
		return apperr.Wrap(apperr.CodeExternalService, "delete command", err)
	}
	call.Logger.Info("command removed", "name", name)
	return call.Reply(ctx, fmt.Sprintf("command `%s` removed.", name))
}

func validationReason(err error) string {
	var fp *sandbox.ForbiddenPatternError
	var rerr *sandbox.RuntimeError
	switch {
	case errors.As(err, &fp):
		return fmt.Sprintf("it uses a forbidden capability (%s).", fp.Category)
	case errors.As(err, &rerr):
		return fmt.Sprintf("it does not compile. `%s`", rerr.Message)
	case err == sandbox.ErrLengthExceeded:
		return "the script is too long."
	case err == sandbox.ErrEmptySource:
		return "the script is empty."
	default:
		return "the script is not valid."
	}
}

func cannotBeChanged(name string) string {
	return fmt.Sprintf("`%s` is a built-in command and cannot be changed.", name)
}

func doesNotExist(name string) string {
	return fmt.Sprintf("command `%s` does not exist.", name)
}

func firstToken(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// afterFirstToken returns s with its first whitespace-delimited token and
// the following whitespace removed. Interior whitespace is preserved so
// multi-line scripts survive.
func afterFirstToken(s string) string {
	s = strings.TrimLeft(s, " \t\r\n")
	i := strings.IndexAny(s, " \t\r\n")
	if i < 0 {
		return ""
	}
	return strings.TrimSpace(s[i:])
}
