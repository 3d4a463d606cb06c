// Package command holds the command model: descriptors as a closed variant
// over native, template and script bodies, the invocation grammar, and the
// precedence-resolved registry view used during dispatch.
package command

import (
	"context"
	"fmt"
	"strings"

	"github.com/hyperifyio/cmdbot/internal/apperr"
	"github.com/hyperifyio/cmdbot/internal/store"
)

// Kind enumerates the execution paths a descriptor can take.
type Kind int

const (
	KindNative Kind = iota + 1
	KindTemplate
	KindScript
)

func (k Kind) String() string {
	switch k {
	case KindNative:
		return "native"
	case KindTemplate:
		return "template"
	case KindScript:
		return "script"
	default:
		return "unknown"
	}
}

// NativeFunc is a trusted, maintainer-authored command body. It runs with
// full host capabilities and may send any number of messages.
type NativeFunc func(ctx context.Context, call *Call) error

// Body is the sealed set of command bodies. Only the types in this package
// implement it.
type Body interface {
	kind() Kind
}

// NativeBody runs a trusted Go handler.
type NativeBody struct{ Handler NativeFunc }

// TemplateBody replies with fixed text addressed to the invoking user.
type TemplateBody struct{ Text string }

// ScriptBody is user-authored JavaScript executed by the sandbox.
type ScriptBody struct{ Source string }

func (NativeBody) kind() Kind   { return KindNative }
func (TemplateBody) kind() Kind { return KindTemplate }
func (ScriptBody) kind() Kind   { return KindScript }

// Descriptor is one named command.
type Descriptor struct {
	Name        string
	Description string
	Body        Body
}

// Kind reports which execution path d takes.
func (d Descriptor) Kind() Kind {
	if d.Body == nil {
		return 0
	}
	return d.Body.kind()
}

// Native builds a native descriptor.
func Native(name, description string, fn NativeFunc) Descriptor {
	return Descriptor{Name: name, Description: description, Body: NativeBody{Handler: fn}}
}

// ValidName reports whether name can be reached through the invocation
// grammar.
func ValidName(name string) bool {
	if name == "" {
		return false
	}
	for _, r := range name {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') {
			return false
		}
	}
	return true
}

// FromRecord converts a persisted record into a descriptor. Records with no
// body or with both a script and a template are misconfigured.
func FromRecord(rec store.Record) (Descriptor, error) {
	hasScript := strings.TrimSpace(rec.Script) != ""
	hasTemplate := strings.TrimSpace(rec.Template) != ""
	switch {
	case hasScript && hasTemplate:
		return Descriptor{}, apperr.New(apperr.CodeMisconfigured,
			fmt.Sprintf("command %q has both a script and a template body", rec.Name))
	case hasScript:
		return Descriptor{Name: rec.Name, Description: rec.Description, Body: ScriptBody{Source: rec.Script}}, nil
	case hasTemplate:
		return Descriptor{Name: rec.Name, Description: rec.Description, Body: TemplateBody{Text: rec.Template}}, nil
	default:
		return Descriptor{}, apperr.New(apperr.CodeMisconfigured,
			fmt.Sprintf("command %q has no body", rec.Name))
	}
}
