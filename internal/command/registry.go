package command

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/hyperifyio/cmdbot/internal/apperr"
	"github.com/hyperifyio/cmdbot/internal/store"
)

// ErrNotFound is returned by Lookup for unknown names. It is not a failure:
// dispatch produces no reply for it.
var ErrNotFound = apperr.New(apperr.CodeNotFound, "command not found")

// Natives is the immutable set of built-in commands, constructed once at
// composition time.
type Natives struct {
	byName map[string]Descriptor
}

// NewNatives validates and indexes the built-in descriptors.
func NewNatives(descs ...Descriptor) (*Natives, error) {
	n := &Natives{byName: make(map[string]Descriptor, len(descs))}
	for _, d := range descs {
		if !ValidName(d.Name) {
			return nil, fmt.Errorf("native command %q: name must be alphabetic", d.Name)
		}
		body, ok := d.Body.(NativeBody)
		if !ok || body.Handler == nil {
			return nil, fmt.Errorf("native command %q: missing handler", d.Name)
		}
		if _, dup := n.byName[d.Name]; dup {
			return nil, fmt.Errorf("native command %q registered twice", d.Name)
		}
		n.byName[d.Name] = d
	}
	return n, nil
}

// Has reports whether name is a protected built-in.
func (n *Natives) Has(name string) bool {
	if n == nil {
		return false
	}
	_, ok := n.byName[name]
	return ok
}

type entry struct {
	desc Descriptor
	err  error
}

// Registry is the merged, precedence-resolved read view for one dispatch.
type Registry struct {
	natives *Natives
	stored  map[string]entry
}

// BuildRegistry merges natives with store-backed records. A native always
// wins on a name collision; duplicate records collapse to the last one seen.
// Records that fail conversion stay findable so that dispatch can report
// them as misconfigured.
func BuildRegistry(natives *Natives, recs []store.Record, logger *slog.Logger) *Registry {
	r := &Registry{natives: natives, stored: make(map[string]entry, len(recs))}
	for _, rec := range recs {
		if natives.Has(rec.Name) {
			if logger != nil {
				logger.Warn("stored command shadowed by native", "command", rec.Name)
			}
			continue
		}
		d, err := FromRecord(rec)
		if err != nil {
			d = Descriptor{Name: rec.Name, Description: rec.Description}
			if logger != nil {
				logger.Error("misconfigured stored command", "command", rec.Name, "error", err)
			}
		}
		r.stored[rec.Name] = entry{desc: d, err: err}
	}
	return r
}

// Lookup returns the descriptor for name. It returns ErrNotFound for unknown
// names and an apperr.CodeMisconfigured error for records that cannot run.
func (r *Registry) Lookup(name string) (Descriptor, error) {
	if r.natives != nil {
		if d, ok := r.natives.byName[name]; ok {
			return d, nil
		}
	}
	e, ok := r.stored[name]
	if !ok {
		return Descriptor{}, ErrNotFound
	}
	return e.desc, e.err
}

// IsProtected reports whether name belongs to a native command.
func (r *Registry) IsProtected(name string) bool {
	return r.natives.Has(name)
}

// Names returns every reachable command name, sorted.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.stored)+len(r.natives.byNameOrEmpty()))
	for name := range r.natives.byNameOrEmpty() {
		out = append(out, name)
	}
	for name := range r.stored {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// IsMisconfigured reports whether err came from a record that cannot run.
func IsMisconfigured(err error) bool {
	return apperr.CodeOf(err) == apperr.CodeMisconfigured
}

func (n *Natives) byNameOrEmpty() map[string]Descriptor {
	if n == nil {
		return nil
	}
	return n.byName
}
