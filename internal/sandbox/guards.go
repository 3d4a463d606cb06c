package sandbox

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/dop251/goja"
)

const (
	// maxNesting bounds how deep the native array and JSON routines may
	// recurse. They recurse on the host stack, which the runtime's call
	// stack limit does not cover.
	maxNesting = 256
	// maxStringLength caps what one native string or join call may build.
	// Such a call cannot be interrupted once it has started.
	maxStringLength = 1 << 20
	maxPropertyList = 1 << 10
)

// guards replaces the builtins whose native implementations recurse or
// allocate without bound. One instance belongs to one realm and is only
// touched from the goroutine running it.
type guards struct {
	vm         *goja.Runtime
	rangeError goja.Value
	typeError  goja.Value
	stringify  goja.Callable
	depth      int
}

type wrapper func(orig goja.Callable) func(goja.FunctionCall) goja.Value

func installGuards(vm *goja.Runtime) (*guards, error) {
	g := &guards{
		vm:         vm,
		rangeError: vm.Get("RangeError"),
		typeError:  vm.Get("TypeError"),
	}

	arrayProto, err := prototype(vm, "Array")
	if err != nil {
		return nil, err
	}
	stringProto, err := prototype(vm, "String")
	if err != nil {
		return nil, err
	}
	jsonObj := vm.Get("JSON").ToObject(vm)

	replacements := []struct {
		obj  *goja.Object
		name string
		wrap wrapper
	}{
		{arrayProto, "join", g.reentrant(true)},
		{arrayProto, "toString", g.reentrant(false)},
		{arrayProto, "toLocaleString", g.reentrant(false)},
		{arrayProto, "flat", g.flat},
		{stringProto, "repeat", g.repeat},
		{stringProto, "padStart", g.pad},
		{stringProto, "padEnd", g.pad},
		{jsonObj, "parse", g.parse},
	}
	for _, r := range replacements {
		if _, err := g.replace(r.obj, r.name, r.wrap); err != nil {
			return nil, err
		}
	}
	native, err := g.replace(jsonObj, "stringify", func(orig goja.Callable) func(goja.FunctionCall) goja.Value {
		return func(call goja.FunctionCall) goja.Value {
			v, err := g.encode(orig, call.Argument(0), call.Argument(1), call.Argument(2), false)
			if err != nil {
				rethrow(err)
			}
			return v
		}
	})
	if err != nil {
		return nil, err
	}
	g.stringify = native
	return g, nil
}

func prototype(vm *goja.Runtime, ctor string) (*goja.Object, error) {
	c := vm.Get(ctor)
	if c == nil {
		return nil, fmt.Errorf("%s is not defined", ctor)
	}
	p, ok := c.ToObject(vm).Get("prototype").(*goja.Object)
	if !ok {
		return nil, fmt.Errorf("%s.prototype is not an object", ctor)
	}
	return p, nil
}

// replace swaps obj[name] for a wrapped version and returns the original.
func (g *guards) replace(obj *goja.Object, name string, wrap wrapper) (goja.Callable, error) {
	orig, ok := goja.AssertFunction(obj.Get(name))
	if !ok {
		return nil, fmt.Errorf("builtin %s is not callable", name)
	}
	if err := obj.DefineDataProperty(name, g.vm.ToValue(wrap(orig)), goja.FLAG_TRUE, goja.FLAG_TRUE, goja.FLAG_FALSE); err != nil {
		return nil, fmt.Errorf("replace %s: %w", name, err)
	}
	return orig, nil
}

func (g *guards) call(fn goja.Callable, this goja.Value, args ...goja.Value) goja.Value {
	v, err := fn(this, args...)
	if err != nil {
		rethrow(err)
	}
	return v
}

// rethrow raises err inside the runtime that called a native function.
func rethrow(err error) {
	if ex, ok := err.(*goja.Exception); ok {
		panic(ex.Value())
	}
	panic(err)
}

func (g *guards) throw(ctor goja.Value, msg string) {
	if obj, err := g.vm.New(ctor, g.vm.ToValue(msg)); err == nil {
		panic(obj)
	}
	panic(g.vm.NewTypeError(msg))
}

func (g *guards) enter() {
	if g.depth >= maxNesting {
		g.throw(g.rangeError, "Maximum nesting depth exceeded")
	}
	g.depth++
}

func (g *guards) leave() { g.depth-- }

// reentrant stops an array method from recursing into an array it is
// already rendering; the inner occurrence renders as the empty string.
func (g *guards) reentrant(capLength bool) wrapper {
	return func(orig goja.Callable) func(goja.FunctionCall) goja.Value {
		visiting := map[*goja.Object]bool{}
		return func(call goja.FunctionCall) goja.Value {
			this := call.This.ToObject(g.vm)
			if visiting[this] {
				return g.vm.ToValue("")
			}
			if capLength {
				if n := this.Get("length"); n != nil && n.ToFloat() > maxStringLength {
					g.throw(g.rangeError, "Invalid string length")
				}
			}
			g.enter()
			visiting[this] = true
			defer func() {
				delete(visiting, this)
				g.leave()
			}()
			return g.call(orig, this, call.Arguments...)
		}
	}
}

func (g *guards) flat(orig goja.Callable) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		depth := call.Argument(0)
		if !goja.IsUndefined(depth) {
			depth = depth.ToNumber()
			if depth.ToFloat() > maxNesting {
				depth = g.vm.ToValue(maxNesting)
			}
		}
		return g.call(orig, call.This, depth)
	}
}

func (g *guards) repeat(orig goja.Callable) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		if goja.IsUndefined(call.This) || goja.IsNull(call.This) {
			return g.call(orig, call.This, call.Arguments...)
		}
		s := call.This.ToString()
		count := call.Argument(0).ToNumber()
		if float64(len(s.String()))*count.ToFloat() > maxStringLength {
			g.throw(g.rangeError, "Invalid string length")
		}
		return g.call(orig, s, count)
	}
}

func (g *guards) pad(orig goja.Callable) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		args := append([]goja.Value(nil), call.Arguments...)
		if len(args) > 0 {
			args[0] = args[0].ToNumber()
			if args[0].ToFloat() > maxStringLength {
				g.throw(g.rangeError, "Invalid string length")
			}
		}
		return g.call(orig, call.This, args...)
	}
}

func (g *guards) parse(orig goja.Callable) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		text := call.Argument(0).ToString()
		if jsonNesting(text.String()) > maxNesting {
			g.throw(g.rangeError, "JSON nesting too deep")
		}
		args := []goja.Value{text}
		if len(call.Arguments) > 1 {
			args = append(args, call.Arguments[1:]...)
		}
		return g.call(orig, call.This, args...)
	}
}

// jsonNesting returns the deepest bracket nesting in s, ignoring brackets
// inside string literals.
func jsonNesting(s string) int {
	depth, deepest := 0, 0
	inString, escaped := false, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case inString:
			switch c {
			case '\\':
				escaped = true
			case '"':
				inString = false
			}
		case c == '"':
			inString = true
		case c == '[' || c == '{':
			depth++
			if depth > deepest {
				deepest = depth
			}
		case c == ']' || c == '}':
			depth--
		}
	}
	return deepest
}

// jsonFrame records where an object sits in the value being encoded.
type jsonFrame struct {
	parent *goja.Object
	source *goja.Object
	depth  int
}

// encode runs the native JSON.stringify behind a replacer that bounds
// nesting and detects cycles itself. A user replacer function runs first;
// a property-list replacer is applied here because the native one is
// displaced. With sortKeys, plain objects are re-emitted with sorted keys.
func (g *guards) encode(native goja.Callable, value, replacer, space goja.Value, sortKeys bool) (goja.Value, error) {
	var userFn goja.Callable
	var props []string
	if fn, ok := goja.AssertFunction(replacer); ok {
		userFn = fn
	} else if obj, ok := replacer.(*goja.Object); ok && obj.ClassName() == "Array" {
		props = g.propertyList(obj)
	}

	frames := map[*goja.Object]jsonFrame{}
	hook := func(call goja.FunctionCall) goja.Value {
		holder, _ := call.This.(*goja.Object)
		val := call.Argument(1)
		if userFn != nil {
			val = g.call(userFn, call.This, call.Argument(0), val)
		}
		obj, ok := val.(*goja.Object)
		if !ok {
			return val
		}
		if _, isFn := goja.AssertFunction(obj); isFn {
			return val
		}

		depth := frames[holder].depth + 1
		if depth > maxNesting {
			g.throw(g.rangeError, "JSON nesting too deep")
		}
		for p := holder; p != nil; p = frames[p].parent {
			if frames[p].source == obj {
				g.throw(g.typeError, "Converting circular structure to JSON")
			}
		}

		out := obj
		switch obj.ClassName() {
		case "Array", "String", "Number", "Boolean":
		default:
			switch {
			case props != nil:
				out = g.copyKeys(obj, props)
			case sortKeys:
				keys := obj.Keys()
				sort.Strings(keys)
				out = g.copyKeys(obj, keys)
			}
		}
		frames[out] = jsonFrame{parent: holder, source: obj, depth: depth}
		return out
	}
	return native(goja.Undefined(), value, g.vm.ToValue(hook), space)
}

func (g *guards) propertyList(list *goja.Object) []string {
	n := list.Get("length").ToInteger()
	if n > maxPropertyList {
		n = maxPropertyList
	}
	seen := map[string]bool{}
	props := []string{}
	for i := int64(0); i < n; i++ {
		v := list.Get(strconv.FormatInt(i, 10))
		if v == nil {
			continue
		}
		switch v.Export().(type) {
		case string, int64, float64:
			if k := v.String(); !seen[k] {
				seen[k] = true
				props = append(props, k)
			}
		}
	}
	return props
}

// copyKeys builds a plain object holding obj's values for keys, in order.
// Keys obj lacks are skipped.
func (g *guards) copyKeys(obj *goja.Object, keys []string) *goja.Object {
	out := g.vm.NewObject()
	for _, k := range keys {
		v := obj.Get(k)
		if v == nil {
			continue
		}
		_ = out.DefineDataProperty(k, v, goja.FLAG_TRUE, goja.FLAG_TRUE, goja.FLAG_TRUE)
	}
	return out
}
