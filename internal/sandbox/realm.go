package sandbox

import (
	"github.com/dop251/goja"

	"github.com/hyperifyio/cmdbot/internal/command"
)

// allowedGlobals are the only global bindings left in a realm after
// construction. Everything else goja installs (eval, Function, Reflect,
// Proxy, Symbol, Promise, typed arrays, globalThis, ...) is deleted.
var allowedGlobals = map[string]bool{
	"Array":              true,
	"Boolean":            true,
	"Date":               true,
	"Error":              true,
	"JSON":               true,
	"Map":                true,
	"Math":               true,
	"Number":             true,
	"RangeError":         true,
	"Set":                true,
	"String":             true,
	"TypeError":          true,
	"decodeURIComponent": true,
	"encodeURIComponent": true,
	"isFinite":           true,
	"isNaN":              true,
	"parseFloat":         true,
	"parseInt":           true,
	"Infinity":           true,
	"NaN":                true,
	"undefined":          true,
}

// Each snippet detaches the constructor reachable from one function flavour's
// prototype, so `(function(){}).constructor` and friends yield undefined.
// They run separately so a goja build without async or generator support
// still gets the others.
var constructorSevers = []string{
	`Object.defineProperty(Object.getPrototypeOf(function(){}), "constructor", {value: undefined})`,
	`Object.defineProperty(Object.getPrototypeOf(function*(){}), "constructor", {value: undefined})`,
	`Object.defineProperty(Object.getPrototypeOf(async function(){}), "constructor", {value: undefined})`,
}

// realm is one invocation's runtime together with the guarded builtins it
// was built with.
type realm struct {
	vm     *goja.Runtime
	guards *guards
}

// newRealm builds a fresh runtime exposing only the allow-listed globals,
// a restricted Object, copies of the invocation context and the emit/console
// helpers. The runtime is owned by exactly one invocation.
func newRealm(ec command.ExecContext, out *BoundedBuffer, maxStack int) (*realm, error) {
	vm := goja.New()
	if maxStack > 0 {
		vm.SetMaxCallStackSize(maxStack)
	}

	for _, src := range constructorSevers {
		_, _ = vm.RunString(src)
	}
	g, err := installGuards(vm)
	if err != nil {
		return nil, err
	}

	// Keep Object.keys/values/entries, drop the rest of the constructor.
	objectCtor := vm.Get("Object").ToObject(vm)
	restrictedObject := vm.NewObject()
	for _, name := range []string{"keys", "values", "entries"} {
		if err := restrictedObject.Set(name, objectCtor.Get(name)); err != nil {
			return nil, err
		}
	}

	global := vm.GlobalObject()
	for _, name := range global.GetOwnPropertyNames() {
		if !allowedGlobals[name] {
			_ = global.Delete(name)
		}
	}
	if err := vm.Set("Object", restrictedObject); err != nil {
		return nil, err
	}

	user := vm.NewObject()
	_ = user.Set("id", ec.User.ID)
	_ = user.Set("name", ec.User.Name)
	channel := vm.NewObject()
	_ = channel.Set("id", ec.Channel.ID)
	args := make([]interface{}, len(ec.Args))
	for i, a := range ec.Args {
		args[i] = a
	}

	console := vm.NewObject()
	_ = console.Set("log", func(goja.FunctionCall) goja.Value { return goja.Undefined() })

	bindings := map[string]interface{}{
		"user":    user,
		"channel": channel,
		"args":    vm.NewArray(args...),
		"console": console,
		// emit appends to the reply; output past the cap is dropped.
		"emit": func(call goja.FunctionCall) goja.Value {
			for _, a := range call.Arguments {
				_, _ = out.WriteString(a.String())
			}
			return goja.Undefined()
		},
	}
	for name, v := range bindings {
		if err := vm.Set(name, v); err != nil {
			return nil, err
		}
	}
	return &realm{vm: vm, guards: g}, nil
}

// coerce maps a script's return value to reply text: null and undefined are
// empty, functions and primitives use their string form, and other objects
// are JSON encoded with sorted keys. Encoding errors (cycles, nesting) are
// returned as script exceptions.
func (r *realm) coerce(v goja.Value) (string, error) {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return "", nil
	}
	obj, ok := v.(*goja.Object)
	if !ok {
		return v.String(), nil
	}
	if _, isFn := goja.AssertFunction(obj); isFn {
		return obj.String(), nil
	}
	s, err := r.guards.encode(r.guards.stringify, obj, goja.Undefined(), goja.Undefined(), true)
	if err != nil {
		return "", err
	}
	if s == nil || goja.IsUndefined(s) {
		return "", nil
	}
	return s.String(), nil
}
