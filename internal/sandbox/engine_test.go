package sandbox

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperifyio/cmdbot/internal/apperr"
	"github.com/hyperifyio/cmdbot/internal/command"
)

func testContext(id string) command.ExecContext {
	return command.ExecContext{
		User:    command.User{ID: id, Name: "TestUser"},
		Args:    []string{"one", "two"},
		Channel: command.Channel{ID: "channel123"},
	}
}

func run(t *testing.T, e *Engine, src string) Result {
	t.Helper()
	return e.Run(context.Background(), src, testContext("user123"))
}

func TestRun_ReturnsCoercedValues(t *testing.T) {
	e := New(Config{}, nil)
	cases := []struct {
		src  string
		want string
	}{
		{`return "Hello, World!"`, "Hello, World!"},
		{`return 42`, "42"},
		{`return 1.5`, "1.5"},
		{`return true`, "true"},
		{`return null`, ""},
		{`var x = 1`, ""},
		{`return {b: 1, a: [1, 2]}`, `{"a":[1,2],"b":1}`},
		{`return [1, "two", null]`, `[1,"two",null]`},
		{`return user.name`, "TestUser"},
		{`return user.id + "@" + channel.id`, "user123@channel123"},
		{`return args.join("+")`, "one+two"},
		{`emit("a"); emit("b"); return "c"`, "abc"},
		{`console.log("ignored"); return "ok"`, "ok"},
		{`return Object.keys({x: 1, y: 2}).join(",")`, "x,y"},
		{`return JSON.stringify({n: Math.max(1, 3)})`, `{"n":3}`},
		{`return {a: 1, f: function () {}}`, `{"a":1}`},
		{`return [1, undefined, function () {}]`, `[1,null,null]`},
		{`return {z: {y: 2, x: 1}}`, `{"z":{"x":1,"y":2}}`},
		{`var x = {v: 1}; return {b: x, a: x}`, `{"a":{"v":1},"b":{"v":1}}`},
		{`return new Date(0)`, `"1970-01-01T00:00:00.000Z"`},
		{`return JSON.stringify({b: 1, a: 2, c: 3}, ["c", "a"])`, `{"c":3,"a":2}`},
		{`return JSON.stringify({a: 1, b: 2}, function (k, v) { return k === "b" ? undefined : v })`, `{"a":1}`},
		{`return JSON.stringify({b: 1, a: 2})`, `{"b":1,"a":2}`},
	}
	for _, tc := range cases {
		res := run(t, e, tc.src)
		require.Equal(t, StatusCompleted, res.Status, "%s: %v", tc.src, res.Err)
		assert.Equal(t, tc.want, res.Text, tc.src)
	}
}

func TestRun_CyclicArraysRenderWithoutRecursing(t *testing.T) {
	e := New(Config{}, nil)
	cases := []struct {
		src  string
		want string
	}{
		{`var a = []; a.push(a); return "" + a`, ""},
		{`var a = [1]; a.push(a); return String(a)`, "1,"},
		{`var a = []; a.push(a); try { return String(a) } catch (e) { return "caught" }`, ""},
		{`var a = [1]; a.push([2, a]); return a.join("-")`, "1-2,"},
		{`var a = [1]; a.push(a); return a.toLocaleString()`, "1,"},
	}
	for _, tc := range cases {
		res := run(t, e, tc.src)
		require.Equal(t, StatusCompleted, res.Status, "%s: %v", tc.src, res.Err)
		assert.Equal(t, tc.want, res.Text, tc.src)
	}
}

func TestRun_CyclicResultsFail(t *testing.T) {
	e := New(Config{}, nil)
	for _, src := range []string{
		`var a = []; a.push(a); return a`,
		`var o = {}; o.self = o; return o`,
		`var o = {list: []}; o.list.push(o); return o`,
		`var o = {}; o.self = o; return JSON.stringify(o)`,
	} {
		res := run(t, e, src)
		require.Equal(t, StatusFailed, res.Status, src)
		var rerr *RuntimeError
		require.ErrorAs(t, res.Err, &rerr, src)
		assert.Contains(t, rerr.Message, "circular", src)
	}
}

func TestRun_DeepNestingIsBounded(t *testing.T) {
	e := New(Config{}, nil)
	const deep = `var a = [1]; for (var i = 0; i < 1000; i++) { a = [a] } `

	res := run(t, e, deep+`return a`)
	require.Equal(t, StatusFailed, res.Status)
	assert.Contains(t, res.Err.Error(), "nesting")

	cases := []struct {
		src  string
		want string
	}{
		{deep + `try { String(a) } catch (e) { return e.name }`, "RangeError"},
		{deep + `try { JSON.stringify(a) } catch (e) { return e.name }`, "RangeError"},
		{`try { JSON.parse("[".repeat(1000) + "]".repeat(1000)) } catch (e) { return e.name }`, "RangeError"},
		{`return JSON.parse('{"a":["[[["]}').a[0]`, "[[["},
		{deep + `return a.flat(Infinity).length`, "1"},
		{`return [1, [2, [3, [4]]]].flat(Infinity).join()`, "1,2,3,4"},
	}
	for _, tc := range cases {
		res := run(t, e, tc.src)
		require.Equal(t, StatusCompleted, res.Status, "%s: %v", tc.src, res.Err)
		assert.Equal(t, tc.want, res.Text, tc.src)
	}
}

func TestRun_NativeStringBuildersAreCapped(t *testing.T) {
	e := New(Config{Timeout: 2 * time.Second}, nil)
	for _, src := range []string{
		`try { "a".repeat(1e9) } catch (e) { return e.name }`,
		`try { "a".padStart(1e9) } catch (e) { return e.name }`,
		`try { "a".padEnd(1e9, "b") } catch (e) { return e.name }`,
		`try { Array.prototype.join.call({length: 1e9}, "x") } catch (e) { return e.name }`,
	} {
		start := time.Now()
		res := run(t, e, src)
		require.Equal(t, StatusCompleted, res.Status, "%s: %v", src, res.Err)
		assert.Equal(t, "RangeError", res.Text, src)
		assert.Less(t, time.Since(start), time.Second, src)
	}

	res := run(t, e, `return "ab".repeat(3) + "5".padStart(3, "0") + "x".padEnd(2, ".")`)
	require.Equal(t, StatusCompleted, res.Status, "%v", res.Err)
	assert.Equal(t, "ababab005x.", res.Text)
}

func TestRun_AllowsMathAndDate(t *testing.T) {
	e := New(Config{}, nil)

	res := run(t, e, `return Math.floor(Math.random() * 100)`)
	require.Equal(t, StatusCompleted, res.Status)
	n, err := strconv.Atoi(res.Text)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, 0)
	assert.Less(t, n, 100)

	res = run(t, e, `return new Date().getFullYear()`)
	require.Equal(t, StatusCompleted, res.Status)
	year, err := strconv.Atoi(res.Text)
	require.NoError(t, err)
	assert.Greater(t, year, 2020)
}

func TestRun_RejectsForbiddenPatternsBeforeExecution(t *testing.T) {
	e := New(Config{}, nil)
	cases := []struct {
		src      string
		category Category
	}{
		{`process.exit(0)`, CategoryProcessControl},
		{`process["exit"](0)`, CategoryProcessControl},
		{`require("fs")`, CategoryModuleLoading},
		{`import fs from "fs"`, CategoryModuleLoading},
		{`return import("fs")`, CategoryModuleLoading},
		{`global.something = "bad"`, CategoryGlobalObject},
		{`return globalThis`, CategoryGlobalObject},
		{`eval("malicious code")`, CategoryReflective},
		{`new Function("return process")()`, CategoryReflective},
		{`return [].constructor.constructor("return 1")()`, CategoryReflective},
		{`return Reflect.ownKeys({})`, CategoryReflective},
		{`return ({}).__proto__`, CategoryHostIntrospection},
		{`return __dirname`, CategoryHostIntrospection},
		{`module.exports = 1`, CategoryHostIntrospection},
	}
	for _, tc := range cases {
		// emit would run first if execution started.
		res := run(t, e, `emit("side effect"); `+tc.src)
		require.Equal(t, StatusRejected, res.Status, tc.src)
		assert.Equal(t, tc.category, res.Category(), tc.src)
		assert.Empty(t, res.Text, tc.src)
		assert.Equal(t, apperr.CodePolicyViolation, apperr.CodeOf(res.Err), tc.src)
	}
}

func TestRun_FunctionKeywordIsNotForbidden(t *testing.T) {
	res := run(t, New(Config{}, nil), `function double(x) { return x * 2 } return double(21)`)
	require.Equal(t, StatusCompleted, res.Status, "%v", res.Err)
	assert.Equal(t, "42", res.Text)
}

func TestRun_RejectsOverLengthSource(t *testing.T) {
	e := New(Config{MaxSourceLength: 10000}, nil)
	res := run(t, e, strings.Repeat("a", 20000))

	require.Equal(t, StatusRejected, res.Status)
	assert.True(t, res.LengthExceeded())
	assert.Empty(t, res.Category())
	assert.Contains(t, Describe(res, e.Config()), "10000")
}

func TestRun_LengthCountsCharactersNotBytes(t *testing.T) {
	e := New(Config{MaxSourceLength: 20}, nil)
	res := run(t, e, `return "ééééééé"`)
	assert.Equal(t, StatusCompleted, res.Status, "%v", res.Err)
}

func TestRun_TimesOutInfiniteLoop(t *testing.T) {
	e := New(Config{Timeout: 100 * time.Millisecond}, nil)

	start := time.Now()
	res := run(t, e, `while (true) {}`)
	elapsed := time.Since(start)

	require.Equal(t, StatusTimedOut, res.Status)
	assert.ErrorIs(t, res.Err, ErrTimeout)
	assert.Less(t, elapsed, time.Second)

	// The engine keeps serving afterwards.
	res = run(t, e, `return "still alive"`)
	require.Equal(t, StatusCompleted, res.Status)
	assert.Equal(t, "still alive", res.Text)
}

func TestRun_TimeoutCannotBeCaughtByScript(t *testing.T) {
	e := New(Config{Timeout: 100 * time.Millisecond}, nil)
	res := run(t, e, `try { for (;;) {} } catch (e) {} return "escaped"`)
	assert.Equal(t, StatusTimedOut, res.Status)
}

func TestRun_UncaughtErrorIsSanitised(t *testing.T) {
	res := run(t, New(Config{}, nil), `throw new Error("test")`)

	require.Equal(t, StatusFailed, res.Status)
	var rerr *RuntimeError
	require.ErrorAs(t, res.Err, &rerr)
	assert.Equal(t, "Error: test", rerr.Message)
	assert.NotContains(t, rerr.Message, "command:")
	assert.Equal(t, apperr.CodeExecutionFailure, apperr.CodeOf(res.Err))
}

func TestRun_SyntaxErrorFails(t *testing.T) {
	res := run(t, New(Config{}, nil), `return {invalid syntax`)
	require.Equal(t, StatusFailed, res.Status)
	var rerr *RuntimeError
	require.ErrorAs(t, res.Err, &rerr)
	assert.NotContains(t, rerr.Message, "Line ")
}

func TestRun_StackOverflowFails(t *testing.T) {
	res := run(t, New(Config{MaxCallStack: 64}, nil), `function f() { return f() + 1 } return f()`)
	assert.Equal(t, StatusFailed, res.Status)
}

func TestRun_RealmExposesOnlyAllowList(t *testing.T) {
	res := run(t, New(Config{}, nil),
		`return [typeof Symbol, typeof Promise, typeof WebAssembly, typeof Object.assign, typeof Object.keys, typeof Math].join(",")`)
	require.Equal(t, StatusCompleted, res.Status, "%v", res.Err)
	assert.Equal(t, "undefined,undefined,undefined,undefined,function,object", res.Text)
}

func TestRun_FunctionConstructorUnreachableWhenDenyListIsEvaded(t *testing.T) {
	e := New(Config{}, nil)

	res := run(t, e, `var k = "constr" + "uctor"; return typeof (function () {})[k]`)
	require.Equal(t, StatusCompleted, res.Status, "%v", res.Err)
	assert.Equal(t, "undefined", res.Text)

	res = run(t, e, `return typeof (function () { return this })()`)
	require.Equal(t, StatusCompleted, res.Status, "%v", res.Err)
	assert.Equal(t, "undefined", res.Text)
}

func TestRun_OutputIsBounded(t *testing.T) {
	e := New(Config{OutputKB: 1}, nil)
	res := run(t, e, `emit("x".repeat(2000))`)

	require.Equal(t, StatusCompleted, res.Status)
	assert.True(t, res.Truncated)
	assert.Len(t, res.Text, 1024)
}

func TestRun_TruncationKeepsValidUTF8(t *testing.T) {
	e := New(Config{}, nil)
	for _, src := range []string{
		`emit("a" + "é".repeat(3000))`,
		`return "a" + "é".repeat(3000)`,
		`emit("a"); return "é".repeat(3000)`,
	} {
		res := run(t, e, src)
		require.Equal(t, StatusCompleted, res.Status, "%s: %v", src, res.Err)
		assert.True(t, res.Truncated, src)
		assert.True(t, utf8.ValidString(res.Text), src)
		assert.LessOrEqual(t, len(res.Text), 4096, src)
		assert.Greater(t, len(res.Text), 4090, src)
	}
}

func TestRun_SequentialRunsDoNotShareState(t *testing.T) {
	e := New(Config{}, nil)

	res := run(t, e, `Math.leak = "x"; Array.prototype.leak = "y"; return "set"`)
	require.Equal(t, StatusCompleted, res.Status)

	res = run(t, e, `return typeof Math.leak + "," + typeof [].leak`)
	require.Equal(t, StatusCompleted, res.Status)
	assert.Equal(t, "undefined,undefined", res.Text)
}

func TestRun_ConcurrentRunsSeeOnlyTheirOwnContext(t *testing.T) {
	e := New(Config{}, nil)
	const n = 20

	var wg sync.WaitGroup
	results := make([]Result, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = e.Run(context.Background(), `user.id = user.id + ""; return user.id`, testContext(fmt.Sprintf("user-%d", i)))
		}(i)
	}
	wg.Wait()

	for i, res := range results {
		require.Equal(t, StatusCompleted, res.Status, "%v", res.Err)
		assert.Equal(t, fmt.Sprintf("user-%d", i), res.Text)
	}
}

func TestRun_ContextMutationDoesNotLeakToHost(t *testing.T) {
	ec := testContext("user123")
	res := New(Config{}, nil).Run(context.Background(), `user.id = "hijacked"; args.push("x"); return user.id`, ec)

	require.Equal(t, StatusCompleted, res.Status)
	assert.Equal(t, "hijacked", res.Text)
	assert.Equal(t, "user123", ec.User.ID)
	assert.Equal(t, []string{"one", "two"}, ec.Args)
}

func TestValidate(t *testing.T) {
	e := New(Config{MaxSourceLength: 100}, nil)

	assert.NoError(t, e.Validate(`return "Hello"`))
	assert.ErrorIs(t, e.Validate("   "), ErrEmptySource)
	assert.Equal(t, ErrLengthExceeded, e.Validate(strings.Repeat("a", 101)))

	var fp *ForbiddenPatternError
	require.ErrorAs(t, e.Validate(`const fs = require("fs")`), &fp)
	assert.Equal(t, "require()", fp.Pattern)

	var rerr *RuntimeError
	assert.ErrorAs(t, e.Validate(`return {invalid syntax`), &rerr)
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, "Error: test", sanitize("Error: test at command:3:7(3)"))
	assert.Equal(t, "SyntaxError: Unexpected token", sanitize("SyntaxError: command: Line 3:5 Unexpected token"))
	assert.Equal(t, "first", sanitize("first\n    at f (command:1:1(2))"))
	assert.Equal(t, "script failed", sanitize(""))
	long := sanitize(strings.Repeat("x", 500))
	assert.Equal(t, maxErrorLength+1, len([]rune(long)))
}
