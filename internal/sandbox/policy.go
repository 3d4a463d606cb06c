package sandbox

import "regexp"

// Category groups deny-list patterns by the capability they guard.
type Category string

const (
	CategoryModuleLoading     Category = "module loading"
	CategoryProcessControl    Category = "process control"
	CategoryGlobalObject      Category = "global object"
	CategoryReflective        Category = "reflective invocation"
	CategoryHostIntrospection Category = "host internals"
)

type denyRule struct {
	name     string
	category Category
	re       *regexp.Regexp
}

// denyList is scanned in order; the first match wins. This is a textual
// filter over known spellings, not an analysis of what the script can reach:
// aliasing, computed property names and string building all get past it. The
// realm construction in realm.go is what actually removes the capabilities.
var denyList = []denyRule{
	{"require()", CategoryModuleLoading, regexp.MustCompile(`(?i)\brequire\s*\(`)},
	{"import", CategoryModuleLoading, regexp.MustCompile(`(?i)\bimport\s*[\s(]`)},
	{"process object", CategoryProcessControl, regexp.MustCompile(`(?i)\bprocess\s*[.\[]`)},
	{"child_process", CategoryProcessControl, regexp.MustCompile(`(?i)child_process`)},
	{"global object", CategoryGlobalObject, regexp.MustCompile(`(?i)\bglobal\s*[.\[]`)},
	{"globalThis", CategoryGlobalObject, regexp.MustCompile(`(?i)\bglobalThis\b`)},
	{"eval()", CategoryReflective, regexp.MustCompile(`(?i)\beval\s*\(`)},
	// Case-sensitive so the function keyword stays usable.
	{"Function constructor", CategoryReflective, regexp.MustCompile(`\bFunction\s*\(`)},
	{"constructor access", CategoryReflective, regexp.MustCompile(`(?i)constructor\s*[(.\[]|['"` + "`" + `]constructor['"` + "`" + `]`)},
	{"Reflect/Proxy", CategoryReflective, regexp.MustCompile(`\b(Reflect|Proxy)\b`)},
	{"__proto__", CategoryHostIntrospection, regexp.MustCompile(`__proto__`)},
	{"__dirname", CategoryHostIntrospection, regexp.MustCompile(`(?i)__dirname`)},
	{"__filename", CategoryHostIntrospection, regexp.MustCompile(`(?i)__filename`)},
	{"module object", CategoryHostIntrospection, regexp.MustCompile(`(?i)\bmodule\s*\.`)},
	{"exports object", CategoryHostIntrospection, regexp.MustCompile(`(?i)\bexports\s*\.`)},
}

// scanSource returns a *ForbiddenPatternError for the first deny rule that
// matches source, or nil.
func scanSource(source string) error {
	for _, rule := range denyList {
		if rule.re.MatchString(source) {
			return &ForbiddenPatternError{Category: rule.category, Pattern: rule.name}
		}
	}
	return nil
}
