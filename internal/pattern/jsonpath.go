package pattern

import (
	"github.com/PaesslerAG/jsonpath"
)

// matchJSONPath evaluates the condition's JSONPath expression against the
// request's parameters tree, then applies the inner predicate to every
// extracted node, OR-combining the results: any match wins. A JSONPath
// that resolves to nothing, or a syntactically invalid expression caught
// at load time already, is a no-match rather than an error.
func matchJSONPath(c *Condition, r Fielder) bool {
	paramsAny, ok := r.Field("parameters")
	if !ok {
		return false
	}
	params, ok := paramsAny.(map[string]any)
	if !ok {
		params = map[string]any{}
	}

	result, err := jsonpath.Get(c.jsonPathExpr, map[string]any(params))
	if err != nil {
		return false
	}

	nodes, ok := result.([]any)
	if !ok {
		nodes = []any{result}
	}

	for _, node := range nodes {
		if Match(c.inner, leafFielder{value: node}) {
			return true
		}
	}
	return false
}

// leafFielder adapts a single extracted JSONPath value so the inner
// condition -- which addresses an unnamed scalar, not a named field -- can
// be matched via the same Match entry point as every other condition.
type leafFielder struct {
	value any
}

func (l leafFielder) Field(name string) (any, bool) {
	return l.value, true
}
