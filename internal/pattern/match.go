package pattern

import (
	"fmt"
	"reflect"

	"github.com/toolprint/superego/internal/request"
)

// Fielder is anything Match can pull named fields from. request.ToolRequest
// implements it; tests may supply a lighter stand-in.
type Fielder interface {
	Field(name string) (any, bool)
}

// Match evaluates a compiled Condition against a request. It never panics
// outward: a recovered panic (e.g. an unexpected value type reaching a
// type assertion deep in a custom path) is logged at debug level and
// treated as no-match, per the Pattern Engine's side-effect-free contract.
func Match(c *Condition, r Fielder) (matched bool) {
	if c == nil {
		return true
	}
	defer func() {
		if rec := recover(); rec != nil {
			logger.Debug("pattern match recovered from panic, treating as no-match",
				"condition", c.String(), "panic", rec)
			matched = false
		}
	}()
	return matchDispatch(c, r)
}

func matchDispatch(c *Condition, r Fielder) bool {
	switch c.Kind {
	case KindExact:
		v, ok := r.Field(c.Field)
		if !ok {
			return false
		}
		return equalValue(v, c.exact)

	case KindOneOf:
		v, ok := r.Field(c.Field)
		if !ok {
			return false
		}
		for _, want := range c.oneOf {
			if equalValue(v, want) {
				return true
			}
		}
		return false

	case KindRegex:
		v, ok := r.Field(c.Field)
		if !ok {
			return false
		}
		return c.regex.re.MatchString(stringify(v))

	case KindGlob:
		v, ok := r.Field(c.Field)
		if !ok {
			return false
		}
		return c.glob.g.Match(stringify(v))

	case KindJSONPath:
		return matchJSONPath(c, r)

	case KindNumeric:
		v, ok := r.Field(c.Field)
		if !ok {
			return false
		}
		num, ok := toFloat64(v)
		if !ok {
			return false
		}
		return compareNumeric(c.numOp, num, c.numValue)

	case KindComposite:
		return matchComposite(c, r)

	case KindCEL:
		ok, err := evalCEL(c.celProgram, r)
		if err != nil {
			logger.Debug("cel condition evaluation failed, treating as no-match", "error", err)
			return false
		}
		return ok

	default:
		return false
	}
}

func matchComposite(c *Condition, r Fielder) bool {
	switch c.compOp {
	case OpNot:
		if len(c.children) != 1 {
			return false
		}
		return !Match(c.children[0], r)

	case OpAnd:
		for _, child := range c.children {
			if !Match(child, r) {
				return false
			}
		}
		return true

	case OpOr:
		for _, child := range c.children {
			if Match(child, r) {
				return true
			}
		}
		return false

	default:
		return false
	}
}

// equalValue compares a request-field value against a rule-declared literal,
// coercing both sides to string when direct equality fails for mismatched
// concrete types (YAML/JSON decoding produces float64/string/bool/nil; a
// target value of int64 vs float64 should still compare equal).
func equalValue(a, b any) bool {
	if reflect.DeepEqual(a, b) {
		return true
	}
	if af, aok := toFloat64(a); aok {
		if bf, bok := toFloat64(b); bok {
			return af == bf
		}
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func compareNumeric(op NumericOp, a, b float64) bool {
	switch op {
	case OpLT:
		return a < b
	case OpLE:
		return a <= b
	case OpEQ:
		return a == b
	case OpGE:
		return a >= b
	case OpGT:
		return a > b
	default:
		return false
	}
}

func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}

func stringify(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
