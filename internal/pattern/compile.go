package pattern

import (
	"fmt"

	"github.com/PaesslerAG/jsonpath"
)

// CompileConditions builds a Condition tree from a rule document's
// "conditions" block. The block's keys are either field names (mapped to a
// literal, a {oneOf|regex|glob|jsonpath|numeric|cel|type: ...} descriptor,
// or a nested composite) or the composite operators AND/OR/NOT (mapped to a
// list of nested condition blocks, or -- for NOT -- a single nested block).
// Multiple top-level keys are implicitly AND-ed together.
func CompileConditions(raw map[string]any) (*Condition, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("conditions block is empty")
	}

	var parts []*Condition
	for key, val := range raw {
		switch key {
		case "AND", "OR":
			items, ok := val.([]any)
			if !ok {
				return nil, fmt.Errorf("%s requires a list of condition blocks", key)
			}
			children := make([]*Condition, 0, len(items))
			for i, item := range items {
				m, ok := item.(map[string]any)
				if !ok {
					return nil, fmt.Errorf("%s[%d] must be a condition block", key, i)
				}
				child, err := CompileConditions(m)
				if err != nil {
					return nil, fmt.Errorf("%s[%d]: %w", key, i, err)
				}
				children = append(children, child)
			}
			op := OpAnd
			if key == "OR" {
				op = OpOr
			}
			parts = append(parts, &Condition{Kind: KindComposite, compOp: op, children: children})

		case "NOT":
			m, ok := val.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("NOT requires a single condition block")
			}
			child, err := CompileConditions(m)
			if err != nil {
				return nil, fmt.Errorf("NOT: %w", err)
			}
			parts = append(parts, &Condition{Kind: KindComposite, compOp: OpNot, children: []*Condition{child}})

		default:
			cond, err := compileFieldCondition(key, val)
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", key, err)
			}
			parts = append(parts, cond)
		}
	}

	if len(parts) == 1 {
		return parts[0], nil
	}
	return &Condition{Kind: KindComposite, compOp: OpAnd, children: parts}, nil
}

// compileFieldCondition compiles the condition attached to a single request
// field, e.g. tool_name, cwd, parameters, or a "parameters.<path>" key.
func compileFieldCondition(field string, spec any) (*Condition, error) {
	switch v := spec.(type) {
	case map[string]any:
		return compileDescriptor(field, v)
	case []any:
		return &Condition{Kind: KindOneOf, Field: field, oneOf: v}, nil
	default:
		return &Condition{Kind: KindExact, Field: field, exact: v}, nil
	}
}

// compileDescriptor compiles an object-form condition descriptor. Both the
// canonical {type: <kind>, ...} form and the shorthand form (a key named
// after the kind, e.g. {regex: "..."}) are accepted.
func compileDescriptor(field string, v map[string]any) (*Condition, error) {
	kind, _ := v["type"].(string)
	if kind == "" {
		for _, candidate := range []string{"oneOf", "regex", "glob", "jsonpath", "numeric", "cel"} {
			if _, ok := v[candidate]; ok {
				kind = candidate
				break
			}
		}
	}

	switch kind {
	case "oneOf":
		values, _ := v["oneOf"].([]any)
		if values == nil {
			values, _ = v["value"].([]any)
		}
		return &Condition{Kind: KindOneOf, Field: field, oneOf: values}, nil

	case "regex":
		pat, _ := v["regex"].(string)
		if pat == "" {
			pat, _ = v["pattern"].(string)
		}
		re, err := compileRegex(pat)
		if err != nil {
			return nil, fmt.Errorf("invalid regex %q: %w", pat, err)
		}
		return &Condition{Kind: KindRegex, Field: field, regex: re}, nil

	case "glob":
		pat, _ := v["glob"].(string)
		if pat == "" {
			pat, _ = v["pattern"].(string)
		}
		g, err := compileGlob(pat)
		if err != nil {
			return nil, fmt.Errorf("invalid glob %q: %w", pat, err)
		}
		return &Condition{Kind: KindGlob, Field: field, glob: g}, nil

	case "jsonpath":
		expr, _ := v["jsonpath"].(string)
		if expr == "" {
			expr, _ = v["expr"].(string)
		}
		if _, err := jsonpath.New(expr); err != nil {
			return nil, fmt.Errorf("invalid jsonpath %q: %w", expr, err)
		}
		innerRaw, ok := v["inner"]
		if !ok {
			return nil, fmt.Errorf("jsonpath condition requires an \"inner\" predicate")
		}
		var inner *Condition
		var err error
		if innerMap, isMap := innerRaw.(map[string]any); isMap {
			inner, err = compileDescriptor("", innerMap)
		} else {
			// A literal or oneOf inner form, e.g. {jsonpath: ..., inner: "value"}.
			inner, err = compileFieldCondition("", innerRaw)
		}
		if err != nil {
			return nil, fmt.Errorf("jsonpath inner: %w", err)
		}
		return &Condition{Kind: KindJSONPath, jsonPathExpr: expr, inner: inner}, nil

	case "numeric":
		var opRaw, valRaw any
		if nested, ok := v["numeric"].(map[string]any); ok {
			opRaw, valRaw = nested["op"], nested["value"]
		} else {
			opRaw, valRaw = v["op"], v["value"]
		}
		op, ok := opRaw.(string)
		if !ok {
			return nil, fmt.Errorf("numeric condition requires an \"op\"")
		}
		val, ok := toFloat64(valRaw)
		if !ok {
			return nil, fmt.Errorf("numeric condition requires a numeric \"value\"")
		}
		switch NumericOp(op) {
		case OpLT, OpLE, OpEQ, OpGE, OpGT:
		default:
			return nil, fmt.Errorf("unsupported numeric op %q", op)
		}
		return &Condition{Kind: KindNumeric, Field: field, numOp: NumericOp(op), numValue: val}, nil

	case "cel":
		expr, _ := v["cel"].(string)
		if expr == "" {
			expr, _ = v["expr"].(string)
		}
		prog, err := compileCEL(expr)
		if err != nil {
			return nil, fmt.Errorf("invalid cel expression %q: %w", expr, err)
		}
		return &Condition{Kind: KindCEL, celExpr: expr, celProgram: prog}, nil

	default:
		return nil, fmt.Errorf("unrecognized condition descriptor: %v", v)
	}
}
