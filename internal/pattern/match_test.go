package pattern

import (
	"testing"
	"time"

	"github.com/toolprint/superego/internal/request"
)

func req(toolName string, params map[string]any) request.ToolRequest {
	return request.ToolRequest{
		ToolName:   toolName,
		Parameters: params,
		Timestamp:  time.Now(),
	}
}

func TestExactMatch(t *testing.T) {
	c, err := CompileConditions(map[string]any{"tool_name": "rm"})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if !Match(c, req("rm", nil)) {
		t.Error("expected match on exact tool_name")
	}
	if Match(c, req("ls", nil)) {
		t.Error("expected no match for different tool_name")
	}
}

func TestOneOfMatch(t *testing.T) {
	c, err := CompileConditions(map[string]any{
		"tool_name": map[string]any{"oneOf": []any{"rm", "sudo"}},
	})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if !Match(c, req("sudo", nil)) {
		t.Error("expected match for sudo")
	}
	if Match(c, req("ls", nil)) {
		t.Error("expected no match for ls")
	}
}

func TestRegexMatch(t *testing.T) {
	c, err := CompileConditions(map[string]any{
		"tool_name": map[string]any{"regex": ".*"},
	})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if !Match(c, req("anything", nil)) {
		t.Error("catch-all regex should match everything")
	}
}

func TestGlobCrossesSeparators(t *testing.T) {
	c, err := CompileConditions(map[string]any{
		"cwd": map[string]any{"glob": "/etc/**"},
	})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	r := req("write", nil)
	r.Cwd = "/etc/nested/dir"
	if !Match(c, r) {
		t.Error("** should cross path separators")
	}
}

func TestJSONPathWithGlobInner(t *testing.T) {
	c, err := CompileConditions(map[string]any{
		"parameters": map[string]any{
			"jsonpath": "$.target.path",
			"inner":    map[string]any{"glob": "/etc/**"},
		},
	})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}

	denied := req("write", map[string]any{
		"target": map[string]any{"path": "/etc/shadow"},
	})
	if !Match(c, denied) {
		t.Error("expected jsonpath+glob match for /etc/shadow")
	}

	allowed := req("write", map[string]any{
		"target": map[string]any{"path": "/tmp/ok"},
	})
	if Match(c, allowed) {
		t.Error("expected no match for /tmp/ok")
	}
}

func TestNumericComparison(t *testing.T) {
	c, err := CompileConditions(map[string]any{
		"parameters.size": map[string]any{"type": "numeric", "op": ">", "value": 1000},
	})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	big := req("write", map[string]any{"size": float64(2000)})
	if !Match(c, big) {
		t.Error("expected match for size > 1000")
	}
	small := req("write", map[string]any{"size": float64(10)})
	if Match(c, small) {
		t.Error("expected no match for size <= 1000")
	}
	nonNumeric := req("write", map[string]any{"size": "huge"})
	if Match(c, nonNumeric) {
		t.Error("non-numeric target should yield no-match, not error")
	}
}

func TestNotOverMissingFieldIsTrue(t *testing.T) {
	c, err := CompileConditions(map[string]any{
		"NOT": map[string]any{"parameters.missing_field": "anything"},
	})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if !Match(c, req("write", map[string]any{})) {
		t.Error("NOT over a missing field should yield true")
	}
}

func TestAndShortCircuitsOnMissingField(t *testing.T) {
	c, err := CompileConditions(map[string]any{
		"AND": []any{
			map[string]any{"tool_name": "write"},
			map[string]any{"parameters.missing_field": "anything"},
		},
	})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if Match(c, req("write", map[string]any{})) {
		t.Error("AND with a missing required field should yield false")
	}
}

func TestCompositeAndOr(t *testing.T) {
	c, err := CompileConditions(map[string]any{
		"OR": []any{
			map[string]any{"tool_name": "rm"},
			map[string]any{"tool_name": "sudo"},
		},
	})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if !Match(c, req("sudo", nil)) {
		t.Error("OR should match either branch")
	}
	if Match(c, req("ls", nil)) {
		t.Error("OR should not match neither branch")
	}
}

func TestCELCondition(t *testing.T) {
	c, err := CompileConditions(map[string]any{
		"condition": map[string]any{"type": "cel", "expr": `tool_name == "rm" && cwd.startsWith("/home")`},
	})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	r := req("rm", nil)
	r.Cwd = "/home/user"
	if !Match(c, r) {
		t.Error("expected cel condition to match")
	}
}

func TestPatternRaiseIsNoMatch(t *testing.T) {
	// A regex condition with no compiled pattern panics on a nil
	// dereference inside matching; Match must recover it as no-match.
	c := &Condition{Kind: KindRegex, Field: "tool_name"}
	if Match(c, req("x", nil)) {
		t.Error("a panicking match should be recovered as no-match")
	}

	// An unrecognized condition kind is no-match as well.
	c = &Condition{Kind: Kind(999)}
	if Match(c, req("x", nil)) {
		t.Error("unknown condition kind should be no-match")
	}
}
