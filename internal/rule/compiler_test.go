package rule

import (
	"strings"
	"testing"
)

const validDoc = `
rules:
  - id: r1
    priority: 1
    conditions:
      tool_name: {oneOf: [rm, sudo]}
    action: deny
    reason: dangerous
  - id: r2
    priority: 999
    conditions:
      tool_name: {regex: ".*"}
    action: allow
    reason: default
`

func TestCompileValidDocument(t *testing.T) {
	snap, err := NewCompiler().Compile([]byte(validDoc), 1)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if snap.Len() != 2 {
		t.Fatalf("expected 2 rules, got %d", snap.Len())
	}
	if snap.Rules[0].ID != "r1" || snap.Rules[1].ID != "r2" {
		t.Errorf("expected rules sorted by priority, got %v, %v", snap.Rules[0].ID, snap.Rules[1].ID)
	}
}

func TestCompilePriorityTieBreaksByLoadOrder(t *testing.T) {
	doc := `
rules:
  - id: first
    priority: 5
    conditions: {tool_name: edit}
    action: deny
  - id: second
    priority: 5
    conditions: {tool_name: edit}
    action: allow
`
	snap, err := NewCompiler().Compile([]byte(doc), 1)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if snap.Rules[0].ID != "first" {
		t.Errorf("expected 'first' to win the tie-break, got %q", snap.Rules[0].ID)
	}
}

func TestCompileRejectsDuplicateIDs(t *testing.T) {
	doc := `
rules:
  - id: dup
    priority: 1
    conditions: {tool_name: a}
    action: allow
  - id: dup
    priority: 2
    conditions: {tool_name: b}
    action: deny
`
	_, err := NewCompiler().Compile([]byte(doc), 1)
	if err == nil || !strings.Contains(err.Error(), "duplicate") {
		t.Fatalf("expected duplicate id error, got %v", err)
	}
}

func TestCompileRejectsOutOfRangePriority(t *testing.T) {
	doc := `
rules:
  - id: bad
    priority: 1000
    conditions: {tool_name: a}
    action: allow
`
	_, err := NewCompiler().Compile([]byte(doc), 1)
	if err == nil {
		t.Fatal("expected an error for out-of-range priority")
	}
}

func TestCompileAggregatesAllErrors(t *testing.T) {
	doc := `
rules:
  - id: ""
    priority: 1
    conditions: {tool_name: a}
    action: allow
  - id: bad2
    priority: 2000
    conditions: {tool_name: b}
    action: allow
`
	_, err := NewCompiler().Compile([]byte(doc), 1)
	if err == nil {
		t.Fatal("expected aggregate error")
	}
	if !strings.Contains(err.Error(), "rule[0]") || !strings.Contains(err.Error(), "rule[1]") {
		t.Errorf("expected both rule errors reported, got: %v", err)
	}
}

func TestCompileRejectsBadAction(t *testing.T) {
	doc := `
rules:
  - id: r1
    priority: 1
    conditions: {tool_name: a}
    action: maybe
`
	_, err := NewCompiler().Compile([]byte(doc), 1)
	if err == nil {
		t.Fatal("expected an error for unrecognized action")
	}
}

func TestStoreReplaceAndSnapshot(t *testing.T) {
	s := NewStore()
	if s.Snapshot().Len() != 0 {
		t.Fatal("expected empty initial snapshot")
	}

	snap, err := NewCompiler().Compile([]byte(validDoc), 0)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if err := s.Replace(snap); err != nil {
		t.Fatalf("replace: %v", err)
	}
	if s.Snapshot().Len() != 2 {
		t.Fatalf("expected 2 rules after replace, got %d", s.Snapshot().Len())
	}
	if s.Snapshot().Version != 1 {
		t.Errorf("expected version 1 after first replace, got %d", s.Snapshot().Version)
	}
}

func TestStoreFailedCompileLeavesSnapshotUntouched(t *testing.T) {
	s := NewStore()
	good, err := NewCompiler().Compile([]byte(validDoc), 0)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	_ = s.Replace(good)

	_, err = NewCompiler().Compile([]byte("rules: [{id: bad, priority: 5000}]"), 0)
	if err == nil {
		t.Fatal("expected compile error")
	}
	if s.Snapshot().Len() != 2 {
		t.Error("a failed compile must not have touched the store")
	}
}
