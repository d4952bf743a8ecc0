// Package rule compiles declarative rule documents into immutable, ordered
// Policy Snapshots, holds the current Snapshot behind an atomic pointer, and
// watches the rule file for hot-reload. Generalized from the teacher's
// policy.Loader/policy.CompiledPolicy (vishprometa-agent-warden), which did
// the equivalent for a CEL-only policy document.
package rule

import (
	"github.com/toolprint/superego/internal/pattern"
)

// Action is the verdict a matched Rule produces.
type Action string

const (
	ActionAllow  Action = "allow"
	ActionDeny   Action = "deny"
	ActionSample Action = "sample"
)

const (
	MinPriority = 0
	MaxPriority = 999
)

// Rule is a compiled policy entry: a pre-compiled Condition tree paired with
// an action. Rules are frozen after compilation and never mutated.
type Rule struct {
	ID               string
	Priority         int
	Conditions       *pattern.Condition
	Action           Action
	Reason           string
	SamplingGuidance string

	// loadOrder breaks ties between rules sharing a Priority: the rule that
	// appeared earlier in the document wins. Assigned by the Compiler, not
	// by callers.
	loadOrder int
}

// LoadOrder reports the rule's position in its source document, used as the
// tie-break key in (priority, loadOrder) ordering.
func (r Rule) LoadOrder() int {
	return r.loadOrder
}

// Snapshot is an immutable, ordered sequence of Rules sorted by
// (priority ascending, loadOrder ascending). It is the unit of atomic
// replacement in the Store.
type Snapshot struct {
	Rules   []Rule
	Version int
}

// Len reports the number of rules in the snapshot.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Rules)
}
