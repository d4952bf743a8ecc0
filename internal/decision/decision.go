// Package decision implements the Decision Engine: the single Evaluate
// entry point that orchestrates the Policy Store, Pattern Engine, AI
// Sampler, and Error Classifier into one Decision per request. Grounded on
// the teacher's policy.Engine.Evaluate/evaluateOne pipeline, generalized
// from a []CompiledPolicy walk with CEL-only matching to a Rule Snapshot
// walk over the full Pattern Engine (SPEC_FULL.md §4.6).
package decision

// Action is the externally observable verdict. "sample" never escapes the
// engine -- it is always resolved into allow or deny before a Decision is
// returned.
type Action string

const (
	ActionAllow Action = "allow"
	ActionDeny  Action = "deny"
)

// Decision is the result of one evaluation.
type Decision struct {
	Action           Action
	Reason           string
	RuleID           string
	Confidence       float64
	ProcessingTimeMs int64
}
