package rule

import (
	"errors"
	"fmt"
	"sort"

	"github.com/toolprint/superego/internal/pattern"
	"gopkg.in/yaml.v3"
)

// Compiler parses rule documents into immutable Snapshots. Grounded on the
// teacher's policy.Loader.LoadFromConfig, generalized from a flat
// []PolicyConfig to a versioned, priority-sorted Snapshot and from
// skip-on-failure to aggregate-error-or-bail semantics, per the data model's
// load-sequence contract.
type Compiler struct{}

// NewCompiler returns a ready-to-use Compiler. Stateless: kept as a type for
// symmetry with the teacher's Loader and to leave room for future options
// (e.g. a shared CEL environment) without changing call sites.
func NewCompiler() *Compiler {
	return &Compiler{}
}

// Compile parses raw YAML rule-document bytes into a Snapshot. Every error
// encountered while compiling individual rules is collected; Compile returns
// all of them together rather than stopping at the first, so an operator
// fixing a rule file sees every problem in one pass.
func (c *Compiler) Compile(data []byte, version int) (*Snapshot, error) {
	var doc ruleDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing rule document: %w", err)
	}
	return c.compileDescriptors(doc.Rules, version)
}

func (c *Compiler) compileDescriptors(descs []ruleDescriptor, version int) (*Snapshot, error) {
	var errs []error
	seen := make(map[string]bool, len(descs))
	rules := make([]Rule, 0, len(descs))

	for i, d := range descs {
		r, err := compileOne(d, i)
		if err != nil {
			errs = append(errs, fmt.Errorf("rule[%d] %q: %w", i, d.ID, err))
			continue
		}
		if seen[r.ID] {
			errs = append(errs, fmt.Errorf("rule[%d]: duplicate rule id %q", i, r.ID))
			continue
		}
		seen[r.ID] = true
		rules = append(rules, r)
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	sort.SliceStable(rules, func(i, j int) bool {
		if rules[i].Priority != rules[j].Priority {
			return rules[i].Priority < rules[j].Priority
		}
		return rules[i].loadOrder < rules[j].loadOrder
	})

	return &Snapshot{Rules: rules, Version: version}, nil
}

func compileOne(d ruleDescriptor, index int) (Rule, error) {
	if d.ID == "" {
		return Rule{}, fmt.Errorf("missing id")
	}
	if d.Priority < MinPriority || d.Priority > MaxPriority {
		return Rule{}, fmt.Errorf("priority %d out of range [%d,%d]", d.Priority, MinPriority, MaxPriority)
	}

	action := Action(d.Action)
	switch action {
	case ActionAllow, ActionDeny, ActionSample:
	default:
		return Rule{}, fmt.Errorf("unrecognized action %q", d.Action)
	}

	if len(d.Conditions) == 0 {
		return Rule{}, fmt.Errorf("missing conditions")
	}
	cond, err := pattern.CompileConditions(d.Conditions)
	if err != nil {
		return Rule{}, fmt.Errorf("conditions: %w", err)
	}

	return Rule{
		ID:               d.ID,
		Priority:         d.Priority,
		Conditions:       cond,
		Action:           action,
		Reason:           d.Reason,
		SamplingGuidance: d.SamplingGuidance,
		loadOrder:        index,
	}, nil
}
