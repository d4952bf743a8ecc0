package decision

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/toolprint/superego/internal/pattern"
	"github.com/toolprint/superego/internal/request"
	"github.com/toolprint/superego/internal/rule"
	"github.com/toolprint/superego/internal/sampler"
	"github.com/toolprint/superego/internal/session"
)

// Sampler is the subset of sampler.Sampler the Engine depends on, so tests
// can supply a stand-in without a real LLM endpoint.
type Sampler interface {
	Sample(ctx context.Context, req request.ToolRequest, samplingGuidance string) (sampler.Verdict, error)
	InjectionFlags(req request.ToolRequest) []string
}

// Store is the subset of rule.Store the Engine depends on.
type Store interface {
	Snapshot() *rule.Snapshot
}

// Recorder is the subset of audit.Sink the Engine depends on. Declared
// here rather than importing the audit package directly, since audit.Entry
// embeds a Decision -- importing audit from decision would cycle back.
type Recorder interface {
	Record(req request.ToolRequest, dec Decision, ruleMatches []string)
}

// Engine is the Decision Engine: the single Evaluate entry point. Grounded
// on the teacher's policy.Engine, generalized from its five-stage
// budget/ratelimit/CEL/AI-judge/approval pipeline (first deny/terminate
// short-circuits) to the spec's simpler first-match-wins Rule walk with an
// allow/deny/sample action, and from a mutex-guarded []CompiledPolicy field
// to consuming the lock-free rule.Store.
type Engine struct {
	store   Store
	sampler Sampler
	sink    Recorder
	tracker *session.Tracker
	logger  *slog.Logger
}

// New builds a Decision Engine. tracker may be nil, in which case
// "session.request_count" conditions always read 0.
func New(store Store, sampler Sampler, sink Recorder, tracker *session.Tracker, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:   store,
		sampler: sampler,
		sink:    sink,
		tracker: tracker,
		logger:  logger.With("component", "decision.Engine"),
	}
}

// Evaluate is the core API's single operation. It never returns an error
// for evaluation-time failures -- those are classified into a Decision
// internally (SPEC_FULL.md §7) -- but does return one for a caller-
// initiated cancellation, per the spec's "the only non-Decision outcome of
// Evaluate is a caller-initiated cancellation" contract.
func (e *Engine) Evaluate(ctx context.Context, req request.ToolRequest) (Decision, error) {
	start := time.Now()

	dec, ruleID, ruleErr := e.evaluateOnce(ctx, req)
	if ruleErr != nil {
		if errors.Is(ruleErr, context.Canceled) {
			dec = classifyToDecision(ClassCancelled)
			dec.ProcessingTimeMs = time.Since(start).Milliseconds()
			e.record(req, dec, ruleID)
			return dec, context.Canceled
		}
		var classified *ClassifiedError
		if !errors.As(ruleErr, &classified) {
			classified = Classify(ClassUnexpected, ruleErr)
		}
		dec = classifyToDecision(classified.Class)
	}

	dec.ProcessingTimeMs = time.Since(start).Milliseconds()
	e.record(req, dec, ruleID)
	return dec, nil
}

func (e *Engine) evaluateOnce(ctx context.Context, req request.ToolRequest) (Decision, string, error) {
	if err := req.Validate(); err != nil {
		return Decision{}, "", Classify(ClassValidation, err)
	}

	if e.tracker != nil {
		e.tracker.Observe(req.SessionID)
	}

	snap := e.store.Snapshot()
	matched, ok, err := firstMatch(ctx, snap, e.fielder(req))
	if err != nil {
		return Decision{}, "", err
	}
	if !ok {
		return Decision{Action: ActionAllow, Reason: "no rule matched", Confidence: 0.5}, "", nil
	}

	switch matched.Action {
	case rule.ActionAllow:
		reason := matched.Reason
		if reason == "" {
			reason = "matched rule " + matched.ID
		}
		return Decision{Action: ActionAllow, Reason: reason, RuleID: matched.ID, Confidence: 1.0}, matched.ID, nil

	case rule.ActionDeny:
		reason := matched.Reason
		if reason == "" {
			reason = "matched rule " + matched.ID
		}
		return Decision{Action: ActionDeny, Reason: reason, RuleID: matched.ID, Confidence: 1.0}, matched.ID, nil

	case rule.ActionSample:
		select {
		case <-ctx.Done():
			return Decision{}, matched.ID, ctx.Err()
		default:
		}
		verdict, err := e.sampler.Sample(ctx, req, matched.SamplingGuidance)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return Decision{}, matched.ID, err
			}
			if errors.Is(err, sampler.ErrUnavailable) {
				return Decision{}, matched.ID, Classify(ClassAIServiceUnavailable, err)
			}
			return Decision{}, matched.ID, Classify(ClassAIResponseInvalid, err)
		}
		action := ActionDeny
		if verdict.Allow {
			action = ActionAllow
		}
		return Decision{Action: action, Reason: verdict.Reason, RuleID: matched.ID, Confidence: verdict.Confidence}, matched.ID, nil

	default:
		return Decision{}, matched.ID, Classify(ClassUnexpected, errUnknownAction(matched.Action))
	}
}

// fielder wraps req so conditions can address "session.request_count" in
// addition to every field request.ToolRequest already exposes.
func (e *Engine) fielder(req request.ToolRequest) pattern.Fielder {
	return session.Fielder{Request: req, Tracker: e.tracker}
}

// firstMatch walks the snapshot in (priority, loadOrder) order -- the order
// the Compiler already sorted it into -- and returns the first rule whose
// conditions match the request. ctx is checked between rules, not just
// before and after the walk, so a cancellation during a long rule list
// doesn't wait for the walk to finish before taking effect.
func firstMatch(ctx context.Context, snap *rule.Snapshot, fielder pattern.Fielder) (rule.Rule, bool, error) {
	if snap == nil {
		return rule.Rule{}, false, nil
	}
	for _, r := range snap.Rules {
		select {
		case <-ctx.Done():
			return rule.Rule{}, false, ctx.Err()
		default:
		}
		if pattern.Match(r.Conditions, fielder) {
			return r, true, nil
		}
	}
	return rule.Rule{}, false, nil
}

func (e *Engine) record(req request.ToolRequest, dec Decision, ruleID string) {
	if e.sink == nil {
		return
	}
	var matches []string
	if ruleID != "" {
		matches = append(matches, ruleID)
	}
	if e.sampler != nil {
		matches = append(matches, e.sampler.InjectionFlags(req)...)
	}
	e.sink.Record(req, dec, matches)
}

type actionUnknownError struct {
	action rule.Action
}

func (e actionUnknownError) Error() string {
	return "unrecognized rule action: " + string(e.action)
}

func errUnknownAction(a rule.Action) error {
	return actionUnknownError{action: a}
}
