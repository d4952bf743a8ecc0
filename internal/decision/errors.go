package decision

// Class tags a raw evaluation-time failure with the category the Error
// Classifier uses to pick a fail-open or fail-closed Decision. Grounded on
// the error taxonomy in SPEC_FULL.md §7: ConfigError, ValidationError are
// load/input-shape failures; AIServiceUnavailable, AIResponseInvalid come
// from the Sampler; Cancelled is caller-initiated; Unexpected is the
// catch-all fail-closed default for anything else.
type Class int

const (
	ClassConfig Class = iota
	ClassValidation
	ClassAIServiceUnavailable
	ClassAIResponseInvalid
	ClassCancelled
	ClassUnexpected
)

// ClassifiedError pairs a raw error with its classification, so the
// Decision Engine's catch-all handler can route it to the Error
// Classifier without re-deriving the class from error string matching.
type ClassifiedError struct {
	Class Class
	Err   error
}

func (c *ClassifiedError) Error() string {
	return c.Err.Error()
}

func (c *ClassifiedError) Unwrap() error {
	return c.Err
}

// Classify wraps err with a Class for later routing by Classify-to-Decision.
func Classify(class Class, err error) *ClassifiedError {
	return &ClassifiedError{Class: class, Err: err}
}

// classifyToDecision maps a Class to its fail-open/fail-closed Decision per
// the table in SPEC_FULL.md §4.8. Internal error detail is deliberately
// never copied into Decision.Reason -- only a plain-language phrase -- so
// policy internals never leak into a caller-visible field.
func classifyToDecision(class Class) Decision {
	switch class {
	case ClassConfig:
		return Decision{Action: ActionDeny, Reason: "configuration error during evaluation", Confidence: 0.8}
	case ClassValidation:
		return Decision{Action: ActionDeny, Reason: "request failed validation", Confidence: 0.8}
	case ClassAIServiceUnavailable:
		return Decision{Action: ActionAllow, Reason: "AI evaluation unavailable, failing open", Confidence: 0.2}
	case ClassAIResponseInvalid:
		return Decision{Action: ActionAllow, Reason: "AI evaluation unavailable, failing open", Confidence: 0.2}
	case ClassCancelled:
		return Decision{Action: ActionDeny, Reason: "evaluation cancelled", Confidence: 0.9}
	default:
		return Decision{Action: ActionDeny, Reason: "unexpected error during evaluation", Confidence: 0.9}
	}
}
