package session

import "github.com/toolprint/superego/internal/request"

// Fielder decorates a request.ToolRequest with the Tracker's
// "session.request_count" virtual field, so a rule's conditions can match
// on it the same way they match any other named field. All other field
// names fall through to the wrapped request unchanged.
type Fielder struct {
	Request request.ToolRequest
	Tracker *Tracker
}

// Field implements pattern.Fielder.
func (f Fielder) Field(name string) (any, bool) {
	if name == "session.request_count" {
		if f.Tracker == nil {
			return 0, true
		}
		return float64(f.Tracker.RequestCount(f.Request.SessionID)), true
	}
	return f.Request.Field(name)
}
