// Package transport defines the wire shapes of the hook protocol shared by
// every boundary adapter (stdio, HTTP), and the translation to and from the
// core Evaluate API's request.ToolRequest / decision.Decision types. Kept
// separate from stdio/httpgw so neither transport needs to import the
// other's framing code to share the message shape (spec.md §6).
package transport

import (
	"strings"
	"time"

	"github.com/toolprint/superego/internal/decision"
	"github.com/toolprint/superego/internal/request"
)

// HookRequest is the boundary request shape: tool_name, tool_input (the
// parameters), and optional session/agent/cwd/event-name context.
type HookRequest struct {
	ToolName      string         `json:"tool_name"`
	ToolInput     map[string]any `json:"tool_input"`
	SessionID     string         `json:"session_id,omitempty"`
	AgentID       string         `json:"agent_id,omitempty"`
	Cwd           string         `json:"cwd,omitempty"`
	HookEventName string         `json:"hook_event_name,omitempty"`
}

// ToToolRequest translates a wire HookRequest into the core Engine's
// request.ToolRequest. HookEventName carries no meaning inside the
// Decision Engine -- it identifies which lifecycle point on the agent
// host's side fired the hook, not a policy-relevant attribute -- so it is
// intentionally dropped here rather than threaded through as a Parameters
// entry.
func (h HookRequest) ToToolRequest() request.ToolRequest {
	return request.ToolRequest{
		ToolName:   h.ToolName,
		Parameters: h.ToolInput,
		SessionID:  h.SessionID,
		AgentID:    h.AgentID,
		Cwd:        h.Cwd,
		Timestamp:  time.Now(),
	}
}

// HookResponse is the boundary response shape: decision in {allow, deny},
// confidence, reason, and the rule that matched (if any).
type HookResponse struct {
	Decision   string  `json:"decision"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
	RuleID     string  `json:"rule_id,omitempty"`
}

// FromDecision translates a core Decision into the wire HookResponse.
func FromDecision(d decision.Decision) HookResponse {
	return HookResponse{
		Decision:   strings.ToLower(string(d.Action)),
		Confidence: d.Confidence,
		Reason:     d.Reason,
		RuleID:     d.RuleID,
	}
}
