// Package sampler implements the AI Sampler: the second-stage judgment
// that resolves a Rule's "sample" action by asking an LLM. Grounded on the
// teacher's policy.AIJudge (callLLM/buildJudge*Prompt/parseJudgeResponse),
// adapted from its free-form "respond with JSON" contract to the spec's
// strict three-line text format (SPEC_FULL.md §4.5), and wrapped in the
// Circuit Breaker instead of called directly.
package sampler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/toolprint/superego/internal/breaker"
	"github.com/toolprint/superego/internal/request"
	"github.com/toolprint/superego/internal/sanitize"
)

// Verdict is the resolved outcome of an AI sampling call.
type Verdict struct {
	Allow      bool
	Reason     string
	Confidence float64
}

// ErrUnavailable signals the Decision Engine that AI evaluation could not
// be completed -- breaker open, operation timeout, transport error, or a
// response that failed the strict three-line parse. The Engine applies the
// fail-open fallback for all of these uniformly (SPEC_FULL.md §4.5/§7).
var ErrUnavailable = fmt.Errorf("AI evaluation unavailable")

// Config configures the HTTP transport to an OpenAI-compatible chat
// completions endpoint.
type Config struct {
	BaseURL string
	APIKey  string
	Model   string
}

// FromEnv builds a Config from the superego environment variables,
// matching the teacher's AGENTWARDEN_LLM_* convention renamed to this
// project's SUPEREGO_LLM_* names (SPEC_FULL.md §6).
func FromEnv() Config {
	cfg := Config{
		BaseURL: os.Getenv("SUPEREGO_LLM_BASE_URL"),
		APIKey:  os.Getenv("SUPEREGO_LLM_API_KEY"),
		Model:   os.Getenv("SUPEREGO_LLM_MODEL"),
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	return cfg
}

// Sampler wraps the LLM inference call in a Circuit Breaker and enforces
// the strict response format.
type Sampler struct {
	cfg        Config
	breaker    *breaker.Breaker
	httpClient *http.Client
	scanner    *sanitize.Scanner
}

// New builds a Sampler. b is the shared Circuit Breaker instance, owned by
// the caller (cmd/superego also hands its state to the Health Monitor).
func New(cfg Config, b *breaker.Breaker, scanner *sanitize.Scanner) *Sampler {
	return &Sampler{
		cfg:        cfg,
		breaker:    b,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		scanner:    scanner,
	}
}

// Sample asks the LLM whether req should be allowed, given the rule's
// sampling guidance. Every field embedded in the prompt is run through
// internal/sanitize first. A cancellation during the pending inference call
// is returned as context.Canceled, distinct from every other failure --
// breaker open, HTTP error, operation timeout, or strict-parse failure --
// which collapse to ErrUnavailable. The caller (the Decision Engine) must
// treat the two differently: fail-closed for the former, fail-open for the
// latter.
func (s *Sampler) Sample(ctx context.Context, req request.ToolRequest, samplingGuidance string) (Verdict, error) {
	prompt := s.buildPrompt(req, samplingGuidance)

	var raw string
	err := s.breaker.Execute(ctx, func(opCtx context.Context) error {
		resp, callErr := s.callLLM(opCtx, prompt)
		if callErr != nil {
			return callErr
		}
		raw = resp
		return nil
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return Verdict{}, err
		}
		return Verdict{}, ErrUnavailable
	}

	verdict, err := parseVerdict(raw)
	if err != nil {
		return Verdict{}, ErrUnavailable
	}
	return verdict, nil
}

// InjectionFlags scans the request's free-text and parameter fields for
// prompt-injection patterns, returning annotation strings of the form
// "injection:<pattern-name>" for the Audit Sink's rule_matches -- this
// never changes the Decision, only annotates it.
func (s *Sampler) InjectionFlags(req request.ToolRequest) []string {
	if s.scanner == nil {
		return nil
	}
	var flags []string
	seen := map[string]bool{}
	scan := func(content string) {
		result := s.scanner.Scan(content)
		for _, f := range result.Flags {
			name := "injection:" + f
			if !seen[name] {
				seen[name] = true
				flags = append(flags, name)
			}
		}
	}
	scan(req.ToolName)
	scan(req.Cwd)
	for _, v := range req.Parameters {
		scan(sanitize.Value(v))
	}
	return flags
}

const systemPrompt = `You are a security policy judge evaluating a single tool call made by an autonomous coding agent before it executes.

Respond with EXACTLY three lines, nothing else, no markdown fencing:
DECISION: ALLOW or DENY
REASON: a single concise sentence
CONFIDENCE: a float between 0.0 and 1.0

Default to ALLOW when the action is ambiguous or low-risk. Reserve DENY for actions that are clearly destructive, exfiltrate data, or escalate privilege beyond what the stated context justifies.`

func (s *Sampler) buildPrompt(req request.ToolRequest, guidance string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Tool: %s\n", sanitize.FreeText(req.ToolName))
	if req.Cwd != "" {
		fmt.Fprintf(&b, "Working directory: %s\n", sanitize.Path(req.Cwd))
	}
	if req.SessionID != "" {
		fmt.Fprintf(&b, "Session: %s\n", sanitize.FreeText(req.SessionID))
	}
	if req.AgentID != "" {
		fmt.Fprintf(&b, "Agent: %s\n", sanitize.FreeText(req.AgentID))
	}
	if len(req.Parameters) > 0 {
		params := sanitize.Parameters(req.Parameters)
		encoded, _ := json.MarshalIndent(params, "", "  ")
		fmt.Fprintf(&b, "Parameters:\n%s\n", string(encoded))
	}
	if guidance != "" {
		fmt.Fprintf(&b, "\nGuidance from the matched rule: %s\n", sanitize.FreeText(guidance))
	}
	return b.String()
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (s *Sampler) callLLM(ctx context.Context, userPrompt string) (string, error) {
	if s.cfg.APIKey == "" {
		return "", fmt.Errorf("SUPEREGO_LLM_API_KEY is not set")
	}

	body := chatRequest{
		Model: s.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Temperature: 0.1,
		MaxTokens:   128,
	}
	encoded, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	endpoint := strings.TrimRight(s.cfg.BaseURL, "/") + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(encoded))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	var parsed chatResponse
	if decodeErr := json.NewDecoder(resp.Body).Decode(&parsed); decodeErr != nil {
		return "", fmt.Errorf("decode response (status %d): %w", resp.StatusCode, decodeErr)
	}
	if resp.StatusCode != http.StatusOK {
		msg := fmt.Sprintf("status %d", resp.StatusCode)
		if parsed.Error != nil {
			msg += ": " + parsed.Error.Message
		}
		return "", fmt.Errorf("LLM API error: %s", msg)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("LLM returned no choices")
	}
	return strings.TrimSpace(parsed.Choices[0].Message.Content), nil
}

// parseVerdict strictly parses the three required lines. Any deviation --
// missing line, wrong order, unparseable confidence, an ALLOW/DENY token
// other than those two -- is an error, per the spec's "any deviation is a
// failure" contract.
func parseVerdict(raw string) (Verdict, error) {
	lines := strings.Split(strings.TrimSpace(raw), "\n")
	if len(lines) != 3 {
		return Verdict{}, fmt.Errorf("expected exactly 3 lines, got %d", len(lines))
	}

	decisionLine := strings.TrimSpace(lines[0])
	reasonLine := strings.TrimSpace(lines[1])
	confidenceLine := strings.TrimSpace(lines[2])

	decisionVal, ok := splitField(decisionLine, "DECISION:")
	if !ok {
		return Verdict{}, fmt.Errorf("line 1 must start with %q", "DECISION:")
	}
	var allow bool
	switch strings.ToUpper(strings.TrimSpace(decisionVal)) {
	case "ALLOW":
		allow = true
	case "DENY":
		allow = false
	default:
		return Verdict{}, fmt.Errorf("DECISION must be ALLOW or DENY, got %q", decisionVal)
	}

	reasonVal, ok := splitField(reasonLine, "REASON:")
	if !ok {
		return Verdict{}, fmt.Errorf("line 2 must start with %q", "REASON:")
	}
	reasonVal = strings.TrimSpace(reasonVal)
	if reasonVal == "" {
		return Verdict{}, fmt.Errorf("REASON must not be empty")
	}

	confVal, ok := splitField(confidenceLine, "CONFIDENCE:")
	if !ok {
		return Verdict{}, fmt.Errorf("line 3 must start with %q", "CONFIDENCE:")
	}
	confidence, err := strconv.ParseFloat(strings.TrimSpace(confVal), 64)
	if err != nil {
		return Verdict{}, fmt.Errorf("CONFIDENCE must be a float: %w", err)
	}
	if confidence < 0 || confidence > 1 {
		return Verdict{}, fmt.Errorf("CONFIDENCE must be in [0,1], got %v", confidence)
	}

	return Verdict{Allow: allow, Reason: reasonVal, Confidence: confidence}, nil
}

func splitField(line, prefix string) (string, bool) {
	if !strings.HasPrefix(line, prefix) {
		return "", false
	}
	return line[len(prefix):], true
}
