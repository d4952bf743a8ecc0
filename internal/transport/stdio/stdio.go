// Package stdio implements the line-delimited hook protocol transport: one
// JSON HookRequest per input line, one JSON HookResponse per output line.
// Grounded on the teacher's api.WebSocketHub read pump (a single goroutine
// loop that reads, decodes, and reacts to each message until the
// connection closes), adapted from a WebSocket connection's frames to
// stdin/stdout's line-delimited stream.
package stdio

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"

	"github.com/toolprint/superego/internal/decision"
	"github.com/toolprint/superego/internal/request"
	"github.com/toolprint/superego/internal/transport"
)

// Engine is the subset of decision.Engine the transport depends on.
type Engine interface {
	Evaluate(ctx context.Context, req request.ToolRequest) (decision.Decision, error)
}

// Transport reads HookRequests from in and writes HookResponses to out,
// one per line, until in is exhausted, ctx is cancelled, or a write fails.
type Transport struct {
	engine Engine
	in     io.Reader
	out    io.Writer
	logger *slog.Logger
}

// New builds a stdio Transport over the given reader/writer pair (stdin
// and stdout in normal operation; swappable for tests).
func New(engine Engine, in io.Reader, out io.Writer, logger *slog.Logger) *Transport {
	if logger == nil {
		logger = slog.Default()
	}
	return &Transport{engine: engine, in: in, out: out, logger: logger.With("component", "transport.stdio")}
}

// Run processes lines until EOF or ctx cancellation. A line that fails to
// parse produces an error response on that line rather than terminating
// the loop, so one malformed hook call does not kill the whole session.
func (t *Transport) Run(ctx context.Context) error {
	scanner := bufio.NewScanner(t.in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		if err := t.handleLine(ctx, line); err != nil {
			if errors.Is(err, io.ErrClosedPipe) {
				return err
			}
			t.logger.Error("failed to write hook response", "error", err)
			return err
		}
	}
	return scanner.Err()
}

func (t *Transport) handleLine(ctx context.Context, line []byte) error {
	var hookReq transport.HookRequest
	if err := json.Unmarshal(line, &hookReq); err != nil {
		return t.writeResponse(transport.HookResponse{
			Decision: "deny",
			Reason:   "malformed hook request: " + err.Error(),
		})
	}

	dec, err := t.engine.Evaluate(ctx, hookReq.ToToolRequest())
	if err != nil {
		t.logger.Warn("evaluate cancelled", "error", err)
		return t.writeResponse(transport.HookResponse{Decision: "deny", Reason: "evaluation cancelled"})
	}
	return t.writeResponse(transport.FromDecision(dec))
}

func (t *Transport) writeResponse(resp transport.HookResponse) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = t.out.Write(data)
	return err
}
