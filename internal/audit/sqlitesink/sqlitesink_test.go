package sqlitesink

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/toolprint/superego/internal/audit"
	"github.com/toolprint/superego/internal/decision"
	"github.com/toolprint/superego/internal/request"
)

func TestWriteAndListBySession(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "audit.db")
	store, err := Open(dbPath)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer store.Close()

	entry := audit.Entry{
		ID:        "01TESTID",
		Timestamp: time.Now(),
		Request: request.ToolRequest{
			ToolName:   "edit",
			SessionID:  "sess-1",
			Parameters: map[string]any{"path": "/tmp/x"},
		},
		Decision: decision.Decision{
			Action:     decision.ActionDeny,
			Reason:     "dangerous",
			RuleID:     "r1",
			Confidence: 1.0,
		},
		RuleMatches: []string{"r1"},
	}
	if err := store.Write(entry); err != nil {
		t.Fatalf("write: %v", err)
	}

	got, err := store.ListBySession("sess-1", 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(got))
	}
	if got[0].Request.ToolName != "edit" || got[0].Decision.RuleID != "r1" {
		t.Errorf("unexpected round-tripped entry: %+v", got[0])
	}
	if got[0].Request.Parameters["path"] != "/tmp/x" {
		t.Errorf("expected parameters round-tripped, got %+v", got[0].Request.Parameters)
	}
}

func TestListBySessionEmptyForUnknownSession(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "audit.db")
	store, err := Open(dbPath)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer store.Close()

	got, err := store.ListBySession("no-such-session", 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no entries, got %d", len(got))
	}
}
