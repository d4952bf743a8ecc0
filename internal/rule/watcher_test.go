package rule

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeRuleFile(t *testing.T, path, doc string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(doc), 0644); err != nil {
		t.Fatalf("writing rule file: %v", err)
	}
}

func TestWatcherStartLoadsInitialSnapshot(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	writeRuleFile(t, path, validDoc)

	store := NewStore()
	w := NewWatcher(path, NewCompiler(), store, nil, nil)
	if err := w.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer w.Stop()

	if store.Snapshot().Len() != 2 {
		t.Fatalf("expected 2 rules loaded, got %d", store.Snapshot().Len())
	}
}

func TestWatcherStartFailsOnMissingFile(t *testing.T) {
	store := NewStore()
	w := NewWatcher(filepath.Join(t.TempDir(), "missing.yaml"), NewCompiler(), store, nil, nil)
	if err := w.Start(); err == nil {
		t.Fatal("expected an error starting against a missing rule file")
	}
}

func TestWatcherReloadsOnFileChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	writeRuleFile(t, path, validDoc)

	store := NewStore()
	w := NewWatcher(path, NewCompiler(), store, nil, nil).WithDebounce(20 * time.Millisecond)
	if err := w.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer w.Stop()

	writeRuleFile(t, path, `
rules:
  - id: only
    priority: 1
    conditions: {tool_name: edit}
    action: allow
`)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if store.Snapshot().Len() == 1 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("expected snapshot to reload to 1 rule, got %d", store.Snapshot().Len())
}

func TestWatcherRecordsErrorOnBadReloadWithoutTouchingSnapshot(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	writeRuleFile(t, path, validDoc)

	store := NewStore()
	var callbackErr error
	w := NewWatcher(path, NewCompiler(), store, nil, func(err error) {
		callbackErr = err
	}).WithDebounce(20 * time.Millisecond)
	if err := w.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer w.Stop()

	writeRuleFile(t, path, `rules: [{id: bad, priority: 5000}]`)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if callbackErr != nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if callbackErr == nil {
		t.Fatal("expected onError to be invoked for a bad reload")
	}
	if store.Snapshot().Len() != 2 {
		t.Errorf("expected snapshot untouched by failed reload, got %d rules", store.Snapshot().Len())
	}
	if store.LastLoadError() == "" {
		t.Error("expected LastLoadError to be recorded")
	}
}
