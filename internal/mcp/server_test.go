// internal/mcp/server_test.go
package mcp

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/colebrumley/fwtrigger/internal/daemon"
	"github.com/colebrumley/fwtrigger/internal/state"
)

type fakeSource struct {
	status []daemon.TriggerStatus
	db     *state.DB
}

func (f *fakeSource) Status() []daemon.TriggerStatus { return f.status }
func (f *fakeSource) History() *state.DB             { return f.db }

func openTestDB(t *testing.T) *state.DB {
	t.Helper()
	db, err := state.Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("state.Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestNewServer(t *testing.T) {
	server := NewServer(&fakeSource{})
	if server == nil || server.server == nil {
		t.Fatal("NewServer() returned nil")
	}
}

func TestTriggerInfo(t *testing.T) {
	src := &fakeSource{status: []daemon.TriggerStatus{
		{Name: "inbox", Running: true, Watching: 2, Info: "watching /a/in.txt or /b/in.txt", NextRun: "none"},
		{Name: "report", Running: false, Info: "not watching", NextRun: "none"},
	}}
	server := NewServer(src)
	ctx := context.Background()

	t.Run("all", func(t *testing.T) {
		_, output, err := server.handleTriggerInfo(ctx, nil, TriggerInfoInput{})
		if err != nil {
			t.Fatalf("handleTriggerInfo() error = %v", err)
		}
		if output.Count != 2 {
			t.Errorf("count = %d, want 2", output.Count)
		}
	})

	t.Run("by name", func(t *testing.T) {
		_, output, err := server.handleTriggerInfo(ctx, nil, TriggerInfoInput{Name: "inbox"})
		if err != nil {
			t.Fatalf("handleTriggerInfo() error = %v", err)
		}
		if output.Count != 1 || output.Triggers[0].Watching != 2 {
			t.Errorf("unexpected output %+v", output)
		}
	})

	t.Run("unknown", func(t *testing.T) {
		if _, _, err := server.handleTriggerInfo(ctx, nil, TriggerInfoInput{Name: "nope"}); err == nil {
			t.Error("expected error for unknown trigger")
		}
	})
}

func TestFireHistory(t *testing.T) {
	db := openTestDB(t)
	now := time.Now()
	for i, st := range []string{state.StateSuccess, state.StateFailure, state.StateSuccess} {
		db.RecordFire(state.FireRecord{
			TriggerName: "inbox",
			EventType:   "file_changed",
			Sequence:    uint64(i + 1),
			FilePath:    "/data/in.txt",
			State:       st,
			FiredAt:     now.Add(time.Duration(i) * time.Second),
		})
	}
	server := NewServer(&fakeSource{db: db})
	ctx := context.Background()

	t.Run("all", func(t *testing.T) {
		_, output, err := server.handleFireHistory(ctx, nil, FireHistoryInput{})
		if err != nil {
			t.Fatalf("handleFireHistory() error = %v", err)
		}
		if output.Count != 3 {
			t.Fatalf("count = %d, want 3", output.Count)
		}
		if output.Fires[0].Sequence != 3 {
			t.Errorf("expected newest fire first, got sequence %d", output.Fires[0].Sequence)
		}
		if output.Fires[0].FiredAt == "" {
			t.Error("expected fired_at to be formatted")
		}
	})

	t.Run("state filter", func(t *testing.T) {
		_, output, err := server.handleFireHistory(ctx, nil, FireHistoryInput{State: state.StateFailure})
		if err != nil {
			t.Fatalf("handleFireHistory() error = %v", err)
		}
		if output.Count != 1 || output.Fires[0].Sequence != 2 {
			t.Errorf("unexpected output %+v", output)
		}
	})

	t.Run("limit", func(t *testing.T) {
		_, output, _ := server.handleFireHistory(ctx, nil, FireHistoryInput{Limit: 2})
		if output.Count != 2 {
			t.Errorf("count = %d, want 2", output.Count)
		}
	})

	t.Run("other trigger", func(t *testing.T) {
		_, output, _ := server.handleFireHistory(ctx, nil, FireHistoryInput{Trigger: "report"})
		if output.Count != 0 {
			t.Errorf("count = %d, want 0", output.Count)
		}
	})
}

func TestFireHistory_Disabled(t *testing.T) {
	server := NewServer(&fakeSource{})
	if _, _, err := server.handleFireHistory(context.Background(), nil, FireHistoryInput{}); err == nil {
		t.Error("expected error when history is disabled")
	}
}
