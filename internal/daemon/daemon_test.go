// internal/daemon/daemon_test.go
package daemon

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/colebrumley/fwtrigger/internal/config"
	"github.com/colebrumley/fwtrigger/internal/state"
	"github.com/colebrumley/fwtrigger/internal/trigger"
)

const baseConfig = `
logging:
  level: error
history:
  enabled: true
  path: %s
watch:
  settle_delay_ms: 20
  cancel_pause_ms: 10
`

func writeConfig(t *testing.T, path, body string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatal(err)
	}
}

func newConfig(t *testing.T, root, triggers string) string {
	t.Helper()
	path := filepath.Join(root, "config.yaml")
	writeConfig(t, path, fmt.Sprintf(baseConfig, filepath.Join(root, "history.db"))+triggers)
	return path
}

func startDaemon(t *testing.T, configPath string) *Daemon {
	t.Helper()
	d := New(configPath)
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- d.Run(ctx) }()

	select {
	case <-d.Ready():
	case err := <-errCh:
		cancel()
		t.Fatalf("Run() returned early: %v", err)
	case <-time.After(5 * time.Second):
		cancel()
		t.Fatal("timeout waiting for daemon to start")
	}

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-errCh:
			if err != nil {
				t.Errorf("Run() error = %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Error("timeout waiting for daemon to stop")
		}
	})
	return d
}

func waitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for %s", what)
}

func statusNames(d *Daemon) string {
	var names []string
	for _, st := range d.Status() {
		names = append(names, st.Name)
	}
	return strings.Join(names, ",")
}

func TestRun_ActionRunsAndIsRecorded(t *testing.T) {
	root := t.TempDir()
	watchDir := filepath.Join(root, "incoming")
	os.MkdirAll(watchDir, 0755)
	outFile := filepath.Join(root, "out.txt")

	cfgPath := newConfig(t, root, fmt.Sprintf(`
triggers:
  - name: inbox
    parameters: "%s"
    action:
      command: "echo {{file_name}} $FWTRIGGER_EVENT_TYPE >> %s"
      timeout_seconds: 5
`, filepath.Join(watchDir, "in.txt"), outFile))

	d := startDaemon(t, cfgPath)

	if err := os.WriteFile(filepath.Join(watchDir, "in.txt"), []byte("order"), 0644); err != nil {
		t.Fatal(err)
	}

	waitFor(t, 5*time.Second, "action output", func() bool {
		b, _ := os.ReadFile(outFile)
		return strings.TrimSpace(string(b)) == "in.txt file_changed"
	})

	var rec state.FireRecord
	waitFor(t, 5*time.Second, "history record", func() bool {
		r, ok, err := d.History().LastFire("inbox")
		rec = r
		return err == nil && ok
	})
	if rec.State != state.StateSuccess {
		t.Errorf("expected success, got %s (%s)", rec.State, rec.Error)
	}
	if rec.FilePath != filepath.Join(watchDir, "in.txt") {
		t.Errorf("unexpected file path %q", rec.FilePath)
	}
	if rec.EventType != trigger.EventFileChanged || rec.Sequence != 1 {
		t.Errorf("unexpected event %s #%d", rec.EventType, rec.Sequence)
	}
}

func TestRun_FailedActionRecorded(t *testing.T) {
	root := t.TempDir()
	cfgPath := newConfig(t, root, fmt.Sprintf(`
triggers:
  - name: broken
    parameters: "%s | INITIAL"
    action:
      command: "echo token=supersecret; exit 4"
`, filepath.Join(root, "in.txt")))

	d := startDaemon(t, cfgPath)

	var rec state.FireRecord
	waitFor(t, 5*time.Second, "history record", func() bool {
		r, ok, _ := d.History().LastFire("broken")
		rec = r
		return ok
	})
	if rec.State != state.StateFailure || rec.ExitCode != 4 {
		t.Errorf("expected failure with exit 4, got %s/%d", rec.State, rec.ExitCode)
	}
	if rec.EventType != trigger.EventInitial {
		t.Errorf("expected initial fire, got %s", rec.EventType)
	}
	if strings.Contains(rec.Output, "supersecret") {
		t.Errorf("output should be scrubbed: %q", rec.Output)
	}
}

func TestRun_TimerWithoutActionRecordsFires(t *testing.T) {
	root := t.TempDir()
	cfgPath := newConfig(t, root, fmt.Sprintf(`
triggers:
  - name: poll
    description: Poll the drop folder
    parameters: "%s | MS:100"
`, filepath.Join(root, "in.txt")))

	d := startDaemon(t, cfgPath)

	waitFor(t, 5*time.Second, "two timer fires", func() bool {
		records, _ := d.History().GetHistory("poll", state.StateFired, 0)
		return len(records) >= 2
	})

	st := d.Status()
	if len(st) != 1 {
		t.Fatalf("expected 1 trigger, got %d", len(st))
	}
	if !st[0].Running || st[0].Watching != 1 {
		t.Errorf("unexpected status %+v", st[0])
	}
	if st[0].NextRun == "none" || !strings.HasPrefix(st[0].Info, "watching ") {
		t.Errorf("expected armed timer in status, got %+v", st[0])
	}
	if st[0].LastFire == "" {
		t.Error("expected last fire in status")
	}
}

func TestRun_StartFailureReportedAndRetriedOnReload(t *testing.T) {
	root := t.TempDir()
	missing := filepath.Join(root, "later")
	triggers := fmt.Sprintf(`
triggers:
  - name: late
    parameters: "%s"
`, filepath.Join(missing, "in.txt"))
	cfgPath := newConfig(t, root, triggers)

	d := startDaemon(t, cfgPath)

	st := d.Status()
	if len(st) != 1 || st[0].Running || st[0].Error == "" {
		t.Fatalf("expected a stopped trigger with an error, got %+v", st)
	}

	os.MkdirAll(missing, 0755)
	newConfig(t, root, triggers)

	waitFor(t, 5*time.Second, "trigger running after reload", func() bool {
		st := d.Status()
		return len(st) == 1 && st[0].Running
	})
}

func TestReload_AddsRemovesAndKeepsTriggers(t *testing.T) {
	root := t.TempDir()
	a := filepath.Join(root, "a.txt")
	b := filepath.Join(root, "b.txt")
	cfgPath := newConfig(t, root, fmt.Sprintf(`
triggers:
  - name: alpha
    parameters: "%s"
  - name: keep
    parameters: "%s"
`, a, b))

	d := startDaemon(t, cfgPath)
	if got := statusNames(d); got != "alpha,keep" {
		t.Fatalf("unexpected triggers %q", got)
	}
	keepID := d.Status()[1].InstanceID

	newConfig(t, root, fmt.Sprintf(`
triggers:
  - name: beta
    parameters: "%s | S:30"
  - name: keep
    parameters: "%s"
`, a, b))

	waitFor(t, 5*time.Second, "reload", func() bool { return statusNames(d) == "beta,keep" })

	st := d.Status()
	if st[1].InstanceID != keepID {
		t.Error("unchanged trigger should not be restarted")
	}
	if !st[0].Running || st[0].NextRun == "none" {
		t.Errorf("new trigger should be running with a timer, got %+v", st[0])
	}
}

func TestReload_InvalidConfigKeepsRunning(t *testing.T) {
	root := t.TempDir()
	cfgPath := newConfig(t, root, fmt.Sprintf(`
triggers:
  - name: alpha
    parameters: "%s"
`, filepath.Join(root, "a.txt")))

	d := startDaemon(t, cfgPath)

	writeConfig(t, cfgPath, "triggers:\n  - name: alpha\n    parameters: \"x.txt | Q:1\"\n")
	time.Sleep(300 * time.Millisecond)

	st := d.Status()
	if len(st) != 1 || !st[0].Running {
		t.Fatalf("invalid config should leave alpha running, got %+v", st)
	}
	if !strings.Contains(st[0].Parameters, "a.txt") {
		t.Errorf("parameters should be unchanged, got %q", st[0].Parameters)
	}
}

func TestRun_DisabledTrigger(t *testing.T) {
	root := t.TempDir()
	cfgPath := newConfig(t, root, fmt.Sprintf(`
triggers:
  - name: off
    enabled: false
    parameters: "%s"
`, filepath.Join(root, "a.txt")))

	d := startDaemon(t, cfgPath)
	st := d.Status()
	if len(st) != 1 || st[0].Enabled || st[0].Running {
		t.Errorf("expected disabled, stopped trigger, got %+v", st)
	}
	if st[0].Info != "not watching" {
		t.Errorf("unexpected info %q", st[0].Info)
	}
}

func TestRun_InvalidConfig(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "config.yaml")
	writeConfig(t, path, "triggers:\n  - parameters: \"/x/in.txt\"\n")

	err := New(path).Run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "loading config") {
		t.Errorf("expected config error, got %v", err)
	}
}

func TestEventData(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	ev := trigger.Event{
		Type:      trigger.EventTimer,
		Sequence:  5,
		Timestamp: now,
		Data:      map[string]any{"file_path": "/data/in.txt", "event_type": trigger.EventTimer},
	}
	data := eventData("inbox", ev)

	if data["trigger"] != "inbox" || data["sequence"] != uint64(5) {
		t.Errorf("unexpected data %v", data)
	}
	if data["timestamp"] != "2026-03-01T10:00:00Z" {
		t.Errorf("unexpected timestamp %v", data["timestamp"])
	}
	if data["file_path"] != "/data/in.txt" {
		t.Errorf("event data should be copied, got %v", data["file_path"])
	}
	if _, ok := ev.Data["trigger"]; ok {
		t.Error("event data map should not be modified")
	}

	known := make(map[string]bool)
	for _, v := range TemplateVars {
		known[v] = true
	}
	for k := range data {
		if !known[k] {
			t.Errorf("variable %q missing from TemplateVars", k)
		}
	}
}

func TestTriggerChanged(t *testing.T) {
	base := config.Trigger{Name: "a", Parameters: "/x/in.txt", Action: config.Action{Command: "true"}}
	off := false

	tests := []struct {
		name   string
		mutate func(*config.Trigger)
		want   bool
	}{
		{"same", func(*config.Trigger) {}, false},
		{"parameters", func(c *config.Trigger) { c.Parameters = "/y/in.txt" }, true},
		{"action", func(c *config.Trigger) { c.Action.TimeoutSeconds = 9 }, true},
		{"disabled", func(c *config.Trigger) { c.Enabled = &off }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next := base
			tt.mutate(&next)
			if got := triggerChanged(base, next); got != tt.want {
				t.Errorf("triggerChanged() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTriggerNode(t *testing.T) {
	n := triggerNode{cfg: config.Trigger{Name: "inbox"}}
	if n.NodeID() != "inbox" || n.NodeName() != "inbox" || n.NodeType() != "FileTrigger" {
		t.Errorf("unexpected node %s/%s/%s", n.NodeID(), n.NodeName(), n.NodeType())
	}
	n.cfg.Description = "Incoming orders"
	if n.NodeName() != "Incoming orders" {
		t.Errorf("NodeName() = %q", n.NodeName())
	}
}
