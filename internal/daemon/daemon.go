// internal/daemon/daemon.go
package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/colebrumley/fwtrigger/internal/config"
	"github.com/colebrumley/fwtrigger/internal/executor"
	"github.com/colebrumley/fwtrigger/internal/logging"
	"github.com/colebrumley/fwtrigger/internal/security"
	"github.com/colebrumley/fwtrigger/internal/state"
	"github.com/colebrumley/fwtrigger/internal/template"
	"github.com/colebrumley/fwtrigger/internal/trigger"
	"github.com/robfig/cron/v3"
)

// managed is one configured trigger and its running watcher, if any.
type managed struct {
	cfg     config.Trigger
	watcher *trigger.FileWatcher
	err     error // last Start error
}

// Daemon hosts the configured file triggers
type Daemon struct {
	configPath string
	config     *config.Global
	triggers   map[string]*managed
	logger     *slog.Logger
	logCloser  io.Closer
	historyDB  *state.DB
	reloader   *trigger.FileWatcher
	cleanup    *cron.Cron
	startTime  time.Time
	runCtx     context.Context
	ready      chan struct{}
	mu         sync.RWMutex
	wg         sync.WaitGroup // tracks in-flight actions
}

var _ trigger.Node = (*Daemon)(nil)

// New creates a new daemon instance
func New(configPath string) *Daemon {
	if abs, err := filepath.Abs(configPath); err == nil {
		configPath = abs
	}
	return &Daemon{
		configPath: configPath,
		triggers:   make(map[string]*managed),
		ready:      make(chan struct{}),
	}
}

func (d *Daemon) NodeID() string   { return "fwtriggerd" }
func (d *Daemon) NodeName() string { return filepath.Base(d.configPath) }
func (d *Daemon) NodeType() string { return "Daemon" }

// Init loads the configuration and opens the log sink and history
// database. Run calls it when it has not been called yet.
func (d *Daemon) Init() error {
	cfg, err := config.Load(d.configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	d.config = cfg

	logger, closer, err := logging.Open(cfg.Logging.Format, cfg.Logging.Level, cfg.Logging.Path)
	if err != nil {
		d.logger = logging.NewLogger(cfg.Logging.Format, cfg.Logging.Level, os.Stderr)
		d.logger.Warn("failed to open log file, using stderr", "error", err, "path", cfg.Logging.Path)
	} else {
		d.logger, d.logCloser = logger, closer
	}

	if cfg.History.Enabled {
		if err := d.initHistoryDB(); err != nil {
			d.logger.Warn("failed to open history database, fires will not be recorded", "error", err)
		}
	}
	return nil
}

// initHistoryDB opens the fire history and prunes it now and daily.
func (d *Daemon) initHistoryDB() error {
	db, err := state.Open(d.config.History.Path)
	if err != nil {
		return fmt.Errorf("opening history database: %w", err)
	}
	d.historyDB = db

	retention := d.config.History.RetentionDays
	prune := func() {
		if deleted, err := db.Cleanup(retention); err != nil {
			d.logger.Warn("history cleanup failed", "error", err)
		} else if deleted > 0 {
			d.logger.Info("cleaned up old fire records", "deleted", deleted)
		}
	}
	go prune()

	d.cleanup = cron.New()
	if _, err := d.cleanup.AddFunc("@daily", prune); err != nil {
		return fmt.Errorf("scheduling history cleanup: %w", err)
	}
	d.cleanup.Start()
	return nil
}

// Run starts every enabled trigger and the config hot-reload watcher, then
// blocks until ctx is cancelled.
func (d *Daemon) Run(ctx context.Context) error {
	if d.config == nil {
		if err := d.Init(); err != nil {
			return err
		}
	}
	d.startTime = time.Now()
	d.runCtx = ctx

	d.logger.Info("starting daemon", "config", d.configPath, "triggers", len(d.config.Triggers))
	d.checkPermissions()

	d.mu.Lock()
	for _, tc := range d.config.Triggers {
		d.triggers[tc.Name] = d.startTrigger(tc)
	}
	d.mu.Unlock()

	d.startHotReload()
	close(d.ready)
	d.logger.Info("daemon started", "running", d.running())

	<-ctx.Done()
	d.logger.Info("daemon stopping, waiting for in-flight actions")
	return d.shutdown()
}

// Ready is closed once Run has started every trigger.
func (d *Daemon) Ready() <-chan struct{} {
	return d.ready
}

// Config returns the active configuration.
func (d *Daemon) Config() *config.Global {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.config
}

// Logger returns the daemon logger, valid after Init.
func (d *Daemon) Logger() *slog.Logger {
	return d.logger
}

// History returns the fire history, or nil when disabled.
func (d *Daemon) History() *state.DB {
	return d.historyDB
}

// checkPermissions logs loudly when the config file or its directory can
// be written by others, since the config holds shell commands.
func (d *Daemon) checkPermissions() {
	if err := security.ValidateFilePermissions(d.configPath); err != nil {
		d.logger.Error("CRITICAL: config file has unsafe permissions", "error", err, "path", d.configPath)
	}
	if err := security.ValidateDirectoryPermissions(filepath.Dir(d.configPath)); err != nil {
		d.logger.Error("CRITICAL: config directory has unsafe permissions", "error", err)
	}
}

func (d *Daemon) newWatcher(name string) *trigger.FileWatcher {
	logger := d.logger
	if name != "" {
		logger = logging.WithTrigger(d.logger, name)
	}
	return trigger.New(
		trigger.WithLogger(logger),
		trigger.WithSettleDelay(d.config.Watch.SettleDelay()),
		trigger.WithCancelPause(d.config.Watch.CancelPause()),
		trigger.WithBackend(d.config.Watch.Backend),
	)
}

// startTrigger starts tc if it is enabled. Callers hold d.mu.
func (d *Daemon) startTrigger(tc config.Trigger) *managed {
	m := &managed{cfg: tc}
	if !tc.IsEnabled() {
		d.logger.Debug("skipping disabled trigger", "trigger", tc.Name)
		return m
	}

	w := d.newWatcher(tc.Name)
	if _, err := w.Start(triggerNode{cfg: tc}, tc.Parameters, d.onFire(tc.Name)); err != nil {
		d.logger.Error("failed to start trigger", "trigger", tc.Name, "error", err)
		m.err = err
		return m
	}
	m.watcher = w
	return m
}

func (m *managed) stop(controller any) {
	if m.watcher != nil {
		m.watcher.Stop(controller)
		m.watcher = nil
	}
}

func (d *Daemon) running() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	n := 0
	for _, m := range d.triggers {
		if m.watcher != nil {
			n++
		}
	}
	return n
}

func (d *Daemon) onFire(name string) trigger.Callback {
	return func(ev trigger.Event) {
		d.handleFire(d.runCtx, name, ev)
	}
}

// handleFire runs the trigger's action, if any, and records the fire. It
// runs on the trigger's coordinator, so fires of one trigger never overlap.
func (d *Daemon) handleFire(ctx context.Context, name string, ev trigger.Event) {
	d.wg.Add(1)
	defer d.wg.Done()

	d.mu.RLock()
	m, ok := d.triggers[name]
	var action config.Action
	if ok {
		action = m.cfg.Action
	}
	d.mu.RUnlock()
	if !ok {
		d.logger.Warn("fire for unknown trigger", "trigger", name)
		return
	}

	logger := logging.WithTrigger(d.logger, name)
	data := eventData(name, ev)
	filePath, _ := data["file_path"].(string)

	rec := state.FireRecord{
		TriggerName: name,
		InstanceID:  ev.TriggerID,
		EventType:   ev.Type,
		Sequence:    ev.Sequence,
		FilePath:    filePath,
		State:       state.StateFired,
		FiredAt:     ev.Timestamp,
	}

	if action.Command == "" {
		logger.Info("trigger fired", "type", ev.Type, "sequence", ev.Sequence, "file", filePath)
		d.recordFire(rec)
		return
	}

	safe := security.SanitizeData(data)
	command := template.ExpandShell(action.Command, safe)
	logger.Info("running action", "type", ev.Type, "sequence", ev.Sequence, "file", filePath)

	result, err := executor.Execute(ctx, command, action.Timeout(), executor.BuildEnv(safe), "")
	if err != nil {
		logger.Error("action error", "error", err)
		rec.State = state.StateFailure
		rec.Error = err.Error()
		d.recordFire(rec)
		return
	}

	logger.Info("action complete",
		"state", result.State,
		"exit_code", result.ExitCode,
		"duration", result.Duration,
	)
	if result.State != "success" {
		logger.Warn("action failed", "state", result.State, "error", result.Error)
	}

	rec.State = result.State
	rec.DurationMs = result.Duration.Milliseconds()
	rec.ExitCode = result.ExitCode
	rec.Error = result.Error
	rec.Output = security.TruncateOutput(security.ScrubOutput(result.Output))
	d.recordFire(rec)
}

// TemplateVars lists the variables available to action commands.
var TemplateVars = []string{
	"trigger", "event_type", "sequence", "timestamp",
	"file_path", "file_name", "directory",
}

// eventData is the template and environment data of a fire.
func eventData(name string, ev trigger.Event) map[string]any {
	data := make(map[string]any, len(ev.Data)+4)
	for k, v := range ev.Data {
		data[k] = v
	}
	data["trigger"] = name
	data["sequence"] = ev.Sequence
	data["timestamp"] = ev.Timestamp.Format(time.RFC3339)
	if _, ok := data["event_type"]; !ok {
		data["event_type"] = ev.Type
	}
	return data
}

func (d *Daemon) recordFire(rec state.FireRecord) {
	if d.historyDB == nil {
		return
	}
	if _, err := d.historyDB.RecordFire(rec); err != nil {
		d.logger.Warn("failed to record fire", "trigger", rec.TriggerName, "error", err)
	}
}

// startHotReload watches the config file with a trigger of its own and
// reapplies the configuration whenever it changes.
func (d *Daemon) startHotReload() {
	d.reloader = d.newWatcher("")
	_, err := d.reloader.Start(d, d.configPath, func(trigger.Event) {
		d.reload()
	})
	if err != nil {
		d.logger.Error("could not watch config file, hot reload disabled", "error", err, "path", d.configPath)
		d.reloader = nil
		return
	}
	d.logger.Info("hot-reload watcher started", "path", d.configPath)
}

// reload re-reads the config file and restarts the triggers that changed.
// An invalid file is logged and the running configuration is kept.
func (d *Daemon) reload() {
	if err := security.ValidateFilePermissions(d.configPath); err != nil {
		d.logger.Error("CRITICAL: config file has unsafe permissions, not reloading", "error", err)
		return
	}
	cfg, err := config.Load(d.configPath)
	if err != nil {
		d.logger.Error("failed to reload config", "error", err)
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	restartAll := cfg.Watch != d.config.Watch
	if cfg.Logging != d.config.Logging {
		d.logger.Warn("logging settings changed, restart the daemon to apply them")
	}
	// Watch settings apply to watchers created from here on.
	d.config.Watch = cfg.Watch
	d.config.Triggers = cfg.Triggers

	wanted := make(map[string]config.Trigger, len(cfg.Triggers))
	for _, tc := range cfg.Triggers {
		wanted[tc.Name] = tc
	}

	for name, m := range d.triggers {
		if _, ok := wanted[name]; !ok {
			d.logger.Info("stopping trigger for removed entry", "trigger", name)
			m.stop(triggerNode{cfg: m.cfg})
			delete(d.triggers, name)
		}
	}

	for _, tc := range cfg.Triggers {
		old, existed := d.triggers[tc.Name]
		if existed && !restartAll && !triggerChanged(old.cfg, tc) && (old.watcher != nil || !tc.IsEnabled()) {
			continue
		}
		if existed {
			old.stop(triggerNode{cfg: old.cfg})
		}
		d.triggers[tc.Name] = d.startTrigger(tc)
		d.logger.Info("reloaded trigger", "trigger", tc.Name)
	}

	d.logger.Info("config reloaded", "triggers", len(cfg.Triggers))
}

func triggerChanged(a, b config.Trigger) bool {
	return a.Parameters != b.Parameters ||
		a.Action != b.Action ||
		a.Description != b.Description ||
		a.IsEnabled() != b.IsEnabled()
}

func (d *Daemon) shutdown() error {
	if d.reloader != nil {
		d.reloader.Stop(d)
	}

	d.mu.Lock()
	for _, m := range d.triggers {
		m.stop(triggerNode{cfg: m.cfg})
	}
	d.mu.Unlock()

	d.wg.Wait()

	var errs []error
	if d.cleanup != nil {
		<-d.cleanup.Stop().Done()
	}
	if d.historyDB != nil {
		errs = append(errs, d.historyDB.Close())
	}
	d.logger.Info("daemon stopped", "uptime", time.Since(d.startTime).Truncate(time.Second).String())
	if d.logCloser != nil {
		errs = append(errs, d.logCloser.Close())
	}
	return errors.Join(errs...)
}

// TriggerStatus is a snapshot of one configured trigger.
type TriggerStatus struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Parameters  string `json:"parameters"`
	Enabled     bool   `json:"enabled"`
	Running     bool   `json:"running"`
	InstanceID  int64  `json:"instance_id,omitempty"`
	Watching    int    `json:"watching"`
	Info        string `json:"info"`
	NextRun     string `json:"next_run"`
	LastFire    string `json:"last_fire,omitempty"`
	Action      string `json:"action,omitempty"`
	Error       string `json:"error,omitempty"`
}

// Status reports every configured trigger, sorted by name.
func (d *Daemon) Status() []TriggerStatus {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]TriggerStatus, 0, len(d.triggers))
	for name, m := range d.triggers {
		st := TriggerStatus{
			Name:        name,
			Description: m.cfg.Description,
			Parameters:  m.cfg.Parameters,
			Enabled:     m.cfg.IsEnabled(),
			Action:      m.cfg.Action.Command,
			Info:        "not watching",
			NextRun:     "none",
		}
		if m.err != nil {
			st.Error = m.err.Error()
		}
		if w := m.watcher; w != nil {
			info := w.Info()
			st.Running = true
			st.InstanceID = w.ID()
			st.Watching = w.Watching()
			st.Info = info.NextRunInfo
			st.NextRun = info.NextRunTimestamp()
			if last := w.LastFire(); !last.IsZero() {
				st.LastFire = last.Format(time.RFC3339)
			}
		}
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// triggerNode identifies a configured trigger as the controller in logs.
type triggerNode struct {
	cfg config.Trigger
}

func (n triggerNode) NodeID() string { return n.cfg.Name }

func (n triggerNode) NodeName() string {
	if n.cfg.Description != "" {
		return n.cfg.Description
	}
	return n.cfg.Name
}

func (n triggerNode) NodeType() string { return "FileTrigger" }
