// cmd/fwtrigger/main.go
package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/colebrumley/fwtrigger/internal/config"
	"github.com/colebrumley/fwtrigger/internal/daemon"
	"github.com/colebrumley/fwtrigger/internal/logging"
	"github.com/colebrumley/fwtrigger/internal/state"
	"github.com/colebrumley/fwtrigger/internal/template"
	"github.com/colebrumley/fwtrigger/internal/trigger"
	"gopkg.in/yaml.v3"
)

func defaultConfigPath() string {
	if p := os.Getenv("FWTRIGGER_CONFIG"); p != "" {
		return p
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "fwtrigger.yaml"
	}
	return filepath.Join(homeDir, ".config", "fwtrigger", "config.yaml")
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "init":
		err = cmdInit(args)
	case "list":
		err = cmdList(args)
	case "validate":
		err = cmdValidate(args)
	case "parse":
		err = cmdParse(args)
	case "watch":
		err = cmdWatch(args)
	case "history":
		err = cmdHistory(args)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`fwtrigger - File watcher trigger tool

Usage: fwtrigger <command> [options]

Commands:
  init [-config path]            Write a starter configuration
  list [-config path]            List configured triggers
  validate [-config path]        Validate the configuration and resolve each trigger
  parse <parameters>             Parse a parameter string and show its canonical form
  watch <parameters>             Watch in the foreground and print each fire
  history [-trigger name] [-state s] [-n N]
                                 Show recorded fires

The configuration path defaults to $FWTRIGGER_CONFIG or ~/.config/fwtrigger/config.yaml.`)
}

func configFlag(fs *flag.FlagSet) *string {
	return fs.String("config", defaultConfigPath(), "configuration file")
}

func cmdInit(args []string) error {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	configPath := configFlag(fs)
	fs.Parse(args)

	if _, err := os.Stat(*configPath); err == nil {
		fmt.Printf("%s already exists\n", *configPath)
		return nil
	}

	homeDir, _ := os.UserHomeDir()
	starter := config.Global{
		Logging: config.LoggingConfig{Format: "text", Level: "info"},
		History: config.HistoryConfig{Enabled: true, RetentionDays: 30},
		Watch: config.WatchConfig{
			SettleDelayMS: int(trigger.DefaultSettleDelay.Milliseconds()),
			CancelPauseMS: int(trigger.DefaultCancelPause.Milliseconds()),
			Backend:       "fsnotify",
		},
		Triggers: []config.Trigger{{
			Name:        "example",
			Description: "Report changes to the download list",
			Parameters:  filepath.Join(homeDir, "Downloads", "list.txt") + " | INITIAL | M:10",
			Action: config.Action{
				Command:        "echo {{event_type}} {{file_path}}",
				TimeoutSeconds: 60,
			},
		}},
	}

	data, err := yaml.Marshal(starter)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(*configPath), 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(*configPath, data, 0600); err != nil {
		return err
	}
	fmt.Printf("Created %s\n", *configPath)
	return nil
}

func cmdList(args []string) error {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	configPath := configFlag(fs)
	fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	if len(cfg.Triggers) == 0 {
		fmt.Println("No triggers configured")
		return nil
	}

	fmt.Printf("%-20s %-8s %-40s %s\n", "NAME", "ENABLED", "PARAMETERS", "DESCRIPTION")
	fmt.Println(strings.Repeat("-", 90))

	for _, tc := range cfg.Triggers {
		enabled := "yes"
		if !tc.IsEnabled() {
			enabled = "no"
		}
		params := tc.Parameters
		if len(params) > 40 {
			params = params[:37] + "..."
		}
		fmt.Printf("%-20s %-8s %-40s %s\n", tc.Name, enabled, params, tc.Description)
	}
	return nil
}

func cmdValidate(args []string) error {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	configPath := configFlag(fs)
	fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	known := make(map[string]bool, len(daemon.TemplateVars))
	for _, v := range daemon.TemplateVars {
		known[v] = true
	}

	for _, tc := range cfg.Triggers {
		fmt.Printf("%s:\n", tc.Name)
		if err := describe(tc.Parameters); err != nil {
			fmt.Printf("  warning: %v\n", err)
		}
		for _, v := range template.Vars(tc.Action.Command) {
			if !known[v] {
				fmt.Printf("  warning: unknown template variable {{%s}}\n", v)
			}
		}
	}

	fmt.Printf("Validated %d triggers\n", len(cfg.Triggers))
	return nil
}

func cmdParse(args []string) error {
	if len(args) < 1 {
		return errors.New("usage: fwtrigger parse <parameters>")
	}
	return describe(strings.Join(args, " "))
}

// describe prints the canonical form of params and the directories it
// currently resolves to.
func describe(params string) error {
	cfg, err := trigger.ParseParameters(params)
	if err != nil {
		return err
	}
	fmt.Printf("  parameters: %s\n", cfg)
	if cfg.Interval > 0 {
		fmt.Printf("  interval:   %s\n", cfg.Interval)
	}
	fmt.Printf("  initial:    %t\n", cfg.FireOnStartup)

	targets, err := trigger.Resolve(cfg)
	if err != nil {
		return err
	}
	for _, dir := range targets.Directories {
		fmt.Printf("  watching:   %s\n", filepath.Join(dir, cfg.FileName))
	}
	if !targets.Found {
		fmt.Println("  (file does not exist yet)")
	}
	return nil
}

// cliNode identifies an interactive watch as the trigger's controller.
type cliNode struct{}

func (cliNode) NodeID() string   { return fmt.Sprint(os.Getpid()) }
func (cliNode) NodeName() string { return "fwtrigger watch" }
func (cliNode) NodeType() string { return "CLI" }

func cmdWatch(args []string) error {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	level := fs.String("log-level", "warn", "log level")
	settle := fs.Duration("settle", trigger.DefaultSettleDelay, "debounce delay for change notifications")
	fs.Parse(args)

	if fs.NArg() < 1 {
		return errors.New("usage: fwtrigger watch [-log-level l] [-settle d] <parameters>")
	}

	w := trigger.New(
		trigger.WithLogger(logging.NewLogger("text", *level, os.Stderr)),
		trigger.WithSettleDelay(*settle),
	)
	controller := cliNode{}

	started, err := w.Start(controller, strings.Join(fs.Args(), " "), func(ev trigger.Event) {
		fmt.Printf("%s #%d %-12s %v\n", ev.Timestamp.Format(time.RFC3339), ev.Sequence, ev.Type, ev.Data["file_path"])
	})
	if err != nil {
		return err
	}
	if !started {
		return errors.New("watcher already running")
	}
	defer w.Stop(controller)

	info := w.Info()
	fmt.Printf("%s (next run: %s)\nPress Enter to stop.\n", info.NextRunInfo, info.NextRunTimestamp())

	done := make(chan struct{})
	go func() {
		bufio.NewReader(os.Stdin).ReadString('\n')
		close(done)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case <-done:
	case <-sigCh:
	}
	return nil
}

func cmdHistory(args []string) error {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	configPath := configFlag(fs)
	triggerName := fs.String("trigger", "", "only show fires of this trigger")
	stateFilter := fs.String("state", "", "only show fires in this state (fired, success, failure, timeout)")
	limit := fs.Int("n", 20, "number of fires to show")
	fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if !cfg.History.Enabled {
		return errors.New("history is disabled in the configuration")
	}

	db, err := state.Open(cfg.History.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	records, err := db.GetHistory(*triggerName, *stateFilter, *limit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("No fires recorded")
		return nil
	}

	fmt.Printf("%-20s %-16s %-5s %-13s %-8s %8s  %s\n", "FIRED", "TRIGGER", "SEQ", "EVENT", "STATE", "DURATION", "FILE")
	fmt.Println(strings.Repeat("-", 100))
	for _, r := range records {
		fmt.Printf("%-20s %-16s %-5d %-13s %-8s %7dms  %s\n",
			r.FiredAt.Local().Format("2006-01-02 15:04:05"), r.TriggerName, r.Sequence,
			r.EventType, r.State, r.DurationMs, r.FilePath)
		if r.Error != "" {
			fmt.Printf("    error: %s\n", r.Error)
		}
	}
	return nil
}
