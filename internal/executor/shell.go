// internal/executor/shell.go
package executor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"sort"
	"strings"
	"time"
)

// EnvPrefix prefixes the event variables exported to actions.
const EnvPrefix = "FWTRIGGER_"

// waitDelay bounds how long Execute waits for output pipes after the
// command is killed.
const waitDelay = 2 * time.Second

// Result represents the outcome of an action
type Result struct {
	State    string // success, failure, timeout
	Output   string
	Error    string
	ExitCode int
	Duration time.Duration
}

// BuildArgs returns the shell and its arguments for a command line.
func BuildArgs(command string) (string, []string) {
	if runtime.GOOS == "windows" {
		return "cmd", []string{"/C", command}
	}
	return "/bin/sh", []string{"-c", command}
}

// BuildEnv turns event data into FWTRIGGER_* variables, sorted by name.
// Keys are upper-cased: file_path becomes FWTRIGGER_FILE_PATH.
func BuildEnv(data map[string]any) []string {
	env := make([]string, 0, len(data))
	for k, v := range data {
		env = append(env, fmt.Sprintf("%s%s=%v", EnvPrefix, strings.ToUpper(k), v))
	}
	sort.Strings(env)
	return env
}

// Execute runs command through the shell with the given timeout. A
// non-zero exit is a failure result, not an error; err is only returned
// when the command could not be started.
func Execute(ctx context.Context, command string, timeout time.Duration, env []string, workDir string) (*Result, error) {
	if command == "" {
		return nil, errors.New("empty command")
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	shell, args := BuildArgs(command)
	cmd := exec.CommandContext(ctx, shell, args...)
	cmd.Env = append(os.Environ(), env...)
	cmd.WaitDelay = waitDelay
	if workDir != "" {
		cmd.Dir = workDir
	}

	start := time.Now()
	output, err := cmd.CombinedOutput()
	duration := time.Since(start)

	if err == nil {
		return &Result{
			State:    "success",
			Output:   string(output),
			Duration: duration,
		}, nil
	}

	// Check if it was a context cancellation (timeout)
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &Result{
			State:    "timeout",
			Error:    fmt.Sprintf("action timed out after %s", timeout),
			Output:   string(output),
			ExitCode: -1,
			Duration: duration,
		}, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return &Result{
			State:    "failure",
			Error:    err.Error(),
			Output:   string(output),
			ExitCode: exitErr.ExitCode(),
			Duration: duration,
		}, nil
	}

	return nil, fmt.Errorf("running action: %w", err)
}
