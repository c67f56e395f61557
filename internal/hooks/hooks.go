// Package hooks runs user-configured shell commands around attendance runs.
package hooks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sort"
	"strings"
)

// Lifecycle points.
const (
	BeforeRun       = "before_run"
	AfterRun        = "after_run"
	AfterAttendance = "after_attendance"
)

// HookConfig defines a single hook command.
type HookConfig struct {
	Command          string `yaml:"command" json:"command"`
	WorkingDirectory string `yaml:"working_directory,omitempty" json:"working_directory,omitempty"`
	ExitCodes        []int  `yaml:"exit_codes,omitempty" json:"exit_codes,omitempty"`
	ErrorOnFail      bool   `yaml:"error_on_fail,omitempty" json:"error_on_fail,omitempty"`
}

// HooksConfig holds all lifecycle hooks.
type HooksConfig struct {
	BeforeRun []HookConfig `yaml:"before_run,omitempty" json:"before_run,omitempty"`
	AfterRun  []HookConfig `yaml:"after_run,omitempty" json:"after_run,omitempty"`
	// AfterAttendance runs once per class recorded in the ledger.
	AfterAttendance []HookConfig `yaml:"after_attendance,omitempty" json:"after_attendance,omitempty"`
}

// Runner executes hook commands at lifecycle points.
type Runner struct {
	Verbose bool
}

// Execute runs hooks in order. env is added to the process environment of
// every command, as ATTEND_<KEY>=value.
func (r *Runner) Execute(ctx context.Context, name string, hooks []HookConfig, env map[string]string) error {
	for i, h := range hooks {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("hook %s: context canceled: %w", name, err)
		}
		if err := r.runHook(ctx, name, i, h, env); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) runHook(ctx context.Context, name string, index int, h HookConfig, env map[string]string) error {
	if strings.TrimSpace(h.Command) == "" {
		return fmt.Errorf("hook %s[%d]: empty command", name, index)
	}

	parts := strings.Fields(h.Command)
	//nolint:gosec // hook commands come from the user's own config file
	cmd := exec.CommandContext(ctx, parts[0], parts[1:]...)
	if h.WorkingDirectory != "" {
		cmd.Dir = h.WorkingDirectory
	}
	if len(env) > 0 {
		cmd.Env = append(os.Environ(), environ(env)...)
	}

	output, err := cmd.CombinedOutput()
	if r.Verbose && len(output) > 0 {
		slog.Info("Hook output", "hook", name, "index", index, "output", strings.TrimSpace(string(output)))
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code := exitErr.ExitCode()
			if !isAcceptableExit(code, h.ExitCodes) {
				if h.ErrorOnFail {
					return fmt.Errorf("hook %s[%d]: command exited with code %d", name, index, code)
				}
				slog.Warn("Hook exited with unexpected code, continuing", "hook", name, "index", index, "code", code)
			}
			return nil
		}
		if h.ErrorOnFail {
			return fmt.Errorf("hook %s[%d]: %w", name, index, err)
		}
		slog.Warn("Hook failed, continuing", "hook", name, "index", index, "error", err)
		return nil
	}

	if !isAcceptableExit(0, h.ExitCodes) {
		if h.ErrorOnFail {
			return fmt.Errorf("hook %s[%d]: command exited with code 0 but expected %v", name, index, h.ExitCodes)
		}
		slog.Warn("Hook exited with code 0 but other codes were expected", "hook", name, "index", index, "expected", h.ExitCodes)
	}
	return nil
}

func environ(env map[string]string) []string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, "ATTEND_"+strings.ToUpper(k)+"="+env[k])
	}
	return out
}

// isAcceptableExit reports whether exitCode is allowed. An empty list allows
// only 0.
func isAcceptableExit(exitCode int, allowedCodes []int) bool {
	if len(allowedCodes) == 0 {
		return exitCode == 0
	}
	for _, code := range allowedCodes {
		if exitCode == code {
			return true
		}
	}
	return false
}
