// Package hooks runs user commands when the listener refreshes a page
// element, so a terminal or kiosk can react to dashboard changes.
package hooks

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"
)

// Default and max timeout for hook commands.
const (
	DefaultTimeout = 30 * time.Second
	MaxTimeout     = 300 * time.Second
)

// maxOutput bounds the output kept from a single hook run.
const maxOutput = 16 << 10

// Result describes one hook run. Output is stdout, or stderr when stdout is
// empty, trimmed and truncated. ExitCode is -1 when the command did not exit
// on its own (start failure, timeout, cancellation).
type Result struct {
	Output   string
	ExitCode int
	Duration time.Duration
	Err      error
}

// EffectiveTimeout is the timeout Execute applies for a requested one.
func EffectiveTimeout(timeout time.Duration) time.Duration {
	if timeout <= 0 {
		return DefaultTimeout
	}
	return min(timeout, MaxTimeout)
}

// Execute runs command through "sh -c" with a timeout clamped to
// (0, MaxTimeout]. cwd is used when it names an existing directory; env is
// added on top of the process environment.
func Execute(ctx context.Context, command string, timeout time.Duration, cwd string, env map[string]string) Result {
	timeout = EffectiveTimeout(timeout)

	hookCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(hookCtx, "sh", "-c", command) //nolint:gosec // hook commands come from the operator's own flags
	cmd.WaitDelay = time.Second
	if info, err := os.Stat(cwd); cwd != "" && err == nil && info.IsDir() {
		cmd.Dir = cwd
	}
	cmd.Env = append(os.Environ(), envList(env)...)

	var stdout, stderr cappedBuffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	res := Result{Duration: time.Since(start), ExitCode: -1, Err: err}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		res.ExitCode = 0
	case hookCtx.Err() != nil:
		res.Err = hookCtx.Err()
	case errors.As(err, &exitErr) && exitErr.ExitCode() >= 0:
		res.ExitCode = exitErr.ExitCode()
	}

	res.Output = strings.TrimSpace(stdout.String())
	if res.Output == "" {
		res.Output = strings.TrimSpace(stderr.String())
	}
	return res
}

// envList renders env as KEY=value pairs in key order.
func envList(env map[string]string) []string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = k + "=" + env[k]
	}
	return out
}

// cappedBuffer keeps the first maxOutput bytes written and discards the rest.
type cappedBuffer struct {
	bytes.Buffer
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	if room := maxOutput - b.Len(); room > 0 {
		b.Buffer.Write(p[:min(len(p), room)])
	}
	return len(p), nil
}
