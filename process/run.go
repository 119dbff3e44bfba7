package process

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"
)

// DefaultOutputLimit is how many trailing bytes of each stream a Result keeps.
const DefaultOutputLimit = 1 << 20

const defaultGracePeriod = 5 * time.Second

// Run executes one attempt of a task in its own process group and waits for
// it. When ctx ends the group gets SIGTERM, and whatever is still alive after
// GracePeriod gets SIGKILL. Stdout and stderr keep their last OutputLimit bytes.
func Run(ctx context.Context, cmd Command) (*Result, error) {
	if cmd.Binary == "" {
		return nil, fmt.Errorf("process: binary is required")
	}

	limit := cmd.OutputLimit
	if limit <= 0 {
		limit = DefaultOutputLimit
	}
	stdout, stderr := &tailBuffer{limit: limit}, &tailBuffer{limit: limit}

	c := cmd.build(ctx)
	c.Stdout = stdout
	c.Stderr = stderr

	start := time.Now()
	err := c.Run()
	result := &Result{
		Stdout:   stdout.buf,
		Stderr:   stderr.buf,
		ExitCode: -1,
		Duration: time.Since(start),
	}
	if c.ProcessState == nil {
		return result, fmt.Errorf("process: start %s: %w", cmd.Binary, err)
	}
	result.ExitCode = c.ProcessState.ExitCode()

	switch {
	case err == nil:
		return result, nil
	case ctx.Err() != nil:
		// Children that ignored SIGTERM outlive the group leader.
		_ = syscall.Kill(-c.Process.Pid, syscall.SIGKILL)
		return result, fmt.Errorf("process: %s killed: %w", cmd.Binary, ctx.Err())
	default:
		return result, fmt.Errorf("process: %s exited with code %d: %w", cmd.Binary, result.ExitCode, err)
	}
}

func (cmd Command) build(ctx context.Context) *exec.Cmd {
	c := exec.CommandContext(ctx, cmd.Binary, cmd.Args...) //nolint:gosec // running configured tasks is the purpose of this package
	c.Dir = cmd.Dir
	c.Env = mergeEnv(cmd.Env)
	if cmd.Stdin != nil {
		c.Stdin = cmd.Stdin
	}
	c.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	c.Cancel = func() error {
		return syscall.Kill(-c.Process.Pid, syscall.SIGTERM)
	}
	c.WaitDelay = cmd.GracePeriod
	if c.WaitDelay <= 0 {
		c.WaitDelay = defaultGracePeriod
	}
	return c
}

// mergeEnv appends extra KEY=VALUE pairs to the inherited environment.
func mergeEnv(extra []string) []string {
	if len(extra) == 0 {
		return nil
	}
	return append(os.Environ(), extra...)
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	limit int
	buf   []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	n := len(p)
	if n >= t.limit {
		t.buf = append(t.buf[:0], p[n-t.limit:]...)
		return n, nil
	}
	if over := len(t.buf) + n - t.limit; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	t.buf = append(t.buf, p...)
	return n, nil
}
