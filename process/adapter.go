package process

import (
	"context"
	"time"
)

// Config configures a process adapter.
type Config struct {
	// GracePeriod is the default grace period for SIGTERM→SIGKILL.
	GracePeriod time.Duration `yaml:"grace_period,omitempty" mapstructure:"grace_period"`
	// Timeout is the default execution timeout. Zero means no timeout.
	Timeout time.Duration `yaml:"timeout,omitempty" mapstructure:"timeout"`
}

// Adapter runs commands with adapter-level defaults applied.
type Adapter struct {
	config Config
}

// NewAdapter creates a new process adapter.
func NewAdapter(cfg Config) *Adapter {
	return &Adapter{config: cfg}
}

// Resolve checks that the command can be started. See Resolve.
func (a *Adapter) Resolve(cmd Command) (string, error) {
	return Resolve(cmd)
}

// Execute runs a command, applying adapter-level defaults.
// A deadline already on ctx that is earlier than the default timeout wins.
func (a *Adapter) Execute(ctx context.Context, cmd Command) (*Result, error) {
	if cmd.GracePeriod == 0 && a.config.GracePeriod > 0 {
		cmd.GracePeriod = a.config.GracePeriod
	}
	if a.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.config.Timeout)
		defer cancel()
	}
	return Run(ctx, cmd)
}
