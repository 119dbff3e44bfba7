package process

import (
	"io"
	"strings"
	"time"
)

// Command configures a subprocess to execute.
type Command struct {
	// Binary is the executable path or name (resolved via PATH).
	// A relative path containing a separator is evaluated relative to Dir.
	Binary string
	// Args are the command-line arguments.
	Args []string
	// Dir is the working directory. If empty, uses the current directory.
	Dir string
	// Env is additional environment variables (key=value). Merged with os.Environ.
	Env []string
	// Stdin provides input to the process. May be nil.
	Stdin io.Reader
	// Requires lists files that must exist before the command can run,
	// relative to Dir unless absolute. Typically the script an interpreter runs.
	Requires []string
	// GracePeriod is how long to wait after SIGTERM before SIGKILL.
	// Defaults to 5 seconds if zero.
	GracePeriod time.Duration
	// OutputLimit caps the bytes kept per output stream. Defaults to
	// DefaultOutputLimit.
	OutputLimit int
}

// String renders the command line for logs.
func (c Command) String() string {
	if len(c.Args) == 0 {
		return c.Binary
	}
	return c.Binary + " " + strings.Join(c.Args, " ")
}
