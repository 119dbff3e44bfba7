package process

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	goerrors "github.com/kbukum/medallion/errors"
)

// Resolve checks that cmd can be started: the binary is found (on PATH, or at
// its path relative to Dir) and every entry in Requires exists.
// It returns the resolved binary path, or a RESOLUTION_ERROR AppError.
func Resolve(cmd Command) (string, error) {
	if cmd.Binary == "" {
		return "", goerrors.ResolutionError("", fmt.Errorf("process: binary is required"))
	}

	var bin string
	if strings.ContainsRune(cmd.Binary, filepath.Separator) {
		bin = inDir(cmd.Dir, cmd.Binary)
		info, err := os.Stat(bin)
		if err != nil {
			return "", goerrors.ResolutionError(cmd.Binary, err)
		}
		if info.IsDir() || info.Mode()&0o111 == 0 {
			return "", goerrors.ResolutionError(cmd.Binary, fmt.Errorf("process: %s is not executable", bin))
		}
	} else {
		found, err := exec.LookPath(cmd.Binary)
		if err != nil {
			return "", goerrors.ResolutionError(cmd.Binary, err)
		}
		bin = found
	}

	for _, req := range cmd.Requires {
		if _, err := os.Stat(inDir(cmd.Dir, req)); err != nil {
			return "", goerrors.ResolutionError(req, err)
		}
	}

	return bin, nil
}

func inDir(dir, path string) string {
	if filepath.IsAbs(path) || dir == "" {
		return path
	}
	return filepath.Join(dir, path)
}
