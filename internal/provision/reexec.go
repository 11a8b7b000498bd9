package provision

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
)

// ExitError carries the exit status of a re-executed binary.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("provisioned binary exited with status %d", e.Code)
}

// Reexec runs bin with args, wiring the given streams, and maps a non-zero
// exit into *ExitError.
func Reexec(ctx context.Context, bin string, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Stdin = stdin
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	err := cmd.Run()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return &ExitError{Code: exitErr.ExitCode()}
	}
	if err != nil {
		return fmt.Errorf("provision: running %s: %w", bin, err)
	}
	return nil
}
