package installer

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-cmd/cmd"
)

// ShellResult is the outcome of one privileged command
type ShellResult struct {
	Success bool
	Exit    int
	Out     []string
	Err     []string
}

// Shell runs commands with root privileges
type Shell interface {
	RunAsRoot(ctx context.Context, command string) (ShellResult, error)
}

// SuShell runs each command through `su -c`
type SuShell struct {
	Binary string
}

func NewSuShell(binary string) *SuShell {
	if binary == "" {
		binary = "su"
	}
	return &SuShell{Binary: binary}
}

// RunAsRoot returns an error only when the command could not be run at all;
// a non-zero exit is reported through ShellResult.Success.
func (s *SuShell) RunAsRoot(ctx context.Context, command string) (ShellResult, error) {
	c := cmd.NewCmd(s.Binary, "-c", command)
	statusChan := c.Start()

	var status cmd.Status
	select {
	case status = <-statusChan:
	case <-ctx.Done():
		_ = c.Stop()
		<-statusChan
		return ShellResult{}, ctx.Err()
	}

	if status.Error != nil {
		return ShellResult{}, fmt.Errorf("failed to run %s: %w", s.Binary, status.Error)
	}
	return ShellResult{
		Success: status.Exit == 0,
		Exit:    status.Exit,
		Out:     status.Stdout,
		Err:     status.Stderr,
	}, nil
}

// firstLine returns the first non-empty output line, trimmed
func firstLine(out []string) string {
	for _, line := range out {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return ""
}
