// Package builder drives RIOT's make based build for generated applications.
package builder

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/Norgate-AV/riotam/internal/codes"
)

// Commander interface for testing
type Commander interface {
	CombinedOutput() ([]byte, error)
}

// CommandBuilder handles building and running make commands
type CommandBuilder struct {
	makePath    string
	timeout     time.Duration
	execCommand func(ctx context.Context, name string, args ...string) Commander
}

// NewCommandBuilder creates a new command builder running makePath.
// A zero timeout leaves make runs unbounded.
func NewCommandBuilder(makePath string, timeout time.Duration) *CommandBuilder {
	if makePath == "" {
		makePath = "make"
	}

	return &CommandBuilder{
		makePath: makePath,
		timeout:  timeout,
		execCommand: func(ctx context.Context, name string, args ...string) Commander {
			return exec.CommandContext(ctx, name, args...)
		},
	}
}

// BuildCommandArgs builds the make arguments for building the application
// in dir for board. Empty bindirbase or elffile leave RIOT's defaults.
func (cb *CommandBuilder) BuildCommandArgs(dir, board, bindirbase, elffile string) ([]string, error) {
	if dir == "" {
		return nil, fmt.Errorf("application directory not specified")
	}

	if board == "" {
		return nil, fmt.Errorf("board not specified")
	}

	cmdArgs := []string{"--directory=" + dir, "BOARD=" + board}

	if bindirbase != "" {
		cmdArgs = append(cmdArgs, "BINDIRBASE="+bindirbase)
	}

	if elffile != "" {
		cmdArgs = append(cmdArgs, "ELFFILE="+elffile)
	}

	return cmdArgs, nil
}

// Execute runs make with cmdArgs and returns its combined stdout and stderr.
// The output is returned even when make fails.
func (cb *CommandBuilder) Execute(ctx context.Context, cmdArgs []string) (string, error) {
	if cb.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cb.timeout)
		defer cancel()
	}

	out, err := cb.execCommand(ctx, cb.makePath, cmdArgs...).CombinedOutput()
	if err != nil {
		if ctx.Err() != nil {
			return string(out), fmt.Errorf("make interrupted: %w", ctx.Err())
		}

		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && !codes.IsSuccess(exitErr.ExitCode()) {
			return string(out), fmt.Errorf("make failed (exit code %d): %s: %w",
				exitErr.ExitCode(), codes.GetErrorMessage(exitErr.ExitCode()), err)
		}

		return string(out), fmt.Errorf("failed to run make: %w", err)
	}

	return string(out), nil
}

// SupportedBoards asks RIOT which boards the application in appDir can be
// built for
func (cb *CommandBuilder) SupportedBoards(ctx context.Context, appDir string) ([]string, error) {
	out, err := cb.Execute(ctx, []string{"--no-print-directory", "-C", appDir, "info-boards-supported"})
	if err != nil {
		return nil, err
	}

	return strings.Fields(out), nil
}

// CommandLine renders the command for logging
func (cb *CommandBuilder) CommandLine(cmdArgs []string) string {
	return cb.makePath + " " + strings.Join(cmdArgs, " ")
}
