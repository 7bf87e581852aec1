// Package executor runs external programs with captured output, extra
// environment variables and context cancellation. The publish stage uses it
// to drive the npm client; a cancelled context kills the child process.
package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

// waitDelay bounds how long a killed command may keep its output pipes open
// through orphaned children.
const waitDelay = 5 * time.Second

// Result holds the output and exit status of one command execution.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Err      error
}

// Options configures command execution behavior.
type Options struct {
	// WorkingDir is the directory the command runs in; empty means the
	// current directory.
	WorkingDir string

	// Env holds variables appended to the current environment.
	Env map[string]string
}

// Option is a function that modifies Options.
type Option func(*Options)

// DefaultOptions runs in the current directory with the inherited
// environment.
func DefaultOptions() *Options {
	return &Options{
		Env: make(map[string]string),
	}
}

// CommandExecutor runs one program with fixed arguments.
type CommandExecutor struct {
	program string
	args    []string
	options *Options
}

// New creates a CommandExecutor for program and args.
func New(program string, args ...string) *CommandExecutor {
	return &CommandExecutor{
		program: program,
		args:    args,
		options: DefaultOptions(),
	}
}

// WrappedExecutor binds a program (and optional leading arguments) so that
// callers only supply the trailing arguments of each invocation.
type WrappedExecutor struct {
	program string
	prefix  []string
	options *Options
}

// NewWrappedExecutor creates an executor for a specific program. prefix
// arguments are placed before the per-call arguments.
func NewWrappedExecutor(program string, prefix ...string) *WrappedExecutor {
	return &WrappedExecutor{
		program: program,
		prefix:  prefix,
		options: DefaultOptions(),
	}
}

// Command creates a CommandExecutor for the wrapped program with args
// appended to the prefix.
func (w *WrappedExecutor) Command(args ...string) *CommandExecutor {
	all := make([]string, 0, len(w.prefix)+len(args))
	all = append(all, w.prefix...)
	all = append(all, args...)
	return &CommandExecutor{
		program: w.program,
		args:    all,
		options: w.options,
	}
}

// Execute runs the wrapped program with args.
func (w *WrappedExecutor) Execute(ctx context.Context, args []string, opts ...Option) (*Result, error) {
	result, err := w.Command(args...).Execute(ctx, opts...)
	if err != nil {
		return result, fmt.Errorf("failed to execute %s with args %v: %w", w.program, args, err)
	}
	return result, nil
}

// String renders the command line for logs.
func (c *CommandExecutor) String() string {
	return strings.TrimSpace(c.program + " " + strings.Join(c.args, " "))
}

// Execute runs the command to completion. A non-zero exit is returned as an
// error alongside a populated Result.
func (c *CommandExecutor) Execute(ctx context.Context, opts ...Option) (*Result, error) {
	options := c.mergeOptions(opts...)

	var stdoutBuf, stderrBuf bytes.Buffer
	cmd := exec.CommandContext(ctx, c.program, c.args...)
	cmd.WaitDelay = waitDelay
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf
	setupCommand(cmd, options)

	err := cmd.Run()
	result := createResult(&stdoutBuf, &stderrBuf, err)

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return result, fmt.Errorf("command %q interrupted: %w", c.program, ctxErr)
		}
		return result, fmt.Errorf("command execution failed: %w", err)
	}
	return result, nil
}

// setupCommand configures the working directory and environment.
func setupCommand(cmd *exec.Cmd, options *Options) {
	if options.WorkingDir != "" {
		cmd.Dir = options.WorkingDir
	}

	if len(options.Env) > 0 {
		cmd.Env = os.Environ()
		for k, v := range options.Env {
			cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
		}
	}
}

func createResult(stdoutBuf, stderrBuf *bytes.Buffer, err error) *Result {
	result := &Result{
		Stdout: stdoutBuf.String(),
		Stderr: stderrBuf.String(),
		Err:    err,
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		result.ExitCode = 0
	case errors.As(err, &exitErr):
		result.ExitCode = exitErr.ExitCode()
	default:
		result.ExitCode = -1
	}

	return result
}

func (c *CommandExecutor) mergeOptions(opts ...Option) *Options {
	merged := *c.options
	merged.Env = make(map[string]string, len(c.options.Env))
	for k, v := range c.options.Env {
		merged.Env[k] = v
	}

	for _, opt := range opts {
		opt(&merged)
	}

	return &merged
}

// WithWorkingDir sets the working directory.
func WithWorkingDir(dir string) Option {
	return func(o *Options) {
		o.WorkingDir = dir
	}
}

// WithEnv adds environment variables.
func WithEnv(env map[string]string) Option {
	return func(o *Options) {
		if o.Env == nil {
			o.Env = make(map[string]string)
		}
		for k, v := range env {
			o.Env[k] = v
		}
	}
}
