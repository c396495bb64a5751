package tools

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const (
	DefaultShellTimeout   = 30 * time.Second
	DefaultShellMaxOutput = 10 * 1024 * 1024

	shellWaitDelay = 500 * time.Millisecond
	maxErrorDetail = 500
)

// ShellTool runs commands through a shell. Every command is bounded by a
// wall-clock timeout and a per-stream output cap; hitting either, or
// exiting nonzero, yields a structured failure instead of an error.
// A relative cwd resolves against Dir, or through Files when set so the
// workspace confinement applies.
type ShellTool struct {
	Shell     string
	Dir       string
	Files     *FilesystemTool
	Timeout   time.Duration
	MaxOutput int
}

// ExecResult is the captured outcome of one command
type ExecResult struct {
	Stdout    string
	Stderr    string
	ExitCode  int
	TimedOut  bool
	Truncated bool
	Duration  time.Duration
	Err       error
}

// cappedBuffer keeps at most limit bytes and reports the first overflow
type cappedBuffer struct {
	mu         sync.Mutex
	buf        bytes.Buffer
	limit      int
	truncated  bool
	onOverflow func()
}

func NewShellTool(dir string) *ShellTool {
	shell := "bash"
	if _, err := exec.LookPath(shell); err != nil {
		shell = "sh"
	}
	return &ShellTool{
		Shell:     shell,
		Dir:       dir,
		Timeout:   DefaultShellTimeout,
		MaxOutput: DefaultShellMaxOutput,
	}
}

func (s *ShellTool) Name() Category {
	return Shell
}

func (s *ShellTool) Description() string {
	return "Execute shell commands with a bounded runtime and output size."
}

func (s *ShellTool) Operations() []Operation {
	return []Operation{
		{
			Name:        "execute_command",
			Description: "Run a command line through the system shell",
			Parameters: []Parameter{
				required("command", TypeString, "The shell command to execute"),
				optional("cwd", TypeString, "Working directory"),
				optional("env", TypeObject, "Extra environment variables"),
			},
			Run: s.execute,
		},
	}
}

func (s *ShellTool) execute(ctx context.Context, args Args) (Output, error) {
	command, err := args.String("command")
	if err != nil {
		return nil, err
	}
	cwd, err := args.OptString("cwd", "")
	if err != nil {
		return nil, err
	}
	dir, err := s.workdir(cwd)
	if err != nil {
		return nil, err
	}
	env, err := args.StringMap("env")
	if err != nil {
		return nil, err
	}

	res := s.Run(ctx, command, dir, env)
	out := Output{
		"success":   res.Err == nil,
		"command":   command,
		"cwd":       dir,
		"exitCode":  res.ExitCode,
		"stdout":    res.Stdout,
		"stderr":    res.Stderr,
		"timedOut":  res.TimedOut,
		"truncated": res.Truncated,
		"duration":  res.Duration.Milliseconds(),
	}
	if res.Err != nil {
		out["error"] = res.Err.Error()
	}
	return out, nil
}

func (s *ShellTool) workdir(cwd string) (string, error) {
	switch {
	case s.Files != nil && cwd != "":
		return s.Files.resolve(cwd)
	case cwd == "":
		return s.Dir, nil
	case filepath.IsAbs(cwd):
		return cwd, nil
	default:
		return filepath.Join(s.Dir, cwd), nil
	}
}

// Run executes a command and captures its outcome. It never returns a Go
// error: failures are described by the result's Err field.
func (s *ShellTool) Run(
	ctx context.Context, command, dir string, env map[string]string,
) *ExecResult {
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = DefaultShellTimeout
	}
	limit := s.MaxOutput
	if limit <= 0 {
		limit = DefaultShellMaxOutput
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	stdout := &cappedBuffer{limit: limit, onOverflow: cancel}
	stderr := &cappedBuffer{limit: limit, onOverflow: cancel}

	cmd := exec.CommandContext(ctx, s.Shell, "-c", command)
	cmd.Dir = dir
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = shellWaitDelay
	if len(env) > 0 {
		cmd.Env = os.Environ()
		for k, v := range env {
			cmd.Env = append(cmd.Env, k+"="+v)
		}
	}
	killProcessGroup(cmd)

	start := time.Now()
	runErr := cmd.Run()
	res := &ExecResult{
		Stdout:    stdout.String(),
		Stderr:    stderr.String(),
		ExitCode:  -1,
		Duration:  time.Since(start),
		Truncated: stdout.overflowed() || stderr.overflowed(),
		TimedOut:  errors.Is(ctx.Err(), context.DeadlineExceeded),
	}
	if cmd.ProcessState != nil {
		res.ExitCode = cmd.ProcessState.ExitCode()
	}

	switch {
	case res.TimedOut:
		res.Err = fmt.Errorf("command timed out after %s", timeout)
	case res.Truncated:
		res.Err = fmt.Errorf("command output exceeded %d bytes", limit)
	case runErr != nil && res.ExitCode > 0:
		res.Err = fmt.Errorf("command exited with code %d%s",
			res.ExitCode, detail(res.Stderr))
	case runErr != nil:
		res.Err = fmt.Errorf("command failed: %w", runErr)
	}
	if res.Err != nil && res.ExitCode == 0 {
		res.ExitCode = -1
	}
	return res
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	room := b.limit - b.buf.Len()
	if len(p) <= room {
		return b.buf.Write(p)
	}
	if room > 0 {
		b.buf.Write(p[:room])
	}
	if !b.truncated {
		b.truncated = true
		if b.onOverflow != nil {
			b.onOverflow()
		}
	}
	// report the whole write as consumed so the copier keeps draining
	return len(p), nil
}

func (b *cappedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func (b *cappedBuffer) overflowed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.truncated
}

func detail(stderr string) string {
	s := strings.TrimSpace(stderr)
	if s == "" {
		return ""
	}
	if len(s) > maxErrorDetail {
		s = s[:maxErrorDetail] + "..."
	}
	return ": " + s
}
