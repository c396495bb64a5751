//go:build unix

package tools_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gnan1985/You-Only-Do-Once/internal/tools"
)

func TestShellSuccess(t *testing.T) {
	sh := tools.NewShellTool(t.TempDir())

	res := sh.Run(context.Background(), "echo hello; echo oops >&2", "", nil)
	require.NoError(t, res.Err)
	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, "hello\n", res.Stdout)
	assert.Equal(t, "oops\n", res.Stderr)
	assert.False(t, res.TimedOut)
}

func TestShellNonZeroExit(t *testing.T) {
	sh := tools.NewShellTool(t.TempDir())

	res := sh.Run(context.Background(), "echo bad >&2; exit 3", "", nil)
	require.Error(t, res.Err)
	assert.Equal(t, 3, res.ExitCode)
	assert.Contains(t, res.Err.Error(), "exited with code 3")
	assert.Contains(t, res.Err.Error(), "bad")
}

func TestShellTimeoutKeepsPartialOutput(t *testing.T) {
	sh := tools.NewShellTool(t.TempDir())
	sh.Timeout = 300 * time.Millisecond

	start := time.Now()
	res := sh.Run(context.Background(), "echo started; sleep 10", "", nil)
	assert.Less(t, time.Since(start), 5*time.Second)

	require.Error(t, res.Err)
	assert.True(t, res.TimedOut)
	assert.Equal(t, -1, res.ExitCode)
	assert.Equal(t, "started\n", res.Stdout)
	assert.Contains(t, res.Err.Error(), "timed out")
}

func TestShellBackgroundChildDoesNotHang(t *testing.T) {
	sh := tools.NewShellTool(t.TempDir())
	sh.Timeout = 300 * time.Millisecond

	start := time.Now()
	res := sh.Run(context.Background(), "sleep 10 & sleep 10", "", nil)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.True(t, res.TimedOut)
}

func TestShellOutputCap(t *testing.T) {
	sh := tools.NewShellTool(t.TempDir())
	sh.MaxOutput = 1024

	res := sh.Run(context.Background(), "yes", "", nil)
	require.Error(t, res.Err)
	assert.True(t, res.Truncated)
	assert.Len(t, res.Stdout, 1024)
	assert.Contains(t, res.Err.Error(), "exceeded 1024 bytes")
}

func TestShellCwdAndEnv(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "sub")
	require.NoError(t, os.Mkdir(sub, 0755))

	reg, err := tools.NewDefaultRegistry(tools.Options{Root: dir})
	require.NoError(t, err)

	out := reg.Call(context.Background(), "bash", "execute_command", map[string]any{
		"command": "pwd -P; echo $GREETING",
		"cwd":     sub,
		"env":     map[string]any{"GREETING": "hi"},
	})
	require.NoError(t, out.Err)

	real, err := filepath.EvalSymlinks(sub)
	require.NoError(t, err)
	assert.Contains(t, out.Output["stdout"], real)
	assert.Contains(t, out.Output["stdout"], "hi")
	assert.Equal(t, 0, out.Output["exitCode"])
}

func TestShellFailureThroughRegistry(t *testing.T) {
	reg, err := tools.NewDefaultRegistry(tools.Options{Root: t.TempDir()})
	require.NoError(t, err)

	out := reg.Call(context.Background(), "shell", "execute_command",
		map[string]any{"command": "exit 7"},
	)
	require.Error(t, out.Err)
	assert.Equal(t, tools.KindExecution, tools.KindOf(out.Err))
	assert.Equal(t, 7, out.Output["exitCode"])
	assert.Equal(t, false, out.Output["success"])
}

func TestShellRelativeCwdUsesWorkspace(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "data", "in"), 0755))

	reg, err := tools.NewDefaultRegistry(tools.Options{Root: dir})
	require.NoError(t, err)

	out := reg.Call(context.Background(), "shell", "execute_command", map[string]any{
		"command": "pwd -P",
		"cwd":     "data/in",
	})
	require.NoError(t, out.Err)

	want, err := filepath.EvalSymlinks(filepath.Join(dir, "data", "in"))
	require.NoError(t, err)
	assert.Equal(t, want+"\n", out.Output["stdout"])
}

func TestShellConfinedCwd(t *testing.T) {
	reg, err := tools.NewDefaultRegistry(tools.Options{
		Root:          t.TempDir(),
		ConfineToRoot: true,
	})
	require.NoError(t, err)

	out := reg.Call(context.Background(), "shell", "execute_command", map[string]any{
		"command": "pwd",
		"cwd":     "../..",
	})
	require.Error(t, out.Err)
	assert.Equal(t, tools.KindValidation, tools.KindOf(out.Err))
}
