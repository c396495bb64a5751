package tools_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gnan1985/You-Only-Do-Once/internal/tools"
)

func fsRegistry(t *testing.T, confine bool) (*tools.Registry, string) {
	t.Helper()
	root := t.TempDir()
	reg, err := tools.NewDefaultRegistry(tools.Options{
		Root:          root,
		ConfineToRoot: confine,
	})
	require.NoError(t, err)
	return reg, root
}

func call(
	t *testing.T, reg *tools.Registry, tool, action string, params map[string]any,
) tools.Output {
	t.Helper()
	out := reg.Call(context.Background(), tool, action, params)
	require.NoError(t, out.Err)
	return out.Output
}

func TestWriteAndReadFile(t *testing.T) {
	reg, root := fsRegistry(t, false)

	out := call(t, reg, "filesystem", "write_file", map[string]any{
		"path":    "nested/dir/note.txt",
		"content": "hello",
	})
	assert.Equal(t, 5, out["bytesWritten"])
	assert.FileExists(t, filepath.Join(root, "nested", "dir", "note.txt"))

	call(t, reg, "filesystem", "write_file", map[string]any{
		"path":    "nested/dir/note.txt",
		"content": " world",
		"append":  true,
	})

	out = call(t, reg, "file", "read_file", map[string]any{
		"path": "nested/dir/note.txt",
	})
	assert.Equal(t, "hello world", out["content"])
}

func TestWriteFileObjectContent(t *testing.T) {
	reg, root := fsRegistry(t, false)

	call(t, reg, "filesystem", "write_file", map[string]any{
		"path":    "data.json",
		"content": map[string]any{"a": 1.0},
	})
	data, err := os.ReadFile(filepath.Join(root, "data.json"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(data))
}

func TestListFiles(t *testing.T) {
	reg, root := fsRegistry(t, false)
	for _, name := range []string{"a.pdf", "b.pdf", "c.txt", "sub/d.pdf"} {
		p := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
		require.NoError(t, os.WriteFile(p, []byte("x"), 0644))
	}

	out := call(t, reg, "filesystem", "list_files", map[string]any{
		"path": ".", "pattern": "*.pdf",
	})
	assert.Equal(t, 2, out["count"])

	out = call(t, reg, "filesystem", "list_files", map[string]any{
		"path": ".", "pattern": "*.pdf", "recursive": "true",
	})
	assert.Equal(t, 3, out["count"])

	res := reg.Call(context.Background(), "filesystem", "list_files",
		map[string]any{"path": "missing"},
	)
	assert.Equal(t, tools.KindExecution, tools.KindOf(res.Err))
}

func TestRenameCopyDelete(t *testing.T) {
	reg, root := fsRegistry(t, false)
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("abc"), 0644))

	call(t, reg, "filesystem", "rename_file", map[string]any{
		"oldPath": "a.txt", "newPath": "moved/b.txt",
	})
	assert.NoFileExists(t, filepath.Join(root, "a.txt"))
	assert.FileExists(t, filepath.Join(root, "moved", "b.txt"))

	out := call(t, reg, "filesystem", "copy_file", map[string]any{
		"source": "moved/b.txt", "destination": "copies/c.txt",
	})
	assert.Equal(t, int64(3), out["bytesCopied"])
	assert.FileExists(t, filepath.Join(root, "copies", "c.txt"))

	call(t, reg, "filesystem", "delete_file", map[string]any{"path": "copies/c.txt"})
	assert.NoFileExists(t, filepath.Join(root, "copies", "c.txt"))

	res := reg.Call(context.Background(), "filesystem", "delete_file",
		map[string]any{"path": "moved"},
	)
	assert.Error(t, res.Err)

	call(t, reg, "filesystem", "delete_file", map[string]any{
		"path": "moved", "recursive": true,
	})
	assert.NoDirExists(t, filepath.Join(root, "moved"))
}

func TestRenameMissingSource(t *testing.T) {
	reg, _ := fsRegistry(t, false)

	res := reg.Call(context.Background(), "filesystem", "rename_file",
		map[string]any{"oldPath": "nope.txt", "newPath": "b.txt"},
	)
	require.Error(t, res.Err)
	assert.Equal(t, tools.KindExecution, tools.KindOf(res.Err))

	res = reg.Call(context.Background(), "filesystem", "rename_file",
		map[string]any{"oldPath": "nope.txt"},
	)
	assert.Equal(t, tools.KindValidation, tools.KindOf(res.Err))
}

func TestFileExistsAndInfo(t *testing.T) {
	reg, root := fsRegistry(t, false)
	require.NoError(t, os.WriteFile(filepath.Join(root, "r.md"), []byte("1234"), 0644))

	out := call(t, reg, "filesystem", "file_exists", map[string]any{"path": "r.md"})
	assert.Equal(t, true, out["exists"])
	assert.Equal(t, true, out["isFile"])

	out = call(t, reg, "filesystem", "file_exists", map[string]any{"path": "none"})
	assert.Equal(t, false, out["exists"])
	assert.Equal(t, true, out["success"])

	out = call(t, reg, "filesystem", "get_file_info", map[string]any{"path": "r.md"})
	assert.Equal(t, int64(4), out["size"])
	assert.Equal(t, ".md", out["extension"])
	assert.Equal(t, false, out["isDirectory"])
}

func TestConfinedRoot(t *testing.T) {
	reg, _ := fsRegistry(t, true)

	res := reg.Call(context.Background(), "filesystem", "read_file",
		map[string]any{"path": "../outside.txt"},
	)
	require.Error(t, res.Err)
	assert.Equal(t, tools.KindValidation, tools.KindOf(res.Err))

	res = reg.Call(context.Background(), "filesystem", "write_file",
		map[string]any{"path": "inside.txt", "content": ""},
	)
	assert.NoError(t, res.Err)
}
