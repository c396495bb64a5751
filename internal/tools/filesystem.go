package tools

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// FilesystemTool works on the local filesystem. Relative paths resolve
// against Root; when Confine is set, paths outside Root are refused.
type FilesystemTool struct {
	Root    string
	Confine bool
}

func NewFilesystemTool(root string, confine bool) *FilesystemTool {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		absRoot = root
	}
	return &FilesystemTool{Root: absRoot, Confine: confine}
}

func (f *FilesystemTool) Name() Category {
	return Filesystem
}

func (f *FilesystemTool) Description() string {
	return "Manage local files: list, read, write, rename, delete, copy, check existence and inspect metadata."
}

func (f *FilesystemTool) Operations() []Operation {
	return []Operation{
		{
			Name:        "list_files",
			Description: "List the entries of a directory",
			Parameters: []Parameter{
				required("path", TypeString, "Directory to list"),
				optional("pattern", TypeString, "Glob matched against entry names, e.g. *.pdf"),
				optional("recursive", TypeBoolean, "Descend into subdirectories"),
			},
			Run: f.list,
		},
		{
			Name:        "read_file",
			Description: "Read a text file",
			Parameters: []Parameter{
				required("path", TypeString, "File to read"),
			},
			Run: f.read,
		},
		{
			Name:        "write_file",
			Description: "Write a file, creating missing parent directories",
			Parameters: []Parameter{
				required("path", TypeString, "File to write"),
				required("content", TypeAny, "Text to write; objects are written as JSON"),
				optional("append", TypeBoolean, "Append instead of overwriting"),
			},
			Run: f.write,
		},
		{
			Name:        "rename_file",
			Description: "Rename or move a file, creating missing parent directories",
			Parameters: []Parameter{
				required("oldPath", TypeString, "Current path"),
				required("newPath", TypeString, "New path"),
			},
			Run: f.rename,
		},
		{
			Name:        "delete_file",
			Description: "Delete a file or directory",
			Parameters: []Parameter{
				required("path", TypeString, "Path to delete"),
				optional("recursive", TypeBoolean, "Delete non-empty directories"),
			},
			Run: f.delete,
		},
		{
			Name:        "file_exists",
			Description: "Check whether a path exists",
			Parameters: []Parameter{
				required("path", TypeString, "Path to check"),
			},
			Run: f.exists,
		},
		{
			Name:        "copy_file",
			Description: "Copy a file, creating missing parent directories",
			Parameters: []Parameter{
				required("source", TypeString, "File to copy"),
				required("destination", TypeString, "Target path"),
			},
			Run: f.copy,
		},
		{
			Name:        "get_file_info",
			Description: "Return size, type and modification time of a path",
			Parameters: []Parameter{
				required("path", TypeString, "Path to inspect"),
			},
			Run: f.stat,
		},
	}
}

func (f *FilesystemTool) list(_ context.Context, args Args) (Output, error) {
	dir, err := f.pathArg(args, "path")
	if err != nil {
		return nil, err
	}
	pattern, err := args.OptString("pattern", "")
	if err != nil {
		return nil, err
	}
	recursive, err := args.OptBool("recursive", false)
	if err != nil {
		return nil, err
	}
	if pattern != "" {
		if _, err := filepath.Match(pattern, ""); err != nil {
			return nil, validationError("%w: pattern: %v", ErrInvalidParameter, err)
		}
	}

	files := []map[string]any{}
	add := func(path string, d fs.DirEntry) {
		if pattern != "" {
			if ok, _ := filepath.Match(pattern, d.Name()); !ok {
				return
			}
		}
		entry := map[string]any{
			"name":        d.Name(),
			"path":        path,
			"isDirectory": d.IsDir(),
		}
		if info, err := d.Info(); err == nil {
			entry["size"] = info.Size()
			entry["modified"] = info.ModTime().UTC().Format(time.RFC3339)
		}
		files = append(files, entry)
	}

	if recursive {
		err = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if p != dir {
				add(p, d)
			}
			return nil
		})
	} else {
		var entries []os.DirEntry
		entries, err = os.ReadDir(dir)
		for _, e := range entries {
			add(filepath.Join(dir, e.Name()), e)
		}
	}
	if err != nil {
		return nil, executionError("failed to list directory: %w", err)
	}

	return succeed(Output{
		"path":  dir,
		"files": files,
		"count": len(files),
	}), nil
}

func (f *FilesystemTool) read(_ context.Context, args Args) (Output, error) {
	path, err := f.pathArg(args, "path")
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, executionError("failed to read file: %w", err)
	}
	return succeed(Output{
		"path":    path,
		"content": string(data),
		"size":    len(data),
	}), nil
}

func (f *FilesystemTool) write(_ context.Context, args Args) (Output, error) {
	path, err := f.pathArg(args, "path")
	if err != nil {
		return nil, err
	}
	if !args.Has("content") {
		return nil, validationError("%w: content", ErrMissingParameter)
	}
	content, err := contentBytes(args["content"])
	if err != nil {
		return nil, err
	}
	appendMode, err := args.OptBool("append", false)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, executionError("failed to create directory: %w", err)
	}
	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if appendMode {
		flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
	}
	file, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		return nil, executionError("failed to write file: %w", err)
	}
	if _, err := file.Write(content); err != nil {
		_ = file.Close()
		return nil, executionError("failed to write file: %w", err)
	}
	if err := file.Close(); err != nil {
		return nil, executionError("failed to write file: %w", err)
	}

	return succeed(Output{
		"path":         path,
		"bytesWritten": len(content),
		"appended":     appendMode,
	}), nil
}

func (f *FilesystemTool) rename(_ context.Context, args Args) (Output, error) {
	oldPath, err := f.pathArg(args, "oldPath")
	if err != nil {
		return nil, err
	}
	newPath, err := f.pathArg(args, "newPath")
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(oldPath); err != nil {
		return nil, executionError("failed to rename: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(newPath), 0755); err != nil {
		return nil, executionError("failed to create directory: %w", err)
	}
	if err := os.Rename(oldPath, newPath); err != nil {
		return nil, executionError("failed to rename: %w", err)
	}
	return succeed(Output{
		"oldPath": oldPath,
		"newPath": newPath,
	}), nil
}

func (f *FilesystemTool) delete(_ context.Context, args Args) (Output, error) {
	path, err := f.pathArg(args, "path")
	if err != nil {
		return nil, err
	}
	recursive, err := args.OptBool("recursive", false)
	if err != nil {
		return nil, err
	}
	if _, err := os.Lstat(path); err != nil {
		return nil, executionError("failed to delete: %w", err)
	}
	if recursive {
		err = os.RemoveAll(path)
	} else {
		err = os.Remove(path)
	}
	if err != nil {
		return nil, executionError("failed to delete: %w", err)
	}
	return succeed(Output{"path": path, "deleted": true}), nil
}

func (f *FilesystemTool) exists(_ context.Context, args Args) (Output, error) {
	path, err := f.pathArg(args, "path")
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return succeed(Output{
			"path":        path,
			"exists":      false,
			"isFile":      false,
			"isDirectory": false,
		}), nil
	case err != nil:
		return nil, executionError("failed to check path: %w", err)
	}
	return succeed(Output{
		"path":        path,
		"exists":      true,
		"isFile":      info.Mode().IsRegular(),
		"isDirectory": info.IsDir(),
	}), nil
}

func (f *FilesystemTool) copy(_ context.Context, args Args) (Output, error) {
	src, err := f.pathArg(args, "source")
	if err != nil {
		return nil, err
	}
	dst, err := f.pathArg(args, "destination")
	if err != nil {
		return nil, err
	}

	in, err := os.Open(src)
	if err != nil {
		return nil, executionError("failed to copy: %w", err)
	}
	defer in.Close()
	info, err := in.Stat()
	if err != nil {
		return nil, executionError("failed to copy: %w", err)
	}
	if info.IsDir() {
		return nil, executionError("failed to copy: %s is a directory", src)
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return nil, executionError("failed to create directory: %w", err)
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return nil, executionError("failed to copy: %w", err)
	}
	n, err := io.Copy(out, in)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, executionError("failed to copy: %w", err)
	}

	return succeed(Output{
		"source":      src,
		"destination": dst,
		"bytesCopied": n,
	}), nil
}

func (f *FilesystemTool) stat(_ context.Context, args Args) (Output, error) {
	path, err := f.pathArg(args, "path")
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, executionError("failed to stat: %w", err)
	}
	return succeed(Output{
		"path":        path,
		"name":        info.Name(),
		"size":        info.Size(),
		"isFile":      info.Mode().IsRegular(),
		"isDirectory": info.IsDir(),
		"mode":        info.Mode().String(),
		"extension":   filepath.Ext(info.Name()),
		"modified":    info.ModTime().UTC().Format(time.RFC3339),
	}), nil
}

// pathArg reads a path parameter and resolves it against the root
func (f *FilesystemTool) pathArg(args Args, key string) (string, error) {
	p, err := args.String(key)
	if err != nil {
		return "", err
	}
	return f.resolve(p)
}

func (f *FilesystemTool) resolve(p string) (string, error) {
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			p = filepath.Join(home, p[1:])
		}
	}
	if !filepath.IsAbs(p) {
		p = filepath.Join(f.Root, p)
	}
	p = filepath.Clean(p)

	if f.Confine {
		rel, err := filepath.Rel(f.Root, p)
		if err != nil || rel == ".." ||
			strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return "", validationError(
				"%w: path escapes workspace: %s", ErrInvalidParameter, p,
			)
		}
	}
	return p, nil
}

func contentBytes(v any) ([]byte, error) {
	switch c := v.(type) {
	case string:
		return []byte(c), nil
	case []byte:
		return c, nil
	default:
		data, err := json.MarshalIndent(c, "", "  ")
		if err != nil {
			return nil, validationError("%w: content: %v", ErrInvalidParameter, err)
		}
		return data, nil
	}
}
