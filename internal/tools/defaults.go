package tools

import "time"

// Options configures the standard adapter set
type Options struct {
	Root          string
	ConfineToRoot bool
	ShellTimeout  time.Duration
	ShellMaxBytes int
	WebTimeout    time.Duration
	UserAgent     string
	Renderer      Renderer
	Searcher      Searcher
}

// NewDefaultRegistry builds a registry holding all four adapter
// categories
func NewDefaultRegistry(opts Options) (*Registry, error) {
	root := opts.Root
	if root == "" {
		root = "."
	}
	files := NewFilesystemTool(root, opts.ConfineToRoot)

	shell := NewShellTool(files.Root)
	shell.Files = files
	if opts.ShellTimeout > 0 {
		shell.Timeout = opts.ShellTimeout
	}
	if opts.ShellMaxBytes > 0 {
		shell.MaxOutput = opts.ShellMaxBytes
	}

	web := NewWebTool(opts.Renderer)
	web.Searcher = opts.Searcher
	if opts.WebTimeout > 0 {
		web.Client.Timeout = opts.WebTimeout
	}
	if opts.UserAgent != "" {
		web.UserAgent = opts.UserAgent
	}

	return NewRegistry(files, NewSpreadsheetTool(files), web, shell)
}
