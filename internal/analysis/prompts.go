package analysis

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"
)

//go:embed prompts/*.md
var defaultPrompts embed.FS

// PromptManager assembles the system prompt from the .md files of a
// directory. Without a directory the built-in prompts are used.
type PromptManager struct {
	Directory string
}

var promptOrder = map[string]int{
	"identity.md": 1,
	"rules.md":    2,
	"examples.md": 3,
	"user.md":     4,
}

func NewPromptManager(dir string) *PromptManager {
	return &PromptManager{Directory: dir}
}

// SystemPrompt joins the prompt files in a fixed order (known names first,
// then the rest alphabetically) and appends the tool catalog
func (pm *PromptManager) SystemPrompt(catalog string) (string, error) {
	fsys, err := pm.source()
	if err != nil {
		return "", err
	}
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return "", fmt.Errorf("failed to read prompts directory: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		oi, okI := promptOrder[entries[i].Name()]
		oj, okJ := promptOrder[entries[j].Name()]
		if okI && okJ {
			return oi < oj
		}
		if okI {
			return true
		}
		if okJ {
			return false
		}
		return entries[i].Name() < entries[j].Name()
	})

	var contents []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
			continue
		}
		data, err := fs.ReadFile(fsys, e.Name())
		if err != nil {
			return "", fmt.Errorf("failed to read prompt file %s: %w", e.Name(), err)
		}
		contents = append(contents, strings.TrimSpace(string(data)))
	}
	if len(contents) == 0 {
		return "", fmt.Errorf("no prompt files found in %s", pm.Directory)
	}

	if catalog != "" {
		contents = append(contents, "## Tool catalog\n\n"+catalog)
	}
	return strings.Join(contents, "\n\n---\n\n"), nil
}

func (pm *PromptManager) source() (fs.FS, error) {
	if pm == nil || pm.Directory == "" {
		return fs.Sub(defaultPrompts, "prompts")
	}
	if _, err := os.Stat(pm.Directory); err != nil {
		return nil, fmt.Errorf("failed to read prompts directory: %w", err)
	}
	return os.DirFS(pm.Directory), nil
}
