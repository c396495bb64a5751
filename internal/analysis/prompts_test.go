package analysis_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gnan1985/You-Only-Do-Once/internal/analysis"
)

func TestSystemPromptOrder(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"identity.md": "Identity Content",
		"rules.md":    "Rules Content",
		"examples.md": "Examples Content",
		"user.md":     "User Content",
		"extra.md":    "Extra Content",
		"notes.txt":   "Ignored Content",
	}
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}

	prompt, err := analysis.NewPromptManager(dir).SystemPrompt("catalog here")
	require.NoError(t, err)

	order := []string{
		"Identity Content", "Rules Content", "Examples Content",
		"User Content", "Extra Content", "## Tool catalog",
	}
	last := -1
	for _, part := range order {
		idx := strings.Index(prompt, part)
		require.GreaterOrEqual(t, idx, 0, "missing %q", part)
		assert.Greater(t, idx, last, "%q out of order", part)
		last = idx
	}
	assert.NotContains(t, prompt, "Ignored Content")
	assert.True(t, strings.HasSuffix(prompt, "catalog here"))
}

func TestSystemPromptDefaults(t *testing.T) {
	prompt, err := analysis.NewPromptManager("").SystemPrompt("")
	require.NoError(t, err)
	assert.Contains(t, prompt, "propose_workflow")
	assert.NotContains(t, prompt, "## Tool catalog")
}

func TestSystemPromptMissingDirectory(t *testing.T) {
	_, err := analysis.NewPromptManager(
		filepath.Join(t.TempDir(), "nope"),
	).SystemPrompt("")
	assert.Error(t, err)
}

func TestSystemPromptEmptyDirectory(t *testing.T) {
	_, err := analysis.NewPromptManager(t.TempDir()).SystemPrompt("")
	assert.ErrorContains(t, err, "no prompt files")
}
