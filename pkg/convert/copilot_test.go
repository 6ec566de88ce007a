package convert

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/claude-migrate/claude-migrate/pkg/backup"
	"github.com/claude-migrate/claude-migrate/pkg/claude"
	"github.com/claude-migrate/claude-migrate/pkg/stats"
)

func TestCopilotSave(t *testing.T) {
	targetDir := t.TempDir()
	config := claude.NewConfig()
	config.Commands = []claude.Command{{
		Name: "deploy",
		Body: "Deploy to $ARGUMENTS now",
	}}
	config.Agents = []claude.Agent{{
		Name:        "reviewer",
		Description: "Reviews\npull requests",
		Model:       "sonnet",
		Tools:       []string{"bash", "grep"},
		Prompt:      "You review code.",
	}}
	config.MCPServers = map[string]claude.MCPServer{
		"local-tools": {
			Type:        claude.ServerLocal,
			Command:     "./serve",
			Args:        []string{"--stdio"},
			Environment: map[string]string{"API_KEY": "k"},
			Enabled:     true,
		},
		"remote-docs": {
			Type:    claude.ServerRemote,
			URL:     "https://docs.example.com/mcp",
			Enabled: true,
		},
	}
	c, s := newTestCopilot(t, config)

	require.NoError(t, c.Save(context.TODO(), targetDir, false))

	prompt, err := os.ReadFile(filepath.Join(targetDir, ".github", "prompts", "deploy.prompt.md"))
	require.NoError(t, err)
	assert.Contains(t, string(prompt), "name: deploy")
	assert.Contains(t, string(prompt), "description: Converted from deploy")
	assert.Contains(t, string(prompt), "Deploy to ${input:arguments} now")
	assert.NotContains(t, string(prompt), "$ARGUMENTS")

	agent, err := os.ReadFile(filepath.Join(targetDir, ".github", "agents", "reviewer.agent.md"))
	require.NoError(t, err)
	assert.Contains(t, string(agent), "name: reviewer")
	assert.Contains(t, string(agent), "description: Reviews pull requests")
	assert.Contains(t, string(agent), "infer: true")
	assert.Contains(t, string(agent), "target: vscode")
	assert.Contains(t, string(agent), "- bash")
	assert.Contains(t, string(agent), "- grep")
	assert.Contains(t, string(agent), "You review code.")

	raw, err := os.ReadFile(filepath.Join(targetDir, "mcp.json"))
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(raw, &doc))

	servers := doc["mcpServers"].(map[string]any)
	local := servers["local-tools"].(map[string]any)
	assert.Equal(t, "stdio", local["type"])
	assert.Equal(t, "./serve", local["command"])
	assert.Equal(t, []any{"--stdio"}, local["args"])
	assert.Equal(t, map[string]any{"API_KEY": "k"}, local["env"])

	remote := servers["remote-docs"].(map[string]any)
	assert.Equal(t, "sse", remote["type"])
	assert.Equal(t, "https://docs.example.com/mcp", remote["url"])

	assert.Equal(t, 1, s.Get(stats.CategoryPrompts, stats.Converted))
	assert.Equal(t, 1, s.Get(stats.CategoryAgents, stats.Converted))
	assert.Equal(t, 2, s.Get(stats.CategoryMCP, stats.Converted))
}

func TestCopilotMergeKeepsUserFilesButRefreshesPluginEntities(t *testing.T) {
	targetDir := t.TempDir()
	promptsDir := filepath.Join(targetDir, ".github", "prompts")
	require.NoError(t, os.MkdirAll(promptsDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(promptsDir, "deploy.prompt.md"), []byte("user edited"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(promptsDir, "tools_sync.prompt.md"), []byte("stale plugin export"), 0o644))

	config := claude.NewConfig()
	config.Commands = []claude.Command{
		{Name: "deploy", Body: "Deploy it"},
		{Name: "tools:sync", Body: "Sync plugin state"},
	}
	c, s := newTestCopilot(t, config)

	require.NoError(t, c.Save(context.TODO(), targetDir, true))

	kept, err := os.ReadFile(filepath.Join(promptsDir, "deploy.prompt.md"))
	require.NoError(t, err)
	assert.Equal(t, "user edited", string(kept))

	refreshed, err := os.ReadFile(filepath.Join(promptsDir, "tools_sync.prompt.md"))
	require.NoError(t, err)
	assert.Contains(t, string(refreshed), "tools:sync")
	assert.Contains(t, string(refreshed), "Sync plugin state")

	assert.Equal(t, 1, s.Get(stats.CategoryPrompts, stats.Skipped))
	assert.Equal(t, 1, s.Get(stats.CategoryPrompts, stats.Converted))
	// The stale plugin export was backed up before being rewritten.
	assert.Equal(t, 1, s.Get(stats.CategoryBackups, stats.Converted))
}

func TestCopilotSkillDirectoryCopy(t *testing.T) {
	sourceDir := t.TempDir()
	skillSrc := filepath.Join(sourceDir, "profiling")
	require.NoError(t, os.MkdirAll(filepath.Join(skillSrc, "scripts"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(skillSrc, "SKILL.md"), []byte("---\nname: profiling\n---\nbody"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(skillSrc, "scripts", "run.sh"), []byte("#!/bin/sh\n"), 0o755))

	config := claude.NewConfig()
	config.Skills = []claude.Skill{{
		Name:        "profiling",
		Description: "CPU profiling workflow",
		Body:        "Run the profiler first.",
		License:     "MIT",
		Dir:         skillSrc,
	}}

	targetDir := t.TempDir()
	c, s := newTestCopilot(t, config)
	require.NoError(t, c.Save(context.TODO(), targetDir, false))

	copied := filepath.Join(targetDir, ".github", "skills", "profiling")
	script, err := os.ReadFile(filepath.Join(copied, "scripts", "run.sh"))
	require.NoError(t, err)
	assert.Equal(t, "#!/bin/sh\n", string(script))

	skillMD, err := os.ReadFile(filepath.Join(copied, "SKILL.md"))
	require.NoError(t, err)
	assert.Contains(t, string(skillMD), "name: profiling")
	assert.Contains(t, string(skillMD), "license: MIT")
	assert.Contains(t, string(skillMD), "Run the profiler first.")

	assert.Equal(t, 1, s.Get(stats.CategorySkills, stats.Converted))
}

func TestCopilotSkillWithoutSourceDir(t *testing.T) {
	config := claude.NewConfig()
	config.Skills = []claude.Skill{{Name: "notes", Body: "Take notes."}}

	targetDir := t.TempDir()
	c, _ := newTestCopilot(t, config)
	require.NoError(t, c.Save(context.TODO(), targetDir, false))

	skillMD, err := os.ReadFile(filepath.Join(targetDir, ".github", "skills", "notes", "SKILL.md"))
	require.NoError(t, err)
	assert.Contains(t, string(skillMD), "name: notes")
	assert.Contains(t, string(skillMD), "Take notes.")
}

func TestCopilotMCPMergeTombstone(t *testing.T) {
	targetDir := t.TempDir()
	existing := map[string]any{
		"mcpServers": map[string]any{
			"keepme": map[string]any{"type": "stdio", "command": "old"},
			"gone":   map[string]any{"type": "stdio", "command": "older"},
		},
	}
	raw, err := json.Marshal(existing)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(targetDir, "mcp.json"), raw, 0o644))

	config := claude.NewConfig()
	config.MCPServers = map[string]claude.MCPServer{
		"gone": {Type: claude.ServerStdio, Disabled: true},
	}
	c, _ := newTestCopilot(t, config)

	require.NoError(t, c.Save(context.TODO(), targetDir, true))

	out, err := os.ReadFile(filepath.Join(targetDir, "mcp.json"))
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(out, &doc))

	servers := doc["mcpServers"].(map[string]any)
	assert.Contains(t, servers, "keepme")
	assert.NotContains(t, servers, "gone")
}

func TestCopilotPlan(t *testing.T) {
	targetDir := t.TempDir()
	promptsDir := filepath.Join(targetDir, ".github", "prompts")
	require.NoError(t, os.MkdirAll(promptsDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(promptsDir, "deploy.prompt.md"), []byte("x"), 0o644))

	config := claude.NewConfig()
	config.Commands = []claude.Command{
		{Name: "deploy", Body: "a"},
		{Name: "release", Body: "b"},
	}
	c, _ := newTestCopilot(t, config)

	planned := c.Plan(targetDir, true)
	require.Len(t, planned, 2)

	byPath := map[string]backup.Decision{}
	for _, p := range planned {
		byPath[p.Path] = p.Decision
	}
	assert.Equal(t, backup.Skip, byPath[filepath.Join(promptsDir, "deploy.prompt.md")])
	assert.Equal(t, backup.Create, byPath[filepath.Join(promptsDir, "release.prompt.md")])
}
