package convert

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/claude-migrate/claude-migrate/pkg/backup"
	"github.com/claude-migrate/claude-migrate/pkg/claude"
	"github.com/claude-migrate/claude-migrate/pkg/jsonc"
	"github.com/claude-migrate/claude-migrate/pkg/logger"
	"github.com/claude-migrate/claude-migrate/pkg/stats"
)

// Copilot renders the configuration for GitHub Copilot: prompt files and
// custom agents under .github/, skill directories copied verbatim, and an
// aggregated mcp.json. In merge mode existing entity files win, except for
// plugin-namespaced entities which always reflect the installed plugin.
type Copilot struct {
	base
}

// NewCopilot creates a Copilot converter for the given configuration.
func NewCopilot(config *claude.Config, opts ...Option) (*Copilot, error) {
	b, err := newBase(config, opts...)
	if err != nil {
		return nil, err
	}
	return &Copilot{base: b}, nil
}

type copilotPromptMeta struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Model       string `yaml:"model,omitempty"`
	Agent       string `yaml:"agent,omitempty"`
}

type copilotAgentMeta struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Model       string   `yaml:"model,omitempty"`
	Infer       bool     `yaml:"infer"`
	Target      string   `yaml:"target"`
	Tools       []string `yaml:"tools,omitempty"`
}

type copilotSkillMeta struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`
	License     string `yaml:"license,omitempty"`
}

// Save writes the configuration under targetDir. Per-entity failures are
// recorded in the statistics and logged rather than aborting the run.
func (c *Copilot) Save(ctx context.Context, targetDir string, merge bool) error {
	githubDir := filepath.Join(targetDir, ".github")

	c.savePrompts(ctx, filepath.Join(githubDir, "prompts"), merge)
	c.saveAgents(ctx, filepath.Join(githubDir, "agents"), merge)
	c.saveSkills(ctx, filepath.Join(githubDir, "skills"), merge)
	return c.saveMCP(ctx, targetDir, merge)
}

// Plan lists the files Save would touch, with per-file decisions, without
// writing anything.
func (c *Copilot) Plan(targetDir string, merge bool) []PlannedFile {
	githubDir := filepath.Join(targetDir, ".github")

	var planned []PlannedFile
	for _, cmd := range c.config.Commands {
		path := filepath.Join(githubDir, "prompts", sanitizeFilename(cmd.Name)+".prompt.md")
		planned = append(planned, PlannedFile{path, stats.CategoryPrompts, decideEntity(path, cmd.Name, merge)})
	}
	for _, agent := range c.config.Agents {
		path := filepath.Join(githubDir, "agents", sanitizeFilename(agent.Name)+".agent.md")
		planned = append(planned, PlannedFile{path, stats.CategoryAgents, decideEntity(path, agent.Name, merge)})
	}
	for _, skill := range c.config.Skills {
		path := filepath.Join(githubDir, "skills", sanitizeFilename(skill.Name))
		planned = append(planned, PlannedFile{path, stats.CategorySkills, decideEntity(path, skill.Name, merge)})
	}
	if len(c.config.MCPServers) > 0 {
		path := filepath.Join(targetDir, "mcp.json")
		planned = append(planned, PlannedFile{path, stats.CategoryMCP, backup.Decide(path, false)})
	}
	return planned
}

// decideEntity applies the merge policy with the plugin exception: entities
// that came from an installed plugin overwrite even in merge mode, so the
// output tracks the plugin registry rather than a stale export.
func decideEntity(path, name string, merge bool) backup.Decision {
	decision := backup.Decide(path, merge)
	if decision == backup.Skip && claude.IsPluginEntity(name) {
		return backup.Overwrite
	}
	return decision
}

func (c *Copilot) savePrompts(ctx context.Context, promptsDir string, merge bool) {
	for _, cmd := range c.config.Commands {
		path := filepath.Join(promptsDir, sanitizeFilename(cmd.Name)+".prompt.md")

		decision := decideEntity(path, cmd.Name, merge)
		if decision == backup.Skip {
			c.stats.Record(stats.CategoryPrompts, stats.Skipped)
			continue
		}

		description := cmd.Description
		if description == "" {
			description = fmt.Sprintf("Converted from %s", cmd.Name)
		}
		meta := copilotPromptMeta{
			Name:        cmd.Name,
			Description: cleanDescription(description),
			Model:       cmd.Model,
			Agent:       cmd.Agent,
		}
		body := promptBody(cmd.Body)

		if err := c.writeMarkdown(ctx, path, meta, body, decision); err != nil {
			logger.G(ctx).WithError(err).WithField("command", cmd.Name).Error("failed to convert command")
			c.stats.Record(stats.CategoryPrompts, stats.Failed)
			continue
		}
		c.stats.Record(stats.CategoryPrompts, stats.Converted)
	}
}

func (c *Copilot) saveAgents(ctx context.Context, agentsDir string, merge bool) {
	for _, agent := range c.config.Agents {
		path := filepath.Join(agentsDir, sanitizeFilename(agent.Name)+".agent.md")

		decision := decideEntity(path, agent.Name, merge)
		if decision == backup.Skip {
			c.stats.Record(stats.CategoryAgents, stats.Skipped)
			continue
		}

		meta := copilotAgentMeta{
			Name:        agent.Name,
			Description: cleanDescription(agent.Description),
			Model:       agent.Model,
			Infer:       true,
			Target:      "vscode",
			Tools:       agent.Tools,
		}

		if err := c.writeMarkdown(ctx, path, meta, agent.Prompt, decision); err != nil {
			logger.G(ctx).WithError(err).WithField("agent", agent.Name).Error("failed to convert agent")
			c.stats.Record(stats.CategoryAgents, stats.Failed)
			continue
		}
		c.stats.Record(stats.CategoryAgents, stats.Converted)
	}
}

// saveSkills copies each skill directory verbatim under .github/skills and
// rewrites its SKILL.md with normalized frontmatter. Skills loaded without a
// source directory get a fresh SKILL.md only.
func (c *Copilot) saveSkills(ctx context.Context, skillsDir string, merge bool) {
	for _, skill := range c.config.Skills {
		target := filepath.Join(skillsDir, sanitizeFilename(skill.Name))

		decision := decideEntity(target, skill.Name, merge)
		if decision == backup.Skip {
			c.stats.Record(stats.CategorySkills, stats.Skipped)
			continue
		}

		if err := c.saveSkill(ctx, skill, target, decision); err != nil {
			logger.G(ctx).WithError(err).WithField("skill", skill.Name).Error("failed to convert skill")
			c.stats.Record(stats.CategorySkills, stats.Failed)
			continue
		}
		c.stats.Record(stats.CategorySkills, stats.Converted)
	}
}

func (c *Copilot) saveSkill(ctx context.Context, skill claude.Skill, target string, decision backup.Decision) error {
	if skill.Dir != "" {
		if decision == backup.Overwrite {
			if err := os.RemoveAll(target); err != nil {
				return errors.Wrapf(err, "failed to remove existing skill at %s", target)
			}
		}
		if err := copyTree(skill.Dir, target); err != nil {
			return err
		}
	}

	meta := copilotSkillMeta{
		Name:        skill.Name,
		Description: cleanDescription(skill.Description),
		License:     skill.License,
	}
	return c.writeMarkdown(ctx, filepath.Join(target, skillFileName), meta, skill.Body, backup.Create)
}

// saveMCP writes the aggregated mcp.json. In merge mode the existing
// mcpServers section is read back first; disabled servers act as tombstones
// and remove the matching key.
func (c *Copilot) saveMCP(ctx context.Context, targetDir string, merge bool) error {
	if len(c.config.MCPServers) == 0 {
		return nil
	}

	path := filepath.Join(targetDir, "mcp.json")

	servers := map[string]any{}
	if merge {
		if existing, err := jsonc.Load(path); err == nil {
			if section, ok := existing["mcpServers"].(map[string]any); ok {
				servers = section
			}
		}
	}

	for _, name := range sortedServerNames(c.config.MCPServers) {
		server := c.config.MCPServers[name]
		if server.Disabled {
			delete(servers, name)
			continue
		}
		servers[name] = copilotServer(server)
	}

	if len(servers) == 0 {
		return nil
	}

	doc := map[string]any{"mcpServers": servers}
	content, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal MCP config")
	}

	if err := c.write(ctx, path, append(content, '\n'), backup.Decide(path, false)); err != nil {
		c.stats.Record(stats.CategoryMCP, stats.Failed)
		return err
	}
	c.stats.RecordN(stats.CategoryMCP, stats.Converted, len(servers))
	return nil
}

func (c *Copilot) writeMarkdown(ctx context.Context, path string, meta any, body string, decision backup.Decision) error {
	fm, err := renderFrontmatter(meta)
	if err != nil {
		return err
	}
	content := fmt.Sprintf("---\n%s\n---\n\n%s\n", fm, body)
	return c.write(ctx, path, []byte(content), decision)
}

// copilotServer maps one MCP server onto VS Code's transport model: local
// becomes stdio and remote becomes sse, the command keeps its source shape,
// and environment folds into env.
func copilotServer(server claude.MCPServer) map[string]any {
	entry := map[string]any{}

	switch server.Type {
	case claude.ServerLocal:
		entry["type"] = string(claude.ServerStdio)
	case claude.ServerRemote:
		entry["type"] = string(claude.ServerSSE)
	default:
		entry["type"] = string(server.Type)
	}

	if server.Command != nil {
		entry["command"] = server.Command
	}
	if len(server.Args) > 0 {
		entry["args"] = server.Args
	}
	if server.URL != "" {
		entry["url"] = server.URL
	}
	if env := server.EffectiveEnv(); len(env) > 0 {
		entry["env"] = env
	}
	if len(server.Headers) > 0 {
		entry["headers"] = server.Headers
	}
	entry["enabled"] = server.Enabled

	return entry
}

// promptBody rewrites the argument placeholder into Copilot's input variable
// syntax.
func promptBody(body string) string {
	return strings.ReplaceAll(body, "$ARGUMENTS", "${input:arguments}")
}

// copyTree copies a directory recursively, preserving file modes. Symlinks in
// skill directories are not followed.
func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(src, path)
		if err != nil {
			return errors.Wrapf(err, "failed to relativize %s", path)
		}
		target := filepath.Join(dst, rel)

		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		if !d.Type().IsRegular() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return errors.Wrapf(err, "failed to stat %s", path)
		}
		return copyFileContents(path, target, info.Mode().Perm())
	})
}

func copyFileContents(src, dst string, mode os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return errors.Wrapf(err, "failed to open %s", src)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return errors.Wrapf(err, "failed to create %s", dst)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return errors.Wrapf(err, "failed to copy %s", src)
	}
	return nil
}
