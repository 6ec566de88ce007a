package convert

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/pkg/errors"

	"github.com/claude-migrate/claude-migrate/pkg/backup"
	"github.com/claude-migrate/claude-migrate/pkg/claude"
	"github.com/claude-migrate/claude-migrate/pkg/jsonc"
	"github.com/claude-migrate/claude-migrate/pkg/logger"
	"github.com/claude-migrate/claude-migrate/pkg/stats"
)

const opencodeSchema = "https://opencode.ai/config.json"

// OpenCode renders the configuration as an OpenCode project: per-entity
// markdown under agent/, command/ and skill/, plus an aggregated
// opencode.jsonc for MCP servers. The json format collapses everything into a
// single opencode.json instead.
type OpenCode struct {
	base
}

// NewOpenCode creates an OpenCode converter for the given configuration.
func NewOpenCode(config *claude.Config, opts ...Option) (*OpenCode, error) {
	b, err := newBase(config, opts...)
	if err != nil {
		return nil, err
	}
	return &OpenCode{base: b}, nil
}

type opencodeAgentMeta struct {
	Mode        string          `yaml:"mode"`
	Description string          `yaml:"description"`
	Model       string          `yaml:"model,omitempty"`
	Temperature *float64        `yaml:"temperature,omitempty"`
	MaxSteps    *int            `yaml:"maxSteps,omitempty"`
	Tools       map[string]bool `yaml:"tools,omitempty"`
}

type opencodeCommandMeta struct {
	Description  string `yaml:"description,omitempty"`
	Agent        string `yaml:"agent,omitempty"`
	Model        string `yaml:"model,omitempty"`
	Subtask      bool   `yaml:"subtask,omitempty"`
	ArgumentHint string `yaml:"argumentHint,omitempty"`
}

type opencodeSkillMeta struct {
	Name        string `yaml:"name,omitempty"`
	Description string `yaml:"description,omitempty"`
}

// Save writes the configuration under targetDir in the requested format. Per
// entity failures are recorded in the statistics and logged rather than
// aborting the run.
func (c *OpenCode) Save(ctx context.Context, targetDir string, format Format, merge bool) error {
	if !ValidFormat(format) {
		return errors.Errorf("unknown output format %q", format)
	}

	if format == FormatJSON {
		return c.saveJSON(ctx, targetDir)
	}

	c.saveAgents(ctx, filepath.Join(targetDir, "agent"), merge)
	c.saveCommands(ctx, filepath.Join(targetDir, "command"), merge)
	c.saveSkills(ctx, filepath.Join(targetDir, "skill"), merge)
	return c.saveMCP(ctx, targetDir, merge)
}

// Plan lists the files Save would touch, with per-file decisions, without
// writing anything.
func (c *OpenCode) Plan(targetDir string, format Format, merge bool) []PlannedFile {
	if format == FormatJSON {
		path := filepath.Join(targetDir, "opencode.json")
		return []PlannedFile{{Path: path, Category: stats.CategoryMCP, Decision: backup.Decide(path, false)}}
	}

	var planned []PlannedFile
	for _, agent := range c.config.Agents {
		path := filepath.Join(targetDir, "agent", sanitizeFilename(agent.Name)+".md")
		planned = append(planned, PlannedFile{path, stats.CategoryAgents, backup.Decide(path, merge)})
	}
	for _, cmd := range c.config.Commands {
		path := filepath.Join(targetDir, "command", sanitizeFilename(cmd.Name)+".md")
		planned = append(planned, PlannedFile{path, stats.CategoryCommands, backup.Decide(path, merge)})
	}
	for _, skill := range c.config.Skills {
		path := filepath.Join(targetDir, "skill", sanitizeFilename(skill.Name), skillFileName)
		planned = append(planned, PlannedFile{path, stats.CategorySkills, backup.Decide(path, merge)})
	}
	if len(c.config.MCPServers) > 0 {
		path := filepath.Join(targetDir, "opencode.jsonc")
		planned = append(planned, PlannedFile{path, stats.CategoryMCP, backup.Decide(path, false)})
	}
	return planned
}

const skillFileName = "SKILL.md"

func (c *OpenCode) saveAgents(ctx context.Context, agentsDir string, merge bool) {
	for _, agent := range c.config.Agents {
		path := filepath.Join(agentsDir, sanitizeFilename(agent.Name)+".md")

		decision := backup.Decide(path, merge)
		if decision == backup.Skip {
			c.stats.Record(stats.CategoryAgents, stats.Skipped)
			continue
		}

		meta := opencodeAgentMeta{
			Mode:        "subagent",
			Description: agent.Description,
			Model:       agent.Model,
			Temperature: agent.Temperature,
			MaxSteps:    agent.MaxSteps,
			Tools:       toolsMap(agent.Tools),
		}

		if err := c.writeMarkdown(ctx, path, meta, agent.Prompt, decision); err != nil {
			logger.G(ctx).WithError(err).WithField("agent", agent.Name).Error("failed to convert agent")
			c.stats.Record(stats.CategoryAgents, stats.Failed)
			continue
		}
		c.stats.Record(stats.CategoryAgents, stats.Converted)
	}
}

func (c *OpenCode) saveCommands(ctx context.Context, commandsDir string, merge bool) {
	for _, cmd := range c.config.Commands {
		path := filepath.Join(commandsDir, sanitizeFilename(cmd.Name)+".md")

		decision := backup.Decide(path, merge)
		if decision == backup.Skip {
			c.stats.Record(stats.CategoryCommands, stats.Skipped)
			continue
		}

		meta := opencodeCommandMeta{
			Description:  cmd.Description,
			Agent:        cmd.Agent,
			Model:        cmd.Model,
			Subtask:      cmd.Subtask,
			ArgumentHint: cmd.ArgumentHint,
		}

		if err := c.writeMarkdown(ctx, path, meta, commandTemplate(cmd.Body), decision); err != nil {
			logger.G(ctx).WithError(err).WithField("command", cmd.Name).Error("failed to convert command")
			c.stats.Record(stats.CategoryCommands, stats.Failed)
			continue
		}
		c.stats.Record(stats.CategoryCommands, stats.Converted)
	}
}

func (c *OpenCode) saveSkills(ctx context.Context, skillsDir string, merge bool) {
	for _, skill := range c.config.Skills {
		path := filepath.Join(skillsDir, sanitizeFilename(skill.Name), skillFileName)

		decision := backup.Decide(path, merge)
		if decision == backup.Skip {
			c.stats.Record(stats.CategorySkills, stats.Skipped)
			continue
		}

		meta := opencodeSkillMeta{
			Name:        skill.Name,
			Description: cleanDescription(skill.Description),
		}

		if err := c.writeMarkdown(ctx, path, meta, skill.Body, decision); err != nil {
			logger.G(ctx).WithError(err).WithField("skill", skill.Name).Error("failed to convert skill")
			c.stats.Record(stats.CategorySkills, stats.Failed)
			continue
		}
		c.stats.Record(stats.CategorySkills, stats.Converted)
	}
}

// saveMCP writes the aggregated MCP section of opencode.jsonc. In merge mode
// the existing section is read back first so unrelated servers survive;
// disabled servers act as tombstones and remove the matching key.
func (c *OpenCode) saveMCP(ctx context.Context, targetDir string, merge bool) error {
	if len(c.config.MCPServers) == 0 {
		return nil
	}

	path := filepath.Join(targetDir, "opencode.jsonc")

	servers := map[string]any{}
	if merge {
		if existing, err := jsonc.Load(path); err == nil {
			if section, ok := existing["mcp"].(map[string]any); ok {
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
		servers[name] = opencodeServer(server)
	}

	if len(servers) == 0 {
		return nil
	}

	doc := map[string]any{
		"$schema": opencodeSchema,
		"mcp":     servers,
	}
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

type opencodeAgentJSON struct {
	Description string          `json:"description,omitempty"`
	Model       string          `json:"model,omitempty"`
	Temperature *float64        `json:"temperature,omitempty"`
	MaxSteps    *int            `json:"maxSteps,omitempty"`
	Tools       map[string]bool `json:"tools,omitempty"`
	Mode        string          `json:"mode"`
	Prompt      string          `json:"prompt"`
}

type opencodeCommandJSON struct {
	Description  string `json:"description,omitempty"`
	Agent        string `json:"agent,omitempty"`
	Model        string `json:"model,omitempty"`
	Subtask      bool   `json:"subtask,omitempty"`
	ArgumentHint string `json:"argumentHint,omitempty"`
	Template     string `json:"template"`
}

// saveJSON writes the monolithic opencode.json with agent, command and mcp
// sections. Skills have no representation in this format and are skipped.
func (c *OpenCode) saveJSON(ctx context.Context, targetDir string) error {
	agents := map[string]opencodeAgentJSON{}
	for _, agent := range c.config.Agents {
		agents[agent.Name] = opencodeAgentJSON{
			Description: agent.Description,
			Model:       agent.Model,
			Temperature: agent.Temperature,
			MaxSteps:    agent.MaxSteps,
			Tools:       toolsMap(agent.Tools),
			Mode:        "subagent",
			Prompt:      agent.Prompt,
		}
		c.stats.Record(stats.CategoryAgents, stats.Converted)
	}

	commands := map[string]opencodeCommandJSON{}
	for _, cmd := range c.config.Commands {
		commands[cmd.Name] = opencodeCommandJSON{
			Description:  cmd.Description,
			Agent:        cmd.Agent,
			Model:        cmd.Model,
			Subtask:      cmd.Subtask,
			ArgumentHint: cmd.ArgumentHint,
			Template:     commandTemplate(cmd.Body),
		}
		c.stats.Record(stats.CategoryCommands, stats.Converted)
	}

	servers := map[string]any{}
	for _, name := range sortedServerNames(c.config.MCPServers) {
		server := c.config.MCPServers[name]
		if server.Disabled {
			continue
		}
		servers[name] = opencodeServer(server)
	}
	if len(servers) > 0 {
		c.stats.RecordN(stats.CategoryMCP, stats.Converted, len(servers))
	}
	for range c.config.Skills {
		c.stats.Record(stats.CategorySkills, stats.Skipped)
	}

	doc := map[string]any{
		"$schema": opencodeSchema,
		"agent":   agents,
		"command": commands,
		"mcp":     servers,
	}
	content, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal opencode.json")
	}

	path := filepath.Join(targetDir, "opencode.json")
	return c.write(ctx, path, append(content, '\n'), backup.Decide(path, false))
}

func (c *OpenCode) writeMarkdown(ctx context.Context, path string, meta any, body string, decision backup.Decision) error {
	fm, err := renderFrontmatter(meta)
	if err != nil {
		return err
	}
	content := fmt.Sprintf("---\n%s\n---\n%s\n", fm, body)
	return c.write(ctx, path, []byte(content), decision)
}

// opencodeServer maps one MCP server onto OpenCode's transport model: url
// transports become remote, stdio becomes local with command and args merged
// into a single argv list.
func opencodeServer(server claude.MCPServer) map[string]any {
	entry := map[string]any{}

	switch server.Type {
	case claude.ServerHTTP, claude.ServerSSE:
		entry["type"] = "remote"
		entry["url"] = server.URL
	case claude.ServerStdio:
		entry["type"] = "local"
		argv := append([]string{}, server.CommandParts()...)
		argv = append(argv, server.Args...)
		entry["command"] = argv
	default:
		entry["type"] = string(server.Type)
		if server.Command != nil {
			entry["command"] = server.Command
		}
	}

	if env := server.EffectiveEnv(); len(env) > 0 {
		entry["environment"] = env
	}
	if len(server.Headers) > 0 {
		entry["headers"] = server.Headers
	}
	entry["enabled"] = true

	return entry
}

func commandTemplate(body string) string {
	return fmt.Sprintf("<command-instruction>\n%s\n</command-instruction>\n\n<user-request>\n$ARGUMENTS\n</user-request>", body)
}

func toolsMap(tools []string) map[string]bool {
	if len(tools) == 0 {
		return nil
	}
	m := make(map[string]bool, len(tools))
	for _, tool := range tools {
		m[tool] = true
	}
	return m
}

func sortedServerNames(servers map[string]claude.MCPServer) []string {
	names := make([]string, 0, len(servers))
	for name := range servers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
