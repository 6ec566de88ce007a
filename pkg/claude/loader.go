package claude

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/claude-migrate/claude-migrate/pkg/expand"
	"github.com/claude-migrate/claude-migrate/pkg/frontmatter"
	"github.com/claude-migrate/claude-migrate/pkg/jsonc"
	"github.com/claude-migrate/claude-migrate/pkg/logger"
	"github.com/claude-migrate/claude-migrate/pkg/stats"
)

const (
	skillFileName = "SKILL.md"
	mcpFileName   = ".mcp.json"

	// Plugins are not expected to nest plugins; the bound is defensive.
	maxPluginDepth = 2
)

// Loader reads one configuration tree into a Config. Per-file failures are
// logged, counted, and aggregated into the returned error; they never abort
// the load.
type Loader struct {
	baseDir        string
	includePlugins bool
	scope          Scope
	homeDir        string
	overrides      map[string]string
	stats          *stats.Statistics
	depth          int
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithPlugins enables loading of installed plugins.
func WithPlugins(include bool) LoaderOption {
	return func(l *Loader) { l.includePlugins = include }
}

// WithScope records which scope the base directory was resolved from.
func WithScope(scope Scope) LoaderOption {
	return func(l *Loader) { l.scope = scope }
}

// WithHomeDir overrides the home directory used to locate the plugin
// registry.
func WithHomeDir(dir string) LoaderOption {
	return func(l *Loader) { l.homeDir = dir }
}

// WithOverrides supplies extra variables for ${VAR} expansion in MCP configs.
func WithOverrides(overrides map[string]string) LoaderOption {
	return func(l *Loader) { l.overrides = overrides }
}

// WithStats attaches the statistics accumulator for this run.
func WithStats(s *stats.Statistics) LoaderOption {
	return func(l *Loader) { l.stats = s }
}

// NewLoader creates a loader for one configuration tree.
func NewLoader(baseDir string, opts ...LoaderOption) (*Loader, error) {
	l := &Loader{
		baseDir: baseDir,
		scope:   ScopeUser,
	}

	for _, opt := range opts {
		opt(l)
	}

	if l.homeDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, errors.Wrap(err, "failed to get user home directory")
		}
		l.homeDir = homeDir
	}
	if l.stats == nil {
		l.stats = stats.New()
	}

	return l, nil
}

// Load reads agents, commands, skills, and MCP servers from the base
// directory, plus installed plugins when enabled. Missing source directories
// yield empty collections. The returned error aggregates per-file failures
// the caller should surface as warnings; the Config is usable either way.
func (l *Loader) Load(ctx context.Context) (*Config, error) {
	config := NewConfig()
	var loadErrs *multierror.Error

	config.Agents = l.loadAgents(ctx, &loadErrs)
	config.Commands = l.loadCommands(ctx, &loadErrs)
	config.Skills = l.loadSkills(ctx, &loadErrs)
	config.MCPServers = l.loadMCP(ctx, &loadErrs)

	if l.includePlugins {
		plugins := l.loadPlugins(ctx, &loadErrs)
		config.Append(plugins)
	}

	return config, loadErrs.ErrorOrNil()
}

// markdownFiles lists *.md files under dir recursively, skipping dotfiles.
func markdownFiles(dir string) []string {
	if _, err := os.Stat(dir); err != nil {
		return nil
	}

	matches, err := doublestar.Glob(os.DirFS(dir), "**/*.md")
	if err != nil {
		return nil
	}

	var files []string
	for _, match := range matches {
		if strings.HasPrefix(filepath.Base(match), ".") {
			continue
		}
		files = append(files, filepath.Join(dir, filepath.FromSlash(match)))
	}
	return files
}

func fileStem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func (l *Loader) loadAgents(ctx context.Context, loadErrs **multierror.Error) []Agent {
	var agents []Agent

	for _, path := range markdownFiles(filepath.Join(l.baseDir, "agents")) {
		content, err := os.ReadFile(path)
		if err != nil {
			l.recordFailure(ctx, loadErrs, stats.CategoryAgents, path, err)
			continue
		}

		fm, body := frontmatter.Parse(ctx, string(content))

		agent := Agent{
			Name:        stringField(fm, "name", fileStem(path)),
			Description: stringField(fm, "description", ""),
			Model:       stringField(fm, "model", ""),
			Tools:       NormalizeTools(fm["tools"]),
			Prompt:      strings.TrimSpace(body),
			Temperature: floatField(fm, "temperature"),
			MaxSteps:    intField(fm, "maxSteps"),
		}

		agents = append(agents, agent)
		l.stats.Record(stats.CategoryAgents, stats.Detected)
	}

	return agents
}

func (l *Loader) loadCommands(ctx context.Context, loadErrs **multierror.Error) []Command {
	var commands []Command

	for _, path := range markdownFiles(filepath.Join(l.baseDir, "commands")) {
		content, err := os.ReadFile(path)
		if err != nil {
			l.recordFailure(ctx, loadErrs, stats.CategoryCommands, path, err)
			continue
		}

		fm, body := frontmatter.Parse(ctx, string(content))

		if strings.TrimSpace(body) == "" {
			logger.G(ctx).WithField("path", path).Debug("skipping command with empty body")
			l.stats.Record(stats.CategoryCommands, stats.Skipped)
			continue
		}

		command := Command{
			Name:         stringField(fm, "name", fileStem(path)),
			Description:  stringField(fm, "description", ""),
			Body:         strings.TrimSpace(body),
			Model:        stringField(fm, "model", ""),
			Agent:        stringField(fm, "agent", ""),
			ArgumentHint: stringField(fm, "argument-hint", ""),
			Subtask:      boolField(fm, "subtask"),
		}

		commands = append(commands, command)
		l.stats.Record(stats.CategoryCommands, stats.Detected)
	}

	return commands
}

func (l *Loader) loadSkills(ctx context.Context, loadErrs **multierror.Error) []Skill {
	var skills []Skill

	skillsDir := filepath.Join(l.baseDir, "skills")
	entries, err := os.ReadDir(skillsDir)
	if err != nil {
		return nil
	}

	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}

		skillDir := filepath.Join(skillsDir, entry.Name())
		skillPath := filepath.Join(skillDir, skillFileName)
		content, err := os.ReadFile(skillPath)
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				l.recordFailure(ctx, loadErrs, stats.CategorySkills, skillPath, err)
			}
			continue
		}

		fm, body := frontmatter.Parse(ctx, string(content))

		skill := Skill{
			Name:        stringField(fm, "name", entry.Name()),
			Description: stringField(fm, "description", ""),
			Body:        strings.TrimSpace(body),
			License:     stringField(fm, "license", ""),
			Dir:         skillDir,
		}

		skills = append(skills, skill)
		l.stats.Record(stats.CategorySkills, stats.Detected)
	}

	return skills
}

func (l *Loader) loadMCP(ctx context.Context, loadErrs **multierror.Error) map[string]MCPServer {
	servers := make(map[string]MCPServer)

	mcpPath := filepath.Join(l.baseDir, mcpFileName)
	raw, err := jsonc.Load(mcpPath)
	if err != nil {
		l.recordFailure(ctx, loadErrs, stats.CategoryMCP, mcpPath, err)
		return servers
	}

	expanded, _ := expand.Expand(raw, l.overrides).(map[string]any)
	serversRaw, _ := expanded["mcpServers"].(map[string]any)

	for name, value := range serversRaw {
		entry, ok := value.(map[string]any)
		if !ok {
			l.recordFailure(ctx, loadErrs, stats.CategoryMCP, mcpPath,
				errors.Errorf("MCP server %q is not a mapping", name))
			continue
		}

		server, err := DecodeMCPServer(entry)
		if err != nil {
			l.recordFailure(ctx, loadErrs, stats.CategoryMCP, mcpPath,
				errors.Wrapf(err, "MCP server %q", name))
			continue
		}

		servers[name] = server
		l.stats.Record(stats.CategoryMCP, stats.Detected)
	}

	return servers
}

func (l *Loader) recordFailure(ctx context.Context, loadErrs **multierror.Error, category stats.Category, path string, err error) {
	logger.G(ctx).WithError(err).WithField("path", path).Warn("failed to load entity")
	l.stats.Record(category, stats.Failed)
	*loadErrs = multierror.Append(*loadErrs, errors.Wrap(err, path))
}

func stringField(fm map[string]any, key, fallback string) string {
	if v, ok := fm[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

func floatField(fm map[string]any, key string) *float64 {
	switch v := fm[key].(type) {
	case float64:
		return &v
	case int:
		f := float64(v)
		return &f
	default:
		return nil
	}
}

func intField(fm map[string]any, key string) *int {
	switch v := fm[key].(type) {
	case int:
		return &v
	case float64:
		i := int(v)
		return &i
	default:
		return nil
	}
}

func boolField(fm map[string]any, key string) bool {
	v, _ := fm[key].(bool)
	return v
}
