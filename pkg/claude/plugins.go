package claude

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-multierror"

	"github.com/claude-migrate/claude-migrate/pkg/expand"
	"github.com/claude-migrate/claude-migrate/pkg/jsonc"
	"github.com/claude-migrate/claude-migrate/pkg/logger"
	"github.com/claude-migrate/claude-migrate/pkg/stats"
)

// pluginRootVar is expanded inside plugin-provided MCP configs so servers can
// reference files shipped with the plugin.
const pluginRootVar = "CLAUDE_PLUGIN_ROOT"

type pluginEntry struct {
	key        string
	descriptor map[string]any
}

// loadPlugins reads the installed-plugin registry and loads each plugin's
// configuration tree, namespacing entity names as "plugin:name". Entities
// from later plugins silently overwrite earlier same-named MCP entries.
func (l *Loader) loadPlugins(ctx context.Context, loadErrs **multierror.Error) *Config {
	config := NewConfig()

	if l.depth >= maxPluginDepth {
		logger.G(ctx).Warn("plugin recursion depth exceeded, ignoring nested plugins")
		return config
	}

	registryPath := filepath.Join(l.homeDir, ".claude", "plugins", "installed_plugins.json")
	raw, err := os.ReadFile(registryPath)
	if err != nil {
		if os.IsNotExist(err) {
			return config
		}
		l.recordFailure(ctx, loadErrs, stats.CategoryPlugins, registryPath, err)
		return config
	}

	var parsed any
	if err := json.Unmarshal(raw, &parsed); err != nil {
		l.recordFailure(ctx, loadErrs, stats.CategoryPlugins, registryPath, err)
		return config
	}

	for _, entry := range registryEntries(parsed) {
		l.stats.Record(stats.CategoryPlugins, stats.Detected)

		name := pluginName(entry)
		if name == "" {
			l.stats.Record(stats.CategoryPlugins, stats.Skipped)
			continue
		}

		dir := pluginDir(entry.descriptor)
		if dir == "" {
			logger.G(ctx).WithField("plugin", name).Debug("plugin descriptor has no directory, skipping")
			l.stats.Record(stats.CategoryPlugins, stats.Skipped)
			continue
		}
		if _, err := os.Stat(dir); err != nil {
			logger.G(ctx).WithField("plugin", name).WithField("dir", dir).Debug("plugin directory missing on disk, skipping")
			l.stats.Record(stats.CategoryPlugins, stats.Skipped)
			continue
		}

		pluginConfig, err := l.loadPlugin(ctx, name, dir)
		if err != nil {
			*loadErrs = multierror.Append(*loadErrs, err)
		}
		config.Append(pluginConfig)

		l.stats.Record(stats.CategoryPlugins, stats.Converted)
	}

	return config
}

// loadPlugin loads one plugin tree and rewrites its entity names into the
// plugin namespace. The returned error aggregates the nested loader's
// per-file failures.
func (l *Loader) loadPlugin(ctx context.Context, name, dir string) (*Config, error) {
	nested := &Loader{
		baseDir:   dir,
		scope:     l.scope,
		homeDir:   l.homeDir,
		overrides: l.overrides,
		stats:     l.stats,
		depth:     l.depth + 1,
	}

	config, loadErr := nested.Load(ctx)

	namespaced := NewConfig()
	for _, agent := range config.Agents {
		agent.Name = name + ":" + agent.Name
		namespaced.Agents = append(namespaced.Agents, agent)
	}
	for _, command := range config.Commands {
		command.Name = name + ":" + command.Name
		if command.Agent != "" {
			command.Agent = name + ":" + command.Agent
		}
		namespaced.Commands = append(namespaced.Commands, command)
	}
	for _, skill := range config.Skills {
		skill.Name = name + ":" + skill.Name
		namespaced.Skills = append(namespaced.Skills, skill)
	}
	for serverName, server := range config.MCPServers {
		namespaced.MCPServers[name+":"+serverName] = server
	}

	l.loadPluginManifestMCP(ctx, name, dir, namespaced.MCPServers)

	return namespaced, loadErr
}

// loadPluginManifestMCP pulls MCP servers declared in the plugin's
// .claude-plugin/plugin.json manifest, with ${CLAUDE_PLUGIN_ROOT} resolved to
// the plugin directory. Disabled entries are dropped here; a plugin cannot
// tombstone servers it does not ship.
func (l *Loader) loadPluginManifestMCP(ctx context.Context, name, dir string, servers map[string]MCPServer) {
	manifestPath := filepath.Join(dir, ".claude-plugin", "plugin.json")
	raw, err := jsonc.Load(manifestPath)
	if err != nil {
		logger.G(ctx).WithError(err).WithField("path", manifestPath).Warn("failed to read plugin manifest")
		return
	}

	overrides := map[string]string{pluginRootVar: dir}
	for k, v := range l.overrides {
		overrides[k] = v
	}

	expanded, _ := expand.Expand(raw, overrides).(map[string]any)
	serversRaw, _ := expanded["mcpServers"].(map[string]any)

	for serverName, value := range serversRaw {
		entry, ok := value.(map[string]any)
		if !ok {
			l.stats.Record(stats.CategoryMCP, stats.Failed)
			continue
		}

		server, err := DecodeMCPServer(entry)
		if err != nil {
			logger.G(ctx).WithError(err).WithField("server", serverName).WithField("path", manifestPath).
				Warn("invalid MCP server in plugin manifest")
			l.stats.Record(stats.CategoryMCP, stats.Failed)
			continue
		}
		if server.Disabled {
			l.stats.Record(stats.CategoryMCP, stats.Skipped)
			continue
		}

		servers[name+":"+serverName] = server
		l.stats.Record(stats.CategoryMCP, stats.Detected)
	}
}

// registryEntries flattens both historical registry shapes: a flat list of
// descriptors, and the version-2 mapping of "name@marketplace" to a list of
// descriptor variants, of which the first is used.
func registryEntries(parsed any) []pluginEntry {
	var entries []pluginEntry

	switch root := parsed.(type) {
	case map[string]any:
		switch plugins := root["plugins"].(type) {
		case []any:
			for _, item := range plugins {
				if descriptor, ok := item.(map[string]any); ok {
					entries = append(entries, pluginEntry{descriptor: descriptor})
				}
			}
		case map[string]any:
			for key, value := range plugins {
				variants, ok := value.([]any)
				if !ok || len(variants) == 0 {
					continue
				}
				if descriptor, ok := variants[0].(map[string]any); ok {
					entries = append(entries, pluginEntry{key: key, descriptor: descriptor})
				}
			}
		}
	case []any:
		for _, item := range root {
			if descriptor, ok := item.(map[string]any); ok {
				entries = append(entries, pluginEntry{descriptor: descriptor})
			}
		}
	}

	return entries
}

// pluginName resolves a plugin's name from its descriptor fields, falling
// back to the registry key with any @marketplace suffix trimmed.
func pluginName(entry pluginEntry) string {
	for _, field := range []string{"name", "id", "slug"} {
		if v, ok := entry.descriptor[field].(string); ok && v != "" {
			return v
		}
	}
	if entry.key != "" {
		name, _, _ := strings.Cut(entry.key, "@")
		return name
	}
	return ""
}

func pluginDir(descriptor map[string]any) string {
	for _, field := range []string{"directory", "path", "installPath"} {
		if v, ok := descriptor[field].(string); ok && v != "" {
			return v
		}
	}
	return ""
}
