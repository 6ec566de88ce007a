// Package claude loads an assistant configuration tree (agents, commands,
// skills, MCP servers, installed plugins) into an in-memory entity model that
// the output converters consume. Entities are constructed once per load and
// never mutated afterwards except for name rewriting during plugin
// namespacing.
package claude

import (
	"sort"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
)

// Agent is a named system-prompt definition loaded from agents/*.md.
type Agent struct {
	Name        string
	Description string
	Model       string
	Tools       []string
	Prompt      string
	Temperature *float64
	MaxSteps    *int
}

// Command is a named prompt template loaded from commands/*.md. Body is
// always non-empty; empty-body commands are dropped at load time.
type Command struct {
	Name         string
	Description  string
	Body         string
	Model        string
	Agent        string
	ArgumentHint string
	Subtask      bool
}

// Skill is a directory-packaged capability loaded from skills/<name>/SKILL.md.
// Dir points at the source directory so converters can copy auxiliary files
// verbatim.
type Skill struct {
	Name        string
	Description string
	Body        string
	License     string
	Dir         string
}

// ServerType enumerates the MCP transport kinds that appear in source and
// target configs.
type ServerType string

// MCP server types
const (
	ServerStdio  ServerType = "stdio"
	ServerSSE    ServerType = "sse"
	ServerHTTP   ServerType = "http"
	ServerLocal  ServerType = "local"
	ServerRemote ServerType = "remote"
)

var validServerTypes = map[ServerType]bool{
	ServerStdio:  true,
	ServerSSE:    true,
	ServerHTTP:   true,
	ServerLocal:  true,
	ServerRemote: true,
}

// MCPServer is one entry of the mcpServers mapping. Command accepts both a
// bare string and a list in source configs; CommandParts normalizes it.
// Disabled is distinct from Enabled: a disabled server acts as a tombstone
// that removes any same-named entry when merging into existing output.
type MCPServer struct {
	Type        ServerType        `mapstructure:"type"`
	Command     any               `mapstructure:"command"`
	Args        []string          `mapstructure:"args"`
	URL         string            `mapstructure:"url"`
	Env         map[string]string `mapstructure:"env"`
	Environment map[string]string `mapstructure:"environment"`
	Headers     map[string]string `mapstructure:"headers"`
	Enabled     bool              `mapstructure:"enabled"`
	Disabled    bool              `mapstructure:"disabled"`
}

// DecodeMCPServer builds an MCPServer from a raw JSONC mapping. The type
// defaults to stdio and Enabled defaults to true when absent.
func DecodeMCPServer(raw map[string]any) (MCPServer, error) {
	server := MCPServer{Enabled: true}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &server,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return MCPServer{}, errors.Wrap(err, "failed to build MCP server decoder")
	}
	if err := decoder.Decode(raw); err != nil {
		return MCPServer{}, errors.Wrap(err, "invalid MCP server config")
	}

	if server.Type == "" {
		server.Type = ServerStdio
	}
	if !validServerTypes[server.Type] {
		return MCPServer{}, errors.Errorf("unknown MCP server type %q", server.Type)
	}

	return server, nil
}

// CommandParts returns the command as a list regardless of whether the source
// declared a string or a list.
func (s MCPServer) CommandParts() []string {
	switch v := s.Command.(type) {
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	case []string:
		return v
	case []any:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			if str, ok := item.(string); ok {
				parts = append(parts, str)
			}
		}
		return parts
	default:
		return nil
	}
}

// EffectiveEnv returns the environment variables for the server. env and
// environment name the same concept in the wild; env wins when both are set.
func (s MCPServer) EffectiveEnv() map[string]string {
	if len(s.Env) > 0 {
		return s.Env
	}
	return s.Environment
}

// Remote reports whether the server is reached over a URL transport.
func (s MCPServer) Remote() bool {
	return s.Type == ServerHTTP || s.Type == ServerSSE || s.Type == ServerRemote
}

// Config is the flat in-memory collection produced by one load pass.
type Config struct {
	Agents     []Agent
	Commands   []Command
	Skills     []Skill
	MCPServers map[string]MCPServer
}

// NewConfig returns an empty configuration.
func NewConfig() *Config {
	return &Config{MCPServers: make(map[string]MCPServer)}
}

// Append merges another configuration into this one. Slice entities are
// appended in order; MCP servers with colliding names are overwritten by the
// later load (insertion order is overwrite order).
func (c *Config) Append(other *Config) {
	c.Agents = append(c.Agents, other.Agents...)
	c.Commands = append(c.Commands, other.Commands...)
	c.Skills = append(c.Skills, other.Skills...)
	for name, server := range other.MCPServers {
		c.MCPServers[name] = server
	}
}

// NormalizeTools collapses the polymorphic tools field (list of names,
// name→enabled mapping, or comma-separated string) into an ordered list of
// enabled tool names. Mapping keys are sorted since source order is lost.
func NormalizeTools(value any) []string {
	switch v := value.(type) {
	case nil:
		return nil
	case []string:
		return trimNonEmpty(v)
	case []any:
		var tools []string
		for _, item := range v {
			if s, ok := item.(string); ok {
				if trimmed := strings.TrimSpace(s); trimmed != "" {
					tools = append(tools, trimmed)
				}
			}
		}
		return tools
	case map[string]any:
		var tools []string
		for name, enabled := range v {
			if on, ok := enabled.(bool); ok && !on {
				continue
			}
			tools = append(tools, name)
		}
		sort.Strings(tools)
		return tools
	case map[string]bool:
		var tools []string
		for name, enabled := range v {
			if enabled {
				tools = append(tools, name)
			}
		}
		sort.Strings(tools)
		return tools
	case string:
		return trimNonEmpty(strings.Split(v, ","))
	default:
		return nil
	}
}

func trimNonEmpty(items []string) []string {
	var result []string
	for _, item := range items {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

// IsPluginEntity reports whether a name carries a plugin namespace prefix.
func IsPluginEntity(name string) bool {
	return strings.Contains(name, ":")
}
