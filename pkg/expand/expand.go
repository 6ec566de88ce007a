// Package expand substitutes shell-style ${VAR} and ${VAR:-default}
// placeholders in configuration values. MCP server definitions use these for
// machine-specific paths such as ${CLAUDE_PLUGIN_ROOT}.
package expand

import (
	"os"
	"regexp"
	"strings"
)

var placeholderRe = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// Expand recursively substitutes ${VAR} and ${VAR:-default} placeholders in
// strings, slices, and maps. Other value types pass through unchanged.
// Resolution order per placeholder: the overrides table, then the process
// environment, then the inline default. A placeholder that resolves nowhere
// and carries no default collapses to the empty string; expansion never fails
// and never leaves a placeholder literal.
func Expand(value any, overrides map[string]string) any {
	switch v := value.(type) {
	case string:
		return expandString(v, overrides)
	case []any:
		result := make([]any, len(v))
		for i, item := range v {
			result[i] = Expand(item, overrides)
		}
		return result
	case map[string]any:
		result := make(map[string]any, len(v))
		for k, item := range v {
			result[k] = Expand(item, overrides)
		}
		return result
	default:
		return value
	}
}

func expandString(s string, overrides map[string]string) string {
	// Fast path for the common case of a single well-known override such as
	// the plugin root path.
	for k, v := range overrides {
		s = strings.ReplaceAll(s, "${"+k+"}", v)
	}

	return placeholderRe.ReplaceAllStringFunc(s, func(match string) string {
		groups := placeholderRe.FindStringSubmatch(match)
		name := groups[1]

		if val, ok := overrides[name]; ok && val != "" {
			return val
		}
		if val, ok := os.LookupEnv(name); ok && val != "" {
			return val
		}
		if strings.HasPrefix(match, "${"+name+":-") {
			return groups[2]
		}
		return ""
	})
}
