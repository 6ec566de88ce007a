// Package frontmatter parses the delimited metadata block at the start of
// agent, command, and skill Markdown files. Source metadata is hand-authored
// and frequently contains unescaped punctuation that breaks strict YAML, so
// parsing is best-effort: a strict structured pass first, then field-targeted
// regex recovery for the handful of keys the converters actually need.
// Parsing never fails; the worst outcome is empty metadata plus the original
// content as body.
package frontmatter

import (
	"bytes"
	"context"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	meta "github.com/yuin/goldmark-meta"
	"github.com/yuin/goldmark/parser"

	"github.com/claude-migrate/claude-migrate/pkg/logger"
)

const delimiter = "---"

var (
	nameRe        = regexp.MustCompile(`(?m)^\s*name:[ \t]*(.+)$`)
	toolsListRe   = regexp.MustCompile(`(?s)tools:\s*\[(.*?)\]`)
	toolsLineRe   = regexp.MustCompile(`tools:[ \t]*(.+)`)
	identifierRe  = regexp.MustCompile(`^[a-zA-Z0-9_-]+:`)
	knownKeyStops = []string{"mode:", "model:", "temperature:", "tools:", "agent:"}
)

// Parse splits content into its frontmatter metadata and body. Content that
// does not begin with a --- delimiter (after leading whitespace) is valid,
// metadata-less input: the metadata map is empty and the body is the content
// unchanged. Unrecoverable metadata degrades the same way rather than
// returning an error.
func Parse(ctx context.Context, content string) (metadata map[string]any, body string) {
	defer func() {
		if r := recover(); r != nil {
			logger.G(ctx).WithField("panic", r).Warn("frontmatter parsing panicked, treating content as metadata-less")
			metadata = map[string]any{}
			body = content
		}
	}()

	stripped := strings.TrimLeft(content, " \t\r\n")
	if !strings.HasPrefix(stripped, delimiter) {
		return map[string]any{}, content
	}

	parts := strings.SplitN(stripped, delimiter, 3)
	if len(parts) < 3 {
		// Missing closing delimiter.
		return map[string]any{}, content
	}

	// Only the metadata block goes through goldmark; rendering the body would
	// be wasted work on every file.
	if metadata := parseStrict(delimiter + parts[1] + delimiter + "\n"); metadata != nil {
		return metadata, parts[2]
	}

	logger.G(ctx).Debug("strict frontmatter parsing failed, falling back to field extraction")
	return parseFallback(parts[1]), parts[2]
}

// parseStrict runs the goldmark metadata extension over a reassembled
// frontmatter-only document and returns nil when the block is not valid YAML.
func parseStrict(content string) map[string]any {
	md := goldmark.New(
		goldmark.WithExtensions(meta.Meta),
	)

	var buf bytes.Buffer
	pctx := parser.NewContext()
	if err := md.Convert([]byte(content), &buf, parser.WithContext(pctx)); err != nil {
		return nil
	}

	metaData := meta.Get(pctx)
	if metaData == nil {
		return nil
	}

	result := make(map[string]any, len(metaData))
	for k, v := range metaData {
		result[k] = normalizeValue(v)
	}
	return result
}

// normalizeValue rewrites the yaml.v2 map[interface{}]interface{} shape the
// metadata extension produces into map[string]any so callers can index by
// string keys.
func normalizeValue(v any) any {
	switch val := v.(type) {
	case map[any]any:
		result := make(map[string]any, len(val))
		for k, item := range val {
			if key, ok := k.(string); ok {
				result[key] = normalizeValue(item)
			}
		}
		return result
	case map[string]any:
		result := make(map[string]any, len(val))
		for k, item := range val {
			result[k] = normalizeValue(item)
		}
		return result
	case []any:
		result := make([]any, len(val))
		for i, item := range val {
			result[i] = normalizeValue(item)
		}
		return result
	default:
		return v
	}
}

// parseFallback recovers the fixed set of known fields from a metadata block
// that strict parsing rejected. Fields that cannot be recovered are simply
// absent, never inferred.
func parseFallback(block string) map[string]any {
	metadata := map[string]any{}

	if m := nameRe.FindStringSubmatch(block); m != nil {
		metadata["name"] = strings.TrimSpace(m[1])
	}

	if desc, ok := extractDescription(block); ok {
		metadata["description"] = desc
	}

	if tools, ok := extractTools(block); ok {
		metadata["tools"] = tools
	}

	return metadata
}

// extractDescription finds the description: key and accumulates its value,
// including continuation lines, until the next recognized key begins.
func extractDescription(block string) (string, bool) {
	lines := strings.Split(block, "\n")
	for i, line := range lines {
		if !strings.HasPrefix(strings.TrimSpace(line), "description:") {
			continue
		}

		_, value, _ := strings.Cut(line, ":")
		value = strings.TrimSpace(value)

		var descLines []string
		if value != "" {
			descLines = append(descLines, value)
		}

		for j := i + 1; j < len(lines); j++ {
			next := strings.TrimSpace(lines[j])
			if next != "" && (startsWithKnownKey(next) || identifierRe.MatchString(next)) {
				break
			}
			descLines = append(descLines, lines[j])
		}

		if len(descLines) == 0 {
			return "", false
		}
		return strings.TrimSpace(strings.Join(descLines, "\n")), true
	}
	return "", false
}

func startsWithKnownKey(line string) bool {
	for _, key := range knownKeyStops {
		if strings.HasPrefix(line, key) {
			return true
		}
	}
	return false
}

// extractTools parses either a bracketed list ([a, b, c], quotes stripped per
// item) or a bare comma-separated value on the tools: line.
func extractTools(block string) ([]any, bool) {
	if m := toolsListRe.FindStringSubmatch(block); m != nil {
		return splitToolItems(m[1], true), true
	}

	if m := toolsLineRe.FindStringSubmatch(block); m != nil {
		value := strings.TrimSpace(m[1])
		if strings.HasPrefix(value, "[") {
			return nil, false
		}
		return splitToolItems(value, false), true
	}

	return nil, false
}

func splitToolItems(s string, stripQuotes bool) []any {
	var items []any
	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		if stripQuotes {
			item = strings.Trim(item, `'"`)
			item = strings.TrimSpace(item)
		}
		if item != "" {
			items = append(items, item)
		}
	}
	return items
}
