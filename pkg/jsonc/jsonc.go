// Package jsonc reads JSON-with-comments files. Assistant configuration files
// such as .mcp.json are frequently hand-edited and carry // and /* */
// comments, which must be stripped before strict JSON parsing.
package jsonc

import (
	"encoding/json"
	"os"
	"strings"

	"github.com/pkg/errors"
)

// StripComments removes // and /* */ comments from JSONC text while preserving
// comment-like sequences inside string literals. Line comments are consumed up
// to their terminating newline; the newline itself is kept so that line
// numbers in downstream JSON errors stay meaningful. Block comments are
// dropped entirely. Block comments do not nest.
func StripComments(text string) string {
	var (
		b              strings.Builder
		inStr          bool
		inLineComment  bool
		inBlockComment bool
		escaped        bool
	)
	b.Grow(len(text))

	for i := 0; i < len(text); i++ {
		ch := text[i]
		var next byte
		if i+1 < len(text) {
			next = text[i+1]
		}

		switch {
		case inLineComment:
			if ch == '\n' {
				inLineComment = false
				b.WriteByte(ch)
			}
		case inBlockComment:
			if ch == '*' && next == '/' {
				inBlockComment = false
				i++
			}
		case inStr:
			b.WriteByte(ch)
			switch {
			case ch == '\\' && !escaped:
				escaped = true
			case ch == '"' && !escaped:
				inStr = false
			default:
				escaped = false
			}
		case ch == '/' && next == '/':
			inLineComment = true
			i++
		case ch == '/' && next == '*':
			inBlockComment = true
			i++
		case ch == '"':
			inStr = true
			b.WriteByte(ch)
		default:
			b.WriteByte(ch)
		}
	}

	return b.String()
}

// Load reads a JSON/JSONC file into a generic map. A missing file or a file
// that is empty after comment stripping yields an empty map, not an error.
func Load(path string) (map[string]any, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]any{}, nil
		}
		return nil, errors.Wrapf(err, "failed to read %s", path)
	}

	cleaned := StripComments(string(raw))
	if strings.TrimSpace(cleaned) == "" {
		return map[string]any{}, nil
	}

	var result map[string]any
	if err := json.Unmarshal([]byte(cleaned), &result); err != nil {
		return nil, errors.Wrapf(err, "invalid JSON in %s", path)
	}
	return result, nil
}
