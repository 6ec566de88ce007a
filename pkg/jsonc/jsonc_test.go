package jsonc

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStripCommentsLineAndBlock(t *testing.T) {
	text := `
{
    // This is a line comment
    "key": "value",
    /* This is a block
       comment */
    "url": "http://example.com"
}
`
	cleaned := StripComments(text)

	var data map[string]any
	require.NoError(t, json.Unmarshal([]byte(cleaned), &data))
	assert.Equal(t, "value", data["key"])
	assert.Equal(t, "http://example.com", data["url"])
}

func TestStripCommentsPreservesStringsWithCommentSequences(t *testing.T) {
	text := `{"url": "https://example.com/path", "note": "a /* not a comment */ b"}`
	cleaned := StripComments(text)
	assert.Equal(t, text, cleaned)

	var data map[string]any
	require.NoError(t, json.Unmarshal([]byte(cleaned), &data))
	assert.Equal(t, "a /* not a comment */ b", data["note"])
}

func TestStripCommentsEscapedQuoteInString(t *testing.T) {
	text := `{"key": "value with \" // still inside"}`
	cleaned := StripComments(text)
	assert.Equal(t, text, cleaned)

	var data map[string]any
	require.NoError(t, json.Unmarshal([]byte(cleaned), &data))
	assert.Equal(t, `value with " // still inside`, data["key"])
}

func TestStripCommentsKeepsNewlineAfterLineComment(t *testing.T) {
	cleaned := StripComments("1 // comment\n2")
	assert.Equal(t, "1 \n2", cleaned)
}

func TestStripCommentsUnterminatedBlockComment(t *testing.T) {
	cleaned := StripComments(`{"a": 1} /* trailing`)
	assert.Equal(t, `{"a": 1} `, cleaned)
}

func TestLoadMissingFile(t *testing.T) {
	data, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestLoadCommentOnlyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.jsonc")
	require.NoError(t, os.WriteFile(path, []byte("// nothing here\n/* at all */\n"), 0o644))

	data, err := Load(path)
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestLoadJSONC(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.jsonc")
	content := `{
	// servers
	"mcpServers": {
		"github": {"command": "gh-mcp"} /* default */
	}
}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	data, err := Load(path)
	require.NoError(t, err)

	servers, ok := data["mcpServers"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, servers, "github")
}

func TestLoadInvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"unclosed":`), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}
