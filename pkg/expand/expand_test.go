package expand

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExpandString(t *testing.T) {
	assert.Equal(t, "Hello World", Expand("Hello ${NAME}", map[string]string{"NAME": "World"}))
	assert.Equal(t, "No var here", Expand("No var here", nil))
	assert.Equal(t, "", Expand("${MISSING}", nil))
	assert.Equal(t, "default", Expand("${MISSING:-default}", nil))
}

func TestExpandPrefersOverridesOverEnv(t *testing.T) {
	t.Setenv("CLAUDE_MIGRATE_TEST_VAR", "from-env")

	assert.Equal(t, "from-env", Expand("${CLAUDE_MIGRATE_TEST_VAR}", nil))
	assert.Equal(t, "from-override", Expand("${CLAUDE_MIGRATE_TEST_VAR}", map[string]string{
		"CLAUDE_MIGRATE_TEST_VAR": "from-override",
	}))
}

func TestExpandEnvBeatsDefault(t *testing.T) {
	t.Setenv("CLAUDE_MIGRATE_TEST_VAR", "from-env")
	assert.Equal(t, "from-env", Expand("${CLAUDE_MIGRATE_TEST_VAR:-fallback}", nil))
}

func TestExpandSlice(t *testing.T) {
	input := []any{"${VAR1}", "static", "${VAR2:-def}"}
	result := Expand(input, map[string]string{"VAR1": "val1"})
	assert.Equal(t, []any{"val1", "static", "def"}, result)
}

func TestExpandMap(t *testing.T) {
	input := map[string]any{
		"key1": "${VAR1}",
		"key2": "static",
		"nested": map[string]any{
			"key3": "${VAR1:-x}",
		},
	}
	result := Expand(input, map[string]string{"VAR1": "val1"})
	assert.Equal(t, map[string]any{
		"key1": "val1",
		"key2": "static",
		"nested": map[string]any{
			"key3": "val1",
		},
	}, result)
}

func TestExpandPassThroughTypes(t *testing.T) {
	assert.Equal(t, 42, Expand(42, nil))
	assert.Equal(t, true, Expand(true, nil))
	assert.Nil(t, Expand(nil, nil))
}

func TestExpandMultiplePlaceholdersInOneString(t *testing.T) {
	result := Expand("${A}/${B:-two}/${C}", map[string]string{"A": "one"})
	assert.Equal(t, "one/two/", result)
}
