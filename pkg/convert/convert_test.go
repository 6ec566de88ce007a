package convert

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/claude-migrate/claude-migrate/pkg/backup"
	"github.com/claude-migrate/claude-migrate/pkg/claude"
	"github.com/claude-migrate/claude-migrate/pkg/stats"
)

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"plain name", "deploy", "deploy"},
		{"plugin namespace", "my-plugin:review", "my-plugin_review"},
		{"path separators", "ops/deploy", "ops_deploy"},
		{"windows unsafe chars", `a<b>c:d"e\f|g?h*i`, "a_b_c_d_e_f_g_h_i"},
		{"surrounding whitespace", "  deploy  ", "deploy"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, sanitizeFilename(tt.input))
		})
	}
}

func TestCleanDescription(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"empty", "", ""},
		{"single line untouched", "Deploys the app", "Deploys the app"},
		{"newlines collapsed", "Deploys\nthe app\n", "Deploys the app"},
		{"double quotes stripped", `"Deploys the app"`, "Deploys the app"},
		{"single quotes stripped", "'Deploys the app'", "Deploys the app"},
		{"only leading quote kept", `"Deploys the app`, `"Deploys the app`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, cleanDescription(tt.input))
		})
	}
}

// newTestBackups builds a backup manager rooted in a temp dir so converter
// tests never touch the user's home directory.
func newTestBackups(t *testing.T, s *stats.Statistics) *backup.Manager {
	t.Helper()
	m, err := backup.NewManager(
		backup.WithRoot(t.TempDir()),
		backup.WithWorkDir(t.TempDir()),
		backup.WithStats(s),
	)
	require.NoError(t, err)
	return m
}

func newTestOpenCode(t *testing.T, config *claude.Config) (*OpenCode, *stats.Statistics) {
	t.Helper()
	s := stats.New()
	c, err := NewOpenCode(config, WithStats(s), WithBackups(newTestBackups(t, s)))
	require.NoError(t, err)
	return c, s
}

func newTestCopilot(t *testing.T, config *claude.Config) (*Copilot, *stats.Statistics) {
	t.Helper()
	s := stats.New()
	c, err := NewCopilot(config, WithStats(s), WithBackups(newTestBackups(t, s)))
	require.NoError(t, err)
	return c, s
}
