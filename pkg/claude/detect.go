package claude

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// Scope identifies which configuration tree a load resolved to.
type Scope string

// Configuration scopes
const (
	ScopeProject Scope = "project"
	ScopeUser    Scope = "user"
)

const configDirName = ".claude"

// SetupInstructions is the message shown when no configuration tree exists
// anywhere.
func SetupInstructions() string {
	return strings.TrimSpace(`
No Claude Code configuration found.

Expected one of:
  - Project config: ./.claude/
  - User config:    ~/.claude/

To create a config, install and run Claude Code at least once.
`)
}

// DetectConfig finds the configuration tree to load. A .claude directory in
// the working directory wins (project scope); otherwise ~/.claude is used
// (user scope). Neither existing is an error carrying setup instructions.
func DetectConfig(cwd, home string) (string, Scope, error) {
	projectDir := filepath.Join(cwd, configDirName)
	if _, err := os.Stat(projectDir); err == nil {
		return projectDir, ScopeProject, nil
	}

	userDir := filepath.Join(home, configDirName)
	if _, err := os.Stat(userDir); err == nil {
		return userDir, ScopeUser, nil
	}

	return "", "", errors.New(SetupInstructions())
}

// ConfigForScope resolves the configuration tree for an explicitly requested
// scope. Unlike DetectConfig it does not fall back: a missing tree for the
// requested scope is an error.
func ConfigForScope(scope Scope, cwd, home string) (string, error) {
	switch scope {
	case ScopeProject:
		configDir := filepath.Join(cwd, configDirName)
		if _, err := os.Stat(configDir); err != nil {
			return "", errors.Errorf(
				"project scope requested but %s directory not found; create it first or use --scope user", configDir)
		}
		return configDir, nil
	case ScopeUser:
		configDir := filepath.Join(home, configDirName)
		if _, err := os.Stat(configDir); err != nil {
			return "", errors.Errorf(
				"user scope requested but %s directory not found; run Claude Code at least once to create it", configDir)
		}
		return configDir, nil
	default:
		return "", errors.Errorf("unknown scope %q", scope)
	}
}

// DefaultOutputDir returns the conventional output directory for a target
// format and scope. User-level Copilot exports stay out of the profile under
// ./copilot_export.
func DefaultOutputDir(target string, scope Scope, cwd, home string) string {
	if target == "opencode" {
		if scope == ScopeProject {
			return filepath.Join(cwd, ".opencode")
		}
		return filepath.Join(home, ".config", "opencode")
	}

	if scope == ScopeProject {
		return cwd
	}
	return filepath.Join(cwd, "copilot_export")
}
