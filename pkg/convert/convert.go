// Package convert renders a loaded configuration into the on-disk layout of a
// target tool. Each converter walks the entity model, applies the shared
// backup/merge policy per output file, and records outcomes in the run's
// statistics accumulator.
package convert

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/claude-migrate/claude-migrate/pkg/backup"
	"github.com/claude-migrate/claude-migrate/pkg/claude"
	"github.com/claude-migrate/claude-migrate/pkg/logger"
	"github.com/claude-migrate/claude-migrate/pkg/stats"
)

// Format selects the OpenCode output layout.
type Format string

// OpenCode output layouts
const (
	// FormatDir writes per-entity markdown files plus an opencode.jsonc.
	FormatDir Format = "dir"
	// FormatJSON writes a single monolithic opencode.json.
	FormatJSON Format = "json"
)

// ValidFormat reports whether the format name is recognized.
func ValidFormat(f Format) bool {
	return f == FormatDir || f == FormatJSON
}

// PlannedFile is one output path a conversion would touch, used for dry-run
// previews.
type PlannedFile struct {
	Path     string
	Category stats.Category
	Decision backup.Decision
}

// base carries the dependencies shared by all converters.
type base struct {
	config  *claude.Config
	stats   *stats.Statistics
	backups *backup.Manager
}

// Option configures a converter.
type Option func(*base)

// WithStats attaches a statistics accumulator.
func WithStats(s *stats.Statistics) Option {
	return func(b *base) { b.stats = s }
}

// WithBackups sets the backup manager used before overwrites.
func WithBackups(m *backup.Manager) Option {
	return func(b *base) { b.backups = m }
}

func newBase(config *claude.Config, opts ...Option) (base, error) {
	b := base{config: config}

	for _, opt := range opts {
		opt(&b)
	}

	if b.stats == nil {
		b.stats = stats.New()
	}
	if b.backups == nil {
		m, err := backup.NewManager(backup.WithStats(b.stats))
		if err != nil {
			return base{}, errors.Wrap(err, "failed to create backup manager")
		}
		b.backups = m
	}

	return b, nil
}

// write persists one output file according to an already-made decision. An
// Overwrite takes a backup first; a failed backup is logged but does not block
// the write.
func (b *base) write(ctx context.Context, path string, content []byte, decision backup.Decision) error {
	if decision == backup.Overwrite {
		if _, err := b.backups.Backup(ctx, path); err != nil {
			logger.G(ctx).WithError(err).WithField("path", path).Warn("failed to back up existing file")
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrapf(err, "failed to create directory for %s", path)
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return errors.Wrapf(err, "failed to write %s", path)
	}
	return nil
}

var unsafeFilenameRe = regexp.MustCompile(`[<>:"/\\|?*]`)

// sanitizeFilename replaces characters that are unsafe in filenames with
// underscores. Plugin-namespaced names contain a colon, so every entity name
// passes through here before becoming a path segment.
func sanitizeFilename(name string) string {
	return strings.TrimSpace(unsafeFilenameRe.ReplaceAllString(name, "_"))
}

// cleanDescription collapses a description to a single line and strips
// surrounding quotes so it always survives frontmatter round-trips.
func cleanDescription(desc string) string {
	if desc == "" {
		return ""
	}
	cleaned := strings.TrimSpace(strings.ReplaceAll(desc, "\n", " "))
	if len(cleaned) >= 2 {
		if (strings.HasPrefix(cleaned, `"`) && strings.HasSuffix(cleaned, `"`)) ||
			(strings.HasPrefix(cleaned, "'") && strings.HasSuffix(cleaned, "'")) {
			cleaned = cleaned[1 : len(cleaned)-1]
		}
	}
	return cleaned
}

// renderFrontmatter marshals metadata to YAML without the trailing newline
// yaml.v3 appends.
func renderFrontmatter(meta any) (string, error) {
	out, err := yaml.Marshal(meta)
	if err != nil {
		return "", errors.Wrap(err, "failed to marshal frontmatter")
	}
	return strings.TrimSpace(string(out)), nil
}
