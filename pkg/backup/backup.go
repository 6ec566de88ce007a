// Package backup implements the write policy shared by the output
// converters: decide per file whether to create, skip, or overwrite, and take
// a rolling backup of any file about to be overwritten. Backups live under a
// centralized root so that repeated conversions never destroy user edits.
package backup

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/claude-migrate/claude-migrate/pkg/logger"
	"github.com/claude-migrate/claude-migrate/pkg/stats"
)

// Decision is the per-file outcome of the merge policy.
type Decision int

// Write decisions
const (
	// Create means the file does not exist yet and will be written.
	Create Decision = iota
	// Overwrite means the existing file will be replaced after a backup.
	Overwrite
	// Skip means merge mode left the existing file untouched.
	Skip
)

// Keep is the number of backups retained per file identity.
const Keep = 5

// Manager takes and prunes backups under a centralized root.
type Manager struct {
	root    string
	workDir string
	keep    int
	stats   *stats.Statistics
}

// Option configures a Manager.
type Option func(*Manager)

// WithRoot sets the backup root directory.
func WithRoot(root string) Option {
	return func(m *Manager) { m.root = root }
}

// WithWorkDir sets the directory that backup subpaths are made relative to.
func WithWorkDir(dir string) Option {
	return func(m *Manager) { m.workDir = dir }
}

// WithKeep sets how many backups are retained per file identity.
func WithKeep(n int) Option {
	return func(m *Manager) { m.keep = n }
}

// WithStats attaches a statistics accumulator that records backup outcomes.
func WithStats(s *stats.Statistics) Option {
	return func(m *Manager) { m.stats = s }
}

// NewManager creates a backup manager. Without options the root defaults to
// ~/.claude-migrate/backups and paths are relativized against the current
// working directory.
func NewManager(opts ...Option) (*Manager, error) {
	m := &Manager{keep: Keep}

	for _, opt := range opts {
		opt(m)
	}

	if m.root == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, errors.Wrap(err, "failed to get user home directory")
		}
		m.root = filepath.Join(homeDir, ".claude-migrate", "backups")
	}

	if m.workDir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, errors.Wrap(err, "failed to get working directory")
		}
		m.workDir = cwd
	}

	return m, nil
}

// Root returns the backup root directory.
func (m *Manager) Root() string {
	return m.root
}

// Decide applies the merge policy for one output file. A missing file is
// always created; an existing file is skipped in merge mode and overwritten
// (after backup) otherwise.
func Decide(path string, merge bool) Decision {
	if _, err := os.Stat(path); err != nil {
		return Create
	}
	if merge {
		return Skip
	}
	return Overwrite
}

// Backup copies path into the backup root before it gets overwritten and
// prunes older backups of the same file. A nonexistent source is a no-op
// returning an empty path. The subdirectory mirrors the file's location
// relative to the work directory, with a user_ fallback segment for files
// outside it.
func (m *Manager) Backup(ctx context.Context, path string) (string, error) {
	log := logger.G(ctx).WithField("path", path)

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", errors.Wrapf(err, "failed to stat %s", path)
	}

	rel, err := filepath.Rel(m.workDir, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		rel = "user_" + filepath.Base(path)
	}

	subdir := filepath.Join(m.root, filepath.Dir(rel))
	if err := os.MkdirAll(subdir, 0o755); err != nil {
		m.recordFailed()
		return "", errors.Wrapf(err, "failed to create backup directory %s", subdir)
	}

	base := filepath.Base(rel)
	suffix := filepath.Ext(base)
	stem := strings.TrimSuffix(base, suffix)

	now := time.Now()
	timestamp := fmt.Sprintf("%s_%06d", now.Format("20060102_150405"), now.Nanosecond()/1000)
	backupPath := filepath.Join(subdir, fmt.Sprintf("%s.backup_%s%s", stem, timestamp, suffix))

	if err := copyFile(path, backupPath, info.Mode()); err != nil {
		m.recordFailed()
		return "", errors.Wrapf(err, "failed to back up %s", path)
	}

	if m.stats != nil {
		m.stats.Record(stats.CategoryBackups, stats.Converted)
	}
	log.WithField("backup", backupPath).Debug("backed up file before overwrite")

	m.pruneOld(ctx, subdir, stem)
	return backupPath, nil
}

func (m *Manager) recordFailed() {
	if m.stats != nil {
		m.stats.Record(stats.CategoryBackups, stats.Failed)
	}
}

// pruneOld keeps only the most recently modified backups sharing a stem.
// Deletion failures are logged, never fatal.
func (m *Manager) pruneOld(ctx context.Context, dir, stem string) {
	matches, err := filepath.Glob(filepath.Join(dir, stem+".backup_*"))
	if err != nil || len(matches) <= m.keep {
		return
	}

	type backupEntry struct {
		path    string
		modTime time.Time
	}

	entries := make([]backupEntry, 0, len(matches))
	for _, match := range matches {
		info, err := os.Stat(match)
		if err != nil {
			continue
		}
		entries = append(entries, backupEntry{path: match, modTime: info.ModTime()})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].modTime.Equal(entries[j].modTime) {
			return entries[i].path > entries[j].path
		}
		return entries[i].modTime.After(entries[j].modTime)
	})

	for _, entry := range entries[min(m.keep, len(entries)):] {
		if err := os.Remove(entry.path); err != nil {
			logger.G(ctx).WithError(err).WithField("backup", entry.path).Warn("failed to delete old backup")
		}
	}
}

func copyFile(src, dst string, mode os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
