package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/claude-migrate/claude-migrate/pkg/backup"
	"github.com/claude-migrate/claude-migrate/pkg/claude"
	"github.com/claude-migrate/claude-migrate/pkg/convert"
	"github.com/claude-migrate/claude-migrate/pkg/presenter"
	"github.com/claude-migrate/claude-migrate/pkg/stats"
)

// Conversion targets
const (
	targetOpenCode = "opencode"
	targetCopilot  = "copilot"
)

type convertOptions struct {
	output  string
	source  string
	plugins bool
	scope   string
	format  string
	dryRun  bool
	force   bool
	verbose bool
	envFile string
}

func newConvertCmd() *cobra.Command {
	opts := &convertOptions{}

	cmd := &cobra.Command{
		Use:   "convert [opencode|copilot]",
		Short: "Convert a Claude Code configuration to the target format",
		Long: `Convert Claude Code configurations to the target format.

Example usage:
  claude-migrate convert opencode
  claude-migrate convert copilot --output ./my-configs
  claude-migrate convert opencode --format json --dry-run`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConvert(cmd.Context(), args[0], opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.output, "output", "o", "", "Output directory (default depends on target and scope)")
	flags.StringVar(&opts.source, "source", "", "Claude config directory to read from (overrides auto-detection)")
	flags.BoolVar(&opts.plugins, "plugins", false, "Include installed Claude plugins (project scope only)")
	flags.StringVarP(&opts.scope, "scope", "s", "", "Config scope: 'user' (~/.claude) or 'project' (./.claude); default auto-detect")
	flags.StringVarP(&opts.format, "format", "f", "dir", "Output format (only for opencode: dir or json)")
	flags.BoolVarP(&opts.dryRun, "dry-run", "n", false, "Preview changes without writing files")
	flags.BoolVar(&opts.force, "force", false, "Overwrite existing files (automatic backups are always created)")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "Enable verbose output")
	flags.StringVar(&opts.envFile, "env-file", "", "Dotenv file providing ${VAR} overrides for MCP configs")

	return cmd
}

func runConvert(ctx context.Context, target string, opts *convertOptions) error {
	if target != targetOpenCode && target != targetCopilot {
		return errors.Errorf("unknown target %q (expected opencode or copilot)", target)
	}
	format := convert.Format(opts.format)
	if !convert.ValidFormat(format) {
		return errors.Errorf("unknown format %q (expected dir or json)", opts.format)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return errors.Wrap(err, "failed to get working directory")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return errors.Wrap(err, "failed to get user home directory")
	}

	var overrides map[string]string
	if opts.envFile != "" {
		overrides, err = godotenv.Read(opts.envFile)
		if err != nil {
			return errors.Wrapf(err, "failed to read env file %s", opts.envFile)
		}
	}

	sourceDir, scope, err := resolveSource(opts, cwd, home)
	if err != nil {
		return err
	}

	outputDir := opts.output
	if outputDir == "" {
		outputDir = claude.DefaultOutputDir(target, scope, cwd, home)
	}
	if outputDir, err = filepath.Abs(outputDir); err != nil {
		return errors.Wrap(err, "failed to resolve output directory")
	}

	presenter.Info(fmt.Sprintf("Loading Claude Code configuration from %s...", sourceDir))

	runStats := stats.New()
	backups, err := backup.NewManager(backup.WithStats(runStats), backup.WithWorkDir(cwd))
	if err != nil {
		return err
	}

	loader, err := claude.NewLoader(sourceDir,
		claude.WithPlugins(opts.plugins),
		claude.WithScope(scope),
		claude.WithOverrides(overrides),
		claude.WithStats(runStats),
	)
	if err != nil {
		return err
	}

	config, err := loader.Load(ctx)
	if err != nil {
		presenter.Warning(fmt.Sprintf("Some files could not be loaded: %v", err))
	}

	if opts.verbose {
		presenter.Info(fmt.Sprintf("  Found %d agent(s)", len(config.Agents)))
		presenter.Info(fmt.Sprintf("  Found %d command(s)", len(config.Commands)))
		presenter.Info(fmt.Sprintf("  Found %d skill(s)", len(config.Skills)))
		presenter.Info(fmt.Sprintf("  Found %d MCP server(s)", len(config.MCPServers)))
	}

	merge := false
	if _, statErr := os.Stat(outputDir); statErr == nil {
		merge = !opts.force
	}
	if merge {
		presenter.Info("Merge mode: existing files are kept (use --force to overwrite)")
	} else if opts.force {
		presenter.Warning("Force mode: overwriting all matching files (backups will be created)")
	}

	switch target {
	case targetOpenCode:
		converter, err := convert.NewOpenCode(config, convert.WithStats(runStats), convert.WithBackups(backups))
		if err != nil {
			return err
		}
		if opts.dryRun {
			previewPlan(converter.Plan(outputDir, format, merge))
			return nil
		}
		if err := converter.Save(ctx, outputDir, format, merge); err != nil {
			return err
		}
	case targetCopilot:
		converter, err := convert.NewCopilot(config, convert.WithStats(runStats), convert.WithBackups(backups))
		if err != nil {
			return err
		}
		if opts.dryRun {
			previewPlan(converter.Plan(outputDir, merge))
			return nil
		}
		if err := converter.Save(ctx, outputDir, merge); err != nil {
			return err
		}
	}

	presenter.Success("Conversion complete!")
	presenter.Info(fmt.Sprintf("Output written to: %s", outputDir))
	presenter.Stats(runStats)
	printNextSteps(target, outputDir, cwd)
	return nil
}

// resolveSource picks the configuration tree to read: an explicit --source
// path wins, then an explicit --scope, then auto-detection with project scope
// taking precedence.
func resolveSource(opts *convertOptions, cwd, home string) (string, claude.Scope, error) {
	if opts.source != "" {
		if opts.scope != "" {
			presenter.Warning("--scope is ignored when --source is provided")
		}
		abs, err := filepath.Abs(opts.source)
		if err != nil {
			return "", "", errors.Wrap(err, "failed to resolve source directory")
		}
		scope := claude.ScopeUser
		if abs == filepath.Join(cwd, ".claude") {
			scope = claude.ScopeProject
		}
		return abs, scope, nil
	}

	if opts.scope != "" {
		scope := claude.Scope(opts.scope)
		dir, err := claude.ConfigForScope(scope, cwd, home)
		return dir, scope, err
	}

	return claude.DetectConfig(cwd, home)
}

// previewPlan summarizes what a conversion would do without writing anything.
func previewPlan(planned []convert.PlannedFile) {
	presenter.Warning("DRY RUN - no files will be written")

	if len(planned) == 0 {
		presenter.Info("Nothing to convert.")
		return
	}

	type tally struct{ created, overwritten, kept int }
	byCategory := map[stats.Category]*tally{}
	var order []stats.Category
	for _, p := range planned {
		t, ok := byCategory[p.Category]
		if !ok {
			t = &tally{}
			byCategory[p.Category] = t
			order = append(order, p.Category)
		}
		switch p.Decision {
		case backup.Create:
			t.created++
		case backup.Overwrite:
			t.overwritten++
		case backup.Skip:
			t.kept++
		}
	}
	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })

	presenter.Info("Files that would be written:")
	for _, cat := range order {
		t := byCategory[cat]
		presenter.Info(fmt.Sprintf("  %s: %d new, %d overwrite, %d kept", cat, t.created, t.overwritten, t.kept))
	}
}

func printNextSteps(target, outputDir, cwd string) {
	presenter.Section("Next steps")

	if target == targetOpenCode {
		presenter.Info("  To use with OpenCode:")
		presenter.Info(fmt.Sprintf("    1. Use config at: %s", outputDir))
		presenter.Info("       (expected locations: ./.opencode or ~/.config/opencode)")
		return
	}

	if outputDir == cwd {
		presenter.Info("  To use with GitHub Copilot in this workspace:")
		presenter.Info("    1. Ensure Copilot Chat is enabled")
		presenter.Info("    2. Reload your VS Code window")
		return
	}

	presenter.Info("  To use with GitHub Copilot:")
	presenter.Info(fmt.Sprintf("    1. Copy '%s/.github' into a workspace root", outputDir))
	presenter.Info("    2. Merge MCP config as needed")
	presenter.Info("       (VS Code workspace MCP file is typically .vscode/mcp.json)")
}
