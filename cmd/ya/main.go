// Command ya keeps a live analysis database in sync with a versioned,
// file-per-object snapshot cache.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/yatools/yasync/internal/config"
	"github.com/yatools/yasync/internal/logging"
	"github.com/yatools/yasync/internal/ui"
	"github.com/yatools/yasync/internal/vcs"
	_ "github.com/yatools/yasync/internal/vcs/git"
	_ "github.com/yatools/yasync/internal/vcs/jj"
)

var (
	repoFlag   string
	configFlag string
	verbose    bool
	noColor    bool

	// Set by PersistentPreRunE.
	root     string
	cfg      *config.Config
	logger   = zap.NewNop()
	closeLog = func() error { return nil }
)

var rootCmd = &cobra.Command{
	Use:   "ya",
	Short: "Sync a live analysis database with a versioned snapshot cache",
	Long: `ya records what analysts change in a live analysis database and publishes
those changes as one YAML file per object under a git or jj repository.
Changes made by others are pulled back and replayed into the live database
together with every object they depend on.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if noColor {
			ui.DisableColor()
		}

		var err error
		root, err = resolveRoot(repoFlag)
		if err != nil {
			return err
		}

		// Command-specific flags are only bound where they exist.
		loader := config.NewLoader()
		bindings := map[string]string{
			"cache_dir":     "cache-dir",
			"vcs":           "vcs",
			"remote":        "remote",
			"log.level":     "log-level",
			"daemon.listen": "listen",
		}
		for key, name := range bindings {
			f := cmd.Flags().Lookup(name)
			if f == nil {
				continue
			}
			if err := loader.BindFlag(key, f); err != nil {
				return err
			}
		}
		cfg, err = loader.Load(root, configFlag)
		if err != nil {
			return err
		}
		if verbose {
			cfg.Log.Level = "debug"
		}

		logFile := cfg.Log.File
		if logFile != "" {
			logFile = config.Abs(root, logFile)
		}
		logger, closeLog, err = logging.New(logging.Options{
			Level:      cfg.Log.Level,
			File:       logFile,
			MaxSizeMB:  cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
			MaxAgeDays: cfg.Log.MaxAgeDays,
			Compress:   cfg.Log.Compress,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = closeLog()
	},
}

// resolveRoot returns the repository root around path, or path itself when
// it is not inside a repository yet.
func resolveRoot(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	if res, err := vcs.Detect(abs); err == nil {
		return res.RepoRoot, nil
	}
	return abs, nil
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: "setup", Title: "Setup:"},
		&cobra.Group{ID: "sync", Title: "Synchronization:"},
		&cobra.Group{ID: "inspect", Title: "Inspection:"},
	)

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&repoFlag, "repo", "C", ".", "repository to operate on")
	pf.StringVar(&configFlag, "config", "", "config file (default <repo>/.ya/config.yaml)")
	pf.String("cache-dir", "cache", "snapshot cache directory relative to the repository root")
	pf.String("vcs", "auto", "version control backend: auto, git or jj")
	pf.String("remote", "", "remote to pull from and push to")
	pf.String("log-level", "info", "log level: debug, info, warn or error")
	pf.BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	pf.BoolVar(&noColor, "no-color", false, "plain output without colors")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", ui.RenderFail("Error:"), err)
		os.Exit(1)
	}
}
