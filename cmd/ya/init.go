package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/yatools/yasync/internal/config"
	"github.com/yatools/yasync/internal/kind"
	"github.com/yatools/yasync/internal/livedb"
	"github.com/yatools/yasync/internal/ui"
	"github.com/yatools/yasync/internal/vcs"
	"github.com/yatools/yasync/internal/vcs/git"
	"github.com/yatools/yasync/internal/vcs/jj"
)

// stateIgnore keeps per-machine state out of the repository.
const stateIgnore = `# Local ya state, never committed.
live.db*
sync.yaml
*.log
`

var initCmd = &cobra.Command{
	Use:     "init",
	GroupID: "setup",
	Short:   "Prepare a repository for ya",
	Long: `Prepare the repository for ya:
  1. Creates a git or jj repository if there is none (see --vcs)
  2. Writes .ya/config.yaml and .ya/.gitignore
  3. Creates the cache kind directories
  4. Creates an empty live database
  5. Marks the current head as synchronized

When run in a terminal without --yes and no config file exists yet, init
first asks for the backend, the remote and whether to push.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		stateDir := config.Abs(root, cfg.StateDir)
		configPath := filepath.Join(stateDir, config.FileName)

		yes, _ := cmd.Flags().GetBool("yes")
		if _, err := os.Stat(configPath); err != nil && !yes && interactive() {
			if err := askStarter(cfg); err != nil {
				return err
			}
		}

		if _, err := vcs.Detect(root); errors.Is(err, vcs.ErrNotInVCS) {
			if err := initRepository(root, vcs.Type(cfg.VCS)); err != nil {
				return err
			}
			fmt.Printf("%s Created repository in %s\n", ui.RenderPass("✓"), root)
		} else if err != nil {
			return err
		}

		if err := os.MkdirAll(stateDir, 0o755); err != nil {
			return fmt.Errorf("failed to create state directory: %w", err)
		}
		starter := config.Starter{VCS: cfg.VCS, Remote: cfg.Remote, Push: cfg.Commit.Push}
		if err := config.WriteStarter(configPath, starter); err != nil {
			return err
		}
		ignore := filepath.Join(stateDir, ".gitignore")
		if err := os.WriteFile(ignore, []byte(stateIgnore), 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", ignore, err)
		}

		cacheDir := config.Abs(root, cfg.CacheDir)
		for _, k := range kind.All() {
			if err := os.MkdirAll(filepath.Join(cacheDir, k.String()), 0o755); err != nil {
				return fmt.Errorf("failed to create cache directory: %w", err)
			}
		}

		live, err := livedb.OpenContext(ctx, config.Abs(root, cfg.LiveDB))
		if err != nil {
			return err
		}
		if err := live.Close(); err != nil {
			return err
		}

		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()
		if err := a.repo.MarkSynced(ctx); err != nil {
			return err
		}

		fmt.Printf("%s Initialized ya in %s\n", ui.RenderPass("✓"), root)
		fmt.Print(ui.RenderFields(
			ui.Field{Key: "Backend", Value: a.vcs.Name()},
			ui.Field{Key: "Cache", Value: cacheDir},
			ui.Field{Key: "Live DB", Value: a.liveDBPath()},
		))
		return nil
	},
}

func interactive() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}

// askStarter prompts for the settings a new repository usually needs and
// stores the answers in c.
func askStarter(c *config.Config) error {
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Version control backend").
				Options(
					huh.NewOption("auto (jj when installed, else git)", "auto"),
					huh.NewOption("git", "git"),
					huh.NewOption("jj", "jj"),
				).
				Value(&c.VCS),
			huh.NewInput().
				Title("Remote").
				Description("Leave empty to use the backend default.").
				Value(&c.Remote),
			huh.NewConfirm().
				Title("Push after every commit?").
				Value(&c.Commit.Push),
		),
	)
	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return fmt.Errorf("init cancelled")
		}
		return err
	}
	return nil
}

func initRepository(path string, t vcs.Type) error {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	switch t {
	case vcs.TypeGit:
		_, err := git.Init(path)
		return err
	case vcs.TypeJJ:
		_, err := jj.Init(path, false)
		return err
	}
	if vcs.IsJJAvailable() {
		_, err := jj.Init(path, true)
		return err
	}
	if vcs.IsGitAvailable() {
		_, err := git.Init(path)
		return err
	}
	return vcs.ErrVCSNotAvailable
}

func init() {
	initCmd.Flags().BoolP("yes", "y", false, "do not prompt, use flags and defaults")
	rootCmd.AddCommand(initCmd)
}
