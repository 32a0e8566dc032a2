package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/yatools/yasync/internal/events"
	"github.com/yatools/yasync/internal/export"
	"github.com/yatools/yasync/internal/script"
	"github.com/yatools/yasync/internal/snapshot"
	"github.com/yatools/yasync/internal/ui"
)

var exportCmd = &cobra.Command{
	Use:     "export",
	GroupID: "sync",
	Short:   "Write every live object into the cache",
	Long: `Write every function, code and data item, structure and enumeration of the
live database into the cache and commit it. Use it to seed a new cache.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		batch := snapshot.NewMemory()
		if err := export.New(a.db).AcceptAll(batch); err != nil {
			return fmt.Errorf("failed to export live database: %w", err)
		}
		if err := a.store.Write(batch); err != nil {
			return err
		}
		fmt.Printf("%s Exported %d objects to %s\n", ui.RenderPass("✓"), batch.Len(), a.store.Prefix())

		noCommit, _ := cmd.Flags().GetBool("no-commit")
		if noCommit {
			return nil
		}
		a.repo.AddComment("full export")
		if !a.repo.CommitCache(ctx) {
			return fmt.Errorf("failed to commit the exported cache")
		}
		return a.repo.MarkSynced(ctx)
	},
}

var applyCmd = &cobra.Command{
	Use:     "apply <script.yaml>...",
	GroupID: "sync",
	Short:   "Apply edit scripts to the live database and save the result",
	Long: `Apply YAML edit scripts to the live database, then save every touched
object into the cache and commit it.

Scripts run in order. If a step fails, the steps before it stay applied and
are saved.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		scripts := make([]*script.Script, 0, len(args))
		for _, path := range args {
			s, err := script.ParseFile(path)
			if err != nil {
				return err
			}
			scripts = append(scripts, s)
		}

		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		runner := script.NewRunner(a.db, a.logger)
		var applyErr error
		for i, s := range scripts {
			n, err := runner.Apply(s)
			fmt.Printf("%s %s: %d of %d steps\n", ui.RenderAccent("→"), args[i], n, len(s.Steps))
			if err != nil {
				applyErr = fmt.Errorf("%s: %w", args[i], err)
				break
			}
		}

		if dryRun {
			printPending(a.session.Pending())
			rec := &snapshot.Recorder{}
			if err := a.session.Plan(rec); err != nil {
				return err
			}
			printPlan(rec.Calls)
			return applyErr
		}
		if err := a.persist(ctx); err != nil {
			return err
		}
		if err := save(ctx, a); err != nil {
			return err
		}
		return applyErr
	},
}

var saveCmd = &cobra.Command{
	Use:     "save [address|struct|enum]...",
	GroupID: "sync",
	Short:   "Save selected live objects into the cache",
	Long: `Touch the named live objects and save them into the cache.

Arguments are function, code or data addresses (0x401000), structure names
and enumeration names. With --all every live object is touched. Objects that
no longer exist in the live database are deleted from the cache.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		all, _ := cmd.Flags().GetBool("all")
		if !all && len(args) == 0 {
			return fmt.Errorf("name objects to save or pass --all")
		}

		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		if all {
			touchAll(a)
		}
		for _, arg := range args {
			if err := touchNamed(a, arg); err != nil {
				return err
			}
		}
		return save(ctx, a)
	},
}

func touchAll(a *app) {
	for _, en := range a.db.Enums() {
		a.session.TouchEnum(en.ID)
	}
	for _, st := range a.db.Strucs() {
		a.session.TouchStruct(st.ID)
	}
	for _, fn := range a.db.Funcs() {
		a.session.TouchFunction(fn.Start)
	}
	for _, it := range a.db.Items() {
		a.session.TouchLocation(it.EA)
	}
}

func touchNamed(a *app, arg string) error {
	if ea, err := strconv.ParseUint(arg, 0, 64); err == nil {
		a.session.TouchLocation(ea)
		return nil
	}
	if id, ok := a.db.StrucByName(arg); ok {
		a.session.TouchStruct(id)
		return nil
	}
	if id, ok := a.db.EnumByName(arg); ok {
		a.session.TouchEnum(id)
		return nil
	}
	return fmt.Errorf("no address, structure or enumeration named %q", arg)
}

func save(ctx context.Context, a *app) error {
	stats, err := a.session.Save(ctx)
	if err != nil {
		return err
	}
	if stats.Written == 0 && stats.Deleted == 0 {
		fmt.Printf("%s Nothing to save\n", ui.RenderMuted("·"))
		return nil
	}
	fmt.Printf("%s Saved %d objects, deleted %d in %v\n",
		ui.RenderPass("✓"), stats.Written, stats.Deleted, stats.Elapsed.Round(time.Millisecond))
	if !stats.Committed {
		fmt.Printf("%s Commit failed, the changes stay in the cache directory until the next save\n", ui.RenderWarn("⚠"))
	}
	return nil
}

func printPending(p events.Pending) {
	fmt.Printf("%s Pending changes\n", ui.RenderAccent("·"))
	fmt.Print(ui.RenderFields(
		ui.Field{Key: "Locations", Value: p.Locations},
		ui.Field{Key: "Structures", Value: p.Strucs},
		ui.Field{Key: "Members", Value: p.StrucMembers},
		ui.Field{Key: "Enums", Value: p.Enums},
		ui.Field{Key: "Enum members", Value: p.EnumMembers},
	))
}

// printPlan lists the object writes and deletions of a dry run.
func printPlan(calls []string) {
	n := 0
	for _, c := range calls {
		if c == "start" || c == "end" {
			continue
		}
		fmt.Printf("  %s\n", c)
		n++
	}
	if n == 0 {
		fmt.Printf("  %s\n", ui.RenderMuted("(nothing to save)"))
	}
}

var updateCmd = &cobra.Command{
	Use:     "update",
	GroupID: "sync",
	Short:   "Pull remote changes and replay them into the live database",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		stats, err := a.session.Update(ctx)
		if err != nil {
			return err
		}
		printLoad(stats)
		return nil
	},
}

var loadCmd = &cobra.Command{
	Use:     "load [path]...",
	GroupID: "sync",
	Short:   "Replay cache files into the live database",
	Long: `Replay the named cache files, and every object they depend on, into the
live database. Paths that no longer exist are deleted from the live database.
With --all the whole cache is replayed and the current head is marked as
synchronized.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		all, _ := cmd.Flags().GetBool("all")
		if !all && len(args) == 0 {
			return fmt.Errorf("name cache files to load or pass --all")
		}

		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		if all {
			if err := a.store.LoadAll(ctx, a.db.Listener()); err != nil {
				return err
			}
			if err := a.persist(ctx); err != nil {
				return err
			}
			fmt.Printf("%s Loaded %s\n", ui.RenderPass("✓"), a.store.Prefix())
			return a.repo.MarkSynced(ctx)
		}

		cs, err := changeSet(a, args)
		if err != nil {
			return err
		}
		stats, err := a.session.Load(ctx, cs)
		if err != nil {
			return err
		}
		printLoad(stats)
		return nil
	},
}

var closureCmd = &cobra.Command{
	Use:     "closure <path>...",
	GroupID: "inspect",
	Short:   "List the cache files a load of the given paths would replay",
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		cs, err := changeSet(a, args)
		if err != nil {
			return err
		}
		files, err := a.session.Closure(ctx, cs)
		if err != nil {
			return err
		}
		for _, f := range files {
			fmt.Println(f)
		}
		return nil
	},
}

// changeSet turns command-line paths into repository-relative cache paths,
// classified by whether the file exists.
func changeSet(a *app, args []string) (snapshot.ChangeSet, error) {
	var cs snapshot.ChangeSet
	for _, arg := range args {
		abs, err := filepath.Abs(arg)
		if err != nil {
			return cs, err
		}
		rel, err := a.store.Rel(abs)
		if err != nil {
			return cs, err
		}
		if _, err := os.Stat(abs); err == nil {
			cs.Updated = append(cs.Updated, rel)
		} else {
			cs.Deleted = append(cs.Deleted, rel)
		}
	}
	return cs, nil
}

func printLoad(stats events.LoadStats) {
	if stats.Files == 0 && stats.Deleted == 0 {
		fmt.Printf("%s Already up to date\n", ui.RenderMuted("·"))
		return
	}
	fmt.Printf("%s Loaded %d files: %d updated, %d deleted\n",
		ui.RenderPass("✓"), stats.Files, stats.Updated, stats.Deleted)
}

func init() {
	exportCmd.Flags().Bool("no-commit", false, "write the cache without committing")
	applyCmd.Flags().Bool("dry-run", false, "apply in memory and show what would be saved")
	saveCmd.Flags().Bool("all", false, "save every live object")
	loadCmd.Flags().Bool("all", false, "replay the whole cache")

	rootCmd.AddCommand(exportCmd, applyCmd, saveCmd, updateCmd, loadCmd, closureCmd)
}
