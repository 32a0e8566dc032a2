package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/yatools/yasync/internal/ui"
	"github.com/yatools/yasync/internal/vcs"
)

var statusCmd = &cobra.Command{
	Use:     "status",
	GroupID: "inspect",
	Short:   "Show repository, cache and live database state",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		head, err := a.vcs.Head(ctx)
		if err != nil {
			return err
		}
		headText := short(head)
		if head == "" {
			headText = ui.RenderMuted("(no commits)")
		}
		state := a.repo.State()
		synced := ui.RenderWarn("never")
		if state.Head != "" {
			synced = fmt.Sprintf("%s at %s", short(state.Head), state.SyncedAt.Local().Format("2006-01-02 15:04:05"))
			if state.Head != head {
				synced += " " + ui.RenderWarn("(behind)")
			}
		}

		backend := string(a.vcs.Name())
		if version, err := vcs.CheckVersion(a.vcs); err != nil {
			backend += " " + ui.RenderWarn(fmt.Sprintf("(%v)", err))
		} else {
			backend += " " + version
		}

		files, err := a.store.List()
		if err != nil {
			return err
		}

		fmt.Printf("%s Repository\n", ui.RenderAccent("●"))
		fmt.Print(ui.RenderFields(
			ui.Field{Key: "Root", Value: a.root},
			ui.Field{Key: "Backend", Value: backend},
			ui.Field{Key: "Head", Value: headText},
			ui.Field{Key: "Synced", Value: synced},
			ui.Field{Key: "Remote", Value: remoteName(a.cfg.Remote)},
		))

		fmt.Printf("\n%s Cache\n", ui.RenderAccent("●"))
		fmt.Print(ui.RenderFields(
			ui.Field{Key: "Directory", Value: a.store.Prefix()},
			ui.Field{Key: "Objects", Value: len(files)},
		))

		counts, err := a.live.Counts(ctx)
		if err != nil {
			return err
		}
		savedAt, err := a.live.SavedAt(ctx)
		if err != nil {
			return err
		}
		saved := ui.RenderMuted("never")
		if !savedAt.IsZero() {
			saved = savedAt.Local().Format("2006-01-02 15:04:05")
		}
		size := "?"
		if info, err := os.Stat(a.liveDBPath()); err == nil {
			size = ui.FormatSize(info.Size())
		}

		fmt.Printf("\n%s Live database\n", ui.RenderAccent("●"))
		fmt.Print(ui.RenderFields(
			ui.Field{Key: "Path", Value: a.liveDBPath()},
			ui.Field{Key: "Size", Value: size},
			ui.Field{Key: "Saved", Value: saved},
			ui.Field{Key: "Segments", Value: counts["segments"]},
			ui.Field{Key: "Items", Value: counts["items"]},
			ui.Field{Key: "Functions", Value: counts["funcs"]},
			ui.Field{Key: "Structures", Value: counts["strucs"]},
			ui.Field{Key: "Enums", Value: counts["enums"]},
		))
		return nil
	},
}

func short(rev string) string {
	if len(rev) > 12 {
		return rev[:12]
	}
	return rev
}

func remoteName(r string) string {
	if r == "" {
		return ui.RenderMuted("(default)")
	}
	return r
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
