package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/yatools/yasync/internal/daemon"
	"github.com/yatools/yasync/internal/dashboard"
	"github.com/yatools/yasync/internal/ui"
)

var daemonCmd = &cobra.Command{
	Use:     "daemon",
	GroupID: "sync",
	Short:   "Watch the cache and pull the remote in the background",
	Long: `Run in the foreground, replaying cache files into the live database as
they change on disk and pulling the remote every pull interval.

With --listen, every replay is also streamed as JSON to WebSocket clients
connected to ws://<addr>/ws.

Stop with Ctrl-C.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		dcfg := &daemon.Config{
			PullInterval:     a.cfg.Daemon.PullInterval,
			DebounceInterval: a.cfg.Daemon.Debounce,
			Logger:           a.logger,
		}
		if addr := a.cfg.Daemon.Listen; addr != "" {
			server := dashboard.NewServer(&dashboard.Config{Addr: addr, Logger: a.logger})
			if err := server.Start(); err != nil {
				return err
			}
			defer server.Stop()
			dcfg.OnReplay = dashboard.NewHandler(server, a.logger).OnReplay
			fmt.Printf("%s Dashboard on http://%s\n", ui.RenderPass("✓"), server.Addr())
		}

		d, err := daemon.New(a.session, a.root, a.cfg.CacheDir, dcfg)
		if err != nil {
			return err
		}

		fmt.Printf("%s Watching %s (pull every %v)\n", ui.RenderPass("✓"), a.store.Prefix(), a.cfg.Daemon.PullInterval)
		if err := d.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}

		st := d.Stats()
		fmt.Printf("%s Stopped after %d batches and %d pulls: %d updated, %d deleted, %d errors\n",
			ui.RenderAccent("·"), st.Batches, st.Pulls, st.Updated, st.Deleted, st.Errors)
		return nil
	},
}

func init() {
	daemonCmd.Flags().String("listen", "", "serve the activity dashboard on this address, e.g. 127.0.0.1:7420")
	rootCmd.AddCommand(daemonCmd)
}
