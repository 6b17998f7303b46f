package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/forest6511/sitepass/pkg/sitestore"
)

func init() {
	rootCmd.AddCommand(watchCmd)
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print the saved sites whenever another process changes them",
	Long: `Keep the saved sites open and print the listing each time another
sitepass process (or another machine syncing the data directory) changes them.
Stop with Ctrl+C.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		changed := make(chan struct{}, 1)
		a, err := openApp(ctx, true, sitestore.WithReloadHook(func() {
			select {
			case changed <- struct{}{}:
			default:
			}
		}))
		if err != nil {
			return err
		}
		defer a.Close()

		return watchSites(ctx, os.Stdout, a.store, changed)
	},
}

// watchSites prints the listing now and after every signal on changed
// until ctx is done.
func watchSites(ctx context.Context, w io.Writer, store *sitestore.Store, changed <-chan struct{}) error {
	printSnapshot(w, store, time.Now())
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-changed:
			printSnapshot(w, store, time.Now())
		}
	}
}

func printSnapshot(w io.Writer, store *sitestore.Store, now time.Time) {
	sites := sitestore.DisplayKeys(store.Keys())
	fmt.Fprintf(w, "[%s] %d site(s)\n", now.Format(time.TimeOnly), len(sites))
	for _, site := range sites {
		fmt.Fprintf(w, "  %s\n", site)
	}
}
