package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/apkdock/apkdock/internal/config"
	"github.com/apkdock/apkdock/internal/download"
	"github.com/apkdock/apkdock/internal/engine/state"
)

var recoverCmd = &cobra.Command{
	Use:   "recover",
	Short: "Mark interrupted downloads as canceled",
	Long: `Mark downloads that were still in flight when apkdock last stopped as
canceled. The daemon does this on start; this command runs it alone.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := initializeGlobalState(); err != nil {
			return err
		}
		isMaster, err := AcquireLock()
		if err != nil {
			return fmt.Errorf("error acquiring lock: %w", err)
		}
		if !isMaster {
			fmt.Fprintln(os.Stderr, "Error: apkdock is running; it recovers downloads on start.")
			os.Exit(1)
		}
		defer ReleaseLock()

		store, err := state.Open(config.GetDBPath())
		if err != nil {
			return err
		}
		defer store.Close()

		n, err := recoverDownloads(cmd.Context(), store, 10*time.Second)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Recovered %d interrupted downloads\n", n)
		return nil
	},
}

// recoverDownloads runs the state handler until every interrupted row was
// rewritten or timeout elapses
func recoverDownloads(parent context.Context, store *state.Store, timeout time.Duration) (int, error) {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	h := download.NewDownloadStateHandler(download.HandlerConfig{Store: store})
	if err := h.Start(ctx); err != nil {
		return 0, err
	}
	defer h.Wait()
	defer cancel()

	n, err := h.Recover(ctx, store)
	if err != nil || n == 0 {
		return n, err
	}

	deadline := time.Now().Add(timeout)
	for {
		left, err := store.ListInterrupted(ctx)
		if err != nil {
			return n, err
		}
		if len(left) == 0 {
			return n, nil
		}
		if time.Now().After(deadline) {
			return n, fmt.Errorf("%d downloads still interrupted after %s", len(left), timeout)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func init() {
	rootCmd.AddCommand(recoverCmd)
}
