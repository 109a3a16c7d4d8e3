package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/apkdock/apkdock/internal/config"
	"github.com/apkdock/apkdock/internal/engine/state"
	"github.com/apkdock/apkdock/internal/engine/types"
	"github.com/apkdock/apkdock/internal/utils"
)

var lsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List downloads",
	Long:  `List the last known state of every download from the database.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := initializeGlobalState(); err != nil {
			return err
		}
		store, err := state.Open(config.GetDBPath())
		if err != nil {
			return err
		}
		defer store.Close()

		jsonOutput, _ := cmd.Flags().GetBool("json")
		watch, _ := cmd.Flags().GetBool("watch")

		for {
			downloads, err := store.ListDownloads(cmd.Context())
			if err != nil {
				return fmt.Errorf("error listing downloads: %w", err)
			}
			if err := printDownloads(cmd.OutOrStdout(), downloads, jsonOutput, time.Now()); err != nil {
				return err
			}
			if !watch {
				return nil
			}
			time.Sleep(2 * time.Second)
			// Clear screen for watch mode
			fmt.Fprint(os.Stdout, "\033[H\033[2J")
		}
	},
}

func printDownloads(out io.Writer, downloads []types.Downloaded, jsonOutput bool, now time.Time) error {
	if jsonOutput {
		views := make([]DownloadView, 0, len(downloads))
		for _, d := range downloads {
			views = append(views, newDownloadView(d))
		}
		data, err := json.MarshalIndent(views, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(data))
		return nil
	}

	if len(downloads) == 0 {
		fmt.Fprintln(out, "No downloads found.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PACKAGE\tVERSION\tREPO\tSTATE\tPROGRESS\tCHANGED")
	fmt.Fprintln(w, "-------\t-------\t----\t-----\t--------\t-------")

	for _, d := range downloads {
		progress := "-"
		switch s := d.State.(type) {
		case types.Downloading:
			progress = fmt.Sprintf("%d%% (%s)", s.Progress(), utils.ConvertBytesToHumanReadable(s.Total))
		case types.Error:
			progress = s.ValidationError.Message()
		}

		pkg := d.PackageName
		if len(pkg) > 40 {
			pkg = pkg[:37] + "..."
		}

		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\n",
			pkg, d.Version, d.RepositoryID, d.State.Kind(), progress, humanize.RelTime(d.Changed, now, "ago", "from now"))
	}
	return w.Flush()
}

func init() {
	rootCmd.AddCommand(lsCmd)
	lsCmd.Flags().Bool("json", false, "Output in JSON format")
	lsCmd.Flags().Bool("watch", false, "Watch mode: refresh every 2 seconds")
}
