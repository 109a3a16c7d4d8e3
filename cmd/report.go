package cmd

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/apkdock/apkdock/internal/download"
	"github.com/apkdock/apkdock/internal/engine/types"
)

var reportCmd = &cobra.Command{
	Use:   "report <package>",
	Short: "Send a download state to the running daemon",
	Long: `Send one download state report to the running daemon, the way a work
scheduler does. Mostly useful for scripting and testing.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		report, err := buildReport(cmd, args[0])
		if err != nil {
			return err
		}

		port, err := requireServer()
		if err != nil {
			return err
		}
		resp, err := postToServer(port, "/report", report)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Report %s: %s\n", report.TaskID, resp["status"])
		return nil
	},
}

// workStateFor maps a download state to the scheduler state reported with it
func workStateFor(kind types.Kind) types.WorkState {
	switch kind {
	case types.KindPending:
		return types.WorkEnqueued
	case types.KindSuccess:
		return types.WorkSucceeded
	case types.KindError:
		return types.WorkFailed
	case types.KindCancel:
		return types.WorkCancelled
	default:
		return types.WorkRunning
	}
}

func buildReport(cmd *cobra.Command, packageName string) (download.Report, error) {
	f := cmd.Flags()
	taskID, _ := f.GetString("task")
	key, _ := f.GetString("key")
	kind, _ := f.GetString("state")
	name, _ := f.GetString("name")
	version, _ := f.GetString("version")
	repo, _ := f.GetInt64("repo")
	cacheFile, _ := f.GetString("cache-file")
	read, _ := f.GetInt64("read")
	total, _ := f.GetInt64("total")
	hash, _ := f.GetString("hash")
	validation, _ := f.GetString("validation")

	if taskID == "" {
		taskID = uuid.New().String()
	}
	if name == "" {
		name = packageName
	}
	if key == "" {
		key = fmt.Sprintf("%s:%d", packageName, repo)
	}

	dto := types.StateDTO{
		Kind: types.Kind(kind),
		Meta: types.Meta{
			PackageName:   packageName,
			Name:          name,
			Version:       version,
			RepoID:        repo,
			CacheFileName: cacheFile,
		},
		Read:            read,
		Total:           total,
		ReleaseHash:     hash,
		ValidationError: types.ValidationError(validation),
	}
	if _, err := dto.State(); err != nil {
		return download.Report{}, err
	}

	return download.Report{
		TaskID:    taskID,
		Key:       key,
		WorkState: workStateFor(dto.Kind),
		Progress:  types.Progress{Read: read, Total: total},
		State:     dto,
	}, nil
}

func addReportFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("task", "", "Scheduler task id (default: random)")
	f.String("key", "", "Download key (default: <package>:<repo>)")
	f.String("state", string(types.KindPending), "pending, connecting, downloading, success, error or cancel")
	f.String("name", "", "Display name (default: package name)")
	f.String("version", "", "Release version")
	f.Int64("repo", 0, "Repository id")
	f.String("cache-file", "", "Cache file name of the release")
	f.Int64("read", 0, "Bytes downloaded")
	f.Int64("total", 0, "Total bytes")
	f.String("hash", "", "Release hash (success only)")
	f.String("validation", "", "Validation error (error only)")
}

func init() {
	addReportFlags(reportCmd)
	rootCmd.AddCommand(reportCmd)
}
