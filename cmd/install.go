package cmd

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/apkdock/apkdock/internal/config"
	"github.com/apkdock/apkdock/internal/installer"
	"github.com/apkdock/apkdock/internal/utils"
)

var installCmd = &cobra.Command{
	Use:   "install <file.apk>",
	Short: "Install a package file as root",
	Long:  `Install a package file through the root shell and delete it on success.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		settings, err := initializeGlobalState()
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("session") {
			settings.Installer.RootSession, _ = cmd.Flags().GetBool("session")
		}

		path, err := filepath.Abs(args[0])
		if err != nil {
			return err
		}
		ok, err := utils.IsPackageArchive(path)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: %s", installer.ErrNotPackageArchive, path)
		}

		r, err := localInstaller(cmd.Context(), settings, installer.NewSuShell(settings.Installer.SuBinary))
		if err != nil {
			return err
		}
		step, err := r.InstallFile(cmd.Context(), path)
		if err != nil {
			return fmt.Errorf("install stopped after step %s: %w", step, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Installed %s (%s)\n", filepath.Base(path), step)
		return nil
	},
}

var uninstallCmd = &cobra.Command{
	Use:   "uninstall <package>",
	Short: "Uninstall a package as root",
	Long: `Uninstall a package for the current user. The request is queued on the
running daemon when there is one.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		settings, err := initializeGlobalState()
		if err != nil {
			return err
		}
		packageName := args[0]
		if err := installer.ValidatePackageName(packageName); err != nil {
			return err
		}

		if port := readActivePort(); port > 0 {
			_, err := postToServer(port, "/uninstall", UninstallRequest{PackageName: packageName})
			if err == nil {
				fmt.Fprintf(cmd.OutOrStdout(), "Queued uninstall of %s\n", packageName)
				return nil
			}
			utils.Debug("Daemon unavailable, uninstalling locally: %v", err)
		}

		r, err := localInstaller(cmd.Context(), settings, installer.NewSuShell(settings.Installer.SuBinary))
		if err != nil {
			return err
		}
		if err := r.UninstallPackage(cmd.Context(), packageName); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Uninstalled %s\n", packageName)
		return nil
	},
}

// localInstaller builds a RootInstaller for one synchronous operation
func localInstaller(ctx context.Context, settings *config.Settings, shell installer.Shell) (*installer.RootInstaller, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	sdk := settings.Installer.SDKLevel
	if sdk == 0 {
		var err error
		if sdk, err = installer.ProbeSDKLevel(ctx, shell); err != nil {
			return nil, fmt.Errorf("failed to probe sdk level: %w", err)
		}
	}
	return installer.NewRootInstaller(shell, installer.NewUserResolver(shell, sdk), installer.Config{
		ApplicationID: settings.Installer.ApplicationID,
		Session:       settings.Installer.RootSession,
	}), nil
}

func init() {
	installCmd.Flags().Bool("session", false, "Use a staged install session (default: settings)")
	rootCmd.AddCommand(installCmd)
	rootCmd.AddCommand(uninstallCmd)
}
