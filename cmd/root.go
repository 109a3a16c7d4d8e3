package cmd

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/apkdock/apkdock/internal/config"
	"github.com/apkdock/apkdock/internal/engine/state"
	"github.com/apkdock/apkdock/internal/installer"
	"github.com/apkdock/apkdock/internal/utils"
)

// Version information - set via ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
)

// rootCmd runs the daemon when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "apkdock",
	Short: "Tracks package downloads and installs them as root",
	Long: `apkdock receives download progress from a work scheduler, persists every
state transition, shows notifications and installs finished packages through a
root shell.`,
	Version: Version,
	RunE: func(cmd *cobra.Command, args []string) error {
		settings, err := initializeGlobalState()
		if err != nil {
			return err
		}

		isMaster, err := AcquireLock()
		if err != nil {
			return fmt.Errorf("error acquiring lock: %w", err)
		}
		if !isMaster {
			fmt.Fprintln(os.Stderr, "Error: apkdock is already running.")
			fmt.Fprintln(os.Stderr, "Use 'apkdock report' to send states to the active instance.")
			os.Exit(1)
		}
		defer ReleaseLock()

		portFlag, _ := cmd.Flags().GetInt("port")
		if portFlag == 0 {
			portFlag = settings.Server.Port
		}
		port, listener, err := listen(portFlag)
		if err != nil {
			return err
		}
		saveActivePort(port)
		defer removeActivePort()

		store, err := state.Open(config.GetDBPath())
		if err != nil {
			return err
		}
		defer store.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		shell := installer.NewSuShell(settings.Installer.SuBinary)
		d, err := newDaemon(ctx, settings, store, shell, cmd.OutOrStdout())
		if err != nil {
			return err
		}
		if err := d.start(ctx); err != nil {
			return err
		}
		StartHeadlessConsumer(d.progressCh, cmd.OutOrStdout())

		go startHTTPServer(ctx, listener, d)

		fmt.Printf("apkdock %s running.\n", Version)
		fmt.Printf("HTTP server listening on port %d\n", port)
		fmt.Println("Press Ctrl+C to exit.")

		<-ctx.Done()
		fmt.Println("\nShutting down...")
		d.stop()
		utils.SyncDebug()
		return nil
	},
}

func listen(port int) (int, net.Listener, error) {
	if port > 0 {
		ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
		if err != nil {
			return 0, nil, fmt.Errorf("could not bind to port %d: %w", port, err)
		}
		return port, ln, nil
	}
	port, ln := findAvailablePort(8090)
	if ln == nil {
		return 0, nil, fmt.Errorf("could not find available port")
	}
	return port, ln, nil
}

// findAvailablePort tries ports starting from 'start' until one is available
func findAvailablePort(start int) (int, net.Listener) {
	for port := start; port < start+100; port++ {
		ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
		if err == nil {
			return port, ln
		}
	}
	return 0, nil
}

// saveActivePort writes the active port for CLI discovery
func saveActivePort(port int) {
	portFile := filepath.Join(config.GetAppDir(), "port")
	if err := os.WriteFile(portFile, []byte(fmt.Sprintf("%d", port)), 0644); err != nil {
		utils.Debug("Failed to write port file: %v", err)
	}
	utils.Debug("HTTP server listening on port %d", port)
}

func removeActivePort() {
	os.Remove(filepath.Join(config.GetAppDir(), "port"))
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.Flags().IntP("port", "p", 0, "Port to listen on (default: settings or first available from 8090)")
	rootCmd.SetVersionTemplate("apkdock version {{.Version}}\n")
}

// initializeGlobalState creates the app directories, configures logging and
// loads the settings
func initializeGlobalState() (*config.Settings, error) {
	if err := config.EnsureDirs(); err != nil {
		return nil, fmt.Errorf("failed to create app directories: %w", err)
	}
	utils.ConfigureDebug(config.GetLogsDir())

	settings, err := config.LoadSettings()
	if err != nil {
		return nil, err
	}
	if err := utils.SetLogLevel(settings.LogLevel); err != nil {
		utils.Debug("Ignoring log level %q: %v", settings.LogLevel, err)
	}
	return settings, nil
}
