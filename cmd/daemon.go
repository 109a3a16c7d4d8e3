package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/apkdock/apkdock/internal/config"
	"github.com/apkdock/apkdock/internal/download"
	"github.com/apkdock/apkdock/internal/engine/events"
	"github.com/apkdock/apkdock/internal/engine/state"
	"github.com/apkdock/apkdock/internal/installer"
	"github.com/apkdock/apkdock/internal/notify"
	"github.com/apkdock/apkdock/internal/utils"
)

// daemon wires the download pipeline to the installer
type daemon struct {
	settings   *config.Settings
	store      *state.Store
	tracker    *download.DownloadsTracker
	handler    *download.DownloadStateHandler
	bridge     *download.Bridge
	installer  *installer.RootInstaller
	dispatcher *installer.Dispatcher
	notifier   *notify.Console
	progressCh chan any
}

func newDaemon(ctx context.Context, settings *config.Settings, store *state.Store, shell installer.Shell, out io.Writer) (*daemon, error) {
	d := &daemon{
		settings:   settings,
		store:      store,
		tracker:    download.NewDownloadsTracker(),
		progressCh: make(chan any, 100),
	}

	sdk := settings.Installer.SDKLevel
	if sdk == 0 {
		probed, err := installer.ProbeSDKLevel(ctx, shell)
		if err != nil {
			utils.Logger().Warnw("could not probe sdk level, assuming a current platform", "error", err)
			probed = 25
		}
		sdk = probed
	}
	utils.Debug("Using SDK level %d", sdk)

	d.installer = installer.NewRootInstaller(shell, installer.NewUserResolver(shell, sdk), installer.Config{
		ApplicationID: settings.Installer.ApplicationID,
		Session:       settings.Installer.RootSession,
		OnResult: func(msg events.InstallResultMsg) {
			select {
			case d.progressCh <- msg:
			default:
			}
		},
	})
	d.dispatcher = installer.NewDispatcher(installer.DispatcherConfig{
		Store:      store,
		Installer:  d.installer,
		CacheDir:   config.GetCacheDir(),
		Workers:    settings.Installer.Workers,
		ProgressCh: d.progressCh,
	})

	d.notifier = notify.NewConsole(out, settings.Notifications.Enabled)
	d.handler = download.NewDownloadStateHandler(download.HandlerConfig{
		Store:    store,
		Tasks:    d.dispatcher,
		Notifier: d.notifier,
		Options: download.NotificationOptions{
			KeepInstallNotification: settings.Notifications.KeepInstall,
			Timeout:                 settings.Notifications.Timeout,
		},
		EventBuffer: settings.Pipeline.EventBuffer,
	})
	d.bridge = download.NewBridge(d.tracker, d.handler)
	return d, nil
}

// start launches the pipeline and recovers downloads interrupted by the last
// shutdown
func (d *daemon) start(ctx context.Context) error {
	d.installer.Start(ctx)
	if err := d.dispatcher.Start(ctx); err != nil {
		return err
	}
	if err := d.handler.Start(ctx); err != nil {
		return err
	}
	n, err := d.handler.Recover(ctx, d.store)
	if err != nil {
		return fmt.Errorf("failed to recover downloads: %w", err)
	}
	if n > 0 {
		utils.Debug("Recovered %d interrupted downloads", n)
	}
	return nil
}

// stop waits for the handler loops and drains the install queues. The context
// passed to start must be done.
func (d *daemon) stop() {
	d.handler.Wait()
	d.dispatcher.Shutdown()
	d.installer.Close()
}

// StartHeadlessConsumer prints install progress messages
func StartHeadlessConsumer(progressCh <-chan any, out io.Writer) {
	go func() {
		for msg := range progressCh {
			switch m := msg.(type) {
			case events.InstallStartedMsg:
				fmt.Fprintf(out, "Installing: %s (%s)\n", m.PackageName, m.CacheFileName)
			case events.InstallResultMsg:
				if m.Err != nil {
					fmt.Fprintf(out, "Install failed: %s at step %s: %v\n", m.PackageName, m.Step, m.Err)
				} else {
					fmt.Fprintf(out, "Installed: %s (in %s)\n", m.PackageName, m.Elapsed)
				}
			}
		}
	}()
}
