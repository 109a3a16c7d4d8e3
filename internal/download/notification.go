package download

import (
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/apkdock/apkdock/internal/engine/types"
	"github.com/apkdock/apkdock/internal/utils"
)

const (
	ActionCancelDownload = "cancel_download"

	textPending  = "pending"
	textCanceled = "canceled"
)

// Action is a user action attached to a notification
type Action struct {
	Command     string
	Label       string
	PackageName string
}

// Notification is the platform independent content of a download notification
type Notification struct {
	Title         string
	Text          string
	Ongoing       bool
	Indeterminate bool
	ProgressMax   int
	Progress      int
	Actions       []Action
	// Timeout auto-dismisses the notification; zero keeps it
	Timeout time.Duration
}

// Notifier is the OS notification service
type Notifier interface {
	// Permitted reports whether posting notifications is allowed
	Permitted() bool
	Notify(id int32, n Notification) error
	Cancel(id int32) error
}

// NotificationOptions carries the preferences the projection depends on
type NotificationOptions struct {
	KeepInstallNotification bool
	Timeout                 time.Duration
}

// NotificationID maps a download key to a stable notification id
func NotificationID(key string) int32 {
	return int32(xxhash.Sum64String(key))
}

func downloadingTitle(m types.Meta) string {
	return fmt.Sprintf("downloading %s (%s)", m.Name, m.Version)
}

func cancelAction(packageName string) Action {
	return Action{Command: ActionCancelDownload, Label: "Cancel", PackageName: packageName}
}

// Project maps a download state to notification content
func Project(state types.DownloadState, opts NotificationOptions) Notification {
	m := types.MetaOf(state)

	switch s := state.(type) {
	case types.Pending, types.Connecting:
		return Notification{
			Title:         downloadingTitle(m),
			Text:          textPending,
			Ongoing:       true,
			Indeterminate: true,
			ProgressMax:   1,
			Actions:       []Action{cancelAction(m.PackageName)},
		}

	case types.Downloading:
		return Notification{
			Title:       downloadingTitle(m),
			Text:        fmt.Sprintf("%s / %s", utils.ConvertBytesToHumanReadable(s.Read), utils.ConvertBytesToHumanReadable(s.Total)),
			Ongoing:     true,
			ProgressMax: 100,
			Progress:    s.Progress(),
			Actions:     []Action{cancelAction(m.PackageName)},
		}

	case types.Cancel:
		return Notification{
			Title:   downloadingTitle(m),
			Text:    textCanceled,
			Timeout: opts.Timeout,
		}

	case types.Success:
		n := Notification{
			Title: fmt.Sprintf("downloaded %s", m.Name),
		}
		if !opts.KeepInstallNotification {
			n.Timeout = opts.Timeout
		}
		return n

	case types.Error:
		return Notification{
			Title:   fmt.Sprintf("could not download %s (%s)", m.Name, m.Version),
			Text:    s.ValidationError.Message(),
			Timeout: opts.Timeout,
		}
	}

	return Notification{Title: downloadingTitle(m)}
}
