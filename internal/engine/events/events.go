package events

import (
	"time"

	"github.com/apkdock/apkdock/internal/engine/types"
)

// UpdateEvent carries one handled transition from persistence to the
// notification loop
type UpdateEvent struct {
	Key   string
	State types.DownloadState
}

// InstallStartedMsg is sent when the dispatcher hands a task to an installer
type InstallStartedMsg struct {
	PackageName   string
	CacheFileName string
}

// InstallResultMsg reports the end of one privileged install or uninstall
type InstallResultMsg struct {
	PackageName string
	Step        string
	Err         error
	Elapsed     time.Duration
}
