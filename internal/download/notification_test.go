package download

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/apkdock/apkdock/internal/engine/types"
)

var testOpts = NotificationOptions{Timeout: 5 * time.Second}

func exampleMeta() types.Meta {
	return types.Meta{
		PackageName:   "org.example",
		Name:          "Example",
		Version:       "1.0",
		RepoID:        1,
		CacheFileName: "org.example.apk",
	}
}

func TestProject_PendingAndConnecting(t *testing.T) {
	for _, s := range []types.DownloadState{types.Pending{Meta: exampleMeta()}, types.Connecting{Meta: exampleMeta()}} {
		n := Project(s, testOpts)
		assert.Equal(t, "downloading Example (1.0)", n.Title)
		assert.Equal(t, "pending", n.Text)
		assert.True(t, n.Ongoing)
		assert.True(t, n.Indeterminate)
		assert.Zero(t, n.Timeout)
		if assert.Len(t, n.Actions, 1) {
			assert.Equal(t, ActionCancelDownload, n.Actions[0].Command)
			assert.Equal(t, "org.example", n.Actions[0].PackageName)
		}
	}
}

func TestProject_Downloading(t *testing.T) {
	s := types.Downloading{Meta: exampleMeta(), Read: 512000, Total: 1024000}
	n := Project(s, testOpts)

	assert.Equal(t, "downloading Example (1.0)", n.Title)
	assert.Equal(t, "500 KiB / 1000 KiB", n.Text)
	assert.False(t, n.Indeterminate)
	assert.Equal(t, 100, n.ProgressMax)
	assert.Equal(t, 50, n.Progress)
	assert.Len(t, n.Actions, 1)
}

func TestProject_Success(t *testing.T) {
	s := types.Success{Meta: exampleMeta()}

	n := Project(s, testOpts)
	assert.Equal(t, "downloaded Example", n.Title)
	assert.False(t, n.Ongoing)
	assert.Equal(t, 5*time.Second, n.Timeout)
	assert.Empty(t, n.Actions)

	kept := Project(s, NotificationOptions{Timeout: 5 * time.Second, KeepInstallNotification: true})
	assert.Zero(t, kept.Timeout)
}

func TestProject_Cancel(t *testing.T) {
	n := Project(types.Cancel{Meta: exampleMeta()}, testOpts)
	assert.Equal(t, "downloading Example (1.0)", n.Title)
	assert.Equal(t, "canceled", n.Text)
	assert.False(t, n.Ongoing)
	assert.Equal(t, 5*time.Second, n.Timeout)
}

func TestProject_Error(t *testing.T) {
	s := types.Error{Meta: exampleMeta(), ValidationError: types.ValidationSignature, StopReason: types.StopReasonNotStopped}
	n := Project(s, testOpts)

	assert.Equal(t, "signature mismatch", n.Text)
	assert.False(t, n.Ongoing)
	assert.Equal(t, 5*time.Second, n.Timeout)
}

func TestNotificationID_Stable(t *testing.T) {
	assert.Equal(t, NotificationID("key-1"), NotificationID("key-1"))
	assert.NotEqual(t, NotificationID("key-1"), NotificationID("key-2"))
}
