package notify

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apkdock/apkdock/internal/download"
	"github.com/apkdock/apkdock/internal/engine/types"
)

func meta() types.Meta {
	return types.Meta{PackageName: "org.example", Name: "Example", Version: "2.1", RepoID: 1, CacheFileName: "org.example.apk"}
}

func TestConsole_RendersProjectedStates(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf, true)
	opts := download.NotificationOptions{Timeout: time.Minute}

	require.NoError(t, c.Notify(1, download.Project(types.Pending{Meta: meta()}, opts)))
	require.NoError(t, c.Notify(1, download.Project(types.Downloading{Meta: meta(), Read: 512000, Total: 1024000}, opts)))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "downloading Example (2.1)")
	assert.Contains(t, lines[0], "pending")
	assert.Contains(t, lines[0], "[Cancel]")
	assert.Contains(t, lines[1], "500 KiB / 1000 KiB")
	assert.Contains(t, lines[1], "50%")
	assert.Equal(t, []int32{1}, c.Active())
}

func TestConsole_PermissionDenied(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf, false)

	assert.False(t, c.Permitted())
	assert.Error(t, c.Notify(1, download.Notification{Title: "x"}))
	assert.Empty(t, buf.String())
	assert.Empty(t, c.Active())
}

func TestConsole_CancelRemoves(t *testing.T) {
	c := NewConsole(&bytes.Buffer{}, true)

	require.NoError(t, c.Notify(7, download.Notification{Title: "a", Ongoing: true}))
	require.NoError(t, c.Notify(3, download.Notification{Title: "b", Ongoing: true}))
	assert.Equal(t, []int32{3, 7}, c.Active())

	require.NoError(t, c.Cancel(7))
	require.NoError(t, c.Cancel(99))
	assert.Equal(t, []int32{3}, c.Active())
}

func TestConsole_TimeoutDismisses(t *testing.T) {
	c := NewConsole(&bytes.Buffer{}, true)

	require.NoError(t, c.Notify(1, download.Notification{Title: "done", Timeout: 10 * time.Millisecond}))
	require.NoError(t, c.Notify(2, download.Notification{Title: "kept"}))

	assert.Eventually(t, func() bool {
		active := c.Active()
		return len(active) == 1 && active[0] == 2
	}, time.Second, 5*time.Millisecond)
}

func TestConsole_ReplacingStopsOldTimer(t *testing.T) {
	c := NewConsole(&bytes.Buffer{}, true)

	require.NoError(t, c.Notify(1, download.Notification{Title: "short", Timeout: 10 * time.Millisecond}))
	require.NoError(t, c.Notify(1, download.Notification{Title: "ongoing", Ongoing: true}))

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, []int32{1}, c.Active())
}
