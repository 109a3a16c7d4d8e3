package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMeta() Meta {
	return Meta{
		PackageName:   "org.example",
		Name:          "Example",
		Version:       "1.0",
		RepoID:        3,
		CacheFileName: "org.example_1.apk",
	}
}

func TestDownloading_Progress(t *testing.T) {
	tests := []struct {
		name        string
		read, total int64
		want        int
	}{
		{"half", 512000, 1024000, 50},
		{"unknown total", 100, 0, 0},
		{"nothing read", 0, 100, 0},
		{"complete", 100, 100, 100},
		{"overshoot clamps", 150, 100, 100},
		{"rounds down", 999, 1000, 99},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Downloading{Meta: testMeta(), Read: tt.read, Total: tt.total}
			if got := d.Progress(); got != tt.want {
				t.Errorf("Progress() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestIsTerminal(t *testing.T) {
	m := testMeta()
	assert.False(t, IsTerminal(Pending{m}))
	assert.False(t, IsTerminal(Connecting{m}))
	assert.False(t, IsTerminal(Downloading{Meta: m}))
	assert.True(t, IsTerminal(Success{Meta: m}))
	assert.True(t, IsTerminal(Error{Meta: m}))
	assert.True(t, IsTerminal(Cancel{m}))
}

func TestStateSnapshotRoundTrip(t *testing.T) {
	m := testMeta()
	states := []DownloadState{
		Pending{m},
		Connecting{m},
		Downloading{Meta: m, Read: 10, Total: 20},
		Success{Meta: m, ReleaseHash: "abc"},
		Error{Meta: m, ValidationError: ValidationSignature, StopReason: 2},
		Cancel{m},
	}

	for _, s := range states {
		t.Run(string(s.Kind()), func(t *testing.T) {
			data, err := MarshalState(s)
			require.NoError(t, err)

			decoded, err := UnmarshalState(data)
			require.NoError(t, err)
			assert.Equal(t, s, decoded)
		})
	}
}

func TestUnmarshalState_UnknownKind(t *testing.T) {
	_, err := UnmarshalState([]byte(`{"kind":"paused","state":{}}`))
	assert.Error(t, err)
}

func TestSuccess_InstallTask(t *testing.T) {
	now := time.Unix(1700000000, 0)
	task := Success{Meta: testMeta(), ReleaseHash: "h"}.InstallTask(now)

	assert.Equal(t, "org.example", task.PackageName)
	assert.Equal(t, "org.example_1.apk", task.CacheFileName)
	assert.Equal(t, int64(3), task.RepositoryID)
	assert.Equal(t, "h", task.ReleaseHash)
	assert.Equal(t, now, task.Added)
}

func TestStateDTO_ErrorDefaultsStopReason(t *testing.T) {
	s, err := StateDTO{Kind: KindError, Meta: testMeta(), ValidationError: ValidationIntegrity}.State()
	require.NoError(t, err)

	e, ok := s.(Error)
	require.True(t, ok)
	assert.Equal(t, StopReasonNotStopped, e.StopReason)
	assert.Equal(t, ValidationIntegrity, e.ValidationError)
}

func TestNewStateDTO_RoundTrip(t *testing.T) {
	states := []DownloadState{
		Pending{testMeta()},
		Downloading{Meta: testMeta(), Read: 3, Total: 9},
		Success{Meta: testMeta(), ReleaseHash: "deadbeef"},
		Error{Meta: testMeta(), ValidationError: ValidationFormat, StopReason: 2},
		Cancel{testMeta()},
	}
	for _, s := range states {
		back, err := NewStateDTO(s).State()
		require.NoError(t, err)
		assert.Equal(t, s, back)
	}
}

func TestWorkState(t *testing.T) {
	assert.True(t, WorkSucceeded.IsFinished())
	assert.True(t, WorkFailed.IsFinished())
	assert.True(t, WorkCancelled.IsFinished())
	assert.False(t, WorkRunning.IsFinished())
	assert.False(t, WorkBlocked.IsFinished())

	parsed, err := ParseWorkState("running")
	require.NoError(t, err)
	assert.Equal(t, WorkRunning, parsed)

	_, err = ParseWorkState("sleeping")
	assert.Error(t, err)
}
