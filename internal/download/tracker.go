package download

import (
	"sync"

	"github.com/apkdock/apkdock/internal/engine/types"
)

type trackedWork struct {
	state    types.WorkState
	progress types.Progress
}

// DownloadsTracker filters repeated scheduler reports so that only new
// observations reach the state handler
type DownloadsTracker struct {
	activeWorks sync.Map // taskID -> trackedWork
}

func NewDownloadsTracker() *DownloadsTracker {
	return &DownloadsTracker{}
}

// TrackWork records a report and returns true if it is a state we have not
// processed: the scheduler state changed, or a running task reported
// different progress. Finished tasks are forgotten after their final report.
func (t *DownloadsTracker) TrackWork(taskID string, state types.WorkState, progress types.Progress) bool {
	current := trackedWork{state: state, progress: progress}
	prev, loaded := t.activeWorks.Swap(taskID, current)

	if state.IsFinished() {
		t.activeWorks.CompareAndDelete(taskID, current)
	}

	if !loaded {
		return true
	}
	previous := prev.(trackedWork)
	return previous.state != state ||
		(state == types.WorkRunning && previous.progress != progress)
}

// Active returns the number of tasks currently tracked
func (t *DownloadsTracker) Active() int {
	n := 0
	t.activeWorks.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// Tracked reports whether a task id has a bookkeeping entry
func (t *DownloadsTracker) Tracked(taskID string) bool {
	_, ok := t.activeWorks.Load(taskID)
	return ok
}
