package download

import (
	"fmt"

	"github.com/apkdock/apkdock/internal/engine/types"
)

// Report is one progress report from the external work scheduler
type Report struct {
	TaskID    string          `json:"task_id"`
	Key       string          `json:"key"`
	WorkState types.WorkState `json:"work_state"`
	Progress  types.Progress  `json:"progress"`
	State     types.StateDTO  `json:"state"`
}

// StateUpdater accepts new download states
type StateUpdater interface {
	UpdateState(key string, state types.DownloadState)
}

// Bridge forwards scheduler reports to the state handler, dropping the ones
// the tracker has already seen
type Bridge struct {
	tracker *DownloadsTracker
	updater StateUpdater
}

func NewBridge(tracker *DownloadsTracker, updater StateUpdater) *Bridge {
	if tracker == nil {
		tracker = NewDownloadsTracker()
	}
	return &Bridge{tracker: tracker, updater: updater}
}

// Submit returns true if the report was forwarded
func (b *Bridge) Submit(r Report) (bool, error) {
	if r.TaskID == "" {
		return false, fmt.Errorf("report has no task id")
	}
	state, err := r.State.State()
	if err != nil {
		return false, err
	}
	if types.MetaOf(state).PackageName == "" {
		return false, fmt.Errorf("report for task %s has no package name", r.TaskID)
	}

	if !b.tracker.TrackWork(r.TaskID, r.WorkState, r.Progress) {
		return false, nil
	}

	key := r.Key
	if key == "" {
		key = r.TaskID
	}
	b.updater.UpdateState(key, state)
	return true, nil
}
