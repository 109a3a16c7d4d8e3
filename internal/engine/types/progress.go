package types

import (
	"fmt"
	"strings"
	"time"
)

// WorkState mirrors the lifecycle enum of the external work scheduler
type WorkState int

const (
	WorkEnqueued WorkState = iota
	WorkRunning
	WorkSucceeded
	WorkFailed
	WorkBlocked
	WorkCancelled
)

var workStateNames = map[WorkState]string{
	WorkEnqueued:  "ENQUEUED",
	WorkRunning:   "RUNNING",
	WorkSucceeded: "SUCCEEDED",
	WorkFailed:    "FAILED",
	WorkBlocked:   "BLOCKED",
	WorkCancelled: "CANCELLED",
}

func (w WorkState) String() string {
	if name, ok := workStateNames[w]; ok {
		return name
	}
	return fmt.Sprintf("WorkState(%d)", int(w))
}

// IsFinished reports whether the scheduler will not report this task again
func (w WorkState) IsFinished() bool {
	return w == WorkSucceeded || w == WorkFailed || w == WorkCancelled
}

// ParseWorkState accepts the names produced by String, case-insensitively
func ParseWorkState(s string) (WorkState, error) {
	upper := strings.ToUpper(strings.TrimSpace(s))
	for state, name := range workStateNames {
		if name == upper {
			return state, nil
		}
	}
	return 0, fmt.Errorf("unknown work state %q", s)
}

func (w WorkState) MarshalText() ([]byte, error) {
	return []byte(w.String()), nil
}

func (w *WorkState) UnmarshalText(b []byte) error {
	parsed, err := ParseWorkState(string(b))
	if err != nil {
		return err
	}
	*w = parsed
	return nil
}

// Progress is the raw progress payload attached to a scheduler report.
// The zero value stands for "no progress data".
type Progress struct {
	Read  int64 `json:"read"`
	Total int64 `json:"total"`
}

// Downloaded is the persisted record of the latest state of a package download
type Downloaded struct {
	PackageName   string        `json:"package_name"`
	Version       string        `json:"version"`
	RepositoryID  int64         `json:"repository_id"`
	CacheFileName string        `json:"cache_file_name"`
	Changed       time.Time     `json:"changed"`
	State         DownloadState `json:"-"`
}

// NewDownloaded builds the record for a state observed at now
func NewDownloaded(state DownloadState, now time.Time) Downloaded {
	m := MetaOf(state)
	return Downloaded{
		PackageName:   m.PackageName,
		Version:       m.Version,
		RepositoryID:  m.RepoID,
		CacheFileName: m.CacheFileName,
		Changed:       now,
		State:         state,
	}
}

// InstallTask identifies a cache file ready to be installed
type InstallTask struct {
	PackageName   string    `json:"package_name"`
	Name          string    `json:"name"`
	Version       string    `json:"version"`
	RepositoryID  int64     `json:"repository_id"`
	CacheFileName string    `json:"cache_file_name"`
	ReleaseHash   string    `json:"release_hash,omitempty"`
	Added         time.Time `json:"added"`
}
