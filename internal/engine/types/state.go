package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// StopReasonNotStopped is reported by the scheduler when a task was not halted
// by the scheduler itself.
const StopReasonNotStopped = -256

// Kind names a DownloadState variant. It is also the discriminator of the
// persisted JSON snapshot.
type Kind string

const (
	KindPending     Kind = "pending"
	KindConnecting  Kind = "connecting"
	KindDownloading Kind = "downloading"
	KindSuccess     Kind = "success"
	KindError       Kind = "error"
	KindCancel      Kind = "cancel"
)

// Meta holds the fields common to every download state
type Meta struct {
	PackageName   string `json:"package_name"`
	Name          string `json:"name"`
	Version       string `json:"version"`
	RepoID        int64  `json:"repo_id"`
	CacheFileName string `json:"cache_file_name"`
}

func (m Meta) meta() Meta { return m }

// DownloadState is the lifecycle state of one download. The variant set is
// closed: Pending, Connecting, Downloading, Success, Error and Cancel.
type DownloadState interface {
	Kind() Kind
	meta() Meta
}

type Pending struct{ Meta }

type Connecting struct{ Meta }

type Downloading struct {
	Meta
	Read  int64 `json:"read"`
	Total int64 `json:"total"`
}

type Success struct {
	Meta
	ReleaseHash string `json:"release_hash,omitempty"`
}

type Error struct {
	Meta
	ValidationError ValidationError `json:"validation_error"`
	StopReason      int             `json:"stop_reason"`
}

type Cancel struct{ Meta }

func (Pending) Kind() Kind     { return KindPending }
func (Connecting) Kind() Kind  { return KindConnecting }
func (Downloading) Kind() Kind { return KindDownloading }
func (Success) Kind() Kind     { return KindSuccess }
func (Error) Kind() Kind       { return KindError }
func (Cancel) Kind() Kind      { return KindCancel }

// Progress returns the completed percentage in [0, 100]. An unknown total
// reports 0.
func (d Downloading) Progress() int {
	if d.Total <= 0 || d.Read <= 0 {
		return 0
	}
	if d.Read >= d.Total {
		return 100
	}
	return int(d.Read * 100 / d.Total)
}

// InstallTask derives the task handed to the installer subsystem.
func (s Success) InstallTask(now time.Time) InstallTask {
	return InstallTask{
		PackageName:   s.PackageName,
		Name:          s.Name,
		Version:       s.Version,
		RepositoryID:  s.RepoID,
		CacheFileName: s.CacheFileName,
		ReleaseHash:   s.ReleaseHash,
		Added:         now,
	}
}

// MetaOf returns the common fields of any state.
func MetaOf(s DownloadState) Meta {
	return s.meta()
}

// IsTerminal reports whether no further transitions are expected after s.
func IsTerminal(s DownloadState) bool {
	switch s.(type) {
	case Success, Error, Cancel:
		return true
	default:
		return false
	}
}

type envelope struct {
	Kind  Kind            `json:"kind"`
	State json.RawMessage `json:"state"`
}

// MarshalState encodes a state with its kind discriminator
func MarshalState(s DownloadState) ([]byte, error) {
	if s == nil {
		return nil, fmt.Errorf("nil download state")
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelope{Kind: s.Kind(), State: raw})
}

// UnmarshalState decodes a snapshot written by MarshalState
func UnmarshalState(data []byte) (DownloadState, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to decode state envelope: %w", err)
	}
	return decodeKind(env.Kind, env.State)
}

func decodeKind(kind Kind, raw json.RawMessage) (DownloadState, error) {
	var (
		s   DownloadState
		err error
	)
	switch kind {
	case KindPending:
		var v Pending
		err = json.Unmarshal(raw, &v)
		s = v
	case KindConnecting:
		var v Connecting
		err = json.Unmarshal(raw, &v)
		s = v
	case KindDownloading:
		var v Downloading
		err = json.Unmarshal(raw, &v)
		s = v
	case KindSuccess:
		var v Success
		err = json.Unmarshal(raw, &v)
		s = v
	case KindError:
		var v Error
		err = json.Unmarshal(raw, &v)
		s = v
	case KindCancel:
		var v Cancel
		err = json.Unmarshal(raw, &v)
		s = v
	default:
		return nil, fmt.Errorf("unknown download state kind %q", kind)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s state: %w", kind, err)
	}
	return s, nil
}

// StateDTO is the flat wire form used by the control endpoint
type StateDTO struct {
	Kind Kind `json:"kind"`
	Meta
	Read            int64           `json:"read,omitempty"`
	Total           int64           `json:"total,omitempty"`
	ReleaseHash     string          `json:"release_hash,omitempty"`
	ValidationError ValidationError `json:"validation_error,omitempty"`
	StopReason      *int            `json:"stop_reason,omitempty"`
}

// State converts the flat form into its variant
func (d StateDTO) State() (DownloadState, error) {
	switch d.Kind {
	case KindPending:
		return Pending{d.Meta}, nil
	case KindConnecting:
		return Connecting{d.Meta}, nil
	case KindDownloading:
		return Downloading{Meta: d.Meta, Read: d.Read, Total: d.Total}, nil
	case KindSuccess:
		return Success{Meta: d.Meta, ReleaseHash: d.ReleaseHash}, nil
	case KindError:
		stop := StopReasonNotStopped
		if d.StopReason != nil {
			stop = *d.StopReason
		}
		return Error{Meta: d.Meta, ValidationError: d.ValidationError, StopReason: stop}, nil
	case KindCancel:
		return Cancel{d.Meta}, nil
	default:
		return nil, fmt.Errorf("unknown download state kind %q", d.Kind)
	}
}

// NewStateDTO flattens a state into its wire form
func NewStateDTO(s DownloadState) StateDTO {
	d := StateDTO{Kind: s.Kind(), Meta: MetaOf(s)}
	switch v := s.(type) {
	case Downloading:
		d.Read, d.Total = v.Read, v.Total
	case Success:
		d.ReleaseHash = v.ReleaseHash
	case Error:
		stop := v.StopReason
		d.ValidationError, d.StopReason = v.ValidationError, &stop
	}
	return d
}
