package download

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/apkdock/apkdock/internal/engine/events"
	"github.com/apkdock/apkdock/internal/engine/types"
	"github.com/apkdock/apkdock/internal/engine/workstate"
	"github.com/apkdock/apkdock/internal/utils"
)

// ErrHandlerStarted is returned by a second call to Start
var ErrHandlerStarted = errors.New("download state handler already started")

// DownloadStore persists the latest state of each download
type DownloadStore interface {
	Upsert(ctx context.Context, d types.Downloaded) error
}

// TaskQueue receives install tasks for finished downloads
type TaskQueue interface {
	Put(ctx context.Context, task types.InstallTask) error
}

// StateHolder is the keyed download state store the handler observes
type StateHolder = workstate.Holder[types.DownloadState]

// HandlerConfig wires a DownloadStateHandler
type HandlerConfig struct {
	States   *StateHolder
	Store    DownloadStore
	Tasks    TaskQueue
	Notifier Notifier
	Options  NotificationOptions
	// EventBuffer bounds the notification queue; a full queue blocks the
	// persistence loop
	EventBuffer int
	// Now defaults to time.Now
	Now func() time.Time
}

// DownloadStateHandler consumes download state transitions, persists them,
// hands successful downloads to the installer and drives notifications.
type DownloadStateHandler struct {
	states   *StateHolder
	store    DownloadStore
	tasks    TaskQueue
	notifier Notifier
	opts     NotificationOptions
	now      func() time.Time

	events chan events.UpdateEvent

	// last state handled per key; only touched by the state loop
	handled map[string]types.DownloadState

	started atomic.Bool
	wg      sync.WaitGroup
}

func NewDownloadStateHandler(cfg HandlerConfig) *DownloadStateHandler {
	if cfg.States == nil {
		cfg.States = workstate.New[types.DownloadState]()
	}
	if cfg.EventBuffer < 1 {
		cfg.EventBuffer = 64
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &DownloadStateHandler{
		states:   cfg.States,
		store:    cfg.Store,
		tasks:    cfg.Tasks,
		notifier: cfg.Notifier,
		opts:     cfg.Options,
		now:      cfg.Now,
		events:   make(chan events.UpdateEvent, cfg.EventBuffer),
		handled:  make(map[string]types.DownloadState),
	}
}

// States returns the holder producers write to
func (h *DownloadStateHandler) States() *StateHolder {
	return h.states
}

// Start launches the state loop and the notification loop. Both stop when ctx
// is done; pending notification events are drained first.
func (h *DownloadStateHandler) Start(ctx context.Context) error {
	if !h.started.CompareAndSwap(false, true) {
		return ErrHandlerStarted
	}
	snapshots, err := h.states.Observe(ctx)
	if err != nil {
		return fmt.Errorf("failed to observe download states: %w", err)
	}

	h.wg.Add(2)
	go func() {
		defer h.wg.Done()
		defer close(h.events)
		for snapshot := range snapshots {
			h.handleSnapshot(ctx, snapshot)
		}
	}()
	go func() {
		defer h.wg.Done()
		for event := range h.events {
			h.updateNotification(event)
		}
	}()
	return nil
}

// Wait blocks until both loops have exited
func (h *DownloadStateHandler) Wait() {
	h.wg.Wait()
}

// UpdateState publishes a new state for a download key
func (h *DownloadStateHandler) UpdateState(key string, state types.DownloadState) {
	if state == nil {
		h.states.Clear(key)
		return
	}
	h.states.Set(key, state)
}

func (h *DownloadStateHandler) handleSnapshot(ctx context.Context, snapshot workstate.Snapshot[types.DownloadState]) {
	for key := range h.handled {
		if _, ok := snapshot[key]; !ok {
			delete(h.handled, key)
		}
	}

	keys := make([]string, 0, len(snapshot))
	for key := range snapshot {
		keys = append(keys, key)
	}
	slices.Sort(keys)

	for _, key := range keys {
		state := snapshot[key]
		if prev, ok := h.handled[key]; ok && prev == state {
			continue
		}
		h.handled[key] = state
		h.handleDownloadState(ctx, key, state)
	}
}

func (h *DownloadStateHandler) handleDownloadState(ctx context.Context, key string, state types.DownloadState) {
	log := utils.Logger()
	m := types.MetaOf(state)

	if h.store != nil {
		if err := h.store.Upsert(ctx, types.NewDownloaded(state, h.now())); err != nil {
			log.Errorw("failed to persist download state",
				"key", key, "package", m.PackageName, "state", state.Kind(), "error", err)
		}
	}

	switch s := state.(type) {
	case types.Success:
		if h.tasks != nil {
			if err := h.tasks.Put(ctx, s.InstallTask(h.now())); err != nil {
				log.Errorw("failed to queue install task",
					"key", key, "package", m.PackageName, "error", err)
			}
		}
		h.states.Clear(key)

	case types.Error:
		log.Errorw("download failed",
			"package", m.PackageName, "validation_error", s.ValidationError.String())
		if s.StopReason != types.StopReasonNotStopped {
			log.Infow("download stopped by scheduler",
				"package", m.PackageName, "stop_reason", s.StopReason)
		}
	}

	h.sendEvent(ctx, events.UpdateEvent{Key: key, State: state})

	// Error and Cancel keys leave the holder once their final event is queued
	switch state.(type) {
	case types.Error, types.Cancel:
		h.states.ClearIf(key, func(cur types.DownloadState) bool { return cur == state })
	}
}

func (h *DownloadStateHandler) sendEvent(ctx context.Context, event events.UpdateEvent) {
	select {
	case h.events <- event:
		return
	default:
	}
	select {
	case h.events <- event:
	case <-ctx.Done():
		utils.Debug("Dropping notification for %s: handler stopping", event.Key)
	}
}

func (h *DownloadStateHandler) updateNotification(event events.UpdateEvent) {
	if h.notifier == nil {
		return
	}
	log := utils.Logger()
	id := NotificationID(event.Key)

	switch event.State.(type) {
	case types.Success, types.Cancel:
		if err := h.notifier.Cancel(id); err != nil {
			log.Warnw("failed to cancel notification", "key", event.Key, "error", err)
		}
	}

	if !h.notifier.Permitted() {
		return
	}
	if err := h.notifier.Notify(id, Project(event.State, h.opts)); err != nil {
		log.Warnw("failed to post notification", "key", event.Key, "error", err)
	}
}
