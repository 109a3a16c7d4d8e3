package download

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apkdock/apkdock/internal/engine/types"
)

type fakeStore struct {
	mu      sync.Mutex
	rows    []types.Downloaded
	failFor string
}

func (s *fakeStore) Upsert(_ context.Context, d types.Downloaded) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d.PackageName == s.failFor {
		return errors.New("disk full")
	}
	s.rows = append(s.rows, d)
	return nil
}

func (s *fakeStore) kinds(pkg string) []types.Kind {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []types.Kind
	for _, r := range s.rows {
		if r.PackageName == pkg {
			out = append(out, r.State.Kind())
		}
	}
	return out
}

func (s *fakeStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

type fakeQueue struct {
	mu    sync.Mutex
	tasks []types.InstallTask
	err   error
}

func (q *fakeQueue) Put(_ context.Context, task types.InstallTask) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.tasks = append(q.tasks, task)
	return nil
}

func (q *fakeQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

type postedNotification struct {
	id int32
	n  Notification
}

type fakeNotifier struct {
	mu        sync.Mutex
	denied    bool
	posted    []postedNotification
	cancelled []int32
}

func (f *fakeNotifier) Permitted() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.denied
}

func (f *fakeNotifier) Notify(id int32, n Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.posted = append(f.posted, postedNotification{id: id, n: n})
	return nil
}

func (f *fakeNotifier) Cancel(id int32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, id)
	return nil
}

func (f *fakeNotifier) postedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.posted)
}

func (f *fakeNotifier) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.posted))
	for _, p := range f.posted {
		out = append(out, p.n.Text)
	}
	return out
}

func metaFor(pkg string) types.Meta {
	return types.Meta{PackageName: pkg, Name: pkg, Version: "1.0", RepoID: 1, CacheFileName: pkg + ".apk"}
}

func startHandler(t *testing.T, cfg HandlerConfig) (*DownloadStateHandler, context.CancelFunc) {
	t.Helper()
	h := NewDownloadStateHandler(cfg)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, h.Start(ctx))
	t.Cleanup(func() {
		cancel()
		h.Wait()
	})
	return h, cancel
}

func TestHandler_PersistsEveryTransition(t *testing.T) {
	store := &fakeStore{}
	notifier := &fakeNotifier{}
	h, _ := startHandler(t, HandlerConfig{Store: store, Tasks: &fakeQueue{}, Notifier: notifier, Options: testOpts})

	m := metaFor("org.a")
	h.UpdateState("k", types.Pending{Meta: m})
	h.UpdateState("k", types.Connecting{Meta: m})
	h.UpdateState("k", types.Downloading{Meta: m, Read: 10, Total: 100})
	h.UpdateState("k", types.Downloading{Meta: m, Read: 50, Total: 100})
	h.UpdateState("k", types.Cancel{Meta: m})

	want := []types.Kind{types.KindPending, types.KindConnecting, types.KindDownloading, types.KindDownloading, types.KindCancel}
	assert.Eventually(t, func() bool { return len(store.kinds("org.a")) == len(want) }, time.Second, 5*time.Millisecond)
	assert.Equal(t, want, store.kinds("org.a"))

	assert.Eventually(t, func() bool { return notifier.postedCount() == len(want) }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"pending", "pending", "10 B / 100 B", "50 B / 100 B", "canceled"}, notifier.texts())
}

func TestHandler_UnrelatedKeysAreNotReprocessed(t *testing.T) {
	store := &fakeStore{}
	h, _ := startHandler(t, HandlerConfig{Store: store})

	h.UpdateState("a", types.Pending{Meta: metaFor("org.a")})
	h.UpdateState("b", types.Pending{Meta: metaFor("org.b")})
	h.UpdateState("b", types.Connecting{Meta: metaFor("org.b")})

	assert.Eventually(t, func() bool { return store.count() == 3 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 3, store.count())
	assert.Equal(t, []types.Kind{types.KindPending}, store.kinds("org.a"))
}

func TestHandler_SuccessQueuesInstallAndClearsKey(t *testing.T) {
	store := &fakeStore{}
	queue := &fakeQueue{}
	notifier := &fakeNotifier{}
	h, _ := startHandler(t, HandlerConfig{Store: store, Tasks: queue, Notifier: notifier, Options: testOpts})

	m := metaFor("org.a")
	h.UpdateState("k", types.Success{Meta: m, ReleaseHash: "abc"})

	assert.Eventually(t, func() bool { return queue.len() == 1 }, time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool { return h.States().Len() == 0 }, time.Second, 5*time.Millisecond)

	queue.mu.Lock()
	task := queue.tasks[0]
	queue.mu.Unlock()
	assert.Equal(t, "org.a", task.PackageName)
	assert.Equal(t, "org.a.apk", task.CacheFileName)
	assert.Equal(t, "abc", task.ReleaseHash)

	assert.Eventually(t, func() bool { return notifier.postedCount() == 1 }, time.Second, 5*time.Millisecond)
	notifier.mu.Lock()
	assert.Equal(t, []int32{NotificationID("k")}, notifier.cancelled)
	assert.Equal(t, "downloaded org.a", notifier.posted[0].n.Title)
	notifier.mu.Unlock()
	assert.Equal(t, []types.Kind{types.KindSuccess}, store.kinds("org.a"))
}

func TestHandler_QueueFailureStillClearsKey(t *testing.T) {
	queue := &fakeQueue{err: errors.New("queue closed")}
	h, _ := startHandler(t, HandlerConfig{Store: &fakeStore{}, Tasks: queue})

	h.UpdateState("k", types.Success{Meta: metaFor("org.a")})
	assert.Eventually(t, func() bool { return h.States().Len() == 0 }, time.Second, 5*time.Millisecond)
}

func TestHandler_StoreFailureIsIsolated(t *testing.T) {
	store := &fakeStore{failFor: "org.bad"}
	notifier := &fakeNotifier{}
	h, _ := startHandler(t, HandlerConfig{Store: store, Notifier: notifier, Options: testOpts})

	h.UpdateState("bad", types.Pending{Meta: metaFor("org.bad")})
	h.UpdateState("good", types.Pending{Meta: metaFor("org.good")})

	assert.Eventually(t, func() bool { return len(store.kinds("org.good")) == 1 }, time.Second, 5*time.Millisecond)
	// the failed key still gets its notification
	assert.Eventually(t, func() bool { return notifier.postedCount() == 2 }, time.Second, 5*time.Millisecond)
}

func TestHandler_NotificationsRequirePermission(t *testing.T) {
	store := &fakeStore{}
	notifier := &fakeNotifier{denied: true}
	h, _ := startHandler(t, HandlerConfig{Store: store, Notifier: notifier})

	m := metaFor("org.a")
	h.UpdateState("k", types.Pending{Meta: m})
	h.UpdateState("k", types.Cancel{Meta: m})

	assert.Eventually(t, func() bool { return store.count() == 2 }, time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool {
		notifier.mu.Lock()
		defer notifier.mu.Unlock()
		return len(notifier.cancelled) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Zero(t, notifier.postedCount())
}

func TestHandler_ErrorStateIsPersisted(t *testing.T) {
	store := &fakeStore{}
	notifier := &fakeNotifier{}
	h, _ := startHandler(t, HandlerConfig{Store: store, Notifier: notifier, Options: testOpts})

	h.UpdateState("k", types.Error{Meta: metaFor("org.a"), ValidationError: types.ValidationIntegrity, StopReason: 3})

	assert.Eventually(t, func() bool { return store.count() == 1 }, time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool { return notifier.postedCount() == 1 }, time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool { return h.States().Len() == 0 }, time.Second, 5*time.Millisecond)
}

func TestHandler_TerminalKeysAreRetired(t *testing.T) {
	store := &fakeStore{}
	h, _ := startHandler(t, HandlerConfig{Store: store, Options: testOpts})

	h.UpdateState("a", types.Downloading{Meta: metaFor("org.a"), Read: 1, Total: 2})
	h.UpdateState("b", types.Downloading{Meta: metaFor("org.b"), Read: 1, Total: 2})
	h.UpdateState("a", types.Cancel{Meta: metaFor("org.a")})

	assert.Eventually(t, func() bool { return store.count() == 3 }, time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool {
		_, ok := h.States().Get("a")
		return !ok
	}, time.Second, 5*time.Millisecond)
	_, ok := h.States().Get("b")
	assert.True(t, ok, "active downloads stay tracked")

	// a new attempt for a retired key is handled again
	h.UpdateState("a", types.Pending{Meta: metaFor("org.a")})
	assert.Eventually(t, func() bool { return store.count() == 4 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []types.Kind{types.KindDownloading, types.KindCancel, types.KindPending}, store.kinds("org.a"))
}

func TestHandler_StartTwice(t *testing.T) {
	h, _ := startHandler(t, HandlerConfig{})
	assert.ErrorIs(t, h.Start(context.Background()), ErrHandlerStarted)
}

func TestHandler_StopsOnCancel(t *testing.T) {
	h := NewDownloadStateHandler(HandlerConfig{Store: &fakeStore{}})
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, h.Start(ctx))

	cancel()
	done := make(chan struct{})
	go func() {
		h.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("handler did not stop")
	}
}

type fakeLister struct {
	rows []types.Downloaded
	err  error
}

func (l fakeLister) ListInterrupted(context.Context) ([]types.Downloaded, error) {
	return l.rows, l.err
}

func TestHandler_RecoverCancelsInterrupted(t *testing.T) {
	store := &fakeStore{}
	h, _ := startHandler(t, HandlerConfig{Store: store})

	now := time.Now()
	lister := fakeLister{rows: []types.Downloaded{
		types.NewDownloaded(types.Downloading{Meta: metaFor("org.a"), Read: 1, Total: 2}, now),
		types.NewDownloaded(types.Pending{Meta: metaFor("org.b")}, now),
	}}

	n, err := h.Recover(context.Background(), lister)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	assert.Eventually(t, func() bool { return store.count() == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []types.Kind{types.KindCancel}, store.kinds("org.a"))
	assert.Equal(t, []types.Kind{types.KindCancel}, store.kinds("org.b"))

	_, err = h.Recover(context.Background(), fakeLister{err: errors.New("boom")})
	assert.Error(t, err)
}

type recordingUpdater struct {
	mu   sync.Mutex
	keys []string
}

func (r *recordingUpdater) UpdateState(key string, _ types.DownloadState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys = append(r.keys, key)
}

func TestBridge_Submit(t *testing.T) {
	updater := &recordingUpdater{}
	bridge := NewBridge(nil, updater)

	dto := types.StateDTO{Kind: types.KindDownloading, Meta: metaFor("org.a"), Read: 1, Total: 10}
	report := Report{TaskID: "t1", Key: "org.a:1", WorkState: types.WorkRunning, Progress: types.Progress{Read: 1, Total: 10}, State: dto}

	ok, err := bridge.Submit(report)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = bridge.Submit(report)
	require.NoError(t, err)
	assert.False(t, ok, "replayed report is dropped")

	report.Key = ""
	report.Progress.Read = 2
	ok, err = bridge.Submit(report)
	require.NoError(t, err)
	assert.True(t, ok)

	assert.Equal(t, []string{"org.a:1", "t1"}, updater.keys)
}

func TestBridge_RejectsBadReports(t *testing.T) {
	bridge := NewBridge(nil, &recordingUpdater{})

	_, err := bridge.Submit(Report{State: types.StateDTO{Kind: types.KindPending, Meta: metaFor("org.a")}})
	assert.Error(t, err)

	_, err = bridge.Submit(Report{TaskID: "t", State: types.StateDTO{Kind: "bogus"}})
	assert.Error(t, err)

	_, err = bridge.Submit(Report{TaskID: "t", State: types.StateDTO{Kind: types.KindPending}})
	assert.Error(t, err)
}
