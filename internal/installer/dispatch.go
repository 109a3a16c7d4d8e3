package installer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/apkdock/apkdock/internal/engine/events"
	"github.com/apkdock/apkdock/internal/engine/types"
	"github.com/apkdock/apkdock/internal/utils"
)

// ErrNotPackageArchive is returned for cache files that are not zip based
// package archives
var ErrNotPackageArchive = errors.New("installer: not a package archive")

// TaskStore persists install tasks until they are handed to an installer
type TaskStore interface {
	PutInstallTask(ctx context.Context, task types.InstallTask) error
	ListInstallTasks(ctx context.Context) ([]types.InstallTask, error)
	DeleteInstallTask(ctx context.Context, packageName, cacheFileName string) error
}

// PackageInstaller accepts install jobs; it owns the file from then on
type PackageInstaller interface {
	Install(packageName, path string) error
}

type DispatcherConfig struct {
	Store     TaskStore
	Installer PackageInstaller
	CacheDir  string
	Workers   int
	// ProgressCh receives events.InstallStartedMsg; optional
	ProgressCh chan<- any
}

// Dispatcher hands persisted install tasks to the installer
type Dispatcher struct {
	store      TaskStore
	installer  PackageInstaller
	cacheDir   string
	progressCh chan<- any
	workers    int

	taskChan chan types.InstallTask
	queued   map[string]types.InstallTask // by package name
	mu       sync.Mutex
	closed   bool
	wg       sync.WaitGroup
}

func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	return &Dispatcher{
		store:      cfg.Store,
		installer:  cfg.Installer,
		cacheDir:   cfg.CacheDir,
		progressCh: cfg.ProgressCh,
		workers:    cfg.Workers,
		taskChan:   make(chan types.InstallTask, 100),
		queued:     make(map[string]types.InstallTask),
	}
}

// Start launches the workers and re-queues tasks left over from a previous run
func (d *Dispatcher) Start(ctx context.Context) error {
	pending, err := d.store.ListInstallTasks(ctx)
	if err != nil {
		return fmt.Errorf("failed to load pending install tasks: %w", err)
	}

	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.worker(ctx)
	}

	// workers are already draining taskChan, so a backlog larger than its
	// buffer does not block here
	for _, task := range pending {
		utils.Debug("Dispatcher: re-queueing install of %s", task.PackageName)
		if err := d.enqueue(ctx, task); err != nil {
			return err
		}
	}
	return nil
}

// Put persists the task and queues it for installation
func (d *Dispatcher) Put(ctx context.Context, task types.InstallTask) error {
	if err := d.store.PutInstallTask(ctx, task); err != nil {
		return err
	}
	return d.enqueue(ctx, task)
}

func (d *Dispatcher) enqueue(ctx context.Context, task types.InstallTask) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return fmt.Errorf("dispatcher is shut down")
	}
	if prev, ok := d.queued[task.PackageName]; ok && prev.CacheFileName == task.CacheFileName {
		d.mu.Unlock()
		return nil
	}
	d.queued[task.PackageName] = task
	d.mu.Unlock()

	select {
	case d.taskChan <- task:
		return nil
	case <-ctx.Done():
		d.mu.Lock()
		delete(d.queued, task.PackageName)
		d.mu.Unlock()
		return ctx.Err()
	}
}

// Queued returns the package names waiting for a worker
func (d *Dispatcher) Queued() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	names := make([]string, 0, len(d.queued))
	for name := range d.queued {
		names = append(names, name)
	}
	return names
}

// Shutdown stops the workers after the queue drains
func (d *Dispatcher) Shutdown() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.taskChan)
	}
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *Dispatcher) worker(ctx context.Context) {
	defer d.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case task, ok := <-d.taskChan:
			if !ok {
				return
			}
			d.mu.Lock()
			if cur, ok := d.queued[task.PackageName]; ok && cur.CacheFileName == task.CacheFileName {
				delete(d.queued, task.PackageName)
			}
			d.mu.Unlock()

			if err := d.dispatch(ctx, task); err != nil {
				utils.Logger().Errorw("install task failed",
					"package", task.PackageName, "cache_file", task.CacheFileName, "error", err)
			}
		}
	}
}

// dispatch validates the cached file and hands it over. The task row is
// removed once the installer accepted it or the file can never be installed.
func (d *Dispatcher) dispatch(ctx context.Context, task types.InstallTask) error {
	path, err := utils.ResolveCacheFile(d.cacheDir, task.CacheFileName)
	if err == nil {
		var ok bool
		ok, err = utils.IsPackageArchive(path)
		if err == nil && !ok {
			err = fmt.Errorf("%w: %s", ErrNotPackageArchive, task.CacheFileName)
		}
	}
	if err != nil {
		if delErr := d.store.DeleteInstallTask(ctx, task.PackageName, task.CacheFileName); delErr != nil {
			utils.Logger().Warnw("failed to drop install task", "package", task.PackageName, "error", delErr)
		}
		return err
	}

	if err := d.installer.Install(task.PackageName, path); err != nil {
		// keep the row so the next start retries it
		return fmt.Errorf("installer rejected %s: %w", task.PackageName, err)
	}
	if d.progressCh != nil {
		select {
		case d.progressCh <- events.InstallStartedMsg{PackageName: task.PackageName, CacheFileName: task.CacheFileName}:
		default:
		}
	}
	return d.store.DeleteInstallTask(ctx, task.PackageName, task.CacheFileName)
}
