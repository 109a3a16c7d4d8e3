// Package installer installs and uninstalls packages through a root shell.
package installer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/apkdock/apkdock/internal/engine/events"
	"github.com/apkdock/apkdock/internal/utils"
)

var (
	// ErrNoSessionID is returned when install-create prints no session id
	ErrNoSessionID = errors.New("installer: no install session id in output")
	// ErrUtilBoxNotFound is returned when neither toybox nor busybox exist
	ErrUtilBoxNotFound = errors.New("installer: no toybox or busybox found")
	// ErrInstallerClosed is returned for work submitted after Close
	ErrInstallerClosed = errors.New("installer: closed")
	ErrQueueFull       = errors.New("installer: job queue is full")
	// ErrInvalidPackageName is returned for names that are not Android
	// package names
	ErrInvalidPackageName = errors.New("installer: invalid package name")
)

const (
	installPackageCmd   = "cat %s | pm install --install-location 2 -i %s --user %s -t -r -S %d"
	sessionCreateCmd    = "pm install-create -i %s --user %s -r -S %d"
	sessionWriteCmd     = "cat %s | pm install-write -S %d %d %s"
	sessionCommitCmd    = "pm install-commit %d"
	uninstallPackageCmd = "pm uninstall --user %s %s"
	deletePackageCmd    = "%s rm %s"
)

var (
	sessionIDPattern   = regexp.MustCompile(`(\d+)`)
	packageNamePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*(\.[A-Za-z][A-Za-z0-9_]*)+$`)
)

// ValidatePackageName checks name against the Android package name grammar
func ValidatePackageName(name string) error {
	if !packageNamePattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidPackageName, name)
	}
	return nil
}

var quoteReplacer = strings.NewReplacer(`\`, `\\`, `$`, `\$`, `"`, `\"`, "`", "\\`")

// Quote wraps s in double quotes for the shell
func Quote(s string) string {
	return `"` + quoteReplacer.Replace(s) + `"`
}

// Step is how far an install got
type Step int

const (
	StepNone Step = iota
	StepCreated
	StepWritten
	StepCommitted
	StepCacheDeleted
)

func (s Step) String() string {
	switch s {
	case StepCreated:
		return "created"
	case StepWritten:
		return "written"
	case StepCommitted:
		return "committed"
	case StepCacheDeleted:
		return "cache_deleted"
	default:
		return "none"
	}
}

// Config controls how packages are installed
type Config struct {
	ApplicationID string
	// Session installs through pm install-create/write/commit
	Session bool
	// Queue bounds the number of pending jobs
	Queue int
	// OnResult is called after every job
	OnResult func(events.InstallResultMsg)
}

type job struct {
	packageName string
	path        string
	uninstall   bool
}

// RootInstaller runs install and uninstall jobs one at a time on a background
// worker
type RootInstaller struct {
	shell Shell
	users UserResolver
	cfg   Config

	jobs   chan job
	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

func NewRootInstaller(shell Shell, users UserResolver, cfg Config) *RootInstaller {
	if cfg.Queue < 1 {
		cfg.Queue = 100
	}
	return &RootInstaller{
		shell: shell,
		users: users,
		cfg:   cfg,
		jobs:  make(chan job, cfg.Queue),
	}
}

// Start launches the worker. It runs queued jobs until Close is called and
// the queue is drained. Jobs already accepted still run after ctx is done, so
// their shell commands get a context that is never canceled.
func (r *RootInstaller) Start(ctx context.Context) {
	jobCtx := context.WithoutCancel(ctx)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for j := range r.jobs {
			r.run(jobCtx, j)
		}
	}()
}

// Install queues an install of the package file at path
func (r *RootInstaller) Install(packageName, path string) error {
	return r.submit(job{packageName: packageName, path: path})
}

// Uninstall queues removal of packageName
func (r *RootInstaller) Uninstall(packageName string) error {
	if err := ValidatePackageName(packageName); err != nil {
		return err
	}
	return r.submit(job{packageName: packageName, uninstall: true})
}

func (r *RootInstaller) submit(j job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrInstallerClosed
	}
	select {
	case r.jobs <- j:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops accepting jobs and waits for queued ones
func (r *RootInstaller) Close() {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.jobs)
	}
	r.mu.Unlock()
	r.wg.Wait()
}

func (r *RootInstaller) run(ctx context.Context, j job) {
	start := time.Now()
	msg := events.InstallResultMsg{PackageName: j.packageName}

	if j.uninstall {
		msg.Err = r.UninstallPackage(ctx, j.packageName)
		msg.Step = "uninstalled"
		if msg.Err != nil {
			msg.Step = StepNone.String()
		}
	} else {
		step, err := r.InstallFile(ctx, j.path)
		msg.Step = step.String()
		msg.Err = err
	}
	msg.Elapsed = time.Since(start)

	if msg.Err != nil {
		utils.Logger().Errorw("root job failed",
			"package", j.packageName, "step", msg.Step, "error", msg.Err)
	} else {
		utils.Debug("Root job for %s finished at step %s in %s", j.packageName, msg.Step, msg.Elapsed)
	}
	if r.cfg.OnResult != nil {
		r.cfg.OnResult(msg)
	}
}

// InstallFile installs the package file at path and removes it on success.
// The returned step is the last one that completed.
func (r *RootInstaller) InstallFile(ctx context.Context, path string) (Step, error) {
	info, err := os.Stat(path)
	if err != nil {
		return StepNone, fmt.Errorf("failed to stat package file: %w", err)
	}
	user, err := r.users.CurrentUser(ctx)
	if err != nil {
		return StepNone, err
	}

	if r.cfg.Session {
		return r.installSession(ctx, path, info.Size(), user)
	}
	return r.installDirect(ctx, path, info.Size(), user)
}

func (r *RootInstaller) installDirect(ctx context.Context, path string, size int64, user string) (Step, error) {
	command := fmt.Sprintf(installPackageCmd, Quote(path), r.cfg.ApplicationID, user, size)
	if err := r.exec(ctx, "install", command); err != nil {
		return StepNone, err
	}
	// a direct install covers the create, write and commit steps at once
	return r.deleteCache(ctx, path, StepCommitted)
}

func (r *RootInstaller) installSession(ctx context.Context, path string, size int64, user string) (Step, error) {
	res, err := r.shell.RunAsRoot(ctx, fmt.Sprintf(sessionCreateCmd, r.cfg.ApplicationID, user, size))
	if err != nil {
		return StepNone, fmt.Errorf("install-create: %w", err)
	}
	if !res.Success {
		return StepNone, fmt.Errorf("install-create exited with %d: %s", res.Exit, strings.Join(res.Err, " "))
	}
	sessionID, err := parseSessionID(res.Out)
	if err != nil {
		return StepNone, err
	}

	command := fmt.Sprintf(sessionWriteCmd, Quote(path), size, sessionID, Quote(filepath.Base(path)))
	if err := r.exec(ctx, "install-write", command); err != nil {
		return StepCreated, err
	}
	if err := r.exec(ctx, "install-commit", fmt.Sprintf(sessionCommitCmd, sessionID)); err != nil {
		return StepWritten, err
	}
	return r.deleteCache(ctx, path, StepCommitted)
}

// deleteCache removes the installed file; a failure here leaves the install
// itself in place
func (r *RootInstaller) deleteCache(ctx context.Context, path string, done Step) (Step, error) {
	box, err := r.utilBox(ctx)
	if err != nil {
		return done, err
	}
	if err := r.exec(ctx, "delete package", fmt.Sprintf(deletePackageCmd, box, Quote(path))); err != nil {
		return done, err
	}
	return StepCacheDeleted, nil
}

// UninstallPackage removes packageName for the current user
func (r *RootInstaller) UninstallPackage(ctx context.Context, packageName string) error {
	if err := ValidatePackageName(packageName); err != nil {
		return err
	}
	user, err := r.users.CurrentUser(ctx)
	if err != nil {
		return err
	}
	return r.exec(ctx, "uninstall", fmt.Sprintf(uninstallPackageCmd, user, Quote(packageName)))
}

func (r *RootInstaller) utilBox(ctx context.Context) (string, error) {
	for _, name := range []string{"toybox", "busybox"} {
		res, err := r.shell.RunAsRoot(ctx, "which "+name)
		if err != nil {
			return "", err
		}
		if path := strings.Join(res.Out, ""); path != "" {
			return Quote(path), nil
		}
	}
	return "", ErrUtilBoxNotFound
}

func (r *RootInstaller) exec(ctx context.Context, name, command string) error {
	utils.Debug("Root shell: %s", command)
	res, err := r.shell.RunAsRoot(ctx, command)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	if !res.Success {
		return fmt.Errorf("%s exited with %d: %s", name, res.Exit, strings.Join(res.Err, " "))
	}
	return nil
}

func parseSessionID(out []string) (int, error) {
	var first string
	if len(out) > 0 {
		first = out[0]
	}
	m := sessionIDPattern.FindString(first)
	if m == "" {
		return 0, ErrNoSessionID
	}
	var id int
	if _, err := fmt.Sscanf(m, "%d", &id); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrNoSessionID, err)
	}
	return id, nil
}
