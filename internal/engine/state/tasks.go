package state

import (
	"context"
	"fmt"
	"time"

	"github.com/apkdock/apkdock/internal/engine/types"
)

// PutInstallTask queues a task. A newer task for the same package replaces
// the older one.
func (s *Store) PutInstallTask(ctx context.Context, task types.InstallTask) error {
	if task.Added.IsZero() {
		task.Added = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO install_tasks (
			package_name, name, version, repository_id, cache_file_name, release_hash, added
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(package_name) DO UPDATE SET
			name=excluded.name,
			version=excluded.version,
			repository_id=excluded.repository_id,
			cache_file_name=excluded.cache_file_name,
			release_hash=excluded.release_hash,
			added=excluded.added
	`, task.PackageName, task.Name, task.Version, task.RepositoryID, task.CacheFileName, task.ReleaseHash, task.Added.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to put install task: %w", err)
	}
	return nil
}

// ListInstallTasks returns pending tasks, oldest first
func (s *Store) ListInstallTasks(ctx context.Context) ([]types.InstallTask, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT package_name, name, version, repository_id, cache_file_name, release_hash, added
		FROM install_tasks
		ORDER BY added ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query install tasks: %w", err)
	}
	defer rows.Close()

	var tasks []types.InstallTask
	for rows.Next() {
		var (
			t     types.InstallTask
			added int64
		)
		if err := rows.Scan(&t.PackageName, &t.Name, &t.Version, &t.RepositoryID, &t.CacheFileName, &t.ReleaseHash, &added); err != nil {
			return nil, err
		}
		t.Added = time.UnixMilli(added)
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// DeleteInstallTask removes the task of a package once it was handed off.
// Only the task with the given cache file is removed, so a newer task queued
// in the meantime survives.
func (s *Store) DeleteInstallTask(ctx context.Context, packageName, cacheFileName string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM install_tasks WHERE package_name = ? AND cache_file_name = ?", packageName, cacheFileName)
	if err != nil {
		return fmt.Errorf("failed to delete install task: %w", err)
	}
	return nil
}
