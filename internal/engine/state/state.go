package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/apkdock/apkdock/internal/engine/types"
)

// ErrNotFound is returned when no row matches
var ErrNotFound = errors.New("state: not found")

// Upsert stores the latest state of a package download. Rows are keyed by
// package name and repository; an older Changed timestamp never overwrites a
// newer one.
func (s *Store) Upsert(ctx context.Context, d types.Downloaded) error {
	if d.State == nil {
		return fmt.Errorf("download record for %s has no state", d.PackageName)
	}
	snapshot, err := types.MarshalState(d.State)
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}
	if d.Changed.IsZero() {
		d.Changed = time.Now()
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO downloaded (
				package_name, repository_id, version, cache_file_name, changed, state_kind, state
			) VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(package_name, repository_id) DO UPDATE SET
				version=excluded.version,
				cache_file_name=excluded.cache_file_name,
				changed=excluded.changed,
				state_kind=excluded.state_kind,
				state=excluded.state
			WHERE excluded.changed >= downloaded.changed
		`, d.PackageName, d.RepositoryID, d.Version, d.CacheFileName, d.Changed.UnixMilli(), string(d.State.Kind()), snapshot)
		if err != nil {
			return fmt.Errorf("failed to upsert download: %w", err)
		}
		return nil
	})
}

// Get returns the record for a package in a repository
func (s *Store) Get(ctx context.Context, packageName string, repositoryID int64) (*types.Downloaded, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT package_name, repository_id, version, cache_file_name, changed, state
		FROM downloaded
		WHERE package_name = ? AND repository_id = ?
	`, packageName, repositoryID)

	d, err := scanDownloaded(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s in repository %d: %w", packageName, repositoryID, ErrNotFound)
		}
		return nil, err
	}
	return d, nil
}

// ListDownloads returns every record, most recently changed first
func (s *Store) ListDownloads(ctx context.Context) ([]types.Downloaded, error) {
	return s.queryDownloads(ctx, `
		SELECT package_name, repository_id, version, cache_file_name, changed, state
		FROM downloaded
		ORDER BY changed DESC
	`)
}

// ListInterrupted returns records whose last state is not terminal. After a
// restart these are downloads the scheduler will never finish.
func (s *Store) ListInterrupted(ctx context.Context) ([]types.Downloaded, error) {
	return s.queryDownloads(ctx, `
		SELECT package_name, repository_id, version, cache_file_name, changed, state
		FROM downloaded
		WHERE state_kind IN (?, ?, ?)
		ORDER BY changed ASC
	`, string(types.KindPending), string(types.KindConnecting), string(types.KindDownloading))
}

// RemoveDownload deletes the record of one package download
func (s *Store) RemoveDownload(ctx context.Context, packageName string, repositoryID int64) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM downloaded WHERE package_name = ? AND repository_id = ?", packageName, repositoryID)
	if err != nil {
		return fmt.Errorf("failed to delete download: %w", err)
	}
	return nil
}

// RemoveFinished deletes terminal records and returns how many were removed
func (s *Store) RemoveFinished(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx, "DELETE FROM downloaded WHERE state_kind IN (?, ?, ?)",
		string(types.KindSuccess), string(types.KindError), string(types.KindCancel))
	if err != nil {
		return 0, fmt.Errorf("failed to delete finished downloads: %w", err)
	}
	return result.RowsAffected()
}

func (s *Store) queryDownloads(ctx context.Context, query string, args ...any) ([]types.Downloaded, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query downloads: %w", err)
	}
	defer rows.Close()

	var list []types.Downloaded
	for rows.Next() {
		d, err := scanDownloaded(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *d)
	}
	return list, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDownloaded(row scanner) (*types.Downloaded, error) {
	var (
		d       types.Downloaded
		changed int64
		blob    []byte
	)
	if err := row.Scan(&d.PackageName, &d.RepositoryID, &d.Version, &d.CacheFileName, &changed, &blob); err != nil {
		return nil, err
	}
	st, err := types.UnmarshalState(blob)
	if err != nil {
		return nil, fmt.Errorf("failed to decode state of %s: %w", d.PackageName, err)
	}
	d.Changed = time.UnixMilli(changed)
	d.State = st
	return &d, nil
}
