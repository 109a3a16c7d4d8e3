package download

import (
	"context"
	"fmt"

	"github.com/apkdock/apkdock/internal/engine/types"
	"github.com/apkdock/apkdock/internal/utils"
)

// InterruptedLister lists persisted downloads that never reached a terminal
// state
type InterruptedLister interface {
	ListInterrupted(ctx context.Context) ([]types.Downloaded, error)
}

// RecoveryKey is the download key used for records recovered after a restart,
// when the scheduler task id is gone
func RecoveryKey(d types.Downloaded) string {
	return fmt.Sprintf("recovered:%s:%d", d.PackageName, d.RepositoryID)
}

// Recover marks downloads interrupted by a previous shutdown as canceled. The
// cancel states flow through the normal pipeline, so each row becomes terminal
// and the user gets a final notification. Returns the number of recovered rows.
func (h *DownloadStateHandler) Recover(ctx context.Context, lister InterruptedLister) (int, error) {
	interrupted, err := lister.ListInterrupted(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list interrupted downloads: %w", err)
	}

	for _, d := range interrupted {
		m := types.MetaOf(d.State)
		utils.Debug("Recovering interrupted download %s (%s, last state %s)", m.PackageName, m.Version, d.State.Kind())
		h.UpdateState(RecoveryKey(d), types.Cancel{Meta: m})
	}
	return len(interrupted), nil
}
