package scheduler

import (
	"context"
	"fmt"
	"log"

	"ledgerlink/internal/domain/item"
	"ledgerlink/internal/domain/sync"
)

// ItemSyncJob refreshes accounts and transactions for a single connected item.
type ItemSyncJob struct {
	itemID string
	engine *sync.Engine
}

// NewItemSyncJob creates a sync job for the given item.
func NewItemSyncJob(itemID string, engine *sync.Engine) *ItemSyncJob {
	return &ItemSyncJob{itemID: itemID, engine: engine}
}

func (j *ItemSyncJob) Execute(ctx context.Context) error {
	result, err := j.engine.SyncItem(ctx, j.itemID)
	if err != nil {
		return fmt.Errorf("item sync failed: %w", err)
	}

	log.Printf("Item %s synced: %d accounts (%d removed), %d/%d/%d transactions added/modified/removed",
		j.itemID, result.AccountsSynced, result.AccountsRemoved,
		result.TransactionsAdded, result.TransactionsModified, result.TransactionsRemoved)
	return nil
}

func (j *ItemSyncJob) ItemID() string {
	return j.itemID
}

func (j *ItemSyncJob) Description() string {
	return "item sync"
}

// SyncJobProvider builds one ItemSyncJob per syncable item. Wire it into
// Config.JobProvider.
func SyncJobProvider(items item.Repository, engine *sync.Engine) func(context.Context) ([]Job, error) {
	return func(ctx context.Context) ([]Job, error) {
		syncable, err := items.ListSyncable(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list syncable items: %w", err)
		}

		jobs := make([]Job, 0, len(syncable))
		for _, it := range syncable {
			jobs = append(jobs, NewItemSyncJob(it.ID, engine))
		}
		return jobs, nil
	}
}
