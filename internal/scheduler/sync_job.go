package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"

	"finsync/internal/sync"
)

// SyncJob runs one sync attempt for one connection.
type SyncJob struct {
	connectionID int64
	coordinator  *sync.Coordinator
}

func NewSyncJob(connectionID int64, coordinator *sync.Coordinator) *SyncJob {
	return &SyncJob{
		connectionID: connectionID,
		coordinator:  coordinator,
	}
}

// Execute runs the sync attempt. An optimistic-lock conflict is not a job
// failure: it means another attempt synced this connection first, and that
// attempt's commit already carries everything this one would have written.
func (j *SyncJob) Execute(ctx context.Context) error {
	outcome, err := j.coordinator.Sync(ctx, j.connectionID)
	if err != nil {
		if errors.Is(err, sync.ErrConflict) {
			log.Printf("Connection %d: concurrent attempt won the version race, skipping", j.connectionID)
			return nil
		}
		return fmt.Errorf("sync failed: %w", err)
	}

	log.Printf("Connection %d: scheduled sync done - Added=%d, Modified=%d, Removed=%d",
		j.connectionID, outcome.Added, outcome.Modified, outcome.Removed)

	return nil
}

func (j *SyncJob) ConnectionID() int64 {
	return j.connectionID
}

func (j *SyncJob) Description() string {
	return fmt.Sprintf("Transaction sync for connection %d", j.connectionID)
}
