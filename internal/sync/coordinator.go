package sync

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"finsync/internal/models"
	"finsync/internal/provider"
	"finsync/internal/vault"
)

var (
	syncTracer      = otel.Tracer("finsync/sync")
	syncMeter       = otel.Meter("finsync/sync")
	attemptTotal, _ = syncMeter.Int64Counter("sync.attempts.total", metric.WithDescription("Sync attempts by outcome"))
	attemptTime, _  = syncMeter.Float64Histogram("sync.attempt.duration", metric.WithDescription("Sync attempt duration in seconds"), metric.WithUnit("s"))
	pagesTotal, _   = syncMeter.Int64Counter("sync.pages.total", metric.WithDescription("Delta pages fetched"))
)

// Outcome is the result of one committed sync attempt.
type Outcome struct {
	AttemptID    string                  `json:"attemptId"`
	ConnectionID int64                   `json:"connectionId"`
	Added        int                     `json:"added"`
	Modified     int                     `json:"modified"`
	Removed      int                     `json:"removed"`
	NextCursor   string                  `json:"nextCursor"`
	Status       models.ConnectionStatus `json:"status"`
}

// Coordinator orchestrates one sync attempt per connection: decrypt the
// credential, page through the delta feed reconciling as it goes, then
// commit the new cursor under the optimistic lock. Mutual exclusion between
// concurrent attempts on one connection comes entirely from the version
// comparison at commit time; no lock is held during the fetch loop.
type Coordinator struct {
	connections ConnectionStore
	engine      *Engine
	fetcher     DeltaFetcher
	vault       *vault.Vault
	pageSize    int
	now         func() time.Time
}

func NewCoordinator(connections ConnectionStore, engine *Engine, fetcher DeltaFetcher, v *vault.Vault, pageSize int) *Coordinator {
	if pageSize <= 0 {
		pageSize = provider.DefaultPageSize
	}
	return &Coordinator{
		connections: connections,
		engine:      engine,
		fetcher:     fetcher,
		vault:       v,
		pageSize:    pageSize,
		now:         time.Now,
	}
}

// Sync runs one full attempt for the connection. The cursor moves only when
// the whole multi-page sequence succeeds and the conditional commit lands; a
// failure at any page leaves the cursor at its pre-attempt value, so the next
// attempt replays the sequence and deduplication absorbs the repeats.
func (c *Coordinator) Sync(ctx context.Context, connectionID int64) (*Outcome, error) {
	attemptID := uuid.NewString()
	start := c.now()

	ctx, span := syncTracer.Start(ctx, "sync.attempt",
		trace.WithAttributes(
			attribute.Int64("connection.id", connectionID),
			attribute.String("attempt.id", attemptID),
		),
	)
	defer span.End()

	outcome, err := c.run(ctx, attemptID, connectionID)

	elapsed := c.now().Sub(start).Seconds()
	result := "success"
	if err != nil {
		result = "failure"
		if errors.Is(err, ErrConflict) {
			result = "conflict"
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	attemptTime.Record(ctx, elapsed, metric.WithAttributes(attribute.String("result", result)))
	attemptTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))

	return outcome, err
}

func (c *Coordinator) run(ctx context.Context, attemptID string, connectionID int64) (*Outcome, error) {
	conn, err := c.connections.GetByID(ctx, connectionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load connection %d: %w", connectionID, err)
	}
	if conn == nil {
		return nil, ErrConnectionNotFound
	}
	if conn.Status == models.ConnectionRevoked {
		return nil, ErrConnectionRevoked
	}

	// Everything below is judged against this version at commit time.
	startVersion := conn.Version
	cursor := conn.CursorValue()

	credential, err := c.vault.Decrypt(conn.EncryptedCredential)
	if err != nil {
		// Handled locally: abort with no state change. The stored
		// envelope cannot improve by retrying, and overwriting error
		// fields here would bump the version for nothing.
		return nil, fmt.Errorf("failed to decrypt credential for connection %d: %w", connectionID, err)
	}

	// Stale envelopes ride along with the commit; migration never gets its
	// own write.
	var migrated *string
	if reencrypted, changed, err := c.vault.Migrate(conn.EncryptedCredential); err == nil && changed {
		migrated = &reencrypted
	}

	var totals Counts
	pages := 0
	for {
		page, err := c.fetcher.FetchDelta(ctx, credential, cursor, c.pageSize)
		if err != nil {
			c.recordFailure(ctx, conn, startVersion, err)
			return nil, fmt.Errorf("fetch failed at page %d for connection %d: %w", pages+1, connectionID, err)
		}
		pages++
		pagesTotal.Add(ctx, 1)

		counts, err := c.engine.Apply(ctx, conn, page)
		totals.Add(counts)
		if err != nil {
			c.recordFailure(ctx, conn, startVersion, err)
			return nil, fmt.Errorf("reconcile failed at page %d for connection %d: %w", pages, connectionID, err)
		}

		cursor = page.NextCursor
		if !page.HasMore {
			break
		}
	}

	committed, err := c.connections.CommitSync(ctx, models.CommitSyncParams{
		ConnectionID:        conn.ID,
		Version:             startVersion,
		Cursor:              cursor,
		Status:              models.ConnectionActive,
		SyncedAt:            c.now(),
		EncryptedCredential: migrated,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to commit sync for connection %d: %w", connectionID, err)
	}
	if !committed {
		// Zero affected rows: another attempt advanced the version while
		// this one was fetching. Its commit supersedes ours; the records
		// this attempt applied are the same ones dedup would have
		// produced, so nothing needs undoing.
		return nil, ErrConflict
	}

	log.Printf("Connection %d: sync complete - Added: %d, Modified: %d, Removed: %d, Deduped: %d, cursor %q",
		conn.ID, totals.Added, totals.Modified, totals.Removed, totals.Deduped, cursor)

	return &Outcome{
		AttemptID:    attemptID,
		ConnectionID: conn.ID,
		Added:        totals.Added,
		Modified:     totals.Modified,
		Removed:      totals.Removed,
		NextCursor:   cursor,
		Status:       models.ConnectionActive,
	}, nil
}

// recordFailure persists error state for observability. The cursor is never
// touched. The write is conditional on the attempt's start version: if it
// does not land, another attempt owns the row and its outcome wins.
func (c *Coordinator) recordFailure(ctx context.Context, conn *models.Connection, startVersion int64, cause error) {
	category := provider.Classify(cause)

	status := models.ConnectionError
	if category == provider.CategoryAuthRequired {
		status = models.ConnectionAuthRequired
	}

	message := cause.Error()
	if len(message) > 512 {
		message = message[:512]
	}

	recorded, err := c.connections.RecordFailure(ctx, models.RecordFailureParams{
		ConnectionID: conn.ID,
		Version:      startVersion,
		Status:       status,
		ErrorCode:    provider.ErrorCode(cause),
		ErrorMessage: message,
		AttemptedAt:  c.now(),
	})
	if err != nil {
		log.Printf("Connection %d: failed to record sync failure: %v", conn.ID, err)
		return
	}
	if !recorded {
		log.Printf("Connection %d: failure not recorded, another attempt owns the row", conn.ID)
		return
	}

	log.Printf("Connection %d: sync failed (%s): %v", conn.ID, category, cause)
}
