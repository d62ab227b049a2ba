package sync

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"

	"finsync/internal/models"
	"finsync/internal/provider"
)

const dateLayout = "2006-01-02"

// Counts summarizes what one page (or one whole attempt) did to storage.
type Counts struct {
	Added    int
	Modified int
	Removed  int
	Deduped  int // added deltas skipped because the external ID already exists
	Skipped  int // deltas dropped for an unresolvable account or bad date
}

// Add accumulates page counts into attempt totals.
func (c *Counts) Add(other Counts) {
	c.Added += other.Added
	c.Modified += other.Modified
	c.Removed += other.Removed
	c.Deduped += other.Deduped
	c.Skipped += other.Skipped
}

// Engine applies one page of deltas to local storage. The three delta sets
// carry disjoint external IDs within a page, so apply order between them
// does not matter; the engine still processes added before modified so that
// a feed that reuses one page for both stays consistent.
type Engine struct {
	transactions TransactionStore
	accounts     AccountStore
}

func NewEngine(transactions TransactionStore, accounts AccountStore) *Engine {
	return &Engine{transactions: transactions, accounts: accounts}
}

// MinorUnits converts a major-unit amount into integer minor units, rounding
// half away from zero. Stored amounts are never floating point.
func MinorUnits(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

// Apply reconciles one page against storage. Every operation is idempotent:
// re-applying the same page yields the same stored state.
func (e *Engine) Apply(ctx context.Context, conn *models.Connection, page *provider.DeltaPage) (Counts, error) {
	var counts Counts

	for _, delta := range page.Added {
		inserted, err := e.insert(ctx, conn, delta)
		if err != nil {
			return counts, fmt.Errorf("failed to insert transaction %s: %w", delta.ExternalID, err)
		}
		switch inserted {
		case outcomeCreated:
			counts.Added++
		case outcomeMatched:
			counts.Deduped++
		case outcomeSkipped:
			counts.Skipped++
		}
	}

	for _, delta := range page.Modified {
		outcome, err := e.update(ctx, conn, delta)
		if err != nil {
			return counts, fmt.Errorf("failed to update transaction %s: %w", delta.ExternalID, err)
		}
		switch outcome {
		case outcomeCreated:
			// Unknown ID on a modified delta: the add was lost (or this
			// page is a replay racing an earlier partial attempt), so
			// fall back to creating the record.
			counts.Added++
		case outcomeMatched:
			counts.Modified++
		case outcomeSkipped:
			counts.Skipped++
		}
	}

	for _, delta := range page.Removed {
		deleted, err := e.transactions.DeleteByExternalID(ctx, conn.ID, delta.ExternalID)
		if err != nil {
			return counts, fmt.Errorf("failed to remove transaction %s: %w", delta.ExternalID, err)
		}
		if deleted {
			counts.Removed++
		}
	}

	return counts, nil
}

type applyOutcome int

const (
	outcomeCreated applyOutcome = iota
	outcomeMatched // insert: dedup hit; update: row matched and overwritten
	outcomeSkipped
)

func (e *Engine) insert(ctx context.Context, conn *models.Connection, delta provider.TransactionDelta) (applyOutcome, error) {
	params, ok, err := e.insertParams(ctx, conn, delta)
	if err != nil {
		return outcomeSkipped, err
	}
	if !ok {
		return outcomeSkipped, nil
	}

	inserted, err := e.transactions.Insert(ctx, params)
	if err != nil {
		return outcomeSkipped, err
	}
	if !inserted {
		return outcomeMatched, nil
	}
	return outcomeCreated, nil
}

func (e *Engine) update(ctx context.Context, conn *models.Connection, delta provider.TransactionDelta) (applyOutcome, error) {
	date, err := time.Parse(dateLayout, delta.Date)
	if err != nil {
		log.Printf("Connection %d: skipping modified delta %s with bad date %q", conn.ID, delta.ExternalID, delta.Date)
		return outcomeSkipped, nil
	}

	updated, err := e.transactions.UpdateByExternalID(ctx, conn.ID, delta.ExternalID, models.UpdateTransactionParams{
		AmountMinor:     MinorUnits(delta.Amount),
		Description:     delta.Description,
		Category:        delta.Category,
		TransactionDate: date,
		Pending:         delta.Pending,
		RawMetadata:     delta.Metadata,
	})
	if err != nil {
		return outcomeSkipped, err
	}
	if updated {
		return outcomeMatched, nil
	}
	return e.insert(ctx, conn, delta)
}

// insertParams builds insert parameters, resolving the delta's account. A
// delta referencing an account the linking flow never created is skipped:
// accounts are not this engine's to invent.
func (e *Engine) insertParams(ctx context.Context, conn *models.Connection, delta provider.TransactionDelta) (models.InsertTransactionParams, bool, error) {
	date, err := time.Parse(dateLayout, delta.Date)
	if err != nil {
		log.Printf("Connection %d: skipping delta %s with bad date %q", conn.ID, delta.ExternalID, delta.Date)
		return models.InsertTransactionParams{}, false, nil
	}

	account, err := e.accounts.GetByExternalID(ctx, conn.ID, delta.ExternalAccountID)
	if err != nil {
		return models.InsertTransactionParams{}, false, fmt.Errorf("failed to resolve account %s: %w", delta.ExternalAccountID, err)
	}
	if account == nil {
		log.Printf("Connection %d: skipping delta %s for unknown account %s", conn.ID, delta.ExternalID, delta.ExternalAccountID)
		return models.InsertTransactionParams{}, false, nil
	}

	return models.InsertTransactionParams{
		ConnectionID:          conn.ID,
		AccountID:             account.ID,
		ExternalTransactionID: delta.ExternalID,
		AmountMinor:           MinorUnits(delta.Amount),
		Currency:              delta.CurrencyCode,
		Description:           delta.Description,
		Category:              delta.Category,
		TransactionDate:       date,
		Pending:               delta.Pending,
		RawMetadata:           delta.Metadata,
	}, true, nil
}
