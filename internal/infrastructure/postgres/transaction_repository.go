package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"finsync/internal/models"
)

type TransactionRepository struct {
	db *DB
}

func NewTransactionRepository(db *DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// Insert creates a transaction record unless its dedup key
// (connection_id, external_id) already exists, in which case it reports
// false. ON CONFLICT DO NOTHING carries the dedup check and the insert in
// one statement, and the unique-violation mapping backstops any path that
// races past it.
func (r *TransactionRepository) Insert(ctx context.Context, p models.InsertTransactionParams) (bool, error) {
	query := `
		INSERT INTO transactions (connection_id, account_id, external_id, amount_minor,
		                          currency, description, category, transaction_date,
		                          pending, raw_metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (connection_id, external_id) DO NOTHING
	`

	result, err := r.db.ExecContext(ctx, query,
		p.ConnectionID, p.AccountID, p.ExternalTransactionID, p.AmountMinor,
		p.Currency, p.Description, p.Category, p.TransactionDate,
		p.Pending, nullableJSON(p.RawMetadata),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to insert transaction: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return affected == 1, nil
}

// UpdateByExternalID overwrites the mutable fields of the record carrying
// the given dedup key. Reports false when no record matches.
func (r *TransactionRepository) UpdateByExternalID(ctx context.Context, connectionID int64, externalID string, p models.UpdateTransactionParams) (bool, error) {
	query := `
		UPDATE transactions
		SET amount_minor = $1,
		    description = $2,
		    category = $3,
		    transaction_date = $4,
		    pending = $5,
		    raw_metadata = $6,
		    updated_at = CURRENT_TIMESTAMP
		WHERE connection_id = $7 AND external_id = $8
	`

	result, err := r.db.ExecContext(ctx, query,
		p.AmountMinor, p.Description, p.Category, p.TransactionDate,
		p.Pending, nullableJSON(p.RawMetadata),
		connectionID, externalID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update transaction: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return affected == 1, nil
}

// DeleteByExternalID hard-deletes a retracted record. Reports false when the
// record was never stored (or already removed), which the caller treats as a
// no-op.
func (r *TransactionRepository) DeleteByExternalID(ctx context.Context, connectionID int64, externalID string) (bool, error) {
	query := `
		DELETE FROM transactions
		WHERE connection_id = $1 AND external_id = $2
	`

	result, err := r.db.ExecContext(ctx, query, connectionID, externalID)
	if err != nil {
		return false, fmt.Errorf("failed to delete transaction: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return affected == 1, nil
}

func (r *TransactionRepository) CountByConnection(ctx context.Context, connectionID int64) (int64, error) {
	query := `SELECT COUNT(*) FROM transactions WHERE connection_id = $1`

	var count int64
	if err := r.db.QueryRowContext(ctx, query, connectionID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count transactions: %w", err)
	}
	return count, nil
}

// nullableJSON maps empty metadata to NULL instead of an invalid empty
// jsonb literal.
func nullableJSON(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
