package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"finsync/internal/models"
)

// AccountRepository reads linked accounts. The sync engine never creates or
// mutates accounts; the linking flow owns them.
type AccountRepository struct {
	db *DB
}

func NewAccountRepository(db *DB) *AccountRepository {
	return &AccountRepository{db: db}
}

const accountColumns = `id, connection_id, external_account_id, name, currency,
	       balance_minor, created_at, updated_at`

func (r *AccountRepository) GetByExternalID(ctx context.Context, connectionID int64, externalAccountID string) (*models.Account, error) {
	query := `
		SELECT ` + accountColumns + `
		FROM accounts
		WHERE connection_id = $1 AND external_account_id = $2
	`

	var account models.Account
	err := r.db.QueryRowContext(ctx, query, connectionID, externalAccountID).Scan(
		&account.ID, &account.ConnectionID, &account.ExternalAccountID,
		&account.Name, &account.Currency, &account.BalanceMinor,
		&account.CreatedAt, &account.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil // Not found
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	return &account, nil
}

func (r *AccountRepository) ListByConnection(ctx context.Context, connectionID int64) ([]*models.Account, error) {
	query := `
		SELECT ` + accountColumns + `
		FROM accounts
		WHERE connection_id = $1
		ORDER BY id
	`

	rows, err := r.db.QueryContext(ctx, query, connectionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*models.Account
	for rows.Next() {
		var account models.Account
		err := rows.Scan(
			&account.ID, &account.ConnectionID, &account.ExternalAccountID,
			&account.Name, &account.Currency, &account.BalanceMinor,
			&account.CreatedAt, &account.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, &account)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating accounts: %w", err)
	}

	return accounts, nil
}
