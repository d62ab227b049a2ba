package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"finsync/internal/models"
)

type ConnectionRepository struct {
	db *DB
}

func NewConnectionRepository(db *DB) *ConnectionRepository {
	return &ConnectionRepository{db: db}
}

const connectionColumns = `id, encrypted_credential, cursor, status, version,
	       error_code, error_message, last_attempt_at, last_success_at,
	       created_at, updated_at`

func (r *ConnectionRepository) GetByID(ctx context.Context, id int64) (*models.Connection, error) {
	query := `
		SELECT ` + connectionColumns + `
		FROM connections
		WHERE id = $1
	`

	conn, err := scanConnection(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil // Not found
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get connection: %w", err)
	}
	return conn, nil
}

func (r *ConnectionRepository) ListActive(ctx context.Context) ([]*models.Connection, error) {
	query := `
		SELECT ` + connectionColumns + `
		FROM connections
		WHERE status != 'revoked'
		ORDER BY id
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list connections: %w", err)
	}
	defer rows.Close()

	var connections []*models.Connection
	for rows.Next() {
		conn, err := scanConnection(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan connection: %w", err)
		}
		connections = append(connections, conn)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating connections: %w", err)
	}

	return connections, nil
}

// CommitSync is the conditional write that concludes a successful attempt.
// The WHERE clause compares the version read at attempt start; zero affected
// rows means another attempt advanced the row first, reported as false for
// the caller to turn into a conflict.
func (r *ConnectionRepository) CommitSync(ctx context.Context, p models.CommitSyncParams) (bool, error) {
	query := `
		UPDATE connections
		SET cursor = $1,
		    status = $2,
		    version = version + 1,
		    encrypted_credential = COALESCE($3, encrypted_credential),
		    error_code = NULL,
		    error_message = NULL,
		    last_attempt_at = $4,
		    last_success_at = $4,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = $5 AND version = $6
	`

	result, err := r.db.ExecContext(ctx, query,
		p.Cursor, p.Status, p.EncryptedCredential, p.SyncedAt,
		p.ConnectionID, p.Version,
	)
	if err != nil {
		return false, fmt.Errorf("failed to commit sync: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return affected == 1, nil
}

// RecordFailure persists a failed attempt's outcome under the same
// conditional-write shape as CommitSync. The cursor column is absent from
// the SET list: failed attempts never move it.
func (r *ConnectionRepository) RecordFailure(ctx context.Context, p models.RecordFailureParams) (bool, error) {
	query := `
		UPDATE connections
		SET status = $1,
		    version = version + 1,
		    error_code = $2,
		    error_message = $3,
		    last_attempt_at = $4,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = $5 AND version = $6
	`

	result, err := r.db.ExecContext(ctx, query,
		p.Status, p.ErrorCode, p.ErrorMessage, p.AttemptedAt,
		p.ConnectionID, p.Version,
	)
	if err != nil {
		return false, fmt.Errorf("failed to record failure: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return affected == 1, nil
}

// UpdateCredential replaces the stored envelope under the same optimistic
// lock as the sync writes. Used by the re-encryption sweep; a false return
// means a concurrent sync attempt advanced the row and the caller should
// re-read and retry.
func (r *ConnectionRepository) UpdateCredential(ctx context.Context, id, version int64, envelope string) (bool, error) {
	query := `
		UPDATE connections
		SET encrypted_credential = $1,
		    version = version + 1,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = $2 AND version = $3
	`

	result, err := r.db.ExecContext(ctx, query, envelope, id, version)
	if err != nil {
		return false, fmt.Errorf("failed to update credential: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return affected == 1, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConnection(row rowScanner) (*models.Connection, error) {
	var conn models.Connection
	var cursor, errorCode, errorMessage sql.NullString
	var lastAttemptAt, lastSuccessAt sql.NullTime

	err := row.Scan(
		&conn.ID, &conn.EncryptedCredential, &cursor, &conn.Status, &conn.Version,
		&errorCode, &errorMessage, &lastAttemptAt, &lastSuccessAt,
		&conn.CreatedAt, &conn.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if cursor.Valid {
		conn.Cursor = &cursor.String
	}
	if errorCode.Valid {
		conn.ErrorCode = &errorCode.String
	}
	if errorMessage.Valid {
		conn.ErrorMessage = &errorMessage.String
	}
	if lastAttemptAt.Valid {
		conn.LastAttemptAt = &lastAttemptAt.Time
	}
	if lastSuccessAt.Valid {
		conn.LastSuccessAt = &lastSuccessAt.Time
	}

	return &conn, nil
}
