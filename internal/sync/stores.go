package sync

import (
	"context"

	"finsync/internal/models"
	"finsync/internal/provider"
)

// DeltaFetcher pages through the provider's transaction feed for one
// connection. Satisfied by *provider.Client.
type DeltaFetcher interface {
	FetchDelta(ctx context.Context, credential, cursor string, pageSize int) (*provider.DeltaPage, error)
}

// ConnectionStore is the storage boundary for connection rows. Both writes
// are conditional on the version read at attempt start; they report whether
// the write landed, and zero affected rows is the conflict signal.
type ConnectionStore interface {
	GetByID(ctx context.Context, id int64) (*models.Connection, error)
	ListActive(ctx context.Context) ([]*models.Connection, error)
	CommitSync(ctx context.Context, params models.CommitSyncParams) (bool, error)
	RecordFailure(ctx context.Context, params models.RecordFailureParams) (bool, error)
}

// TransactionStore persists reconciled transaction records. Insert reports
// false when the dedup key already exists; Update and Delete report whether
// a row matched.
type TransactionStore interface {
	Insert(ctx context.Context, params models.InsertTransactionParams) (bool, error)
	UpdateByExternalID(ctx context.Context, connectionID int64, externalID string, params models.UpdateTransactionParams) (bool, error)
	DeleteByExternalID(ctx context.Context, connectionID int64, externalID string) (bool, error)
}

// AccountStore resolves feed account references to locally linked accounts.
type AccountStore interface {
	GetByExternalID(ctx context.Context, connectionID int64, externalAccountID string) (*models.Account, error)
}
