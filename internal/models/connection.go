package models

import (
	"time"
)

// ConnectionStatus tracks the health of a linked provider connection.
type ConnectionStatus string

const (
	ConnectionActive       ConnectionStatus = "active"
	ConnectionError        ConnectionStatus = "error"
	ConnectionAuthRequired ConnectionStatus = "auth_required"
	ConnectionRevoked      ConnectionStatus = "revoked"
)

// Connection represents one linked item at the external provider. The sync
// engine owns all mutation of this row; linking and revocation happen
// elsewhere. Version is bumped on every successful write and is the basis of
// the optimistic lock: a writer that read a stale version loses the race.
type Connection struct {
	ID                  int64            `json:"id"`
	EncryptedCredential string           `json:"-"`
	Cursor              *string          `json:"cursor,omitempty"` // nil = never synced
	Status              ConnectionStatus `json:"status"`
	Version             int64            `json:"version"`
	ErrorCode           *string          `json:"errorCode,omitempty"`
	ErrorMessage        *string          `json:"errorMessage,omitempty"`
	LastAttemptAt       *time.Time       `json:"lastAttemptAt,omitempty"`
	LastSuccessAt       *time.Time       `json:"lastSuccessAt,omitempty"`
	CreatedAt           time.Time        `json:"createdAt"`
	UpdatedAt           time.Time        `json:"updatedAt"`
}

// CursorValue returns the cursor as a string, empty when the connection has
// never completed a sync.
func (c *Connection) CursorValue() string {
	if c.Cursor == nil {
		return ""
	}
	return *c.Cursor
}

// CommitSyncParams carries the conditional write that concludes a successful
// sync attempt. Version is the value read at attempt start; the write only
// lands if the stored row still carries it.
type CommitSyncParams struct {
	ConnectionID int64
	Version      int64
	Cursor       string
	Status       ConnectionStatus
	SyncedAt     time.Time

	// EncryptedCredential is set when the attempt migrated a stale
	// credential envelope and the re-encrypted form should be persisted
	// alongside the cursor.
	EncryptedCredential *string
}

// RecordFailureParams records the outcome of a failed attempt. The cursor is
// deliberately absent: a failed attempt never moves it.
type RecordFailureParams struct {
	ConnectionID int64
	Version      int64
	Status       ConnectionStatus
	ErrorCode    string
	ErrorMessage string
	AttemptedAt  time.Time
}
