package models

import (
	"encoding/json"
	"time"
)

// TransactionRecord is a single transaction reconciled from the provider
// feed. ExternalTransactionID is the dedup key: unique per connection,
// assigned by the provider, never changed by an update. Amounts are integer
// minor units; the feed's decimal amounts are rounded once at ingestion so
// repeated syncs can never drift.
type TransactionRecord struct {
	ID                    int64           `json:"id"`
	ConnectionID          int64           `json:"connectionId"`
	AccountID             int64           `json:"accountId"`
	ExternalTransactionID string          `json:"externalTransactionId"`
	AmountMinor           int64           `json:"amountMinor"`
	Currency              string          `json:"currency"`
	Description           string          `json:"description"`
	Category              *string         `json:"category,omitempty"`
	TransactionDate       time.Time       `json:"transactionDate"`
	Pending               bool            `json:"pending"`
	RawMetadata           json.RawMessage `json:"rawMetadata,omitempty"`
	CreatedAt             time.Time       `json:"createdAt"`
	UpdatedAt             time.Time       `json:"updatedAt"`
}

type InsertTransactionParams struct {
	ConnectionID          int64
	AccountID             int64
	ExternalTransactionID string
	AmountMinor           int64
	Currency              string
	Description           string
	Category              *string
	TransactionDate       time.Time
	Pending               bool
	RawMetadata           json.RawMessage
}

// UpdateTransactionParams overwrites the mutable fields of a record matched
// by its external ID. The dedup key and the owning account are immutable.
type UpdateTransactionParams struct {
	AmountMinor     int64
	Description     string
	Category        *string
	TransactionDate time.Time
	Pending         bool
	RawMetadata     json.RawMessage
}
