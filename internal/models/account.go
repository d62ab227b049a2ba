package models

import (
	"time"
)

// Account belongs to exactly one Connection. Accounts are created by the
// linking flow; the sync engine only reads them to attach transactions.
type Account struct {
	ID                int64     `json:"id"`
	ConnectionID      int64     `json:"connectionId"`
	ExternalAccountID string    `json:"externalAccountId"`
	Name              string    `json:"name"`
	Currency          string    `json:"currency"`
	BalanceMinor      int64     `json:"balanceMinor"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}
