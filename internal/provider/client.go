package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	defaultBaseURL = "https://api.pierre.finance/v1"
	defaultTimeout = 30 * time.Second
	syncPath       = "/transactions/sync"

	// DefaultPageSize is the page size requested when the caller does not
	// configure one.
	DefaultPageSize = 100
)

// Client handles communication with the provider's transaction feed.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// NewClient creates a feed client. An empty baseURL selects the production
// endpoint.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
		baseURL: baseURL,
	}
}

// TransactionDelta is one added or modified transaction reported by the feed.
// The feed reports amounts in major units; callers normalize them.
type TransactionDelta struct {
	ExternalID        string          `json:"id"`
	ExternalAccountID string          `json:"accountId"`
	Amount            float64         `json:"amount"`
	CurrencyCode      string          `json:"currencyCode"`
	Description       string          `json:"description"`
	Category          *string         `json:"category,omitempty"`
	Date              string          `json:"date"` // YYYY-MM-DD
	Pending           bool            `json:"pending"`
	Metadata          json.RawMessage `json:"metadata,omitempty"`
}

// RemovedDelta identifies a transaction permanently retracted by the feed.
type RemovedDelta struct {
	ExternalID string `json:"id"`
}

// DeltaPage is one page of the cursor-paginated delta feed. Added, Modified
// and Removed carry disjoint external IDs within a page.
type DeltaPage struct {
	Added      []TransactionDelta `json:"added"`
	Modified   []TransactionDelta `json:"modified"`
	Removed    []RemovedDelta     `json:"removed"`
	NextCursor string             `json:"nextCursor"`
	HasMore    bool               `json:"hasMore"`
}

type deltaRequest struct {
	Cursor   string `json:"cursor,omitempty"`
	PageSize int    `json:"pageSize"`
}

type deltaResponse struct {
	Success   bool      `json:"success"`
	Data      DeltaPage `json:"data"`
	Timestamp string    `json:"timestamp"`
}

// errorResponse represents an error body from the provider API.
type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

// FetchDelta requests one page of the delta feed. An empty cursor asks for
// full history from inception.
func (c *Client) FetchDelta(ctx context.Context, credential, cursor string, pageSize int) (*DeltaPage, error) {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	body, err := json.Marshal(deltaRequest{Cursor: cursor, PageSize: pageSize})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := c.baseURL + syncPath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", credential))
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp errorResponse
		if err := json.Unmarshal(respBody, &errResp); err != nil {
			return nil, &APIError{
				StatusCode: resp.StatusCode,
				Message:    string(respBody),
			}
		}
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Code:       errResp.Error,
			Message:    errResp.Message,
		}
	}

	var deltaResp deltaResponse
	if err := json.Unmarshal(respBody, &deltaResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if !deltaResp.Success {
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Code:       "UNEXPECTED_RESPONSE",
			Message:    "API returned success=false",
		}
	}

	return &deltaResp.Data, nil
}
