package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"finsync/internal/models"
	"finsync/internal/provider"
	"finsync/internal/sync"
	"finsync/internal/vault"
)

// MockSyncer implements Syncer for testing
type MockSyncer struct {
	SyncFunc func(ctx context.Context, connectionID int64) (*sync.Outcome, error)
}

func (m *MockSyncer) Sync(ctx context.Context, connectionID int64) (*sync.Outcome, error) {
	if m.SyncFunc != nil {
		return m.SyncFunc(ctx, connectionID)
	}
	return nil, nil
}

// MockConnectionReader implements ConnectionReader for testing
type MockConnectionReader struct {
	GetByIDFunc    func(ctx context.Context, id int64) (*models.Connection, error)
	ListActiveFunc func(ctx context.Context) ([]*models.Connection, error)
}

func (m *MockConnectionReader) GetByID(ctx context.Context, id int64) (*models.Connection, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, nil
}

func (m *MockConnectionReader) ListActive(ctx context.Context) ([]*models.Connection, error) {
	if m.ListActiveFunc != nil {
		return m.ListActiveFunc(ctx)
	}
	return nil, nil
}

// MockTransactionCounter implements TransactionCounter for testing
type MockTransactionCounter struct {
	CountFunc func(ctx context.Context, connectionID int64) (int64, error)
}

func (m *MockTransactionCounter) CountByConnection(ctx context.Context, connectionID int64) (int64, error) {
	if m.CountFunc != nil {
		return m.CountFunc(ctx, connectionID)
	}
	return 0, nil
}

func newSyncRequest(id string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/connections/"+id+"/sync", nil)
	req.SetPathValue("id", id)
	return req
}

func TestHandleSyncSuccess(t *testing.T) {
	handler := NewSyncHandler(&MockSyncer{
		SyncFunc: func(ctx context.Context, connectionID int64) (*sync.Outcome, error) {
			if connectionID != 42 {
				t.Errorf("expected connection ID 42, got %d", connectionID)
			}
			return &sync.Outcome{
				AttemptID:    "a-1",
				ConnectionID: connectionID,
				Added:        3,
				Modified:     1,
				NextCursor:   "c2",
				Status:       models.ConnectionActive,
			}, nil
		},
	}, &MockConnectionReader{}, &MockTransactionCounter{})

	rec := httptest.NewRecorder()
	handler.HandleSync(rec, newSyncRequest("42"))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var outcome sync.Outcome
	if err := json.NewDecoder(rec.Body).Decode(&outcome); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if outcome.Added != 3 || outcome.NextCursor != "c2" {
		t.Errorf("unexpected outcome: %+v", outcome)
	}
}

func TestHandleSyncBadID(t *testing.T) {
	handler := NewSyncHandler(&MockSyncer{}, &MockConnectionReader{}, &MockTransactionCounter{})

	for _, id := range []string{"abc", "-1", "0", ""} {
		rec := httptest.NewRecorder()
		handler.HandleSync(rec, newSyncRequest(id))

		if rec.Code != http.StatusBadRequest {
			t.Errorf("id %q: expected status 400, got %d", id, rec.Code)
		}
	}
}

func TestHandleSyncErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"not found", sync.ErrConnectionNotFound, http.StatusNotFound},
		{"revoked", sync.ErrConnectionRevoked, http.StatusUnprocessableEntity},
		{"conflict", sync.ErrConflict, http.StatusConflict},
		{"wrapped conflict", fmt.Errorf("commit: %w", sync.ErrConflict), http.StatusConflict},
		{"decrypt failure", fmt.Errorf("decrypt credential: %w", vault.ErrDecryption), http.StatusInternalServerError},
		{"provider failure", &provider.APIError{StatusCode: 503, Message: "maintenance"}, http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewSyncHandler(&MockSyncer{
				SyncFunc: func(ctx context.Context, connectionID int64) (*sync.Outcome, error) {
					return nil, tt.err
				},
			}, &MockConnectionReader{}, &MockTransactionCounter{})

			rec := httptest.NewRecorder()
			handler.HandleSync(rec, newSyncRequest("7"))

			if rec.Code != tt.wantStatus {
				t.Errorf("expected status %d, got %d: %s", tt.wantStatus, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestHandleSyncAuthRequiredCategory(t *testing.T) {
	handler := NewSyncHandler(&MockSyncer{
		SyncFunc: func(ctx context.Context, connectionID int64) (*sync.Outcome, error) {
			return nil, &provider.APIError{StatusCode: 400, Code: "ITEM_LOGIN_REQUIRED", Message: "relink required"}
		},
	}, &MockConnectionReader{}, &MockTransactionCounter{})

	rec := httptest.NewRecorder()
	handler.HandleSync(rec, newSyncRequest("7"))

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected status 502, got %d", rec.Code)
	}

	var resp syncErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Category != "auth_required" {
		t.Errorf("expected category auth_required, got %q", resp.Category)
	}
	if resp.Code != "ITEM_LOGIN_REQUIRED" {
		t.Errorf("expected provider code in response, got %q", resp.Code)
	}
}

func TestHandleGetConnection(t *testing.T) {
	lastSuccess := time.Date(2026, 3, 14, 5, 0, 0, 0, time.UTC)
	cursor := "c9"

	handler := NewSyncHandler(&MockSyncer{}, &MockConnectionReader{
		GetByIDFunc: func(ctx context.Context, id int64) (*models.Connection, error) {
			return &models.Connection{
				ID:            id,
				Status:        models.ConnectionActive,
				Cursor:        &cursor,
				Version:       12,
				LastSuccessAt: &lastSuccess,
			}, nil
		},
	}, &MockTransactionCounter{
		CountFunc: func(ctx context.Context, connectionID int64) (int64, error) {
			return 250, nil
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/api/connections/9", nil)
	req.SetPathValue("id", "9")
	rec := httptest.NewRecorder()
	handler.HandleGetConnection(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp ConnectionResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.ID != 9 || resp.Status != "active" || resp.TransactionCount != 250 {
		t.Errorf("unexpected response: %+v", resp)
	}
	if resp.Cursor == nil || *resp.Cursor != "c9" {
		t.Errorf("expected cursor c9, got %v", resp.Cursor)
	}
	if resp.LastSuccessAt == nil || *resp.LastSuccessAt != "2026-03-14T05:00:00Z" {
		t.Errorf("unexpected lastSuccessAt: %v", resp.LastSuccessAt)
	}
}

func TestHandleGetConnectionNotFound(t *testing.T) {
	handler := NewSyncHandler(&MockSyncer{}, &MockConnectionReader{
		GetByIDFunc: func(ctx context.Context, id int64) (*models.Connection, error) {
			return nil, nil
		},
	}, &MockTransactionCounter{})

	req := httptest.NewRequest(http.MethodGet, "/api/connections/9", nil)
	req.SetPathValue("id", "9")
	rec := httptest.NewRecorder()
	handler.HandleGetConnection(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", rec.Code)
	}
}

func TestHandleListConnections(t *testing.T) {
	handler := NewSyncHandler(&MockSyncer{}, &MockConnectionReader{
		ListActiveFunc: func(ctx context.Context) ([]*models.Connection, error) {
			return []*models.Connection{
				{ID: 1, Status: models.ConnectionActive, Version: 3},
				{ID: 2, Status: models.ConnectionAuthRequired, Version: 8},
			}, nil
		},
	}, &MockTransactionCounter{
		CountFunc: func(ctx context.Context, connectionID int64) (int64, error) {
			return connectionID * 10, nil
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/api/connections", nil)
	rec := httptest.NewRecorder()
	handler.HandleListConnections(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var resp []ConnectionResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp) != 2 {
		t.Fatalf("expected 2 connections, got %d", len(resp))
	}
	if resp[1].Status != "auth_required" || resp[1].TransactionCount != 20 {
		t.Errorf("unexpected second connection: %+v", resp[1])
	}
}

func TestHandleListConnectionsStoreError(t *testing.T) {
	handler := NewSyncHandler(&MockSyncer{}, &MockConnectionReader{
		ListActiveFunc: func(ctx context.Context) ([]*models.Connection, error) {
			return nil, errors.New("connection refused")
		},
	}, &MockTransactionCounter{})

	req := httptest.NewRequest(http.MethodGet, "/api/connections", nil)
	rec := httptest.NewRecorder()
	handler.HandleListConnections(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected status 500, got %d", rec.Code)
	}
}
