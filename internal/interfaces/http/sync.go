package http

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"finsync/internal/models"
	"finsync/internal/provider"
	"finsync/internal/sync"
	"finsync/internal/vault"
)

// Syncer runs one sync attempt for a connection.
type Syncer interface {
	Sync(ctx context.Context, connectionID int64) (*sync.Outcome, error)
}

// ConnectionReader is the read side of the connection store used by handlers.
type ConnectionReader interface {
	GetByID(ctx context.Context, id int64) (*models.Connection, error)
	ListActive(ctx context.Context) ([]*models.Connection, error)
}

// TransactionCounter reports how many transactions a connection owns.
type TransactionCounter interface {
	CountByConnection(ctx context.Context, connectionID int64) (int64, error)
}

type SyncHandler struct {
	syncer       Syncer
	connections  ConnectionReader
	transactions TransactionCounter
}

func NewSyncHandler(syncer Syncer, connections ConnectionReader, transactions TransactionCounter) *SyncHandler {
	return &SyncHandler{
		syncer:       syncer,
		connections:  connections,
		transactions: transactions,
	}
}

// ConnectionResponse is the status view of one connection.
type ConnectionResponse struct {
	ID               int64   `json:"id"`
	Status           string  `json:"status"`
	Cursor           *string `json:"cursor,omitempty"`
	Version          int64   `json:"version"`
	ErrorCode        *string `json:"errorCode,omitempty"`
	ErrorMessage     *string `json:"errorMessage,omitempty"`
	LastAttemptAt    *string `json:"lastAttemptAt,omitempty"`
	LastSuccessAt    *string `json:"lastSuccessAt,omitempty"`
	TransactionCount int64   `json:"transactionCount"`
}

type syncErrorResponse struct {
	Error    string `json:"error"`
	Category string `json:"category,omitempty"`
	Code     string `json:"code,omitempty"`
}

// HandleSync triggers one synchronous sync attempt for the connection.
// Route: POST /api/connections/{id}/sync
func (h *SyncHandler) HandleSync(w http.ResponseWriter, r *http.Request) {
	id, ok := parseConnectionID(w, r)
	if !ok {
		return
	}

	outcome, err := h.syncer.Sync(r.Context(), id)
	if err != nil {
		h.writeSyncError(w, id, err)
		return
	}

	writeJSON(w, http.StatusOK, outcome)
}

// HandleGetConnection returns the sync status of one connection.
// Route: GET /api/connections/{id}
func (h *SyncHandler) HandleGetConnection(w http.ResponseWriter, r *http.Request) {
	id, ok := parseConnectionID(w, r)
	if !ok {
		return
	}

	conn, err := h.connections.GetByID(r.Context(), id)
	if err != nil {
		log.Printf("Error loading connection %d: %v", id, err)
		http.Error(w, "Failed to load connection", http.StatusInternalServerError)
		return
	}
	if conn == nil {
		http.Error(w, "Connection not found", http.StatusNotFound)
		return
	}

	count, err := h.transactions.CountByConnection(r.Context(), id)
	if err != nil {
		log.Printf("Error counting transactions for connection %d: %v", id, err)
		http.Error(w, "Failed to load connection", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, toConnectionResponse(conn, count))
}

// HandleListConnections returns all connections eligible for syncing.
// Route: GET /api/connections
func (h *SyncHandler) HandleListConnections(w http.ResponseWriter, r *http.Request) {
	conns, err := h.connections.ListActive(r.Context())
	if err != nil {
		log.Printf("Error listing connections: %v", err)
		http.Error(w, "Failed to list connections", http.StatusInternalServerError)
		return
	}

	response := make([]ConnectionResponse, 0, len(conns))
	for _, conn := range conns {
		count, err := h.transactions.CountByConnection(r.Context(), conn.ID)
		if err != nil {
			log.Printf("Error counting transactions for connection %d: %v", conn.ID, err)
			http.Error(w, "Failed to list connections", http.StatusInternalServerError)
			return
		}
		response = append(response, toConnectionResponse(conn, count))
	}

	writeJSON(w, http.StatusOK, response)
}

func (h *SyncHandler) writeSyncError(w http.ResponseWriter, id int64, err error) {
	switch {
	case errors.Is(err, sync.ErrConnectionNotFound):
		writeJSON(w, http.StatusNotFound, syncErrorResponse{Error: "connection not found"})
	case errors.Is(err, sync.ErrConnectionRevoked):
		writeJSON(w, http.StatusUnprocessableEntity, syncErrorResponse{Error: "connection is revoked"})
	case errors.Is(err, sync.ErrConflict):
		writeJSON(w, http.StatusConflict, syncErrorResponse{Error: "another sync attempt won the race; retry later"})
	case errors.Is(err, vault.ErrDecryption):
		log.Printf("Sync for connection %d aborted: credential cannot be decrypted", id)
		writeJSON(w, http.StatusInternalServerError, syncErrorResponse{Error: "stored credential cannot be decrypted"})
	default:
		category := provider.Classify(err)
		log.Printf("Sync for connection %d failed (%s): %v", id, category, err)
		writeJSON(w, http.StatusBadGateway, syncErrorResponse{
			Error:    "sync attempt failed",
			Category: category.String(),
			Code:     provider.ErrorCode(err),
		})
	}
}

func toConnectionResponse(conn *models.Connection, count int64) ConnectionResponse {
	return ConnectionResponse{
		ID:               conn.ID,
		Status:           string(conn.Status),
		Cursor:           conn.Cursor,
		Version:          conn.Version,
		ErrorCode:        conn.ErrorCode,
		ErrorMessage:     conn.ErrorMessage,
		LastAttemptAt:    formatTime(conn.LastAttemptAt),
		LastSuccessAt:    formatTime(conn.LastSuccessAt),
		TransactionCount: count,
	}
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}

func parseConnectionID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, "Invalid connection ID", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}
