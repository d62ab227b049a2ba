package main

import (
	"context"
	"fmt"
	"log"

	"finsync/internal/infrastructure/postgres"
	"finsync/internal/provider"
	"finsync/internal/scheduler"
	"finsync/internal/shared/config"
	"finsync/internal/sync"
	"finsync/internal/vault"
)

// Dependencies holds all initialized application components.
type Dependencies struct {
	DB *postgres.DB

	Connections  *postgres.ConnectionRepository
	Transactions *postgres.TransactionRepository
	Accounts     *postgres.AccountRepository

	Provider    *provider.Client
	Coordinator *sync.Coordinator
}

// NewDependencies initializes all application dependencies.
func NewDependencies(cfg *config.Config) (*Dependencies, error) {
	db, err := postgres.New(cfg.Database.ConnectionString())
	if err != nil {
		return nil, err
	}
	log.Println("Connected to database")

	credentialVault, err := vault.New(cfg.Encryption.Key)
	if err != nil {
		db.Close()
		return nil, err
	}

	connectionRepo := postgres.NewConnectionRepository(db)
	transactionRepo := postgres.NewTransactionRepository(db)
	accountRepo := postgres.NewAccountRepository(db)

	client := provider.NewClient(cfg.Provider.BaseURL)
	engine := sync.NewEngine(transactionRepo, accountRepo)
	coordinator := sync.NewCoordinator(connectionRepo, engine, client, credentialVault, cfg.Provider.PageSize)

	return &Dependencies{
		DB:           db,
		Connections:  connectionRepo,
		Transactions: transactionRepo,
		Accounts:     accountRepo,
		Provider:     client,
		Coordinator:  coordinator,
	}, nil
}

// SyncJobProvider builds one scheduled round: a sync job per active connection.
func (d *Dependencies) SyncJobProvider(ctx context.Context) ([]scheduler.Job, error) {
	conns, err := d.Connections.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list active connections: %w", err)
	}

	jobs := make([]scheduler.Job, 0, len(conns))
	for _, conn := range conns {
		jobs = append(jobs, scheduler.NewSyncJob(conn.ID, d.Coordinator))
	}
	return jobs, nil
}

// Close releases all resources held by dependencies.
func (d *Dependencies) Close() {
	if d.DB != nil {
		d.DB.Close()
	}
}
