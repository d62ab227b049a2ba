package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"finsync/internal/infrastructure/postgres"
	"finsync/internal/provider"
	"finsync/internal/shared/config"
	"finsync/internal/sync"
	"finsync/internal/vault"
)

const usage = `Finsync Admin CLI - Management commands for the sync engine

Usage:
  admin <command> [options]

Commands:
  sync                 Run a sync attempt for one or more connections
  rotate-credentials   Re-encrypt legacy credential envelopes to the current format

Examples:
  # Sync one connection
  admin sync --connection-id=1

  # Sync several connections
  admin sync --connection-id=1,2,3

  # Sync every non-revoked connection
  admin sync --all --timeout=30m

  # Report which connections still carry a legacy envelope
  admin rotate-credentials --all --dry-run

  # Re-encrypt all legacy envelopes
  admin rotate-credentials --all
`

func main() {
	if len(os.Args) < 2 {
		fmt.Print(usage)
		os.Exit(1)
	}

	switch os.Args[1] {
	case "sync":
		runSync(os.Args[2:])
	case "rotate-credentials":
		runRotateCredentials(os.Args[2:])
	case "help", "-h", "--help":
		fmt.Print(usage)
	default:
		fmt.Printf("Unknown command: %s\n\n", os.Args[1])
		fmt.Print(usage)
		os.Exit(1)
	}
}

func runSync(args []string) {
	fs := flag.NewFlagSet("sync", flag.ExitOnError)

	idStr := fs.String("connection-id", "", "Connection ID(s) to sync (comma-separated for multiple)")
	all := fs.Bool("all", false, "Sync every non-revoked connection")
	timeoutStr := fs.String("timeout", "30m", "Timeout for the whole run (e.g., 5m, 1h)")

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	if *idStr == "" && !*all {
		fmt.Println("Error: must specify --connection-id or --all")
		fs.PrintDefaults()
		os.Exit(1)
	}

	timeout, err := time.ParseDuration(*timeoutStr)
	if err != nil {
		log.Fatalf("Invalid timeout format: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	deps := mustInitDeps()
	defer deps.db.Close()

	ids := resolveConnectionIDs(ctx, deps.connections, *idStr, *all)
	if len(ids) == 0 {
		log.Println("No connections to sync")
		return
	}

	log.Printf("Starting sync for %d connection(s)", len(ids))
	start := time.Now()

	var failed int
	for _, id := range ids {
		outcome, err := deps.coordinator.Sync(ctx, id)
		switch {
		case errors.Is(err, sync.ErrConflict):
			fmt.Printf("connection %d: skipped, another attempt is in flight\n", id)
		case err != nil:
			failed++
			fmt.Printf("connection %d: failed (%s): %v\n", id, provider.Classify(err), err)
		default:
			fmt.Printf("connection %d: +%d ~%d -%d, status=%s\n",
				id, outcome.Added, outcome.Modified, outcome.Removed, outcome.Status)
		}
	}

	log.Printf("Sync run completed in %v (%d failed)", time.Since(start), failed)
	if failed > 0 {
		os.Exit(1)
	}
}

func runRotateCredentials(args []string) {
	fs := flag.NewFlagSet("rotate-credentials", flag.ExitOnError)

	idStr := fs.String("connection-id", "", "Connection ID(s) to rotate (comma-separated for multiple)")
	all := fs.Bool("all", false, "Rotate every non-revoked connection")
	dryRun := fs.Bool("dry-run", false, "Report legacy envelopes without rewriting them")

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	if *idStr == "" && !*all {
		fmt.Println("Error: must specify --connection-id or --all")
		fs.PrintDefaults()
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	deps := mustInitDeps()
	defer deps.db.Close()

	ids := resolveConnectionIDs(ctx, deps.connections, *idStr, *all)

	var legacy, rotated, conflicts int
	for _, id := range ids {
		conn, err := deps.connections.GetByID(ctx, id)
		if err != nil {
			log.Fatalf("Failed to load connection %d: %v", id, err)
		}
		if conn == nil {
			fmt.Printf("connection %d: not found\n", id)
			continue
		}

		envelope, migrated, err := deps.vault.Migrate(conn.EncryptedCredential)
		if err != nil {
			fmt.Printf("connection %d: envelope failed authentication, cannot rotate\n", id)
			continue
		}
		if !migrated {
			continue
		}

		legacy++
		if *dryRun {
			fmt.Printf("connection %d: legacy envelope\n", id)
			continue
		}

		ok, err := deps.connections.UpdateCredential(ctx, conn.ID, conn.Version, envelope)
		if err != nil {
			log.Fatalf("Failed to update credential for connection %d: %v", id, err)
		}
		if !ok {
			conflicts++
			fmt.Printf("connection %d: version changed mid-rotation, re-run to retry\n", id)
			continue
		}
		rotated++
		fmt.Printf("connection %d: rotated\n", id)
	}

	fmt.Printf("\n%d connection(s) checked, %d legacy, %d rotated, %d conflicts\n",
		len(ids), legacy, rotated, conflicts)
}

type adminDeps struct {
	db          *postgres.DB
	connections *postgres.ConnectionRepository
	coordinator *sync.Coordinator
	vault       *vault.Vault
}

func mustInitDeps() *adminDeps {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	db, err := postgres.New(cfg.Database.ConnectionString())
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	log.Println("Connected to database")

	credentialVault, err := vault.New(cfg.Encryption.Key)
	if err != nil {
		log.Fatalf("Failed to initialize vault: %v", err)
	}

	connectionRepo := postgres.NewConnectionRepository(db)
	transactionRepo := postgres.NewTransactionRepository(db)
	accountRepo := postgres.NewAccountRepository(db)

	engine := sync.NewEngine(transactionRepo, accountRepo)
	client := provider.NewClient(cfg.Provider.BaseURL)
	coordinator := sync.NewCoordinator(connectionRepo, engine, client, credentialVault, cfg.Provider.PageSize)

	return &adminDeps{
		db:          db,
		connections: connectionRepo,
		coordinator: coordinator,
		vault:       credentialVault,
	}
}

func resolveConnectionIDs(ctx context.Context, repo *postgres.ConnectionRepository, idStr string, all bool) []int64 {
	if all {
		conns, err := repo.ListActive(ctx)
		if err != nil {
			log.Fatalf("Failed to list connections: %v", err)
		}
		ids := make([]int64, 0, len(conns))
		for _, conn := range conns {
			ids = append(ids, conn.ID)
		}
		return ids
	}

	var ids []int64
	for _, p := range strings.Split(idStr, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		id, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			log.Fatalf("Invalid connection ID '%s': %v", p, err)
		}
		ids = append(ids, id)
	}
	return ids
}
