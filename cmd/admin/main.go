package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	syncengine "ledgerlink/internal/domain/sync"
	"ledgerlink/internal/infrastructure/crypto"
	"ledgerlink/internal/infrastructure/postgres"
	"ledgerlink/internal/infrastructure/provider"
	"ledgerlink/internal/shared/config"
)

const usage = `LedgerLink Admin CLI - Management commands for the LedgerLink API

Usage:
  admin <command> [options]

Commands:
  sync      Run a full account and transaction sync for connected items
  migrate   Apply pending database migrations

Examples:
  # Sync a specific item
  admin sync --item-id=a1b2c3

  # Sync multiple items
  admin sync --item-id=a1b2c3,d4e5f6

  # Sync every syncable item
  admin sync --all

  # Run with custom worker count for higher concurrency
  admin sync --all --workers=8

  # Run with timeout
  admin sync --all --timeout=15m

  # Apply migrations
  admin migrate
`

func main() {
	if len(os.Args) < 2 {
		fmt.Print(usage)
		os.Exit(1)
	}

	command := os.Args[1]

	switch command {
	case "sync":
		runSync(os.Args[2:])
	case "migrate":
		runMigrate(os.Args[2:])
	case "help", "-h", "--help":
		fmt.Print(usage)
	default:
		fmt.Printf("Unknown command: %s\n\n", command)
		fmt.Print(usage)
		os.Exit(1)
	}
}

func runSync(args []string) {
	fs := flag.NewFlagSet("sync", flag.ExitOnError)

	itemIDStr := fs.String("item-id", "", "Item ID(s) to sync (comma-separated for multiple)")
	allItems := fs.Bool("all", false, "Sync all syncable items")
	workers := fs.Int("workers", 4, "Number of concurrent workers")
	timeoutStr := fs.String("timeout", "30m", "Timeout for the operation (e.g., 5m, 1h)")

	fs.Usage = func() {
		fmt.Println("Usage: admin sync [options]")
		fmt.Println("\nOptions:")
		fs.PrintDefaults()
		fmt.Println("\nExamples:")
		fmt.Println("  admin sync --item-id=a1b2c3")
		fmt.Println("  admin sync --item-id=a1b2c3,d4e5f6")
		fmt.Println("  admin sync --all")
		fmt.Println("  admin sync --all --workers=8 --timeout=1h")
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	if *itemIDStr == "" && !*allItems {
		fmt.Println("Error: must specify --item-id or --all")
		fs.Usage()
		os.Exit(1)
	}

	// Parse timeout
	timeout, err := time.ParseDuration(*timeoutStr)
	if err != nil {
		log.Fatalf("Invalid timeout format: %v", err)
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Connect to database
	db, err := postgres.New(cfg.Database.ConnectionString())
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("Connected to database")

	encryptor, err := crypto.NewEncryptor(cfg.Encryption.Key)
	if err != nil {
		log.Fatalf("Failed to create encryptor: %v", err)
	}

	// Initialize repositories and the sync engine
	itemRepo := postgres.NewItemRepository(db)
	accountRepo := postgres.NewAccountRepository(db)
	transactionRepo := postgres.NewTransactionRepository(db)

	gateway := provider.NewClient(provider.Config{
		BaseURL:  cfg.Provider.BaseURL,
		ClientID: cfg.Provider.ClientID,
		Secret:   cfg.Provider.Secret,
		Timeout:  cfg.Provider.Timeout,
	})

	engine := syncengine.NewEngine(gateway, encryptor, itemRepo, accountRepo, transactionRepo)

	// Create context with timeout
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var itemIDs []string

	if *allItems {
		items, err := itemRepo.ListSyncable(ctx)
		if err != nil {
			log.Fatalf("Failed to list syncable items: %v", err)
		}
		for _, it := range items {
			itemIDs = append(itemIDs, it.ID)
		}
		log.Printf("Found %d syncable items", len(itemIDs))
	} else {
		for _, p := range strings.Split(*itemIDStr, ",") {
			p = strings.TrimSpace(p)
			if p == "" {
				continue
			}
			itemIDs = append(itemIDs, p)
		}
	}

	if len(itemIDs) == 0 {
		log.Println("No items to process")
		return
	}

	log.Printf("Starting sync for %d item(s) with %d workers", len(itemIDs), *workers)
	startTime := time.Now()

	// Fan items out to a bounded set of workers.
	ids := make(chan string)
	var wg sync.WaitGroup

	for i := 0; i < *workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range ids {
				result, err := engine.SyncItem(ctx, id)
				if err != nil {
					log.Printf("Sync failed for item %s: %v", id, err)
					continue
				}
				printResult(result)
			}
		}()
	}

	for _, id := range itemIDs {
		ids <- id
	}
	close(ids)
	wg.Wait()

	elapsed := time.Since(startTime)
	log.Printf("Sync completed in %v", elapsed)
}

func printResult(result *syncengine.Result) {
	fmt.Printf("\n=== Item %s ===\n", result.ItemID)
	fmt.Printf("  Accounts synced:       %d\n", result.AccountsSynced)
	fmt.Printf("  Accounts removed:      %d\n", result.AccountsRemoved)
	fmt.Printf("  Transactions added:    %d\n", result.TransactionsAdded)
	fmt.Printf("  Transactions modified: %d\n", result.TransactionsModified)
	fmt.Printf("  Transactions removed:  %d\n", result.TransactionsRemoved)
}

func runMigrate(args []string) {
	fs := flag.NewFlagSet("migrate", flag.ExitOnError)
	timeoutStr := fs.String("timeout", "5m", "Timeout for the operation")

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	timeout, err := time.ParseDuration(*timeoutStr)
	if err != nil {
		log.Fatalf("Invalid timeout format: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	db, err := postgres.New(cfg.Database.ConnectionString())
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("Connected to database")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := postgres.RunMigrations(ctx, db); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}

	log.Println("Migrations applied")
}
