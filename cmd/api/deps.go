package main

import (
	"context"
	"log"

	"ledgerlink/internal/domain/item"
	"ledgerlink/internal/domain/notification"
	"ledgerlink/internal/domain/plan"
	"ledgerlink/internal/domain/sync"
	"ledgerlink/internal/infrastructure/crypto"
	"ledgerlink/internal/infrastructure/firebase"
	"ledgerlink/internal/infrastructure/postgres"
	"ledgerlink/internal/infrastructure/provider"
	httphandlers "ledgerlink/internal/interfaces/http"
	"ledgerlink/internal/shared/auth"
	"ledgerlink/internal/shared/config"
	"ledgerlink/internal/shared/messages"
	"ledgerlink/internal/shared/middleware"
)

// Dependencies holds all initialized application components.
type Dependencies struct {
	DB *postgres.DB

	// Handlers
	LinkHandler    *httphandlers.LinkHandler
	ItemHandler    *httphandlers.ItemHandler
	WebhookHandler *httphandlers.WebhookHandler

	// Auth
	JWT *auth.JWT

	// Sync engine (for scheduler jobs)
	SyncEngine *sync.Engine

	// Item repository (for the scheduler job provider)
	ItemRepo *postgres.ItemRepository
}

// NewDependencies initializes all application dependencies.
func NewDependencies(ctx context.Context, cfg *config.Config) (*Dependencies, error) {
	// Connect to database
	db, err := postgres.New(cfg.Database.ConnectionString())
	if err != nil {
		return nil, err
	}
	log.Println("Connected to database")

	if err := postgres.RunMigrations(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	// Initialize the access token vault
	encryptor, err := crypto.NewEncryptor(cfg.Encryption.Key)
	if err != nil {
		db.Close()
		return nil, err
	}

	// Initialize repositories
	itemRepo := postgres.NewItemRepository(db)
	accountRepo := postgres.NewAccountRepository(db)
	transactionRepo := postgres.NewTransactionRepository(db)

	// Initialize the aggregation provider client
	gateway := provider.NewClient(provider.Config{
		BaseURL:  cfg.Provider.BaseURL,
		ClientID: cfg.Provider.ClientID,
		Secret:   cfg.Provider.Secret,
		Timeout:  cfg.Provider.Timeout,
	})

	// Initialize push notifications (optional)
	var messenger notification.Messenger
	if cfg.Firebase.CredentialsFile != "" {
		fbClient, err := firebase.NewClient(ctx, cfg.Firebase.CredentialsFile)
		if err != nil {
			log.Printf("Warning: Failed to initialize Firebase: %v", err)
		} else {
			messenger = fbClient
			log.Println("Firebase messaging initialized")
		}
	} else {
		log.Println("Firebase credentials not configured, push notifications disabled")
	}
	var texts *messages.Messages
	if cfg.Firebase.MessagesFile != "" {
		texts, err = messages.Load(cfg.Firebase.MessagesFile)
		if err != nil {
			log.Printf("Warning: Failed to load notification messages, using defaults: %v", err)
			texts = nil
		}
	}
	pushService := notification.NewService(messenger, texts)

	// Initialize sync engine and item lifecycle service
	syncEngine := sync.NewEngine(gateway, encryptor, itemRepo, accountRepo, transactionRepo)

	itemService := item.NewService(
		itemRepo,
		accountRepo,
		transactionRepo,
		gateway,
		encryptor,
		&sessionAuth{},
		&staticSubscriptions{cfg: cfg.Plans},
		&logEmailSender{},
		pushService,
		syncEngine,
		cfg.Plans.RequireSecondFactor,
	)

	// Initialize auth components
	jwt := auth.NewJWT(cfg.JWT.Secret)

	return &Dependencies{
		DB:             db,
		LinkHandler:    httphandlers.NewLinkHandler(itemService),
		ItemHandler:    httphandlers.NewItemHandler(itemService),
		WebhookHandler: httphandlers.NewWebhookHandler(itemService),
		JWT:            jwt,
		SyncEngine:     syncEngine,
		ItemRepo:       itemRepo,
	}, nil
}

// Close releases all resources held by dependencies.
func (d *Dependencies) Close() {
	if d.DB != nil {
		d.DB.Close()
	}
}

// sessionAuth reads the second-factor flag the auth middleware stored from
// the JWT claims.
type sessionAuth struct{}

func (sessionAuth) HasSecondFactor(ctx context.Context, userID int64) (bool, error) {
	return middleware.SecondFactor(ctx), nil
}

// staticSubscriptions resolves plans from configuration. Every user gets the
// default plan with an active subscription; a billing integration replaces
// this adapter when subscriptions are enabled.
type staticSubscriptions struct {
	cfg config.PlansConfig
}

func (s *staticSubscriptions) EffectivePlan(ctx context.Context, userID int64) (plan.Plan, bool, error) {
	p := plan.Plan(s.cfg.DefaultPlan)
	if !plan.Valid(p) {
		p = plan.Free
	}
	return p, true, nil
}

// logEmailSender records confirmation emails in the log. An SMTP or
// transactional email integration can replace it without touching the
// lifecycle service.
type logEmailSender struct{}

func (logEmailSender) SendConnectionConfirmation(ctx context.Context, userID int64, institutionName string, isFirstConnection bool) error {
	log.Printf("Email: connection confirmation for user %d (institution %s, first=%v)", userID, institutionName, isFirstConnection)
	return nil
}
