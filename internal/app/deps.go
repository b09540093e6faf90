// Package app wires the stores, services and sync engine selected by the
// configuration. Both the API server and the admin CLI build on it.
package app

import (
	"context"
	"fmt"
	"log"

	"lifedash/internal/domain/autorule"
	"lifedash/internal/domain/credential"
	"lifedash/internal/domain/entity"
	"lifedash/internal/domain/inbox"
	"lifedash/internal/domain/mapping"
	"lifedash/internal/domain/studysync"
	"lifedash/internal/domain/syncjob"
	"lifedash/internal/domain/synclog"
	"lifedash/internal/infrastructure/crypto"
	"lifedash/internal/infrastructure/firebase"
	"lifedash/internal/infrastructure/memory"
	"lifedash/internal/infrastructure/postgres"
	"lifedash/internal/infrastructure/postgres/listener"
	"lifedash/internal/infrastructure/studyplanner"
	httphandlers "lifedash/internal/interfaces/http"
	"lifedash/internal/interfaces/scheduler"
	"lifedash/internal/shared/auth"
	"lifedash/internal/shared/config"
)

// Dependencies holds all initialized application components.
type Dependencies struct {
	Firestore *firebase.Client
	DB        *postgres.DB
	Listener  *listener.InboxListener

	// Services
	Credentials  *credential.Service
	Rules        *autorule.Service
	Transactions *entity.TransactionService
	Jobs         *syncjob.Service
	Logs         *synclog.Service
	Inbox        *inbox.Service
	Consumer     *inbox.Consumer
	StudyPlanner *studysync.Adapter

	// Sync execution
	Pool       *scheduler.WorkerPool
	Dispatcher *scheduler.Dispatcher

	// Handlers
	IntegrationHandler *httphandlers.IntegrationHandler
	TransactionHandler *httphandlers.TransactionHandler
	RuleHandler        *httphandlers.RuleHandler
	HealthHandler      *httphandlers.HealthHandler

	// Auth
	JWT *auth.JWT

	// InboxWake signals the consumer that items were enqueued. Nil when the
	// inbox backend cannot notify.
	InboxWake <-chan struct{}
}

// userStores are the repositories holding user owned data.
type userStores struct {
	entities    entity.Store
	rules       autorule.Repository
	credentials credential.Repository
}

// syncStores are the repositories holding sync engine state.
type syncStores struct {
	mappings mapping.Repository
	jobs     syncjob.Repository
	logs     synclog.Repository
	inbox    inbox.Repository
	wake     <-chan struct{}
}

// NewDependencies initializes all application dependencies. The worker pool
// is created but not started.
func NewDependencies(ctx context.Context, cfg *config.Config) (*Dependencies, error) {
	deps := &Dependencies{}

	if cfg.UsesFirestore() {
		fs, err := firebase.NewClient(ctx, cfg.Firebase.ProjectID, cfg.Firebase.CredentialsFile)
		if err != nil {
			return nil, err
		}
		deps.Firestore = fs
		log.Printf("Connected to Firestore project %s", cfg.Firebase.ProjectID)
	}

	if cfg.Stores.SyncStateBackend == config.BackendPostgres {
		db, err := postgres.New(ctx, cfg.Database.URL, postgres.PoolConfig{
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		})
		if err != nil {
			deps.Close()
			return nil, err
		}
		deps.DB = db
		log.Println("Connected to database")

		if cfg.Database.MigrateOnStart {
			if err := db.Migrate(); err != nil {
				deps.Close()
				return nil, err
			}
		}
	}

	encryptor, err := crypto.NewEncryptor(cfg.Encryption.Key)
	if err != nil {
		deps.Close()
		return nil, err
	}
	loc, err := cfg.Sync.Location()
	if err != nil {
		deps.Close()
		return nil, fmt.Errorf("invalid TIME_ZONE: %w", err)
	}

	users := deps.userStores(cfg)
	state := deps.syncStores(cfg)
	deps.InboxWake = state.wake

	// Domain services
	deps.Credentials = credential.NewService(users.credentials, encryptor)
	deps.Rules = autorule.NewService(users.rules)
	deps.Transactions = entity.NewTransactionService(users.entities.Transactions, deps.Rules)
	deps.Jobs = syncjob.NewService(state.jobs, syncjob.NewGuard(), cfg.Sync.StaleAfter)
	deps.Logs = synclog.NewService(state.logs)
	deps.Inbox = inbox.NewService(state.inbox)
	registry := mapping.NewRegistry(state.mappings)

	// Study planner integration
	client := studyplanner.NewClient(studyplanner.Config{
		PullURL:   cfg.StudyPlanner.PullURL,
		PushURL:   cfg.StudyPlanner.PushURL,
		Timeout:   cfg.StudyPlanner.Timeout,
		RateLimit: cfg.StudyPlanner.RateLimit,
	})
	deps.StudyPlanner = studysync.NewAdapter(deps.Credentials, client, registry, users.entities, deps.Jobs, deps.Logs, studysync.Config{
		Location:   loc,
		PushWindow: cfg.Sync.PushWindow,
	})

	// Inbox consumer: generic transforms first, provider specific ones override
	deps.Consumer = inbox.NewConsumer(state.inbox, cfg.Inbox.BatchSize, cfg.Inbox.PollInterval)
	inbox.NewTransforms(registry, users.entities, deps.Transactions).RegisterAll(deps.Consumer)
	deps.StudyPlanner.RegisterInboxTransforms(deps.Consumer)

	// Sync execution
	deps.Pool = scheduler.NewWorkerPool(cfg.Scheduler.WorkerCount, cfg.Scheduler.JobTimeout, cfg.Scheduler.QueueSize)
	deps.Dispatcher = scheduler.NewDispatcher(deps.Jobs, deps.Pool)
	deps.Dispatcher.Handle(studysync.Provider, deps.StudyPlanner)
	deps.Dispatcher.HandleWebhook(scheduler.InboxDrainRunner{
		Consumer: deps.Consumer,
		Jobs:     deps.Jobs,
		Narrator: deps.Logs,
	})

	// Handlers
	deps.JWT = auth.NewJWT(cfg.JWT.Secret)
	deps.IntegrationHandler = httphandlers.NewIntegrationHandler(deps.Dispatcher, deps.Jobs, deps.Logs, deps.Inbox)
	deps.TransactionHandler = httphandlers.NewTransactionHandler(deps.Transactions)
	deps.RuleHandler = httphandlers.NewRuleHandler(deps.Rules)
	deps.HealthHandler = httphandlers.NewHealthHandler(deps.healthChecks())

	return deps, nil
}

func (d *Dependencies) userStores(cfg *config.Config) userStores {
	if cfg.Stores.Backend == config.BackendFirestore {
		log.Println("User data store: firestore")
		return userStores{
			entities:    firebase.NewStore(d.Firestore),
			rules:       firebase.NewRuleRepository(d.Firestore),
			credentials: firebase.NewCredentialRepository(d.Firestore),
		}
	}
	log.Println("User data store: memory (data is lost on restart)")
	return userStores{
		entities:    memory.NewEntities().Store(),
		rules:       memory.NewRuleRepository(),
		credentials: memory.NewCredentialRepository(),
	}
}

func (d *Dependencies) syncStores(cfg *config.Config) syncStores {
	switch cfg.Stores.SyncStateBackend {
	case config.BackendPostgres:
		log.Println("Sync state store: postgres")
		d.Listener = listener.NewInboxListener(d.DB.ConnString())
		return syncStores{
			mappings: postgres.NewMappingRepository(d.DB),
			jobs:     postgres.NewJobRepository(d.DB),
			logs:     postgres.NewLogRepository(d.DB),
			inbox:    postgres.NewInboxRepository(d.DB),
			wake:     d.Listener.Notifications(),
		}
	case config.BackendFirestore:
		log.Println("Sync state store: firestore")
		return syncStores{
			mappings: firebase.NewMappingRepository(d.Firestore),
			jobs:     firebase.NewJobRepository(d.Firestore),
			logs:     firebase.NewLogRepository(d.Firestore),
			inbox:    firebase.NewInboxRepository(d.Firestore),
		}
	default:
		log.Println("Sync state store: memory (state is lost on restart)")
		inboxRepo := memory.NewInboxRepository()
		return syncStores{
			mappings: memory.NewMappingRepository(),
			jobs:     memory.NewJobRepository(),
			logs:     memory.NewLogRepository(),
			inbox:    inboxRepo,
			wake:     inboxRepo.Notifications(),
		}
	}
}

func (d *Dependencies) healthChecks() map[string]httphandlers.HealthCheck {
	checks := make(map[string]httphandlers.HealthCheck)
	if d.DB != nil {
		checks["postgres"] = d.DB.PingContext
	}
	if d.Firestore != nil {
		checks["firestore"] = d.Firestore.Ping
	}
	return checks
}

// SyncUsers lists the users connected to provider.
func (d *Dependencies) SyncUsers(ctx context.Context, provider string) ([]string, error) {
	users, err := d.Credentials.Users(ctx, provider)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s users: %w", provider, err)
	}
	return users, nil
}

// Close releases all resources held by dependencies.
func (d *Dependencies) Close() {
	if d.Firestore != nil {
		if err := d.Firestore.Close(); err != nil {
			log.Printf("Error closing Firestore client: %v", err)
		}
	}
	if d.DB != nil {
		d.DB.Close()
	}
}
