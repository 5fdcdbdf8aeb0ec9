package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"

	"talentscout/internal/config"
	"talentscout/internal/crypto"
	"talentscout/internal/database"
	"talentscout/internal/jobs"
	"talentscout/internal/services"
	"talentscout/pkg/auth"
)

// App holds the wired services shared by the server and the operator CLI.
type App struct {
	Config    *config.Config
	Store     database.Store
	Redis     *services.RedisService
	Keys      *crypto.KeyProvider
	Records   *services.RecordStore
	Bank      *services.QuestionBank
	Questions *services.QuestionSource
	Sessions  *services.SessionManager
	Tokens    *auth.CandidateTokens
	Scheduler *jobs.JobScheduler
}

// New connects the store, resolves the master key and builds every service.
// A key resolution failure is returned wrapped in crypto.ErrKeyUnavailable and
// must stop the process.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Config: cfg}

	store, err := OpenStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.Store = store

	if err := a.init(ctx); err != nil {
		a.Close(context.Background())
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context) error {
	cfg := a.Config

	a.Keys = crypto.NewKeyProvider(crypto.KeyProviderConfig{
		Environment: cfg.Environment,
		LocalKey:    cfg.EncryptionKey,
		Backend:     secretBackend(ctx, cfg),
		SecretName:  cfg.AWSSecretName,
		Logger:      slog.Default(),
	})
	key, err := a.Keys.ResolveKey(ctx)
	if err != nil {
		return err
	}
	log.Printf("🔐 [KEY] Encryption key loaded (source: %s)", a.Keys.Source())

	cipher, err := crypto.NewFieldCipher(key)
	if err != nil {
		return fmt.Errorf("failed to create field cipher: %w", err)
	}
	hasher, err := crypto.NewLookupHasher(key)
	if err != nil {
		return fmt.Errorf("failed to create lookup hasher: %w", err)
	}
	signingKey, err := crypto.TokenSigningKey(key)
	if err != nil {
		return fmt.Errorf("failed to derive token key: %w", err)
	}
	// A token must outlive the record it grants access to.
	if a.Tokens, err = auth.NewCandidateTokens(signingKey, cfg.RetentionWindow()); err != nil {
		return err
	}

	var locker services.CandidateLocker = services.NewLocalLocker()
	if cfg.RedisURL != "" {
		redisService, err := services.NewRedisService(cfg.RedisURL)
		if err != nil {
			log.Printf("⚠️  [REDIS] %v, falling back to in-process candidate locks", err)
		} else {
			a.Redis = redisService
			locker = services.NewRedisLocker(redisService)
			log.Println("🔒 [REDIS] Candidate locks shared through Redis")
		}
	}

	a.Records = services.NewRecordStore(
		a.Store,
		services.NewAuditService(a.Store),
		cipher,
		hasher,
		locker,
		services.RecordStoreConfig{
			RetentionWindow:  cfg.RetentionWindow(),
			EncryptAnswers:   cfg.EncryptAnswers,
			PurgeParallelism: cfg.PurgeBatchLimit,
		},
	)

	if a.Bank, err = services.NewQuestionBank(cfg.QuestionBankPath); err != nil {
		return fmt.Errorf("failed to load question bank: %w", err)
	}

	var generator services.QuestionGenerator
	if cfg.LLMAPIKey != "" {
		generator = services.NewLLMQuestionGenerator(services.LLMConfig{
			BaseURL:       cfg.LLMBaseURL,
			APIKey:        cfg.LLMAPIKey,
			Model:         cfg.LLMModel,
			Timeout:       cfg.LLMTimeout,
			RatePerMinute: cfg.LLMRatePerMinute,
		})
	} else {
		log.Println("⚠️  [QUESTIONS] LLM_API_KEY not set, using the built-in question bank")
	}
	a.Questions = services.NewQuestionSource(generator, a.Bank)

	a.Sessions = services.NewSessionManager(services.SessionConfig{
		QuestionCount:      cfg.QuestionCount,
		MaxRedirects:       cfg.MaxRedirects,
		ContextWindowTurns: cfg.ContextWindowTurns,
	}, cfg.SessionIdleTimeout, a.Questions, a.Records)

	if a.Scheduler, err = jobs.NewJobScheduler(); err != nil {
		return err
	}
	if err := a.Scheduler.Register("retention_purge", jobs.NewRetentionPurgeJob(a.Records, cfg.PurgeSchedule)); err != nil {
		return err
	}

	return nil
}

// secretBackend returns nil when a local key is set or the backend is disabled.
func secretBackend(ctx context.Context, cfg *config.Config) crypto.SecretBackend {
	if cfg.EncryptionKey != "" || cfg.SecretBackend != "aws" || cfg.AWSSecretName == "" {
		return nil
	}
	backend, err := crypto.NewAWSSecretBackend(ctx, crypto.AWSSecretConfig{
		Region:          cfg.AWSRegion,
		AccessKeyID:     cfg.AWSAccessKeyID,
		SecretAccessKey: cfg.AWSSecretAccessKey,
		Endpoint:        cfg.AWSEndpoint,
		Field:           cfg.AWSSecretField,
	})
	if err != nil {
		log.Printf("⚠️  [KEY] AWS Secrets Manager unavailable: %v", err)
		return nil
	}
	return backend
}

// OpenStore connects the configured driver and ensures its schema and indexes.
func OpenStore(ctx context.Context, cfg *config.Config) (database.Store, error) {
	switch cfg.StoreDriver {
	case config.DriverMongo:
		log.Println("🔗 Connecting to MongoDB...")
		mongo, err := database.NewMongoDB(cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, err
		}
		if err := mongo.Initialize(ctx); err != nil {
			mongo.Close(context.Background())
			return nil, err
		}
		return mongo, nil
	case config.DriverSQLite, config.DriverMySQL:
		var (
			sqlStore *database.SQLStore
			err      error
		)
		if cfg.StoreDriver == config.DriverSQLite {
			sqlStore, err = database.NewSQLite(cfg.SQLitePath)
		} else {
			sqlStore, err = database.NewMySQL(cfg.MySQLDSN)
		}
		if err != nil {
			return nil, err
		}
		if err := sqlStore.Initialize(ctx); err != nil {
			sqlStore.Close(context.Background())
			return nil, err
		}
		return sqlStore, nil
	case config.DriverMemory:
		log.Println("⚠️  Using the in-memory store: records are lost on restart")
		return database.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

// Close stops background work and releases connections.
func (a *App) Close(ctx context.Context) {
	if a.Scheduler != nil {
		a.Scheduler.Stop()
	}
	if a.Sessions != nil {
		a.Sessions.Close()
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			log.Printf("⚠️  Error closing Redis: %v", err)
		}
	}
	if a.Store != nil {
		if err := a.Store.Close(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("⚠️  Error closing store: %v", err)
		}
	}
}
