package app

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"time"

	_ "github.com/lib/pq"
	config "github.com/maheshrc27/postflow/configs"
	"github.com/maheshrc27/postflow/internal/lock"
	"github.com/maheshrc27/postflow/internal/platform"
	"github.com/maheshrc27/postflow/internal/queue"
	"github.com/maheshrc27/postflow/internal/repository"
	"github.com/maheshrc27/postflow/internal/service"
	"github.com/maheshrc27/postflow/pkg/utils"
	"github.com/valkey-io/valkey-go"
)

const refreshLockTTL = 30 * time.Second

// App holds the dependencies every binary shares. Each main builds one with
// New and closes it on exit.
type App struct {
	Config *config.Config
	DB     *sql.DB

	Users    repository.UserRepository
	Accounts repository.AccountRepository
	Posts    repository.PostRepository
	Results  repository.PlatformResultRepository
	Jobs     repository.JobRepository
	Keys     repository.ApiKeyRepository

	Tokens    *platform.TokenManager
	Clients   *service.PlatformClients
	Queue     *queue.RedisQueue
	Scheduler *queue.Scheduler

	PostService service.PostService

	valkey valkey.Client
}

func New(ctx context.Context, cfg *config.Config) (*App, error) {
	db, err := sql.Open("postgres", cfg.PostgresURI)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("database is unreachable: %w", err)
	}

	cipher, err := utils.NewTokenCipher([]byte(cfg.TokenEncryptionKey))
	if err != nil {
		db.Close()
		return nil, err
	}

	a := &App{Config: cfg, DB: db}

	var locker lock.Locker = lock.NewKeyedMutex()
	if cfg.ValkeyURI != "" {
		client, err := lock.NewValkeyClient(ctx, cfg.ValkeyURI)
		if err != nil {
			db.Close()
			return nil, err
		}
		a.valkey = client
		locker = lock.NewValkeyLocker(client, "postflow:lock:", refreshLockTTL)
	}

	a.Users = repository.NewUserRepository(db)
	a.Accounts = repository.NewAccountRepository(db, cipher)
	a.Posts = repository.NewPostRepository(db)
	a.Results = repository.NewPlatformResultRepository(db)
	a.Jobs = repository.NewJobRepository(db)
	a.Keys = repository.NewApiKeyRepository(db)

	a.Tokens = platform.NewTokenManager(a.Accounts, locker)
	a.Clients = service.NewPlatformClients(cfg, a.Tokens)
	a.Queue = queue.NewRedisQueue(cfg.RedisURI)
	a.Scheduler = queue.NewScheduler(a.Jobs, a.Queue, cfg.JobMaxAttempts)

	publisher := service.NewPublishService(a.Clients, cfg.MediaPublicURL, cfg.TiktokMediaURL)
	a.PostService = service.NewPostService(a.Posts, a.Results, a.Accounts, a.Scheduler, publisher)

	return a, nil
}

func (a *App) Close() {
	if err := a.Queue.Close(); err != nil {
		log.Printf("Failed to close queue: %v", err)
	}
	if a.valkey != nil {
		a.valkey.Close()
	}

	fmt.Fprint(os.Stdout, "Closing database connection... ")
	if err := a.DB.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to close database: %v", err)
		return
	}
	fmt.Fprintln(os.Stdout, "Done")
}
