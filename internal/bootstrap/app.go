package bootstrap

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"knowledge-hub/internal/aiservice"
	"knowledge-hub/internal/documents"
	"knowledge-hub/internal/files"
	"knowledge-hub/internal/ingest"
	"knowledge-hub/internal/query"
	"knowledge-hub/internal/services/health"
	"knowledge-hub/internal/shared/apperr"
	"knowledge-hub/internal/shared/auth"
	"knowledge-hub/internal/shared/config"
	"knowledge-hub/internal/shared/metrics"
	"knowledge-hub/internal/shared/resilience"
	"knowledge-hub/internal/shared/server"
	"knowledge-hub/internal/shared/server/middleware"
	"knowledge-hub/internal/shared/storage/db"
	"knowledge-hub/internal/shared/storage/object"
	gcsstore "knowledge-hub/internal/shared/storage/object/gcs"
	localstore "knowledge-hub/internal/shared/storage/object/local"
	s3store "knowledge-hub/internal/shared/storage/object/s3"
	"knowledge-hub/internal/shared/telemetry"
	"knowledge-hub/internal/users"
)

// App holds the wired dependencies of one process.
type App struct {
	Config  config.Config
	Router  *gin.Engine
	DB      *sql.DB
	Store   object.Store
	Metrics *metrics.Registry
	Issuer  *auth.Issuer

	UsersService     *users.Service
	DocumentsService *documents.Service
	FilesService     *files.Service
	IngestService    *ingest.Service
	QueryService     *query.Service

	closers []io.Closer
}

// AI is the external service surface the dispatcher and query relay use.
type AI interface {
	ingest.Processor
	query.Asker
}

// Build validates cfg and wires every dependency and route.
func Build(cfg config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	ctx := context.Background()

	sqlDB, err := buildDB(ctx, cfg)
	if err != nil {
		return nil, err
	}

	issuer := auth.NewIssuer(cfg.JWTSecret, cfg.JWTTTL)
	app := &App{
		Config:  cfg,
		DB:      sqlDB,
		Metrics: metrics.New(),
		Issuer:  issuer,
	}
	// The lambda pool is process-wide and outlives any one App.
	if sqlDB != nil && !db.IsLambdaRuntime() {
		app.closers = append(app.closers, sqlDB)
	}

	store, localObjects, err := buildStore(ctx, cfg, issuer)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.Store = store
	if closer, ok := store.(io.Closer); ok {
		app.closers = append(app.closers, closer)
	}

	ai, err := buildAI(cfg, app.Metrics)
	if err != nil {
		app.Close()
		return nil, err
	}

	buildServices(app, ai)

	if cfg.WebhookSecret == "" {
		telemetry.Warn("webhook.secret_missing", map[string]any{
			"env":  cfg.Env,
			"path": ingest.CallbackPath,
		})
	}

	healthSvc := health.NewService(nil)
	if sqlDB != nil {
		healthSvc = health.NewService(sqlDB)
	}

	var localHandler *localstore.Handler
	if localObjects != nil {
		localHandler = localstore.NewHandler(localObjects)
	}

	app.Router = server.NewRouter(server.RouterDeps{
		Config:          cfg,
		Verifier:        issuer,
		Metrics:         app.Metrics,
		Health:          healthSvc,
		UserHandler:     users.NewHandler(app.UsersService, cookieConfig(cfg)),
		DocumentHandler: documents.NewHandler(app.DocumentsService),
		FileHandler:     files.NewHandler(app.FilesService),
		IngestHandler:   ingest.NewHandler(app.IngestService),
		QueryHandler:    query.NewHandler(app.QueryService),
		LocalObjects:    localHandler,
		RateLimiter:     middleware.NewRateLimiter(nil),
	})
	return app, nil
}

// Close releases the database pool and storage clients.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func buildDB(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	if cfg.MemoryStore {
		log.Printf("bootstrap: MEMORY_STORE set; using in-memory repositories")
		return nil, nil
	}

	opts := db.OptionsFromEnv(db.DefaultOptions())
	var (
		sqlDB *sql.DB
		err   error
	)
	if db.IsLambdaRuntime() {
		sqlDB, err = db.Shared(ctx, cfg.DatabaseURL, opts)
	} else {
		sqlDB, err = db.Connect(ctx, cfg.DatabaseURL, opts)
	}
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	if cfg.RunMigrations {
		if err := db.RunMigrations(ctx, sqlDB); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}
	return sqlDB, nil
}

func buildStore(ctx context.Context, cfg config.Config, signer localstore.Signer) (object.Store, *localstore.Store, error) {
	switch cfg.ObjectStoreType {
	case "s3":
		store, err := s3store.New(ctx, s3store.Options{
			Region:          cfg.AWSRegion,
			Bucket:          cfg.S3Bucket,
			Prefix:          cfg.S3Prefix,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretKey,
			SSE:             cfg.S3SSE,
			KMSKeyID:        cfg.SSEKMSKeyID,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("s3 object store: %w", err)
		}
		return store, nil, nil
	case "gcs":
		store, err := gcsstore.New(ctx, gcsstore.Options{
			Bucket:          cfg.GCSBucket,
			Prefix:          cfg.GCSPrefix,
			CredentialsFile: cfg.GCSCredentials,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("gcs object store: %w", err)
		}
		return store, nil, nil
	default:
		store := localstore.New(cfg.LocalStoreDir, cfg.PublicBaseURL, signer)
		return store, store, nil
	}
}

func buildAI(cfg config.Config, counter aiservice.Counter) (AI, error) {
	if cfg.AIServiceURL == "" {
		log.Printf("bootstrap: AI_SERVICE_URL empty; processing and query requests will fail")
		return unconfiguredAI{}, nil
	}
	policy := resilience.DefaultPolicy()
	policy.MaxAttempts = cfg.AIRetryAttempts
	policy.InitialBackoff = cfg.AIRetryBackoff
	policy.BreakerEnabled = cfg.AIBreakerEnabled
	policy.BreakerOpenTimeout = cfg.AIBreakerCooldown

	client, err := aiservice.NewClient(aiservice.Options{
		BaseURL:      cfg.AIServiceURL,
		QueryURL:     cfg.AIQueryURL,
		Timeout:      cfg.AITimeout,
		TokenURL:     cfg.AITokenURL,
		ClientID:     cfg.AIClientID,
		ClientSecret: cfg.AIClientSecret,
	}, resilience.NewExecutor(policy), counter)
	if err != nil {
		return nil, err
	}
	return client, nil
}

func buildServices(app *App, ai AI) {
	var (
		userRepo users.Repo
		docRepo  documents.Repo
		fileRepo files.Repo
	)
	if app.DB != nil {
		userRepo = &users.PGRepo{DB: app.DB}
		docRepo = &documents.PGRepo{DB: app.DB}
		fileRepo = &files.PGRepo{DB: app.DB}
	} else {
		docMemory := documents.NewMemoryRepo()
		userRepo = users.NewMemoryRepo()
		docRepo = docMemory
		fileRepo = files.NewMemoryRepo(docMemory)
	}

	docSvc := documents.NewService(docRepo, nil)
	fileSvc := files.NewService(fileRepo, docSvc, app.Store)
	docSvc.Files = fileSvc

	app.UsersService = users.NewService(userRepo, app.Issuer)
	app.DocumentsService = docSvc
	app.FilesService = fileSvc
	app.IngestService = ingest.NewService(docSvc, fileSvc, app.Store, ai, app.Metrics, ingest.Options{
		WebhookBaseURL: app.Config.WebhookBaseURL,
		SignedURLTTL:   app.Config.SignedURLTTL,
		MaxUploadBytes: app.Config.MaxUploadBytes,
	})
	app.QueryService = query.NewService(docSvc, ai)
}

func cookieConfig(cfg config.Config) users.CookieConfig {
	sameSite := http.SameSiteLaxMode
	if cfg.IsProduction() {
		sameSite = http.SameSiteStrictMode
	}
	return users.CookieConfig{
		Name:     cfg.CookieName,
		Domain:   cfg.CookieDomain,
		Secure:   cfg.CookieSecure,
		SameSite: sameSite,
		MaxAge:   cfg.JWTTTL,
	}
}

// unconfiguredAI answers every call with 503 so local runs without an AI
// service still exercise the rest of the API.
type unconfiguredAI struct{}

var errAINotConfigured = errors.New("AI_SERVICE_URL is not configured")

func (unconfiguredAI) Process(ctx context.Context, req aiservice.ProcessRequest) error {
	return &apperr.DispatchError{Operation: "ai.process", StatusCode: http.StatusServiceUnavailable, Err: errAINotConfigured}
}

func (unconfiguredAI) Query(ctx context.Context, req aiservice.QueryRequest) (json.RawMessage, error) {
	return nil, &apperr.DispatchError{Operation: "ai.query", StatusCode: http.StatusServiceUnavailable, Err: errAINotConfigured}
}
