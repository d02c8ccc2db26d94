package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"aivisibility/internal/auth"
	"aivisibility/internal/config"
	"aivisibility/internal/health"
	"aivisibility/internal/middleware"
	"aivisibility/internal/models"
	"aivisibility/internal/orchestrator"
	"aivisibility/internal/providers"
	"aivisibility/internal/queue"
	"aivisibility/internal/storage"
	"aivisibility/internal/utils"
)

// VisibilityEngine runs one full visibility analysis.
type VisibilityEngine interface {
	RunVisibilityAnalysis(ctx context.Context, rawURL string, opts orchestrator.Options) (*models.VisibilityReport, error)
}

// HealthMonitor exposes model health to the admin endpoints.
type HealthMonitor interface {
	Snapshot() models.HealthSnapshot
	CheckAll(ctx context.Context) map[string]models.HealthRecord
}

// ScanStore persists scans. Nil when the service runs without a database.
type ScanStore interface {
	Create(ctx context.Context, scan *models.Scan) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Scan, error)
	Complete(ctx context.Context, id uuid.UUID, report models.JSONB) error
	Fail(ctx context.Context, id uuid.UUID, report models.JSONB) error
	ListByAPIKey(ctx context.Context, apiKeyID string, limit int) ([]models.Scan, error)
}

// UsageReader exposes the persisted usage audit trail to the admin API.
// Nil when the service runs without a database.
type UsageReader interface {
	ListByScan(ctx context.Context, scanID uuid.UUID) ([]models.UsageRecord, error)
	TokensByProvider(ctx context.Context, since time.Time) (map[string]int, error)
}

// Dependencies aggregates all services the HTTP layer needs.
type Dependencies struct {
	APIKeys     auth.APIKeyStore
	Engine      VisibilityEngine
	Health      HealthMonitor
	Registry    *providers.Registry
	Scans       ScanStore
	Usage       UsageReader
	UsageWorker *storage.UsageQueueWorker
	DB          *storage.DB

	cfg    *config.Config
	logger *utils.Logger
}

// NewRouter wires the full service and returns the HTTP router together
// with its dependencies. The database and Redis are both optional: without
// DATABASE_URL the service runs stateless, and without Redis the usage
// queue falls back to memory.
func NewRouter(cfg *config.Config) (*http.ServeMux, *Dependencies, error) {
	logger := utils.NewLogger("httpapi")

	registry := providers.NewRegistry(providers.RegistryConfig{
		OpenAIKey:      cfg.Provider.OpenAIKey,
		GeminiKey:      cfg.Provider.GeminiKey,
		AnthropicKey:   cfg.Provider.AnthropicKey,
		RequestTimeout: cfg.Provider.RequestTimeout,
	})
	monitor := health.NewMonitor(registry)

	var db *storage.DB
	var scans ScanStore
	var usage UsageReader
	var usageWorker *storage.UsageQueueWorker
	if cfg.Scan.PersistScans {
		dbCfg := storage.DefaultDBConfig()
		dbCfg.URL = cfg.Database.URL
		dbCfg.MaxOpenConns = cfg.Database.MaxOpenConns
		dbCfg.MaxIdleConns = cfg.Database.MaxIdleConns
		dbCfg.ConnMaxLifetime = cfg.Database.ConnMaxLifetime
		dbCfg.ConnMaxIdleTime = cfg.Database.ConnMaxIdleTime

		var err error
		db, err = storage.NewDB(dbCfg)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		scans = db.NewScanRepository()

		usageCfg := queue.DefaultConfig("usage")
		var usageQueue queue.Queue
		var usageDLQ queue.DeadLetterQueue
		if cfg.Redis.Enabled {
			client := redis.NewClient(&redis.Options{
				Addr:         cfg.Redis.Address,
				Password:     cfg.Redis.Password,
				DB:           cfg.Redis.DB,
				PoolSize:     cfg.Redis.PoolSize,
				MinIdleConns: cfg.Redis.MinIdleConns,
				DialTimeout:  cfg.Redis.DialTimeout,
				ReadTimeout:  cfg.Redis.ReadTimeout,
				WriteTimeout: cfg.Redis.WriteTimeout,
			})
			usageQueue, err = queue.NewRedisQueue(client, usageCfg)
			if err != nil {
				return nil, nil, fmt.Errorf("failed to create usage queue: %w", err)
			}
			usageDLQ, err = queue.NewRedisDeadLetterQueue(client, usageCfg)
			if err != nil {
				return nil, nil, fmt.Errorf("failed to create usage DLQ: %w", err)
			}
		} else {
			usageQueue = queue.NewMemoryQueue(usageCfg)
			usageDLQ = queue.NewMemoryDeadLetterQueue()
		}

		usageRepo := db.NewUsageRepository()
		usage = usageRepo
		usageWorker = storage.NewUsageQueueWorker(usageQueue, usageDLQ, usageRepo, usageCfg)
		usageWorker.Start(context.Background())
	}

	// A nil *UsageQueueWorker must stay a nil interface for the runner.
	var sink orchestrator.UsageSink
	if usageWorker != nil {
		sink = usageWorker
	}
	runner := orchestrator.NewPromptRunner(registry, monitor, sink)
	selector := orchestrator.NewPromptSelector(registry, "")
	engine := orchestrator.NewEngine(runner, selector)

	deps := &Dependencies{
		APIKeys:     seedAPIKeyStore(cfg.APIKeys, logger),
		Engine:      engine,
		Health:      monitor,
		Registry:    registry,
		Scans:       scans,
		Usage:       usage,
		UsageWorker: usageWorker,
		DB:          db,
		cfg:         cfg,
		logger:      logger,
	}

	mux := http.NewServeMux()
	registerRoutes(mux, deps, cfg)

	return mux, deps, nil
}

// seedAPIKeyStore parses the comma-separated "key:tier" list into an
// in-memory store. Malformed entries are logged and skipped.
func seedAPIKeyStore(spec string, logger *utils.Logger) *auth.InMemoryAPIKeyStore {
	store := auth.NewInMemoryAPIKeyStore()
	if spec == "" {
		return store
	}

	for i, entry := range strings.Split(spec, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		key, tier, found := strings.Cut(entry, ":")
		if !found || key == "" {
			logger.Warn("Skipping malformed API key entry", "index", i)
			continue
		}
		if tier != auth.TierFree && tier != auth.TierPro {
			logger.Warn("Skipping API key with unknown tier", "index", i, "tier", tier)
			continue
		}
		store.Add(key, &auth.APIKeyRecord{
			ID:   auth.Fingerprint(key)[:12],
			Tier: tier,
		})
	}
	return store
}

// Close releases everything NewRouter started.
func (deps *Dependencies) Close() error {
	if deps.UsageWorker != nil {
		if err := deps.UsageWorker.Stop(); err != nil {
			return err
		}
	}
	if deps.DB != nil {
		return deps.DB.Close()
	}
	return nil
}

func registerRoutes(mux *http.ServeMux, deps *Dependencies, cfg *config.Config) {
	apiKey := middleware.APIKeyMiddleware(deps.APIKeys)
	adminOnly := middleware.AdminJWTMiddleware(cfg.JWTSecret, auth.RoleAdmin)
	viewer := middleware.AdminJWTMiddleware(cfg.JWTSecret, auth.RoleViewer)

	// Scan API.
	mux.Handle("/v1/analyze", apiKey(http.HandlerFunc(deps.handleAnalyze)))
	if deps.Scans != nil {
		mux.Handle("/v1/scans", apiKey(http.HandlerFunc(deps.handleListScans)))
		mux.Handle("/v1/scans/", apiKey(http.HandlerFunc(deps.handleGetScan)))
	}

	// Liveness.
	mux.HandleFunc("/health", deps.handleHealth)

	// Admin API.
	mux.HandleFunc("/admin/auth/login", deps.handleAdminLogin)
	mux.Handle("/admin/models/health", viewer(http.HandlerFunc(deps.handleModelHealth)))
	mux.Handle("/admin/models/health/check", adminOnly(http.HandlerFunc(deps.handleModelHealthCheck)))
	if deps.Usage != nil {
		mux.Handle("/admin/usage/summary", viewer(http.HandlerFunc(deps.handleUsageSummary)))
		mux.Handle("/admin/usage/scans/", viewer(http.HandlerFunc(deps.handleScanUsage)))
	}
	if deps.UsageWorker != nil {
		mux.Handle("/admin/usage/dlq", viewer(http.HandlerFunc(deps.handleUsageDLQ)))
		mux.Handle("/admin/usage/dlq/retry", adminOnly(http.HandlerFunc(deps.handleUsageDLQRetry)))
	}
}
