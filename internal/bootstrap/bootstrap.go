package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	mcpadapter "github.com/kirillkom/formly/internal/adapters/mcp"
	"github.com/kirillkom/formly/internal/config"
	"github.com/kirillkom/formly/internal/core/domain"
	"github.com/kirillkom/formly/internal/core/forms"
	"github.com/kirillkom/formly/internal/core/ports"
	"github.com/kirillkom/formly/internal/core/usecase"
	"github.com/kirillkom/formly/internal/infrastructure/extractor/local"
	"github.com/kirillkom/formly/internal/infrastructure/llm/extraction"
	"github.com/kirillkom/formly/internal/infrastructure/llm/gemini"
	"github.com/kirillkom/formly/internal/infrastructure/llm/ollama"
	memorylock "github.com/kirillkom/formly/internal/infrastructure/lock/memory"
	redislock "github.com/kirillkom/formly/internal/infrastructure/lock/redis"
	"github.com/kirillkom/formly/internal/infrastructure/ocr/httpocr"
	"github.com/kirillkom/formly/internal/infrastructure/queue/nats"
	"github.com/kirillkom/formly/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/formly/internal/infrastructure/resilience"
	"github.com/kirillkom/formly/internal/infrastructure/storage/localfs"
	miniostorage "github.com/kirillkom/formly/internal/infrastructure/storage/minio"
	"github.com/kirillkom/formly/internal/observability/metrics"
)

// Storage is an object store that can also hand back typed payloads.
type Storage interface {
	ports.ObjectStorage
	ports.FileDownloader
}

// Observer receives pipeline telemetry; WorkerMetrics implements it.
type Observer interface {
	usecase.ClassificationObserver
	usecase.ReconcileObserver
}

type App struct {
	Config config.Config

	Queue       ports.MessageQueue
	Documents   ports.DocumentRepository
	Engagements ports.EngagementRepository
	Audit       ports.AuditLog
	Storage     Storage
	Registry    *forms.Registry

	Classifier    ports.DocumentClassifier
	EngagementUC  ports.EngagementService
	IngestUC      ports.DocumentIngestor
	ProcessUC     ports.DocumentProcessor
	ReviewUC      ports.DocumentReviewer
	ReconcileUC   ports.Reconciler
	RecoveryUC    ports.StuckRecoverer
	Dispatcher    *usecase.Dispatcher
	WorkerMetrics *metrics.WorkerMetrics

	closers []func()
}

// Options selects what New connects. The CLI and MCP server skip the queue.
type Options struct {
	Service     string
	SkipQueue   bool
	WithMetrics bool
}

func New(ctx context.Context, cfg config.Config, opts Options) (*App, error) {
	app := &App{Config: cfg, Registry: forms.Default()}
	var observer Observer
	if opts.WithMetrics {
		app.WorkerMetrics = metrics.NewWorkerMetrics(opts.Service)
		observer = app.WorkerMetrics
	}

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	app.closers = append(app.closers, func() { _ = db.Close() })
	if err := postgres.EnsureSchema(ctx, db); err != nil {
		app.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	app.wireRepositories(db)

	if app.Storage, err = newStorage(ctx, cfg); err != nil {
		app.Close()
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	locker, err := app.newLocker(ctx)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("init document lock: %w", err)
	}

	if !opts.SkipQueue {
		queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
			HandlerTimeout:     cfg.NATSHandlerTimeout,
			ResilienceExecutor: app.newExecutor(resilience.DefaultConfig()),
		})
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("init message queue: %w", err)
		}
		app.Queue = queue
		app.closers = append(app.closers, queue.Close)
	}

	llm, err := newLLM(ctx, cfg, app.newExecutor(llmPolicy(cfg)))
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("init llm provider: %w", err)
	}
	app.Classifier = newClassifier(cfg, llm, app.Registry, observer)

	ocr := httpocr.New(cfg.OCRURL, httpocr.Options{
		APIKey:   cfg.OCRAPIKey,
		Timeout:  cfg.OCRTimeout,
		Executor: app.newExecutor(resilience.DefaultConfig()),
	})
	textExtractor := local.NewExtractor(ocr)

	reconcileUC := usecase.NewReconcileUseCase(app.Engagements, app.Documents, app.Audit, llm, observer)
	processUC := usecase.NewProcessDocumentUseCase(
		app.Documents,
		app.Engagements,
		app.Storage,
		textExtractor,
		app.Classifier,
		reconcileUC,
		usecase.ProcessOptions{Queue: app.Queue, Locker: locker, Budget: cfg.PipelineBudget},
	)
	app.Dispatcher = usecase.NewDispatcher(processUC, cfg.BatchSize)

	app.ReconcileUC = reconcileUC
	app.ProcessUC = processUC
	app.EngagementUC = usecase.NewEngagementUseCase(app.Engagements, app.Documents)
	app.IngestUC = usecase.NewIngestDocumentUseCase(app.Documents, app.Engagements, app.Storage, app.Queue, app.dispatcherForSync())
	app.ReviewUC = usecase.NewReviewUseCase(app.Documents, app.Registry, reconcileUC, app.Queue)
	app.RecoveryUC = usecase.NewRecoveryUseCase(app.Documents, app.Queue, cfg.StuckThreshold)

	slog.Info("bootstrap_complete",
		"llm_provider", cfg.LLMProvider,
		"classifier_mode", cfg.ClassifierMode,
		"storage_backend", cfg.StorageBackend,
		"lock_backend", cfg.LockBackend,
		"queue", app.Queue != nil,
	)
	return app, nil
}

func (a *App) wireRepositories(db *sql.DB) {
	a.Documents = postgres.NewDocumentRepository(db)
	a.Engagements = postgres.NewEngagementRepository(db)
	a.Audit = postgres.NewAuditLog(db)
}

// dispatcherForSync processes storage-sync batches inline when there is no
// queue to hand them to.
func (a *App) dispatcherForSync() *usecase.Dispatcher {
	if a.Queue == nil {
		return a.Dispatcher
	}
	return nil
}

func (a *App) newLocker(ctx context.Context) (ports.DocumentLocker, error) {
	switch strings.ToLower(a.Config.LockBackend) {
	case "memory":
		return memorylock.New(), nil
	case "redis", "":
		locker, err := redislock.New(ctx, a.Config.RedisURL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = locker.Close() })
		return locker, nil
	default:
		return nil, fmt.Errorf("unknown lock backend %q", a.Config.LockBackend)
	}
}

func newStorage(ctx context.Context, cfg config.Config) (Storage, error) {
	switch strings.ToLower(cfg.StorageBackend) {
	case "localfs", "":
		return localfs.New(cfg.StoragePath)
	case "minio":
		return miniostorage.New(ctx, miniostorage.Config{
			Endpoint:  cfg.MinIOEndpoint,
			AccessKey: cfg.MinIOAccessKey,
			SecretKey: cfg.MinIOSecretKey,
			Bucket:    cfg.MinIOBucket,
			UseSSL:    cfg.MinIOUseSSL,
		})
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}

// LLM is everything the pipeline needs from a model provider.
type LLM interface {
	extraction.Completer
	ports.ModelCaller
	ports.BriefGenerator
}

type ollamaLLM struct {
	*ollama.Client
	*ollama.BriefGenerator
}

// newExecutor reports guarded calls to the worker metrics when they are enabled.
func (a *App) newExecutor(policy resilience.Config) *resilience.Executor {
	executor := resilience.NewExecutor(policy)
	if a.WorkerMetrics != nil {
		executor.WithObserver(a.WorkerMetrics)
	}
	return executor
}

func llmPolicy(cfg config.Config) resilience.Config {
	policy := resilience.DefaultConfig()
	policy.RateLimit = cfg.LLMRateLimitRPS
	return policy
}

func newLLM(ctx context.Context, cfg config.Config, executor *resilience.Executor) (LLM, error) {
	switch strings.ToLower(cfg.LLMProvider) {
	case "ollama", "":
		client := ollama.New(cfg.OllamaURL, cfg.OllamaModel, ollama.Options{Timeout: cfg.LLMTimeout, Executor: executor})
		return ollamaLLM{Client: client, BriefGenerator: ollama.NewBriefGenerator(client)}, nil
	case "gemini":
		return gemini.New(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, gemini.Options{
			BaseURL:  cfg.GeminiBaseURL,
			Executor: executor,
			Timeout:  cfg.LLMTimeout,
		})
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.LLMProvider)
	}
}

// NewClassifier builds the configured classifier without touching storage,
// the database or the queue.
func NewClassifier(ctx context.Context, cfg config.Config, registry *forms.Registry) (ports.DocumentClassifier, error) {
	llm, err := newLLM(ctx, cfg, resilience.NewExecutor(llmPolicy(cfg)))
	if err != nil {
		return nil, fmt.Errorf("init llm provider: %w", err)
	}
	return newClassifier(cfg, llm, registry, nil), nil
}

func newClassifier(cfg config.Config, llm LLM, registry *forms.Registry, observer Observer) ports.DocumentClassifier {
	extractor := extraction.NewExtractor(llm, cfg.LLMTimeout)
	if strings.EqualFold(cfg.ClassifierMode, "agentic") {
		return usecase.NewAgenticClassifier(
			llm,
			extractor,
			registry,
			mcpadapter.ClassifierTools(),
			domain.AgentLimits{MaxTurns: cfg.AgentMaxTurns, MaxAttempts: cfg.MaxClassificationAttempts},
			observer,
		)
	}
	return usecase.NewClassifyUseCase(extractor, registry, cfg.MaxClassificationAttempts, observer)
}

func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
