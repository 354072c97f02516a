package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/document-chat-assistant/internal/config"
	"github.com/kirillkom/document-chat-assistant/internal/core/ports"
	"github.com/kirillkom/document-chat-assistant/internal/core/usecase"
	"github.com/kirillkom/document-chat-assistant/internal/infrastructure/auth/jwt"
	rediscache "github.com/kirillkom/document-chat-assistant/internal/infrastructure/cache/redis"
	"github.com/kirillkom/document-chat-assistant/internal/infrastructure/chunking"
	"github.com/kirillkom/document-chat-assistant/internal/infrastructure/extractor"
	"github.com/kirillkom/document-chat-assistant/internal/infrastructure/extractor/pdftext"
	"github.com/kirillkom/document-chat-assistant/internal/infrastructure/extractor/plaintext"
	"github.com/kirillkom/document-chat-assistant/internal/infrastructure/extractor/spreadsheet"
	"github.com/kirillkom/document-chat-assistant/internal/infrastructure/llm/azureopenai"
	"github.com/kirillkom/document-chat-assistant/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/document-chat-assistant/internal/infrastructure/ocr/docintel"
	"github.com/kirillkom/document-chat-assistant/internal/infrastructure/queue/nats"
	"github.com/kirillkom/document-chat-assistant/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/document-chat-assistant/internal/infrastructure/resilience"
	"github.com/kirillkom/document-chat-assistant/internal/infrastructure/scraper"
	"github.com/kirillkom/document-chat-assistant/internal/infrastructure/search"
	"github.com/kirillkom/document-chat-assistant/internal/infrastructure/search/bing"
	"github.com/kirillkom/document-chat-assistant/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/document-chat-assistant/internal/infrastructure/storage/s3"
	"github.com/kirillkom/document-chat-assistant/internal/infrastructure/vector/azuresearch"
	"github.com/kirillkom/document-chat-assistant/internal/infrastructure/vector/qdrant"
)

// Options carry role specific hooks. Observer receives chat pipeline
// outcomes; QueueLag and Indexed feed worker metrics. CircuitState is
// called when an upstream breaker opens or closes.
type Options struct {
	Role         string
	Logger       *slog.Logger
	Observer     ports.PipelineObserver
	QueueLag     func(lag time.Duration)
	Indexed      func(documentID string, chunks int)
	CircuitState func(operation string, open bool)
}

type App struct {
	Config config.Config
	Logger *slog.Logger

	Queue       ports.MessageQueue
	Documents   ports.DocumentReader
	Ingestor    ports.DocumentIngestor
	Processor   ports.DocumentProcessor
	Chat        ports.ChatService
	History     ports.HistoryReader
	Diagnostics ports.WebSearchDiagnostics
	Searcher    ports.DocumentSearcher
	Sessions    ports.SessionVerifier

	closeFns []func()
}

func New(ctx context.Context, cfg config.Config, opts Options) (*App, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	app := &App{Config: cfg, Logger: logger}
	ok := false
	defer func() {
		if !ok {
			app.Close()
		}
	}()

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	app.onClose(func() { _ = db.Close() })
	if err := postgres.EnsureSchema(ctx, db); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	repo := postgres.NewDocumentRepository(db)
	departments := postgres.NewDepartmentRepository(db)

	storage, err := newObjectStorage(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		QueueGroup:         cfg.NATSQueueGroup,
		ResilienceExecutor: resilience.NewExecutor(resilience.DefaultPolicy(), resilience.Options{Logger: logger}),
		OnReceive:          opts.QueueLag,
		Logger:             logger,
	})
	if err != nil {
		return nil, fmt.Errorf("init message queue: %w", err)
	}
	app.onClose(queue.Close)
	app.Queue = queue

	// Upstreams fail fast behind breakers; only the queue publish retries.
	executor := resilience.NewExecutor(resilience.FailFast(), resilience.Options{
		Logger:        logger,
		OnStateChange: opts.CircuitState,
	})

	embedder, completer, err := newLanguageModel(cfg, executor)
	if err != nil {
		return nil, fmt.Errorf("init language model: %w", err)
	}
	index, err := newVectorIndex(cfg, executor)
	if err != nil {
		return nil, fmt.Errorf("init vector index: %w", err)
	}

	ingestUC := usecase.NewIngestDocumentUseCase(repo, storage, queue, departments, logger)
	app.Ingestor = ingestUC
	app.Documents = ingestUC

	if opts.Role == config.RoleWorker {
		analyzer, err := newAnalyzer(cfg, executor)
		if err != nil {
			return nil, fmt.Errorf("init document analyzer: %w", err)
		}
		app.Processor = usecase.NewProcessDocumentUseCase(
			repo,
			storage,
			analyzer,
			chunking.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap),
			embedder,
			index,
			usecase.ProcessConfig{OnIndexed: opts.Indexed},
			logger,
		)
		ok = true
		return app, nil
	}

	verifier, err := jwt.NewVerifier(cfg.AuthJWTSecret, cfg.AuthJWTIssuer, cfg.AuthJWTAudience)
	if err != nil {
		return nil, fmt.Errorf("init session verifier: %w", err)
	}
	app.Sessions = verifier

	history := postgres.NewConversationRepository(db)
	retriever := usecase.NewRetriever(embedder, index, departments, logger)
	app.Searcher = retriever
	app.History = usecase.NewHistoryUseCase(history)

	var researcher *usecase.WebResearcher
	if cfg.WebSearchEnabled() {
		researcher, err = app.newWebResearcher(ctx, cfg, executor, opts.Observer)
		if err != nil {
			return nil, fmt.Errorf("init web search: %w", err)
		}
	}
	app.Diagnostics = usecase.NewWebDiagnosticsUseCase(researcher)

	app.Chat = usecase.NewChatUseCase(usecase.ChatDependencies{
		Guard:     usecase.NewSessionGuard(history),
		History:   history,
		Retriever: retriever,
		Web:       researcher,
		Assembler: usecase.NewContextAssembler(usecase.AssemblerConfig{
			HistoryWindow:        cfg.HistoryWindow,
			CompactCitationLimit: cfg.CompactCitationLimit,
			AssistantName:        cfg.AssistantName,
			Language:             cfg.AssistantLanguage,
		}),
		Completions: usecase.NewCompletionOrchestrator(completer, cfg.CompletionTimeout, logger, opts.Observer),
		Models:      usecase.ModelResolver{Default: cfg.ChatDefaultModel, Aliases: cfg.ModelAliases},
		RetrievalK:  cfg.RAGTopK,
		Logger:      logger,
		Observer:    opts.Observer,
	})

	ok = true
	return app, nil
}

func (a *App) onClose(fn func()) {
	a.closeFns = append(a.closeFns, fn)
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closeFns) - 1; i >= 0; i-- {
		a.closeFns[i]()
	}
	a.closeFns = nil
}

func newObjectStorage(ctx context.Context, cfg config.Config) (ports.ObjectStorage, error) {
	switch cfg.StorageBackend {
	case config.StorageBackendS3:
		return s3.New(ctx, s3.Config{
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			Prefix:    cfg.S3Prefix,
			PathStyle: cfg.S3PathStyle,
		})
	default:
		return localfs.New(cfg.StoragePath)
	}
}

func newLanguageModel(cfg config.Config, executor *resilience.Executor) (ports.Embedder, ports.ChatCompleter, error) {
	switch cfg.LLMProvider {
	case config.LLMProviderOllama:
		client := ollama.New(cfg.OllamaURL, cfg.OllamaEmbedModel, executor)
		return ollama.NewEmbedder(client), ollama.NewCompleter(client), nil
	case config.LLMProviderOpenAI:
		client, err := azureopenai.New(azureopenai.Config{
			APIKey:         cfg.OpenAIAPIKey,
			BaseURL:        cfg.OpenAIBaseURL,
			EmbeddingModel: cfg.EmbeddingModel,
		})
		if err != nil {
			return nil, nil, err
		}
		return client, client, nil
	default:
		client, err := azureopenai.New(azureopenai.Config{
			APIKey:         cfg.AzureOpenAIAPIKey,
			Endpoint:       cfg.AzureOpenAIEndpoint,
			APIVersion:     cfg.AzureOpenAIAPIVersion,
			EmbeddingModel: cfg.EmbeddingModel,
		})
		if err != nil {
			return nil, nil, err
		}
		return client, client, nil
	}
}

func newVectorIndex(cfg config.Config, executor *resilience.Executor) (ports.VectorIndex, error) {
	switch cfg.VectorBackend {
	case config.VectorBackendQdrant:
		return qdrant.New(cfg.QdrantURL, cfg.QdrantCollection, executor), nil
	default:
		return azuresearch.New(azuresearch.Config{
			Endpoint:   cfg.AzureSearchEndpoint,
			APIKey:     cfg.AzureSearchAPIKey,
			IndexName:  cfg.AzureSearchIndex,
			APIVersion: cfg.AzureSearchAPIVersion,
		}, executor)
	}
}

// newAnalyzer routes OCR formats to Document Intelligence when configured.
func newAnalyzer(cfg config.Config, executor *resilience.Executor) (ports.DocumentAnalyzer, error) {
	var ocr ports.DocumentAnalyzer
	if cfg.OCREnabled() {
		client, err := docintel.New(docintel.Config{
			Endpoint: cfg.DocIntelEndpoint,
			APIKey:   cfg.DocIntelAPIKey,
			Model:    cfg.DocIntelModel,
		}, executor)
		if err != nil {
			return nil, err
		}
		ocr = client
	}
	return extractor.NewRouter(ocr, pdftext.NewExtractor(), plaintext.NewExtractor(), spreadsheet.NewExtractor()), nil
}

func (a *App) newWebResearcher(ctx context.Context, cfg config.Config, executor *resilience.Executor, observer ports.PipelineObserver) (*usecase.WebResearcher, error) {
	client, err := bing.New(bing.Config{
		Endpoint: cfg.BingEndpoint,
		APIKey:   cfg.BingAPIKey,
		Market:   cfg.BingMarket,
		Count:    cfg.BingCount,
	}, executor)
	if err != nil {
		return nil, err
	}

	var searcher ports.WebSearcher = client
	if cfg.RedisAddr != "" {
		cache := rediscache.New(rediscache.Config{
			Address:   cfg.RedisAddr,
			Password:  cfg.RedisPassword,
			Database:  cfg.RedisDB,
			KeyPrefix: "docchat:search:",
		})
		a.onClose(func() { _ = cache.Close() })
		// Lookups fall through to Bing while redis is unreachable.
		if err := cache.Ping(ctx); err != nil {
			a.Logger.Warn("search_cache_unavailable", "addr", cfg.RedisAddr, "error", err)
		}
		searcher = search.NewCachedSearcher(client, cache, cfg.SearchCacheTTL, a.Logger)
	}

	scrapers := scraper.NewFactory(scraper.Options{
		NavigationTimeout: cfg.ScrapeTimeout,
		BatchCooldown:     cfg.ScrapeCooldown,
		Logger:            a.Logger,
	})
	return usecase.NewWebResearcher(searcher, scrapers, usecase.WebResearchConfig{
		MaxScrapeURLs:     cfg.ScrapeMaxURLs,
		ScrapeConcurrency: cfg.ScrapeConcurrency,
	}, a.Logger, observer), nil
}
