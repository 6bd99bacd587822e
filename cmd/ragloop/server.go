package main

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/BaSui01/ragloop/api/handlers"
	"github.com/BaSui01/ragloop/checkpoint"
	"github.com/BaSui01/ragloop/config"
	"github.com/BaSui01/ragloop/internal/database"
	"github.com/BaSui01/ragloop/internal/metrics"
	"github.com/BaSui01/ragloop/internal/server"
	"github.com/BaSui01/ragloop/internal/telemetry"
	"github.com/BaSui01/ragloop/llm"
	"github.com/BaSui01/ragloop/rag"
	"github.com/BaSui01/ragloop/workflow"
)

// =============================================================================
// 🖥️ Server 结构
// =============================================================================

// Server 是 RagLoop 的主服务器：装配检查点存储、向量库、Ollama Provider
// 与工作流执行器，并管理 API 与 Metrics 双端口的生命周期。
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	// 服务器管理器
	apiManager     *server.Manager
	metricsManager *server.Manager

	// Handlers
	healthHandler *handlers.HealthHandler
	askHandler    *handlers.AskHandler
	ingestHandler *handlers.IngestHandler

	// 工作流装配件
	executor    *workflow.Executor
	ingestor    *rag.Ingestor
	provider    *llm.OllamaProvider
	vectorStore rag.VectorStore

	// 指标与遥测
	metricsCollector *metrics.Collector
	otelProviders    *telemetry.Providers

	// 按需启用的后端资源
	dbPool      *database.PoolManager
	redisClient redis.UniversalClient

	// 后台 goroutine（限流清理、统计轮询、错误排空）的生命周期
	backgroundCtx    context.Context
	backgroundCancel context.CancelFunc

	wg sync.WaitGroup
}

// NewServer 创建新的服务器实例
func NewServer(cfg *config.Config, logger *zap.Logger, otelProviders *telemetry.Providers) *Server {
	return &Server{
		cfg:           cfg,
		logger:        logger,
		otelProviders: otelProviders,
	}
}

// =============================================================================
// 🚀 启动流程
// =============================================================================

// Start 启动所有服务
func (s *Server) Start() error {
	s.backgroundCtx, s.backgroundCancel = context.WithCancel(context.Background())

	// 1. 初始化指标收集器
	s.metricsCollector = metrics.NewCollector("ragloop", s.logger)

	// 2. 装配工作流引擎及其依赖
	if err := s.initEngine(); err != nil {
		return fmt.Errorf("failed to init engine: %w", err)
	}

	// 3. 初始化 Handlers
	if err := s.initHandlers(); err != nil {
		return fmt.Errorf("failed to init handlers: %w", err)
	}

	// 4. 启动 API 服务器
	if err := s.startAPIServer(); err != nil {
		return fmt.Errorf("failed to start API server: %w", err)
	}

	// 5. 启动 Metrics 服务器
	if err := s.startMetricsServer(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	// 6. 启动连接池统计轮询
	s.startStatsPoller()

	s.logger.Info("All servers started",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
		zap.String("checkpoint_backend", s.cfg.Workflow.CheckpointBackend),
		zap.String("vector_backend", s.cfg.Workflow.VectorBackend),
	)

	return nil
}

// =============================================================================
// 🔧 初始化方法
// =============================================================================

// initEngine 装配检查点存储、向量库、Provider、检索/入库管线与执行器。
func (s *Server) initEngine() error {
	setupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// 检查点存储
	store, err := s.buildCheckpointStore()
	if err != nil {
		return fmt.Errorf("build checkpoint store: %w", err)
	}
	if err := store.Setup(setupCtx); err != nil {
		return fmt.Errorf("checkpoint store setup: %w", err)
	}

	// 向量存储
	s.vectorStore, err = s.buildVectorStore()
	if err != nil {
		return fmt.Errorf("build vector store: %w", err)
	}

	// Ollama 同时承担生成与嵌入
	s.provider = llm.NewOllamaProvider(llm.OllamaConfig{
		BaseURL:     s.cfg.Ollama.BaseURL,
		ChatModel:   s.cfg.Ollama.ChatModel,
		EmbedModel:  s.cfg.Ollama.EmbedModel,
		Timeout:     s.cfg.Ollama.Timeout,
		Temperature: float32(s.cfg.Ollama.Temperature),
		NumCtx:      s.cfg.Ollama.NumCtx,
		KeepAlive:   s.cfg.Ollama.KeepAlive,
	}, s.logger)

	// 检索与入库管线
	retriever := rag.NewVectorRetriever(s.vectorStore, s.provider, s.logger)
	chunker := rag.NewChunker(rag.ChunkingConfig{
		ChunkSize:    s.cfg.Workflow.ChunkSize,
		ChunkOverlap: s.cfg.Workflow.ChunkOverlap,
		MinChunkSize: s.cfg.Workflow.MinChunkSize,
	}, rag.NewTiktokenCounter("", s.logger), s.logger)
	s.ingestor = rag.NewIngestor(chunker, s.provider, s.vectorStore, s.logger)

	// 工作流图与执行器，节点耗时经由能力包装记录
	graph, err := workflow.NewReviewPipeline(
		instrumentedRetriever{inner: retriever, metrics: s.metricsCollector},
		instrumentedGenerator{inner: s.provider, metrics: s.metricsCollector},
	)
	if err != nil {
		return fmt.Errorf("build review pipeline: %w", err)
	}
	s.executor = workflow.NewExecutor(graph, store, s.logger)

	s.logger.Info("Workflow engine assembled",
		zap.String("chat_model", s.cfg.Ollama.ChatModel),
		zap.String("embed_model", s.cfg.Ollama.EmbedModel),
	)
	return nil
}

// buildCheckpointStore 按配置选择检查点后端。
// database 后端顺带创建连接池管理器，供健康检查与指标轮询复用。
func (s *Server) buildCheckpointStore() (workflow.CheckpointStore, error) {
	switch s.cfg.Workflow.CheckpointBackend {
	case "", "memory":
		return checkpoint.NewMemoryStore(), nil

	case "database":
		db, err := openDatabase(s.cfg.Database, s.logger)
		if err != nil {
			return nil, err
		}
		pool, err := database.NewPoolManager(db, database.FromDatabaseConfig(s.cfg.Database), s.logger)
		if err != nil {
			return nil, err
		}
		s.dbPool = pool
		return checkpoint.NewGormStore(pool.DB(), s.logger), nil

	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:         s.cfg.Redis.Addr,
			Password:     s.cfg.Redis.Password,
			DB:           s.cfg.Redis.DB,
			PoolSize:     s.cfg.Redis.PoolSize,
			MinIdleConns: s.cfg.Redis.MinIdleConns,
		})
		s.redisClient = rdb
		return checkpoint.NewRedisStore(rdb, checkpoint.RedisStoreConfig{
			KeyPrefix: s.cfg.Redis.KeyPrefix,
			TTL:       s.cfg.Redis.CheckpointTTL,
		}, s.logger), nil

	default:
		return nil, fmt.Errorf("unsupported checkpoint backend: %s (supported: memory, database, redis)",
			s.cfg.Workflow.CheckpointBackend)
	}
}

// buildVectorStore 按配置选择向量库后端。
func (s *Server) buildVectorStore() (rag.VectorStore, error) {
	switch s.cfg.Workflow.VectorBackend {
	case "", "memory":
		return rag.NewInMemoryVectorStore(s.logger), nil

	case "chroma":
		return rag.NewChromaStore(rag.ChromaConfig{
			Host:       s.cfg.Chroma.Host,
			Port:       s.cfg.Chroma.Port,
			BaseURL:    s.cfg.Chroma.BaseURL,
			APIKey:     s.cfg.Chroma.APIKey,
			Collection: s.cfg.Chroma.Collection,
			Timeout:    s.cfg.Chroma.Timeout,
		}, s.logger), nil

	default:
		return nil, fmt.Errorf("unsupported vector backend: %s (supported: memory, chroma)",
			s.cfg.Workflow.VectorBackend)
	}
}

// initHandlers 初始化所有 handlers 并注册依赖探活
func (s *Server) initHandlers() error {
	s.healthHandler = handlers.NewHealthHandler(s.logger)

	// 依赖探活：只注册实际启用的后端
	if s.dbPool != nil {
		s.healthHandler.RegisterCheck(handlers.NewPingCheck("database", s.dbPool.Ping))
	}
	if s.redisClient != nil {
		rdb := s.redisClient
		s.healthHandler.RegisterCheck(handlers.NewPingCheck("redis", func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}))
	}
	s.healthHandler.RegisterCheck(handlers.NewPingCheck("vector_store", func(ctx context.Context) error {
		_, err := s.vectorStore.Count(ctx)
		return err
	}))
	s.healthHandler.RegisterCheck(handlers.NewProviderCheck(s.provider))

	s.askHandler = handlers.NewAskHandler(s.executor, s.metricsCollector, s.logger)
	s.ingestHandler = handlers.NewIngestHandler(s.ingestor, s.metricsCollector, s.logger)

	s.logger.Info("Handlers initialized")
	return nil
}

// =============================================================================
// 🌐 API 服务器
// =============================================================================

// startAPIServer 启动 API 服务器
func (s *Server) startAPIServer() error {
	mux := http.NewServeMux()

	// ========================================
	// 健康与元信息端点
	// ========================================
	mux.HandleFunc("/health", s.healthHandler.HandleHealth)
	mux.HandleFunc("/healthz", s.healthHandler.HandleHealthz)
	mux.HandleFunc("/version", s.healthHandler.HandleVersion(Version, BuildTime, GitCommit))

	// ========================================
	// 工作流 API
	// ========================================
	mux.HandleFunc("/ask/start", s.askHandler.HandleStart)
	mux.HandleFunc("/ask/resume", s.askHandler.HandleResume)
	mux.HandleFunc("/ingest", s.ingestHandler.HandleIngest)

	// ========================================
	// 构建中间件链
	// ========================================
	handler := Chain(mux,
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		RequestLogger(s.logger),
		MetricsMiddleware(s.metricsCollector),
		OTelTracing(),
		CORS(s.cfg.Server.CORSAllowedOrigins),
		RateLimiter(s.backgroundCtx, s.cfg.Server.RateLimitRPS, s.cfg.Server.RateLimitBurst, s.logger),
	)

	s.apiManager = server.NewManager(handler,
		server.FromServerConfig(s.cfg.Server, s.cfg.Server.HTTPPort), s.logger)

	// 启动服务器（非阻塞）
	if err := s.apiManager.Start(); err != nil {
		return err
	}

	s.logger.Info("API server started", zap.Int("port", s.cfg.Server.HTTPPort))
	return nil
}

// =============================================================================
// 📊 Metrics 服务器
// =============================================================================

// startMetricsServer 启动 Metrics 服务器
func (s *Server) startMetricsServer() error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	s.metricsManager = server.NewManager(mux,
		server.FromServerConfig(s.cfg.Server, s.cfg.Server.MetricsPort), s.logger)

	// 启动服务器（非阻塞）
	if err := s.metricsManager.Start(); err != nil {
		return err
	}

	// Metrics 端口的 serve 错误只记录日志，不触发进程退出
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		select {
		case <-s.backgroundCtx.Done():
		case err := <-s.metricsManager.Errors():
			if err != nil {
				s.logger.Error("Metrics server error", zap.Error(err))
			}
		}
	}()

	s.logger.Info("Metrics server started", zap.Int("port", s.cfg.Server.MetricsPort))
	return nil
}

// startStatsPoller 周期采集连接池统计并上报指标。
func (s *Server) startStatsPoller() {
	if s.dbPool == nil {
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-s.backgroundCtx.Done():
				return
			case <-ticker.C:
				stats := s.dbPool.GetStats()
				s.metricsCollector.RecordDBConnections(s.cfg.Database.Driver,
					stats.OpenConnections, stats.Idle)
			}
		}
	}()
}

// =============================================================================
// 🛑 关闭流程
// =============================================================================

// WaitForShutdown 阻塞等待关闭信号或 API 服务器致命错误，
// 随后关闭全部资源。返回值决定进程退出码。
func (s *Server) WaitForShutdown() error {
	var err error
	if s.apiManager != nil {
		err = s.apiManager.WaitForShutdown()
	}

	s.Shutdown()
	return err
}

// Shutdown 优雅关闭所有服务
func (s *Server) Shutdown() {
	s.logger.Info("Starting graceful shutdown...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// 0. 停止后台 goroutine（限流清理、统计轮询、错误排空）
	if s.backgroundCancel != nil {
		s.backgroundCancel()
	}

	// 1. 关闭 API 服务器（正常路径已由 WaitForShutdown 关闭，重复调用无害）
	if s.apiManager != nil {
		if err := s.apiManager.Shutdown(ctx); err != nil {
			s.logger.Error("API server shutdown error", zap.Error(err))
		}
	}

	// 2. 关闭 Metrics 服务器
	if s.metricsManager != nil {
		if err := s.metricsManager.Shutdown(ctx); err != nil {
			s.logger.Error("Metrics server shutdown error", zap.Error(err))
		}
	}

	// 3. 关闭数据库连接池
	if s.dbPool != nil {
		if err := s.dbPool.Close(); err != nil {
			s.logger.Error("Database pool shutdown error", zap.Error(err))
		}
	}

	// 4. 关闭 Redis 客户端
	if s.redisClient != nil {
		if err := s.redisClient.Close(); err != nil {
			s.logger.Error("Redis client shutdown error", zap.Error(err))
		}
	}

	// 5. 冲刷遥测数据
	if err := s.otelProviders.Shutdown(ctx); err != nil {
		s.logger.Error("Telemetry shutdown error", zap.Error(err))
	}

	// 6. 等待所有 goroutine 完成
	s.wg.Wait()

	s.logger.Info("Graceful shutdown completed")
}

// =============================================================================
// 📊 节点级能力包装
// =============================================================================

// instrumentedRetriever 为检索能力记录节点级耗时与状态。
type instrumentedRetriever struct {
	inner   workflow.Retriever
	metrics *metrics.Collector
}

func (r instrumentedRetriever) Search(ctx context.Context, query string, k int) ([]workflow.RetrievedChunk, error) {
	start := time.Now()
	chunks, err := r.inner.Search(ctx, query, k)
	status := "ok"
	if err != nil {
		status = "error"
	}
	r.metrics.RecordNodeExecution(workflow.NodeRetrieve, status, time.Since(start))
	return chunks, err
}

// instrumentedGenerator 为生成能力记录节点级耗时与状态。
type instrumentedGenerator struct {
	inner   workflow.Generator
	metrics *metrics.Collector
}

func (g instrumentedGenerator) Complete(ctx context.Context, prompt string) (string, error) {
	start := time.Now()
	answer, err := g.inner.Complete(ctx, prompt)
	status := "ok"
	if err != nil {
		status = "error"
	}
	g.metrics.RecordNodeExecution(workflow.NodeGenerate, status, time.Since(start))
	return answer, err
}
