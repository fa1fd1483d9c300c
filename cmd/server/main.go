package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"finsight/internal/chat"
	"finsight/internal/chat/authz"
	"finsight/internal/chat/compose"
	"finsight/internal/chat/interfaces"
	"finsight/internal/chat/memory"
	"finsight/internal/chat/retrieval"
	"finsight/internal/chat/schema"
	"finsight/internal/config"
	"finsight/internal/database/kafka"
	"finsight/internal/database/milvus"
	"finsight/internal/database/minio"
	"finsight/internal/database/mysql"
	redisdb "finsight/internal/database/redis"
	"finsight/internal/directory"
	"finsight/internal/embedding"
	"finsight/internal/finance"
	"finsight/internal/ingest"
	"finsight/internal/llm"
	"finsight/internal/models"
	"finsight/internal/server/api"
	"finsight/internal/user"
	"finsight/internal/vectorstore"
	"finsight/pkg/circuitbreaker"
	"finsight/pkg/logger"
	"finsight/pkg/ratelimiter"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(logger.ParseLevel(cfg.Logger.Level))
	log := logger.New(cfg.App.Name, "", "")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Backing stores. MySQL and Redis are hard requirements; the
	// service cannot authenticate or look anything up without them.
	db, err := mysql.GetDB(&cfg.Databases.MySQL)
	if err != nil {
		log.Fatal("MySQL unavailable: " + err.Error())
	}
	defer mysql.Close()

	if err := db.AutoMigrate(&models.User{}, &models.Company{}, &models.BalanceSheetEntry{}); err != nil {
		log.Fatal("migration failed: " + err.Error())
	}
	if err := seedAdmin(db); err != nil {
		log.Fatal("admin seed failed: " + err.Error())
	}

	redisClient, err := redisdb.GetClient(&cfg.Databases.Redis)
	if err != nil {
		log.Fatal("Redis unavailable: " + err.Error())
	}
	defer redisdb.Close()

	checks := map[string]api.HealthCheck{
		"mysql": mysql.HealthCheck,
		"redis": redisdb.HealthCheck,
	}

	// The capability bundle. A missing provider or vector index leaves
	// the pipeline not ready instead of crashing the process: auth and
	// directory endpoints keep working and /health reports the gap.
	ready := true

	embedder, batchEmbedder, err := buildEmbedder(ctx, cfg)
	if err != nil {
		log.Error("Embedding provider not initialized: " + err.Error())
		ready = false
	}

	generator, err := buildGenerator(ctx, cfg)
	if err != nil {
		log.Error("Generation provider not initialized: " + err.Error())
		ready = false
	}
	if generator != nil && cfg.Middleware.CircuitBreaker.Enabled {
		breaker := circuitbreaker.New(
			cfg.Middleware.CircuitBreaker.FailureThreshold,
			cfg.Middleware.CircuitBreaker.SuccessThreshold,
			config.Duration(cfg.Middleware.CircuitBreaker.Timeout, 30*time.Second),
		)
		generator = llm.WithBreaker(generator, breaker)
	}

	var vectors *vectorstore.MilvusStore
	milvusClient, err := milvus.GetClient(ctx, &cfg.Databases.Milvus)
	if err != nil {
		log.Error("Milvus unavailable: " + err.Error())
		ready = false
	} else {
		defer milvusClient.Close()
		checks["milvus"] = milvus.HealthCheck
		if err := milvusClient.EnsureCollection(ctx); err != nil {
			log.Error("Milvus collection setup failed: " + err.Error())
			ready = false
		} else {
			vectors, err = vectorstore.NewMilvusStore(milvusClient, cfg.Databases.Milvus.Collection, log)
			if err != nil {
				log.Error("Vector store not initialized: " + err.Error())
				ready = false
			}
		}
	}

	// Chat pipeline.
	dir := directory.NewStore(db)
	resolver := authz.NewResolver(dir)
	mem := memory.NewStore(cfg.Chat.HistoryWindow)

	var composer *compose.Composer
	if ready {
		retriever := retrieval.NewRetriever(embedder, vectors, cfg.Chat.TopK, log)
		composer = compose.NewComposer(retriever, generator, retryPolicy(cfg), log)
	}
	orch := chat.NewOrchestrator(
		dir, resolver, composer, mem,
		config.Duration(cfg.Chat.UpstreamTimeout, chat.DefaultUpstreamTimeout),
		ready, log,
	)

	// Ingestion side channels, both optional.
	var archiver ingest.Archiver
	if cfg.Databases.MinIO.Enabled {
		minioClient, err := minio.GetClient(ctx, &cfg.Databases.MinIO)
		if err != nil {
			log.Warn("MinIO unavailable, uploads will not be archived: " + err.Error())
		} else {
			archiver = minioClient
			checks["minio"] = minio.HealthCheck
		}
	}
	var events ingest.EventPublisher
	if cfg.Databases.Kafka.Enabled {
		publisher := kafka.GetPublisher(&cfg.Databases.Kafka)
		defer publisher.Close()
		events = publisher
	}

	financeStore := finance.NewStore(db)
	var ingestor api.Ingestor
	if vectors != nil && batchEmbedder != nil {
		ingestor = ingest.NewService(db, financeStore, batchEmbedder, vectors, archiver, events, log)
	} else {
		ingestor = unavailableIngestor{}
	}

	// Auth.
	authStore := user.NewStore(db)
	authService := user.NewService(
		authStore, redisClient, cfg.Auth.JWTSecret,
		time.Duration(cfg.Auth.TokenTTL)*time.Second,
		time.Duration(cfg.Auth.SessionTTL)*time.Second,
	)

	handler := api.NewHandler(authService, orch, dir, resolver, financeStore, ingestor, checks, log)
	router := api.SetupRouter(handler, authService, limiterFactory(cfg))

	srv := &http.Server{
		Addr:    cfg.Server.Address,
		Handler: router,
	}

	go func() {
		log.Info("Listening on " + cfg.Server.Address)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server error: " + err.Error())
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Shutdown incomplete: " + err.Error())
	}
}

// seedAdmin creates the bootstrap admin account on first start. The
// password comes from ADMIN_PASSWORD; without it no account is seeded.
func seedAdmin(db *gorm.DB) error {
	var count int64
	if err := db.Model(&models.User{}).Where("role = ?", models.RoleAdmin).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	password := os.Getenv("ADMIN_PASSWORD")
	if password == "" {
		return nil
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	return db.Create(&models.User{
		Username: "admin",
		Password: string(hashed),
		Role:     models.RoleAdmin,
	}).Error
}

// buildGenerator picks the configured generation provider.
func buildGenerator(ctx context.Context, cfg *config.AppConfig) (interfaces.Generator, error) {
	switch cfg.LLM.Provider {
	case "gemini":
		if cfg.LLM.Gemini.APIKey == "" {
			return nil, errors.New("gemini API key is not set")
		}
		return llm.NewGemini(ctx, cfg.LLM.Gemini.Model, cfg.LLM.Gemini.APIKey)
	case "openai":
		if cfg.LLM.OpenAI.APIKey == "" {
			return nil, errors.New("openai API key is not set")
		}
		return llm.NewOpenAI(cfg.LLM.OpenAI.Model, cfg.LLM.OpenAI.APIKey, "")
	case "ollama":
		return llm.NewOllama(cfg.LLM.Ollama.Model, cfg.LLM.Ollama.BaseURL)
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", cfg.LLM.Provider)
	}
}

// buildEmbedder picks the configured embedding provider. The same
// instance serves single-query embedding and batch indexing.
func buildEmbedder(ctx context.Context, cfg *config.AppConfig) (interfaces.Embedder, ingest.BatchEmbedder, error) {
	switch cfg.Embedding.Provider {
	case "gemini":
		if cfg.Embedding.Gemini.APIKey == "" {
			return nil, nil, errors.New("gemini API key is not set")
		}
		e, err := embedding.NewGemini(ctx, cfg.Embedding.Gemini.Model, cfg.Embedding.Gemini.APIKey)
		return e, e, err
	case "openai":
		if cfg.Embedding.OpenAI.APIKey == "" {
			return nil, nil, errors.New("openai API key is not set")
		}
		e, err := embedding.NewOpenAI(cfg.Embedding.OpenAI.APIKey, cfg.Embedding.OpenAI.Model)
		return e, e, err
	case "ollama":
		e, err := embedding.NewOllama(cfg.Embedding.Ollama.Model, cfg.Embedding.Ollama.BaseURL)
		return e, e, err
	default:
		return nil, nil, fmt.Errorf("unknown embedding provider %q", cfg.Embedding.Provider)
	}
}

// retryPolicy maps the config retry block onto the composer's policy.
func retryPolicy(cfg *config.AppConfig) compose.RetryPolicy {
	policy := compose.DefaultRetryPolicy()
	if cfg.Chat.Retry.MaxAttempts > 0 {
		policy.MaxAttempts = cfg.Chat.Retry.MaxAttempts
	}
	policy.BaseDelay = config.Duration(cfg.Chat.Retry.BaseDelay, policy.BaseDelay)
	policy.MaxDelay = config.Duration(cfg.Chat.Retry.MaxDelay, policy.MaxDelay)
	return policy
}

// limiterFactory builds the per-client limiter for /chat, or nil when
// rate limiting is disabled.
func limiterFactory(cfg *config.AppConfig) func() ratelimiter.RateLimiter {
	rl := cfg.Middleware.RateLimiter
	if !rl.Enabled {
		return nil
	}
	if rl.Algorithm == "fixedWindow" {
		return func() ratelimiter.RateLimiter {
			return ratelimiter.NewFixedWindowCounter(rl.Limit, config.Duration(rl.Window, time.Minute))
		}
	}
	return func() ratelimiter.RateLimiter {
		return ratelimiter.NewTokenBucket(rl.Rate, rl.Capacity)
	}
}

// unavailableIngestor rejects uploads while the indexing capabilities
// are down, keeping the rest of the API alive.
type unavailableIngestor struct{}

func (unavailableIngestor) Ingest(context.Context, ingest.UploadRequest) (*ingest.Result, error) {
	return nil, schema.ErrServiceUnavailable
}
