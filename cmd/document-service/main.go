package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	archiveHandler "securedocs-backend/internal/handler/http/archive"
	blockHandler "securedocs-backend/internal/handler/http/block"
	documentHandler "securedocs-backend/internal/handler/http/document"
	keysHandler "securedocs-backend/internal/handler/http/keys"
	"securedocs-backend/internal/middleware"
	"securedocs-backend/internal/repository/cassandra"
	"securedocs-backend/internal/repository/cockroach"
	redisrepo "securedocs-backend/internal/repository/redis"
	"securedocs-backend/internal/service/archive"
	blockService "securedocs-backend/internal/service/block"
	documentService "securedocs-backend/internal/service/document"
	"securedocs-backend/internal/service/editing"
	epochService "securedocs-backend/internal/service/epoch"
	"securedocs-backend/pkg/config"
	"securedocs-backend/pkg/constants"
	"securedocs-backend/pkg/database"
	"securedocs-backend/pkg/jwt"
	"securedocs-backend/pkg/logger"
	"securedocs-backend/pkg/metrics"
)

func main() {
	// 1. Load configuration and logger
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := logger.Init(&logger.Config{
		Level:    cfg.Log.Level,
		Format:   cfg.Log.Format,
		Output:   cfg.Log.Output,
		FilePath: cfg.Log.FilePath,
	}); err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer logger.Sync()

	// 2. Setup JWT manager
	if cfg.JWT.Secret == "" {
		log.Fatal("JWT_SECRET environment variable is required")
	}
	jwtManager := jwt.NewManager(cfg.JWT.Secret, cfg.JWT.AccessTokenExpiry, cfg.JWT.RefreshTokenExpiry)

	// 3. Connect to CockroachDB
	cockroachDB, err := database.NewCockroachDB(context.Background(), &database.CockroachConfig{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		Database: cfg.Database.Database,
		SSLMode:  cfg.Database.SSLMode,
	})
	if err != nil {
		log.Fatalf("Failed to connect to CockroachDB: %v", err)
	}
	defer cockroachDB.Close()

	// 4. Connect to Cassandra
	cassandraDB, err := database.NewCassandraDB(&database.CassandraConfig{
		Hosts:    cfg.Cassandra.Hosts,
		Keyspace: cfg.Cassandra.Keyspace,
		Timeout:  cfg.Cassandra.Timeout,
	})
	if err != nil {
		log.Fatalf("Failed to connect to Cassandra: %v", err)
	}
	defer cassandraDB.Close()

	// 5. Connect to Redis
	redisDB, err := database.NewRedisDB(&database.RedisConfig{
		Host:     cfg.Redis.Host,
		Port:     cfg.Redis.Port,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisDB.Close()

	// 6. Initialize repositories
	documentRepo := cockroach.NewDocumentRepository(cockroachDB.Pool)
	keysRepo := cockroach.NewKeysRepository(cockroachDB.Pool)
	blockRepo := cassandra.NewBlockRepository(cassandraDB.Session)
	lockRepo := redisrepo.NewLockRepository(redisDB.Client)
	publisher := redisrepo.NewPubSub(redisDB.Client)

	// 7. Initialize services
	epochSvc := epochService.NewService(keysRepo, documentRepo, keysRepo)
	documentSvc := documentService.NewService(documentRepo, epochSvc)
	editingSvc := editing.NewService(lockRepo, constants.BlockLockTTL)
	blockSvc := blockService.NewService(blockRepo, documentRepo, editingSvc, publisher)

	archiveSvc, err := archive.NewService(
		cfg.MinIO.Endpoint, cfg.MinIO.AccessKey, cfg.MinIO.SecretKey,
		cfg.MinIO.UseSSL, cfg.MinIO.Bucket, blockRepo)
	if err != nil {
		log.Fatalf("Failed to create archive service: %v", err)
	}
	if err := archiveSvc.EnsureBucket(context.Background()); err != nil {
		log.Fatalf("Failed to prepare archive bucket: %v", err)
	}

	// 8. Initialize metrics and handlers
	appMetrics := metrics.NewMetrics("document-service")
	prometheusMiddleware := middleware.NewPrometheusMiddleware(appMetrics)

	documentHdlr := documentHandler.NewHandler(documentSvc, epochSvc)
	blockHdlr := blockHandler.NewHandler(blockSvc, editingSvc, documentRepo)
	keysHdlr := keysHandler.NewHandler(keysRepo, epochSvc)
	archiveHdlr := archiveHandler.NewHandler(archiveSvc, documentRepo)

	// 9. Setup router
	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(middleware.RequestLogger())
	router.Use(middleware.CORSMiddleware())
	router.Use(prometheusMiddleware.Handler())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "document-service",
			"time":    time.Now().UTC(),
		})
	})
	router.GET("/metrics", middleware.MetricsHandler())

	v1 := router.Group("/v1")
	v1.Use(middleware.AuthMiddleware(jwtManager))
	{
		v1.POST("/documents", documentHdlr.Create)
		v1.GET("/documents", documentHdlr.List)
		v1.GET("/documents/:document_id", documentHdlr.Get)
		v1.DELETE("/documents/:document_id", documentHdlr.Delete)
		v1.GET("/documents/:document_id/members", documentHdlr.Members)
		v1.POST("/documents/:document_id/members", documentHdlr.Share)
		v1.DELETE("/documents/:document_id/members/:user_id", documentHdlr.Revoke)

		v1.POST("/documents/:document_id/blocks", blockHdlr.Submit)
		v1.GET("/documents/:document_id/blocks", blockHdlr.List)
		v1.GET("/documents/:document_id/blocks/:block_id", blockHdlr.Latest)
		v1.GET("/documents/:document_id/blocks/:block_id/history", blockHdlr.History)
		v1.DELETE("/documents/:document_id/blocks/:block_id", blockHdlr.Delete)

		v1.POST("/documents/:document_id/blocks/:block_id/lock", blockHdlr.AcquireLock)
		v1.GET("/documents/:document_id/blocks/:block_id/lock", blockHdlr.LockStatus)
		v1.DELETE("/documents/:document_id/blocks/:block_id/lock", blockHdlr.ReleaseLock)

		v1.POST("/documents/:document_id/snapshots", archiveHdlr.Take)
		v1.GET("/documents/:document_id/snapshots", archiveHdlr.List)
		v1.GET("/documents/:document_id/snapshots/:name", archiveHdlr.Get)

		v1.POST("/keys/identity", keysHdlr.UploadIdentityKey)
		v1.GET("/keys/identity/:user_id", keysHdlr.GetIdentityKey)
		v1.GET("/documents/:document_id/keys", keysHdlr.GetKeyRecords)
		v1.POST("/documents/:document_id/keys/rotate", keysHdlr.Rotate)
	}

	// 10. Start server with graceful shutdown
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	server := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		log.Printf("Document Service starting on %s", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.GracefulShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}
