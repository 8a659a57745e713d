package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"open-llm-gateway/config"
	"open-llm-gateway/core"
	"open-llm-gateway/models"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})
	if level, err := logrus.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil {
		log.SetLevel(level)
	} else {
		log.SetLevel(logrus.InfoLevel)
	}

	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}

	confDir := os.Getenv("GATEWAY_CONF_DIR")
	if confDir == "" {
		confDir = "conf"
	}
	loader := config.NewLoader(confDir, log)
	registry, err := loader.Load()
	if err != nil {
		log.Fatal("Failed to load backend config: ", err)
	}
	holder := core.NewRegistryHolder(registry)
	log.Infof("Loaded %d backends", len(registry.Backends))

	// The request-log store is auxiliary; the gateway proxies fine
	// without it.
	var asyncLogger *core.AsyncRequestLogger
	if db, err := initDatabase(log); err != nil {
		log.Warnf("Request logging disabled: %v", err)
	} else {
		asyncLogger = core.NewAsyncRequestLogger(db, log)
	}

	proxyHandler := core.NewProxyHandler(holder, log)

	engine := gin.New()
	engine.Use(gin.RecoveryWithWriter(log.Writer()))
	engine.Use(corsMiddleware())

	api := engine.Group("/")
	api.Use(requestLoggerMiddleware(asyncLogger))
	api.Use(metricsMiddleware())
	{
		api.POST("/v1/chat/completions", proxyHandler.HandleChatCompletions)
	}

	setupRoutes(engine, holder, loader, log)

	port := 8000
	if p, err := strconv.Atoi(os.Getenv("PORT")); err == nil && p > 0 {
		port = p
	}

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: engine,
	}

	go func() {
		log.Infof("Starting Open LLM Gateway on port %d", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server: ", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown: ", err)
	}
	if asyncLogger != nil {
		asyncLogger.Close()
	}

	log.Info("Server exited")
}

func initDatabase(log *logrus.Logger) (*gorm.DB, error) {
	dbPath := os.Getenv("GATEWAY_DB_PATH")
	if dbPath == "" {
		dbPath = "gateway.db"
	}

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Error),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	if err := models.AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	log.Info("Database initialized successfully")
	return db, nil
}
