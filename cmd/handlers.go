package main

import (
	"time"

	"open-llm-gateway/config"
	"open-llm-gateway/core"
	"open-llm-gateway/models"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// modelCreatedAt is the fixed creation timestamp reported for every
// model entry, matching what OpenAI clients expect to see.
const modelCreatedAt = 1677610602

func setupRoutes(engine *gin.Engine, holder *core.RegistryHolder, loader *config.Loader, log *logrus.Logger) {
	engine.GET("/", handleRoot())
	engine.GET("/health", handleHealth())
	engine.GET("/v1/models", handleListModels(holder))
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	admin := engine.Group("/admin")
	{
		admin.POST("/reload-backends", handleReloadBackends(holder, loader, log))
		admin.GET("/config", handleConfig(holder))
		admin.GET("/backends", handleBackends(holder))
	}
}

func handleRoot() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(200, gin.H{
			"name":    "Open LLM Gateway",
			"version": "1.0.0",
			"endpoints": gin.H{
				"chat":    "/v1/chat/completions",
				"models":  "/v1/models",
				"health":  "/health",
				"metrics": "/metrics",
			},
			"timestamp": time.Now().Unix(),
		})
	}
}

func handleHealth() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	}
}

// handleListModels flattens the registry into the OpenAI model list:
// every configured model of every backend, plus one entry per alias
// pointing at its target.
func handleListModels(holder *core.RegistryHolder) gin.HandlerFunc {
	return func(c *gin.Context) {
		reg := holder.Current()

		list := models.ModelList{Object: "list", Data: []models.ModelInfo{}}
		for _, backend := range reg.Backends {
			for _, model := range backend.Models {
				list.Data = append(list.Data, models.ModelInfo{
					ID:      model,
					Object:  "model",
					Created: modelCreatedAt,
					OwnedBy: backend.Name,
					Backend: backend.Name,
				})
			}
		}
		for alias, target := range reg.ModelAliases {
			list.Data = append(list.Data, models.ModelInfo{
				ID:       alias,
				Object:   "model",
				Created:  modelCreatedAt,
				OwnedBy:  "alias",
				AliasFor: target,
			})
		}

		c.JSON(200, list)
	}
}

// handleReloadBackends re-reads the config file and swaps the registry.
// In-flight requests finish on the snapshot they started with.
func handleReloadBackends(holder *core.RegistryHolder, loader *config.Loader, log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		reg, err := loader.Load()
		if err != nil {
			log.Errorf("Backend reload failed: %v", err)
			c.JSON(500, models.ErrorResponse{
				Error: models.ErrorDetail{Message: "Failed to reload backends", Type: "internal_error"},
			})
			return
		}
		holder.Reload(reg)
		log.Infof("Backends reloaded: %d entries", len(reg.Backends))
		c.JSON(200, gin.H{
			"status":   "reloaded",
			"backends": len(reg.Backends),
		})
	}
}

// handleConfig dumps the normalized registry. Descriptors reference
// credentials by env var name only, so there is nothing to redact.
func handleConfig(holder *core.RegistryHolder) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(200, holder.Current())
	}
}

func handleBackends(holder *core.RegistryHolder) gin.HandlerFunc {
	return func(c *gin.Context) {
		reg := holder.Current()
		backends := make([]gin.H, 0, len(reg.Backends))
		for _, b := range reg.Backends {
			backends = append(backends, gin.H{
				"name":           b.Name,
				"display_name":   b.DisplayName,
				"kind":           b.Kind,
				"base_url":       b.BaseURL,
				"models":         len(b.Models),
				"model_prefixes": b.ModelPrefixes,
			})
		}
		c.JSON(200, gin.H{"backends": backends})
	}
}
