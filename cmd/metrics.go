package main

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_requests_total",
			Help: "Proxied chat completion requests by backend, model and status.",
		},
		[]string{"backend", "model", "status"},
	)

	requestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gateway_request_duration_seconds",
			Help:    "End to end latency of proxied requests, streaming included.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"backend"},
	)
)

func metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		backend := c.GetString("backend")
		if backend == "" {
			backend = "none"
		}
		model := c.GetString("model")
		if model == "" {
			model = "none"
		}

		requestsTotal.WithLabelValues(backend, model, strconv.Itoa(c.Writer.Status())).Inc()
		requestDuration.WithLabelValues(backend).Observe(time.Since(start).Seconds())
	}
}
