// Package httpapi exposes the unauthenticated /health and /metrics surface
// shared by every service process in this module.
package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tradecore/internal/supervisor"
)

// Server wraps a gin engine exposing /health and /metrics.
type Server struct {
	Router *gin.Engine
}

// New constructs a Server reporting sup's lifecycle state on /health and
// exposition-format metrics gathered from reg on /metrics.
func New(sup *supervisor.Supervisor, reg http.Handler) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", func(c *gin.Context) {
		status := healthStatus(sup.State())
		code := http.StatusOK
		if status == "not_ready" {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{"status": status})
	})

	router.GET("/metrics", gin.WrapH(reg))

	return &Server{Router: router}
}

// NewDefault wires /metrics to the global Prometheus handler, the common
// case for a single-registry process.
func NewDefault(sup *supervisor.Supervisor) *Server {
	return New(sup, promhttp.Handler())
}

func healthStatus(state supervisor.Lifecycle) string {
	switch state {
	case supervisor.Ready:
		return "ready"
	case supervisor.Draining:
		return "draining"
	default:
		return "not_ready"
	}
}
