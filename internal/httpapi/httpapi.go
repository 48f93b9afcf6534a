// Package httpapi exposes the platform's operational HTTP surface: a
// liveness probe and a Prometheus scrape endpoint. A browsable frontend is
// out of scope; everything else happens through the scheduler and sandbox.
package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"fairplay/internal/db"
)

// NewRouter builds the gin engine serving /healthz and /metrics.
func NewRouter(database *db.Database) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		if err := database.Health(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}
