package relay

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/picklechips/salary-estimate/internal/metrics"
)

// allowedHeaders mirrors what browser clients of the estimation UI send.
var allowedHeaders = []string{"Authorization", "X-Client-Info", "Apikey", "Content-Type"}

// NewRouter builds the gin engine with CORS, logging, and all routes.
func NewRouter(h *Handler, collector *metrics.Collector) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger())

	corsCfg := cors.DefaultConfig()
	corsCfg.AllowAllOrigins = true
	corsCfg.AllowHeaders = allowedHeaders
	r.Use(cors.New(corsCfg))

	api := r.Group("/api")
	{
		api.POST("/extract", h.Extract)
		api.POST("/estimate", h.Estimate)
		api.POST("/estimate/stream", h.EstimateStream)
	}

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(collector.Handler()))

	return r
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if c.Request.URL.Path == "/metrics" || c.Request.URL.Path == "/healthz" {
			return
		}
		log.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", time.Since(start)).
			Msg("request")
	}
}
