package http

import (
	"github.com/gin-gonic/gin"
	"github.com/richardliu001/lending-eventbus/internal/config"
	"go.uber.org/zap"
)

// NewRouter builds the admin API engine.
func NewRouter(bus Bus, rl config.RateLimitConfig, log *zap.SugaredLogger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(LoggingMiddleware(log))
	r.Use(RateLimitMiddleware(rl.RPS, rl.Burst))
	RegisterHandlers(r, bus)
	return r
}
