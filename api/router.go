package api

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
)

// Router 註冊所有路由
func (impl *ServerImpl) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), impl.accessLog())
	router.MaxMultipartMemory = formOverhead

	router.GET("/health", impl.GetHealth)
	router.GET("/metrics", impl.GetMetrics())

	auth := router.Group("/auth", impl.SessionMiddleware())
	auth.GET("/sso/:provider/login", impl.GetAuthSsoProviderLogin)
	auth.GET("/sso/:provider/callback", impl.GetAuthSsoProviderCallback)
	auth.GET("/logout", impl.GetAuthLogout)
	router.GET("/auth/me", impl.RequireUser(), impl.GetAuthMe)

	router.GET("/products", impl.GetProducts)
	router.GET("/products/:id", impl.GetProductsID)
	router.GET("/categories", impl.GetCategories)

	write := router.Group("/products", impl.RequireUser())
	write.POST("", impl.PostProducts)
	write.POST("/:id", impl.PostProductsID)
	write.DELETE("/:id", impl.DeleteProductsID)

	return router
}

// accessLog 以 slog 記錄每個請求
func (impl *ServerImpl) accessLog() gin.HandlerFunc {
	logger := impl.logger.With(slog.String("caller", "AccessLog"))
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("Request handled",
			slog.String("method", c.Request.Method),
			slog.String("path", c.FullPath()),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("latency", time.Since(start)),
		)
	}
}
