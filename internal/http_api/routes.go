package http_api

import "github.com/gin-gonic/gin"

// routes sets up the routes for the HTTP server.
func (s *HTTPServer) routes() {
	s.router.GET("/", s.serverInfo)
	s.router.GET("/health", s.health)
	if s.config.MetricsHandler != nil {
		s.router.GET("/metrics", gin.WrapH(s.config.MetricsHandler))
	}

	pay := s.router.Group(s.config.BasePath)
	pay.GET("/:id", s.access)
	pay.GET("/:id/status", s.status)
	pay.POST("/:id/confirm", s.confirm)
	pay.POST("/:id/subscribe", s.subscribe)
	pay.GET("/:id/subscription", s.linkSubscription)

	admin := s.router.Group("/api", s.apiKeyMiddleware())
	admin.POST("/links", s.createLink)
	admin.GET("/links", s.listLinks)
	admin.GET("/links/:id", s.getLink)
	admin.DELETE("/links/:id", s.deleteLink)
	admin.POST("/links/:id/disable", s.disableLink)
	admin.GET("/payments", s.listPayments)
	admin.GET("/subscriptions", s.listSubscriptions)
	admin.GET("/subscriptions/:id", s.getSubscription)
	admin.POST("/subscriptions/:id/cancel", s.cancelSubscription)
	admin.POST("/subscriptions/:id/pause", s.pauseSubscription)
	admin.POST("/subscriptions/:id/resume", s.resumeSubscription)
}
