package handler

import (
	"net/http"

	"stockledger/internal/auth"
	"stockledger/internal/infrastructure/metrics"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// SetupRouter 配置路由
func SetupRouter(h *Handler, tokens *auth.TokenManager, m *metrics.Metrics, log logrus.FieldLogger) *gin.Engine {
	r := gin.New()

	// 注册中间件
	r.Use(RecoveryMiddleware(log))
	r.Use(LoggerMiddleware(log))
	r.Use(CORSMiddleware())
	r.Use(m.GinMiddleware())

	api := r.Group("/api/v1", AuthMiddleware(tokens))
	{
		member := api.Group("/members/:member_id")
		{
			member.POST("/trades", h.ExecuteTrade)
			member.GET("/trades/:transaction_no", h.GetTrade)
			member.GET("/balance", h.GetBalance)
			member.GET("/holdings", h.ListHoldings)
		}
	}

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(m.Handler()))

	return r
}
