package handlers

import (
	"net/http"

	"github.com/fruitlens/fruit-classifier/internal/logging"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func enableCORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusOK)
			return
		}
		c.Next()
	}
}

// NewRouter wires every endpoint onto a gin engine.
func NewRouter(h *Handler, logger *zap.SugaredLogger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), logging.GinMiddleware(logger))
	r.MaxMultipartMemory = 8 << 20

	r.StaticFS("/static", http.FS(h.static))

	r.GET("/", h.Index)
	r.POST("/", h.ClassifyForm)
	r.GET("/chart.png", h.Chart)

	api := r.Group("/", enableCORS())
	{
		api.GET("/health", h.Health)
		api.POST("/predict", h.Predict)
		api.POST("/predict/image", h.PredictFromImage)
		api.POST("/api/classify", h.Classify)
		api.GET("/api/tally", h.Tally)
		api.OPTIONS("/predict", func(*gin.Context) {})
		api.OPTIONS("/predict/image", func(*gin.Context) {})
		api.OPTIONS("/api/classify", func(*gin.Context) {})
	}
	return r
}
