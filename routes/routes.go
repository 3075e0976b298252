package routes

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"goalchat/controllers"
	"goalchat/middlewares"
)

func SetupRouter(ctl *controllers.ChatController, log *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(middlewares.Recovery(log), middlewares.Logger(log), middlewares.CORS())

	api := r.Group("/api")

	// chat turn
	api.POST("/chat", ctl.HandleChat)

	// past conversations and the active goal
	api.GET("/history", ctl.GetHistory)
	api.GET("/context", ctl.GetContext)

	api.POST("/conversations", ctl.CreateConversation)
	api.PUT("/conversations/:id/title", ctl.UpdateConversationTitle)
	api.POST("/conversations/:id/messages", ctl.SaveMessage)

	api.PUT("/goals/:id", ctl.UpdateGoal)

	api.GET("/prompts", ctl.GetSuggestedPrompts)
	api.GET("/me", ctl.GetCurrentUser)

	return r
}
