package controllers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"goalchat/models"
	"goalchat/services"
)

// ChatController serves the chat, history and goal endpoints over a
// repository and an AI boundary.
type ChatController struct {
	repo     services.Repository
	boundary services.Boundary
	log      *zap.Logger
}

func NewChatController(repo services.Repository, boundary services.Boundary, log *zap.Logger) *ChatController {
	if log == nil {
		log = zap.NewNop()
	}
	return &ChatController{repo: repo, boundary: boundary, log: log}
}

func (ctl *ChatController) HandleChat(c *gin.Context) {
	var req services.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ctl.log.Warn("Error binding chat request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid chat request"})
		return
	}
	if strings.TrimSpace(req.UserMessage) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "User message is required"})
		return
	}

	resp, err := ctl.boundary.Chat(c.Request.Context(), req)
	if err != nil {
		ctl.log.Error("Error in chat API",
			zap.String("conversation_id", req.ConversationID),
			zap.String("cause", services.ErrorKind(err)),
			zap.Error(err))
		ctl.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (ctl *ChatController) GetHistory(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	conversations, err := ctl.repo.GetHistory(c.Request.Context(), userID)
	if err != nil {
		ctl.log.Error("Failed to fetch conversations", zap.String("user_id", userID), zap.Error(err))
		ctl.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": conversations})
}

func (ctl *ChatController) GetContext(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	goal, err := ctl.repo.GetContext(c.Request.Context(), userID)
	if err != nil {
		ctl.log.Error("Failed to fetch context", zap.String("user_id", userID), zap.Error(err))
		ctl.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"activeGoal": goal})
}

func (ctl *ChatController) CreateConversation(c *gin.Context) {
	var body struct {
		UserID         string `json:"userId"`
		InitialMessage string `json:"initialMessage"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if body.UserID == "" {
		body.UserID = models.DefaultUser.ID
	}
	conv, err := ctl.repo.CreateConversation(c.Request.Context(), body.UserID, body.InitialMessage)
	if err != nil {
		ctl.log.Error("Failed to create conversation", zap.String("user_id", body.UserID), zap.Error(err))
		ctl.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, conv)
}

func (ctl *ChatController) UpdateConversationTitle(c *gin.Context) {
	var body struct {
		Title string `json:"title" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "title is required"})
		return
	}
	id := c.Param("id")
	if err := ctl.repo.UpdateConversationTitle(c.Request.Context(), id, body.Title); err != nil {
		ctl.log.Error("Failed to update title", zap.String("conversation_id", id), zap.Error(err))
		ctl.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (ctl *ChatController) SaveMessage(c *gin.Context) {
	var msg models.Message
	if err := c.ShouldBindJSON(&msg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	msg.ConversationID = c.Param("id")
	if msg.Role != models.RoleUser && msg.Role != models.RoleAssistant {
		c.JSON(http.StatusBadRequest, gin.H{"error": "role must be user or assistant"})
		return
	}
	if err := ctl.repo.SaveMessage(c.Request.Context(), msg); err != nil {
		ctl.log.Error("Error saving message",
			zap.String("conversation_id", msg.ConversationID),
			zap.String("message_id", msg.ID),
			zap.Error(err))
		ctl.respondError(c, err)
		return
	}
	c.Status(http.StatusCreated)
}

func (ctl *ChatController) UpdateGoal(c *gin.Context) {
	var goal models.Goal
	if err := c.ShouldBindJSON(&goal); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if id := c.Param("id"); goal.ID == "" {
		goal.ID = id
	} else if goal.ID != id {
		c.JSON(http.StatusBadRequest, gin.H{"error": "goal id does not match path"})
		return
	}
	if goal.UserID == "" {
		goal.UserID = models.DefaultUser.ID
	}
	if err := goal.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	stored, err := ctl.repo.UpdateGoal(c.Request.Context(), goal)
	if err != nil {
		ctl.log.Error("Failed to update goal", zap.String("goal_id", goal.ID), zap.Error(err))
		ctl.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stored)
}

func (ctl *ChatController) GetSuggestedPrompts(c *gin.Context) {
	c.JSON(http.StatusOK, models.SuggestedPrompts)
}

func (ctl *ChatController) GetCurrentUser(c *gin.Context) {
	c.JSON(http.StatusOK, models.DefaultUser)
}

func requireUserID(c *gin.Context) (string, bool) {
	userID := c.Query("userId")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "userId is required"})
		return "", false
	}
	return userID, true
}

// respondError writes the status matching err's sentinel.
func (ctl *ChatController) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrConfiguration):
		c.JSON(http.StatusInternalServerError, gin.H{"error": services.ErrConfiguration.Error() + ": the AI service is not configured on the server"})
	case errors.Is(err, services.ErrUpstream):
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to get response from AI: " + err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
