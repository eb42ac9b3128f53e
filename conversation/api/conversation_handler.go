package api

import (
	"net/http"
	"strconv"

	"converso/backend/conversation/models"
	"converso/backend/conversation/service"
	apperrors "converso/backend/pkg/errors"
	"converso/backend/pkg/logger"
	"converso/backend/pkg/middleware"
	"converso/backend/pkg/pagination"

	"github.com/gin-gonic/gin"
)

// ConversationHandler handles the conversation directory endpoints
type ConversationHandler struct {
	conversations *service.ConversationService
	logger        *logger.Logger
}

// NewConversationHandler creates a new conversation handler
func NewConversationHandler(conversations *service.ConversationService, logger *logger.Logger) *ConversationHandler {
	return &ConversationHandler{conversations: conversations, logger: logger}
}

type createConversationRequest struct {
	Title        string             `json:"title" binding:"required"`
	Provider     string             `json:"provider"`
	Model        string             `json:"model"`
	SystemPrompt string             `json:"system_prompt"`
	Settings     models.SettingsMap `json:"settings"`
}

// Create handles POST /conversations
func (h *ConversationHandler) Create(c *gin.Context) {
	var req createConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewValidationError(err.Error()))
		return
	}

	conversation, err := h.conversations.CreateConversation(c.Request.Context(), middleware.UserID(c), service.CreateConversationInput{
		Title:        req.Title,
		Provider:     req.Provider,
		Model:        req.Model,
		SystemPrompt: req.SystemPrompt,
		Settings:     req.Settings,
	})
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, conversation)
}

// List handles GET /conversations
func (h *ConversationHandler) List(c *gin.Context) {
	params := parseListParams(c)

	conversations, page, err := h.conversations.ListConversations(c.Request.Context(), middleware.UserID(c), params)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":       conversations,
		"pagination": page,
	})
}

// Get handles GET /conversations/:id
func (h *ConversationHandler) Get(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	conversation, err := h.conversations.GetConversation(c.Request.Context(), middleware.UserID(c), id)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, conversation)
}

type updateConversationRequest struct {
	Title        *string            `json:"title"`
	Model        *string            `json:"model"`
	SystemPrompt *string            `json:"system_prompt"`
	Status       *string            `json:"status"`
	Settings     models.SettingsMap `json:"settings"`
}

// Update handles PATCH /conversations/:id
func (h *ConversationHandler) Update(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req updateConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewValidationError(err.Error()))
		return
	}

	conversation, err := h.conversations.UpdateConversation(c.Request.Context(), middleware.UserID(c), id, service.UpdateConversationInput{
		Title:        req.Title,
		Model:        req.Model,
		SystemPrompt: req.SystemPrompt,
		Status:       req.Status,
		Settings:     req.Settings,
	})
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, conversation)
}

// Delete handles DELETE /conversations/:id
func (h *ConversationHandler) Delete(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	if err := h.conversations.DeleteConversation(c.Request.Context(), middleware.UserID(c), id); err != nil {
		c.Error(err)
		return
	}

	c.Status(http.StatusNoContent)
}

// Stats handles GET /conversations/:id/stats
func (h *ConversationHandler) Stats(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	stats, err := h.conversations.Stats(c.Request.Context(), middleware.UserID(c), id)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, stats)
}

// parseID reads a numeric path parameter, recording a validation error on failure
func parseID(c *gin.Context, name string) (uint, bool) {
	raw := c.Param(name)
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		c.Error(apperrors.NewValidationError("invalid " + name))
		return 0, false
	}
	return uint(id), true
}

// parseListParams reads the shared pagination and search query parameters
func parseListParams(c *gin.Context) pagination.Params {
	return pagination.Params{
		Page:      pagination.ParseInt(c.Query("page"), pagination.DefaultPage),
		Limit:     pagination.ParseInt(c.Query("limit"), pagination.DefaultLimit),
		SortBy:    c.Query("sortBy"),
		SortOrder: c.Query("sortOrder"),
		Search:    c.Query("search"),
	}
}
