package api

import (
	"net/http"

	"converso/backend/conversation/models"
	"converso/backend/conversation/service"
	apperrors "converso/backend/pkg/errors"
	"converso/backend/pkg/logger"
	"converso/backend/pkg/middleware"

	"github.com/gin-gonic/gin"
)

// MessageHandler handles the message ledger and exchange endpoints
type MessageHandler struct {
	conversations *service.ConversationService
	ledger        *service.MessageService
	chat          *service.ChatService
	logger        *logger.Logger
}

// NewMessageHandler creates a new message handler
func NewMessageHandler(
	conversations *service.ConversationService,
	ledger *service.MessageService,
	chat *service.ChatService,
	logger *logger.Logger,
) *MessageHandler {
	return &MessageHandler{
		conversations: conversations,
		ledger:        ledger,
		chat:          chat,
		logger:        logger,
	}
}

type createMessageRequest struct {
	Role            string                 `json:"role" binding:"required"`
	Content         string                 `json:"content"`
	Status          string                 `json:"status"`
	Model           string                 `json:"model"`
	ParentMessageID *uint                  `json:"parent_message_id"`
	Attachments     models.AttachmentList  `json:"attachments"`
	Metadata        map[string]interface{} `json:"metadata"`
}

// Create handles POST /conversations/:id/messages — a direct ledger
// append without AI dispatch, used for imports and system entries
func (h *MessageHandler) Create(c *gin.Context) {
	conversationID, ok := parseID(c, "id")
	if !ok {
		return
	}

	if _, err := h.conversations.ValidateOwnership(c.Request.Context(), middleware.UserID(c), conversationID); err != nil {
		c.Error(err)
		return
	}

	var req createMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewValidationError(err.Error()))
		return
	}

	message, err := h.ledger.CreateMessage(c.Request.Context(), conversationID, service.CreateMessageInput{
		Role:            req.Role,
		Content:         req.Content,
		Status:          req.Status,
		Model:           req.Model,
		ParentMessageID: req.ParentMessageID,
		Attachments:     req.Attachments,
		Metadata:        req.Metadata,
	})
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, message)
}

// List handles GET /conversations/:id/messages
func (h *MessageHandler) List(c *gin.Context) {
	conversationID, ok := parseID(c, "id")
	if !ok {
		return
	}

	if _, err := h.conversations.ValidateOwnership(c.Request.Context(), middleware.UserID(c), conversationID); err != nil {
		c.Error(err)
		return
	}

	messages, page, err := h.ledger.ListMessages(c.Request.Context(), conversationID, parseListParams(c))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":       messages,
		"pagination": page,
	})
}

// Get handles GET /conversations/:id/messages/:messageId
func (h *MessageHandler) Get(c *gin.Context) {
	conversationID, ok := parseID(c, "id")
	if !ok {
		return
	}
	messageID, ok := parseID(c, "messageId")
	if !ok {
		return
	}

	if _, err := h.conversations.ValidateOwnership(c.Request.Context(), middleware.UserID(c), conversationID); err != nil {
		c.Error(err)
		return
	}

	message, err := h.ledger.GetMessage(c.Request.Context(), conversationID, messageID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, message)
}

type updateMessageRequest struct {
	Content  *string                `json:"content"`
	Status   *string                `json:"status"`
	Metadata map[string]interface{} `json:"metadata"`
}

// Update handles PATCH /conversations/:id/messages/:messageId
func (h *MessageHandler) Update(c *gin.Context) {
	conversationID, ok := parseID(c, "id")
	if !ok {
		return
	}
	messageID, ok := parseID(c, "messageId")
	if !ok {
		return
	}

	if _, err := h.conversations.ValidateOwnership(c.Request.Context(), middleware.UserID(c), conversationID); err != nil {
		c.Error(err)
		return
	}

	var req updateMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewValidationError(err.Error()))
		return
	}

	message, err := h.ledger.UpdateMessage(c.Request.Context(), conversationID, messageID, service.UpdateMessageInput{
		Content:  req.Content,
		Status:   req.Status,
		Metadata: req.Metadata,
	})
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, message)
}

// Delete handles DELETE /conversations/:id/messages/:messageId
func (h *MessageHandler) Delete(c *gin.Context) {
	conversationID, ok := parseID(c, "id")
	if !ok {
		return
	}
	messageID, ok := parseID(c, "messageId")
	if !ok {
		return
	}

	if _, err := h.conversations.ValidateOwnership(c.Request.Context(), middleware.UserID(c), conversationID); err != nil {
		c.Error(err)
		return
	}

	if err := h.ledger.DeleteMessage(c.Request.Context(), conversationID, messageID); err != nil {
		c.Error(err)
		return
	}

	c.Status(http.StatusNoContent)
}

type chatRequest struct {
	Content         string                `json:"content" binding:"required"`
	ParentMessageID *uint                 `json:"parent_message_id"`
	Attachments     models.AttachmentList `json:"attachments"`
	Settings        map[string]float64    `json:"settings"`
}

// Chat handles POST /conversations/:id/chat — the full exchange. When
// dispatch fails the failed assistant entry is already persisted; the
// error is still surfaced to the caller.
func (h *MessageHandler) Chat(c *gin.Context) {
	conversationID, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewValidationError(err.Error()))
		return
	}

	result, err := h.chat.Exchange(c.Request.Context(), middleware.UserID(c), conversationID, service.ExchangeInput{
		Content:          req.Content,
		ParentMessageID:  req.ParentMessageID,
		Attachments:      req.Attachments,
		OverrideSettings: req.Settings,
	})
	if err != nil {
		if result != nil {
			appErr := apperrors.FromError(err)
			c.AbortWithStatusJSON(appErr.StatusCode, gin.H{
				"error": gin.H{
					"code":    appErr.Code,
					"message": appErr.Message,
					"details": appErr.Details,
				},
				"user_message":      result.UserMessage,
				"assistant_message": result.AssistantMessage,
			})
			return
		}
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, result)
}
