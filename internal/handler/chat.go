package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"propertychat/internal/model"
	"propertychat/internal/service"
)

const msgProcessFailed = "failed to process message"

// ChatHandler handles chat-related HTTP requests
type ChatHandler struct {
	chatService *service.ChatService
	logger      *slog.Logger
}

// NewChatHandler creates a new chat handler
func NewChatHandler(chatService *service.ChatService, logger *slog.Logger) *ChatHandler {
	return &ChatHandler{
		chatService: chatService,
		logger:      logger,
	}
}

// RegisterRoutes mounts the chat endpoints on rg
func (h *ChatHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/chat", h.Chat)
	rg.POST("/chat/stream", h.ChatStream) // Streaming chat
	rg.GET("/chat/history/:sessionToken", h.History)
	rg.POST("/inventory/refresh", h.RefreshInventory)
}

// Chat handles POST /api/v1/chat
func (h *ChatHandler) Chat(c *gin.Context) {
	var req model.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	response, err := h.chatService.HandleMessage(c.Request.Context(), &req)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, response)
}

// ChatStream handles POST /api/v1/chat/stream - SSE streaming chat
func (h *ChatHandler) ChatStream(c *gin.Context) {
	var req model.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		h.writeError(c, service.ErrInvalidRequest)
		return
	}

	// Set SSE headers
	c.Header("Content-Type", "text/event-stream; charset=utf-8")
	c.Header("Cache-Control", "no-cache, no-store, must-revalidate")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	// Create flusher for SSE
	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Streaming not supported"})
		return
	}

	response, err := h.chatService.HandleMessageStream(c.Request.Context(), &req, func(event string, data any) error {
		sendSSE(c, event, data)
		flusher.Flush()
		return nil
	})

	if err != nil {
		h.logError(c, err)
		sendSSE(c, "error", map[string]any{"error": msgProcessFailed})
		flusher.Flush()
		return
	}

	// Send done event with the full reply
	sendSSE(c, "done", response)
	flusher.Flush()
}

// History handles GET /api/v1/chat/history/:sessionToken
func (h *ChatHandler) History(c *gin.Context) {
	token := c.Param("sessionToken")

	history, err := h.chatService.History(c.Request.Context(), token)
	if err != nil {
		if errors.Is(err, service.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
			return
		}
		h.logError(c, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load history"})
		return
	}

	c.JSON(http.StatusOK, history)
}

// RefreshInventory handles POST /api/v1/inventory/refresh
func (h *ChatHandler) RefreshInventory(c *gin.Context) {
	h.chatService.RefreshInventory()
	c.JSON(http.StatusAccepted, gin.H{"status": "refresh scheduled"})
}

// writeError maps service errors to responses without exposing the cause
func (h *ChatHandler) writeError(c *gin.Context, err error) {
	if errors.Is(err, service.ErrInvalidRequest) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message is required"})
		return
	}

	h.logError(c, err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": msgProcessFailed})
}

func (h *ChatHandler) logError(c *gin.Context, err error) {
	h.logger.Error("chat request failed",
		"path", c.FullPath(),
		"persistence", errors.Is(err, service.ErrPersistenceFailure),
		"error", err)
}

// sendSSE sends a Server-Sent Event
func sendSSE(c *gin.Context, event string, data any) {
	if data != nil {
		jsonData, err := json.Marshal(data)
		if err != nil {
			fmt.Fprintf(c.Writer, "event: error\ndata: {\"error\": \"JSON marshal failed\"}\n\n")
			return
		}
		fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", event, string(jsonData))
	} else {
		fmt.Fprintf(c.Writer, "event: %s\ndata: {}\n\n", event)
	}
}
