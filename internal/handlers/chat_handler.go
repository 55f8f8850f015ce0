package handlers

import (
	"context"
	"errors"
	"strings"

	websocket "github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/madhumithaparameshwaran/AI-FITNESS-ANALYST/internal/middleware"
	"github.com/madhumithaparameshwaran/AI-FITNESS-ANALYST/internal/models"
	"github.com/madhumithaparameshwaran/AI-FITNESS-ANALYST/internal/services"
	syncws "github.com/madhumithaparameshwaran/AI-FITNESS-ANALYST/internal/websocket"
	"github.com/madhumithaparameshwaran/AI-FITNESS-ANALYST/pkg/utils"
)

type chatAsker interface {
	Ask(
		ctx context.Context,
		conversation *services.Conversation,
		userText string,
		profile models.Profile,
		lastPlan *models.Plan,
	) []models.ChatMessage
}

type ChatHandler struct {
	service    chatAsker
	workspaces workspaceStore
	hub        *syncws.Hub
	jwtSecret  string
}

type askRequest struct {
	Message string `json:"message"`
}

func NewChatHandler(service chatAsker, workspaces workspaceStore, hub *syncws.Hub, jwtSecret string) *ChatHandler {
	return &ChatHandler{
		service:    service,
		workspaces: workspaces,
		hub:        hub,
		jwtSecret:  jwtSecret,
	}
}

func (h *ChatHandler) GetMessages(c *fiber.Ctx) error {
	ws, err := currentWorkspace(c, h.workspaces)
	if ws == nil {
		return err
	}

	return c.JSON(fiber.Map{
		"messages": ws.Conversation.Messages(),
		"pending":  ws.Conversation.Pending(),
	})
}

// Ask always answers 200 with the updated history; upstream failures show up
// as the fallback reply.
func (h *ChatHandler) Ask(c *fiber.Ctx) error {
	ws, err := currentWorkspace(c, h.workspaces)
	if ws == nil {
		return err
	}

	var req askRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	snapshot := ws.Controller.Snapshot()
	messages := h.service.Ask(c.Context(), ws.Conversation, req.Message, snapshot.Profile, snapshot.Plan)
	return c.JSON(fiber.Map{"messages": messages})
}

func (h *ChatHandler) WebSocketAuth(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return c.Status(fiber.StatusUpgradeRequired).JSON(fiber.Map{"error": "WebSocket upgrade required"})
	}

	claims, err := h.parseWSClaims(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid or expired token"})
	}
	if _, ok := h.workspaces.Get(claims.UserID); !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "No active session"})
	}

	c.Locals("user_id", claims.UserID)
	return c.Next()
}

func (h *ChatHandler) HandleWebSocket(conn *websocket.Conn) {
	userID, _ := conn.Locals("user_id").(string)
	client := syncws.NewClient(h.hub, conn, userID)

	h.hub.Register(client)
	go client.WritePump()
	client.ReadPump(h.workspaces)
}

func (h *ChatHandler) parseWSClaims(c *fiber.Ctx) (*utils.Claims, error) {
	tokenString := strings.TrimSpace(c.Query("token"))
	if tokenString == "" {
		tokenString, _ = middleware.BearerToken(c.Get("Authorization"))
	}

	if tokenString == "" {
		return nil, errors.New("missing token")
	}

	return utils.ValidateToken(tokenString, h.jwtSecret)
}
