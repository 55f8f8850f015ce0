package handlers

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/madhumithaparameshwaran/AI-FITNESS-ANALYST/internal/auth"
	"github.com/madhumithaparameshwaran/AI-FITNESS-ANALYST/internal/middleware"
	"github.com/madhumithaparameshwaran/AI-FITNESS-ANALYST/internal/profilesync"
	"github.com/madhumithaparameshwaran/AI-FITNESS-ANALYST/internal/services"
	"github.com/madhumithaparameshwaran/AI-FITNESS-ANALYST/internal/workspace"
)

type workspaceStore interface {
	SignIn(token string) (*workspace.Workspace, *auth.Session, error)
	Get(userID string) (*workspace.Workspace, bool)
	Snapshot(userID string) (profilesync.Snapshot, bool)
	SignOut(ctx context.Context, userID string) error
}

type SessionHandler struct {
	workspaces workspaceStore
}

func NewSessionHandler(workspaces workspaceStore) *SessionHandler {
	return &SessionHandler{workspaces: workspaces}
}

type signInRequest struct {
	AccessToken string `json:"access_token"`
}

// SignIn starts a session from a token minted by the external auth provider
// and returns the freshly loaded profile state.
func (h *SessionHandler) SignIn(c *fiber.Ctx) error {
	var req signInRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
		}
	}

	token := strings.TrimSpace(req.AccessToken)
	if token == "" {
		token, _ = middleware.BearerToken(c.Get("Authorization"))
	}
	if token == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "access_token is required"})
	}

	ws, session, err := h.workspaces.SignIn(token)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidToken) {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid or expired token"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to start session"})
	}

	return c.JSON(fiber.Map{
		"session": session,
		"state":   ws.Controller.Snapshot(),
	})
}

func (h *SessionHandler) SignOut(c *fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	if err := h.workspaces.SignOut(c.Context(), userID); err != nil {
		if errors.Is(err, services.ErrNotAuthenticated) {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "No active session"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to sign out"})
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func currentUserID(c *fiber.Ctx) (string, bool) {
	userID, ok := c.Locals("user_id").(string)
	if !ok || userID == "" {
		return "", false
	}
	return userID, true
}

// currentWorkspace resolves the caller's workspace or writes the error
// response itself.
func currentWorkspace(c *fiber.Ctx, workspaces workspaceStore) (*workspace.Workspace, error) {
	userID, ok := currentUserID(c)
	if !ok {
		return nil, c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}
	ws, ok := workspaces.Get(userID)
	if !ok {
		return nil, c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "No active session"})
	}
	return ws, nil
}
