package handlers

import (
	"github.com/gofiber/fiber/v2"
)

type PlanHandler struct {
	workspaces workspaceStore
}

func NewPlanHandler(workspaces workspaceStore) *PlanHandler {
	return &PlanHandler{workspaces: workspaces}
}

// GeneratePlan asks the coach model for a plan built from the stored profile.
// The plan is persisted with the profile before the response is written.
func (h *PlanHandler) GeneratePlan(c *fiber.Ctx) error {
	ws, err := currentWorkspace(c, h.workspaces)
	if ws == nil {
		return err
	}

	plan, err := ws.Controller.GeneratePlan(c.Context())
	if err != nil {
		return mapSyncError(c, err, ws.Controller.Snapshot())
	}

	snapshot := ws.Controller.Snapshot()
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"plan":   plan,
		"status": snapshot.Status,
	})
}

func (h *PlanHandler) GetPlan(c *fiber.Ctx) error {
	ws, err := currentWorkspace(c, h.workspaces)
	if ws == nil {
		return err
	}

	snapshot := ws.Controller.Snapshot()
	if snapshot.Plan == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "No plan generated yet"})
	}
	return c.JSON(fiber.Map{"plan": snapshot.Plan})
}
