package handlers

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/madhumithaparameshwaran/AI-FITNESS-ANALYST/internal/models"
	"github.com/madhumithaparameshwaran/AI-FITNESS-ANALYST/internal/profilesync"
	"github.com/madhumithaparameshwaran/AI-FITNESS-ANALYST/internal/services"
)

type ProfileHandler struct {
	workspaces workspaceStore
}

func NewProfileHandler(workspaces workspaceStore) *ProfileHandler {
	return &ProfileHandler{workspaces: workspaces}
}

type updateProfileRequest struct {
	Name          *string `json:"name"`
	Age           *string `json:"age"`
	Gender        *string `json:"gender"`
	Height        *string `json:"height"`
	CurrentWeight *string `json:"current_weight"`
	TargetWeight  *string `json:"target_weight"`
	FitnessGoal   *string `json:"fitness_goal"`
	ActivityLevel *string `json:"activity_level"`
	Equipment     *string `json:"equipment"`
}

func (req updateProfileRequest) apply(profile models.Profile) models.Profile {
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = strings.TrimSpace(*src)
		}
	}
	set(&profile.Name, req.Name)
	set(&profile.Age, req.Age)
	set(&profile.Gender, req.Gender)
	set(&profile.Height, req.Height)
	set(&profile.CurrentWeight, req.CurrentWeight)
	set(&profile.TargetWeight, req.TargetWeight)
	set(&profile.FitnessGoal, req.FitnessGoal)
	set(&profile.ActivityLevel, req.ActivityLevel)
	set(&profile.Equipment, req.Equipment)
	return profile
}

func (h *ProfileHandler) GetProfile(c *fiber.Ctx) error {
	ws, err := currentWorkspace(c, h.workspaces)
	if ws == nil {
		return err
	}
	return c.JSON(ws.Controller.Snapshot())
}

// UpdateProfile merges the given fields into the current profile and saves
// the whole record.
func (h *ProfileHandler) UpdateProfile(c *fiber.Ctx) error {
	ws, err := currentWorkspace(c, h.workspaces)
	if ws == nil {
		return err
	}

	var req updateProfileRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if msg := validateProfileUpdateRequest(req); msg != "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": msg})
	}

	ws.Controller.Edit(req.apply(ws.Controller.Snapshot().Profile))
	if err := ws.Controller.Save(c.Context()); err != nil {
		return mapSyncError(c, err, ws.Controller.Snapshot())
	}
	return c.JSON(ws.Controller.Snapshot())
}

func (h *ProfileHandler) GetBMI(c *fiber.Ctx) error {
	ws, err := currentWorkspace(c, h.workspaces)
	if ws == nil {
		return err
	}

	bmi := ws.Controller.Snapshot().BMI
	return c.JSON(fiber.Map{
		"bmi":      bmi,
		"display":  services.FormatBMI(bmi),
		"category": services.BMICategory(bmi),
	})
}

func mapSyncError(c *fiber.Ctx, err error, snapshot profilesync.Snapshot) error {
	message := snapshot.Status.Error
	if message == "" {
		message = err.Error()
	}

	var validationErr *services.ValidationError
	var persistenceErr *profilesync.PersistenceError
	switch {
	case errors.As(err, &validationErr):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": validationErr.Message})
	case errors.Is(err, services.ErrNotAuthenticated):
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "No active session"})
	case errors.As(err, &persistenceErr):
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": message,
			"state": snapshot,
		})
	default:
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error": message,
			"state": snapshot,
		})
	}
}
