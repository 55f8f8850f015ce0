package handlers

import (
	"strings"

	"github.com/madhumithaparameshwaran/AI-FITNESS-ANALYST/internal/models"
	"github.com/madhumithaparameshwaran/AI-FITNESS-ANALYST/internal/services"
)

// validateProfileUpdateRequest checks the fields that are present. Numeric
// fields may be cleared with an empty string.
func validateProfileUpdateRequest(req updateProfileRequest) string {
	if req.Gender != nil && !models.Contains(models.Genders, *req.Gender) {
		return "gender must be one of: " + strings.Join(models.Genders, ", ")
	}
	if req.FitnessGoal != nil && !models.Contains(models.FitnessGoals, *req.FitnessGoal) {
		return "fitness_goal must be one of: " + strings.Join(models.FitnessGoals, ", ")
	}
	if req.ActivityLevel != nil && !models.Contains(models.ActivityLevels, *req.ActivityLevel) {
		return "activity_level must be one of: " + strings.Join(models.ActivityLevels, ", ")
	}
	if req.Equipment != nil && !models.Contains(models.EquipmentOptions, *req.Equipment) {
		return "equipment must be one of: " + strings.Join(models.EquipmentOptions, ", ")
	}
	if err := validateOptionalPositive("age", req.Age); err != "" {
		return err
	}
	if err := validateOptionalPositive("height", req.Height); err != "" {
		return err
	}
	if err := validateOptionalPositive("current_weight", req.CurrentWeight); err != "" {
		return err
	}
	if err := validateOptionalPositive("target_weight", req.TargetWeight); err != "" {
		return err
	}
	return ""
}

func validateOptionalPositive(field string, value *string) string {
	if value == nil || strings.TrimSpace(*value) == "" {
		return ""
	}
	if _, ok := services.ParsePositive(*value); !ok {
		return field + " must be a number greater than 0"
	}
	return ""
}
