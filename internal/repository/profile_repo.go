package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/madhumithaparameshwaran/AI-FITNESS-ANALYST/internal/models"
)

type ProfileRepository struct {
	db DBTX
}

func NewProfileRepository(db DBTX) *ProfileRepository {
	return &ProfileRepository{db: db}
}

// GetByUserID returns nil, nil when the user has no stored profile yet.
func (r *ProfileRepository) GetByUserID(ctx context.Context, userID string) (*models.ProfileRecord, error) {
	query := `
		SELECT user_id, COALESCE(name, ''), age, COALESCE(gender, ''), height, currentweight, targetweight,
			   COALESCE(fitnessgoal, ''), COALESCE(activitylevel, ''), COALESCE(equipment, ''), last_plan, updated_at
		FROM profiles
		WHERE user_id = $1
	`
	var record models.ProfileRecord
	var lastPlan []byte
	err := r.db.QueryRow(ctx, query, userID).Scan(
		&record.UserID,
		&record.Name,
		&record.Age,
		&record.Gender,
		&record.Height,
		&record.CurrentWeight,
		&record.TargetWeight,
		&record.FitnessGoal,
		&record.ActivityLevel,
		&record.Equipment,
		&lastPlan,
		&record.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	plan, err := decodePlan(lastPlan)
	if err != nil {
		return nil, err
	}
	record.LastPlan = plan
	return &record, nil
}

// Upsert writes the whole record keyed by user_id. There is no version check;
// the last write wins.
func (r *ProfileRepository) Upsert(ctx context.Context, record *models.ProfileRecord) error {
	if record == nil || record.UserID == "" {
		return fmt.Errorf("profile record requires a user id")
	}

	lastPlan, err := encodePlan(record.LastPlan)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO profiles (user_id, name, age, gender, height, currentweight, targetweight,
							  fitnessgoal, activitylevel, equipment, last_plan, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW())
		ON CONFLICT (user_id) DO UPDATE
		SET name = EXCLUDED.name,
			age = EXCLUDED.age,
			gender = EXCLUDED.gender,
			height = EXCLUDED.height,
			currentweight = EXCLUDED.currentweight,
			targetweight = EXCLUDED.targetweight,
			fitnessgoal = EXCLUDED.fitnessgoal,
			activitylevel = EXCLUDED.activitylevel,
			equipment = EXCLUDED.equipment,
			last_plan = EXCLUDED.last_plan,
			updated_at = NOW()
		RETURNING updated_at
	`
	return r.db.QueryRow(ctx, query,
		record.UserID,
		record.Name,
		record.Age,
		record.Gender,
		record.Height,
		record.CurrentWeight,
		record.TargetWeight,
		record.FitnessGoal,
		record.ActivityLevel,
		record.Equipment,
		lastPlan,
	).Scan(&record.UpdatedAt)
}

func encodePlan(plan *models.Plan) ([]byte, error) {
	if plan == nil {
		return nil, nil
	}
	encoded, err := json.Marshal(plan)
	if err != nil {
		return nil, fmt.Errorf("encode last_plan: %w", err)
	}
	return encoded, nil
}

func decodePlan(raw []byte) (*models.Plan, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var plan models.Plan
	if err := json.Unmarshal(raw, &plan); err != nil {
		return nil, fmt.Errorf("decode last_plan: %w", err)
	}
	return &plan, nil
}
