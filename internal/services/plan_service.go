package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/madhumithaparameshwaran/AI-FITNESS-ANALYST/internal/completion"
	"github.com/madhumithaparameshwaran/AI-FITNESS-ANALYST/internal/metrics"
	"github.com/madhumithaparameshwaran/AI-FITNESS-ANALYST/internal/models"
	"go.uber.org/zap"
)

const (
	planTemperature = 0.8
	planMaxTokens   = 2500

	planSystemPrompt = "You are a fitness coach. Always respond with valid JSON only. Be extremely concise. Use exact single numbers only - never use ranges. Keep all text very short and simple."
)

type completer interface {
	Complete(ctx context.Context, req completion.Request) (string, error)
}

// PlanSaver persists a freshly generated plan together with the current
// profile snapshot.
type PlanSaver interface {
	SavePlan(ctx context.Context, plan *models.Plan) error
}

type PlanService struct {
	completer completer
	logger    *zap.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
}

func NewPlanService(completer completer, logger *zap.Logger, m *metrics.Metrics) *PlanService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PlanService{
		completer: completer,
		logger:    logger,
		metrics:   m,
		now:       time.Now,
	}
}

// Generate turns a profile into a plan. When saver is not nil it is called
// exactly once with the new plan; the plan is returned even if saving fails.
func (s *PlanService) Generate(
	ctx context.Context,
	profile models.Profile,
	bmi float64,
	saver PlanSaver,
) (*models.Plan, error) {
	_, okHeight := ParsePositive(profile.Height)
	current, okCurrent := ParsePositive(profile.CurrentWeight)
	target, okTarget := ParsePositive(profile.TargetWeight)
	if !okHeight || !okCurrent || !okTarget {
		s.metrics.PlanGeneration("validation_error")
		return nil, &ValidationError{Message: missingMeasurementsMessage}
	}

	weightDelta := math.Abs(target - current)
	content, err := s.completer.Complete(ctx, completion.Request{
		Messages: []models.ChatMessage{
			{Role: "system", Content: planSystemPrompt},
			{Role: models.RoleUser, Content: BuildPlanPrompt(profile, bmi, weightDelta)},
		},
		Temperature: planTemperature,
		MaxTokens:   planMaxTokens,
		JSONObject:  true,
	})
	if err != nil {
		if errors.Is(err, completion.ErrEmptyContent) || errors.Is(err, completion.ErrInvalidResponse) {
			s.metrics.PlanGeneration("parse_error")
			return nil, &ParseError{Err: err}
		}
		s.metrics.PlanGeneration("request_error")
		s.logger.Warn("Plan generation request failed", zap.Error(err))
		return nil, err
	}

	plan, err := ParsePlan(content)
	if err != nil {
		s.metrics.PlanGeneration("parse_error")
		s.logger.Warn("Plan generation returned malformed content", zap.Error(err))
		return nil, err
	}
	plan.Timestamp = s.now().UTC()
	s.metrics.PlanGeneration("success")

	if saver != nil {
		if err := saver.SavePlan(ctx, plan); err != nil {
			return plan, err
		}
	}
	return plan, nil
}

// ParsePlan decodes the model's JSON answer. At least one section must be filled.
func ParsePlan(content string) (*models.Plan, error) {
	if strings.TrimSpace(content) == "" {
		return nil, &ParseError{Err: completion.ErrEmptyContent}
	}

	var plan models.Plan
	if err := json.Unmarshal([]byte(content), &plan); err != nil {
		return nil, &ParseError{Err: err}
	}

	sections := plan.Plan
	if sections.WarmUp == "" && sections.Strength == "" && sections.Cardio == "" && sections.CoolDown == "" {
		return nil, &ParseError{Err: errors.New("plan has no sections")}
	}
	return &plan, nil
}

// BuildPlanPrompt renders the user prompt. Its layout is what the model is
// tuned against; keep labels, instructions and the JSON example stable.
func BuildPlanPrompt(profile models.Profile, bmi float64, weightDelta float64) string {
	var b strings.Builder
	b.WriteString("You are an expert fitness coach. Generate a personalized fitness plan.\n\n")
	b.WriteString("User Profile:\n")
	fmt.Fprintf(&b, "- Name: %s\n", profile.Name)
	fmt.Fprintf(&b, "- Age: %s\n", profile.Age)
	fmt.Fprintf(&b, "- Gender: %s\n", profile.Gender)
	fmt.Fprintf(&b, "- Height: %s cm\n", profile.Height)
	fmt.Fprintf(&b, "- Current Weight: %s kg\n", profile.CurrentWeight)
	fmt.Fprintf(&b, "- Target Weight: %s kg\n", profile.TargetWeight)
	fmt.Fprintf(&b, "- Weight Change Needed: %s kg\n", strconv.FormatFloat(weightDelta, 'f', -1, 64))
	fmt.Fprintf(&b, "- BMI: %s\n", FormatBMI(bmi))
	fmt.Fprintf(&b, "- Fitness Goal: %s\n", profile.FitnessGoal)
	fmt.Fprintf(&b, "- Activity Level: %s\n", profile.ActivityLevel)
	fmt.Fprintf(&b, "- Available Equipment: %s\n", profile.Equipment)
	b.WriteString(`
IMPORTANT INSTRUCTIONS:
1. Use EXACT numbers only (e.g., "5 min" NOT "5-7 minutes")
2. Keep ALL exercises in SHORT format
3. Each exercise should be: ExerciseName (sets×reps) or ExerciseName (duration)
4. Maximum 3-4 exercises per section

JSON format:
{
  "predicted_time": "exact time (e.g., '12 weeks')",
  "plan": {
    "warmUp": "Jumping Jacks (5 min), Arm Circles (2 min)",
    "strength": "Squats (3×12), Push-ups (3×10), Rows (3×12)",
    "cardio": "Running (20 min), Jump Rope (10 min)",
    "coolDown": "Static Stretching (5 min)"
  }
}

Keep it simple and concise. Use exact single numbers only.`)
	return b.String()
}
