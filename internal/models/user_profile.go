package models

import "time"

const (
	GenderMale           = "Male"
	GenderFemale         = "Female"
	GenderPreferNotToSay = "Prefer not to say"
)

const (
	GoalWeightLoss = "Weight Loss"
	GoalMuscleGain = "Muscle Gain"
	GoalStrength   = "Strength"
	GoalEndurance  = "Endurance"
)

const (
	ActivitySedentary = "Sedentary"
	ActivityModerate  = "Moderate"
	ActivityActive    = "Active"
)

var Genders = []string{GenderMale, GenderFemale, GenderPreferNotToSay}

var FitnessGoals = []string{GoalWeightLoss, GoalMuscleGain, GoalStrength, GoalEndurance}

var ActivityLevels = []string{ActivitySedentary, ActivityModerate, ActivityActive}

var EquipmentOptions = []string{
	"Dumbbells + Bodyweight",
	"Bodyweight",
	"Cable Machine",
	"Free Weights",
	"Resistance Bands",
	"Kettlebells",
	"Barbell",
	"Full Gym",
	"Home Equipment",
}

// Profile is the editable view of a user's profile. Numeric fields are kept
// as text; an empty string means the value is absent.
type Profile struct {
	Name          string `json:"name"`
	Age           string `json:"age"`
	Gender        string `json:"gender"`
	Height        string `json:"height"`
	CurrentWeight string `json:"current_weight"`
	TargetWeight  string `json:"target_weight"`
	FitnessGoal   string `json:"fitness_goal"`
	ActivityLevel string `json:"activity_level"`
	Equipment     string `json:"equipment"`
}

func DefaultProfile() Profile {
	return Profile{
		Gender:        GenderMale,
		FitnessGoal:   GoalWeightLoss,
		ActivityLevel: ActivityModerate,
		Equipment:     EquipmentOptions[0],
	}
}

// ProfileRecord is the stored form of a profile, keyed by user id.
type ProfileRecord struct {
	UserID        string    `json:"user_id"`
	Name          string    `json:"name"`
	Age           *int      `json:"age"`
	Gender        string    `json:"gender"`
	Height        *float64  `json:"height"`
	CurrentWeight *float64  `json:"currentweight"`
	TargetWeight  *float64  `json:"targetweight"`
	FitnessGoal   string    `json:"fitnessgoal"`
	ActivityLevel string    `json:"activitylevel"`
	Equipment     string    `json:"equipment"`
	LastPlan      *Plan     `json:"last_plan"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func Contains(options []string, value string) bool {
	for _, option := range options {
		if option == value {
			return true
		}
	}
	return false
}
