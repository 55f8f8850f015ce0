package profilesync

import (
	"math"
	"strconv"

	"github.com/madhumithaparameshwaran/AI-FITNESS-ANALYST/internal/models"
	"github.com/madhumithaparameshwaran/AI-FITNESS-ANALYST/internal/services"
)

// RecordToProfile converts a stored record into the editable view. Absent or
// zero numbers become empty strings; text fields are copied as stored.
func RecordToProfile(record *models.ProfileRecord) models.Profile {
	if record == nil {
		return models.DefaultProfile()
	}

	profile := models.Profile{
		Name:          record.Name,
		Gender:        record.Gender,
		Height:        formatFloat(record.Height),
		CurrentWeight: formatFloat(record.CurrentWeight),
		TargetWeight:  formatFloat(record.TargetWeight),
		FitnessGoal:   record.FitnessGoal,
		ActivityLevel: record.ActivityLevel,
		Equipment:     record.Equipment,
	}
	if record.Age != nil && *record.Age != 0 {
		profile.Age = strconv.Itoa(*record.Age)
	}
	return profile
}

// ProfileToRecord converts the editable view into the stored form. Numeric
// fields that are empty, unparseable or not positive are stored as NULL.
func ProfileToRecord(userID string, profile models.Profile, plan *models.Plan) models.ProfileRecord {
	record := models.ProfileRecord{
		UserID:        userID,
		Name:          profile.Name,
		Gender:        profile.Gender,
		Height:        parseFloat(profile.Height),
		CurrentWeight: parseFloat(profile.CurrentWeight),
		TargetWeight:  parseFloat(profile.TargetWeight),
		FitnessGoal:   profile.FitnessGoal,
		ActivityLevel: profile.ActivityLevel,
		Equipment:     profile.Equipment,
		LastPlan:      plan,
	}
	if age, ok := services.ParsePositive(profile.Age); ok && age >= 1 && age <= math.MaxInt32 {
		whole := int(math.Trunc(age))
		record.Age = &whole
	}
	return record
}

func formatFloat(value *float64) string {
	if value == nil || *value == 0 || math.IsNaN(*value) || math.IsInf(*value, 0) {
		return ""
	}
	return strconv.FormatFloat(*value, 'f', -1, 64)
}

func parseFloat(value string) *float64 {
	parsed, ok := services.ParsePositive(value)
	if !ok {
		return nil
	}
	return &parsed
}
