package services

import (
	"math"
	"strconv"
	"strings"

	"github.com/madhumithaparameshwaran/AI-FITNESS-ANALYST/internal/models"
)

// CalculateBMI returns weight / height² with height in centimetres, or 0 when
// either input is not positive.
func CalculateBMI(weightKG, heightCM float64) float64 {
	if heightCM <= 0 || weightKG <= 0 {
		return 0
	}
	heightM := heightCM / 100
	return weightKG / (heightM * heightM)
}

// ProfileBMI computes the BMI of an editable profile rounded to one decimal.
func ProfileBMI(profile models.Profile) float64 {
	weight, okWeight := ParseNumber(profile.CurrentWeight)
	height, okHeight := ParseNumber(profile.Height)
	if !okWeight || !okHeight {
		return 0
	}
	return RoundOneDecimal(CalculateBMI(weight, height))
}

const (
	BMIUnderweight = "underweight"
	BMINormal      = "normal"
	BMIOverweight  = "overweight"
)

// BMICategory classifies bmi against the 18.5 and 25 cut-offs. Both bounds
// count as normal. A zero bmi has no measurements behind it and no category.
func BMICategory(bmi float64) string {
	switch {
	case bmi <= 0:
		return ""
	case bmi > 25:
		return BMIOverweight
	case bmi < 18.5:
		return BMIUnderweight
	default:
		return BMINormal
	}
}

func RoundOneDecimal(value float64) float64 {
	return math.Round(value*10) / 10
}

func FormatBMI(bmi float64) string {
	return strconv.FormatFloat(bmi, 'f', 1, 64)
}

// ParseNumber parses a numeric profile field. Empty, NaN and infinite values
// are rejected.
func ParseNumber(value string) (float64, bool) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return 0, false
	}
	parsed, err := strconv.ParseFloat(trimmed, 64)
	if err != nil || math.IsNaN(parsed) || math.IsInf(parsed, 0) {
		return 0, false
	}
	return parsed, true
}

// ParsePositive parses a numeric profile field that must be greater than zero.
func ParsePositive(value string) (float64, bool) {
	parsed, ok := ParseNumber(value)
	if !ok || parsed <= 0 {
		return 0, false
	}
	return parsed, true
}
