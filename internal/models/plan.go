package models

import "time"

type PlanSections struct {
	WarmUp   string `json:"warmUp"`
	Strength string `json:"strength"`
	Cardio   string `json:"cardio"`
	CoolDown string `json:"coolDown"`
}

// Plan is a generated workout plan. It is replaced wholesale on every
// successful generation and never edited by hand.
type Plan struct {
	PredictedTime string       `json:"predicted_time"`
	Plan          PlanSections `json:"plan"`
	Timestamp     time.Time    `json:"timestamp"`
}
