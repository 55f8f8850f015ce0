package services

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrNotAuthenticated = errors.New("not authenticated")
)

const missingMeasurementsMessage = "Please enter your height, current weight, and target weight to generate a plan."

// ValidationError reports missing or invalid profile fields. No network call
// is made when it is returned.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// ParseError reports a completion that could not be turned into a plan. It is
// never retried.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse plan: %v", e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
