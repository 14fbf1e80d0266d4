package errors

import (
	"errors"
	"fmt"
)

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Error codes per failure class. Callers branch on these rather than on
// message text.
const (
	CodeValidation    = "E100"
	CodeNotFound      = "E200"
	CodeQuotaExceeded = "E300"
	CodeConflict      = "E400"
	CodeNotEligible   = "E500"
	CodeDatabase      = "E600"
	CodeCache         = "E700"
)

// QuotaFigures carries the remaining-quota numbers attached to a
// QuotaExceeded error so callers can render actionable feedback.
type QuotaFigures struct {
	DailyGiven           int `json:"daily_given"`
	DailyRemaining       int `json:"daily_remaining"`
	RestaurantGivenToday int `json:"restaurant_given_today"`
}

type AppError struct {
	Code        string
	Message     string
	UserMessage string
	Severity    Severity
	Retryable   bool
	Quota       *QuotaFigures
	cause       error
}

func (e *AppError) Error() string {
	if e == nil {
		return ""
	}

	return e.Message
}

func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}

	return e.cause
}

func (e *AppError) Cause() error {
	return e.Unwrap()
}

func NewValidationError(msg string) *AppError {
	return &AppError{
		Code:        CodeValidation,
		Message:     msg,
		UserMessage: fmt.Sprintf("Invalid input. %s", msg),
		Severity:    SeverityLow,
		Retryable:   false,
		cause:       nil,
	}
}

func NewNotFoundError(entity string, id any) *AppError {
	return &AppError{
		Code:        CodeNotFound,
		Message:     fmt.Sprintf("%s %v not found", entity, id),
		UserMessage: fmt.Sprintf("Unknown %s", entity),
		Severity:    SeverityLow,
		Retryable:   false,
		cause:       nil,
	}
}

func NewQuotaExceededError(msg string, figures QuotaFigures) *AppError {
	return &AppError{
		Code:        CodeQuotaExceeded,
		Message:     msg,
		UserMessage: fmt.Sprintf("%s You have %d coins left today.", msg, figures.DailyRemaining),
		Severity:    SeverityLow,
		Retryable:   false,
		Quota:       &figures,
		cause:       nil,
	}
}

// NewConflictError marks a write that lost a race with a concurrent one.
// Retryable: a single retry with fresh quota figures is safe.
func NewConflictError(msg string, cause error) *AppError {
	return &AppError{
		Code:        CodeConflict,
		Message:     msg,
		UserMessage: "Another request finished first, please try again",
		Severity:    SeverityMedium,
		Retryable:   true,
		cause:       cause,
	}
}

func NewNotEligibleError(msg string) *AppError {
	return &AppError{
		Code:        CodeNotEligible,
		Message:     msg,
		UserMessage: "You are not eligible for the physical coin yet",
		Severity:    SeverityLow,
		Retryable:   false,
		cause:       nil,
	}
}

func NewDatabaseError(cause error) *AppError {
	var underlyingMsg string
	if cause != nil {
		underlyingMsg = cause.Error()
	}

	return &AppError{
		Code:        CodeDatabase,
		Message:     fmt.Sprintf("Database error: %s", underlyingMsg),
		UserMessage: "Temporary problem, please try again later",
		Severity:    SeverityHigh,
		Retryable:   true,
		cause:       cause,
	}
}

func NewCacheError(cause error) *AppError {
	var underlyingMsg string
	if cause != nil {
		underlyingMsg = cause.Error()
	}

	return &AppError{
		Code:        CodeCache,
		Message:     fmt.Sprintf("Cache error: %s", underlyingMsg),
		UserMessage: "Temporary problem, please try again later",
		Severity:    SeverityMedium,
		Retryable:   true,
		cause:       cause,
	}
}

// HasCode reports whether err is an AppError with the given code.
func HasCode(err error, code string) bool {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr != nil {
		return appErr.Code == code
	}

	return false
}

func IsNotFound(err error) bool      { return HasCode(err, CodeNotFound) }
func IsQuotaExceeded(err error) bool { return HasCode(err, CodeQuotaExceeded) }
func IsConflict(err error) bool      { return HasCode(err, CodeConflict) }
func IsNotEligible(err error) bool   { return HasCode(err, CodeNotEligible) }
func IsValidation(err error) bool    { return HasCode(err, CodeValidation) }
