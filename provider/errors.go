package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"

	apperrors "converso/backend/pkg/errors"
)

// ErrorCategory classifies a dispatch failure for reporting
type ErrorCategory string

const (
	CategoryUnavailable   ErrorCategory = "unavailable"
	CategoryTimeout       ErrorCategory = "timeout"
	CategoryAuth          ErrorCategory = "auth"
	CategoryModelNotFound ErrorCategory = "model_not_found"
	CategoryUnknown       ErrorCategory = "unknown"
)

// Classify pattern-matches a raw provider error into a category
func Classify(err error) ErrorCategory {
	if err == nil {
		return CategoryUnknown
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return CategoryTimeout
	}

	errStr := strings.ToLower(err.Error())

	switch {
	case strings.Contains(errStr, "context deadline exceeded"),
		strings.Contains(errStr, "timeout"):
		return CategoryTimeout

	case strings.Contains(errStr, "connection refused"),
		strings.Contains(errStr, "no such host"),
		strings.Contains(errStr, "service unavailable"),
		strings.Contains(errStr, "502"),
		strings.Contains(errStr, "503"),
		strings.Contains(errStr, "504"):
		return CategoryUnavailable

	case strings.Contains(errStr, "unauthorized"),
		strings.Contains(errStr, "invalid api key"),
		strings.Contains(errStr, "401"),
		strings.Contains(errStr, "403"):
		return CategoryAuth

	case strings.Contains(errStr, "model not found"),
		strings.Contains(errStr, "model_not_found"),
		strings.Contains(errStr, "does not exist"):
		return CategoryModelNotFound
	}

	return CategoryUnknown
}

// HumanMessage converts a category into the message stored on a failed
// assistant entry and shown to the end user
func HumanMessage(category ErrorCategory, providerName string) string {
	switch category {
	case CategoryTimeout:
		return fmt.Sprintf("The %s service took too long to respond. Please try again.", providerName)
	case CategoryUnavailable:
		return fmt.Sprintf("The %s service is currently unavailable. Please try again later.", providerName)
	case CategoryAuth:
		return fmt.Sprintf("The %s service rejected the configured credentials.", providerName)
	case CategoryModelNotFound:
		return "The requested model is not available. Please pick a different model."
	default:
		return "The AI service returned an unexpected error. Please try again."
	}
}

// WrapDispatchError converts a raw provider error into the AppError that
// the dispatch pipeline records and re-raises
func WrapDispatchError(err error, providerName string) *apperrors.AppError {
	category := Classify(err)
	message := HumanMessage(category, providerName)

	switch category {
	case CategoryTimeout, CategoryUnavailable:
		return apperrors.NewProviderUnavailableError(message).WithDetails(map[string]interface{}{
			"provider": providerName,
			"category": string(category),
		})
	case CategoryModelNotFound:
		return apperrors.NewBadRequestError("MODEL_NOT_FOUND", message).WithDetails(map[string]interface{}{
			"provider": providerName,
		})
	default:
		return apperrors.NewInternalServerError("PROVIDER_ERROR", message).WithDetails(map[string]interface{}{
			"provider": providerName,
			"category": string(category),
		})
	}
}
