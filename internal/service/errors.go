package service

import (
	"errors"
	"fmt"

	"github.com/ifuryst/quillflow/internal/models"
)

// ConfigurationError means a prerequisite such as the style guide is missing.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "configuration error: " + e.Reason
}

// QuotaExceededError is returned before any AI call when the monthly ceiling is reached.
type QuotaExceededError struct {
	Kind  models.QuotaKind
	Limit int
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("monthly %s quota of %d exhausted", e.Kind, e.Limit)
}

// GenerationError wraps failures of the AI collaborator, including unparseable output.
type GenerationError struct {
	Operation string
	Err       error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation failed for %s: %v", e.Operation, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

type NotFoundError struct {
	Entity string
	ID     uint
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Entity, e.ID)
}

// EnrichmentWarning is logged, never returned to callers.
type EnrichmentWarning struct {
	Stage string
	Err   error
}

func (e *EnrichmentWarning) Error() string {
	return fmt.Sprintf("enrichment stage %s failed: %v", e.Stage, e.Err)
}

func (e *EnrichmentWarning) Unwrap() error { return e.Err }

// LicenseCheckError is a transport failure while talking to the license authority.
type LicenseCheckError struct {
	Err error
}

func (e *LicenseCheckError) Error() string {
	return fmt.Sprintf("license check failed: %v", e.Err)
}

func (e *LicenseCheckError) Unwrap() error { return e.Err }

// IsUserFacing reports whether err should be shown to an interactive caller
// as-is rather than as a generic failure.
func IsUserFacing(err error) bool {
	var cfgErr *ConfigurationError
	var quotaErr *QuotaExceededError
	var notFound *NotFoundError
	return errors.As(err, &cfgErr) || errors.As(err, &quotaErr) || errors.As(err, &notFound)
}
