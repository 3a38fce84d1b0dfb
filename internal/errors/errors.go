// internal/errors/errors.go
package appErrors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNoAccountAvailable means every sending account of the tenant is inactive or at its
// daily cap. Callers defer the work; it never consumes a send attempt.
var ErrNoAccountAvailable = errors.New("no sending account available")

// ErrNoVariationsConfigured is returned when a step has no variations to pick from.
var ErrNoVariationsConfigured = errors.New("no variations configured for step")

// NotFoundError is returned by repositories when a record does not exist for the tenant.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s with ID %s not found", e.Resource, e.ID)
}

func NewNotFound(resource, id string) error {
	return &NotFoundError{Resource: resource, ID: id}
}

// Helper constructors
func NewCampaignNotFound(id string) error { return NewNotFound("campaign", id) }
func NewContactNotFound(id string) error  { return NewNotFound("contact", id) }
func NewAccountNotFound(id string) error  { return NewNotFound("sending account", id) }
func NewTenantNotFound(id string) error   { return NewNotFound("tenant", id) }

func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// ValidationError carries every problem found so the caller can fix them in one pass.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	if len(e.Problems) == 0 {
		return "validation failed"
	}
	return "validation failed: " + strings.Join(e.Problems, "; ")
}

func NewValidationError(problems ...string) error {
	return &ValidationError{Problems: problems}
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// ConflictError is returned when a unique identity (e.g. contact email) already exists.
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string { return e.Message }

func NewConflict(format string, args ...any) error {
	return &ConflictError{Message: fmt.Sprintf(format, args...)}
}

// SubscriptionLimitError is surfaced immediately and never retried.
type SubscriptionLimitError struct {
	Plan    string
	Limit   string
	Allowed int
	Current int
}

func (e *SubscriptionLimitError) Error() string {
	return fmt.Sprintf("subscription limit exceeded: plan %q allows %d %s (current %d)", e.Plan, e.Allowed, e.Limit, e.Current)
}

func NewSubscriptionLimit(plan, limit string, allowed, current int) error {
	return &SubscriptionLimitError{Plan: plan, Limit: limit, Allowed: allowed, Current: current}
}

func IsSubscriptionLimit(err error) bool {
	var se *SubscriptionLimitError
	return errors.As(err, &se)
}
