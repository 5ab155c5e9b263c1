package schema

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Validator checks inbound events against the canonical schema before they
// are buffered for dispatch.
type Validator struct {
	validate  *validator.Validate
	maxAge    time.Duration
	maxFuture time.Duration
}

// ValidatorConfig holds configuration for the validator.
type ValidatorConfig struct {
	MaxAge    time.Duration
	MaxFuture time.Duration
}

// DefaultValidatorConfig returns the default validator configuration.
func DefaultValidatorConfig() ValidatorConfig {
	return ValidatorConfig{
		MaxAge:    24 * time.Hour,
		MaxFuture: 5 * time.Minute,
	}
}

// NewValidator creates a new Validator with default configuration.
func NewValidator() *Validator {
	return NewValidatorWithConfig(DefaultValidatorConfig())
}

// NewValidatorWithConfig creates a new Validator with the given configuration.
func NewValidatorWithConfig(cfg ValidatorConfig) *Validator {
	return &Validator{
		validate:  validator.New(),
		maxAge:    cfg.MaxAge,
		maxFuture: cfg.MaxFuture,
	}
}

// Validate checks an event. Returns an error describing the first problem.
func (v *Validator) Validate(event *Event) error {
	if event == nil {
		return fmt.Errorf("event is nil")
	}

	if err := v.validate.Struct(event); err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}

	if !event.Type.IsValid() {
		return fmt.Errorf("unknown event type %q", event.Type)
	}

	switch event.Type {
	case EventMessage:
		if event.Message == nil {
			return fmt.Errorf("message event without message payload")
		}
	}

	now := time.Now()
	if event.Timestamp.Before(now.Add(-v.maxAge)) {
		return fmt.Errorf("event too old: %s", event.Timestamp.Format(time.RFC3339))
	}
	if event.Timestamp.After(now.Add(v.maxFuture)) {
		return fmt.Errorf("event timestamp in the future: %s", event.Timestamp.Format(time.RFC3339))
	}

	return nil
}
