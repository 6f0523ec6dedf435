// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"strings"
)

// Validator validates a resolved Config against invariants the loader
// doesn't enforce on its own.
type Validator struct{}

// NewValidator creates a new config validator.
func NewValidator() *Validator {
	return &Validator{}
}

// ValidationError aggregates every field failure found in one pass.
type ValidationError struct {
	Errors []FieldError
}

// FieldError represents a single field validation failure.
type FieldError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	var msgs []string
	for _, fe := range e.Errors {
		msgs = append(msgs, fmt.Sprintf("%s: %s", fe.Field, fe.Message))
	}
	return strings.Join(msgs, "; ")
}

// IsEmpty returns true if there are no validation errors.
func (e *ValidationError) IsEmpty() bool {
	return len(e.Errors) == 0
}

// Add adds a field error.
func (e *ValidationError) Add(field, message string) {
	e.Errors = append(e.Errors, FieldError{Field: field, Message: message})
}

// Validate checks configuration validity.
func (v *Validator) Validate(cfg *Config) error {
	errs := &ValidationError{}

	v.validateInstances(cfg, errs)
	v.validateLogging(cfg, errs)
	v.validateTransport(cfg, errs)
	v.validateArtifacts(cfg, errs)

	if errs.IsEmpty() {
		return nil
	}
	return errs
}

func (v *Validator) validateInstances(cfg *Config, errs *ValidationError) {
	if cfg.Instances.Max <= 0 {
		errs.Add("instances.max", "must be positive")
	}
}

func (v *Validator) validateLogging(cfg *Config, errs *ValidationError) {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if cfg.Logging.Level != "" && !validLevels[cfg.Logging.Level] {
		errs.Add("logging.level", fmt.Sprintf("invalid level '%s', must be one of: debug, info, warn, error", cfg.Logging.Level))
	}
}

func (v *Validator) validateTransport(cfg *Config, errs *ValidationError) {
	if cfg.Transport.Mode != "" && cfg.Transport.Mode != "http" && cfg.Transport.Mode != "stdio" {
		errs.Add("transport.mode", fmt.Sprintf("invalid mode '%s', must be 'http' or 'stdio'", cfg.Transport.Mode))
	}
	if cfg.Transport.Port < 0 || cfg.Transport.Port > 65535 {
		errs.Add("transport.port", "must be between 0 and 65535")
	}
}

func (v *Validator) validateArtifacts(cfg *Config, errs *ValidationError) {
	if cfg.Artifacts.RetentionDays < 0 {
		errs.Add("artifacts.retention_days", "must be zero or positive")
	}
}
