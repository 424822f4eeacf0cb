package config

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}
	msg := fmt.Sprintf("%d validation errors:", len(e))
	for _, err := range e {
		msg += "\n  - " + err.Error()
	}
	return msg
}

// Validate checks the configuration for errors.
// Returns nil if valid, or ValidationErrors if invalid.
func Validate(cfg Config) error {
	var errs ValidationErrors

	if cfg.DatabaseURL == "" {
		errs = append(errs, ValidationError{
			Field:   "DATABASE_URL",
			Message: "required",
		})
	}
	if cfg.TTSServiceURL == "" {
		errs = append(errs, ValidationError{
			Field:   "TTS_SERVICE_URL",
			Message: "required",
		})
	}
	if cfg.PlaybackServiceURL == "" {
		errs = append(errs, ValidationError{
			Field:   "PLAYBACK_SERVICE_URL",
			Message: "required",
		})
	}
	if cfg.DeviceServiceURL == "" {
		errs = append(errs, ValidationError{
			Field:   "DEVICE_SERVICE_URL",
			Message: "required",
		})
	}

	if cfg.TickIntervalStr != "" {
		d, err := time.ParseDuration(cfg.TickIntervalStr)
		if err != nil {
			errs = append(errs, ValidationError{
				Field:   "TICK_INTERVAL",
				Message: fmt.Sprintf("invalid duration: %v", err),
			})
		} else if d <= 0 {
			errs = append(errs, ValidationError{
				Field:   "TICK_INTERVAL",
				Message: "must be positive",
			})
		}
	}

	if cfg.OneTimePastPolicy != "" && cfg.OneTimePastPolicy != "reject" && cfg.OneTimePastPolicy != "allow" {
		errs = append(errs, ValidationError{
			Field:   "ONE_TIME_PAST_POLICY",
			Message: fmt.Sprintf("must be 'reject' or 'allow', got %q", cfg.OneTimePastPolicy),
		})
	}

	if cfg.DesignatedRecipient != "" {
		if _, err := uuid.Parse(cfg.DesignatedRecipient); err != nil {
			errs = append(errs, ValidationError{
				Field:   "DESIGNATED_RECIPIENT",
				Message: fmt.Sprintf("invalid UUID: %v", err),
			})
		}
	}

	if _, err := time.LoadLocation(cfg.Timezone); err != nil {
		errs = append(errs, ValidationError{
			Field:   "TIMEZONE",
			Message: fmt.Sprintf("unknown timezone: %v", err),
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}
