package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"
)

// ValidationError represents a single configuration validation
// failure.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

var (
	validateOnce sync.Once
	validatorInst *validator.Validate
)

func structValidator() *validator.Validate {
	validateOnce.Do(func() {
		validatorInst = validator.New()
	})
	return validatorInst
}

// Validate checks the configuration for errors: struct-tag validation
// via go-playground/validator for per-field shape, followed by
// hand-written cross-field invariants the tags cannot express.
func Validate(cfg *Config) error {
	var errs []error

	if err := structValidator().Struct(cfg); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range verrs {
				errs = append(errs, ValidationError{
					Field:   fe.Namespace(),
					Message: fe.Tag(),
				})
			}
		} else {
			errs = append(errs, err)
		}
	}

	if len(cfg.Services) == 0 {
		errs = append(errs, ValidationError{
			Field:   "services",
			Message: "at least one service must be defined",
		})
	}

	seen := make(map[string]bool, len(cfg.Services))
	for i, svc := range cfg.Services {
		prefix := fmt.Sprintf("services[%d]", i)

		if seen[svc.Name] {
			errs = append(errs, ValidationError{
				Field:   prefix + ".name",
				Message: fmt.Sprintf("duplicate service name: %s", svc.Name),
			})
		}
		seen[svc.Name] = true

		// Cross-field invariant validator tags cannot express: a health
		// endpoint is meaningless without a port to probe it on.
		if svc.HealthEndpoint != "" && svc.Port == nil {
			errs = append(errs, ValidationError{
				Field:   prefix + ".health_endpoint",
				Message: "health endpoint requires a port",
			})
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	return Validate(c)
}
