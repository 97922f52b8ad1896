package config

import (
	"fmt"
	"slices"
	"strings"

	"github.com/blackms/claimflow/internal/logging"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "stealing.gracePeriodMinutes")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// ValidDrivers returns the list of valid storage drivers
func ValidDrivers() []string {
	return []string{DriverMemory, DriverSQLite, DriverPostgres, DriverPgx}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateStealing()...)
	errors = append(errors, c.validateLoadBalance()...)
	errors = append(errors, c.validateStorage()...)
	errors = append(errors, c.validateEvents()...)
	errors = append(errors, c.validateLogging()...)
	errors = append(errors, c.validateMaintenance()...)

	return errors
}

func positive(field string, v int) []ValidationError {
	if v > 0 {
		return nil
	}
	return []ValidationError{{Field: field, Value: v, Message: "must be positive"}}
}

func nonNegative(field string, v int) []ValidationError {
	if v >= 0 {
		return nil
	}
	return []ValidationError{{Field: field, Value: v, Message: "must be non-negative"}}
}

func percent(field string, v float64) []ValidationError {
	if v >= 0 && v <= 100 {
		return nil
	}
	return []ValidationError{{Field: field, Value: v, Message: "must be between 0 and 100"}}
}

func (c *Config) validateStealing() []ValidationError {
	var errors []ValidationError
	s := c.Stealing

	errors = append(errors, positive("stealing.staleThresholdMinutes", s.StaleThresholdMinutes)...)
	errors = append(errors, positive("stealing.blockedThresholdMinutes", s.BlockedThresholdMinutes)...)
	errors = append(errors, nonNegative("stealing.gracePeriodMinutes", s.GracePeriodMinutes)...)
	errors = append(errors, nonNegative("stealing.overloadThreshold", s.OverloadThreshold)...)
	errors = append(errors, positive("stealing.contestWindowMinutes", s.ContestWindowMinutes)...)
	errors = append(errors, percent("stealing.minProgressToProtect", float64(s.MinProgressToProtect))...)

	for i, rule := range s.CrossTypeStealRules {
		if strings.TrimSpace(rule[0]) == "" || strings.TrimSpace(rule[1]) == "" {
			errors = append(errors, ValidationError{
				Field:   fmt.Sprintf("stealing.crossTypeStealRules[%d]", i),
				Value:   rule,
				Message: "both agent types are required",
			})
		}
	}

	return errors
}

func (c *Config) validateLoadBalance() []ValidationError {
	var errors []ValidationError
	lb := c.LoadBalance

	errors = append(errors, percent("loadbalance.overloadThreshold", lb.OverloadThreshold)...)
	errors = append(errors, percent("loadbalance.underloadThreshold", lb.UnderloadThreshold)...)
	errors = append(errors, percent("loadbalance.rebalanceThreshold", lb.RebalanceThreshold)...)
	errors = append(errors, percent("loadbalance.maxMovableProgress", float64(lb.MaxMovableProgress))...)
	errors = append(errors, nonNegative("loadbalance.maxMovesPerRun", lb.MaxMovesPerRun)...)

	if lb.OverloadThreshold > 0 && lb.UnderloadThreshold >= lb.OverloadThreshold {
		errors = append(errors, ValidationError{
			Field:   "loadbalance.underloadThreshold",
			Value:   lb.UnderloadThreshold,
			Message: fmt.Sprintf("must be below overloadThreshold (%v)", lb.OverloadThreshold),
		})
	}

	return errors
}

func (c *Config) validateStorage() []ValidationError {
	var errors []ValidationError

	switch c.Storage.Driver {
	case DriverMemory:
	case DriverSQLite:
		if c.Storage.Path == "" {
			errors = append(errors, ValidationError{
				Field:   "storage.path",
				Value:   c.Storage.Path,
				Message: "is required for the sqlite driver",
			})
		}
	case DriverPostgres, DriverPgx:
		if c.Storage.DSN == "" {
			errors = append(errors, ValidationError{
				Field:   "storage.dsn",
				Value:   c.Storage.DSN,
				Message: fmt.Sprintf("is required for the %s driver", c.Storage.Driver),
			})
		}
	default:
		errors = append(errors, ValidationError{
			Field:   "storage.driver",
			Value:   c.Storage.Driver,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidDrivers(), ", ")),
		})
	}

	return errors
}

func (c *Config) validateEvents() []ValidationError {
	return positive("events.historySize", c.Events.HistorySize)
}

func (c *Config) validateLogging() []ValidationError {
	if c.Logging.Level == "" || logging.ValidLevel(c.Logging.Level) {
		return nil
	}
	return []ValidationError{{
		Field:   "logging.level",
		Value:   c.Logging.Level,
		Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
	}}
}

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

func (c *Config) validateMaintenance() []ValidationError {
	var errors []ValidationError
	errors = append(errors, positive("maintenance.intervalSeconds", c.Maintenance.IntervalSeconds)...)
	errors = append(errors, nonNegative("maintenance.expireAfterMinutes", c.Maintenance.ExpireAfterMinutes)...)
	return errors
}

// IsValidDriver checks if the given storage driver is supported
func IsValidDriver(driver string) bool {
	return slices.Contains(ValidDrivers(), driver)
}
