// Package envutil parses MEDIASIFT_* environment overrides into config fields.
// An unset or empty variable leaves the destination untouched.
package envutil

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Float parses a float64 from an environment variable
func Float(key string, dest *float64) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
}

// OptionalFloat parses a float64 into a pointer field, allocating it when set
func OptionalFloat(key string, dest **float64) error {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = &parsed
	return nil
}

// Int parses an int from an environment variable
func Int(key string, dest *int) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
}

// Bool parses a bool from an environment variable
func Bool(key string, dest *bool) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
}

// String copies a string environment variable
func String(key string, dest *string) {
	if value := os.Getenv(key); value != "" {
		*dest = value
	}
}

// Duration parses a duration from an environment variable. Plain integers
// are multiplied by unit (e.g. "30" with unit=time.Second); anything else
// goes through time.ParseDuration ("1m30s").
func Duration(key string, dest *time.Duration, unit time.Duration) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	if n, err := strconv.Atoi(value); err == nil {
		*dest = time.Duration(n) * unit
		return nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
}
