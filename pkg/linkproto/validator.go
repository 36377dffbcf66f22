// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package linkproto

import (
	"fmt"
	"strconv"
)

// AnomalyType represents different kinds of suspicious reading values
type AnomalyType int

const (
	AnomalyEmptyValue AnomalyType = iota
	AnomalyNonNumeric
	AnomalyOutOfRange
)

// String returns a short name for the anomaly
func (a AnomalyType) String() string {
	switch a {
	case AnomalyEmptyValue:
		return "empty_value"
	case AnomalyNonNumeric:
		return "non_numeric"
	case AnomalyOutOfRange:
		return "out_of_range"
	default:
		return "unknown"
	}
}

// Sensor ranges
const (
	PhMin  = 0.0
	PhMax  = 14.0
	PpmMin = 0.0
)

// ValidationError describes a suspicious value. Values are stored as received
// regardless; validation only feeds logs and statistics.
type ValidationError struct {
	Type    AnomalyType
	Message string
	Details map[string]interface{}
}

// Error implements the error interface
func (v *ValidationError) Error() string {
	return v.Message
}

// ValidateValue checks a reading value for its category.
// Returns a slice of validation errors (empty if the value looks sane).
func ValidateValue(category Category, value string) []ValidationError {
	if value == "" {
		return []ValidationError{{
			Type:    AnomalyEmptyValue,
			Message: fmt.Sprintf("%s reading has no value", category),
			Details: map[string]interface{}{"category": string(category)},
		}}
	}

	n, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return []ValidationError{{
			Type:    AnomalyNonNumeric,
			Message: fmt.Sprintf("%s value %q is not numeric", category, value),
			Details: map[string]interface{}{"category": string(category), "value": value},
		}}
	}

	errors := []ValidationError{}
	switch category {
	case CategoryPh:
		if n < PhMin || n > PhMax {
			errors = append(errors, ValidationError{
				Type:    AnomalyOutOfRange,
				Message: fmt.Sprintf("pH=%g outside %g..%g", n, PhMin, PhMax),
				Details: map[string]interface{}{"value": n, "min": PhMin, "max": PhMax},
			})
		}
	case CategoryPpm:
		if n < PpmMin {
			errors = append(errors, ValidationError{
				Type:    AnomalyOutOfRange,
				Message: fmt.Sprintf("PPM=%g is negative", n),
				Details: map[string]interface{}{"value": n, "min": PpmMin},
			})
		}
	}
	return errors
}

// ValidateFrame validates the value carried by a reading frame
func ValidateFrame(f *Frame) []ValidationError {
	if !f.IsReading() {
		return nil
	}
	return ValidateValue(f.Category(), f.Value())
}
