package schema

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/albmarin/umongo/core/i18n"
)

// Constraint is a declarative validation rule for a field. Constraints
// run after type coercion, against the object-world value.
type Constraint struct {
	// Type is the constraint type (min, max, min_length, max_length,
	// pattern, not_empty, one_of).
	Type ConstraintType `yaml:"type" json:"type"`

	// Value is the constraint parameter (number, regex pattern, list).
	Value any `yaml:"value" json:"value"`

	// Message is the custom error message (optional).
	Message string `yaml:"message,omitempty" json:"message,omitempty"`
}

// ConstraintType identifies the type of constraint.
type ConstraintType string

const (
	// Numeric constraints
	ConstraintMin ConstraintType = "min" // Minimum numeric value
	ConstraintMax ConstraintType = "max" // Maximum numeric value

	// String constraints
	ConstraintMinLength ConstraintType = "min_length" // Minimum string length
	ConstraintMaxLength ConstraintType = "max_length" // Maximum string length
	ConstraintPattern   ConstraintType = "pattern"    // Regex pattern match

	// Custom constraints
	ConstraintNotEmpty ConstraintType = "not_empty" // String must not be empty/whitespace
	ConstraintOneOf    ConstraintType = "one_of"    // Value must be one of list
)

// Validate checks the constraint's own declaration, so malformed
// parameters fail at compile time instead of being silently skipped at
// runtime.
func (c Constraint) Validate() error {
	switch c.Type {
	case ConstraintMin, ConstraintMax:
		if _, err := toFloat64(c.Value); err != nil {
			return fmt.Errorf("constraint %s: value %v is not numeric", c.Type, c.Value)
		}
	case ConstraintMinLength, ConstraintMaxLength:
		if _, err := toInt(c.Value); err != nil {
			return fmt.Errorf("constraint %s: value %v is not an integer", c.Type, c.Value)
		}
	case ConstraintPattern:
		pattern, ok := c.Value.(string)
		if !ok {
			return fmt.Errorf("constraint pattern: value must be a string")
		}
		if _, err := regexp.Compile(pattern); err != nil {
			return fmt.Errorf("constraint pattern: %w", err)
		}
	case ConstraintNotEmpty:
	case ConstraintOneOf:
		if len(oneOfValues(c.Value)) == 0 {
			return fmt.Errorf("constraint one_of: value must be a non-empty list")
		}
	default:
		return fmt.Errorf("unknown constraint type %q", c.Type)
	}
	return nil
}

// CheckConstraint validates a value against a single constraint. It
// returns the translated failure message, or "" when the value passes.
// This is a pure function.
func CheckConstraint(value any, c Constraint) string {
	switch c.Type {
	case ConstraintMin:
		return checkMin(value, c)
	case ConstraintMax:
		return checkMax(value, c)
	case ConstraintMinLength:
		return checkMinLength(value, c)
	case ConstraintMaxLength:
		return checkMaxLength(value, c)
	case ConstraintPattern:
		return checkPattern(value, c)
	case ConstraintNotEmpty:
		return checkNotEmpty(value, c)
	case ConstraintOneOf:
		return checkOneOf(value, c)
	default:
		return ""
	}
}

func checkMin(value any, c Constraint) string {
	min, err := toFloat64(c.Value)
	if err != nil {
		return ""
	}
	val, err := toFloat64(value)
	if err != nil {
		return ""
	}
	if val < min {
		if c.Message != "" {
			return i18n.T(c.Message)
		}
		return i18n.Tf("must be at least %v", min)
	}
	return ""
}

func checkMax(value any, c Constraint) string {
	max, err := toFloat64(c.Value)
	if err != nil {
		return ""
	}
	val, err := toFloat64(value)
	if err != nil {
		return ""
	}
	if val > max {
		if c.Message != "" {
			return i18n.T(c.Message)
		}
		return i18n.Tf("must be at most %v", max)
	}
	return ""
}

func checkMinLength(value any, c Constraint) string {
	minLen, err := toInt(c.Value)
	if err != nil {
		return ""
	}
	str, ok := value.(string)
	if !ok {
		return ""
	}
	if len(str) < minLen {
		if c.Message != "" {
			return i18n.T(c.Message)
		}
		return i18n.Tf("must be at least %d characters", minLen)
	}
	return ""
}

func checkMaxLength(value any, c Constraint) string {
	maxLen, err := toInt(c.Value)
	if err != nil {
		return ""
	}
	str, ok := value.(string)
	if !ok {
		return ""
	}
	if len(str) > maxLen {
		if c.Message != "" {
			return i18n.T(c.Message)
		}
		return i18n.Tf("must be at most %d characters", maxLen)
	}
	return ""
}

func checkPattern(value any, c Constraint) string {
	pattern, ok := c.Value.(string)
	if !ok {
		return ""
	}
	str, ok := value.(string)
	if !ok {
		return ""
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return ""
	}
	if !re.MatchString(str) {
		if c.Message != "" {
			return i18n.T(c.Message)
		}
		return i18n.T("does not match required pattern")
	}
	return ""
}

func checkNotEmpty(value any, c Constraint) string {
	str, ok := value.(string)
	if !ok {
		return ""
	}
	if strings.TrimSpace(str) == "" {
		if c.Message != "" {
			return i18n.T(c.Message)
		}
		return i18n.T("must not be empty")
	}
	return ""
}

func checkOneOf(value any, c Constraint) string {
	allowed := oneOfValues(c.Value)
	if len(allowed) == 0 {
		return ""
	}
	strVal := fmt.Sprintf("%v", value)
	for _, v := range allowed {
		if fmt.Sprintf("%v", v) == strVal {
			return ""
		}
	}
	if c.Message != "" {
		return i18n.T(c.Message)
	}
	options := make([]string, 0, len(allowed))
	for _, v := range allowed {
		options = append(options, fmt.Sprintf("%v", v))
	}
	return i18n.Tf("must be one of: %s", strings.Join(options, ", "))
}

// oneOfValues widens the one_of parameter to []any.
func oneOfValues(v any) []any {
	switch vals := v.(type) {
	case []any:
		return vals
	case []string:
		out := make([]any, len(vals))
		for i, s := range vals {
			out[i] = s
		}
		return out
	default:
		return nil
	}
}

// toFloat64 converts various numeric types to float64.
func toFloat64(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case string:
		return strconv.ParseFloat(n, 64)
	default:
		return 0, fmt.Errorf("cannot convert %T to float64", v)
	}
}

// toInt converts various types to int.
func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case int32:
		return int(n), nil
	case float64:
		return int(n), nil
	case string:
		return strconv.Atoi(n)
	default:
		return 0, fmt.Errorf("cannot convert %T to int", v)
	}
}
