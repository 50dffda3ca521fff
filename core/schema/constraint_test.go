package schema

import (
	"strings"
	"testing"
)

func TestCheckConstraint(t *testing.T) {
	cases := []struct {
		name       string
		constraint Constraint
		value      any
		wantMsg    string
	}{
		{"min pass", Constraint{Type: ConstraintMin, Value: 3}, int64(5), ""},
		{"min fail", Constraint{Type: ConstraintMin, Value: 3}, int64(2), "must be at least 3"},
		{"min boundary", Constraint{Type: ConstraintMin, Value: 3}, int64(3), ""},
		{"max pass", Constraint{Type: ConstraintMax, Value: 10}, 9.5, ""},
		{"max fail", Constraint{Type: ConstraintMax, Value: 10}, 10.5, "must be at most 10"},
		{"min_length pass", Constraint{Type: ConstraintMinLength, Value: 3}, "abc", ""},
		{"min_length fail", Constraint{Type: ConstraintMinLength, Value: 3}, "ab", "must be at least 3 characters"},
		{"max_length fail", Constraint{Type: ConstraintMaxLength, Value: 3}, "abcd", "must be at most 3 characters"},
		{"pattern pass", Constraint{Type: ConstraintPattern, Value: "^[a-z]+$"}, "abc", ""},
		{"pattern fail", Constraint{Type: ConstraintPattern, Value: "^[a-z]+$"}, "Abc", "does not match required pattern"},
		{"not_empty pass", Constraint{Type: ConstraintNotEmpty}, "x", ""},
		{"not_empty fail on whitespace", Constraint{Type: ConstraintNotEmpty}, "   ", "must not be empty"},
		{"one_of pass", Constraint{Type: ConstraintOneOf, Value: []any{"a", "b"}}, "a", ""},
		{"one_of fail", Constraint{Type: ConstraintOneOf, Value: []any{"a", "b"}}, "c", "must be one of: a, b"},
		{"custom message", Constraint{Type: ConstraintMin, Value: 18, Message: "too young"}, int64(12), "too young"},
		{"min skips non-numeric", Constraint{Type: ConstraintMin, Value: 3}, "abc", ""},
		{"min_length skips non-string", Constraint{Type: ConstraintMinLength, Value: 3}, int64(7), ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := CheckConstraint(tc.value, tc.constraint)
			if got != tc.wantMsg {
				t.Errorf("CheckConstraint(%v, %s) = %q, want %q", tc.value, tc.constraint.Type, got, tc.wantMsg)
			}
		})
	}
}

func TestConstraintValidate(t *testing.T) {
	cases := []struct {
		name       string
		constraint Constraint
		wantErr    string
	}{
		{"valid min", Constraint{Type: ConstraintMin, Value: 3}, ""},
		{"min with non-numeric value", Constraint{Type: ConstraintMin, Value: "x"}, "not numeric"},
		{"valid pattern", Constraint{Type: ConstraintPattern, Value: "^a+$"}, ""},
		{"pattern with bad regex", Constraint{Type: ConstraintPattern, Value: "["}, "pattern"},
		{"pattern with non-string value", Constraint{Type: ConstraintPattern, Value: 7}, "must be a string"},
		{"one_of without values", Constraint{Type: ConstraintOneOf, Value: []any{}}, "non-empty list"},
		{"unknown type", Constraint{Type: "frobnicate"}, "unknown constraint type"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.constraint.Validate()
			if tc.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() returned error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("Validate() succeeded, want error")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("Validate() error = %q, want it to contain %q", err.Error(), tc.wantErr)
			}
		})
	}
}
