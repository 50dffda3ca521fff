package schema

import (
	"errors"
	"testing"
)

func TestDefinitionError(t *testing.T) {
	err := DefinitionErrorf("User", "parent %s has not been compiled", "Base")
	want := "definition error: template User: parent Base has not been compiled"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}

	bare := &DefinitionError{Reason: "nil template"}
	if bare.Error() != "definition error: nil template" {
		t.Errorf("Error() = %q", bare.Error())
	}
}

func TestFieldErrors_MergeAt(t *testing.T) {
	fe := FieldErrors{}
	fe.MergeAt("address", FieldErrors{
		"":     {"not a valid document"},
		"city": {"not a valid string"},
	})

	if got := fe["address"]; len(got) != 1 || got[0] != "not a valid document" {
		t.Errorf("fe[address] = %v", got)
	}
	if got := fe["address.city"]; len(got) != 1 || got[0] != "not a valid string" {
		t.Errorf("fe[address.city] = %v", got)
	}
}

func TestValidationError_AggregatesAndSorts(t *testing.T) {
	ve := NewValidationError()
	ve.Add("nick", "required field")
	ve.Add("age", "must be at least 0", "not a valid integer")
	ve.AddSchema("passwords do not match")

	want := "validation failed: _schema: passwords do not match; age: must be at least 0; not a valid integer; nick: required field"
	if ve.Error() != want {
		t.Errorf("Error() = %q\nwant %q", ve.Error(), want)
	}
}

func TestValidationError_OrNil(t *testing.T) {
	if err := NewValidationError().OrNil(); err != nil {
		t.Errorf("empty aggregate OrNil() = %v, want nil", err)
	}

	ve := NewValidationError()
	ve.Add("x", "boom")
	err := ve.OrNil()
	if err == nil {
		t.Fatal("OrNil() = nil with collected errors")
	}
	var got *ValidationError
	if !errors.As(err, &got) {
		t.Fatalf("OrNil() returned %T", err)
	}
}
