package httpjson

import (
	"encoding/json"
	"net/http/httptest"
	"testing"
)

func TestWrite(t *testing.T) {
	rec := httptest.NewRecorder()
	Write(rec, 200, map[string]any{"id": "u1"})

	if rec.Code != 200 {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != ContentType {
		t.Errorf("Content-Type = %q, want %q", ct, ContentType)
	}

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("body is not JSON: %v", err)
	}
	if body["id"] != "u1" {
		t.Errorf("id = %v, want u1", body["id"])
	}
}

func TestWriteFieldErrors(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteFieldErrors(rec, map[string][]string{"email": {"missing data for required field"}})

	if rec.Code != 422 {
		t.Errorf("status = %d, want 422", rec.Code)
	}

	var body ErrorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("body is not JSON: %v", err)
	}
	if body.Code != "validation_error" {
		t.Errorf("code = %q, want validation_error", body.Code)
	}
	if len(body.Fields["email"]) != 1 {
		t.Errorf("fields[email] = %v, want one message", body.Fields["email"])
	}
}

func TestWriteNotFound(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteNotFound(rec, "document not found")

	if rec.Code != 404 {
		t.Errorf("status = %d, want 404", rec.Code)
	}

	var body ErrorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("body is not JSON: %v", err)
	}
	if body.Error != "document not found" {
		t.Errorf("error = %q", body.Error)
	}
}
