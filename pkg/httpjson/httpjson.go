// Package httpjson provides the JSON response envelope used by the web
// layer.
package httpjson

import (
	"encoding/json"
	"net/http"
)

// ContentType is the media type of every response body.
const ContentType = "application/json; charset=utf-8"

// ErrorBody is the error envelope. Fields carries per-field validation
// messages keyed by logical field name; the "_schema" key holds
// document-level messages.
type ErrorBody struct {
	Error  string              `json:"error"`
	Code   string              `json:"code,omitempty"`
	Fields map[string][]string `json:"fields,omitempty"`
}

// Page is the collection envelope.
type Page struct {
	Items  []map[string]any `json:"items"`
	Total  int64            `json:"total"`
	Limit  int              `json:"limit,omitempty"`
	Offset int              `json:"offset,omitempty"`
}

// Write encodes v as the response body with the given status.
func Write(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", ContentType)
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// WriteError writes an error envelope.
func WriteError(w http.ResponseWriter, status int, code, msg string) {
	Write(w, status, ErrorBody{Error: msg, Code: code})
}

// WriteFieldErrors writes a 422 envelope carrying per-field validation
// messages.
func WriteFieldErrors(w http.ResponseWriter, fields map[string][]string) {
	Write(w, http.StatusUnprocessableEntity, ErrorBody{
		Error:  "validation failed",
		Code:   "validation_error",
		Fields: fields,
	})
}

// WriteBadRequest is a convenience for 400 errors.
func WriteBadRequest(w http.ResponseWriter, msg string) {
	WriteError(w, http.StatusBadRequest, "bad_request", msg)
}

// WriteNotFound is a convenience for 404 errors.
func WriteNotFound(w http.ResponseWriter, msg string) {
	WriteError(w, http.StatusNotFound, "not_found", msg)
}

// WriteInternal is a convenience for 500 errors.
func WriteInternal(w http.ResponseWriter, msg string) {
	if msg == "" {
		msg = "an internal error occurred"
	}
	WriteError(w, http.StatusInternalServerError, "internal_error", msg)
}

// WriteNoContent writes a 204 No Content response.
func WriteNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}
