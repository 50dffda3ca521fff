package web

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/go-chi/chi/v5"

	"github.com/albmarin/umongo/app"
	"github.com/albmarin/umongo/core/document"
	"github.com/albmarin/umongo/core/export"
	"github.com/albmarin/umongo/core/registry"
	"github.com/albmarin/umongo/core/schema"
	"github.com/albmarin/umongo/pkg/httpjson"
	"github.com/albmarin/umongo/ports"
)

const (
	defaultPageLimit = 50
	maxPageLimit     = 500
)

// Health reports liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	httpjson.Write(w, http.StatusOK, map[string]string{"status": "ok"})
}

// OpenAPISpec returns the registered schemas as an OpenAPI document.
func (h *Handler) OpenAPISpec(w http.ResponseWriter, r *http.Request) {
	doc := &openapi3.T{
		OpenAPI: "3.0.3",
		Info: &openapi3.Info{
			Title:   "umongo document API",
			Version: "1.0.0",
		},
		Paths: openapi3.Paths{},
		Components: &openapi3.Components{
			Schemas: export.Components(h.schemas.Instance()),
		},
	}

	data, err := json.Marshal(doc)
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

// ListCollections returns the bound collection names.
func (h *Handler) ListCollections(w http.ResponseWriter, r *http.Request) {
	names := h.documents.Collections()
	if names == nil {
		names = []string{}
	}
	httpjson.Write(w, http.StatusOK, map[string][]string{"collections": names})
}

// ListDocuments returns a page of a collection's documents.
func (h *Handler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	collection := chi.URLParam(r, "collection")
	limit, offset := pageParams(r)

	docs, total, err := h.documents.List(r.Context(), collection, limit, offset)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if docs == nil {
		docs = []map[string]any{}
	}
	httpjson.Write(w, http.StatusOK, httpjson.Page{
		Items:  docs,
		Total:  total,
		Limit:  limit,
		Offset: offset,
	})
}

// CreateDocument builds and persists a document from the request body.
func (h *Handler) CreateDocument(w http.ResponseWriter, r *http.Request) {
	collection := chi.URLParam(r, "collection")

	data, ok := h.decodeBody(w, r)
	if !ok {
		return
	}

	out, err := h.documents.Create(r.Context(), collection, data)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if id, ok := out["id"].(string); ok {
		w.Header().Set("Location", "/collections/"+collection+"/"+id)
	}
	httpjson.Write(w, http.StatusCreated, out)
}

// FindDocument returns one document by a unique lookup field, e.g.
// GET /collections/user/find?field=email&value=leto@atreides.com.
func (h *Handler) FindDocument(w http.ResponseWriter, r *http.Request) {
	field := r.URL.Query().Get("field")
	value := r.URL.Query().Get("value")
	if field == "" || value == "" {
		httpjson.WriteBadRequest(w, "field and value query parameters are required")
		return
	}

	out, err := h.documents.FindBy(r.Context(), chi.URLParam(r, "collection"), field, value)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpjson.Write(w, http.StatusOK, out)
}

// GetDocument returns one document by primary key.
func (h *Handler) GetDocument(w http.ResponseWriter, r *http.Request) {
	out, err := h.documents.Get(r.Context(), chi.URLParam(r, "collection"), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpjson.Write(w, http.StatusOK, out)
}

// UpdateDocument applies a partial mapping to one document.
func (h *Handler) UpdateDocument(w http.ResponseWriter, r *http.Request) {
	data, ok := h.decodeBody(w, r)
	if !ok {
		return
	}

	out, err := h.documents.Update(r.Context(), chi.URLParam(r, "collection"), chi.URLParam(r, "id"), data)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpjson.Write(w, http.StatusOK, out)
}

// DeleteDocument removes one document by primary key.
func (h *Handler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	err := h.documents.Delete(r.Context(), chi.URLParam(r, "collection"), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpjson.WriteNoContent(w)
}

// SetSecret replaces one secret field with the hash of the submitted
// value.
func (h *Handler) SetSecret(w http.ResponseWriter, r *http.Request) {
	value, ok := h.decodeSecretValue(w, r)
	if !ok {
		return
	}

	err := h.documents.SetSecret(r.Context(),
		chi.URLParam(r, "collection"), chi.URLParam(r, "id"), chi.URLParam(r, "field"), value)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpjson.WriteNoContent(w)
}

// CheckSecret compares the submitted value against the stored hash.
func (h *Handler) CheckSecret(w http.ResponseWriter, r *http.Request) {
	value, ok := h.decodeSecretValue(w, r)
	if !ok {
		return
	}

	match, err := h.documents.CheckSecret(r.Context(),
		chi.URLParam(r, "collection"), chi.URLParam(r, "id"), chi.URLParam(r, "field"), value)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpjson.Write(w, http.StatusOK, map[string]bool{"match": match})
}

// decodeBody reads the request body as a client mapping. On failure it
// writes the error response and reports false.
func (h *Handler) decodeBody(w http.ResponseWriter, r *http.Request) (map[string]any, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		httpjson.WriteBadRequest(w, "cannot read request body")
		return nil, false
	}
	data, err := document.ParseClientJSON(body)
	if err != nil {
		httpjson.WriteBadRequest(w, err.Error())
		return nil, false
	}
	return data, true
}

// decodeSecretValue reads a {"value": "..."} body.
func (h *Handler) decodeSecretValue(w http.ResponseWriter, r *http.Request) (string, bool) {
	data, ok := h.decodeBody(w, r)
	if !ok {
		return "", false
	}
	value, ok := data["value"].(string)
	if !ok {
		httpjson.WriteBadRequest(w, "body must carry a string under \"value\"")
		return "", false
	}
	return value, true
}

// pageParams reads limit/offset query parameters.
func pageParams(r *http.Request) (limit, offset int) {
	limit = defaultPageLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}

// writeError maps runtime errors to HTTP responses.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var ve *schema.ValidationError
	if errors.As(err, &ve) {
		httpjson.WriteFieldErrors(w, ve.Fields)
		return
	}

	var de *schema.DefinitionError
	if errors.As(err, &de) {
		httpjson.WriteBadRequest(w, de.Error())
		return
	}

	var nr *registry.NotRegisteredError
	if errors.As(err, &nr) {
		httpjson.WriteNotFound(w, nr.Error())
		return
	}

	if errors.Is(err, ports.ErrNotFound) {
		httpjson.WriteNotFound(w, "document not found")
		return
	}

	if errors.Is(err, app.ErrNotSecretField) {
		httpjson.WriteBadRequest(w, err.Error())
		return
	}

	var dup *ports.DuplicateKeyError
	if errors.As(err, &dup) {
		httpjson.WriteError(w, http.StatusConflict, "conflict", dup.Error())
		return
	}

	h.logger.Error().Err(err).Msg("request failed")
	httpjson.WriteInternal(w, "")
}
