package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
)

// errorBody mirrors the JSON written by respondError and respondPipelineError
type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// withURLParam attaches a chi route parameter, as the router would.
func withURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// newUpload builds a multipart analysis request. An empty field sends a form
// without any file part.
func newUpload(t *testing.T, field string, data []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if field == "" {
		if err := mw.WriteField("note", "no file"); err != nil {
			t.Fatal(err)
		}
	} else {
		part, err := mw.CreateFormFile(field, "face.png")
		if err != nil {
			t.Fatalf("failed to create form file: %v", err)
		}
		if _, err := part.Write(data); err != nil {
			t.Fatal(err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/analyses", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

// decodeJSON checks the content type and decodes the recorded body.
func decodeJSON[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected Content-Type application/json, got %q", ct)
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("failed to parse JSON response: %v\nBody: %s", err, rec.Body.String())
	}
	return v
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Errorf("expected status %d, got %d\nBody: %s", want, rec.Code, rec.Body.String())
	}
}

// expectError checks the status and the error message of a failed response.
func expectError(t *testing.T, rec *httptest.ResponseRecorder, status int, message string) errorBody {
	t.Helper()
	expectStatus(t, rec, status)
	body := decodeJSON[errorBody](t, rec)
	if message != "" && body.Error != message {
		t.Errorf("expected error %q, got %q", message, body.Error)
	}
	return body
}
