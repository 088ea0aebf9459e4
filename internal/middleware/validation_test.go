package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"codesync/internal/models"
)

func runValidation(t *testing.T, body string) (*httptest.ResponseRecorder, *models.ExecuteRequest) {
	t.Helper()
	var got *models.ExecuteRequest
	handler := ValidateRequest[*models.ExecuteRequest]()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = GetValidatedRequest[*models.ExecuteRequest](r)
		w.WriteHeader(http.StatusOK)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/execute", strings.NewReader(body)))
	return rr, got
}

func errorCode(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body models.ErrorResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid error body %q: %v", rr.Body.String(), err)
	}
	return body.Code
}

func TestValidateRequest(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantCode   string
	}{
		{"valid", `{"language":"Python","code":"print(1)"}`, http.StatusOK, ""},
		{"malformed json", `{"language":`, http.StatusBadRequest, models.ErrCodeInvalidJSON},
		{"unsupported language", `{"language":"ruby","code":"puts 1"}`, http.StatusBadRequest, models.ErrCodeInvalidLanguage},
		{"missing code", `{"language":"cpp"}`, http.StatusBadRequest, models.ErrCodeInvalidCode},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr, got := runValidation(t, tt.body)
			if rr.Code != tt.wantStatus {
				t.Fatalf("expected %d, got %d (%s)", tt.wantStatus, rr.Code, rr.Body.String())
			}
			if tt.wantCode != "" {
				if code := errorCode(t, rr); code != tt.wantCode {
					t.Fatalf("expected %s, got %s", tt.wantCode, code)
				}
				if got != nil {
					t.Fatal("handler should not run on invalid input")
				}
			}
		})
	}
}

func TestValidateRequestNormalizesLanguage(t *testing.T) {
	_, got := runValidation(t, `{"language":"  JavaScript ","code":"1","input":"x"}`)
	if got == nil || got.Language != models.LangJavaScript || got.Input != "x" {
		t.Fatalf("unexpected request %#v", got)
	}
}

func TestValidateRequestBodyOverCap(t *testing.T) {
	reached := false
	handler := ValidateRequest[*models.ExecuteRequest]()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
	}))

	body := `{"language":"python","code":"` + strings.Repeat("x", 256) + `"}`
	req := httptest.NewRequest(http.MethodPost, "/api/execute", strings.NewReader(body))
	rr := httptest.NewRecorder()
	req.Body = http.MaxBytesReader(rr, req.Body, 64)
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d (%s)", rr.Code, rr.Body.String())
	}
	if code := errorCode(t, rr); code != models.ErrCodeCodeTooLarge {
		t.Fatalf("expected %s, got %s", models.ErrCodeCodeTooLarge, code)
	}
	if reached {
		t.Fatal("handler should not run on an oversized body")
	}
}
