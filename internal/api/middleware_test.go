package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func TestRecovery(t *testing.T) {
	tests := []struct {
		name  string
		panic any
	}{
		{"error", errors.New("tile evaluation failed")},
		{"string", "something went wrong"},
		{"int", 42},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var logBuf bytes.Buffer
			logger := slog.New(slog.NewTextHandler(&logBuf, nil))

			handler := Recovery(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				panic(tt.panic)
			}))

			req := httptest.NewRequest("POST", "/scripts/s1-grd-monthly/tiles", nil)
			w := httptest.NewRecorder()

			handler.ServeHTTP(w, req)

			if w.Code != http.StatusInternalServerError {
				t.Errorf("Expected status 500, got %d", w.Code)
			}

			var resp APIError
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatalf("Failed to parse response: %v", err)
			}
			if resp.Code != ErrCodeServerError {
				t.Errorf("Expected code 'ServerError', got %v", resp.Code)
			}

			logOutput := logBuf.String()
			if !strings.Contains(logOutput, "panic recovered") || !strings.Contains(logOutput, "/scripts/s1-grd-monthly/tiles") {
				t.Errorf("Expected panic to be logged with path, got: %s", logOutput)
			}
		})
	}
}

func TestRecovery_NoPanic(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	handler := Recovery(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}))

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK || w.Body.String() != "OK" {
		t.Errorf("Expected 200 OK, got %d %s", w.Code, w.Body.String())
	}
}

func TestRecovery_ReraisesAbortHandler(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	handler := Recovery(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(http.ErrAbortHandler)
	}))

	defer func() {
		if rec := recover(); rec != http.ErrAbortHandler {
			t.Errorf("Expected http.ErrAbortHandler to propagate, got %v", rec)
		}
	}()
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/health", nil))
}

func TestRecovery_IncludesRequestIDInResponse(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	handler := middleware.RequestID(Recovery(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("test panic")
	})))

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("X-Request-Id", "test-req-123")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	var resp APIError
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}

	if resp.RequestID != "test-req-123" {
		t.Errorf("Expected request_id 'test-req-123' in error response, got %s", resp.RequestID)
	}
}

func TestContentTypeJSON(t *testing.T) {
	tests := []struct {
		name     string
		override string
		expected string
	}{
		{"default", "", "application/json"},
		{"override", "application/geo+json", "application/geo+json"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := ContentTypeJSON(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if tt.override != "" {
					w.Header().Set("Content-Type", tt.override)
				}
				w.WriteHeader(http.StatusOK)
			}))

			w := httptest.NewRecorder()
			handler.ServeHTTP(w, httptest.NewRequest("GET", "/test", nil))

			if got := w.Header().Get("Content-Type"); got != tt.expected {
				t.Errorf("Expected Content-Type %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestMaxBodySize(t *testing.T) {
	var readErr error
	handler := MaxBodySize(8)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, readErr = io.ReadAll(r.Body)
	}))

	req := httptest.NewRequest("POST", "/scripts/s2-l2a-monthly/tiles", strings.NewReader(`{"orbits": []}`))
	handler.ServeHTTP(httptest.NewRecorder(), req)

	var maxErr *http.MaxBytesError
	if !errors.As(readErr, &maxErr) {
		t.Errorf("Expected MaxBytesError, got %v", readErr)
	}
}

func TestRequestLogger(t *testing.T) {
	var logBuf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logBuf, nil))

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(logger))
	r.Post("/jobs/{job}/tiles/{tile}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte("missing"))
	})

	req := httptest.NewRequest("POST", "/jobs/slovenia/tiles/T33TWM?dry=1", nil)
	r.ServeHTTP(httptest.NewRecorder(), req)

	logOutput := logBuf.String()
	expectedFields := []string{
		"level=WARN",
		"http request",
		"request_id=",
		"method=POST",
		"path=/jobs/slovenia/tiles/T33TWM",
		"status=404",
		"duration=",
		"route=/jobs/{job}/tiles/{tile}",
		"job=slovenia",
		"tile=T33TWM",
	}

	for _, field := range expectedFields {
		if !strings.Contains(logOutput, field) {
			t.Errorf("Expected log to contain '%s', got: %s", field, logOutput)
		}
	}
	if strings.Contains(logOutput, "script=") {
		t.Errorf("Expected no script attribute, got: %s", logOutput)
	}
}

func TestRequestLogger_Levels(t *testing.T) {
	tests := []struct {
		status int
		level  string
	}{
		{http.StatusOK, "level=INFO"},
		{http.StatusUnprocessableEntity, "level=WARN"},
		{http.StatusInternalServerError, "level=ERROR"},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			var logBuf bytes.Buffer
			logger := slog.New(slog.NewTextHandler(&logBuf, nil))

			handler := RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/health", nil))

			if !strings.Contains(logBuf.String(), tt.level) {
				t.Errorf("Expected %s, got: %s", tt.level, logBuf.String())
			}
		})
	}
}

func TestRequestIDResponse(t *testing.T) {
	tests := []struct {
		name     string
		incoming string
	}{
		{"generated", ""},
		{"propagated", "custom-request-id-123"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := middleware.RequestID(RequestIDResponse(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			})))

			req := httptest.NewRequest("GET", "/test", nil)
			if tt.incoming != "" {
				req.Header.Set("X-Request-Id", tt.incoming)
			}
			w := httptest.NewRecorder()

			handler.ServeHTTP(w, req)

			reqID := w.Header().Get(RequestIDHeader)
			if reqID == "" {
				t.Error("Expected X-Request-ID header to be set in response")
			}
			if tt.incoming != "" && reqID != tt.incoming {
				t.Errorf("Expected X-Request-ID %q, got %q", tt.incoming, reqID)
			}
		})
	}
}

func TestGetRequestID(t *testing.T) {
	if reqID := GetRequestID(context.Background()); reqID != "" {
		t.Errorf("Expected empty request ID for empty context, got %s", reqID)
	}

	ctx := context.WithValue(context.Background(), middleware.RequestIDKey, "req-42")
	if reqID := GetRequestID(ctx); reqID != "req-42" {
		t.Errorf("Expected request ID req-42, got %s", reqID)
	}
}
