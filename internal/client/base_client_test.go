package client_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/skingford/sso-web/internal/client"
	"github.com/skingford/sso-web/pkg/logger"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.ErrorLevel)
	return l
}

func TestBaseClient_Do_GET(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("Expected GET request, got %s", r.Method)
		}
		if r.Header.Get("Content-Type") != "" {
			t.Errorf("Expected no Content-Type on bodiless request, got %s", r.Header.Get("Content-Type"))
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}))
	defer server.Close()

	bc := client.NewBaseClient(server.URL, 10*time.Second, quietLogger())

	resp, err := bc.Do(context.Background(), http.MethodGet, "/health", nil)
	if err != nil {
		t.Fatalf("Do() failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}
}

func TestBaseClient_Do_POST(t *testing.T) {
	type testRequest struct {
		Name string `json:"name"`
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("Expected POST request, got %s", r.Method)
		}
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("Expected Content-Type application/json, got %s", r.Header.Get("Content-Type"))
		}

		var req testRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("Failed to decode request: %v", err)
		}
		if req.Name != "test" {
			t.Errorf("Expected name 'test', got '%s'", req.Name)
		}

		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	bc := client.NewBaseClient(server.URL, 10*time.Second, quietLogger())

	resp, err := bc.Do(context.Background(), http.MethodPost, "/create", testRequest{Name: "test"})
	if err != nil {
		t.Fatalf("Do() failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Errorf("Expected status 201, got %d", resp.StatusCode)
	}
}

func TestBaseClient_Do_PropagatesCorrelationID(t *testing.T) {
	var got string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("X-Request-ID")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	bc := client.NewBaseClient(server.URL, 10*time.Second, quietLogger())

	ctx := logger.SetCorrelationID(context.Background(), "req-123")
	resp, err := bc.Do(ctx, http.MethodGet, "/", nil)
	if err != nil {
		t.Fatalf("Do() failed: %v", err)
	}
	resp.Body.Close()

	if got != "req-123" {
		t.Errorf("Expected X-Request-ID 'req-123', got '%s'", got)
	}
}

func TestBaseClient_BaseURL(t *testing.T) {
	expectedURL := "http://example.com/api/v1/audit"
	bc := client.NewBaseClient(expectedURL, 10*time.Second, quietLogger())

	if bc.BaseURL() != expectedURL {
		t.Errorf("Expected baseURL '%s', got '%s'", expectedURL, bc.BaseURL())
	}
}

func TestBaseClient_ParseErrorResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"error":   "bad_request",
			"message": "Invalid request parameters",
			"detail":  "Field 'events' is required",
		})
	}))
	defer server.Close()

	bc := client.NewBaseClient(server.URL, 10*time.Second, quietLogger())

	resp, err := bc.Do(context.Background(), http.MethodGet, "/test", nil)
	if err != nil {
		t.Fatalf("Do() failed: %v", err)
	}

	err = bc.ParseErrorResponse(resp)
	if err == nil {
		t.Fatal("Expected error from ParseErrorResponse(), got nil")
	}
	if !strings.HasPrefix(err.Error(), "HTTP 400") {
		t.Errorf("Expected error to start with 'HTTP 400', got '%s'", err.Error())
	}
	if !strings.Contains(err.Error(), "Field 'events' is required") {
		t.Errorf("Expected detail in error, got '%s'", err.Error())
	}
}

func TestBaseClient_ContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(100 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	bc := client.NewBaseClient(server.URL, 10*time.Second, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := bc.Do(ctx, http.MethodGet, "/test", nil); err == nil {
		t.Fatal("Expected error from cancelled context, got nil")
	}
}
