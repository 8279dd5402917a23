package opensearch

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/loykin/orchestrator/internal/history"
)

func TestSink_Send(t *testing.T) {
	var receivedBody []byte
	var receivedURL, receivedMethod string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		receivedMethod = r.Method
		receivedURL = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		receivedBody = body
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"result":"created"}`))
	}))
	defer server.Close()

	sink := New(server.URL, "test-index")

	event := history.Event{
		Type:       history.EventStateChanged,
		OccurredAt: time.Now().UTC(),
		AppID:      "test-app",
		From:       "Installing",
		To:         "Installed",
	}

	if err := sink.Send(context.Background(), event); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if receivedMethod != "POST" {
		t.Errorf("expected POST method, got: %s", receivedMethod)
	}
	if receivedURL != "/test-index/_doc" {
		t.Errorf("expected URL path /test-index/_doc, got: %s", receivedURL)
	}

	var got map[string]interface{}
	if err := json.Unmarshal(receivedBody, &got); err != nil {
		t.Fatalf("failed to parse received JSON: %v", err)
	}
	if got["appId"] != "test-app" {
		t.Errorf("expected appId test-app, got: %v", got["appId"])
	}
}

func TestSink_SendError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	sink := New(server.URL, "test-index")
	err := sink.Send(context.Background(), history.Event{Type: history.EventStateChanged, OccurredAt: time.Now(), AppID: "a"})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "opensearch sink status 400") {
		t.Errorf("expected status error message, got: %v", err)
	}
}
