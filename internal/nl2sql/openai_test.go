package nl2sql

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNewOpenAIClientValidatesConfig(t *testing.T) {
	if _, err := NewOpenAIClient(OpenAIConfig{APIKey: "k"}); err == nil {
		t.Fatal("expected error for missing base URL")
	}
	if _, err := NewOpenAIClient(OpenAIConfig{BaseURL: "http://x"}); err == nil {
		t.Fatal("expected error for missing api key")
	}
	client, err := NewOpenAIClient(OpenAIConfig{BaseURL: "http://x/", APIKey: "k"})
	if err != nil {
		t.Fatalf("NewOpenAIClient() error = %v", err)
	}
	if client.Model() != "gpt-4o-mini" {
		t.Fatalf("Model() = %q", client.Model())
	}
}

func TestCompleteSendsChatPayload(t *testing.T) {
	var got chatRequest
	var gotAuth, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"  SELECT 1  "}}]}`))
	}))
	defer srv.Close()

	client, err := NewOpenAIClient(OpenAIConfig{BaseURL: srv.URL + "/", APIKey: "secret", Model: "test-model"})
	if err != nil {
		t.Fatalf("NewOpenAIClient() error = %v", err)
	}
	text, err := client.Complete(context.Background(), Completion{
		System:      "sys",
		Prompt:      "question",
		Temperature: 0.1,
		MaxTokens:   200,
	})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if text != "SELECT 1" {
		t.Fatalf("Complete() = %q", text)
	}
	if gotPath != "/v1/chat/completions" {
		t.Fatalf("path = %q", gotPath)
	}
	if gotAuth != "Bearer secret" {
		t.Fatalf("Authorization = %q", gotAuth)
	}
	if got.Model != "test-model" || got.Temperature != 0.1 || got.MaxTokens != 200 {
		t.Fatalf("payload = %+v", got)
	}
	if len(got.Messages) != 2 || got.Messages[0].Role != "system" || got.Messages[1].Content != "question" {
		t.Fatalf("messages = %+v", got.Messages)
	}
}

func TestCompleteReturnsErrorOnHTTPFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":"rate limited"}`))
	}))
	defer srv.Close()

	client, err := NewOpenAIClient(OpenAIConfig{BaseURL: srv.URL, APIKey: "k"})
	if err != nil {
		t.Fatalf("NewOpenAIClient() error = %v", err)
	}
	_, err = client.Complete(context.Background(), Completion{Prompt: "q"})
	if err == nil || !strings.Contains(err.Error(), "status=429") {
		t.Fatalf("Complete() error = %v", err)
	}
}

func TestCompleteReturnsErrorOnEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	client, err := NewOpenAIClient(OpenAIConfig{BaseURL: srv.URL, APIKey: "k"})
	if err != nil {
		t.Fatalf("NewOpenAIClient() error = %v", err)
	}
	if _, err := client.Complete(context.Background(), Completion{Prompt: "q"}); err == nil {
		t.Fatal("expected error for empty choices")
	}
}

func TestBuildChatPayloadOmitsEmptySystem(t *testing.T) {
	payload := buildChatPayload("m", Completion{Prompt: "p"})
	if len(payload.Messages) != 1 || payload.Messages[0].Role != "user" {
		t.Fatalf("messages = %+v", payload.Messages)
	}
}
