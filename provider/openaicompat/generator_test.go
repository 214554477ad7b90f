package openaicompat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestGenerate(t *testing.T) {
	var gotBody chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("unexpected auth header %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"Paris is the capital."}}]}`))
	}))
	defer srv.Close()

	g := NewGenerator("test-key", "test-model", srv.URL)
	out, err := g.Generate(context.Background(), "What is the capital of France?")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if out != "Paris is the capital." {
		t.Errorf("unexpected output %q", out)
	}
	if gotBody.Model != "test-model" || gotBody.Stream {
		t.Errorf("unexpected request body: %+v", gotBody)
	}
	if len(gotBody.Messages) != 1 || gotBody.Messages[0].Role != "user" {
		t.Errorf("unexpected messages: %+v", gotBody.Messages)
	}
}

func TestGenerateHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	g := NewGenerator("k", "m", srv.URL)
	_, err := g.Generate(context.Background(), "hi")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "503") {
		t.Errorf("error should carry status code, got %v", err)
	}
}

func TestGenerateNoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	g := NewGenerator("k", "m", srv.URL)
	if _, err := g.Generate(context.Background(), "hi"); err == nil {
		t.Fatal("expected error for empty choices")
	}
}

func TestGenerateStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body chatRequest
		json.NewDecoder(r.Body).Decode(&body)
		if !body.Stream {
			t.Error("expected stream request")
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte("data: {\"choices\":[{\"delta\":{\"content\":\"Hel\"}}]}\n\n"))
		w.Write([]byte("data: {\"choices\":[{\"delta\":{\"content\":\"lo\"}}]}\n\n"))
		w.Write([]byte("data: not-json\n\n"))
		w.Write([]byte("data: [DONE]\n\n"))
	}))
	defer srv.Close()

	g := NewGenerator("k", "m", srv.URL)
	ch := make(chan string, 16)
	if err := g.GenerateStream(context.Background(), "hi", ch); err != nil {
		t.Fatalf("GenerateStream: %v", err)
	}

	var full strings.Builder
	for frag := range ch {
		full.WriteString(frag)
	}
	if full.String() != "Hello" {
		t.Errorf("expected %q, got %q", "Hello", full.String())
	}
}

func TestGenerateStreamClosesChannelOnHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	defer srv.Close()

	g := NewGenerator("k", "m", srv.URL)
	ch := make(chan string)
	err := g.GenerateStream(context.Background(), "hi", ch)
	if err == nil {
		t.Fatal("expected error")
	}
	// Channel must be closed even on failure so consumers don't hang.
	if _, open := <-ch; open {
		t.Error("channel left open after error")
	}
}

func TestGeneratorOptions(t *testing.T) {
	var gotBody chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"ok"}}]}`))
	}))
	defer srv.Close()

	g := NewGenerator("k", "m", srv.URL,
		WithName("ollama"),
		WithTemperature(0.2),
		WithMaxTokens(512),
	)
	if g.Name() != "ollama" {
		t.Errorf("unexpected name %q", g.Name())
	}
	if _, err := g.Generate(context.Background(), "hi"); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if gotBody.Temperature == nil || *gotBody.Temperature != 0.2 {
		t.Errorf("temperature not forwarded: %+v", gotBody.Temperature)
	}
	if gotBody.MaxTokens == nil || *gotBody.MaxTokens != 512 {
		t.Errorf("max_tokens not forwarded: %+v", gotBody.MaxTokens)
	}
}
