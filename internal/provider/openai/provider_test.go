package openai

import (
	"context"
	"os"
	"testing"

	"recursive-companion/internal/provider"
	"recursive-companion/internal/testutil"
)

func testAPIKey() string {
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		return key
	}
	return "test-key"
}

func TestProvider_Generate(t *testing.T) {
	r := testutil.NewRecorder(t, "chat_completion")

	p := New(testAPIKey(), "gpt-4o-mini", WithHTTPClient(testutil.HTTPClient(r)))

	content, err := p.Generate(context.Background(), provider.GenerateRequest{
		System:      "You are a helpful analyst.",
		User:        "Why did engagement drop?",
		Temperature: 0.7,
	})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if content == "" {
		t.Error("Generate() returned empty content")
	}
}

func TestProvider_Embed(t *testing.T) {
	r := testutil.NewRecorder(t, "embeddings")

	p := New(testAPIKey(), "gpt-4o-mini", WithHTTPClient(testutil.HTTPClient(r)))

	vec, err := p.Embed(context.Background(), "Engagement likely dropped because of a change in posting cadence.")
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if len(vec) == 0 {
		t.Error("Embed() returned an empty vector")
	}
}
