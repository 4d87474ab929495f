package caption

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/mutual-radar/internal/logging"
)

// fakeGenerator records the prompt and returns a canned result.
type fakeGenerator struct {
	text   string
	err    error
	delay  time.Duration
	prompt string
}

func (f *fakeGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	f.prompt = prompt
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return f.text, f.err
}

func TestEnricher_Caption(t *testing.T) {
	gen := &fakeGenerator{text: "  Two timelines, one vibe 😏  "}
	e := NewEnricher(gen, time.Second, logging.Discard())

	got := e.Caption(context.Background(), "radardev", "alice", []string{"hello\nworld"})

	assert.Equal(t, "Two timelines, one vibe 😏", got)
	assert.Contains(t, gen.prompt, "@radardev")
	assert.Contains(t, gen.prompt, "@alice")
	assert.Contains(t, gen.prompt, `"hello world"`)
}

func TestEnricher_Fallbacks(t *testing.T) {
	tests := []struct {
		name string
		gen  Generator
	}{
		{"provider error", &fakeGenerator{err: errors.New("503 unavailable")}},
		{"empty completion", &fakeGenerator{text: "   "}},
		{"no provider", Unavailable{}},
		{"nil generator", nil},
		{"timeout", &fakeGenerator{text: "too late", delay: time.Second}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewEnricher(tt.gen, 20*time.Millisecond, logging.Discard())
			got := e.Caption(context.Background(), "me", "alice", []string{"post"})
			assert.Equal(t, Fallback, got)
		})
	}
}

func TestEnricher_StripsWrappingQuotes(t *testing.T) {
	e := NewEnricher(&fakeGenerator{text: `"Mutuals forever 🔥"`}, 0, logging.Discard())
	assert.Equal(t, "Mutuals forever 🔥", e.Caption(context.Background(), "me", "bob", nil))
}

func TestBuildPrompt_CapsSnippets(t *testing.T) {
	snippets := make([]string, 15)
	for i := range snippets {
		snippets[i] = "snippet"
	}

	prompt := BuildPrompt("me", "alice", snippets)
	assert.Equal(t, MaxSnippets, strings.Count(prompt, "\n- "))
}

func TestBuildPrompt_SingleSnippet(t *testing.T) {
	prompt := BuildPrompt("me", "alice", []string{"only one"})
	assert.Contains(t, prompt, "the post below")
	assert.Equal(t, 1, strings.Count(prompt, "\n- "))
}

func TestNewGemini_RequiresKey(t *testing.T) {
	_, err := NewGemini(context.Background(), GeminiOptions{})
	assert.Error(t, err)
}

func TestGemini_Generate(t *testing.T) {
	var gotPath, gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("x-goog-api-key")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"Vibes aligned 😉"}]}}]}`))
	}))
	defer srv.Close()

	g, err := NewGemini(context.Background(), GeminiOptions{APIKey: "k-123", BaseURL: srv.URL, HTTPClient: srv.Client()})
	require.NoError(t, err)

	text, err := g.Generate(context.Background(), "prompt")
	require.NoError(t, err)
	assert.Equal(t, "Vibes aligned 😉", text)
	assert.Contains(t, gotPath, DefaultModel+":generateContent")
	assert.Equal(t, "k-123", gotKey)
}

func TestGemini_GenerateError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"code":500,"message":"internal","status":"INTERNAL"}}`))
	}))
	defer srv.Close()

	g, err := NewGemini(context.Background(), GeminiOptions{APIKey: "k", BaseURL: srv.URL, HTTPClient: srv.Client()})
	require.NoError(t, err)

	e := NewEnricher(g, time.Second, logging.Discard())
	assert.Equal(t, Fallback, e.Caption(context.Background(), "me", "alice", []string{"x"}))
}
