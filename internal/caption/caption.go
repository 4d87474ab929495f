// Package caption writes the short playful line shown under each candidate.
//
// The text model is an outside collaborator: it gets a prompt and returns a
// string, or fails. Failures never reach the caller. Every path through
// Enricher.Caption returns something printable, falling back to Fallback.
package caption

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sakif/mutual-radar/internal/apperror"
	"github.com/sakif/mutual-radar/internal/metrics"
)

// Fallback is the caption used whenever generation fails.
const Fallback = "This connection is so hot even the AI ran out of words. 🔥"

// MaxSnippets is how many content items go into one prompt.
const MaxSnippets = 10

// ErrNoProvider is returned by Unavailable.
var ErrNoProvider = errors.New("caption: no text generation provider configured")

// Generator completes a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Unavailable is the Generator used when no provider key is configured.
type Unavailable struct{}

func (Unavailable) Generate(context.Context, string) (string, error) {
	return "", ErrNoProvider
}

// Enricher turns (viewer, target, snippets) into a caption.
type Enricher struct {
	gen     Generator
	timeout time.Duration
	logger  *slog.Logger
}

// NewEnricher returns an Enricher that gives each call at most timeout.
// A zero timeout leaves the caller's deadline in charge.
func NewEnricher(gen Generator, timeout time.Duration, logger *slog.Logger) *Enricher {
	if gen == nil {
		gen = Unavailable{}
	}
	return &Enricher{gen: gen, timeout: timeout, logger: logger}
}

// Caption returns a generated caption for target, or Fallback.
func (e *Enricher) Caption(ctx context.Context, viewer, target string, snippets []string) string {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	text, err := e.gen.Generate(ctx, BuildPrompt(viewer, target, snippets))
	if err == nil {
		text = clean(text)
		if text == "" {
			err = errors.New("empty completion")
		}
	}
	if err != nil {
		appErr := apperror.Enrichment(target, err)
		e.logger.Warn("using fallback caption",
			slog.String("target", target),
			slog.String("error", appErr.Error()),
		)
		metrics.CaptionsTotal.WithLabelValues(metrics.OutcomeFallback).Inc()
		return Fallback
	}

	metrics.CaptionsTotal.WithLabelValues(metrics.OutcomeGenerated).Inc()
	return text
}

// BuildPrompt assembles the completion prompt. Only the first MaxSnippets
// snippets are used and line breaks inside them are flattened.
func BuildPrompt(viewer, target string, snippets []string) string {
	if len(snippets) > MaxSnippets {
		snippets = snippets[:MaxSnippets]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You are a digital matchmaker with a cheeky, playful sense of humour. "+
		"The user @%s has interacted with @%s. ", viewer, target)
	if len(snippets) == 1 {
		b.WriteString("Based on the post below, ")
	} else {
		b.WriteString("Based on the posts below, a mix of likes and mentions, ")
	}
	b.WriteString("write one short, funny, slightly daring sentence (25 words at most) " +
		"about why their vibe matches and why it is better as mutuals. " +
		"Use one fun emoji such as 😉, 😏 or 🔥. Do not wrap the answer in quotes.\n")
	b.WriteString("Context:")
	for _, s := range snippets {
		fmt.Fprintf(&b, "\n- %q", flatten(s))
	}
	return b.String()
}

func flatten(s string) string {
	return strings.Join(strings.Fields(strings.ReplaceAll(s, "\n", " ")), " ")
}

// clean trims whitespace and a pair of wrapping quotes the model sometimes adds.
func clean(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	return s
}
