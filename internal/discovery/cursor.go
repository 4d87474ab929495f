package discovery

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sakif/mutual-radar/internal/metrics"
	"github.com/sakif/mutual-radar/internal/model"
	"github.com/sakif/mutual-radar/internal/xapi"
)

// cursorSources is the scan order. Liked posts come first.
var cursorSources = []xapi.Source{xapi.SourceLiked, xapi.SourceMentions}

// CursorConfig holds the incremental-mode knobs.
type CursorConfig struct {
	BatchSize int // posts fetched per source per call
	MaxSeen   int // stop once the client has seen this many, 0 = no cap
}

// Cursor implements incremental discovery.
type Cursor struct {
	fetcher  Fetcher
	captions Captioner
	cfg      CursorConfig
	logger   *slog.Logger
}

// NewCursor creates a Cursor.
func NewCursor(fetcher Fetcher, captions Captioner, cfg CursorConfig, logger *slog.Logger) *Cursor {
	return &Cursor{fetcher: fetcher, captions: captions, cfg: cfg, logger: logger}
}

// Next returns the first candidate not in seen, with its caption, or nil
// when nothing new turned up in this call's batches.
//
// Each source is read once, one small batch, without following next tokens;
// nil means "nothing new right now", not "timeline exhausted".
func (c *Cursor) Next(ctx context.Context, sess *model.Session, seen []string) (*model.Candidate, error) {
	if c.cfg.MaxSeen > 0 && len(seen) >= c.cfg.MaxSeen {
		return nil, nil
	}

	exclude := make(map[string]bool, len(seen)+1)
	for _, id := range seen {
		exclude[id] = true
	}
	exclude[sess.User.ID] = true

	for _, src := range cursorSources {
		page, err := c.fetcher.FetchPage(ctx, xapi.PageRequest{
			UserID:      sess.User.ID,
			AccessToken: sess.AccessToken,
			Source:      src,
			MaxResults:  c.cfg.BatchSize,
		})
		if err != nil {
			return nil, fmt.Errorf("discovery: fetching %s: %w", src, err)
		}

		cand := firstUnseen(page, exclude)
		if cand == nil {
			continue
		}

		c.logger.Debug("next candidate found",
			slog.String("session", sess.ID),
			slog.String("source", string(src)),
			slog.Int("seen", len(seen)),
		)
		cand.Caption = c.captions.Caption(ctx, sess.User.Username, cand.Username, cand.Snippets)
		metrics.CandidatesServed.WithLabelValues("incremental").Inc()
		return cand, nil
	}

	return nil, nil
}

// firstUnseen scans page in order and pairs the first eligible author with
// the post that named them.
func firstUnseen(page *xapi.Page, exclude map[string]bool) *model.Candidate {
	if page == nil || len(page.Data) == 0 {
		return nil
	}
	authors := page.Authors()

	for _, post := range page.Data {
		if post.AuthorID == "" || exclude[post.AuthorID] {
			continue
		}
		author, ok := authors[post.AuthorID]
		if !ok {
			continue
		}
		return &model.Candidate{
			User:     author.Snapshot(),
			Snippets: []string{post.Text},
		}
	}
	return nil
}
