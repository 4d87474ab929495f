package discovery

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/sakif/mutual-radar/internal/metrics"
	"github.com/sakif/mutual-radar/internal/model"
	"github.com/sakif/mutual-radar/internal/xapi"
)

// Mode selects how much of each timeline the Ranker reads.
type Mode string

const (
	// ModeBatch reads one page of BatchSize posts per source.
	ModeBatch Mode = "batch"
	// ModeExhaustive follows next tokens up to MaxPages pages per source.
	ModeExhaustive Mode = "exhaustive"
)

// ParseMode maps a query value to a Mode. Empty means ModeBatch.
func ParseMode(s string) (Mode, bool) {
	switch Mode(s) {
	case "", ModeBatch:
		return ModeBatch, true
	case ModeExhaustive:
		return ModeExhaustive, true
	}
	return "", false
}

// RankerConfig holds the batch-mode knobs.
type RankerConfig struct {
	BatchSize     int // posts per page
	MaxPages      int // exhaustive mode page limit per source, 0 = no limit
	TopN          int
	SnippetCap    int
	LikedWeight   int
	MentionWeight int
}

// Ranker implements batch discovery.
type Ranker struct {
	fetcher  Fetcher
	captions Captioner
	cfg      RankerConfig
	logger   *slog.Logger
}

// NewRanker creates a Ranker.
func NewRanker(fetcher Fetcher, captions Captioner, cfg RankerConfig, logger *slog.Logger) *Ranker {
	return &Ranker{fetcher: fetcher, captions: captions, cfg: cfg, logger: logger}
}

// Rank fetches both timelines for sess, scores every author and returns the
// top candidates with captions. A failure in either source fails the call.
func (r *Ranker) Rank(ctx context.Context, sess *model.Session, mode Mode) ([]model.Candidate, error) {
	var liked, mentions *xapi.Page

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, err := r.fetch(gctx, sess, xapi.SourceLiked, mode)
		liked = p
		return err
	})
	g.Go(func() error {
		p, err := r.fetch(gctx, sess, xapi.SourceMentions, mode)
		mentions = p
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Liked first so ties resolve the same way on every call.
	scorer := NewScorer(sess.User.ID, r.cfg.SnippetCap)
	scorer.Add(liked, r.cfg.LikedWeight)
	scorer.Add(mentions, r.cfg.MentionWeight)

	top := scorer.Top(r.cfg.TopN)
	r.logger.Debug("scored interactions",
		slog.String("session", sess.ID),
		slog.String("mode", string(mode)),
		slog.Int("candidates", scorer.Len()),
		slog.Int("returned", len(top)),
	)

	r.enrich(ctx, sess.User.Username, top)
	metrics.CandidatesServed.WithLabelValues(string(mode)).Add(float64(len(top)))
	return top, nil
}

func (r *Ranker) fetch(ctx context.Context, sess *model.Session, src xapi.Source, mode Mode) (*xapi.Page, error) {
	req := xapi.PageRequest{
		UserID:      sess.User.ID,
		AccessToken: sess.AccessToken,
		Source:      src,
		MaxResults:  r.cfg.BatchSize,
	}

	var (
		page *xapi.Page
		err  error
	)
	if mode == ModeExhaustive {
		page, err = r.fetcher.FetchAllPages(ctx, req, r.cfg.MaxPages)
	} else {
		page, err = r.fetcher.FetchPage(ctx, req)
	}
	if err != nil {
		return nil, fmt.Errorf("discovery: fetching %s: %w", src, err)
	}
	return page, nil
}

// enrich captions every candidate concurrently. Captioner never fails, so
// one slow or broken call only costs that candidate its generated caption.
func (r *Ranker) enrich(ctx context.Context, viewer string, candidates []model.Candidate) {
	var g errgroup.Group
	for i := range candidates {
		c := &candidates[i]
		g.Go(func() error {
			c.Caption = r.captions.Caption(ctx, viewer, c.Username, c.Snippets)
			return nil
		})
	}
	_ = g.Wait()
}
