// Package discovery finds the people a signed-in user interacts with.
//
// Two modes share the same fetcher:
//
//   - Ranker (batch): fetch liked posts and mentions concurrently, score every
//     author, return the top N with captions.
//   - Cursor (incremental): return the first author not yet shown, scanning a
//     small liked batch first and mentions second, one candidate per call.
//
// Both exclude the signed-in user and never keep state between calls.
package discovery

import (
	"context"
	"sort"

	"github.com/sakif/mutual-radar/internal/model"
	"github.com/sakif/mutual-radar/internal/xapi"
)

// Fetcher reads interaction timelines. *xapi.Client satisfies it.
type Fetcher interface {
	FetchPage(ctx context.Context, req xapi.PageRequest) (*xapi.Page, error)
	FetchAllPages(ctx context.Context, req xapi.PageRequest, maxPages int) (*xapi.Page, error)
}

// Captioner writes a caption for a candidate. *caption.Enricher satisfies it.
type Captioner interface {
	Caption(ctx context.Context, viewer, target string, snippets []string) string
}

// Scorer accumulates weighted interaction counts per author.
type Scorer struct {
	excludeID  string
	snippetCap int
	byID       map[string]*model.Candidate
	order      []*model.Candidate // first-seen order, used to break ties
}

// NewScorer returns a Scorer that ignores posts by excludeID and keeps at
// most snippetCap snippets per candidate.
func NewScorer(excludeID string, snippetCap int) *Scorer {
	return &Scorer{
		excludeID:  excludeID,
		snippetCap: snippetCap,
		byID:       make(map[string]*model.Candidate),
	}
}

// Add credits weight to the author of every post in page. Posts without an
// author, by the excluded user, or whose author is missing from the page's
// includes are skipped.
func (s *Scorer) Add(page *xapi.Page, weight int) {
	if page == nil {
		return
	}
	authors := page.Authors()

	for _, post := range page.Data {
		if post.AuthorID == "" || post.AuthorID == s.excludeID {
			continue
		}
		author, ok := authors[post.AuthorID]
		if !ok {
			continue
		}

		c, ok := s.byID[post.AuthorID]
		if !ok {
			c = &model.Candidate{User: author.Snapshot()}
			s.byID[post.AuthorID] = c
			s.order = append(s.order, c)
		}
		c.Score += weight
		if len(c.Snippets) < s.snippetCap {
			c.Snippets = append(c.Snippets, post.Text)
		}
	}
}

// Len reports how many distinct candidates were seen.
func (s *Scorer) Len() int { return len(s.order) }

// Ranked returns every candidate by descending score. Equal scores keep
// first-seen order.
func (s *Scorer) Ranked() []model.Candidate {
	out := make([]model.Candidate, len(s.order))
	for i, c := range s.order {
		out[i] = *c
		out[i].Snippets = append([]string(nil), c.Snippets...)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

// Top returns the n best candidates, or all of them when n <= 0.
func (s *Scorer) Top(n int) []model.Candidate {
	ranked := s.Ranked()
	if n > 0 && len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}
