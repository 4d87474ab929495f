package discovery

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/mutual-radar/internal/apperror"
	"github.com/sakif/mutual-radar/internal/logging"
	"github.com/sakif/mutual-radar/internal/model"
	"github.com/sakif/mutual-radar/internal/xapi"
)

// fakeFetcher serves canned pages per source and records the requests.
type fakeFetcher struct {
	mu       sync.Mutex
	pages    map[xapi.Source]*xapi.Page
	errs     map[xapi.Source]error
	requests []xapi.PageRequest
	allPages []int
}

func (f *fakeFetcher) FetchPage(_ context.Context, req xapi.PageRequest) (*xapi.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if err := f.errs[req.Source]; err != nil {
		return nil, err
	}
	if p, ok := f.pages[req.Source]; ok {
		return p, nil
	}
	return &xapi.Page{}, nil
}

func (f *fakeFetcher) FetchAllPages(ctx context.Context, req xapi.PageRequest, maxPages int) (*xapi.Page, error) {
	f.mu.Lock()
	f.allPages = append(f.allPages, maxPages)
	f.mu.Unlock()
	return f.FetchPage(ctx, req)
}

func (f *fakeFetcher) sources() []xapi.Source {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]xapi.Source, len(f.requests))
	for i, r := range f.requests {
		out[i] = r.Source
	}
	return out
}

// fakeCaptioner echoes the target so tests can tell captions apart.
type fakeCaptioner struct {
	mu      sync.Mutex
	targets []string
}

func (f *fakeCaptioner) Caption(_ context.Context, viewer, target string, snippets []string) string {
	f.mu.Lock()
	f.targets = append(f.targets, target)
	f.mu.Unlock()
	return "caption for " + target
}

func user(id string) xapi.User {
	return xapi.User{ID: id, Name: "Name " + id, Username: "user_" + id, ProfileImageURL: "https://img/" + id}
}

// page builds a timeline page with one post per author ID, in order.
func page(authorIDs ...string) *xapi.Page {
	p := &xapi.Page{}
	seen := map[string]bool{}
	for i, id := range authorIDs {
		p.Data = append(p.Data, xapi.Post{ID: id + "-post-" + string(rune('0'+i)), Text: "post by " + id, AuthorID: id})
		if !seen[id] {
			seen[id] = true
			p.Includes.Users = append(p.Includes.Users, user(id))
		}
	}
	p.Meta.ResultCount = len(p.Data)
	return p
}

func testSession() *model.Session {
	return &model.Session{
		ID:          "sess-1",
		AccessToken: "at",
		User:        model.User{ID: "U", Username: "user_U"},
	}
}

// --- Scorer ---

func TestScorer_WeightedSum(t *testing.T) {
	s := NewScorer("U", 10)
	s.Add(page("A"), 1)
	s.Add(page("A", "A"), 2)

	ranked := s.Ranked()
	require.Len(t, ranked, 1)
	assert.Equal(t, "A", ranked[0].ID)
	assert.Equal(t, 5, ranked[0].Score)
	assert.Len(t, ranked[0].Snippets, 3)
}

func TestScorer_ExcludesSelf(t *testing.T) {
	s := NewScorer("U", 10)
	s.Add(page("U", "A", "U"), 1)
	s.Add(page("U"), 2)

	ranked := s.Ranked()
	require.Len(t, ranked, 1)
	assert.Equal(t, "A", ranked[0].ID)
}

func TestScorer_SkipsUnknownAuthors(t *testing.T) {
	p := page("A")
	p.Data = append(p.Data,
		xapi.Post{ID: "x", Text: "no author"},
		xapi.Post{ID: "y", Text: "author not included", AuthorID: "Z"},
	)

	s := NewScorer("U", 10)
	s.Add(p, 1)
	s.Add(nil, 1)

	assert.Equal(t, 1, s.Len())
}

func TestScorer_SnippetCap(t *testing.T) {
	s := NewScorer("U", 2)
	s.Add(page("A", "A", "A", "A"), 1)

	ranked := s.Ranked()
	require.Len(t, ranked, 1)
	assert.Equal(t, 4, ranked[0].Score)
	assert.Len(t, ranked[0].Snippets, 2)
}

func TestScorer_TieBreakIsFirstSeen(t *testing.T) {
	s := NewScorer("U", 10)
	s.Add(page("C", "B", "A"), 1)
	s.Add(page("D", "B"), 2)

	ids := func(cs []model.Candidate) []string {
		out := make([]string, len(cs))
		for i, c := range cs {
			out[i] = c.ID
		}
		return out
	}

	// B=3, D=2, then C, A tied at 1 in first-seen order.
	assert.Equal(t, []string{"B", "D", "C", "A"}, ids(s.Ranked()))
	assert.Equal(t, []string{"B", "D"}, ids(s.Top(2)))
	assert.Equal(t, []string{"B", "D", "C", "A"}, ids(s.Top(0)))
}

func TestScorer_RankedIsACopy(t *testing.T) {
	s := NewScorer("U", 10)
	s.Add(page("A"), 1)

	first := s.Ranked()
	first[0].Score = 100
	first[0].Snippets[0] = "changed"

	second := s.Ranked()
	assert.Equal(t, 1, second[0].Score)
	assert.Equal(t, "post by A", second[0].Snippets[0])
}

// --- Ranker ---

func testRankerConfig() RankerConfig {
	return RankerConfig{BatchSize: 100, MaxPages: 3, TopN: 5, SnippetCap: 10, LikedWeight: 1, MentionWeight: 2}
}

func TestRanker_Rank(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[xapi.Source]*xapi.Page{
		xapi.SourceLiked:    page("A", "B", "U"),
		xapi.SourceMentions: page("B", "C", "B"),
	}}
	captions := &fakeCaptioner{}
	r := NewRanker(fetcher, captions, testRankerConfig(), logging.Discard())

	got, err := r.Rank(context.Background(), testSession(), ModeBatch)
	require.NoError(t, err)

	require.Len(t, got, 3)
	assert.Equal(t, "B", got[0].ID)
	assert.Equal(t, 5, got[0].Score)
	assert.Equal(t, "C", got[1].ID)
	assert.Equal(t, 2, got[1].Score)
	assert.Equal(t, "A", got[2].ID)
	assert.Equal(t, 1, got[2].Score)
	for _, c := range got {
		assert.Equal(t, "caption for "+c.Username, c.Caption)
	}

	assert.ElementsMatch(t, []xapi.Source{xapi.SourceLiked, xapi.SourceMentions}, fetcher.sources())
	assert.Empty(t, fetcher.allPages, "batch mode reads one page per source")
	for _, req := range fetcher.requests {
		assert.Equal(t, 100, req.MaxResults)
		assert.Equal(t, "U", req.UserID)
	}
}

func TestRanker_TopN(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[xapi.Source]*xapi.Page{
		xapi.SourceLiked: page("A", "B", "C", "D", "E", "F", "G"),
	}}
	captions := &fakeCaptioner{}
	cfg := testRankerConfig()
	cfg.TopN = 3
	r := NewRanker(fetcher, captions, cfg, logging.Discard())

	got, err := r.Rank(context.Background(), testSession(), ModeBatch)
	require.NoError(t, err)
	assert.Len(t, got, 3)
	assert.Len(t, captions.targets, 3, "only the top N are captioned")
}

func TestRanker_Exhaustive(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[xapi.Source]*xapi.Page{xapi.SourceLiked: page("A")}}
	r := NewRanker(fetcher, &fakeCaptioner{}, testRankerConfig(), logging.Discard())

	_, err := r.Rank(context.Background(), testSession(), ModeExhaustive)
	require.NoError(t, err)
	assert.Equal(t, []int{3, 3}, fetcher.allPages)
}

func TestRanker_EitherSourceFailing(t *testing.T) {
	for _, src := range []xapi.Source{xapi.SourceLiked, xapi.SourceMentions} {
		t.Run(string(src), func(t *testing.T) {
			fetcher := &fakeFetcher{
				pages: map[xapi.Source]*xapi.Page{xapi.SourceLiked: page("A"), xapi.SourceMentions: page("B")},
				errs:  map[xapi.Source]error{src: apperror.UpstreamData(string(src), 503, "Service Unavailable")},
			}
			captions := &fakeCaptioner{}
			r := NewRanker(fetcher, captions, testRankerConfig(), logging.Discard())

			got, err := r.Rank(context.Background(), testSession(), ModeBatch)
			require.Error(t, err)
			assert.Nil(t, got)
			assert.True(t, errors.Is(err, apperror.ErrUpstreamData))
			assert.Empty(t, captions.targets)
		})
	}
}

func TestRanker_NoInteractions(t *testing.T) {
	r := NewRanker(&fakeFetcher{}, &fakeCaptioner{}, testRankerConfig(), logging.Discard())

	got, err := r.Rank(context.Background(), testSession(), ModeBatch)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestParseMode(t *testing.T) {
	m, ok := ParseMode("")
	assert.True(t, ok)
	assert.Equal(t, ModeBatch, m)

	m, ok = ParseMode("exhaustive")
	assert.True(t, ok)
	assert.Equal(t, ModeExhaustive, m)

	_, ok = ParseMode("everything")
	assert.False(t, ok)
}

// --- Cursor ---

func newTestCursor(f Fetcher, maxSeen int) (*Cursor, *fakeCaptioner) {
	captions := &fakeCaptioner{}
	return NewCursor(f, captions, CursorConfig{BatchSize: 10, MaxSeen: maxSeen}, logging.Discard()), captions
}

func TestCursor_EndToEnd(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[xapi.Source]*xapi.Page{
		xapi.SourceLiked:    page("A", "U"),
		xapi.SourceMentions: page("B"),
	}}
	cursor, _ := newTestCursor(fetcher, 50)
	sess := testSession()

	first, err := cursor.Next(context.Background(), sess, []string{})
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, "A", first.ID)
	assert.Equal(t, "caption for user_A", first.Caption)
	assert.Equal(t, []string{"post by A"}, first.Snippets)

	second, err := cursor.Next(context.Background(), sess, []string{"A"})
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.Equal(t, "B", second.ID)

	third, err := cursor.Next(context.Background(), sess, []string{"A", "B"})
	require.NoError(t, err)
	assert.Nil(t, third)
}

func TestCursor_LikedFirstThenMentions(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[xapi.Source]*xapi.Page{
		xapi.SourceLiked:    page("A"),
		xapi.SourceMentions: page("B"),
	}}
	cursor, _ := newTestCursor(fetcher, 0)

	_, err := cursor.Next(context.Background(), testSession(), nil)
	require.NoError(t, err)
	assert.Equal(t, []xapi.Source{xapi.SourceLiked}, fetcher.sources(), "mentions are not fetched when liked has a hit")

	fetcher.requests = nil
	_, err = cursor.Next(context.Background(), testSession(), []string{"A"})
	require.NoError(t, err)
	assert.Equal(t, []xapi.Source{xapi.SourceLiked, xapi.SourceMentions}, fetcher.sources())
}

func TestCursor_NeverReturnsSelfOrSeen(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[xapi.Source]*xapi.Page{
		xapi.SourceLiked:    page("U", "A", "B", "U"),
		xapi.SourceMentions: page("C", "U"),
	}}
	cursor, captions := newTestCursor(fetcher, 0)

	var seen []string
	for {
		c, err := cursor.Next(context.Background(), testSession(), seen)
		require.NoError(t, err)
		if c == nil {
			break
		}
		assert.NotEqual(t, "U", c.ID)
		assert.NotContains(t, seen, c.ID)
		seen = append(seen, c.ID)
	}

	assert.Equal(t, []string{"A", "B", "C"}, seen)
	assert.NotContains(t, captions.targets, "user_U")
}

func TestCursor_MaxSeen(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[xapi.Source]*xapi.Page{xapi.SourceLiked: page("A")}}
	cursor, _ := newTestCursor(fetcher, 2)

	c, err := cursor.Next(context.Background(), testSession(), []string{"x", "y"})
	require.NoError(t, err)
	assert.Nil(t, c)
	assert.Empty(t, fetcher.sources(), "no remote call once the cap is reached")
}

func TestCursor_UpstreamFailure(t *testing.T) {
	fetcher := &fakeFetcher{
		pages: map[xapi.Source]*xapi.Page{xapi.SourceLiked: page("U")},
		errs:  map[xapi.Source]error{xapi.SourceMentions: apperror.RateLimited("mentions", 0)},
	}
	cursor, captions := newTestCursor(fetcher, 0)

	c, err := cursor.Next(context.Background(), testSession(), nil)
	require.Error(t, err)
	assert.Nil(t, c)
	assert.True(t, errors.Is(err, apperror.ErrRateLimited))
	assert.Empty(t, captions.targets)
}

func TestCursor_AuthorMissingFromIncludes(t *testing.T) {
	p := &xapi.Page{Data: []xapi.Post{{ID: "1", Text: "orphan", AuthorID: "Z"}}}
	fetcher := &fakeFetcher{pages: map[xapi.Source]*xapi.Page{xapi.SourceLiked: p}}
	cursor, _ := newTestCursor(fetcher, 0)

	c, err := cursor.Next(context.Background(), testSession(), nil)
	require.NoError(t, err)
	assert.Nil(t, c)
}
