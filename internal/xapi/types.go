package xapi

import "github.com/sakif/mutual-radar/internal/model"

// Source is a paginated interaction timeline of the signed-in user.
type Source string

const (
	// SourceLiked lists posts the user liked.
	SourceLiked Source = "liked_tweets"
	// SourceMentions lists posts that mention the user.
	SourceMentions Source = "mentions"
)

// minResults is the smallest max_results each timeline accepts.
var minResults = map[Source]int{
	SourceLiked:    10,
	SourceMentions: 5,
}

// maxResults is the largest page the API serves.
const maxResults = 100

// Post is one content item as returned by the API.
type Post struct {
	ID       string `json:"id"`
	Text     string `json:"text"`
	AuthorID string `json:"author_id,omitempty"`
}

// User is the API's user object with the fields we request.
type User struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Username        string `json:"username"`
	ProfileImageURL string `json:"profile_image_url"`
}

// Snapshot converts u into the shape stored in sessions and candidates.
func (u User) Snapshot() model.User {
	return model.User{
		ID:              u.ID,
		Name:            u.Name,
		Username:        u.Username,
		ProfileImageURL: u.ProfileImageURL,
	}
}

// Includes carries the expanded objects referenced by a page.
type Includes struct {
	Users []User `json:"users,omitempty"`
}

// Meta is the pagination envelope.
type Meta struct {
	ResultCount int    `json:"result_count"`
	NextToken   string `json:"next_token,omitempty"`
}

// Page is one response from a timeline endpoint. Data and Includes are both
// absent when the timeline is empty.
type Page struct {
	Data     []Post   `json:"data,omitempty"`
	Includes Includes `json:"includes"`
	Meta     Meta     `json:"meta"`
}

// Authors indexes the included users by ID.
func (p *Page) Authors() map[string]User {
	authors := make(map[string]User, len(p.Includes.Users))
	for _, u := range p.Includes.Users {
		authors[u.ID] = u
	}
	return authors
}

// PageRequest selects one page of one timeline.
type PageRequest struct {
	UserID          string
	AccessToken     string
	Source          Source
	MaxResults      int
	PaginationToken string // empty for the first page
}

// apiError is the problem-details body the API sends on failure. Older
// endpoints send an errors array instead.
type apiError struct {
	Title  string `json:"title"`
	Detail string `json:"detail"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

func (e apiError) message() string {
	switch {
	case e.Detail != "":
		return e.Detail
	case e.Title != "":
		return e.Title
	case len(e.Errors) > 0:
		return e.Errors[0].Message
	}
	return ""
}
