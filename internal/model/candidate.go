package model

// Candidate is a discovered account the signed-in user has interacted with.
//
// The embedded User fields are flattened into the JSON object. Snippets are
// the content items that named this account; they feed the caption prompt and
// are never sent to the browser.
type Candidate struct {
	User
	Score    int      `json:"score,omitempty"`
	Snippets []string `json:"-"`
	Caption  string   `json:"caption,omitempty"`
}
