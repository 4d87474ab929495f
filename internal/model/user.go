// Package model defines the data structures shared across the application.
package model

// User is the snapshot of a social account we keep around: the signed-in user
// inside the session, and every discovered candidate.
//
// The JSON names are what the browser client reads; the remote API's own
// field names (profile_image_url etc.) live in the xapi package.
type User struct {
	ID              string `json:"id"`              // provider's stable user ID
	Name            string `json:"name"`            // display name
	Username        string `json:"username"`        // handle, without "@"
	ProfileImageURL string `json:"profileImageUrl"` // avatar URL
}
