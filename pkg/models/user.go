package models

// User is the canonical identity record owned by the directory. The id is
// externally issued and stable for the lifetime of the account.
type User struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Email  string `json:"email,omitempty"`
	Avatar string `json:"avatar,omitempty"`
	// Channels holds the MinimalChannel projections of every channel the
	// user belongs to. Maintained by the channel store, not by profile edits.
	Channels []MinimalChannel `json:"channels,omitempty"`
	// PrivateConversation is the id of the user's own self direct message.
	PrivateConversation string `json:"private_conversation,omitempty"`
	SignedIn            bool   `json:"signed_in,omitempty"`
	// IsChannel marks records that alias a channel rather than a person.
	IsChannel bool `json:"is_channel,omitempty"`
	// SavedEmojis is the user's recently used emoji list, newest last.
	SavedEmojis []string `json:"saved_emojis,omitempty"`
}

// Minimal returns the denormalized projection embedded in member lists.
func (u User) Minimal() MinimalUser {
	return MinimalUser{ID: u.ID, Name: u.Name, Avatar: u.Avatar, Email: u.Email}
}

// MinimalUser is a storage-embedded projection of User used inside channel
// and direct-message member lists. It is a cache: eventually consistent with
// the source User and never authoritative for profile fields.
type MinimalUser struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
	Email  string `json:"email,omitempty"`
}

// MinimalChannel is the projection of a Channel embedded in User.Channels.
type MinimalChannel struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
