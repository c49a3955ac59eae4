package models

// Channel is a named multi-member conversation container. Members form an
// ordered-insertion set unique by user id; posts are append-ordered. A
// channel with zero members persists, it is never auto-deleted.
type Channel struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	Members     []MinimalUser `json:"members,omitempty"`
	Posts       []Post        `json:"posts,omitempty"`
	// Created timestamp (ms since epoch)
	CreatedTS int64 `json:"created_ts,omitempty"`
}

// Minimal returns the projection registered on member user records.
func (c Channel) Minimal() MinimalChannel {
	return MinimalChannel{ID: c.ID, Name: c.Name}
}

// HasMember reports whether the member set contains the given user id.
func (c Channel) HasMember(userID string) bool {
	for _, m := range c.Members {
		if m.ID == userID {
			return true
		}
	}
	return false
}
