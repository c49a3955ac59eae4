package models

// Post is a single authored message entry. Posts are append-only; an edit
// replaces Message and TS in place, sets Edited and preserves id, author,
// position and reactions.
type Post struct {
	ID         string `json:"id"`
	AuthorName string `json:"author_name"`
	Avatar     string `json:"avatar,omitempty"`
	Message    string `json:"message"`
	// TS is the creation (or last edit) time in ms since epoch,
	// monotonically non-decreasing per store.
	TS          int64      `json:"ts"`
	Reactions   []Reaction `json:"reactions,omitempty"`
	Edited      bool       `json:"edited,omitempty"`
	Attachments []string   `json:"attachments,omitempty"`
}

// Reaction is a (user, emoji) tag on a post. At most one reaction per
// (UserID, Emoji) pair; duplicate toggles collapse instead of accumulating.
type Reaction struct {
	UserID   string `json:"user_id"`
	UserName string `json:"user_name"`
	Emoji    string `json:"emoji"`
}

// SortedReaction groups raw reactions by emoji for presentation. It is
// recomputed from Post.Reactions and never persisted.
type SortedReaction struct {
	Emoji     string   `json:"emoji"`
	UserIDs   []string `json:"user_ids"`
	UserNames []string `json:"user_names"`
}
