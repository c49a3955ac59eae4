package models

// Thread is a bounded sub-conversation rooted at one channel post. Its id
// equals the id of the originating post, so at most one thread can exist
// per post. Name is copied from the parent channel at creation time.
type Thread struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
	// Posts begins with a copy of the originating post.
	Posts     []Post `json:"posts,omitempty"`
	CreatedTS int64  `json:"created_ts,omitempty"`
}
