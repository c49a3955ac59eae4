package models

// DirectMessage is a conversation scoped to exactly two participants, or a
// single participant when Private marks a self conversation. For any two
// distinct user ids at most one DirectMessage holds both as participants.
type DirectMessage struct {
	ID           string        `json:"id"`
	Participants []MinimalUser `json:"participants"`
	Posts        []Post        `json:"posts,omitempty"`
	// Private marks the user's own notes conversation.
	Private   bool  `json:"private,omitempty"`
	CreatedTS int64 `json:"created_ts,omitempty"`
}

// HasParticipant reports whether the given user id is a participant.
func (d DirectMessage) HasParticipant(userID string) bool {
	for _, p := range d.Participants {
		if p.ID == userID {
			return true
		}
	}
	return false
}

// IsPair reports whether the conversation is between exactly the two given
// users, regardless of argument order.
func (d DirectMessage) IsPair(a, b string) bool {
	return len(d.Participants) == 2 && d.HasParticipant(a) && d.HasParticipant(b)
}
