package search

import (
	"strings"

	"github.com/samber/lo"

	"github.com/MartinInglin/da-bubble-sub000/pkg/models"
)

// Kind tags a search result so consumers branch on the tag instead of
// duck-typing the payload.
type Kind string

const (
	KindChannel Kind = "channel"
	KindUser    Kind = "user"
	KindPost    Kind = "post"
)

// Result is a tagged union over the searchable entity kinds. Exactly one
// of Channel, User and Post is set, matching Kind. Post results also carry
// the id of the containing channel or conversation.
type Result struct {
	Kind    Kind
	Channel *models.Channel
	User    *models.User
	Post    *models.Post
	// ParentID is the channel or direct-message id owning a post result.
	ParentID string
}

// Snapshot is the point-in-time view the query runs over. It is built from
// the most recent fan-out snapshots held by the caller, never read from
// the durable store.
type Snapshot struct {
	Channels       []models.Channel
	Users          []models.User
	DirectMessages []models.DirectMessage
}

// Query filters the snapshot for the query string: channels on name and
// description, users on name and email, posts on message text. Matching is
// case-insensitive substring. An empty or whitespace query matches nothing.
func Query(q string, snap Snapshot) []Result {
	needle := strings.ToLower(strings.TrimSpace(q))
	if needle == "" {
		return nil
	}

	var out []Result

	matched := lo.Filter(snap.Channels, func(ch models.Channel, _ int) bool {
		return contains(ch.Name, needle) || contains(ch.Description, needle)
	})
	for i := range matched {
		out = append(out, Result{Kind: KindChannel, Channel: &matched[i]})
	}

	users := lo.Filter(snap.Users, func(u models.User, _ int) bool {
		return contains(u.Name, needle) || contains(u.Email, needle)
	})
	for i := range users {
		out = append(out, Result{Kind: KindUser, User: &users[i]})
	}

	for ci := range snap.Channels {
		ch := &snap.Channels[ci]
		for pi := range ch.Posts {
			if contains(ch.Posts[pi].Message, needle) {
				out = append(out, Result{Kind: KindPost, Post: &ch.Posts[pi], ParentID: ch.ID})
			}
		}
	}
	for di := range snap.DirectMessages {
		dm := &snap.DirectMessages[di]
		for pi := range dm.Posts {
			if contains(dm.Posts[pi].Message, needle) {
				out = append(out, Result{Kind: KindPost, Post: &dm.Posts[pi], ParentID: dm.ID})
			}
		}
	}
	return out
}

func contains(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), needle)
}
