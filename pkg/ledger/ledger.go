package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/MartinInglin/da-bubble-sub000/pkg/errs"
	"github.com/MartinInglin/da-bubble-sub000/pkg/logger"
	"github.com/MartinInglin/da-bubble-sub000/pkg/models"
	"github.com/MartinInglin/da-bubble-sub000/pkg/store"
	"github.com/MartinInglin/da-bubble-sub000/pkg/utils"
	"github.com/MartinInglin/da-bubble-sub000/pkg/validation"
)

// Kind names the kind of record owning a post sequence.
type Kind string

const (
	KindChannel       Kind = "channel"
	KindDirectMessage Kind = "directMessage"
	KindThread        Kind = "thread"
)

// ParentRef addresses the record owning a post sequence. Channel is the
// owning channel id and is only set for threads.
type ParentRef struct {
	Kind    Kind
	ID      string
	Channel string
}

// Location returns the collection and record id of the parent.
func (r ParentRef) Location() (collection, id string, err error) {
	switch r.Kind {
	case KindChannel:
		return store.Channels, r.ID, nil
	case KindDirectMessage:
		return store.DirectMessages, r.ID, nil
	case KindThread:
		if r.Channel == "" {
			return "", "", &errs.ValidationError{Field: "channel", Reason: "is required for threads"}
		}
		return store.ThreadCollection(r.Channel), r.ID, nil
	default:
		return "", "", &errs.ValidationError{Field: "kind", Reason: "is unknown"}
	}
}

// Ledger implements append/edit/reaction operations on the ordered post
// sequence of a channel, direct message or thread. Every mutation is a
// read-modify-write of the owning record; sibling fields of the record are
// carried through untouched.
type Ledger struct {
	db  store.Durable
	now func() time.Time

	mu     sync.Mutex
	lastTS int64
}

// New returns a ledger over the given durable store.
func New(db store.Durable) *Ledger {
	return &Ledger{db: db, now: time.Now}
}

// timestamp returns the current wall clock in ms since epoch, clamped so
// timestamps handed out by this ledger never decrease.
func (l *Ledger) timestamp() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	ts := l.now().UnixMilli()
	if ts < l.lastTS {
		ts = l.lastTS
	}
	l.lastTS = ts
	return ts
}

// Append builds a post with a fresh id and current timestamp and appends
// it to the parent's sequence. A whitespace-only message with no
// attachments is rejected.
func (l *Ledger) Append(ctx context.Context, ref ParentRef, message string, author models.MinimalUser, attachments []string) (models.Post, error) {
	if err := validation.PostBody(message, len(attachments)); err != nil {
		return models.Post{}, err
	}
	post := models.Post{
		ID:          utils.GenID(),
		AuthorName:  author.Name,
		Avatar:      author.Avatar,
		Message:     message,
		TS:          l.timestamp(),
		Attachments: attachments,
	}
	out, err := l.mutate(ctx, ref, func(posts []models.Post) ([]models.Post, models.Post, error) {
		return append(posts, post), post, nil
	})
	if err != nil {
		return models.Post{}, err
	}
	logger.Info("post_appended", "kind", string(ref.Kind), "parent", ref.ID, "post", post.ID)
	return out, nil
}

// Edit replaces the message of the post at index, refreshes its timestamp
// and sets the edited flag. Id, author, reactions and position are
// preserved. An index outside the sequence returns IndexOutOfRangeError
// and leaves the sequence unmodified.
func (l *Ledger) Edit(ctx context.Context, ref ParentRef, index int, newMessage string) (models.Post, error) {
	if err := validation.PostBody(newMessage, 0); err != nil {
		return models.Post{}, err
	}
	out, err := l.mutate(ctx, ref, func(posts []models.Post) ([]models.Post, models.Post, error) {
		if index < 0 || index >= len(posts) {
			return nil, models.Post{}, &errs.IndexOutOfRangeError{Index: index, Len: len(posts)}
		}
		posts[index].Message = newMessage
		posts[index].TS = l.timestamp()
		posts[index].Edited = true
		return posts, posts[index], nil
	})
	if err != nil {
		return models.Post{}, err
	}
	logger.Info("post_edited", "kind", string(ref.Kind), "parent", ref.ID, "index", index)
	return out, nil
}

// mutate runs fn over the parent's post sequence and writes the record
// back. The record envelope is kept as raw JSON so fields other than
// "posts" survive the round trip.
func (l *Ledger) mutate(ctx context.Context, ref ParentRef, fn func([]models.Post) ([]models.Post, models.Post, error)) (models.Post, error) {
	collection, id, err := ref.Location()
	if err != nil {
		return models.Post{}, err
	}
	raw, err := l.db.Read(ctx, collection, id)
	if err != nil {
		return models.Post{}, err
	}
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return models.Post{}, fmt.Errorf("invalid stored record %s/%s: %w", collection, id, err)
	}
	var posts []models.Post
	if rawPosts, ok := envelope["posts"]; ok {
		if err := json.Unmarshal(rawPosts, &posts); err != nil {
			return models.Post{}, fmt.Errorf("invalid posts in %s/%s: %w", collection, id, err)
		}
	}
	posts, result, err := fn(posts)
	if err != nil {
		return models.Post{}, err
	}
	encoded, err := json.Marshal(posts)
	if err != nil {
		return models.Post{}, fmt.Errorf("marshal posts: %w", err)
	}
	envelope["posts"] = encoded
	record, err := json.Marshal(envelope)
	if err != nil {
		return models.Post{}, fmt.Errorf("marshal record: %w", err)
	}
	if err := l.db.Write(ctx, collection, id, record); err != nil {
		return models.Post{}, err
	}
	return result, nil
}
