package threads

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/MartinInglin/da-bubble-sub000/pkg/channels"
	"github.com/MartinInglin/da-bubble-sub000/pkg/errs"
	"github.com/MartinInglin/da-bubble-sub000/pkg/ledger"
	"github.com/MartinInglin/da-bubble-sub000/pkg/livesync"
	"github.com/MartinInglin/da-bubble-sub000/pkg/logger"
	"github.com/MartinInglin/da-bubble-sub000/pkg/models"
	"github.com/MartinInglin/da-bubble-sub000/pkg/store"
)

// Store derives reply threads from channel posts. A thread's id equals the
// id of its originating post, so each post has at most one thread and
// creation is idempotent.
type Store struct {
	db       store.Durable
	channels *channels.Store
	posts    *ledger.Ledger
	sync     *livesync.Fanout
	now      func() int64
}

// New returns a thread store.
func New(db store.Durable, ch *channels.Store, posts *ledger.Ledger, fan *livesync.Fanout, now func() int64) *Store {
	return &Store{db: db, channels: ch, posts: posts, sync: fan, now: now}
}

// Create derives a thread from the channel post at postIndex, seeded with
// a copy of that post and named after the channel. If the post already has
// a thread the existing one is returned unchanged.
func (s *Store) Create(ctx context.Context, channelID string, postIndex int) (models.Thread, error) {
	ch, err := s.channels.Get(ctx, channelID)
	if err != nil {
		return models.Thread{}, err
	}
	if postIndex < 0 || postIndex >= len(ch.Posts) {
		return models.Thread{}, &errs.IndexOutOfRangeError{Index: postIndex, Len: len(ch.Posts)}
	}
	seed := ch.Posts[postIndex]

	th, err := s.Get(ctx, channelID, seed.ID)
	if err == nil {
		return th, nil
	}
	if !errs.IsNotFound(err) {
		return models.Thread{}, err
	}

	th = models.Thread{
		ID:        seed.ID,
		Name:      ch.Name,
		Posts:     []models.Post{seed},
		CreatedTS: s.now(),
	}
	if err := s.save(ctx, channelID, th); err != nil {
		return models.Thread{}, err
	}
	logger.Info("thread_created", "channel", channelID, "thread", th.ID)
	return th, nil
}

// Get returns the thread rooted at postID inside the channel.
func (s *Store) Get(ctx context.Context, channelID, postID string) (models.Thread, error) {
	raw, err := s.db.Read(ctx, store.ThreadCollection(channelID), postID)
	if err != nil {
		return models.Thread{}, err
	}
	var th models.Thread
	if err := json.Unmarshal(raw, &th); err != nil {
		return models.Thread{}, fmt.Errorf("invalid stored thread %s: %w", postID, err)
	}
	return th, nil
}

// AppendPost appends a reply to the thread.
func (s *Store) AppendPost(ctx context.Context, channelID, threadID, message string, author models.MinimalUser) (models.Post, error) {
	ref := ledger.ParentRef{Kind: ledger.KindThread, ID: threadID, Channel: channelID}
	return s.posts.Append(ctx, ref, message, author, nil)
}

// EditPost edits the thread post at index.
func (s *Store) EditPost(ctx context.Context, channelID, threadID string, index int, newMessage string) (models.Post, error) {
	ref := ledger.ParentRef{Kind: ledger.KindThread, ID: threadID, Channel: channelID}
	return s.posts.Edit(ctx, ref, index, newMessage)
}

// Subscribe returns a live stream of full thread snapshots, current state
// first.
func (s *Store) Subscribe(ctx context.Context, channelID, threadID string) (*livesync.TypedSub[models.Thread], error) {
	raw, err := s.sync.Subscribe(ctx, store.ThreadCollection(channelID), threadID)
	if err != nil {
		return nil, err
	}
	return livesync.Decode[models.Thread](raw), nil
}

func (s *Store) save(ctx context.Context, channelID string, th models.Thread) error {
	b, err := json.Marshal(th)
	if err != nil {
		return fmt.Errorf("marshal thread %s: %w", th.ID, err)
	}
	return s.db.Write(ctx, store.ThreadCollection(channelID), th.ID, b)
}
