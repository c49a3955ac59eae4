package channels

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"

	"github.com/samber/lo"

	"github.com/MartinInglin/da-bubble-sub000/pkg/directory"
	"github.com/MartinInglin/da-bubble-sub000/pkg/livesync"
	"github.com/MartinInglin/da-bubble-sub000/pkg/logger"
	"github.com/MartinInglin/da-bubble-sub000/pkg/models"
	"github.com/MartinInglin/da-bubble-sub000/pkg/store"
	"github.com/MartinInglin/da-bubble-sub000/pkg/utils"
	"github.com/MartinInglin/da-bubble-sub000/pkg/validation"
)

// Store owns channel entities and membership mutation. Membership is kept
// on both sides: the channel's member set and the MinimalChannel
// projection on each member's user record. The two writes are not atomic;
// a partial failure is a recoverable inconsistency the caller reconciles
// by retrying (the projection reconciler sweeps up leftovers).
type Store struct {
	db   store.Durable
	dir  *directory.Directory
	sync *livesync.Fanout
	now  func() int64
}

// New returns a channel store.
func New(db store.Durable, dir *directory.Directory, fan *livesync.Fanout, now func() int64) *Store {
	return &Store{db: db, dir: dir, sync: fan, now: now}
}

// Create stores a new channel with the founder as sole member and
// registers the channel projection on the founder's user record. An empty
// or whitespace name is rejected.
func (s *Store) Create(ctx context.Context, name, description string, founder models.MinimalUser) (models.Channel, error) {
	return s.create(ctx, name, description, []models.MinimalUser{founder})
}

// CreateForAll is the public creation mode: every user known to the
// directory at creation time becomes a member.
func (s *Store) CreateForAll(ctx context.Context, name, description string, founder models.MinimalUser) (models.Channel, error) {
	members := []models.MinimalUser{founder}
	for u, err := range s.dir.ListAll(ctx) {
		if err != nil {
			return models.Channel{}, err
		}
		if u.ID == founder.ID || u.IsChannel {
			continue
		}
		members = append(members, u.Minimal())
	}
	return s.create(ctx, name, description, members)
}

func (s *Store) create(ctx context.Context, name, description string, members []models.MinimalUser) (models.Channel, error) {
	if err := validation.ChannelName(name); err != nil {
		return models.Channel{}, err
	}
	ch := models.Channel{
		ID:          utils.GenChannelID(),
		Name:        name,
		Description: description,
		Members:     members,
		CreatedTS:   s.now(),
	}
	if err := s.save(ctx, ch); err != nil {
		return models.Channel{}, err
	}
	for _, m := range members {
		if err := s.dir.AddChannelMembership(ctx, m.ID, ch.Minimal()); err != nil {
			return models.Channel{}, fmt.Errorf("register membership for %s: %w", m.ID, err)
		}
	}
	logger.Info("channel_created", "id", ch.ID, "name", name, "members", len(members))
	return ch, nil
}

// Get returns the channel or ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (models.Channel, error) {
	raw, err := s.db.Read(ctx, store.Channels, id)
	if err != nil {
		return models.Channel{}, err
	}
	var ch models.Channel
	if err := json.Unmarshal(raw, &ch); err != nil {
		return models.Channel{}, fmt.Errorf("invalid stored channel %s: %w", id, err)
	}
	return ch, nil
}

// AddMember adds the user to the channel's member set and registers the
// channel projection on the user. Idempotent union by user id on both
// sides. On a partial failure (channel updated, user side failed) the
// caller retries; the duplicate add converges.
func (s *Store) AddMember(ctx context.Context, channelID string, u models.MinimalUser) error {
	ch, err := s.Get(ctx, channelID)
	if err != nil {
		return err
	}
	if !ch.HasMember(u.ID) {
		ch.Members = append(ch.Members, u)
		if err := s.save(ctx, ch); err != nil {
			return err
		}
	}
	if err := s.dir.AddChannelMembership(ctx, u.ID, ch.Minimal()); err != nil {
		return fmt.Errorf("register membership for %s: %w", u.ID, err)
	}
	logger.Info("channel_member_added", "channel", channelID, "user", u.ID)
	return nil
}

// RemoveMember removes the user from the member set and drops the channel
// projection from the user record. Both removals are independent
// idempotent set-removals; concurrent duplicate removals converge. A
// channel left with zero members persists.
func (s *Store) RemoveMember(ctx context.Context, channelID, userID string) error {
	ch, err := s.Get(ctx, channelID)
	if err != nil {
		return err
	}
	kept := lo.Filter(ch.Members, func(m models.MinimalUser, _ int) bool { return m.ID != userID })
	if len(kept) != len(ch.Members) {
		ch.Members = kept
		if err := s.save(ctx, ch); err != nil {
			return err
		}
	}
	if err := s.dir.RemoveChannelMembership(ctx, userID, channelID); err != nil {
		return fmt.Errorf("remove membership for %s: %w", userID, err)
	}
	logger.Info("channel_member_removed", "channel", channelID, "user", userID)
	return nil
}

// ListMembers returns the member set in insertion order.
func (s *Store) ListMembers(ctx context.Context, channelID string) ([]models.MinimalUser, error) {
	ch, err := s.Get(ctx, channelID)
	if err != nil {
		return nil, err
	}
	return ch.Members, nil
}

// UpdateMeta replaces name and/or description. Nil fields are untouched.
func (s *Store) UpdateMeta(ctx context.Context, channelID string, name, description *string) (models.Channel, error) {
	fields := map[string]any{}
	if name != nil {
		if err := validation.ChannelName(*name); err != nil {
			return models.Channel{}, err
		}
		fields["name"] = *name
	}
	if description != nil {
		fields["description"] = *description
	}
	if len(fields) > 0 {
		if err := s.db.UpdateFields(ctx, store.Channels, channelID, fields); err != nil {
			return models.Channel{}, err
		}
	}
	return s.Get(ctx, channelID)
}

// List returns a lazy snapshot sequence of all channels.
func (s *Store) List(ctx context.Context) iter.Seq2[models.Channel, error] {
	return func(yield func(models.Channel, error) bool) {
		for raw, err := range s.db.List(ctx, store.Channels) {
			if err != nil {
				yield(models.Channel{}, err)
				return
			}
			var ch models.Channel
			if err := json.Unmarshal(raw, &ch); err != nil {
				if !yield(models.Channel{}, fmt.Errorf("invalid stored channel: %w", err)) {
					return
				}
				continue
			}
			if !yield(ch, nil) {
				return
			}
		}
	}
}

// Subscribe returns a live stream of full channel snapshots: the current
// state first when the channel exists, then every change in write order.
// This is the sole mechanism by which a caller learns of posts or
// membership changes.
func (s *Store) Subscribe(ctx context.Context, channelID string) (*livesync.TypedSub[models.Channel], error) {
	raw, err := s.sync.Subscribe(ctx, store.Channels, channelID)
	if err != nil {
		return nil, err
	}
	return livesync.Decode[models.Channel](raw), nil
}

func (s *Store) save(ctx context.Context, ch models.Channel) error {
	b, err := json.Marshal(ch)
	if err != nil {
		return fmt.Errorf("marshal channel %s: %w", ch.ID, err)
	}
	return s.db.Write(ctx, store.Channels, ch.ID, b)
}
