package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"

	"github.com/MartinInglin/da-bubble-sub000/pkg/blob"
	"github.com/MartinInglin/da-bubble-sub000/pkg/errs"
	"github.com/MartinInglin/da-bubble-sub000/pkg/identity"
	"github.com/MartinInglin/da-bubble-sub000/pkg/logger"
	"github.com/MartinInglin/da-bubble-sub000/pkg/models"
	"github.com/MartinInglin/da-bubble-sub000/pkg/store"
	"github.com/MartinInglin/da-bubble-sub000/pkg/validation"
)

// Directory owns the canonical user records. Membership projections on the
// user are maintained through AddChannelMembership/RemoveChannelMembership
// by the channel store; profile fields only change here.
type Directory struct {
	db    store.Durable
	blobs blob.Store
	idp   identity.Provider
}

// New returns a directory over the given durable store. blobs and idp may
// be nil when avatar upload or credential checks are not used.
func New(db store.Durable, blobs blob.Store, idp identity.Provider) *Directory {
	return &Directory{db: db, blobs: blobs, idp: idp}
}

// ProfileUpdate carries the fields of a partial profile edit. Nil fields
// are left untouched. Changing the email requires Secret, which is checked
// against the identity provider.
type ProfileUpdate struct {
	Name   *string
	Email  *string
	Avatar *string
	Secret string
}

// Register stores a new user record. Registering an existing id returns
// ErrConflict.
func (d *Directory) Register(ctx context.Context, u models.User) (models.User, error) {
	if err := validation.UserID(u.ID); err != nil {
		return models.User{}, err
	}
	if u.Name == "" {
		return models.User{}, &errs.ValidationError{Field: "name", Reason: "is required"}
	}
	if _, err := d.db.Read(ctx, store.Users, u.ID); err == nil {
		return models.User{}, fmt.Errorf("user %s: %w", u.ID, errs.ErrConflict)
	} else if !errs.IsNotFound(err) {
		return models.User{}, err
	}
	if err := d.save(ctx, u); err != nil {
		return models.User{}, err
	}
	logger.Info("user_registered", "id", u.ID)
	return u, nil
}

// Get returns the user record or ErrNotFound.
func (d *Directory) Get(ctx context.Context, id string) (models.User, error) {
	raw, err := d.db.Read(ctx, store.Users, id)
	if err != nil {
		return models.User{}, err
	}
	var u models.User
	if err := json.Unmarshal(raw, &u); err != nil {
		return models.User{}, fmt.Errorf("invalid stored user %s: %w", id, err)
	}
	return u, nil
}

// Update merges the provided profile fields into the stored record. Fields
// not provided are never removed. Concurrent updates are last write wins
// per call. An email change is verified against the identity provider
// first; a failed check returns ErrUnauthorized.
func (d *Directory) Update(ctx context.Context, sess identity.Session, id string, upd ProfileUpdate) (models.User, error) {
	fields := map[string]any{}
	if upd.Name != nil {
		fields["name"] = *upd.Name
	}
	if upd.Avatar != nil {
		fields["avatar"] = *upd.Avatar
	}
	if upd.Email != nil {
		if err := validation.Email(*upd.Email); err != nil {
			return models.User{}, err
		}
		if d.idp == nil {
			return models.User{}, fmt.Errorf("email change: %w", errs.ErrUnauthorized)
		}
		ok, err := d.idp.VerifyCredential(ctx, sess.UserID, upd.Secret)
		if err != nil {
			return models.User{}, fmt.Errorf("verify credential: %w", err)
		}
		if !ok {
			return models.User{}, fmt.Errorf("email change: %w", errs.ErrUnauthorized)
		}
		fields["email"] = *upd.Email
	}
	if len(fields) > 0 {
		if err := d.db.UpdateFields(ctx, store.Users, id, fields); err != nil {
			return models.User{}, err
		}
		logger.Info("user_updated", "id", id, "fields", len(fields))
	}
	return d.Get(ctx, id)
}

// SetAvatar uploads the image to the blob store and records the reference
// on the user.
func (d *Directory) SetAvatar(ctx context.Context, id string, image []byte) (models.User, error) {
	if d.blobs == nil {
		return models.User{}, fmt.Errorf("%w: no blob store configured", errs.ErrTransientIO)
	}
	ref, err := d.blobs.Upload(ctx, "avatars/"+id, image)
	if err != nil {
		return models.User{}, err
	}
	if err := d.db.UpdateFields(ctx, store.Users, id, map[string]any{"avatar": string(ref)}); err != nil {
		return models.User{}, err
	}
	logger.Info("avatar_set", "id", id, "ref", string(ref))
	return d.Get(ctx, id)
}

// AddChannelMembership appends the channel projection to the user.
// Idempotent: an existing projection with the same id is left alone.
func (d *Directory) AddChannelMembership(ctx context.Context, userID string, mc models.MinimalChannel) error {
	u, err := d.Get(ctx, userID)
	if err != nil {
		return err
	}
	for _, c := range u.Channels {
		if c.ID == mc.ID {
			return nil
		}
	}
	u.Channels = append(u.Channels, mc)
	return d.save(ctx, u)
}

// RemoveChannelMembership removes the projection by channel id. No-op when
// absent, so concurrent duplicate removals converge.
func (d *Directory) RemoveChannelMembership(ctx context.Context, userID, channelID string) error {
	u, err := d.Get(ctx, userID)
	if err != nil {
		return err
	}
	kept := u.Channels[:0]
	for _, c := range u.Channels {
		if c.ID != channelID {
			kept = append(kept, c)
		}
	}
	if len(kept) == len(u.Channels) {
		return nil
	}
	u.Channels = kept
	return d.save(ctx, u)
}

// SetPrivateConversation records the id of the user's self conversation.
func (d *Directory) SetPrivateConversation(ctx context.Context, userID, dmID string) error {
	return d.db.UpdateFields(ctx, store.Users, userID, map[string]any{"private_conversation": dmID})
}

// SetSignedIn flips the presence flag on the user record.
func (d *Directory) SetSignedIn(ctx context.Context, userID string, signedIn bool) error {
	return d.db.UpdateFields(ctx, store.Users, userID, map[string]any{"signed_in": signedIn})
}

// SaveEmoji appends the emoji to the user's saved list, moving an already
// saved emoji to the end instead of duplicating it. The list keeps the
// most recent maxSavedEmojis entries.
func (d *Directory) SaveEmoji(ctx context.Context, userID, emoji string) error {
	if err := validation.Emoji(emoji); err != nil {
		return err
	}
	u, err := d.Get(ctx, userID)
	if err != nil {
		return err
	}
	kept := u.SavedEmojis[:0]
	for _, e := range u.SavedEmojis {
		if e != emoji {
			kept = append(kept, e)
		}
	}
	kept = append(kept, emoji)
	if len(kept) > maxSavedEmojis {
		kept = kept[len(kept)-maxSavedEmojis:]
	}
	u.SavedEmojis = kept
	return d.save(ctx, u)
}

// ListAll returns a lazy, restartable snapshot sequence of all users.
func (d *Directory) ListAll(ctx context.Context) iter.Seq2[models.User, error] {
	return func(yield func(models.User, error) bool) {
		for raw, err := range d.db.List(ctx, store.Users) {
			if err != nil {
				yield(models.User{}, err)
				return
			}
			var u models.User
			if err := json.Unmarshal(raw, &u); err != nil {
				if !yield(models.User{}, fmt.Errorf("invalid stored user: %w", err)) {
					return
				}
				continue
			}
			if !yield(u, nil) {
				return
			}
		}
	}
}

func (d *Directory) save(ctx context.Context, u models.User) error {
	b, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("marshal user %s: %w", u.ID, err)
	}
	return d.db.Write(ctx, store.Users, u.ID, b)
}

const maxSavedEmojis = 20
