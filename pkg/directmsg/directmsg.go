package directmsg

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"iter"

	"github.com/MartinInglin/da-bubble-sub000/pkg/directory"
	"github.com/MartinInglin/da-bubble-sub000/pkg/errs"
	"github.com/MartinInglin/da-bubble-sub000/pkg/identity"
	"github.com/MartinInglin/da-bubble-sub000/pkg/ledger"
	"github.com/MartinInglin/da-bubble-sub000/pkg/livesync"
	"github.com/MartinInglin/da-bubble-sub000/pkg/logger"
	"github.com/MartinInglin/da-bubble-sub000/pkg/models"
	"github.com/MartinInglin/da-bubble-sub000/pkg/store"
	"github.com/MartinInglin/da-bubble-sub000/pkg/validation"
)

// Store owns pairwise conversations. Conversation ids derive from the
// sorted participant pair, so creating the same conversation twice writes
// the same record and first contact is naturally idempotent: concurrent
// creates collapse onto one id instead of racing a scan-then-insert.
type Store struct {
	db    store.Durable
	dir   *directory.Directory
	posts *ledger.Ledger
	sync  *livesync.Fanout
	now   func() int64
}

// New returns a direct-message store.
func New(db store.Durable, dir *directory.Directory, posts *ledger.Ledger, fan *livesync.Fanout, now func() int64) *Store {
	return &Store{db: db, dir: dir, posts: posts, sync: fan, now: now}
}

// ConversationID returns the deterministic conversation id of an unordered
// user pair. Both argument orders yield the same id.
func ConversationID(a, b string) string {
	if b < a {
		a, b = b, a
	}
	sum := sha256.Sum256([]byte(a + "\x00" + b))
	return "dm_" + hex.EncodeToString(sum[:16])
}

// GetOrCreate returns the conversation between the session user and peer,
// creating it on first contact. Lookup is order-insensitive. Records
// created before deterministic ids are found by a participant scan.
func (s *Store) GetOrCreate(ctx context.Context, peerID string, sess identity.Session) (models.DirectMessage, error) {
	if err := validation.UserID(peerID); err != nil {
		return models.DirectMessage{}, err
	}
	id := ConversationID(peerID, sess.UserID)
	dm, err := s.Get(ctx, id)
	if err == nil {
		return dm, nil
	}
	if !errs.IsNotFound(err) {
		return models.DirectMessage{}, err
	}
	// legacy records carry random ids; fall back to scanning for the pair
	for cand, err := range s.List(ctx) {
		if err != nil {
			return models.DirectMessage{}, err
		}
		if cand.IsPair(peerID, sess.UserID) {
			return cand, nil
		}
	}
	peer, err := s.dir.Get(ctx, peerID)
	if err != nil {
		return models.DirectMessage{}, fmt.Errorf("peer %s: %w", peerID, err)
	}
	dm = models.DirectMessage{
		ID:           id,
		Participants: []models.MinimalUser{sess.Minimal(), peer.Minimal()},
		CreatedTS:    s.now(),
	}
	if err := s.save(ctx, dm); err != nil {
		return models.DirectMessage{}, err
	}
	logger.Info("direct_message_created", "id", id, "peer", peerID, "user", sess.UserID)
	return dm, nil
}

// EnsureSelf returns the user's private self conversation, creating it and
// recording its id on the user record. The id is re-recorded on the found
// path too, so a run that saved the conversation but failed to update the
// user converges on retry.
func (s *Store) EnsureSelf(ctx context.Context, u models.User) (models.DirectMessage, error) {
	id := ConversationID(u.ID, u.ID)
	dm, err := s.Get(ctx, id)
	if err == nil {
		if err := s.dir.SetPrivateConversation(ctx, u.ID, id); err != nil {
			return models.DirectMessage{}, err
		}
		return dm, nil
	}
	if !errs.IsNotFound(err) {
		return models.DirectMessage{}, err
	}
	dm = models.DirectMessage{
		ID:           id,
		Participants: []models.MinimalUser{u.Minimal()},
		Private:      true,
		CreatedTS:    s.now(),
	}
	if err := s.save(ctx, dm); err != nil {
		return models.DirectMessage{}, err
	}
	if err := s.dir.SetPrivateConversation(ctx, u.ID, id); err != nil {
		return models.DirectMessage{}, err
	}
	logger.Info("self_conversation_created", "id", id, "user", u.ID)
	return dm, nil
}

// Get returns the conversation or ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (models.DirectMessage, error) {
	raw, err := s.db.Read(ctx, store.DirectMessages, id)
	if err != nil {
		return models.DirectMessage{}, err
	}
	var dm models.DirectMessage
	if err := json.Unmarshal(raw, &dm); err != nil {
		return models.DirectMessage{}, fmt.Errorf("invalid stored conversation %s: %w", id, err)
	}
	return dm, nil
}

// AppendPost appends a message to the conversation.
func (s *Store) AppendPost(ctx context.Context, dmID, message string, author models.MinimalUser) (models.Post, error) {
	return s.posts.Append(ctx, ledger.ParentRef{Kind: ledger.KindDirectMessage, ID: dmID}, message, author, nil)
}

// EditPost edits the post at index; an index outside the sequence returns
// IndexOutOfRangeError.
func (s *Store) EditPost(ctx context.Context, dmID string, index int, newMessage string) (models.Post, error) {
	return s.posts.Edit(ctx, ledger.ParentRef{Kind: ledger.KindDirectMessage, ID: dmID}, index, newMessage)
}

// List returns a lazy snapshot sequence of all conversations.
func (s *Store) List(ctx context.Context) iter.Seq2[models.DirectMessage, error] {
	return func(yield func(models.DirectMessage, error) bool) {
		for raw, err := range s.db.List(ctx, store.DirectMessages) {
			if err != nil {
				yield(models.DirectMessage{}, err)
				return
			}
			var dm models.DirectMessage
			if err := json.Unmarshal(raw, &dm); err != nil {
				if !yield(models.DirectMessage{}, fmt.Errorf("invalid stored conversation: %w", err)) {
					return
				}
				continue
			}
			if !yield(dm, nil) {
				return
			}
		}
	}
}

// Subscribe returns a live stream of full conversation snapshots, current
// state first.
func (s *Store) Subscribe(ctx context.Context, dmID string) (*livesync.TypedSub[models.DirectMessage], error) {
	raw, err := s.sync.Subscribe(ctx, store.DirectMessages, dmID)
	if err != nil {
		return nil, err
	}
	return livesync.Decode[models.DirectMessage](raw), nil
}

func (s *Store) save(ctx context.Context, dm models.DirectMessage) error {
	b, err := json.Marshal(dm)
	if err != nil {
		return fmt.Errorf("marshal conversation %s: %w", dm.ID, err)
	}
	return s.db.Write(ctx, store.DirectMessages, dm.ID, b)
}
