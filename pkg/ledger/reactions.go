package ledger

import (
	"context"

	"github.com/samber/lo"

	"github.com/MartinInglin/da-bubble-sub000/pkg/errs"
	"github.com/MartinInglin/da-bubble-sub000/pkg/logger"
	"github.com/MartinInglin/da-bubble-sub000/pkg/models"
	"github.com/MartinInglin/da-bubble-sub000/pkg/validation"
)

// ToggleReaction toggles the (userID, emoji) reaction on the post at
// index: present reactions are removed, absent ones appended. The result
// never holds two reactions with the same (userID, emoji) pair.
func (l *Ledger) ToggleReaction(ctx context.Context, ref ParentRef, index int, userID, userName, emoji string) (models.Post, error) {
	if err := validation.Emoji(emoji); err != nil {
		return models.Post{}, err
	}
	if err := validation.UserID(userID); err != nil {
		return models.Post{}, err
	}
	out, err := l.mutate(ctx, ref, func(posts []models.Post) ([]models.Post, models.Post, error) {
		if index < 0 || index >= len(posts) {
			return nil, models.Post{}, &errs.IndexOutOfRangeError{Index: index, Len: len(posts)}
		}
		p := &posts[index]
		_, i, found := lo.FindIndexOf(p.Reactions, func(r models.Reaction) bool {
			return r.UserID == userID && r.Emoji == emoji
		})
		if found {
			p.Reactions = append(p.Reactions[:i], p.Reactions[i+1:]...)
		} else {
			p.Reactions = append(p.Reactions, models.Reaction{UserID: userID, UserName: userName, Emoji: emoji})
		}
		return posts, *p, nil
	})
	if err != nil {
		return models.Post{}, err
	}
	logger.Debug("reaction_toggled", "kind", string(ref.Kind), "parent", ref.ID, "index", index, "emoji", emoji)
	return out, nil
}

// SortedReactions groups the raw reactions of a post by emoji. Groups
// appear in first-occurrence order of each emoji, users within a group in
// the order their reaction was added. Pure derivation, never persisted.
func SortedReactions(post models.Post) []models.SortedReaction {
	var out []models.SortedReaction
	byEmoji := map[string]int{}
	for _, r := range post.Reactions {
		i, ok := byEmoji[r.Emoji]
		if !ok {
			i = len(out)
			byEmoji[r.Emoji] = i
			out = append(out, models.SortedReaction{Emoji: r.Emoji})
		}
		out[i].UserIDs = append(out[i].UserIDs, r.UserID)
		out[i].UserNames = append(out[i].UserNames, r.UserName)
	}
	return out
}
