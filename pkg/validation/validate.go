package validation

import (
	"strings"

	"github.com/MartinInglin/da-bubble-sub000/pkg/errs"
)

// ChannelName rejects empty or whitespace-only channel names.
func ChannelName(name string) error {
	if strings.TrimSpace(name) == "" {
		return &errs.ValidationError{Field: "name", Reason: "is required"}
	}
	return nil
}

// PostBody rejects posts whose message is whitespace-only and that carry no
// attachments.
func PostBody(message string, attachments int) error {
	if strings.TrimSpace(message) == "" && attachments == 0 {
		return &errs.ValidationError{Field: "message", Reason: "is empty"}
	}
	return nil
}

// Email applies a minimal shape check; real deliverability is out of scope.
func Email(s string) error {
	at := strings.IndexByte(s, '@')
	if at <= 0 || at == len(s)-1 || strings.ContainsAny(s, " \t") {
		return &errs.ValidationError{Field: "email", Reason: "is invalid"}
	}
	return nil
}

// Emoji rejects empty reaction emojis.
func Emoji(s string) error {
	if strings.TrimSpace(s) == "" {
		return &errs.ValidationError{Field: "emoji", Reason: "is required"}
	}
	return nil
}

// UserID rejects empty or slash-carrying ids, which would corrupt the
// persisted key layout.
func UserID(id string) error {
	if id == "" || strings.ContainsRune(id, '/') {
		return &errs.ValidationError{Field: "user_id", Reason: "is invalid"}
	}
	return nil
}
