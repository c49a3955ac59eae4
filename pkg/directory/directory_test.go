package directory

import (
	"context"
	"errors"
	"testing"

	"github.com/MartinInglin/da-bubble-sub000/pkg/blob"
	"github.com/MartinInglin/da-bubble-sub000/pkg/errs"
	"github.com/MartinInglin/da-bubble-sub000/pkg/identity"
	"github.com/MartinInglin/da-bubble-sub000/pkg/models"
	"github.com/MartinInglin/da-bubble-sub000/pkg/store"
)

// secretProvider accepts exactly one identity/secret pair.
type secretProvider struct {
	identity string
	secret   string
}

func (p secretProvider) VerifyCredential(_ context.Context, identity, secret string) (bool, error) {
	return identity == p.identity && secret == p.secret, nil
}

func newTestDirectory(t *testing.T) *Directory {
	t.Helper()
	p, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = p.Close() })
	blobs, err := blob.NewFS(t.TempDir(), 1<<20)
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	return New(p, blobs, secretProvider{identity: "u1", secret: "hunter2"})
}

func mustRegister(t *testing.T, d *Directory, id, name string) models.User {
	t.Helper()
	u, err := d.Register(context.Background(), models.User{ID: id, Name: name, Email: name + "@example.com"})
	if err != nil {
		t.Fatalf("Register %s: %v", id, err)
	}
	return u
}

func TestRegisterAndGet(t *testing.T) {
	d := newTestDirectory(t)
	mustRegister(t, d, "u1", "Ada")

	got, err := d.Get(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Name != "Ada" || got.Email != "Ada@example.com" {
		t.Fatalf("user = %+v", got)
	}
}

func TestRegisterExistingIsConflict(t *testing.T) {
	d := newTestDirectory(t)
	mustRegister(t, d, "u1", "Ada")

	_, err := d.Register(context.Background(), models.User{ID: "u1", Name: "Imposter"})
	if !errors.Is(err, errs.ErrConflict) {
		t.Fatalf("duplicate register: got %v, want ErrConflict", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	d := newTestDirectory(t)
	ctx := context.Background()
	if _, err := d.Register(ctx, models.User{ID: "", Name: "Ada"}); !errs.IsValidation(err) {
		t.Fatalf("empty id: got %v", err)
	}
	if _, err := d.Register(ctx, models.User{ID: "a/b", Name: "Ada"}); !errs.IsValidation(err) {
		t.Fatalf("slash id: got %v", err)
	}
	if _, err := d.Register(ctx, models.User{ID: "u1"}); !errs.IsValidation(err) {
		t.Fatalf("empty name: got %v", err)
	}
}

func TestUpdateMergesProvidedFieldsOnly(t *testing.T) {
	d := newTestDirectory(t)
	mustRegister(t, d, "u1", "Ada")
	sess := identity.Session{UserID: "u1"}

	name := "Ada L."
	got, err := d.Update(context.Background(), sess, "u1", ProfileUpdate{Name: &name})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got.Name != "Ada L." {
		t.Fatalf("name = %q", got.Name)
	}
	if got.Email != "Ada@example.com" {
		t.Fatalf("email changed by name-only update: %q", got.Email)
	}
}

func TestUpdateEmailRequiresCredential(t *testing.T) {
	d := newTestDirectory(t)
	mustRegister(t, d, "u1", "Ada")
	sess := identity.Session{UserID: "u1"}
	ctx := context.Background()

	email := "new@example.com"
	_, err := d.Update(ctx, sess, "u1", ProfileUpdate{Email: &email, Secret: "wrong"})
	if !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("wrong secret: got %v, want ErrUnauthorized", err)
	}
	got, err := d.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Email != "Ada@example.com" {
		t.Fatalf("email changed despite failed check: %q", got.Email)
	}

	updated, err := d.Update(ctx, sess, "u1", ProfileUpdate{Email: &email, Secret: "hunter2"})
	if err != nil {
		t.Fatalf("Update with correct secret: %v", err)
	}
	if updated.Email != "new@example.com" {
		t.Fatalf("email = %q", updated.Email)
	}
}

func TestUpdateRejectsMalformedEmail(t *testing.T) {
	d := newTestDirectory(t)
	mustRegister(t, d, "u1", "Ada")

	bad := "not-an-email"
	_, err := d.Update(context.Background(), identity.Session{UserID: "u1"}, "u1", ProfileUpdate{Email: &bad, Secret: "hunter2"})
	if !errs.IsValidation(err) {
		t.Fatalf("malformed email: got %v, want ValidationError", err)
	}
}

func TestSetAvatarStoresBlobRef(t *testing.T) {
	d := newTestDirectory(t)
	mustRegister(t, d, "u1", "Ada")

	got, err := d.SetAvatar(context.Background(), "u1", []byte("png-bytes"))
	if err != nil {
		t.Fatalf("SetAvatar: %v", err)
	}
	if got.Avatar == "" {
		t.Fatal("avatar ref not recorded")
	}
	data, err := d.blobs.Download(context.Background(), blob.Ref(got.Avatar))
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if string(data) != "png-bytes" {
		t.Fatalf("blob payload = %q", data)
	}
}

func TestChannelMembershipProjection(t *testing.T) {
	d := newTestDirectory(t)
	mustRegister(t, d, "u1", "Ada")
	ctx := context.Background()
	mc := models.MinimalChannel{ID: "c1", Name: "general"}

	for i := 0; i < 2; i++ {
		if err := d.AddChannelMembership(ctx, "u1", mc); err != nil {
			t.Fatalf("AddChannelMembership: %v", err)
		}
	}
	u, err := d.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(u.Channels) != 1 {
		t.Fatalf("channels after double add = %+v", u.Channels)
	}

	if err := d.RemoveChannelMembership(ctx, "u1", "c1"); err != nil {
		t.Fatalf("RemoveChannelMembership: %v", err)
	}
	if err := d.RemoveChannelMembership(ctx, "u1", "c1"); err != nil {
		t.Fatalf("second remove: %v", err)
	}
	u, err = d.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(u.Channels) != 0 {
		t.Fatalf("channels after remove = %+v", u.Channels)
	}
}

func TestSetSignedIn(t *testing.T) {
	d := newTestDirectory(t)
	mustRegister(t, d, "u1", "Ada")
	ctx := context.Background()

	if err := d.SetSignedIn(ctx, "u1", true); err != nil {
		t.Fatalf("SetSignedIn(true): %v", err)
	}
	u, err := d.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !u.SignedIn {
		t.Fatal("signed_in not set")
	}
	if u.Email != "Ada@example.com" {
		t.Fatalf("presence flip touched profile: %q", u.Email)
	}

	if err := d.SetSignedIn(ctx, "u1", false); err != nil {
		t.Fatalf("SetSignedIn(false): %v", err)
	}
	u, err = d.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if u.SignedIn {
		t.Fatal("signed_in not cleared")
	}
}

func TestSaveEmojiMovesToEnd(t *testing.T) {
	d := newTestDirectory(t)
	mustRegister(t, d, "u1", "Ada")
	ctx := context.Background()

	for _, e := range []string{"👍", "🎉", "👍"} {
		if err := d.SaveEmoji(ctx, "u1", e); err != nil {
			t.Fatalf("SaveEmoji %s: %v", e, err)
		}
	}
	u, err := d.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(u.SavedEmojis) != 2 || u.SavedEmojis[0] != "🎉" || u.SavedEmojis[1] != "👍" {
		t.Fatalf("saved emojis = %+v", u.SavedEmojis)
	}
}

func TestSaveEmojiBounded(t *testing.T) {
	d := newTestDirectory(t)
	mustRegister(t, d, "u1", "Ada")
	ctx := context.Background()

	for i := 0; i < maxSavedEmojis+5; i++ {
		if err := d.SaveEmoji(ctx, "u1", string(rune('a'+i))); err != nil {
			t.Fatalf("SaveEmoji: %v", err)
		}
	}
	u, err := d.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(u.SavedEmojis) != maxSavedEmojis {
		t.Fatalf("saved emojis len = %d", len(u.SavedEmojis))
	}
	if u.SavedEmojis[len(u.SavedEmojis)-1] != string(rune('a'+maxSavedEmojis+4)) {
		t.Fatalf("latest emoji lost: %+v", u.SavedEmojis)
	}
}

func TestListAllSnapshots(t *testing.T) {
	d := newTestDirectory(t)
	mustRegister(t, d, "u1", "Ada")
	mustRegister(t, d, "u2", "Bob")

	seen := map[string]bool{}
	for u, err := range d.ListAll(context.Background()) {
		if err != nil {
			t.Fatalf("ListAll: %v", err)
		}
		seen[u.ID] = true
	}
	if !seen["u1"] || !seen["u2"] {
		t.Fatalf("seen = %+v", seen)
	}
}
