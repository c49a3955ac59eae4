package blob

import "context"

// Ref points at an uploaded blob. Refs are opaque to callers; only the blob
// store that issued a ref can resolve it.
type Ref string

// Store holds binary payloads (avatars, post attachments) outside the
// durable record store.
type Store interface {
	// Upload stores data under a location derived from path and returns
	// the reference to hand to Download/Delete.
	Upload(ctx context.Context, path string, data []byte) (Ref, error)
	Download(ctx context.Context, ref Ref) ([]byte, error)
	Delete(ctx context.Context, ref Ref) error
}
