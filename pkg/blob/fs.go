package blob

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/MartinInglin/da-bubble-sub000/pkg/errs"
	"github.com/MartinInglin/da-bubble-sub000/pkg/logger"
	"github.com/MartinInglin/da-bubble-sub000/pkg/utils"
)

// FS is a filesystem-backed blob store rooted at a single directory. Refs
// are relative paths with a random suffix so repeated uploads to the same
// path never collide.
type FS struct {
	root    string
	maxSize int64
}

var _ Store = (*FS)(nil)

// NewFS creates the root directory if needed. maxSize bounds a single
// upload in bytes; zero means unbounded.
func NewFS(root string, maxSize int64) (*FS, error) {
	if root == "" {
		return nil, &errs.ValidationError{Field: "root", Reason: "is required"}
	}
	if err := os.MkdirAll(root, 0o700); err != nil {
		return nil, fmt.Errorf("%w: create blob root: %v", errs.ErrTransientIO, err)
	}
	return &FS{root: root, maxSize: maxSize}, nil
}

func (f *FS) Upload(ctx context.Context, path string, data []byte) (Ref, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if f.maxSize > 0 && int64(len(data)) > f.maxSize {
		return "", &errs.ValidationError{Field: "data", Reason: fmt.Sprintf("exceeds max blob size %d", f.maxSize)}
	}
	rel := sanitize(path) + "-" + utils.GenBlobRef()
	full := filepath.Join(f.root, rel)
	if err := os.MkdirAll(filepath.Dir(full), 0o700); err != nil {
		return "", fmt.Errorf("%w: blob mkdir: %v", errs.ErrTransientIO, err)
	}
	if err := os.WriteFile(full, data, 0o600); err != nil {
		logger.Error("blob_upload_failed", "path", rel, "error", err)
		return "", fmt.Errorf("%w: blob write: %v", errs.ErrTransientIO, err)
	}
	logger.Debug("blob_uploaded", "ref", rel, "len", len(data))
	return Ref(rel), nil
}

func (f *FS) Download(ctx context.Context, ref Ref) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	full, err := f.resolve(ref)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("blob %s: %w", ref, errs.ErrNotFound)
		}
		return nil, fmt.Errorf("%w: blob read: %v", errs.ErrTransientIO, err)
	}
	return data, nil
}

func (f *FS) Delete(ctx context.Context, ref Ref) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	full, err := f.resolve(ref)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("blob %s: %w", ref, errs.ErrNotFound)
		}
		return fmt.Errorf("%w: blob delete: %v", errs.ErrTransientIO, err)
	}
	logger.Debug("blob_deleted", "ref", string(ref))
	return nil
}

// resolve rejects refs escaping the root.
func (f *FS) resolve(ref Ref) (string, error) {
	rel := filepath.Clean(string(ref))
	if rel == "" || strings.HasPrefix(rel, "..") || filepath.IsAbs(rel) {
		return "", &errs.ValidationError{Field: "ref", Reason: "is invalid"}
	}
	return filepath.Join(f.root, rel), nil
}

func sanitize(path string) string {
	path = strings.TrimLeft(filepath.Clean("/"+path), "/")
	if path == "" {
		return "blob"
	}
	return path
}
