// Package local implements storage.Backend on the local filesystem,
// rooted at a configured media directory.
package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dmitrijs2005/receiptvault/internal/filex"
	"github.com/dmitrijs2005/receiptvault/internal/storage"
)

// Backend writes objects under a media root directory. Object keys map
// directly to relative file paths.
type Backend struct {
	root    string
	baseURL string
	now     func() time.Time
}

// New constructs a Backend rooted at mediaRoot. baseURL prefixes the
// static paths returned by IssueURL.
func New(mediaRoot, baseURL string) (*Backend, error) {
	if mediaRoot == "" {
		return nil, fmt.Errorf("local: media root is required")
	}
	abs, err := filepath.Abs(mediaRoot)
	if err != nil {
		return nil, fmt.Errorf("local: resolve media root: %w", err)
	}
	if err := filex.EnsureDir(abs); err != nil {
		return nil, fmt.Errorf("local: %w", err)
	}
	return &Backend{
		root:    abs,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		now:     time.Now,
	}, nil
}

// keyPath maps an object key to an absolute path, refusing anything that
// would escape the media root.
func (b *Backend) keyPath(key string) (string, error) {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "..") ||
		strings.ContainsAny(key, "\\\x00") {
		return "", fmt.Errorf("local: invalid key %q", key)
	}
	full := filepath.Join(b.root, filepath.FromSlash(key))
	if !strings.HasPrefix(full, b.root+string(filepath.Separator)) {
		return "", fmt.Errorf("local: key %q escapes media root", key)
	}
	return full, nil
}

// Save writes content under key, falling back to a timestamp-suffixed
// key when the requested one is taken.
func (b *Backend) Save(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error) {
	finalKey, err := storage.AvailableKey(ctx, b, key, b.now())
	if err != nil {
		return "", err
	}
	full, err := b.keyPath(finalKey)
	if err != nil {
		return "", err
	}
	if err := filex.EnsureDir(filepath.Dir(full)); err != nil {
		return "", storage.WrapErr("save", finalKey, err)
	}
	f, err := os.OpenFile(full, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o660)
	if err != nil {
		return "", storage.WrapErr("save", finalKey, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(full)
		return "", storage.WrapErr("save", finalKey, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(full)
		return "", storage.WrapErr("save", finalKey, err)
	}
	return finalKey, nil
}

// Delete removes the object; a missing key is not an error.
func (b *Backend) Delete(ctx context.Context, key string) error {
	full, err := b.keyPath(key)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return storage.WrapErr("delete", key, err)
	}
	return nil
}

func (b *Backend) Exists(ctx context.Context, key string) (bool, error) {
	full, err := b.keyPath(key)
	if err != nil {
		return false, err
	}
	fi, err := os.Stat(full)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, storage.WrapErr("stat", key, err)
	}
	return !fi.IsDir(), nil
}

// IssueURL returns a static path under the configured base URL. The ttl
// is ignored: local media has no real expiring grant. Documented
// limitation of this backend.
func (b *Backend) IssueURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if _, err := b.keyPath(key); err != nil {
		return "", err
	}
	return b.baseURL + "/" + key, nil
}

// ListPrefix walks the tree under prefix and returns one page of keys in
// lexical order. The continuation token is the last key of the previous
// page.
func (b *Backend) ListPrefix(ctx context.Context, prefix, pageToken string, pageSize int) (*storage.ListPage, error) {
	if pageSize <= 0 {
		pageSize = storage.DefaultPageSize
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Walk the deepest directory fully covering the prefix; the prefix
	// itself may end mid-filename.
	walkDir := b.root
	if prefix != "" {
		dirPart := prefix
		if i := strings.LastIndex(prefix, "/"); i >= 0 {
			dirPart = prefix[:i]
		} else {
			dirPart = ""
		}
		if dirPart != "" {
			full, err := b.keyPath(strings.TrimSuffix(dirPart, "/"))
			if err != nil {
				return nil, err
			}
			walkDir = full
		}
	}

	var infos []storage.ObjectInfo
	err := filepath.WalkDir(walkDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(b.root, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		infos = append(infos, storage.ObjectInfo{
			Key:          key,
			Size:         fi.Size(),
			LastModified: fi.ModTime(),
		})
		return nil
	})
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, storage.WrapErr("list", prefix, err)
	}

	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })

	start := 0
	if pageToken != "" {
		start = sort.Search(len(infos), func(i int) bool { return infos[i].Key > pageToken })
	}
	end := start + pageSize
	if end > len(infos) {
		end = len(infos)
	}
	page := &storage.ListPage{Objects: infos[start:end]}
	if end < len(infos) {
		page.NextToken = infos[end-1].Key
	}
	return page, nil
}

// RemoveNamespace removes the directory behind an owner prefix when it
// is empty. Best-effort; callers log and swallow failures.
func (b *Backend) RemoveNamespace(ctx context.Context, prefix string) error {
	dir, err := b.keyPath(strings.TrimSuffix(prefix, "/"))
	if err != nil {
		return err
	}
	empty, err := filex.DirIsEmpty(dir)
	if err != nil {
		return err
	}
	if !empty {
		return fmt.Errorf("local: namespace %q not empty", prefix)
	}
	return os.Remove(dir)
}

var _ storage.Backend = (*Backend)(nil)
var _ storage.NamespaceCleaner = (*Backend)(nil)
