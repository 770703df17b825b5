package local

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/receiptvault/internal/storage"
)

func newTestBackend(t *testing.T) *Backend {
	t.Helper()
	b, err := New(t.TempDir(), "/media")
	require.NoError(t, err)
	return b
}

func save(t *testing.T, b *Backend, key, content string) string {
	t.Helper()
	final, err := b.Save(context.Background(), key, strings.NewReader(content), int64(len(content)), "image/jpeg")
	require.NoError(t, err)
	return final
}

func TestSaveExistsDeleteRoundTrip(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	key := save(t, b, "receipts/42/abc123_receipt.jpg", "payload")
	assert.Equal(t, "receipts/42/abc123_receipt.jpg", key)

	ok, err := b.Exists(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, b.Delete(ctx, key))

	ok, err = b.Exists(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDelete_MissingKeyIsNotAnError(t *testing.T) {
	b := newTestBackend(t)
	require.NoError(t, b.Delete(context.Background(), "receipts/42/never_there.jpg"))
}

func TestSave_CollisionGetsTimestampSuffix(t *testing.T) {
	b := newTestBackend(t)
	b.now = func() time.Time { return time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC) }

	first := save(t, b, "receipts/42/fixed.jpg", "one")
	second := save(t, b, "receipts/42/fixed.jpg", "two")

	assert.Equal(t, "receipts/42/fixed.jpg", first)
	assert.Equal(t, "receipts/42/fixed_20260314_150926.jpg", second)

	ok, err := b.Exists(context.Background(), second)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestKeyPath_RejectsEscapes(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	bad := []string{
		"../outside.jpg",
		"receipts/../../etc/passwd",
		"/absolute.jpg",
		"receipts\\42\\x.jpg",
		"receipts/42/x\x00.jpg",
		"",
	}
	for _, key := range bad {
		_, err := b.Exists(ctx, key)
		assert.Error(t, err, "key %q", key)
	}
}

func TestIssueURL_StaticPathIgnoresTTL(t *testing.T) {
	b := newTestBackend(t)

	url, err := b.IssueURL(context.Background(), "receipts/42/abc_receipt.jpg", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "/media/receipts/42/abc_receipt.jpg", url)

	urlNoTTL, err := b.IssueURL(context.Background(), "receipts/42/abc_receipt.jpg", 0)
	require.NoError(t, err)
	assert.Equal(t, url, urlNoTTL)
}

func TestListPrefix_PagesInLexicalOrder(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	keys := []string{
		"receipts/42/a_one.jpg",
		"receipts/42/b_two.jpg",
		"receipts/42/c_three.jpg",
		"receipts/7/z_other.jpg",
	}
	for _, k := range keys {
		save(t, b, k, "x")
	}

	page, err := b.ListPrefix(ctx, "receipts/42/", "", 2)
	require.NoError(t, err)
	require.Len(t, page.Objects, 2)
	assert.Equal(t, "receipts/42/a_one.jpg", page.Objects[0].Key)
	assert.Equal(t, "receipts/42/b_two.jpg", page.Objects[1].Key)
	require.NotEmpty(t, page.NextToken)

	page2, err := b.ListPrefix(ctx, "receipts/42/", page.NextToken, 2)
	require.NoError(t, err)
	require.Len(t, page2.Objects, 1)
	assert.Equal(t, "receipts/42/c_three.jpg", page2.Objects[0].Key)
	assert.Empty(t, page2.NextToken)
}

func TestListPrefix_RootPrefixSeesAllOwners(t *testing.T) {
	b := newTestBackend(t)

	save(t, b, "receipts/7/a.jpg", "x")
	save(t, b, "receipts/42/b.jpg", "x")

	page, err := b.ListPrefix(context.Background(), "receipts/", "", 0)
	require.NoError(t, err)
	assert.Len(t, page.Objects, 2)
	assert.Empty(t, page.NextToken)
}

func TestListPrefix_MissingPrefixIsEmpty(t *testing.T) {
	b := newTestBackend(t)

	page, err := b.ListPrefix(context.Background(), "receipts/999/", "", 0)
	require.NoError(t, err)
	assert.Empty(t, page.Objects)
}

func TestListPrefix_ReportsSizeAndModTime(t *testing.T) {
	b := newTestBackend(t)

	save(t, b, "receipts/42/a.jpg", "four")
	page, err := b.ListPrefix(context.Background(), "receipts/42/", "", 0)
	require.NoError(t, err)
	require.Len(t, page.Objects, 1)
	assert.Equal(t, int64(4), page.Objects[0].Size)
	assert.WithinDuration(t, time.Now(), page.Objects[0].LastModified, time.Minute)
}

func TestRemoveNamespace(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	key := save(t, b, "receipts/42/a.jpg", "x")

	// Refuses while the namespace still holds objects.
	require.Error(t, b.RemoveNamespace(ctx, "receipts/42/"))

	require.NoError(t, b.Delete(ctx, key))
	require.NoError(t, b.RemoveNamespace(ctx, "receipts/42/"))

	_, err := os.Stat(filepath.Join(b.root, "receipts", "42"))
	assert.True(t, os.IsNotExist(err))
}

func TestSave_ContentWritten(t *testing.T) {
	b := newTestBackend(t)

	content := bytes.Repeat([]byte{0xFF, 0xD8, 0xFF, 0x00}, 512)
	final, err := b.Save(context.Background(), "receipts/42/img.jpg", bytes.NewReader(content), int64(len(content)), "image/jpeg")
	require.NoError(t, err)

	got, err := os.ReadFile(filepath.Join(b.root, filepath.FromSlash(final)))
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

var _ storage.Backend = (*Backend)(nil)
