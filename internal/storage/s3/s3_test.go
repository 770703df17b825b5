package s3

import (
	"context"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/johannesboyne/gofakes3"
	"github.com/johannesboyne/gofakes3/backend/s3mem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/receiptvault/internal/netx"
)

func setupFakeS3(t *testing.T) (*httptest.Server, Config) {
	t.Helper()
	backend := s3mem.New()
	faker := gofakes3.New(backend)
	server := httptest.NewServer(faker.Server())
	t.Cleanup(server.Close)

	bucket := "receiptvault-test"
	require.NoError(t, backend.CreateBucket(bucket))

	cfg := Config{
		Bucket:         bucket,
		Region:         "us-east-1",
		Endpoint:       server.URL,
		AccessKey:      "test",
		SecretKey:      "test",
		ForcePathStyle: true,
	}
	return server, cfg
}

func newTestBackend(t *testing.T) *Backend {
	t.Helper()
	_, cfg := setupFakeS3(t)
	b, err := New(context.Background(), cfg)
	require.NoError(t, err)
	return b
}

func TestNew_RequiresBucket(t *testing.T) {
	_, err := New(context.Background(), Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bucket")
}

func TestSaveExistsDeleteRoundTrip(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	content := "jpeg bytes"
	key, err := b.Save(ctx, "receipts/42/abc_receipt.jpg", strings.NewReader(content), int64(len(content)), "image/jpeg")
	require.NoError(t, err)
	assert.Equal(t, "receipts/42/abc_receipt.jpg", key)

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
	require.NoError(t, b.Delete(context.Background(), "receipts/42/missing.jpg"))
}

func TestSave_CollisionGetsTimestampSuffix(t *testing.T) {
	b := newTestBackend(t)
	b.now = func() time.Time { return time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC) }
	ctx := context.Background()

	first, err := b.Save(ctx, "receipts/42/fixed.jpg", strings.NewReader("one"), 3, "image/jpeg")
	require.NoError(t, err)
	second, err := b.Save(ctx, "receipts/42/fixed.jpg", strings.NewReader("two"), 3, "image/jpeg")
	require.NoError(t, err)

	assert.Equal(t, "receipts/42/fixed.jpg", first)
	assert.Equal(t, "receipts/42/fixed_20260314_150926.jpg", second)
}

func TestIssueURL_SignedAndTimeBounded(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	_, err := b.Save(ctx, "receipts/42/a.jpg", strings.NewReader("x"), 1, "image/jpeg")
	require.NoError(t, err)

	url, err := b.IssueURL(ctx, "receipts/42/a.jpg", 5*time.Minute)
	require.NoError(t, err)
	assert.Contains(t, url, "receipts/42/a.jpg")
	assert.Contains(t, url, "X-Amz-Expires=300")
	assert.Contains(t, url, "X-Amz-Signature=")
}

func TestIssueURL_DefaultTTL(t *testing.T) {
	b := newTestBackend(t)

	url, err := b.IssueURL(context.Background(), "receipts/42/a.jpg", 0)
	require.NoError(t, err)
	assert.Contains(t, url, fmt.Sprintf("X-Amz-Expires=%d", int(DefaultURLTTL.Seconds())))
}

func TestIssueURL_DownloadRoundTrip(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	content := "presigned payload"
	key, err := b.Save(ctx, "receipts/42/dl_receipt.jpg", strings.NewReader(content), int64(len(content)), "image/jpeg")
	require.NoError(t, err)

	url, err := b.IssueURL(ctx, key, time.Minute)
	require.NoError(t, err)

	got, err := netx.DownloadFromPresignedURL(ctx, url)
	require.NoError(t, err)
	assert.Equal(t, content, string(got))
}

func TestListPrefix_PagesWithContinuationToken(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		key := fmt.Sprintf("receipts/42/tok%02d_r.jpg", i)
		_, err := b.Save(ctx, key, strings.NewReader("x"), 1, "image/jpeg")
		require.NoError(t, err)
	}
	_, err := b.Save(ctx, "receipts/7/other.jpg", strings.NewReader("x"), 1, "image/jpeg")
	require.NoError(t, err)

	var keys []string
	token := ""
	pages := 0
	for {
		page, err := b.ListPrefix(ctx, "receipts/42/", token, 2)
		require.NoError(t, err)
		pages++
		for _, obj := range page.Objects {
			keys = append(keys, obj.Key)
			assert.Equal(t, int64(1), obj.Size)
			assert.False(t, obj.LastModified.IsZero())
		}
		if page.NextToken == "" {
			break
		}
		token = page.NextToken
	}

	assert.GreaterOrEqual(t, pages, 3)
	assert.Len(t, keys, 5)
	for _, k := range keys {
		assert.True(t, strings.HasPrefix(k, "receipts/42/"), "key %q", k)
	}
}

func TestListPrefix_EmptyPrefix(t *testing.T) {
	b := newTestBackend(t)

	page, err := b.ListPrefix(context.Background(), "receipts/999/", "", 0)
	require.NoError(t, err)
	assert.Empty(t, page.Objects)
	assert.Empty(t, page.NextToken)
}

func TestRotateEncryptionKey_RequiresNewKey(t *testing.T) {
	b := newTestBackend(t)

	err := b.RotateEncryptionKey(context.Background(), "receipts/42/a.jpg", "old", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "new key id")
}
