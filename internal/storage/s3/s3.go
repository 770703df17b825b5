// Package s3 implements storage.Backend against S3-compatible object
// storage using aws-sdk-go-v2. Writes apply server-side encryption under
// a configured KMS key, read URLs are presigned and time-bounded, and
// listings page via continuation tokens.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/dmitrijs2005/receiptvault/internal/storage"
)

// DefaultURLTTL is used when a caller passes a non-positive ttl.
const DefaultURLTTL = 15 * time.Minute

// Config controls the S3 backend.
type Config struct {
	Bucket   string
	Region   string
	Endpoint string
	// AccessKey/SecretKey select static credentials (MinIO-style); the
	// default AWS chain is used when empty.
	AccessKey string
	SecretKey string
	// KMSKeyID identifies the envelope-encryption key applied on Save
	// when EnvelopeEncryption is set.
	KMSKeyID           string
	EnvelopeEncryption bool
	ForcePathStyle     bool
}

// Backend is the remote object store implementation.
type Backend struct {
	client  *awss3.Client
	presign *awss3.PresignClient
	cfg     Config
	now     func() time.Time
}

// New constructs a Backend from cfg.
func New(ctx context.Context, cfg Config) (*Backend, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3: bucket is required")
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("s3: load aws config: %w", err)
	}

	client := awss3.NewFromConfig(awsCfg, func(o *awss3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.ForcePathStyle
		// MinIO and other S3-compatible stores reject the streaming
		// checksum trailers the SDK sends by default.
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		o.ResponseChecksumValidation = aws.ResponseChecksumValidationWhenRequired
	})

	return &Backend{
		client:  client,
		presign: awss3.NewPresignClient(client),
		cfg:     cfg,
		now:     time.Now,
	}, nil
}

// Save uploads content under key, resolving collisions for pre-chosen
// keys via the timestamp fallback, and applies SSE-KMS when envelope
// encryption is configured.
func (b *Backend) Save(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error) {
	finalKey, err := storage.AvailableKey(ctx, b, key, b.now())
	if err != nil {
		return "", err
	}
	input := &awss3.PutObjectInput{
		Bucket:        aws.String(b.cfg.Bucket),
		Key:           aws.String(finalKey),
		Body:          r,
		ContentLength: aws.Int64(size),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if b.cfg.EnvelopeEncryption {
		input.ServerSideEncryption = types.ServerSideEncryptionAwsKms
		if b.cfg.KMSKeyID != "" {
			input.SSEKMSKeyId = aws.String(b.cfg.KMSKeyID)
		}
	}
	if _, err := b.client.PutObject(ctx, input); err != nil {
		return "", storage.WrapErr("save", finalKey, err)
	}
	return finalKey, nil
}

// Delete removes the object. S3 deletes are idempotent; a missing key is
// not an error.
func (b *Backend) Delete(ctx context.Context, key string) error {
	_, err := b.client.DeleteObject(ctx, &awss3.DeleteObjectInput{
		Bucket: aws.String(b.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return storage.WrapErr("delete", key, err)
	}
	return nil
}

func (b *Backend) Exists(ctx context.Context, key string) (bool, error) {
	_, err := b.client.HeadObject(ctx, &awss3.HeadObjectInput{
		Bucket: aws.String(b.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, storage.WrapErr("head", key, err)
	}
	return true, nil
}

// IssueURL returns a presigned GET URL whose expiry is enforced by the
// remote store.
func (b *Backend) IssueURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = DefaultURLTTL
	}
	req, err := b.presign.PresignGetObject(ctx, &awss3.GetObjectInput{
		Bucket: aws.String(b.cfg.Bucket),
		Key:    aws.String(key),
	}, awss3.WithPresignExpires(ttl))
	if err != nil {
		return "", storage.WrapErr("presign", key, err)
	}
	return req.URL, nil
}

// ListPrefix returns one page of objects under prefix using the S3
// continuation-token mechanism, bounding memory per page.
func (b *Backend) ListPrefix(ctx context.Context, prefix, pageToken string, pageSize int) (*storage.ListPage, error) {
	if pageSize <= 0 {
		pageSize = storage.DefaultPageSize
	}
	input := &awss3.ListObjectsV2Input{
		Bucket:  aws.String(b.cfg.Bucket),
		Prefix:  aws.String(prefix),
		MaxKeys: aws.Int32(int32(pageSize)),
	}
	if pageToken != "" {
		input.ContinuationToken = aws.String(pageToken)
	}
	out, err := b.client.ListObjectsV2(ctx, input)
	if err != nil {
		return nil, storage.WrapErr("list", prefix, err)
	}
	page := &storage.ListPage{
		Objects: make([]storage.ObjectInfo, 0, len(out.Contents)),
	}
	for _, obj := range out.Contents {
		page.Objects = append(page.Objects, storage.ObjectInfo{
			Key:          aws.ToString(obj.Key),
			Size:         aws.ToInt64(obj.Size),
			LastModified: aws.ToTime(obj.LastModified),
		})
	}
	if aws.ToBool(out.IsTruncated) {
		page.NextToken = aws.ToString(out.NextContinuationToken)
	}
	return page, nil
}

// RotateEncryptionKey re-wraps the object under newKeyID with an
// in-place copy-to-self, preserving content and metadata. oldKeyID is
// informational; S3 decrypts with whatever key the object carries.
func (b *Backend) RotateEncryptionKey(ctx context.Context, key, oldKeyID, newKeyID string) error {
	if newKeyID == "" {
		return fmt.Errorf("s3: new key id is required")
	}
	// Keys are sanitized to URL-safe characters, so no escaping is needed
	// beyond the bucket/key join.
	source := b.cfg.Bucket + "/" + key
	_, err := b.client.CopyObject(ctx, &awss3.CopyObjectInput{
		Bucket:               aws.String(b.cfg.Bucket),
		Key:                  aws.String(key),
		CopySource:           aws.String(source),
		ServerSideEncryption: types.ServerSideEncryptionAwsKms,
		SSEKMSKeyId:          aws.String(newKeyID),
		MetadataDirective:    types.MetadataDirectiveCopy,
	})
	if err != nil {
		return storage.WrapErr("rotate", key, err)
	}
	return nil
}

func isNotFound(err error) bool {
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return true
	}
	var noSuchKey *types.NoSuchKey
	return errors.As(err, &noSuchKey)
}

var _ storage.Backend = (*Backend)(nil)
var _ storage.Rotator = (*Backend)(nil)
