// Package storage keeps contract and invoice documents in S3.
package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/contractlens/backend/internal/config"
)

// ObjectAPI is the subset of the S3 client the store uses.
type ObjectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// Presigner signs download URLs.
type Presigner interface {
	PresignGetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// Store uploads, signs and deletes documents in one bucket.
type Store struct {
	bucket    string
	ttl       time.Duration
	objects   ObjectAPI
	presigner Presigner
}

// NewStore wires a Store around existing clients.
func NewStore(bucket string, ttl time.Duration, objects ObjectAPI, presigner Presigner) *Store {
	return &Store{bucket: bucket, ttl: ttl, objects: objects, presigner: presigner}
}

// New builds an S3-backed Store from configuration. A custom endpoint allows
// S3-compatible services such as MinIO.
func New(ctx context.Context, cfg config.StorageConfig, awsCfg config.AWSConfig) (*Store, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(awsCfg.Region),
	}
	if awsCfg.AccessKeyID != "" && awsCfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(awsCfg.AccessKeyID, awsCfg.SecretKey, ""),
		))
	}

	sdkCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("storage: load AWS config: %w", err)
	}

	client := s3.NewFromConfig(sdkCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})
	return NewStore(cfg.Bucket, cfg.PresignTTL, client, s3.NewPresignClient(client)), nil
}

// Upload writes an object.
func (s *Store) Upload(ctx context.Context, key string, body io.Reader, size int64, contentType string) error {
	in := &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
	}
	if size > 0 {
		in.ContentLength = aws.Int64(size)
	}
	if _, err := s.objects.PutObject(ctx, in); err != nil {
		return fmt.Errorf("storage: put %s: %w", key, err)
	}
	return nil
}

// SignedURL returns a time-limited download URL.
func (s *Store) SignedURL(ctx context.Context, key string) (string, time.Time, error) {
	req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(s.ttl))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("storage: presign %s: %w", key, err)
	}
	return req.URL, time.Now().Add(s.ttl), nil
}

// Delete removes an object.
func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.objects.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}); err != nil {
		return fmt.Errorf("storage: delete %s: %w", key, err)
	}
	return nil
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// SafeName strips path components and unsafe characters from a file name.
func SafeName(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	name = strings.Trim(unsafeChars.ReplaceAllString(name, "_"), "_.")
	if name == "" {
		return "document"
	}
	return name
}

// DocumentKey is the object key of a contract document. Keys are scoped by
// user so one user's prefix never overlaps another's.
func DocumentKey(userID, contractID uuid.UUID, filename string, at time.Time) string {
	return fmt.Sprintf("%s/contracts/%s/%d_%s", userID, contractID, at.UnixMilli(), SafeName(filename))
}

// InvoiceKey is the object key of an invoice document.
func InvoiceKey(userID uuid.UUID, invoiceNumber, filename string, at time.Time) string {
	ext := strings.TrimPrefix(path.Ext(SafeName(filename)), ".")
	if ext == "" {
		ext = "bin"
	}
	return fmt.Sprintf("%s/%s_%d.%s", userID, SafeName(invoiceNumber), at.UnixMilli(), ext)
}

// OwnedBy reports whether key belongs to userID's prefix.
func OwnedBy(key string, userID uuid.UUID) bool {
	return strings.HasPrefix(key, userID.String()+"/") && !strings.Contains(key, "..")
}
