package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/sethvargo/go-retry"

	"github.com/tastebase/tastebase/internal/common"
	"github.com/tastebase/tastebase/internal/models"
)

// S3Options configures the S3-backed client. Each partition maps to one
// bucket; an empty PublicBucket disables the public partition.
type S3Options struct {
	Endpoint      string
	Region        string
	AccessKey     string
	SecretKey     string
	PrivateBucket string
	PublicBucket  string
}

// s3API is the subset of *s3.Client we call; narrowed for tests.
type s3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// S3Client stores records as JSON objects under records/<kind>/<id>.json and
// assets under assets/<id>.jpg, one bucket per partition.
type S3Client struct {
	api     s3API
	buckets map[Partition]string
}

// NewS3Client builds an S3Client for an S3-compatible endpoint (AWS, MinIO).
func NewS3Client(ctx context.Context, opts S3Options) (*S3Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(opts.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			opts.AccessKey, opts.SecretKey, "",
		)))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		o.UsePathStyle = true
	})

	buckets := map[Partition]string{PartitionPrivate: opts.PrivateBucket}
	if opts.PublicBucket != "" {
		buckets[PartitionPublic] = opts.PublicBucket
	}

	return &S3Client{api: client, buckets: buckets}, nil
}

func recordKey(kind models.Kind, entityID string) string {
	return fmt.Sprintf("records/%s/%s.json", kind, entityID)
}

func assetKey(entityID string) string {
	return fmt.Sprintf("assets/%s.jpg", entityID)
}

func (c *S3Client) bucket(p Partition) (string, error) {
	b, ok := c.buckets[p]
	if !ok || b == "" {
		return "", fmt.Errorf("%w: partition %q not configured", common.ErrNetworkUnavailable, p)
	}
	return b, nil
}

func (c *S3Client) SaveRecord(ctx context.Context, p Partition, rec *Record) (string, error) {
	bucket, err := c.bucket(p)
	if err != nil {
		return "", err
	}

	key := recordKey(rec.Kind, rec.EntityID)
	stored := *rec
	stored.RecordID = key

	body, err := json.Marshal(&stored)
	if err != nil {
		return "", fmt.Errorf("%w: marshal record: %v", common.ErrInvalidData, err)
	}

	err = c.withRetry(ctx, func(ctx context.Context) error {
		_, err := c.api.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      &bucket,
			Key:         &key,
			Body:        bytes.NewReader(body),
			ContentType: aws.String("application/json"),
		})
		return err
	})
	if err != nil {
		return "", classify(err)
	}
	return key, nil
}

func (c *S3Client) FetchRecord(ctx context.Context, p Partition, kind models.Kind, entityID string) (*Record, error) {
	bucket, err := c.bucket(p)
	if err != nil {
		return nil, err
	}

	key := recordKey(kind, entityID)
	out, err := c.api.GetObject(ctx, &s3.GetObjectInput{Bucket: &bucket, Key: &key})
	if err != nil {
		return nil, classify(err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, classify(err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: unmarshal record: %v", common.ErrInvalidData, err)
	}
	return &rec, nil
}

func (c *S3Client) DeleteRecord(ctx context.Context, p Partition, kind models.Kind, entityID string) error {
	bucket, err := c.bucket(p)
	if err != nil {
		return err
	}

	key := recordKey(kind, entityID)
	_, err = c.api.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: &bucket, Key: &key})
	if err != nil {
		err = classify(err)
		if errors.Is(err, common.ErrNotFound) {
			return nil
		}
		return err
	}
	return nil
}

func (c *S3Client) ListRecords(ctx context.Context, p Partition, kind models.Kind, ownerID string) ([]*Record, error) {
	bucket, err := c.bucket(p)
	if err != nil {
		return nil, err
	}

	prefix := fmt.Sprintf("records/%s/", kind)
	var result []*Record
	var token *string
	for {
		out, err := c.api.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            &bucket,
			Prefix:            &prefix,
			ContinuationToken: token,
		})
		if err != nil {
			return nil, classify(err)
		}
		for _, obj := range out.Contents {
			if obj.Key == nil {
				continue
			}
			id := strings.TrimSuffix(strings.TrimPrefix(*obj.Key, prefix), ".json")
			rec, err := c.FetchRecord(ctx, p, kind, id)
			if errors.Is(err, common.ErrNotFound) {
				continue // deleted between list and fetch
			}
			if err != nil {
				return nil, err
			}
			if ownerID == "" || rec.OwnerID == ownerID {
				result = append(result, rec)
			}
		}
		if out.IsTruncated == nil || !*out.IsTruncated {
			break
		}
		token = out.NextContinuationToken
	}
	return result, nil
}

func (c *S3Client) UploadAsset(ctx context.Context, p Partition, entityID string, data []byte) (string, error) {
	bucket, err := c.bucket(p)
	if err != nil {
		return "", err
	}

	key := assetKey(entityID)
	err = c.withRetry(ctx, func(ctx context.Context) error {
		_, err := c.api.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      &bucket,
			Key:         &key,
			Body:        bytes.NewReader(data),
			ContentType: aws.String("image/jpeg"),
		})
		return err
	})
	if err != nil {
		return "", classify(err)
	}
	return key, nil
}

func (c *S3Client) DownloadAsset(ctx context.Context, p Partition, entityID string) ([]byte, error) {
	bucket, err := c.bucket(p)
	if err != nil {
		return nil, err
	}

	key := assetKey(entityID)
	out, err := c.api.GetObject(ctx, &s3.GetObjectInput{Bucket: &bucket, Key: &key})
	if err != nil {
		return nil, classify(err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, classify(err)
	}
	return data, nil
}

func (c *S3Client) DeleteAsset(ctx context.Context, p Partition, entityID string) error {
	bucket, err := c.bucket(p)
	if err != nil {
		return err
	}

	key := assetKey(entityID)
	_, err = c.api.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: &bucket, Key: &key})
	if err != nil {
		err = classify(err)
		if errors.Is(err, common.ErrNotFound) {
			return nil
		}
		return err
	}
	return nil
}

func (c *S3Client) Available(ctx context.Context) error {
	bucket, err := c.bucket(PartitionPrivate)
	if err != nil {
		return err
	}
	if _, err := c.api.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: &bucket}); err != nil {
		return classify(err)
	}
	return nil
}

// withRetry retries transient write faults a few times before handing the
// failure to the pending-set machinery. Terminal classifications (quota,
// bad data) are not retried here.
func (c *S3Client) withRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	backoff := retry.WithMaxRetries(2, retry.NewExponential(200*time.Millisecond))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if common.Retryable(classify(err)) {
			return retry.RetryableError(err)
		}
		return err
	})
}

// classify maps transport/API failures onto the shared sentinel errors.
// An error with no API response means we never reached the store.
func classify(err error) error {
	if err == nil {
		return nil
	}

	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return fmt.Errorf("%w: %v", common.ErrNetworkUnavailable, err)
	}

	switch apiErr.ErrorCode() {
	case "NoSuchKey", "NotFound", "NoSuchBucket":
		return fmt.Errorf("%w: %s", common.ErrNotFound, apiErr.ErrorCode())
	case "QuotaExceeded", "XMinioStorageFull", "EntityTooLarge", "InsufficientStorage":
		return fmt.Errorf("%w: %s", common.ErrQuotaExceeded, apiErr.ErrorCode())
	case "PreconditionFailed", "OperationAborted", "SlowDown":
		return fmt.Errorf("%w: %s", common.ErrConflict, apiErr.ErrorCode())
	default:
		return fmt.Errorf("remote store error: %w", err)
	}
}
