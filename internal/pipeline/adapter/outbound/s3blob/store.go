package s3blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/anthanhphan/gosdk/logger"
	"github.com/anthanhphan/statement-pipeline/internal/pipeline/config"
	"github.com/anthanhphan/statement-pipeline/internal/pipeline/port"
	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// maxDeleteBatch is the DeleteObjects request limit.
const maxDeleteBatch = 1000

// API is the subset of the S3 client used by the store.
type API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	DeleteObjects(ctx context.Context, in *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
}

// Presigner issues signed GET requests.
type Presigner interface {
	PresignGetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// Store is a port.BlobStore backed by S3 or an S3-compatible endpoint.
type Store struct {
	api       API
	presigner Presigner
}

// Ensure Store implements port.BlobStore.
var _ port.BlobStore = (*Store)(nil)

// New wraps an existing client pair.
func New(api API, presigner Presigner) *Store {
	return &Store{api: api, presigner: presigner}
}

// NewFromConfig loads AWS credentials from the default chain and builds a store
// for the configured region and endpoint.
func NewFromConfig(ctx context.Context, cfg config.StorageConfig) (*Store, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	logger.Infow("S3 blob store configured", "region", cfg.Region, "endpoint", cfg.Endpoint, "path_style", cfg.UsePathStyle)
	return New(client, s3.NewPresignClient(client)), nil
}

// Put uploads data. Without opts.Overwrite the write is conditional on the key
// being absent.
func (s *Store) Put(ctx context.Context, bucket, key string, data []byte, opts port.PutOptions) error {
	in := &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	}
	if opts.ContentType != "" {
		in.ContentType = aws.String(opts.ContentType)
	}
	if opts.CacheControl != "" {
		in.CacheControl = aws.String("max-age=" + opts.CacheControl)
	}
	if !opts.Overwrite {
		in.IfNoneMatch = aws.String("*")
	}

	if _, err := s.api.PutObject(ctx, in); err != nil {
		if hasCode(err, "PreconditionFailed", "ConditionalRequestConflict") {
			return fmt.Errorf("%w: %s/%s", port.ErrObjectExists, bucket, key)
		}
		return fmt.Errorf("put %s/%s: %w", bucket, key, err)
	}
	return nil
}

// Get downloads the object.
func (s *Store) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	out, err := s.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) || hasCode(err, "NoSuchKey", "NotFound") {
			return nil, fmt.Errorf("%w: %s/%s", port.ErrObjectNotFound, bucket, key)
		}
		return nil, fmt.Errorf("get %s/%s: %w", bucket, key, err)
	}
	defer func() { _ = out.Body.Close() }()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s/%s: %w", bucket, key, err)
	}
	return data, nil
}

// List pages through every object below prefix.
func (s *Store) List(ctx context.Context, bucket, prefix string) ([]port.ObjectInfo, error) {
	paginator := s3.NewListObjectsV2Paginator(s.api, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix),
	})

	var out []port.ObjectInfo
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list %s/%s: %w", bucket, prefix, err)
		}
		for _, obj := range page.Contents {
			info := port.ObjectInfo{Key: aws.ToString(obj.Key), Size: aws.ToInt64(obj.Size)}
			if obj.LastModified != nil {
				info.CreatedAt = obj.LastModified.UTC()
			}
			out = append(out, info)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// ListFolders returns the common prefixes one level below prefix.
func (s *Store) ListFolders(ctx context.Context, bucket, prefix string) ([]string, error) {
	paginator := s3.NewListObjectsV2Paginator(s.api, &s3.ListObjectsV2Input{
		Bucket:    aws.String(bucket),
		Prefix:    aws.String(prefix),
		Delimiter: aws.String("/"),
	})

	var out []string
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list folders %s/%s: %w", bucket, prefix, err)
		}
		for _, p := range page.CommonPrefixes {
			out = append(out, aws.ToString(p.Prefix))
		}
	}
	sort.Strings(out)
	return out, nil
}

// Delete removes keys in batches. A per-key error fails the call.
func (s *Store) Delete(ctx context.Context, bucket string, keys []string) error {
	for start := 0; start < len(keys); start += maxDeleteBatch {
		end := min(start+maxDeleteBatch, len(keys))

		ids := make([]types.ObjectIdentifier, 0, end-start)
		for _, key := range keys[start:end] {
			ids = append(ids, types.ObjectIdentifier{Key: aws.String(key)})
		}

		out, err := s.api.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(bucket),
			Delete: &types.Delete{Objects: ids, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return fmt.Errorf("delete from %s: %w", bucket, err)
		}
		if len(out.Errors) > 0 {
			first := out.Errors[0]
			return fmt.Errorf("delete %s/%s: %s: %s (%d failed)",
				bucket, aws.ToString(first.Key), aws.ToString(first.Code), aws.ToString(first.Message), len(out.Errors))
		}
	}
	return nil
}

// SignedURL presigns a GET request valid for ttl.
func (s *Store) SignedURL(ctx context.Context, bucket, key string, ttl time.Duration) (string, error) {
	req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", fmt.Errorf("presign %s/%s: %w", bucket, key, err)
	}
	return req.URL, nil
}

func hasCode(err error, codes ...string) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	for _, code := range codes {
		if apiErr.ErrorCode() == code {
			return true
		}
	}
	return false
}
