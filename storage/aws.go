package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/ruteri/s3proxy/config"
	"github.com/ruteri/s3proxy/interfaces"
)

// AWSBackend implements the storage contract against AWS S3 or an
// S3-compatible store behind a custom endpoint.
type AWSBackend struct {
	client *awss3.Client
	bucket string
	prefix string
	log    *slog.Logger
}

// NewAWSBackend creates an AWS S3 backend.
//
// In managed-identity mode the SDK's default credential chain is used
// as-is (IRSA, environment, instance metadata, task role). In explicit
// mode both static keys are required and are passed to the client as a
// static credentials provider; they never touch the process environment.
// A custom endpoint switches the client to path-style addressing for
// S3-compatible third-party stores.
func NewAWSBackend(ctx context.Context, cfg *config.BackendConfig, log *slog.Logger) (*AWSBackend, error) {
	awsCfg := cfg.AWS

	region := awsCfg.Region
	if region == "" {
		region = "us-east-1"
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(region),
	}

	if !awsCfg.UseManagedIdentity {
		if awsCfg.AccessKeyID == "" || awsCfg.SecretAccessKey == "" {
			return nil, interfaces.NewConfigError("backend.aws", "static credentials required when use_managed_identity is false")
		}
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(awsCfg.AccessKeyID, awsCfg.SecretAccessKey, "")))
	}

	if strings.HasPrefix(awsCfg.Endpoint, "http://") && !awsCfg.AllowHTTP {
		return nil, interfaces.NewConfigError("backend.aws.endpoint", "plaintext endpoint requires allow_http")
	}

	sdkCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := awss3.NewFromConfig(sdkCfg, func(o *awss3.Options) {
		if awsCfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(awsCfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &AWSBackend{
		client: client,
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
		log:    log,
	}, nil
}

// Get retrieves the full object payload from S3.
func (b *AWSBackend) Get(ctx context.Context, key string) ([]byte, error) {
	start := time.Now()
	path := joinPrefix(b.prefix, key)

	out, err := b.client.GetObject(ctx, &awss3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(path),
	})
	if err != nil {
		if isAWSNotFound(err) {
			return nil, interfaces.ErrObjectNotFound
		}
		return nil, fmt.Errorf("failed to get object %s from S3: %w", path, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read object body: %w", err)
	}

	b.log.Debug("Fetched object from S3",
		slog.String("bucket", b.bucket),
		slog.String("key", path),
		slog.Int("size", len(data)),
		slog.Duration("duration", time.Since(start)))

	return data, nil
}

// Put stores the payload under the prefixed key.
func (b *AWSBackend) Put(ctx context.Context, key string, data []byte) error {
	path := joinPrefix(b.prefix, key)

	_, err := b.client.PutObject(ctx, &awss3.PutObjectInput{
		Bucket:        aws.String(b.bucket),
		Key:           aws.String(path),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return fmt.Errorf("failed to put object %s to S3: %w", path, err)
	}

	b.log.Debug("Stored object in S3",
		slog.String("bucket", b.bucket),
		slog.String("key", path),
		slog.Int("size", len(data)))

	return nil
}

// Delete removes the object. S3 delete is silently idempotent: deleting a
// missing key succeeds at the provider, so ErrObjectNotFound is never
// returned here.
func (b *AWSBackend) Delete(ctx context.Context, key string) error {
	path := joinPrefix(b.prefix, key)

	_, err := b.client.DeleteObject(ctx, &awss3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(path),
	})
	if err != nil {
		return fmt.Errorf("failed to delete object %s from S3: %w", path, err)
	}
	return nil
}

// List drains the ListObjectsV2 paginator for the prefixed prefix into a
// single slice, in S3's lexicographic order.
func (b *AWSBackend) List(ctx context.Context, prefix string) ([]interfaces.ObjectMeta, error) {
	path := joinPrefix(b.prefix, prefix)

	paginator := awss3.NewListObjectsV2Paginator(b.client, &awss3.ListObjectsV2Input{
		Bucket: aws.String(b.bucket),
		Prefix: aws.String(path),
	})

	var metas []interfaces.ObjectMeta
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list objects in S3: %w", err)
		}
		for _, obj := range page.Contents {
			meta := interfaces.ObjectMeta{
				Location: aws.ToString(obj.Key),
				Size:     aws.ToInt64(obj.Size),
				ETag:     trimETag(aws.ToString(obj.ETag)),
			}
			if obj.LastModified != nil {
				meta.LastModified = *obj.LastModified
			}
			metas = append(metas, meta)
		}
	}

	b.log.Debug("Listed objects in S3",
		slog.String("bucket", b.bucket),
		slog.String("prefix", path),
		slog.Int("count", len(metas)))

	return metas, nil
}

// Head returns object metadata without the payload.
func (b *AWSBackend) Head(ctx context.Context, key string) (interfaces.ObjectMeta, error) {
	path := joinPrefix(b.prefix, key)

	out, err := b.client.HeadObject(ctx, &awss3.HeadObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(path),
	})
	if err != nil {
		if isAWSNotFound(err) {
			return interfaces.ObjectMeta{}, interfaces.ErrObjectNotFound
		}
		return interfaces.ObjectMeta{}, fmt.Errorf("failed to head object %s in S3: %w", path, err)
	}

	meta := interfaces.ObjectMeta{
		Location: path,
		Size:     aws.ToInt64(out.ContentLength),
		ETag:     trimETag(aws.ToString(out.ETag)),
	}
	if out.LastModified != nil {
		meta.LastModified = *out.LastModified
	}
	return meta, nil
}

// Name returns an identifier for logging.
func (b *AWSBackend) Name() string {
	return fmt.Sprintf("s3-%s", b.bucket)
}

// isAWSNotFound reports whether the error is S3's missing-object
// condition. HeadObject returns the generic NotFound type while GetObject
// returns NoSuchKey; S3-compatible stores may only set the API error code.
func isAWSNotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return true
	}
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		return code == "NoSuchKey" || code == "NotFound" || code == "404"
	}
	return false
}
