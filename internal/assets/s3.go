// Package assets checks that delivered video files exist in object storage
// before an order is marked fulfilled.
package assets

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// ErrInvalidRef marks a reference that cannot name an object in any bucket
var ErrInvalidRef = errors.New("invalid asset reference")

// Verifier reports whether an asset reference points at a stored object
type Verifier interface {
	Exists(ctx context.Context, ref string) (bool, error)
}

type headObjecter interface {
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// Options configures the S3 verifier
type Options struct {
	Bucket    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
}

// S3Verifier checks assets with HeadObject
type S3Verifier struct {
	client headObjecter
	bucket string
}

// NewS3Verifier builds a client for AWS or any S3-compatible endpoint
func NewS3Verifier(ctx context.Context, opts Options) (*S3Verifier, error) {
	loaders := []func(*config.LoadOptions) error{
		config.WithRegion(opts.Region),
	}
	if opts.AccessKey != "" {
		loaders = append(loaders, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, "")))
	}

	cfg, err := config.LoadDefaultConfig(ctx, loaders...)
	if err != nil {
		return nil, fmt.Errorf("unable to load s3 config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Verifier{client: client, bucket: opts.Bucket}, nil
}

// Exists resolves ref to a bucket key and checks it with HeadObject
func (v *S3Verifier) Exists(ctx context.Context, ref string) (bool, error) {
	bucket, key, err := ParseRef(ref, v.bucket)
	if err != nil {
		return false, err
	}

	_, err = v.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return true, nil
	}
	if isNotFound(err) {
		return false, nil
	}
	return false, fmt.Errorf("head object %s/%s: %w", bucket, key, err)
}

// ParseRef accepts s3://bucket/key, an http(s) URL whose path is the key,
// or a bare key in the default bucket.
func ParseRef(ref, defaultBucket string) (bucket, key string, err error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", "", fmt.Errorf("%w: empty", ErrInvalidRef)
	}

	if strings.Contains(ref, "://") {
		u, err := url.Parse(ref)
		if err != nil {
			return "", "", fmt.Errorf("%w %q: %w", ErrInvalidRef, ref, err)
		}
		switch u.Scheme {
		case "s3":
			bucket, key = u.Host, strings.TrimPrefix(u.Path, "/")
		case "http", "https":
			bucket, key = defaultBucket, strings.TrimPrefix(u.Path, "/")
			// path-style URLs carry the bucket as the first segment
			if prefix := defaultBucket + "/"; defaultBucket != "" && strings.HasPrefix(key, prefix) {
				key = strings.TrimPrefix(key, prefix)
			}
		default:
			return "", "", fmt.Errorf("%w: unsupported scheme %q", ErrInvalidRef, u.Scheme)
		}
	} else {
		bucket, key = defaultBucket, strings.TrimPrefix(ref, "/")
	}

	if bucket == "" || key == "" {
		return "", "", fmt.Errorf("%w: %q has no bucket or key", ErrInvalidRef, ref)
	}
	return bucket, key, nil
}

func isNotFound(err error) bool {
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return true
		}
	}
	return false
}

// NopVerifier accepts every non-empty reference
type NopVerifier struct{}

func (NopVerifier) Exists(ctx context.Context, ref string) (bool, error) {
	return strings.TrimSpace(ref) != "", nil
}
