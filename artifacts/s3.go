package artifacts

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"autopilot/types"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/google/uuid"
)

// S3Config contains minimal configuration for creating an S3 client.
// Values are optional and fall back to the standard AWS config/credential chain.
type S3Config struct {
	Bucket string
	// Region to use for requests, e.g. "us-east-1". If empty, AWS defaults apply.
	Region string
	// Profile selects a named shared config/credentials profile.
	Profile string
	// Endpoint overrides the service endpoint for S3-compatible providers.
	Endpoint string
	// UsePathStyle forces path-style addressing (useful for some S3-compatible providers).
	UsePathStyle bool
	Prefix       string
	// PublicBaseURL is prepended to object keys to build returned URLs.
	PublicBaseURL string
}

// ObjectAPI is the subset of the S3 client the artifact store calls
type ObjectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// S3Store uploads artifacts to a bucket
type S3Store struct {
	client ObjectAPI
	cfg    S3Config
	now    func() time.Time
}

// NewS3 creates an S3 store using the default AWS configuration chain,
// with optional overrides from cfg.
func NewS3(ctx context.Context, cfg S3Config) (*S3Store, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.Profile != "" {
		loadOpts = append(loadOpts, awsconfig.WithSharedConfigProfile(cfg.Profile))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, err
	}
	if cfg.Region == "" {
		cfg.Region = awsCfg.Region
	}

	c := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return NewS3WithClient(c, cfg), nil
}

// NewS3WithClient wraps an existing client
func NewS3WithClient(client ObjectAPI, cfg S3Config) *S3Store {
	return &S3Store{client: client, cfg: cfg, now: time.Now}
}

// Save uploads m under <prefix><kind>/<yyyy-mm-dd>/<uuid><ext>
func (s *S3Store) Save(ctx context.Context, kind Kind, m *types.Media) (string, error) {
	if m.Empty() {
		return "", fmt.Errorf("%s artifact is empty", kind)
	}
	if len(m.Data) == 0 {
		return m.URI, nil
	}

	mime := mimeOrDefault(m.MimeType, kind)
	key := fmt.Sprintf("%s%s/%s/%s%s", s.cfg.Prefix, kind, s.now().UTC().Format("2006-01-02"), uuid.NewString(), extensionFor(mime))
	if err := s.put(ctx, key, bytes.NewReader(m.Data), mime); err != nil {
		return "", fmt.Errorf("failed to upload %s artifact: %w", kind, err)
	}
	return s.URL(key), nil
}

// put uploads an object with an immutable cache policy
func (s *S3Store) put(ctx context.Context, key string, body io.Reader, contentType string) error {
	in := &s3.PutObjectInput{
		Bucket:       aws.String(s.cfg.Bucket),
		Key:          aws.String(key),
		Body:         body,
		CacheControl: aws.String("public, max-age=31536000, immutable"),
	}
	if contentType != "" {
		in.ContentType = aws.String(contentType)
	}
	_, err := s.client.PutObject(ctx, in)
	return err
}

// URL returns the public URL for key
func (s *S3Store) URL(key string) string {
	if s.cfg.PublicBaseURL != "" {
		return strings.TrimRight(s.cfg.PublicBaseURL, "/") + "/" + key
	}
	if s.cfg.Region != "" {
		return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.cfg.Bucket, s.cfg.Region, key)
	}
	return fmt.Sprintf("s3://%s/%s", s.cfg.Bucket, key)
}

// Ping checks that the bucket exists and is reachable
func (s *S3Store) Ping(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.cfg.Bucket)})
	if err == nil {
		return nil
	}

	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) && respErr.HTTPStatusCode() == 404 {
		return fmt.Errorf("bucket %q does not exist", s.cfg.Bucket)
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && (apiErr.ErrorCode() == "NotFound" || apiErr.ErrorCode() == "NoSuchBucket") {
		return fmt.Errorf("bucket %q does not exist", s.cfg.Bucket)
	}
	return err
}
