package filestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	dErrors "credlife/pkg/domain-errors"
)

type Config struct {
	Bucket       string        `envconfig:"S3_BUCKET"`
	Region       string        `envconfig:"S3_REGION" default:"us-east-1"`
	Endpoint     string        `envconfig:"S3_ENDPOINT"`
	UsePathStyle bool          `envconfig:"S3_USE_PATH_STYLE"`
	PresignTTL   time.Duration `envconfig:"S3_PRESIGN_TTL" default:"15m"`

	BreakerThreshold int           `envconfig:"S3_BREAKER_THRESHOLD" default:"5"`
	BreakerCooldown  time.Duration `envconfig:"S3_BREAKER_COOLDOWN" default:"30s"`
}

func (c Config) Enabled() bool {
	return c.Bucket != ""
}

type headObjectAPI interface {
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

type presignAPI interface {
	PresignGetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// S3 inspects and presigns objects in a single bucket.
type S3 struct {
	bucket     string
	head       headObjectAPI
	presign    presignAPI
	presignTTL time.Duration
}

// NewS3 loads AWS credentials from the default chain.
func NewS3(ctx context.Context, cfg Config) (*S3, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})
	return newS3(cfg, client, s3.NewPresignClient(client)), nil
}

func newS3(cfg Config, head headObjectAPI, presign presignAPI) *S3 {
	ttl := cfg.PresignTTL
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &S3{bucket: cfg.Bucket, head: head, presign: presign, presignTTL: ttl}
}

// Inspect confirms the object exists in the configured bucket and reports
// its stored size and content type.
func (s *S3) Inspect(ctx context.Context, uri string) (*Object, error) {
	bucket, key, err := s.locate(uri)
	if err != nil {
		return nil, err
	}
	out, err := s.head.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)})
	if err != nil {
		var nf *types.NotFound
		if errors.As(err, &nf) {
			return nil, dErrors.New(dErrors.CodePolicyViolation, fmt.Sprintf("file %s does not exist", uri))
		}
		return nil, dErrors.Wrap(err, dErrors.CodePersistence, "inspect file")
	}
	obj := &Object{Bucket: bucket, Key: key, SizeBytes: aws.ToInt64(out.ContentLength)}
	obj.ContentType = strings.ToLower(aws.ToString(out.ContentType))
	return obj, nil
}

// DownloadURL returns a presigned GET URL valid for the configured TTL.
func (s *S3) DownloadURL(ctx context.Context, uri string) (string, time.Time, error) {
	bucket, key, err := s.locate(uri)
	if err != nil {
		return "", time.Time{}, err
	}
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)},
		s3.WithPresignExpires(s.presignTTL))
	if err != nil {
		return "", time.Time{}, dErrors.Wrap(err, dErrors.CodePersistence, "presign download")
	}
	return req.URL, time.Now().Add(s.presignTTL), nil
}

func (s *S3) locate(uri string) (string, string, error) {
	bucket, key, err := ParseURI(uri)
	if err != nil {
		return "", "", err
	}
	if bucket != s.bucket {
		return "", "", dErrors.New(dErrors.CodePolicyViolation, fmt.Sprintf("file %s is outside bucket %s", uri, s.bucket))
	}
	return bucket, key, nil
}
