package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/leoncowle/mastodon-misc/internal/chrono"
	"github.com/leoncowle/mastodon-misc/internal/snapshot"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

type S3Config struct {
	Bucket string `json:"bucket"`
	// Key defaults to DefaultFile.
	Key    string `json:"key"`
	Region string `json:"region"`
	// Endpoint is set for S3 compatible services (ex. MinIO).
	Endpoint  string `json:"endpoint"`
	PathStyle bool   `json:"path_style"`
	// AccessKeyID and SecretAccessKey fall back to the default credential
	// chain when empty.
	AccessKeyID     string `json:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key"`
}

// S3API is the subset of *s3.Client S3Store uses.
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

const savedAtMetadata = "saved-at"

// S3Store keeps the baseline as a single JSON object in a bucket.
type S3Store struct {
	client S3API
	bucket string
	key    string
	clock  chrono.TimeAPI
}

func NewS3Store(ctx context.Context, cfg S3Config, clock chrono.TimeAPI) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 store: bucket required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, err
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.PathStyle {
			o.UsePathStyle = true
		}
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	return NewS3StoreWithClient(client, cfg.Bucket, cfg.Key, clock), nil
}

func NewS3StoreWithClient(client S3API, bucket, key string, clock chrono.TimeAPI) *S3Store {
	if key == "" {
		key = DefaultFile
	}
	if clock == nil {
		clock = chrono.NewStandardTime()
	}
	return &S3Store{client: client, bucket: bucket, key: key, clock: clock}
}

func isNotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	return false
}

func (s *S3Store) Load(ctx context.Context) (snapshot.ListSnapshot, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
	})
	if isNotFound(err) {
		return nil, ErrBaselineMissing
	}
	if err != nil {
		return nil, err
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, err
	}
	snap, err := decodeDocument(data)
	if err != nil {
		return nil, fmt.Errorf("s3://%s/%s: %w", s.bucket, s.key, err)
	}
	return snap, nil
}

func (s *S3Store) Save(ctx context.Context, snap snapshot.ListSnapshot) error {
	data, err := encodeDocument(snap)
	if err != nil {
		return err
	}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
		Metadata: map[string]string{
			savedAtMetadata: s.clock.Now().Format(time.RFC3339),
		},
	})
	return err
}

func (s *S3Store) Close() error {
	return nil
}
