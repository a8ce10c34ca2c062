// Package storage mirrors stored transcripts to S3-compatible object storage
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/Taichi-iskw/ytscribe/internal/config"
	"github.com/Taichi-iskw/ytscribe/internal/model"
)

// Archiver keeps a copy of every persisted transcript
type Archiver interface {
	Archive(ctx context.Context, transcript *model.Transcript) error
}

// PutObjectAPI is the subset of the S3 client used for archiving
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type nopArchiver struct{}

// NopArchiver is used when no bucket is configured
func NopArchiver() Archiver {
	return nopArchiver{}
}

func (nopArchiver) Archive(context.Context, *model.Transcript) error {
	return nil
}

// s3Archiver writes {prefix}/{videoId}.json objects
type s3Archiver struct {
	client PutObjectAPI
	bucket string
	prefix string
}

// NewS3Archiver creates an Archiver using the given client
func NewS3Archiver(client PutObjectAPI, bucket, prefix string) Archiver {
	return &s3Archiver{client: client, bucket: bucket, prefix: prefix}
}

// NewArchiver builds an S3 (or Spaces) archiver from config, or a no-op
// archiver when no bucket is set
func NewArchiver(ctx context.Context, cfg config.ArchiveConfig) (Archiver, error) {
	if cfg.Bucket == "" {
		return NopArchiver(), nil
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return NewS3Archiver(client, cfg.Bucket, cfg.Prefix), nil
}

// Archive uploads the transcript as JSON
func (a *s3Archiver) Archive(ctx context.Context, t *model.Transcript) error {
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("failed to marshal transcript: %w", err)
	}

	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(a.key(t.VideoID)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to archive transcript %s: %w", t.VideoID, err)
	}
	return nil
}

func (a *s3Archiver) key(videoID string) string {
	return path.Join(a.prefix, videoID+".json")
}
