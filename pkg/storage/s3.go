// Package storage uploads finished recordings to S3-compatible object storage.
package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/RyanBlaney/micmetrics/pkg/logging"
)

// DefaultUploadTimeout bounds a single upload
const DefaultUploadTimeout = 5 * time.Minute

// S3Config holds S3-compatible storage configuration
type S3Config struct {
	Endpoint        string `json:"endpoint,omitempty" mapstructure:"endpoint" yaml:"endpoint"` // custom endpoint, empty for AWS
	Region          string `json:"region,omitempty" mapstructure:"region" yaml:"region"`
	Bucket          string `json:"bucket,omitempty" mapstructure:"bucket" yaml:"bucket"`
	Prefix          string `json:"prefix,omitempty" mapstructure:"prefix" yaml:"prefix"`
	AccessKeyID     string `json:"access_key_id,omitempty" mapstructure:"access_key_id" yaml:"access_key_id"`
	SecretAccessKey string `json:"-" mapstructure:"secret_access_key" yaml:"secret_access_key"`
}

// IsConfigured returns true if the bucket and credentials are set
func (c *S3Config) IsConfigured() bool {
	return c.Bucket != "" && c.AccessKeyID != "" && c.SecretAccessKey != ""
}

// Key returns the object key for a local file
func (c *S3Config) Key(localPath string) string {
	base := filepath.Base(localPath)
	prefix := strings.Trim(c.Prefix, "/")
	if prefix == "" {
		return base
	}
	return path.Join(prefix, base)
}

// PutObjectAPI is the subset of the S3 client used for uploads
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Uploader puts recordings into a bucket
type Uploader struct {
	config  *S3Config
	client  PutObjectAPI
	timeout time.Duration
	logger  logging.Logger
}

// NewUploader creates an uploader with an S3 client built from config
func NewUploader(config *S3Config) (*Uploader, error) {
	if config == nil || !config.IsConfigured() {
		return nil, errors.New("S3 is not configured")
	}
	return NewUploaderWithClient(config, createS3Client(config)), nil
}

// NewUploaderWithClient creates an uploader around an existing client
func NewUploaderWithClient(config *S3Config, client PutObjectAPI) *Uploader {
	return &Uploader{
		config:  config,
		client:  client,
		timeout: DefaultUploadTimeout,
		logger: logging.WithFields(logging.Fields{
			"component": "s3_uploader",
			"bucket":    config.Bucket,
		}),
	}
}

// createS3Client creates an S3 client with the given configuration
func createS3Client(cfg *S3Config) *s3.Client {
	creds := credentials.NewStaticCredentialsProvider(
		cfg.AccessKeyID,
		cfg.SecretAccessKey,
		"",
	)

	region := cfg.Region
	if region == "" {
		region = "auto"
	}

	options := []func(*s3.Options){
		func(o *s3.Options) {
			o.Credentials = creds
			o.Region = region
		},
	}

	if cfg.Endpoint != "" {
		options = append(options, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}

	return s3.New(s3.Options{}, options...)
}

// Upload puts the file at localPath under the configured prefix and returns the object key
func (u *Uploader) Upload(ctx context.Context, localPath string) (string, error) {
	ctx, cancel := context.WithTimeoutCause(ctx, u.timeout, errors.New("s3 upload timeout"))
	defer cancel()

	file, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("failed to open file for upload: %w", err)
	}
	defer func() {
		if err := file.Close(); err != nil {
			u.logger.Warn("Failed to close file after upload", logging.Fields{
				"path":  localPath,
				"error": err.Error(),
			})
		}
	}()

	info, err := file.Stat()
	if err != nil {
		return "", fmt.Errorf("failed to stat recording: %w", err)
	}

	key := u.config.Key(localPath)
	_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(u.config.Bucket),
		Key:           aws.String(key),
		Body:          file,
		ContentLength: aws.Int64(info.Size()),
		ContentType:   aws.String(contentType(localPath)),
	})
	if err != nil {
		u.logger.Error(err, "Upload failed", logging.Fields{"s3_key": key})
		return "", fmt.Errorf("failed to upload %s: %w", filepath.Base(localPath), err)
	}

	u.logger.Info("Upload completed", logging.Fields{
		"s3_key": key,
		"bytes":  info.Size(),
	})
	return key, nil
}

func contentType(localPath string) string {
	if strings.EqualFold(filepath.Ext(localPath), ".wav") {
		return "audio/wav"
	}
	return "application/octet-stream"
}
