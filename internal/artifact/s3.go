package artifact

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"

	"github.com/benchrun/benchrun/internal/logging"
	"github.com/benchrun/benchrun/internal/retry"
	"github.com/benchrun/benchrun/internal/safe"
	"github.com/benchrun/benchrun/pkg/version"
)

// S3Config configures an S3 or S3-compatible artifact bucket.
type S3Config struct {
	Bucket       string `yaml:"bucket" env:"BENCHRUN_S3_BUCKET"`
	Region       string `yaml:"region" env:"BENCHRUN_S3_REGION"`
	Endpoint     string `yaml:"endpoint,omitempty" env:"BENCHRUN_S3_ENDPOINT"`
	UsePathStyle bool   `yaml:"use_path_style,omitempty" env:"BENCHRUN_S3_PATH_STYLE"`
	Prefix       string `yaml:"prefix,omitempty" env:"BENCHRUN_S3_PREFIX"`
	MaxRetries   int    `yaml:"max_retries,omitempty"`
}

// S3Store uploads artifacts with PutObject.
type S3Store struct {
	client *s3.Client
	cfg    S3Config
	logger zerolog.Logger
}

// NewS3Store loads AWS credentials from the default chain.
func NewS3Store(ctx context.Context, cfg S3Config, logger zerolog.Logger) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3 bucket is required")
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}

	opts := []func(*config.LoadOptions) error{config.WithAppID(version.AppID())}
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	return &S3Store{
		client: client,
		cfg:    cfg,
		logger: logging.Component(logger, "artifact_s3").With().Str("bucket", cfg.Bucket).Logger(),
	}, nil
}

// Upload puts localPath at key (under the configured prefix).
func (s *S3Store) Upload(ctx context.Context, localPath, key string) error {
	f, err := safe.Open(localPath)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}
	defer safe.Close(f, s.logger, "failed to close artifact")

	objectKey := Key(s.cfg.Prefix, "", key)
	retryCfg := retry.Config{
		MaxRetries:     s.cfg.MaxRetries,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     2 * time.Second,
		Jitter:         0.1,
	}

	err = retry.Do(ctx, retryCfg, func() error {
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return err
		}
		_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket: aws.String(s.cfg.Bucket),
			Key:    aws.String(objectKey),
			Body:   f,
		})
		return err
	}, func(err error) bool {
		return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
	})
	if err != nil {
		return fmt.Errorf("%w: s3://%s/%s: %v", ErrUploadFailed, s.cfg.Bucket, objectKey, err)
	}

	s.logger.Debug().Str("key", objectKey).Msg("Uploaded artifact")
	return nil
}
