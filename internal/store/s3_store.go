package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/TheMichaelB/vaultseal/internal/events"
	"github.com/TheMichaelB/vaultseal/internal/models"
)

// S3API is the subset of the S3 client used by S3Store.
type S3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

const (
	s3WriteTimeout = 30 * time.Second
	s3ReadTimeout  = 10 * time.Second
)

// S3Store keeps one JSON envelope object per secret under a key prefix.
type S3Store struct {
	client S3API
	bucket string
	prefix string
	logger *events.Logger
}

// NewS3Store builds a store using the default AWS credential chain.
func NewS3Store(ctx context.Context, bucket, prefix, region string, logger *events.Logger) (*S3Store, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return NewS3StoreWithClient(s3.NewFromConfig(cfg), bucket, prefix, logger), nil
}

// NewS3StoreWithClient builds a store on an existing client.
func NewS3StoreWithClient(client S3API, bucket, prefix string, logger *events.Logger) *S3Store {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	return &S3Store{
		client: client,
		bucket: bucket,
		prefix: prefix,
		logger: logger.WithField("component", "s3_store"),
	}
}

// Store uploads the envelope for key.
func (s *S3Store) Store(ctx context.Context, key string, secret *models.EncryptedSecret) error {
	if err := checkStore(ctx, key, secret); err != nil {
		return err
	}

	data, err := secret.MarshalJSON()
	if err != nil {
		return fmt.Errorf("marshal secret: %w", err)
	}

	objectKey := s.buildKey(key)

	ctx, cancel := context.WithTimeout(ctx, s3WriteTimeout)
	defer cancel()

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(objectKey),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
		Metadata: map[string]string{
			"algorithm": secret.Algorithm().String(),
		},
	})
	if err != nil {
		return fmt.Errorf("s3 put object: %w", err)
	}

	s.logger.WithFields(map[string]interface{}{
		"key":  objectKey,
		"size": len(data),
	}).Debug("Wrote secret to S3")

	return nil
}

// Retrieve downloads and parses the envelope for key.
func (s *S3Store) Retrieve(ctx context.Context, key string) (*models.EncryptedSecret, bool, error) {
	if err := checkKey(ctx, key); err != nil {
		return nil, false, err
	}

	ctx, cancel := context.WithTimeout(ctx, s3ReadTimeout)
	defer cancel()

	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.buildKey(key)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("s3 get object: %w", err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, false, fmt.Errorf("read object body: %w", err)
	}

	secret, err := models.ParseJSON(data)
	if err != nil {
		return nil, false, fmt.Errorf("decode secret %s: %w", key, err)
	}
	return secret, true, nil
}

// Delete removes the object for key. S3 treats a missing key as success.
func (s *S3Store) Delete(ctx context.Context, key string) error {
	if err := checkKey(ctx, key); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, s3ReadTimeout)
	defer cancel()

	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.buildKey(key)),
	})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("s3 delete object: %w", err)
	}
	return nil
}

// List pages through every envelope under the prefix.
func (s *S3Store) List(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s3WriteTimeout)
	defer cancel()

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.prefix),
	})

	keys := []string{}
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("s3 list objects: %w", err)
		}

		for _, obj := range page.Contents {
			name := strings.TrimPrefix(aws.ToString(obj.Key), s.prefix)
			if !strings.HasSuffix(name, envelopeExt) {
				continue
			}
			keys = append(keys, strings.TrimSuffix(name, envelopeExt))
		}
	}

	sort.Strings(keys)
	return keys, nil
}

// Close releases resources.
func (s *S3Store) Close() error {
	return nil
}

func (s *S3Store) buildKey(key string) string {
	return s.prefix + key + envelopeExt
}

func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	return strings.Contains(err.Error(), "NotFound")
}
