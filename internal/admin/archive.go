package admin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// Manifest records what a delete-completely action erased.
type Manifest struct {
	ID         uuid.UUID        `json:"id"`
	OperatorID string           `json:"operator_id"`
	Model      string           `json:"model"`
	Table      string           `json:"table"`
	Keys       []string         `json:"keys"`
	Counts     map[string]int64 `json:"counts"`
	ErasedAt   time.Time        `json:"erased_at"`
}

// Archive keeps erasure manifests somewhere outside the database.
type Archive interface {
	Store(ctx context.Context, m *Manifest) (key string, err error)
}

// ManifestKey is erasures/<table>/<yyyy>/<mm>/<dd>/<id>.json.
func ManifestKey(m *Manifest) string {
	d := m.ErasedAt.UTC()
	return fmt.Sprintf("erasures/%s/%04d/%02d/%02d/%s.json", m.Table, d.Year(), int(d.Month()), d.Day(), m.ID)
}

type objectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) objectPutter {
		return s3.NewFromConfig(cfg, optFns...)
	}
)

// S3Config points the archive at a bucket. Endpoint is optional and
// enables path-style addressing for S3-compatible stores such as MinIO.
type S3Config struct {
	Bucket    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
}

type S3Archive struct {
	bucket string
	client objectPutter
}

func NewS3Archive(ctx context.Context, c S3Config) (*S3Archive, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(c.Region)}
	if c.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(c.AccessKey, c.SecretKey, "")))
	}

	cfg, err := loadDefaultAWSConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("aws config: %w", err)
	}

	client := newS3ClientFromConfig(cfg, func(o *s3.Options) {
		if c.Endpoint != "" {
			o.BaseEndpoint = aws.String(c.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Archive{bucket: c.Bucket, client: client}, nil
}

// Store uploads m as JSON and returns its object key.
func (a *S3Archive) Store(ctx context.Context, m *Manifest) (string, error) {
	body, err := json.Marshal(m)
	if err != nil {
		return "", err
	}

	key := ManifestKey(m)
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("put %s: %w", key, err)
	}
	return key, nil
}
