// Package archive stores raw platform payloads in S3 (or any S3-compatible
// store) under date-partitioned keys.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog/log"

	"github.com/agricapture/fieldsync/internal/config"
)

const (
	contentType   = "application/json"
	keyTimeLayout = "2006-01-02T15-04-05.000000"

	// DefaultListLimit bounds List when no limit is given.
	DefaultListLimit = 20
)

// ErrObjectNotFound is returned by Get for keys that do not exist.
var ErrObjectNotFound = errors.New("archive: object not found")

// ObjectAPI is the subset of the S3 client used here.
type ObjectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// Object describes one archived payload.
type Object struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
}

// Client writes and reads archived payloads in a single bucket.
type Client struct {
	API    ObjectAPI
	Bucket string
	Prefix string
	// Now is the clock used for keys and ingestion timestamps.
	Now func() time.Time
}

// New builds a Client from the default AWS credential chain.
func New(ctx context.Context, cfg config.ArchiveConfig) (*Client, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, errors.New("archive: bucket is required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("archive: load aws config: %w", err)
	}
	api := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.PathStyle
	})
	log.Info().Str("bucket", cfg.Bucket).Str("region", region).Msg("raw archive enabled")
	return &Client{API: api, Bucket: cfg.Bucket, Prefix: cfg.Prefix}, nil
}

func (c *Client) now() time.Time {
	if c.Now != nil {
		return c.Now().UTC()
	}
	return time.Now().UTC()
}

// Key returns the object key for a payload ingested at t.
func (c *Client) Key(t time.Time) string {
	t = t.UTC()
	k := fmt.Sprintf("year=%04d/month=%02d/day=%02d/event_%s.json",
		t.Year(), int(t.Month()), t.Day(), t.Format(keyTimeLayout))
	if p := strings.Trim(c.Prefix, "/"); p != "" {
		return p + "/" + k
	}
	return k
}

// Archive uploads payload with ingestion metadata and returns its key.
// The payload map is not modified.
func (c *Client) Archive(ctx context.Context, dataType string, payload map[string]any) (string, error) {
	now := c.now()
	doc := make(map[string]any, len(payload)+2)
	for k, v := range payload {
		doc[k] = v
	}
	doc["_ingestion_timestamp"] = now.Format(time.RFC3339Nano)
	doc["_data_type"] = dataType

	body, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("archive: encode payload: %w", err)
	}
	key := c.Key(now)
	_, err = c.API.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("archive: put %s: %w", key, err)
	}
	return key, nil
}

// Get returns the decoded JSON document stored under key.
func (c *Client) Get(ctx context.Context, key string) (map[string]any, error) {
	out, err := c.API.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *s3types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, key)
		}
		return nil, fmt.Errorf("archive: get %s: %w", key, err)
	}
	defer out.Body.Close()

	raw, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("archive: read %s: %w", key, err)
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("archive: decode %s: %w", key, err)
	}
	return doc, nil
}

// List returns up to limit objects under prefix. An empty prefix lists the
// archive root.
func (c *Client) List(ctx context.Context, prefix string, limit int) ([]Object, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if prefix == "" {
		if p := strings.Trim(c.Prefix, "/"); p != "" {
			prefix = p + "/"
		}
	}
	out, err := c.API.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(c.Bucket),
		Prefix:  aws.String(prefix),
		MaxKeys: aws.Int32(int32(limit)),
	})
	if err != nil {
		return nil, fmt.Errorf("archive: list %s: %w", prefix, err)
	}
	objs := make([]Object, 0, len(out.Contents))
	for _, o := range out.Contents {
		obj := Object{Key: aws.ToString(o.Key), Size: aws.ToInt64(o.Size)}
		if o.LastModified != nil {
			obj.LastModified = o.LastModified.UTC()
		}
		objs = append(objs, obj)
	}
	return objs, nil
}
