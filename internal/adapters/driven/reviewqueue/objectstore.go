package reviewqueue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/custodia-labs/ruleforge/internal/adapters/driven/transport"
	"github.com/custodia-labs/ruleforge/internal/core/domain"
	"github.com/custodia-labs/ruleforge/internal/core/ports/driven"
)

// Ensure ObjectQueue implements the interface.
var _ driven.ReviewQueue = (*ObjectQueue)(nil)

// DefaultPrefix is the key prefix used when none is configured.
const DefaultPrefix = "review"

// ObjectConfig holds the settings of an S3 compatible review bucket.
type ObjectConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	Prefix    string
	UseSSL    bool
}

// Validate checks the settings needed to connect.
func (c ObjectConfig) Validate() error {
	var missing []string
	if c.Endpoint == "" {
		missing = append(missing, "endpoint")
	}
	if c.Bucket == "" {
		missing = append(missing, "bucket")
	}
	if c.AccessKey == "" || c.SecretKey == "" {
		missing = append(missing, "credentials")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: review bucket %s required", domain.ErrInvalidInput, strings.Join(missing, ", "))
	}
	return nil
}

// ObjectPutter is the part of the object store client the queue uses.
type ObjectPutter interface {
	PutObject(ctx context.Context, bucket, key string, body io.Reader, size int64, contentType string) error
}

// ObjectQueue writes each review item to its own object.
type ObjectQueue struct {
	putter ObjectPutter
	bucket string
	prefix string
}

// NewObjectQueue creates a queue on top of an existing putter.
func NewObjectQueue(putter ObjectPutter, bucket, prefix string) *ObjectQueue {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &ObjectQueue{putter: putter, bucket: bucket, prefix: strings.Trim(prefix, "/")}
}

// NewMinIOQueue connects to a MinIO or S3 endpoint and makes sure the bucket exists.
func NewMinIOQueue(ctx context.Context, cfg ObjectConfig) (*ObjectQueue, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:    cfg.UseSSL,
		Region:    cfg.Region,
		Transport: newTransport(),
	})
	if err != nil {
		return nil, fmt.Errorf("creating object store client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, classify(err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, fmt.Errorf("creating bucket %s: %w", cfg.Bucket, err)
		}
	}
	return NewObjectQueue(&minioPutter{client: client}, cfg.Bucket, cfg.Prefix), nil
}

// Key returns the object key for an item: <prefix>/<run>/<artifact>.json.
func (q *ObjectQueue) Key(item domain.ReviewItem) string {
	return path.Join(q.prefix, item.Provenance.RunID, item.ArtifactID+".json")
}

// Push uploads one item. Pushing the same artifact again overwrites it.
func (q *ObjectQueue) Push(ctx context.Context, item domain.ReviewItem) error {
	if item.ArtifactID == "" {
		return fmt.Errorf("%w: review item without artifact ID", domain.ErrInvalidInput)
	}
	if item.QueuedAt.IsZero() {
		item.QueuedAt = time.Now().UTC()
	}
	body, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("encoding review item: %w", err)
	}
	if err := q.putter.PutObject(ctx, q.bucket, q.Key(item), bytes.NewReader(body), int64(len(body)), "application/json"); err != nil {
		return fmt.Errorf("uploading %s: %w", q.Key(item), err)
	}
	return nil
}

// Close releases resources.
func (q *ObjectQueue) Close() error {
	return nil
}

// minioPutter adapts a minio client to ObjectPutter.
type minioPutter struct {
	client *minio.Client
}

func (p *minioPutter) PutObject(ctx context.Context, bucket, key string, body io.Reader, size int64, contentType string) error {
	_, err := p.client.PutObject(ctx, bucket, key, body, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return classify(err)
	}
	return nil
}

// classify maps S3 error responses through their HTTP status.
func classify(err error) error {
	if resp := minio.ToErrorResponse(err); resp.StatusCode != 0 {
		return transport.StatusError("object store", resp.StatusCode, []byte(resp.Code+": "+resp.Message))
	}
	return transport.SendError("object store", err)
}

func newTransport() *http.Transport {
	dialer := &net.Dialer{
		Timeout:   5 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}
