// Package gcs implements storage.Store on a Google Cloud Storage bucket.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	storagev1 "google.golang.org/api/storage/v1"

	"github.com/angelmondragon/tastecert-backend/pkg/config"
	"github.com/angelmondragon/tastecert-backend/pkg/logger"
	"github.com/angelmondragon/tastecert-backend/pkg/storage"
)

const (
	pingTimeout  = 5 * time.Second
	listPageSize = 1000
	defaultType  = "application/octet-stream"
)

// Client stores assets as objects in one bucket.
type Client struct {
	objects *storagev1.ObjectsService
	bucket  string
	logg    *logger.Logger
}

var _ storage.Store = (*Client)(nil)

// NewClient builds a bucket client from the GCP credentials and checks that
// the bucket is listable before returning.
func NewClient(ctx context.Context, bucket string, gcp config.GCPConfig, logg *logger.Logger, opts ...option.ClientOption) (*Client, error) {
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, errors.New("gcs bucket name is required")
	}
	opts = append(gcp.ClientOptions(), opts...)
	opts = append(opts, option.WithScopes(storagev1.DevstorageReadWriteScope))
	svc, err := storagev1.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating gcs service: %w", err)
	}

	client := &Client{objects: svc.Objects, bucket: bucket, logg: logg}
	if err := client.Ping(ctx); err != nil {
		return nil, fmt.Errorf("gcs health check failed: %w", err)
	}
	if logg != nil {
		logg.Info(logg.WithField(ctx, "bucket", bucket), "gcs client initialized")
	}
	return client, nil
}

func (c *Client) Bucket() string {
	if c == nil {
		return ""
	}
	return c.bucket
}

// Ping lists at most one object, which needs storage.objects.list on the bucket.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.objects == nil {
		return errors.New("gcs client not initialized")
	}
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	_, err := c.objects.List(c.bucket).MaxResults(1).Fields("items/name").Context(ctx).Do()
	if err != nil {
		return describe("object check", err)
	}
	return nil
}

func (c *Client) Put(ctx context.Context, key string, r io.Reader, contentType string) error {
	name, err := storage.CleanKey(key)
	if err != nil {
		return err
	}
	if contentType == "" {
		contentType = defaultType
	}
	obj := &storagev1.Object{Name: name, ContentType: contentType}
	_, err = c.objects.Insert(c.bucket, obj).
		Media(r, googleapi.ContentType(contentType), googleapi.ChunkSize(0)).
		Fields("name").
		Context(ctx).
		Do()
	if err != nil {
		return describe("upload "+name, err)
	}
	return nil
}

// Open streams the object body. The caller closes the returned reader.
func (c *Client) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	name, err := storage.CleanKey(key)
	if err != nil {
		return nil, err
	}
	resp, err := c.objects.Get(c.bucket, name).Context(ctx).Download()
	if err != nil {
		if isNotFound(err) {
			return nil, storage.ErrNotFound
		}
		return nil, describe("download "+name, err)
	}
	return resp.Body, nil
}

func (c *Client) Delete(ctx context.Context, key string) error {
	name, err := storage.CleanKey(key)
	if err != nil {
		return err
	}
	if err := c.objects.Delete(c.bucket, name).Context(ctx).Do(); err != nil && !isNotFound(err) {
		return describe("delete "+name, err)
	}
	return nil
}

func (c *Client) List(ctx context.Context, prefix string) ([]storage.Object, error) {
	call := c.objects.List(c.bucket).
		MaxResults(listPageSize).
		Fields("nextPageToken", "items(name,size,updated)")
	if prefix = strings.Trim(prefix, "/"); prefix != "" {
		call = call.Prefix(prefix + "/")
	}

	var out []storage.Object
	err := call.Pages(ctx, func(page *storagev1.Objects) error {
		for _, item := range page.Items {
			updated, _ := time.Parse(time.RFC3339, item.Updated)
			out = append(out, storage.Object{Key: item.Name, Size: int64(item.Size), ModTime: updated})
		}
		return nil
	})
	if err != nil {
		return nil, describe("list", err)
	}
	return out, nil
}

func isNotFound(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound
}

func describe(op string, err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return fmt.Errorf("gcs %s: %d %s: %w", op, apiErr.Code, http.StatusText(apiErr.Code), err)
	}
	return fmt.Errorf("gcs %s: %w", op, err)
}
