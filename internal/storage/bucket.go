package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// BucketStore uploads artifact bytes to an external object-storage bucket
// over HTTP. The backend contract is a bare PUT {base}/{bucket}/{key} with a
// content-type header; any 2xx response is success.
type BucketStore struct {
	baseURL    string
	bucket     string
	token      string
	httpClient *http.Client
}

// BucketOptions configures a BucketStore.
type BucketOptions struct {
	BaseURL    string
	Bucket     string
	Token      string
	HTTPClient *http.Client
}

// NewBucketStore constructs a bucket-backed object store. An empty base URL
// is an error; callers decide availability before constructing.
func NewBucketStore(opts BucketOptions) (*BucketStore, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("storage: bucket base url is required")
	}
	bucket := strings.Trim(strings.TrimSpace(opts.Bucket), "/")
	if bucket == "" {
		return nil, errors.New("storage: bucket name is required")
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &BucketStore{
		baseURL:    baseURL,
		bucket:     bucket,
		token:      strings.TrimSpace(opts.Token),
		httpClient: client,
	}, nil
}

// Put uploads the byte stream and returns the object URL.
func (s *BucketStore) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return "", err
	}
	target := s.baseURL + "/" + s.bucket + "/" + encodeKey(cleanKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, target, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("storage: create upload request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	req.ContentLength = int64(len(data))

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("storage: upload object: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		if len(detail) > 0 {
			return "", fmt.Errorf("storage: upload status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
		}
		return "", fmt.Errorf("storage: upload status %d", resp.StatusCode)
	}
	return target, nil
}

// encodeKey escapes each path segment while preserving separators.
func encodeKey(key string) string {
	parts := strings.Split(key, "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return strings.Join(parts, "/")
}

var _ ObjectStorage = (*BucketStore)(nil)
