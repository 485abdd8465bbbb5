package query

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/adaptation-atlas/atlas-assistant/internal/config"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const defaultS3Endpoint = "s3.amazonaws.com"

// Fetcher reads dataset files from local disk, http(s) or s3.
type Fetcher struct {
	http *http.Client
	s3   *minio.Client
}

// NewFetcher builds a fetcher. Without credentials the s3 client is anonymous,
// which is enough for public buckets.
func NewFetcher(cfg config.StorageConfig) (*Fetcher, error) {
	endpoint := cfg.S3Endpoint
	secure := cfg.S3UseSSL
	if endpoint == "" {
		endpoint = defaultS3Endpoint
		secure = true
	}
	s3, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.S3AccessKey, cfg.S3SecretKey, ""),
		Secure: secure,
		Region: cfg.S3Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create s3 client: %w", err)
	}
	return &Fetcher{
		http: &http.Client{Timeout: cfg.FetchTimeout},
		s3:   s3,
	}, nil
}

// Fetch returns the bytes at href.
func (f *Fetcher) Fetch(ctx context.Context, href string) ([]byte, error) {
	u, err := url.Parse(href)
	if err != nil || u.Scheme == "" || len(u.Scheme) == 1 {
		// Plain paths, including Windows drive letters.
		return os.ReadFile(href)
	}
	switch u.Scheme {
	case "file":
		return os.ReadFile(u.Path)
	case "http", "https":
		return f.fetchHTTP(ctx, href)
	case "s3":
		return f.fetchS3(ctx, u.Host, strings.TrimPrefix(u.Path, "/"))
	default:
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
}

func (f *Fetcher) fetchHTTP(ctx context.Context, href string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, href, nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s: status %d", href, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func (f *Fetcher) fetchS3(ctx context.Context, bucket, key string) ([]byte, error) {
	if bucket == "" || key == "" {
		return nil, fmt.Errorf("s3 href needs a bucket and a key")
	}
	obj, err := f.s3.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get s3://%s/%s: %w", bucket, key, err)
	}
	defer obj.Close()
	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("read s3://%s/%s: %w", bucket, key, err)
	}
	return data, nil
}
