package worker

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// PackageFetcher resolves a package reference to a local file the worker
// can load. The caller owns the returned path and removes it when done.
type PackageFetcher interface {
	Fetch(ctx context.Context, ref string) (string, error)
}

// S3API is the slice of the S3 client the fetcher uses.
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// FetcherOption configures a Fetcher.
type FetcherOption func(*Fetcher)

// WithHTTPClient replaces the HTTP client used for http(s) refs.
func WithHTTPClient(c *http.Client) FetcherOption {
	return func(f *Fetcher) { f.httpClient = c }
}

// WithS3Client enables s3://bucket/key refs.
func WithS3Client(client S3API) FetcherOption {
	return func(f *Fetcher) { f.s3 = client }
}

// WithTempDir sets where fetched blobs land. Defaults to the system temp
// directory.
func WithTempDir(dir string) FetcherOption {
	return func(f *Fetcher) { f.dir = dir }
}

// WithFetchLogger sets the logger.
func WithFetchLogger(logger *slog.Logger) FetcherOption {
	return func(f *Fetcher) { f.logger = logger }
}

// Fetcher resolves local paths, http(s) URLs and s3://bucket/key refs.
// Every fetch lands in a fresh temp file, local paths included, so the
// runner can always delete what it was handed.
type Fetcher struct {
	httpClient *http.Client
	s3         S3API
	dir        string
	logger     *slog.Logger
}

// NewFetcher builds a Fetcher. Without WithS3Client, s3:// refs fail.
func NewFetcher(opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		httpClient: http.DefaultClient,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch resolves ref by scheme and returns the temp file it wrote.
func (f *Fetcher) Fetch(ctx context.Context, ref string) (string, error) {
	switch {
	case strings.HasPrefix(ref, "s3://"):
		return f.fetchS3(ctx, ref)
	case strings.HasPrefix(ref, "http://"), strings.HasPrefix(ref, "https://"):
		return f.fetchHTTP(ctx, ref)
	default:
		return f.fetchFile(ref)
	}
}

func (f *Fetcher) fetchFile(path string) (string, error) {
	src, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer src.Close()
	return f.spill(src, filepath.Ext(path))
}

func (f *Fetcher) fetchHTTP(ctx context.Context, ref string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return "", err
	}
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return "", fmt.Errorf("package not found (404) at %s", ref)
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return "", fmt.Errorf("access denied (%d) at %s", resp.StatusCode, ref)
	case resp.StatusCode != http.StatusOK:
		return "", fmt.Errorf("unexpected status %s fetching %s", resp.Status, ref)
	}
	return f.spill(resp.Body, extOf(ref))
}

func (f *Fetcher) fetchS3(ctx context.Context, ref string) (string, error) {
	if f.s3 == nil {
		return "", fmt.Errorf("no S3 client configured for %s; use WithS3Client", ref)
	}
	u, err := url.Parse(ref)
	if err != nil {
		return "", err
	}
	bucket := u.Host
	key := strings.TrimPrefix(u.Path, "/")
	if bucket == "" || key == "" {
		return "", fmt.Errorf("malformed s3 ref %q, want s3://bucket/key", ref)
	}
	out, err := f.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return "", fmt.Errorf("s3 get %s: %w", ref, err)
	}
	defer out.Body.Close()
	return f.spill(out.Body, extOf(ref))
}

// spill copies src into a fresh temp file and returns its path.
func (f *Fetcher) spill(src io.Reader, ext string) (string, error) {
	tmp, err := os.CreateTemp(f.dir, "trellis-pkg-*"+ext)
	if err != nil {
		return "", err
	}
	n, err := io.Copy(tmp, src)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	f.logger.Debug("package blob written", "path", tmp.Name(), "bytes", n)
	return tmp.Name(), nil
}

// extOf extracts a file extension from a URL-ish ref, dropping any query.
func extOf(ref string) string {
	if i := strings.IndexByte(ref, '?'); i >= 0 {
		ref = ref[:i]
	}
	return filepath.Ext(ref)
}
