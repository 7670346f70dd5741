package crawler

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"

	apperrors "github.com/noodle-search/noodle/pkg/errors"
	"golang.org/x/net/html/charset"
)

// Fetcher downloads pages and returns their bodies decoded to UTF-8.
type Fetcher struct {
	client    *http.Client
	userAgent string
	maxBytes  int64
}

func NewFetcher(client *http.Client, userAgent string, maxBytes int64) *Fetcher {
	return &Fetcher{client: client, userAgent: userAgent, maxBytes: maxBytes}
}

// Fetch GETs rawURL. Transport failures and non-2xx statuses are ErrFetch;
// a non-HTML content type is ErrParse.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	resp, err := f.get(ctx, rawURL)
	if err != nil {
		return nil, apperrors.Newf(apperrors.ErrFetch, 0, "%s: %v", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		return nil, apperrors.Newf(apperrors.ErrFetch, 0, "%s: status %d", rawURL, resp.StatusCode)
	}
	contentType := resp.Header.Get("Content-Type")
	if !isHTML(contentType) {
		return nil, apperrors.Newf(apperrors.ErrParse, 0, "%s: content type %q", rawURL, contentType)
	}

	r, err := charset.NewReader(f.limit(resp.Body), contentType)
	if err != nil {
		return nil, apperrors.Newf(apperrors.ErrParse, 0, "%s: decoding charset: %v", rawURL, err)
	}
	body, err := io.ReadAll(r)
	if err != nil {
		return nil, apperrors.Newf(apperrors.ErrFetch, 0, "%s: reading body: %v", rawURL, err)
	}
	return body, nil
}

// FetchRaw GETs rawURL and returns the status and undecoded body. It is used
// for robots.txt and sitemaps, whose status codes carry meaning.
func (f *Fetcher) FetchRaw(ctx context.Context, rawURL string) (int, []byte, error) {
	resp, err := f.get(ctx, rawURL)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(f.limit(resp.Body))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("reading %s: %w", rawURL, err)
	}
	return resp.StatusCode, body, nil
}

func (f *Fetcher) get(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", f.userAgent)
	return f.client.Do(req)
}

func (f *Fetcher) limit(r io.Reader) io.Reader {
	if f.maxBytes <= 0 {
		return r
	}
	return io.LimitReader(r, f.maxBytes)
}

func isHTML(contentType string) bool {
	if contentType == "" {
		return true
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "text/html" || mediaType == "application/xhtml+xml"
}
