package crawler

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/antchfx/xmlquery"
)

// sitemapLocations fetches a sitemap and returns its <url><loc> entries.
// Sitemap indexes are not followed.
func sitemapLocations(ctx context.Context, f *Fetcher, sitemapURL string) ([]string, error) {
	status, body, err := f.FetchRaw(ctx, sitemapURL)
	if err != nil {
		return nil, err
	}
	if status < 200 || status > 299 {
		return nil, fmt.Errorf("fetching sitemap %s: status %d", sitemapURL, status)
	}
	doc, err := xmlquery.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parsing sitemap %s: %w", sitemapURL, err)
	}
	nodes, err := xmlquery.QueryAll(doc, "//url/loc")
	if err != nil {
		return nil, fmt.Errorf("querying sitemap %s: %w", sitemapURL, err)
	}
	locs := make([]string, 0, len(nodes))
	for _, n := range nodes {
		if loc := strings.TrimSpace(n.InnerText()); loc != "" {
			locs = append(locs, loc)
		}
	}
	return locs, nil
}
