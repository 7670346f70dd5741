package crawler

import "net/url"

// resolveLinks keeps the first limit hrefs (all when limit is 0), resolves
// them against base and returns the absolute http(s) URLs without fragments.
func resolveLinks(base *url.URL, hrefs []string, limit int) []string {
	if limit > 0 && len(hrefs) > limit {
		hrefs = hrefs[:limit]
	}
	links := make([]string, 0, len(hrefs))
	for _, href := range hrefs {
		ref, err := url.Parse(href)
		if err != nil {
			continue
		}
		abs := base.ResolveReference(ref)
		if abs.Scheme != "http" && abs.Scheme != "https" {
			continue
		}
		abs.Fragment = ""
		abs.RawFragment = ""
		links = append(links, abs.String())
	}
	return links
}
