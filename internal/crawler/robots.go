package crawler

import (
	"context"
	"log/slog"
	"net/url"
	"sync"

	"github.com/noodle-search/noodle/pkg/config"
	apperrors "github.com/noodle-search/noodle/pkg/errors"
	"github.com/noodle-search/noodle/pkg/metrics"
	"github.com/temoto/robotstxt"
	"golang.org/x/sync/singleflight"
)

// robotsPolicy is the cached outcome of one robots.txt lookup. data is nil
// when the file could not be retrieved.
type robotsPolicy struct {
	data *robotstxt.RobotsData
}

// RobotsCache resolves and caches robots.txt per origin. Concurrent first
// lookups of the same origin share a single fetch.
type RobotsCache struct {
	fetcher     *Fetcher
	userAgent   string
	unavailable string

	mu       sync.RWMutex
	policies map[string]robotsPolicy
	group    singleflight.Group

	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewRobotsCache builds a cache; unavailable is one of config.RobotsAllow,
// config.RobotsDeny or config.RobotsFail.
func NewRobotsCache(fetcher *Fetcher, userAgent, unavailable string, m *metrics.Metrics) *RobotsCache {
	return &RobotsCache{
		fetcher:     fetcher,
		userAgent:   userAgent,
		unavailable: unavailable,
		policies:    make(map[string]robotsPolicy),
		metrics:     m,
		logger:      slog.Default().With("component", "robots"),
	}
}

// Allowed reports whether the user agent may fetch u. It returns
// ErrRobotsUnavailable only under the "fail" policy.
func (c *RobotsCache) Allowed(ctx context.Context, u *url.URL) (bool, error) {
	p := c.policy(ctx, origin(u))
	if p.data == nil {
		switch c.unavailable {
		case config.RobotsDeny:
			return false, nil
		case config.RobotsFail:
			return false, apperrors.Newf(apperrors.ErrRobotsUnavailable, 0, "%s", origin(u))
		default:
			return true, nil
		}
	}
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	return p.data.TestAgent(path, c.userAgent), nil
}

// Sitemaps returns the Sitemap: entries of the origin's robots.txt.
func (c *RobotsCache) Sitemaps(ctx context.Context, u *url.URL) []string {
	p := c.policy(ctx, origin(u))
	if p.data == nil {
		return nil
	}
	return p.data.Sitemaps
}

func (c *RobotsCache) policy(ctx context.Context, key string) robotsPolicy {
	c.mu.RLock()
	p, ok := c.policies[key]
	c.mu.RUnlock()
	if ok {
		return p
	}

	v, _, _ := c.group.Do(key, func() (any, error) {
		c.mu.RLock()
		p, ok := c.policies[key]
		c.mu.RUnlock()
		if ok {
			return p, nil
		}
		p = c.fetch(ctx, key)
		c.mu.Lock()
		c.policies[key] = p
		c.mu.Unlock()
		return p, nil
	})
	return v.(robotsPolicy)
}

// fetch retrieves robots.txt. Transport errors and 5xx statuses make the
// origin unavailable; any other status is parsed, so a 404 allows everything.
func (c *RobotsCache) fetch(ctx context.Context, originURL string) robotsPolicy {
	robotsURL := originURL + "/robots.txt"
	status, body, err := c.fetcher.FetchRaw(ctx, robotsURL)
	if err != nil || status >= 500 {
		c.metrics.RobotsFetchesTotal.WithLabelValues("unavailable").Inc()
		c.logger.Warn("robots.txt unavailable",
			"origin", originURL,
			"status", status,
			"error", err,
			"policy", c.unavailable,
		)
		return robotsPolicy{}
	}
	data, err := robotstxt.FromStatusAndBytes(status, body)
	if err != nil {
		c.metrics.RobotsFetchesTotal.WithLabelValues("unavailable").Inc()
		c.logger.Warn("robots.txt unparsable", "origin", originURL, "error", err, "policy", c.unavailable)
		return robotsPolicy{}
	}
	c.metrics.RobotsFetchesTotal.WithLabelValues("ok").Inc()
	c.logger.Debug("robots.txt cached", "origin", originURL, "status", status)
	return robotsPolicy{data: data}
}

func origin(u *url.URL) string {
	return u.Scheme + "://" + u.Host
}
