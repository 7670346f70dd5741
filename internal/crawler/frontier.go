package crawler

import (
	"net/url"
	"strings"
)

// Frontier is the crawl's URL bookkeeping: a FIFO queue of pending URLs, the
// set of visited URLs and the set of URLs dropped after a failure or a robots
// refusal. It is not safe for concurrent use; the scheduler mutates it only
// from its own goroutine, after each batch barrier.
type Frontier struct {
	maxURLs int
	queue   []string
	queued  map[string]struct{}
	visited map[string]struct{}
	dropped map[string]struct{}
}

// NewFrontier returns an empty frontier admitting at most maxURLs URLs across
// the queue and the visited set.
func NewFrontier(maxURLs int) *Frontier {
	return &Frontier{
		maxURLs: maxURLs,
		queued:  make(map[string]struct{}),
		visited: make(map[string]struct{}),
		dropped: make(map[string]struct{}),
	}
}

// Push appends u unless it is already known, points at an XML document, or
// the frontier is full. It reports whether u was queued.
func (f *Frontier) Push(u string) bool {
	if isXML(u) {
		return false
	}
	if _, ok := f.visited[u]; ok {
		return false
	}
	if _, ok := f.queued[u]; ok {
		return false
	}
	if _, ok := f.dropped[u]; ok {
		return false
	}
	if len(f.visited)+len(f.queued) >= f.maxURLs {
		return false
	}
	f.queue = append(f.queue, u)
	f.queued[u] = struct{}{}
	return true
}

// Next removes and returns up to n URLs from the front of the queue. The
// returned URLs are in flight: neither queued nor visited until the caller
// resolves them with MarkVisited or Drop.
func (f *Frontier) Next(n int) []string {
	n = min(n, len(f.queue))
	batch := make([]string, n)
	copy(batch, f.queue[:n])
	f.queue = f.queue[n:]
	for _, u := range batch {
		delete(f.queued, u)
	}
	return batch
}

// MarkVisited records u as successfully crawled.
func (f *Frontier) MarkVisited(u string) {
	f.visited[u] = struct{}{}
}

// Drop records u as failed so it is never queued again in this crawl.
func (f *Frontier) Drop(u string) {
	f.dropped[u] = struct{}{}
}

// Len is the number of queued URLs.
func (f *Frontier) Len() int { return len(f.queue) }

// Visited is the number of visited URLs.
func (f *Frontier) Visited() int { return len(f.visited) }

// IsQueued reports whether u is waiting in the queue.
func (f *Frontier) IsQueued(u string) bool {
	_, ok := f.queued[u]
	return ok
}

// IsVisited reports whether u has been visited.
func (f *Frontier) IsVisited(u string) bool {
	_, ok := f.visited[u]
	return ok
}

func isXML(raw string) bool {
	path := raw
	if u, err := url.Parse(raw); err == nil {
		path = u.Path
	}
	return strings.HasSuffix(strings.ToLower(path), ".xml")
}
