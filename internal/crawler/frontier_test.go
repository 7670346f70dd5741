package crawler

import (
	"fmt"
	"testing"
)

func TestFrontierInvariants(t *testing.T) {
	f := NewFrontier(3)

	if !f.Push("http://a.test/") {
		t.Fatal("first push refused")
	}
	if f.Push("http://a.test/") {
		t.Error("duplicate queued")
	}
	for _, u := range []string{"http://a.test/sitemap.xml", "http://a.test/feed.XML", "http://a.test/x.xml?v=1"} {
		if f.Push(u) {
			t.Errorf("xml url %s queued", u)
		}
	}

	batch := f.Next(5)
	if len(batch) != 1 || f.Len() != 0 {
		t.Fatalf("Next returned %v, remaining %d", batch, f.Len())
	}
	f.MarkVisited(batch[0])
	if f.Push(batch[0]) {
		t.Error("visited url re-queued")
	}

	f.Push("http://a.test/1")
	f.Push("http://a.test/2")
	if f.Push("http://a.test/3") {
		t.Error("push beyond max_urls accepted")
	}
	if got := f.Len() + f.Visited(); got != 3 {
		t.Errorf("queued+visited = %d, want 3", got)
	}
}

func TestFrontierDroppedNeverRequeued(t *testing.T) {
	f := NewFrontier(10)
	f.Push("http://a.test/broken")
	f.Drop(f.Next(1)[0])
	if f.Push("http://a.test/broken") {
		t.Error("dropped url re-queued")
	}
}

func TestFrontierFIFOAndBound(t *testing.T) {
	const maxURLs = 7
	f := NewFrontier(maxURLs)
	for i := 0; i < 20; i++ {
		f.Push(fmt.Sprintf("http://a.test/%d", i))
		if f.Len() > maxURLs-f.Visited() {
			t.Fatalf("frontier size %d exceeds max_urls - visited = %d", f.Len(), maxURLs-f.Visited())
		}
	}
	got := f.Next(3)
	want := []string{"http://a.test/0", "http://a.test/1", "http://a.test/2"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Next = %v, want %v", got, want)
		}
	}
	for _, u := range got {
		if f.IsQueued(u) || f.IsVisited(u) {
			t.Errorf("%s should be in flight", u)
		}
		f.MarkVisited(u)
	}
	for i := 20; i < 30; i++ {
		f.Push(fmt.Sprintf("http://a.test/%d", i))
		if f.Len() > maxURLs-f.Visited() {
			t.Fatalf("frontier size %d exceeds bound after visits", f.Len())
		}
	}
}
