package artwork

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func newCountingServer(t *testing.T) (*httptest.Server, *int32) {
	t.Helper()
	var fetches int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&fetches, 1)
		w.Header().Set("Content-Type", "image/jpeg")
		fmt.Fprint(w, "jpeg-bytes:", r.URL.Path)
	}))
	t.Cleanup(server.Close)
	return server, &fetches
}

func TestGetFetchesAndCaches(t *testing.T) {
	server, fetches := newCountingServer(t)
	cache := NewCache(CacheConfig{})

	url := server.URL + "/cover.jpg"
	image, ok := cache.Get(context.Background(), url)
	if !ok {
		t.Fatalf("expected artwork to be fetched")
	}
	if image.ContentType != "image/jpeg" {
		t.Fatalf("unexpected content type %q", image.ContentType)
	}

	if _, ok := cache.Get(context.Background(), url); !ok {
		t.Fatalf("expected cached artwork")
	}
	if *fetches != 1 {
		t.Fatalf("fresh entry must be served without refetch, got %d fetches", *fetches)
	}
}

func TestGetRefetchesExpiredEntry(t *testing.T) {
	server, fetches := newCountingServer(t)

	now := time.Unix(1700000000, 0)
	cache := NewCache(CacheConfig{Clock: func() time.Time { return now }})

	url := server.URL + "/cover.jpg"
	if _, ok := cache.Get(context.Background(), url); !ok {
		t.Fatalf("expected initial fetch to succeed")
	}

	now = now.Add(24*time.Hour + time.Minute)
	if _, ok := cache.Get(context.Background(), url); !ok {
		t.Fatalf("expected refetch to succeed")
	}
	if *fetches != 2 {
		t.Fatalf("expired entry must be refetched, got %d fetches", *fetches)
	}
}

func TestGetAbsorbsFetchFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(server.Close)

	cache := NewCache(CacheConfig{})
	if _, ok := cache.Get(context.Background(), server.URL+"/broken.jpg"); ok {
		t.Fatalf("expected absent result on fetch failure")
	}
	if cache.Len() != 0 {
		t.Fatalf("failed fetches must not be cached, got %d entries", cache.Len())
	}
}

func TestEvictionKeepsNewestAtCapacity(t *testing.T) {
	server, _ := newCountingServer(t)

	now := time.Unix(1700000000, 0)
	cache := NewCache(CacheConfig{MaxItems: 100, Clock: func() time.Time { return now }})

	// 101 distinct URLs with strictly increasing fetch times.
	urls := make([]string, 101)
	for i := range urls {
		urls[i] = fmt.Sprintf("%s/cover-%03d.jpg", server.URL, i)
		if _, ok := cache.Get(context.Background(), urls[i]); !ok {
			t.Fatalf("fetch %d failed", i)
		}
		now = now.Add(time.Second)
	}

	if cache.Len() != 100 {
		t.Fatalf("expected exactly 100 entries after eviction, got %d", cache.Len())
	}

	cache.mu.Lock()
	_, oldestPresent := cache.images[urls[0]]
	_, secondPresent := cache.images[urls[1]]
	_, newestPresent := cache.images[urls[100]]
	cache.mu.Unlock()
	if oldestPresent {
		t.Fatalf("expected the single oldest entry to be evicted")
	}
	if !secondPresent || !newestPresent {
		t.Fatalf("expected all newer entries retained")
	}
}

func TestEvictionTiesBreakByInsertionOrder(t *testing.T) {
	server, _ := newCountingServer(t)

	now := time.Unix(1700000000, 0)
	cache := NewCache(CacheConfig{MaxItems: 2, Clock: func() time.Time { return now }})

	first := server.URL + "/first.jpg"
	second := server.URL + "/second.jpg"
	third := server.URL + "/third.jpg"
	for _, url := range []string{first, second, third} {
		if _, ok := cache.Get(context.Background(), url); !ok {
			t.Fatalf("fetch failed for %s", url)
		}
	}

	cache.mu.Lock()
	_, firstPresent := cache.images[first]
	_, secondPresent := cache.images[second]
	_, thirdPresent := cache.images[third]
	cache.mu.Unlock()
	if firstPresent {
		t.Fatalf("expected earliest-inserted entry evicted on timestamp tie")
	}
	if !secondPresent || !thirdPresent {
		t.Fatalf("expected later insertions retained")
	}
}

func TestPreloadAbsorbsIndividualFailures(t *testing.T) {
	okServer, _ := newCountingServer(t)
	badServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(badServer.Close)

	cache := NewCache(CacheConfig{})
	cache.Preload(context.Background(), []string{
		okServer.URL + "/a.jpg",
		badServer.URL + "/missing.jpg",
		okServer.URL + "/b.jpg",
		"",
	})

	if cache.Len() != 2 {
		t.Fatalf("expected the two healthy URLs cached, got %d", cache.Len())
	}
}

func TestClearEmptiesCache(t *testing.T) {
	server, _ := newCountingServer(t)
	cache := NewCache(CacheConfig{})

	if _, ok := cache.Get(context.Background(), server.URL+"/cover.jpg"); !ok {
		t.Fatalf("expected fetch to succeed")
	}
	cache.Clear()
	if cache.Len() != 0 {
		t.Fatalf("expected empty cache after Clear, got %d", cache.Len())
	}
}
