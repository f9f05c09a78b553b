package artwork

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	defaultMaxItems = 100
	defaultMaxAge   = 24 * time.Hour
)

// CacheConfig bundles configuration for the artwork cache.
type CacheConfig struct {
	MaxItems   int
	MaxAge     time.Duration
	HTTPClient *http.Client
	Logger     *zap.Logger
	Clock      func() time.Time
}

type cachedImage struct {
	data        []byte
	contentType string
	fetchedAt   time.Time
	seq         int64
}

// Cache is a bounded artwork store keyed by remote URL. Entries age from
// their fetch time, never from access, and the count cap is enforced after
// every successful fetch. Artwork is optional, so fetch failures surface as
// a miss rather than an error.
type Cache struct {
	maxItems   int
	maxAge     time.Duration
	httpClient *http.Client
	logger     *zap.Logger
	clock      func() time.Time

	mu      sync.Mutex
	images  map[string]cachedImage
	nextSeq int64
}

// NewCache constructs an artwork cache with sane defaults.
func NewCache(cfg CacheConfig) *Cache {
	maxItems := cfg.MaxItems
	if maxItems <= 0 {
		maxItems = defaultMaxItems
	}
	maxAge := cfg.MaxAge
	if maxAge <= 0 {
		maxAge = defaultMaxAge
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	return &Cache{
		maxItems:   maxItems,
		maxAge:     maxAge,
		httpClient: httpClient,
		logger:     logger,
		clock:      clock,
		images:     make(map[string]cachedImage),
	}
}

// Image holds fetched artwork bytes and their content type.
type Image struct {
	Data        []byte
	ContentType string
}

// Get returns the artwork for the URL, serving a fresh cached copy without
// a network call and fetching otherwise. The second return is false when
// the artwork could not be obtained.
func (c *Cache) Get(ctx context.Context, url string) (Image, bool) {
	if url == "" {
		return Image{}, false
	}

	c.mu.Lock()
	if cached, ok := c.images[url]; ok && c.clock().Sub(cached.fetchedAt) < c.maxAge {
		image := Image{Data: cached.data, ContentType: cached.contentType}
		c.mu.Unlock()
		return image, true
	}
	c.mu.Unlock()

	image, err := c.fetch(ctx, url)
	if err != nil {
		c.logger.Warn("artwork fetch failed", zap.String("url", url), zap.Error(err))
		return Image{}, false
	}

	c.mu.Lock()
	c.nextSeq++
	c.images[url] = cachedImage{
		data:        image.Data,
		contentType: image.ContentType,
		fetchedAt:   c.clock(),
		seq:         c.nextSeq,
	}
	c.evictLocked()
	c.mu.Unlock()

	return image, true
}

// Preload fetches every URL concurrently. Individual failures are absorbed
// per URL; the call as a whole never fails.
func (c *Cache) Preload(ctx context.Context, urls []string) {
	var wg sync.WaitGroup
	for _, url := range urls {
		if url == "" {
			continue
		}
		wg.Add(1)
		go func(target string) {
			defer wg.Done()
			c.Get(ctx, target)
		}(url)
	}
	wg.Wait()
}

// Clear releases all cached content.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.images = make(map[string]cachedImage)
	c.mu.Unlock()
}

// Len reports the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.images)
}

func (c *Cache) fetch(ctx context.Context, url string) (Image, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Image{}, err
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		return Image{}, err
	}
	defer response.Body.Close()

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return Image{}, fmt.Errorf("artwork: unexpected status %d", response.StatusCode)
	}

	data, err := io.ReadAll(response.Body)
	if err != nil {
		return Image{}, err
	}

	return Image{Data: data, ContentType: response.Header.Get("Content-Type")}, nil
}

// evictLocked drops the oldest-by-fetch-time entries until the cache is
// exactly at capacity. Ties fall back to insertion order. Caller holds mu.
func (c *Cache) evictLocked() {
	excess := len(c.images) - c.maxItems
	if excess <= 0 {
		return
	}

	type keyed struct {
		url       string
		fetchedAt time.Time
		seq       int64
	}
	entries := make([]keyed, 0, len(c.images))
	for url, cached := range c.images {
		entries = append(entries, keyed{url: url, fetchedAt: cached.fetchedAt, seq: cached.seq})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].fetchedAt.Equal(entries[j].fetchedAt) {
			return entries[i].seq < entries[j].seq
		}
		return entries[i].fetchedAt.Before(entries[j].fetchedAt)
	})

	for _, entry := range entries[:excess] {
		delete(c.images, entry.url)
	}
}
