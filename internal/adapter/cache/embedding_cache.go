package cache

import (
	"container/list"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"

	"sentry/internal/port"
)

// EmbeddingCache is an LRU of vectors keyed by model and text. Entries never
// expire: embeddings are deterministic for a given model.
type EmbeddingCache struct {
	mu      sync.Mutex
	entries map[string]*list.Element
	order   *list.List
	maxSize int
	hits    uint64
	misses  uint64
}

type cacheEntry struct {
	key    string
	vector []float32
}

func NewEmbeddingCache(maxSize int) *EmbeddingCache {
	if maxSize <= 0 {
		maxSize = 1024
	}
	return &EmbeddingCache{
		entries: make(map[string]*list.Element),
		order:   list.New(),
		maxSize: maxSize,
	}
}

func cacheKey(model, text string) string {
	hash := sha256.Sum256([]byte(model + "\x00" + text))
	return hex.EncodeToString(hash[:16])
}

func (c *EmbeddingCache) Get(model, text string) ([]float32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, exists := c.entries[cacheKey(model, text)]
	if !exists {
		c.misses++
		return nil, false
	}
	c.hits++
	c.order.MoveToBack(el)
	return el.Value.(*cacheEntry).vector, true
}

func (c *EmbeddingCache) Put(model, text string, vector []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := cacheKey(model, text)
	if el, exists := c.entries[key]; exists {
		el.Value.(*cacheEntry).vector = vector
		c.order.MoveToBack(el)
		return
	}

	if c.order.Len() >= c.maxSize {
		c.evictOldest()
	}
	c.entries[key] = c.order.PushBack(&cacheEntry{key: key, vector: vector})
}

func (c *EmbeddingCache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Stats returns hit and miss counts since creation.
func (c *EmbeddingCache) Stats() (hits, misses uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

func (c *EmbeddingCache) evictOldest() {
	oldest := c.order.Front()
	if oldest == nil {
		return
	}
	c.order.Remove(oldest)
	delete(c.entries, oldest.Value.(*cacheEntry).key)
}

// CachedEmbedder serves repeated texts from the cache and sends only misses
// to the wrapped embedder, one request per call.
type CachedEmbedder struct {
	embedder port.Embedder
	cache    *EmbeddingCache
}

func NewCachedEmbedder(embedder port.Embedder, cache *EmbeddingCache) *CachedEmbedder {
	return &CachedEmbedder{
		embedder: embedder,
		cache:    cache,
	}
}

func (e *CachedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	model := e.embedder.ModelName()
	out := make([][]float32, len(texts))

	var missTexts []string
	missIdx := make(map[string][]int)
	for i, text := range texts {
		if vec, hit := e.cache.Get(model, text); hit {
			out[i] = vec
			continue
		}
		if _, pending := missIdx[text]; !pending {
			missTexts = append(missTexts, text)
		}
		missIdx[text] = append(missIdx[text], i)
	}

	if len(missTexts) == 0 {
		return out, nil
	}

	vecs, err := e.embedder.Embed(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(missTexts) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(vecs), len(missTexts))
	}

	for j, text := range missTexts {
		e.cache.Put(model, text, vecs[j])
		for _, i := range missIdx[text] {
			out[i] = vecs[j]
		}
	}
	return out, nil
}

// Stats returns the cache's hit and miss counts and its current size.
func (e *CachedEmbedder) Stats() (hits, misses uint64, size int) {
	hits, misses = e.cache.Stats()
	return hits, misses, e.cache.Size()
}

func (e *CachedEmbedder) Dimension() int {
	return e.embedder.Dimension()
}

func (e *CachedEmbedder) ModelName() string {
	return e.embedder.ModelName()
}
