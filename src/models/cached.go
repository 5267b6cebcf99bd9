package models

import (
	"context"
	"encoding/json"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/Protocol-Lattice/story-memory/src/cache"
)

// CachedLLM wraps a Model and caches Generate results, optionally persisting them
// to a JSON file between runs.
type CachedLLM struct {
	Model    Model
	Cache    *cache.LRU[string]
	FilePath string

	saveMu sync.Mutex
}

func NewCachedLLM(model Model, size int, ttl time.Duration, filePath string) *CachedLLM {
	c := &CachedLLM{
		Model:    model,
		Cache:    cache.New[string](size, ttl),
		FilePath: filePath,
	}
	if filePath != "" {
		c.load()
	}
	return c
}

func (c *CachedLLM) load() {
	f, err := os.Open(c.FilePath)
	if err != nil {
		return
	}
	defer f.Close()
	var dump map[string]cache.Entry[string]
	if err := json.NewDecoder(f).Decode(&dump); err == nil {
		c.Cache.Restore(dump)
	}
}

func (c *CachedLLM) save() {
	if c.FilePath == "" {
		return
	}
	c.saveMu.Lock()
	defer c.saveMu.Unlock()
	tmp := c.FilePath + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return
	}
	if err := json.NewEncoder(f).Encode(c.Cache.Dump()); err != nil {
		f.Close()
		os.Remove(tmp)
		return
	}
	f.Close()
	os.Rename(tmp, c.FilePath)
}

// Generate checks the cache before calling the wrapped model. Errors are not cached.
func (c *CachedLLM) Generate(ctx context.Context, prompt string) (string, error) {
	key := cache.HashKey(prompt)
	if val, ok := c.Cache.Get(key); ok {
		return val, nil
	}
	res, err := c.Model.Generate(ctx, prompt)
	if err != nil {
		return "", err
	}
	c.Cache.Set(key, res)
	c.save()
	return res, nil
}

// TryCreateCachedLLM wraps model when STORYMEM_LLM_CACHE_SIZE is set.
// STORYMEM_LLM_CACHE_TTL (seconds) and STORYMEM_LLM_CACHE_PATH tune it.
func TryCreateCachedLLM(model Model) Model {
	size, err := strconv.Atoi(os.Getenv("STORYMEM_LLM_CACHE_SIZE"))
	if err != nil || size <= 0 {
		return model
	}
	ttl := 300 * time.Second
	if sec, err := strconv.Atoi(os.Getenv("STORYMEM_LLM_CACHE_TTL")); err == nil && sec > 0 {
		ttl = time.Duration(sec) * time.Second
	}
	path := os.Getenv("STORYMEM_LLM_CACHE_PATH")
	if path == "" {
		path = ".storymem_llm_cache.json"
	}
	return NewCachedLLM(model, size, ttl, path)
}
