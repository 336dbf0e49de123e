// Package mapping maintains the persistent URL-to-local-path table that lets
// downloads across runs be satisfied by a file copy instead of a re-fetch.
//
// The table is a single JSON document loaded once at construction and
// rewritten wholesale by Save. Between load and save the in-memory map is the
// source of truth. Claim provides the atomic get-or-claim step that keeps two
// workers from downloading the same uncached URL at once.
package mapping

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// ClaimState describes the outcome of a Claim call
type ClaimState int

const (
	// StateCached means the URL already maps to a local file
	StateCached ClaimState = iota
	// StateClaimed means the caller now owns fetching this URL
	StateClaimed
	// StateInFlight means another worker is already fetching this URL
	StateInFlight
)

// Cache is a synchronized URL→path table backed by a JSON document
type Cache struct {
	path string

	mu      sync.Mutex
	entries map[string]string
	claims  map[string]struct{}
}

// Load reads the mapping document at path. A missing file yields an empty
// cache; a corrupt document is an error.
func Load(path string) (*Cache, error) {
	c := &Cache{
		path:    path,
		entries: make(map[string]string),
		claims:  make(map[string]struct{}),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return c, nil
		}
		return nil, fmt.Errorf("failed to read mapping file: %w", err)
	}

	if err := json.Unmarshal(data, &c.entries); err != nil {
		return nil, fmt.Errorf("failed to parse mapping file: %w", err)
	}
	return c, nil
}

// Lookup returns the local path recorded for a URL, if any
func (c *Cache) Lookup(url string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	path, ok := c.entries[url]
	return path, ok
}

// Claim atomically resolves a URL for a worker about to process it.
//
// If the URL maps to an existing file, StateCached and the path are returned.
// A mapped path whose file no longer exists is stale: the entry is dropped
// and the URL treated as unknown. For an unknown URL the caller either
// receives StateClaimed, making it responsible for fetching and then calling
// Record or Release, or StateInFlight when another worker got there first.
func (c *Cache) Claim(url string) (string, ClaimState) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if path, ok := c.entries[url]; ok {
		if _, err := os.Stat(path); err == nil {
			return path, StateCached
		}
		// Stale entry: the backing file is gone
		delete(c.entries, url)
	}

	if _, inFlight := c.claims[url]; inFlight {
		return "", StateInFlight
	}

	c.claims[url] = struct{}{}
	return "", StateClaimed
}

// Record stores a successful download and releases the claim on the URL
func (c *Cache) Record(url, path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[url] = path
	delete(c.claims, url)
}

// Release drops a claim without recording a mapping, after a failed fetch
func (c *Cache) Release(url string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.claims, url)
}

// Len returns the number of recorded mappings
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Save rewrites the whole mapping document
func (c *Cache) Save() error {
	c.mu.Lock()
	data, err := json.MarshalIndent(c.entries, "", "  ")
	c.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to marshal mapping: %w", err)
	}

	if err := os.WriteFile(c.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write mapping file: %w", err)
	}
	return nil
}
