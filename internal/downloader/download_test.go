package downloader

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"assetgrab/pkg/config"
	"assetgrab/pkg/mapping"
	"assetgrab/pkg/retry"
)

func fastConfig(t *testing.T) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Download.Workers = 4
	cfg.Download.Timeout = 5 * time.Second
	cfg.Download.MaxRetries = 3
	cfg.Download.DelayMin = 0
	cfg.Download.DelayMax = 0
	cfg.Download.LinkDir = t.TempDir()
	cfg.Download.DownloadRoot = t.TempDir()
	return cfg
}

func newTestManager(t *testing.T, cfg *config.Config) (*Manager, *mapping.Cache) {
	t.Helper()
	cache, err := mapping.Load(filepath.Join(t.TempDir(), "mapping.json"))
	require.NoError(t, err)

	m, err := NewManager(cfg, cache, nil)
	require.NoError(t, err)
	m.backoff = &retry.ConstantBackoff{Delay: time.Millisecond}
	return m, cache
}

func TestDownloadSuccess(t *testing.T) {
	var gets atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			gets.Add(1)
		}
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write([]byte("jpeg bytes"))
	}))
	defer server.Close()

	cfg := fastConfig(t)
	m, _ := newTestManager(t, cfg)
	destDir := t.TempDir()

	path, err := m.download(context.Background(), server.URL+"/photos/beach.jpg", destDir)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(destDir, "beach.jpg"), path)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "jpeg bytes", string(data))
	assert.EqualValues(t, 1, gets.Load())

	// No temp residue
	assert.NoFileExists(t, path+tempSuffix)
}

func TestDownloadResumesWithByteRange(t *testing.T) {
	const full = "0123456789"
	var getCount atomic.Int32
	var rangeSeen atomic.Value

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.Header().Set("Content-Type", "image/png")
			return
		}

		n := getCount.Add(1)
		if n == 1 {
			// Declare the full length but send only half, forcing a
			// transport error on the client side
			w.Header().Set("Content-Length", fmt.Sprint(len(full)))
			w.Write([]byte(full[:5]))
			return
		}

		rangeSeen.Store(r.Header.Get("Range"))
		if r.Header.Get("Range") == "bytes=5-" {
			w.Header().Set("Content-Range", fmt.Sprintf("bytes 5-9/%d", len(full)))
			w.WriteHeader(http.StatusPartialContent)
			w.Write([]byte(full[5:]))
			return
		}
		w.Write([]byte(full))
	}))
	defer server.Close()

	cfg := fastConfig(t)
	m, _ := newTestManager(t, cfg)
	destDir := t.TempDir()

	path, err := m.download(context.Background(), server.URL+"/pic.png", destDir)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, full, string(data), "no duplicated or missing byte ranges")
	assert.Equal(t, "bytes=5-", rangeSeen.Load(), "second attempt must request the remainder")
	assert.EqualValues(t, 2, getCount.Load())
}

func TestDownloadRestartsWhenServerIgnoresRange(t *testing.T) {
	const full = "abcdefghij"
	var getCount atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			return
		}
		n := getCount.Add(1)
		if n == 1 {
			w.Header().Set("Content-Length", fmt.Sprint(len(full)))
			w.Write([]byte(full[:4]))
			return
		}
		// Ignore the Range header entirely and replay the whole body
		w.Write([]byte(full))
	}))
	defer server.Close()

	cfg := fastConfig(t)
	m, _ := newTestManager(t, cfg)

	path, err := m.download(context.Background(), server.URL+"/r.gif", t.TempDir())
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, full, string(data), "a replayed 200 must not be appended to partial bytes")
}

func TestDownloadRetriesRequestTimeout(t *testing.T) {
	var gets atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.Header().Set("Content-Type", "image/jpeg")
			return
		}
		if gets.Add(1) == 1 {
			w.WriteHeader(http.StatusRequestTimeout)
			return
		}
		w.Write([]byte("late bytes"))
	}))
	defer server.Close()

	cfg := fastConfig(t)
	m, _ := newTestManager(t, cfg)

	path, err := m.download(context.Background(), server.URL+"/slow.jpg", t.TempDir())
	require.NoError(t, err, "a 408 must be retried, not treated as a client error")
	assert.EqualValues(t, 2, gets.Load())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "late bytes", string(data))
}

func TestDownloadPermanentFailureFailsFast(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	cfg := fastConfig(t)
	m, _ := newTestManager(t, cfg)

	_, err := m.download(context.Background(), server.URL+"/gone.jpg", t.TempDir())
	require.Error(t, err)
	assert.EqualValues(t, 1, requests.Load(), "404 must not be retried")
}

func TestDownloadRetriesExhaustedDiscardTemp(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	cfg := fastConfig(t)
	cfg.Download.MaxRetries = 4
	m, _ := newTestManager(t, cfg)
	destDir := t.TempDir()

	_, err := m.download(context.Background(), server.URL+"/busy.jpg", destDir)
	require.Error(t, err)
	assert.EqualValues(t, 4, requests.Load())

	entries, err := os.ReadDir(destDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "partial temp state must be discarded after exhaustion")
}

func TestProcessTaskIdempotentReDownload(t *testing.T) {
	var fetches atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fetches.Add(1)
	}))
	defer server.Close()

	cfg := fastConfig(t)
	m, cache := newTestManager(t, cfg)

	// Simulate an earlier run: mapping entry with an existing file
	sourceDir := t.TempDir()
	source := filepath.Join(sourceDir, "cached.jpg")
	require.NoError(t, os.WriteFile(source, []byte("original bytes"), 0644))
	url := server.URL + "/cached.jpg"
	cache.Record(url, source)

	destDir := t.TempDir()
	result := m.processTask(context.Background(), Task{URL: url, DestDir: destDir, Category: "cats"})

	require.NoError(t, result.Err)
	assert.True(t, result.Copied)
	assert.EqualValues(t, 0, fetches.Load(), "cache hit must not touch the network")

	data, err := os.ReadFile(filepath.Join(destDir, "cached.jpg"))
	require.NoError(t, err)
	assert.Equal(t, "original bytes", string(data))

	// Mapping unchanged
	got, ok := cache.Lookup(url)
	assert.True(t, ok)
	assert.Equal(t, source, got)
	assert.Equal(t, 1, cache.Len())
}

func TestProcessTaskStaleMappingRedownloads(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write([]byte("fresh bytes"))
	}))
	defer server.Close()

	cfg := fastConfig(t)
	m, cache := newTestManager(t, cfg)

	url := server.URL + "/fresh.jpg"
	cache.Record(url, filepath.Join(t.TempDir(), "deleted.jpg"))

	destDir := t.TempDir()
	result := m.processTask(context.Background(), Task{URL: url, DestDir: destDir, Category: "cats"})

	require.NoError(t, result.Err)
	assert.False(t, result.Copied, "stale mapping must trigger a re-download, not an error")

	data, err := os.ReadFile(result.Path)
	require.NoError(t, err)
	assert.Equal(t, "fresh bytes", string(data))
}

func TestScanTasks(t *testing.T) {
	linkDir := t.TempDir()
	downloadRoot := t.TempDir()

	content := "https://example.com/a.jpg\n\nhttps://example.com/b.jpg\n"
	require.NoError(t, os.WriteFile(filepath.Join(linkDir, "cats_2.txt"), []byte(content), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(linkDir, "dogs_1.txt"), []byte("https://example.com/c.jpg\n"), 0644))

	tasks, err := ScanTasks(linkDir, downloadRoot)
	require.NoError(t, err)
	require.Len(t, tasks, 3)

	categories := map[string]int{}
	for _, task := range tasks {
		categories[task.Category]++
		assert.DirExists(t, task.DestDir)
	}
	assert.Equal(t, 2, categories["cats_2"])
	assert.Equal(t, 1, categories["dogs_1"])
}

func TestProcessAllEndToEnd(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "broken") {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write([]byte("payload for " + r.URL.Path))
	}))
	defer server.Close()

	cfg := fastConfig(t)
	cfg.Download.MaxRetries = 2

	mappingPath := filepath.Join(t.TempDir(), "mapping.json")
	cache, err := mapping.Load(mappingPath)
	require.NoError(t, err)

	m, err := NewManager(cfg, cache, nil)
	require.NoError(t, err)
	m.backoff = &retry.ConstantBackoff{Delay: time.Millisecond}

	linkDir := cfg.Download.LinkDir
	urls := strings.Join([]string{
		server.URL + "/one.jpg",
		server.URL + "/two.jpg",
		server.URL + "/broken.jpg",
	}, "\n")
	require.NoError(t, os.WriteFile(filepath.Join(linkDir, "cats.txt"), []byte(urls+"\n"), 0644))

	tasks, err := ScanTasks(linkDir, cfg.Download.DownloadRoot)
	require.NoError(t, err)
	require.Len(t, tasks, 3)

	summary := m.ProcessAll(context.Background(), tasks)

	assert.Equal(t, 2, summary.Downloaded)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 0, summary.Copied)

	// Exactly the two successes are on disk
	destDir := filepath.Join(cfg.Download.DownloadRoot, "cats")
	entries, err := os.ReadDir(destDir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	// Mapping document persisted with exactly the successes
	reloaded, err := mapping.Load(mappingPath)
	require.NoError(t, err)
	assert.Equal(t, 2, reloaded.Len())
}

func TestProcessAllDeduplicatesSameURLAcrossTasks(t *testing.T) {
	var gets atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			gets.Add(1)
		}
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write([]byte("shared"))
	}))
	defer server.Close()

	cfg := fastConfig(t)
	m, _ := newTestManager(t, cfg)

	url := server.URL + "/shared.jpg"
	destDir := t.TempDir()
	tasks := []Task{
		{URL: url, DestDir: destDir, Category: "cats"},
		{URL: url, DestDir: destDir, Category: "cats"},
		{URL: url, DestDir: destDir, Category: "cats"},
	}

	summary := m.ProcessAll(context.Background(), tasks)

	assert.Equal(t, 1, summary.Downloaded)
	assert.Equal(t, 0, summary.Failed)
	assert.Equal(t, 2, summary.Skipped+summary.Copied,
		"duplicates are either skipped in-flight or served from cache")
	assert.EqualValues(t, 1, gets.Load(), "the shared URL must be fetched once")
}

func TestNextProxyRoundRobin(t *testing.T) {
	cfg := fastConfig(t)
	cfg.Proxy.Enabled = true
	cfg.Proxy.Servers = []string{"http://p1:8080", "http://p2:8080"}

	m, _ := newTestManager(t, cfg)

	assert.Equal(t, "p1:8080", m.nextProxy().Host)
	assert.Equal(t, "p2:8080", m.nextProxy().Host)
	assert.Equal(t, "p1:8080", m.nextProxy().Host)

	m.advanceProxy()
	assert.Equal(t, "p1:8080", m.nextProxy().Host)
}
