package downloader

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"assetgrab/pkg/behavior"
	"assetgrab/pkg/config"
	"assetgrab/pkg/logger"
	"assetgrab/pkg/mapping"
	"assetgrab/pkg/retry"
)

// Task is one unit of download work: fetch URL into DestDir
type Task struct {
	URL      string
	DestDir  string
	Category string
}

// Result reports the outcome of one task
type Result struct {
	Task    Task
	Path    string
	Copied  bool
	Skipped bool
	Err     error
}

// Summary aggregates a whole run
type Summary struct {
	Downloaded int
	Copied     int
	Skipped    int
	Failed     int
	Results    []Result
}

// proxyKey carries the per-request proxy choice through the request context,
// so a single pooled transport can serve rotating egress proxies
type proxyKey struct{}

// Manager turns link batch files into locally stored assets using a bounded
// pool of concurrent workers with resumable, retried, deduplicated transfers.
type Manager struct {
	cfg     *config.Config
	client  *http.Client
	sim     *behavior.Simulator
	cache   *mapping.Cache
	log     logger.Logger
	backoff retry.BackoffStrategy

	proxies  []*url.URL
	proxyIdx atomic.Uint64
}

// NewManager creates a download manager sharing one pooled HTTP transport
// across workers. Per-request identity headers are always built fresh.
func NewManager(cfg *config.Config, cache *mapping.Cache, log logger.Logger) (*Manager, error) {
	if log == nil {
		log = logger.GetLogger()
	}

	m := &Manager{
		cfg:     cfg,
		sim:     behavior.New(cfg.Behavior),
		cache:   cache,
		log:     log,
		backoff: retry.DefaultExponentialBackoff(),
	}

	if cfg.Proxy.Enabled {
		for _, raw := range cfg.Proxy.Servers {
			u, err := url.Parse(raw)
			if err != nil {
				return nil, fmt.Errorf("invalid proxy server %q: %w", raw, err)
			}
			m.proxies = append(m.proxies, u)
		}
	}

	transport := &http.Transport{
		Proxy: func(req *http.Request) (*url.URL, error) {
			if p, ok := req.Context().Value(proxyKey{}).(*url.URL); ok {
				return p, nil
			}
			return nil, nil
		},
		MaxIdleConnsPerHost: cfg.Download.Workers,
	}
	m.client = &http.Client{
		Transport: transport,
		Timeout:   cfg.Download.Timeout,
	}

	return m, nil
}

// ScanTasks reads every *.txt batch file under linkDir and produces one task
// per URL line. The file name stem is the category; its destination
// directory is created on demand.
func ScanTasks(linkDir, downloadRoot string) ([]Task, error) {
	files, err := filepath.Glob(filepath.Join(linkDir, "*.txt"))
	if err != nil {
		return nil, fmt.Errorf("failed to scan link directory: %w", err)
	}

	var tasks []Task
	for _, file := range files {
		category := strings.TrimSuffix(filepath.Base(file), ".txt")
		destDir := filepath.Join(downloadRoot, category)
		if err := os.MkdirAll(destDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create category directory: %w", err)
		}

		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read batch file %s: %w", file, err)
		}

		for _, line := range strings.Split(string(data), "\n") {
			u := strings.TrimSpace(line)
			if u == "" {
				continue
			}
			tasks = append(tasks, Task{URL: u, DestDir: destDir, Category: category})
		}
	}
	return tasks, nil
}

// ProcessAll distributes tasks over the worker pool, waits for completion and
// persists the mapping cache once at the end, whether or not tasks failed.
func (m *Manager) ProcessAll(ctx context.Context, tasks []Task) Summary {
	m.log.InfoWithFields("starting download run", map[string]interface{}{
		"tasks":   len(tasks),
		"workers": m.cfg.Download.Workers,
	})

	var (
		g         errgroup.Group
		mu        sync.Mutex
		completed int
		summary   Summary
	)
	g.SetLimit(m.cfg.Download.Workers)

	for _, task := range tasks {
		task := task
		g.Go(func() error {
			result := m.processTask(ctx, task)

			mu.Lock()
			completed++
			summary.Results = append(summary.Results, result)
			switch {
			case result.Err != nil:
				summary.Failed++
			case result.Skipped:
				summary.Skipped++
			case result.Copied:
				summary.Copied++
			default:
				summary.Downloaded++
			}
			done := completed
			mu.Unlock()

			m.log.DebugWithFields("task finished", map[string]interface{}{
				"progress": fmt.Sprintf("%d/%d", done, len(tasks)),
				"url":      task.URL,
			})
			return nil
		})
	}
	g.Wait()

	if err := m.cache.Save(); err != nil {
		m.log.WithError(err).Error("failed to persist mapping cache")
	}

	m.log.InfoWithFields("download run finished", map[string]interface{}{
		"downloaded": summary.Downloaded,
		"copied":     summary.Copied,
		"skipped":    summary.Skipped,
		"failed":     summary.Failed,
	})
	return summary
}

// processTask resolves one task: serve it from the mapping cache by copy when
// possible, otherwise download and record the new mapping. Failures are
// reported in the result, never raised.
func (m *Manager) processTask(ctx context.Context, task Task) Result {
	result := Result{Task: task}

	cached, state := m.cache.Claim(task.URL)
	switch state {
	case mapping.StateCached:
		target := filepath.Join(task.DestDir, filepath.Base(cached))
		if _, err := os.Stat(target); err == nil {
			result.Path = target
			result.Copied = true
			return result
		}
		if err := copyFile(cached, target); err != nil {
			result.Err = fmt.Errorf("failed to copy cached asset: %w", err)
			return result
		}
		m.log.WithField("url", task.URL).Info("copied from cache")
		result.Path = target
		result.Copied = true
		return result

	case mapping.StateInFlight:
		// Another worker owns this URL in this run
		result.Skipped = true
		return result
	}

	path, err := m.download(ctx, task.URL, task.DestDir)
	if err != nil {
		m.cache.Release(task.URL)
		m.log.WithError(err).WithField("url", task.URL).Error("download failed permanently")
		result.Err = err
		return result
	}

	m.cache.Record(task.URL, path)
	m.log.WithField("url", task.URL).Info("downloaded")
	result.Path = path
	return result
}

// copyFile copies src to dst without linking their lifetimes
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}

	_, copyErr := out.ReadFrom(in)
	closeErr := out.Close()
	if copyErr != nil {
		os.Remove(dst)
		return copyErr
	}
	return closeErr
}
