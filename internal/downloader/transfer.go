package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"

	errs "assetgrab/pkg/errors"
	"assetgrab/pkg/retry"
)

// tempSuffix marks in-progress transfers; a file is only visible under its
// final name once every byte has been written
const tempSuffix = ".tmp"

// download fetches a URL into destDir with resumable, retried transfer.
// The first attempt issues a HEAD probe to resolve the filename; later
// attempts continue from whatever the temp file already holds. After the
// retry ceiling the partial temp file is discarded and the error returned.
func (m *Manager) download(ctx context.Context, rawURL, destDir string) (string, error) {
	var finalPath, tempPath string
	var lastErr error

	maxRetries := m.cfg.Download.MaxRetries
	for attempt := 0; attempt < maxRetries; attempt++ {
		// Inter-request pacing, randomized like a browser user
		if err := m.sim.Delay(ctx, m.cfg.Download.DelayMin, m.cfg.Download.DelayMax, false); err != nil {
			lastErr = err
			break
		}

		err := func() error {
			if tempPath == "" {
				name, err := m.probeFilename(ctx, rawURL)
				if err != nil {
					return err
				}
				finalPath = filepath.Join(destDir, name)
				tempPath = finalPath + tempSuffix
			}
			return m.fetch(ctx, rawURL, tempPath)
		}()

		if err == nil {
			if err := os.Rename(tempPath, finalPath); err != nil {
				lastErr = err
				break
			}
			return finalPath, nil
		}
		lastErr = err

		if !isTransient(err) {
			break
		}

		if attempt < maxRetries-1 {
			wait := m.backoff.NextDelay(attempt + 1)
			m.log.WarnWithFields("download attempt failed", map[string]interface{}{
				"url":     rawURL,
				"attempt": attempt + 1,
				"max":     maxRetries,
				"wait":    wait.String(),
				"error":   err.Error(),
			})
			if err := retry.Wait(ctx, wait); err != nil {
				lastErr = err
				break
			}
			m.advanceProxy()
		}
	}

	if tempPath != "" {
		os.Remove(tempPath)
	}
	return "", lastErr
}

// probeFilename issues a metadata-only request and resolves the filename
// from its response headers and the URL
func (m *Manager) probeFilename(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(m.withProxy(ctx), http.MethodHead, rawURL, nil)
	if err != nil {
		return "", err
	}
	m.applyIdentity(req)

	resp, err := m.client.Do(req)
	if err != nil {
		return "", errs.New(errs.ErrorTypeNetwork, 0, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", errs.FromStatusCode(resp.StatusCode, "filename probe rejected")
	}
	return resolveFilename(resp.Header, rawURL), nil
}

// fetch streams the response body into the temp file, requesting a byte-range
// continuation when partial content already exists. Received bytes are
// appended; prior bytes are never truncated unless the server ignores the
// range request and replays the whole resource.
func (m *Manager) fetch(ctx context.Context, rawURL, tempPath string) error {
	var offset int64
	if fi, err := os.Stat(tempPath); err == nil {
		offset = fi.Size()
	}

	req, err := http.NewRequestWithContext(m.withProxy(ctx), http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	m.applyIdentity(req)
	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return errs.New(errs.ErrorTypeNetwork, 0, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return errs.FromStatusCode(resp.StatusCode, "fetch rejected")
	}

	flags := os.O_CREATE | os.O_WRONLY | os.O_APPEND
	if offset > 0 && resp.StatusCode == http.StatusOK {
		// Server replayed the full resource; start the file over
		flags = os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	}

	f, err := os.OpenFile(tempPath, flags, 0644)
	if err != nil {
		return err
	}

	_, copyErr := io.Copy(f, resp.Body)
	closeErr := f.Close()
	if copyErr != nil {
		return errs.New(errs.ErrorTypeNetwork, 0, copyErr.Error())
	}
	return closeErr
}

// applyIdentity sets a fresh randomized identity on the request. The shared
// client is never mutated; headers live on the request alone.
func (m *Manager) applyIdentity(req *http.Request) {
	id := m.sim.Identity()
	req.Header.Set("User-Agent", id.UserAgent)
	for k, v := range id.Headers {
		req.Header.Set(k, v)
	}
}

// withProxy attaches the next proxy in the rotation to the context, or
// leaves it untouched when no proxies are configured
func (m *Manager) withProxy(ctx context.Context) context.Context {
	p := m.nextProxy()
	if p == nil {
		return ctx
	}
	return context.WithValue(ctx, proxyKey{}, p)
}

// nextProxy returns the next proxy in round-robin order
func (m *Manager) nextProxy() *url.URL {
	if len(m.proxies) == 0 {
		return nil
	}
	idx := m.proxyIdx.Add(1) - 1
	return m.proxies[idx%uint64(len(m.proxies))]
}

// advanceProxy skips ahead in the rotation between retries
func (m *Manager) advanceProxy() {
	if len(m.proxies) > 0 {
		m.proxyIdx.Add(1)
	}
}

// isTransient reports whether a failure is worth retrying
func isTransient(err error) bool {
	var typed *errs.Error
	if errors.As(err, &typed) {
		return errs.IsRetryable(typed.Type)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	// Filesystem and unclassified errors are treated as permanent
	return false
}
