// Package downloader is the concurrent download manager: it turns link batch
// files into locally stored assets.
//
// Each task is claimed through the mapping cache so a URL is fetched at most
// once per run and served by file copy on later runs. Transfers stream into a
// temp file, resume from its size with a byte-range request after transient
// failures, and are promoted to their final name only when complete. Retries
// use exponential backoff with jitter and rotate through the configured proxy
// pool. A failed task is reported in its result; it never aborts the run, and
// the mapping document is persisted once at the end regardless.
package downloader
