// Package discovery implements the link-discovery engine: a single browser
// session driven through repeated load-more and scroll cycles, extracting
// asset download links into a deduplicated store that flushes batches to
// disk.
//
// The engine separates soft failures from hard failures. Navigation errors
// abort the session; everything else (a stubborn load-more button, a stalled
// scroll, a failed extraction pass) is retried with backoff and then reported
// as "no progress" so the loop can move on. Whatever happens, collected links
// are flushed and the browser is released before Run returns.
package discovery
