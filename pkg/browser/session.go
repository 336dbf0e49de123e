// Package browser owns the automation session used by link discovery. The
// Session interface is the boundary: callers drive navigation, scrolling and
// extraction through it and never touch the automation protocol directly.
package browser

import "context"

// Session is a single live browser page. Implementations are not safe for
// concurrent use; discovery drives one session from one goroutine.
type Session interface {
	// Navigate loads the given URL and waits for the load event
	Navigate(ctx context.Context, url string) error

	// Title returns the current page title
	Title(ctx context.Context) (string, error)

	// Content returns the current page HTML
	Content(ctx context.Context) (string, error)

	// ClickFirst clicks the first element matching the selector. It returns
	// found=false without error when no such element exists.
	ClickFirst(ctx context.Context, selector string) (found bool, err error)

	// ScrollToBottom scrolls the window to the bottom of the document
	ScrollToBottom(ctx context.Context) error

	// ContentHeight returns the current document scroll height in pixels
	ContentHeight(ctx context.Context) (int64, error)

	// ExtractAttrs returns the named attribute of every element matching the
	// selector, skipping elements where the attribute is empty or absent
	ExtractAttrs(ctx context.Context, selector, attr string) ([]string, error)

	// Prune removes all but the most recent keep elements for each tracked
	// selector, bounding DOM growth during long sessions
	Prune(ctx context.Context, selectors []string, keep int) error

	// MoveMouse performs a small random pointer gesture. Failures are
	// expected to be ignored by callers.
	MoveMouse(ctx context.Context) error

	// Close releases the browser and all session resources
	Close() error
}
