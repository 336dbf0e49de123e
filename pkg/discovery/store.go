package discovery

import (
	"fmt"
	"os"
	"path/filepath"

	"assetgrab/pkg/logger"
)

// Store accumulates discovered links, deduplicated by exact string value,
// and flushes them to newline-delimited batch files. It is driven by a
// single discovery session and is not safe for concurrent use.
type Store struct {
	linkDir    string
	links      map[string]struct{}
	totalSaved int
	log        logger.Logger
}

// NewStore creates a link store writing batch files under linkDir
func NewStore(linkDir string, log logger.Logger) *Store {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Store{
		linkDir: linkDir,
		links:   make(map[string]struct{}),
		log:     log,
	}
}

// Add inserts a URL if absent and reports whether it was new
func (s *Store) Add(url string) bool {
	if url == "" {
		return false
	}
	if _, ok := s.links[url]; ok {
		return false
	}
	s.links[url] = struct{}{}
	return true
}

// Len returns the number of links currently held in memory
func (s *Store) Len() int {
	return len(s.links)
}

// TotalSaved returns the cumulative count of links flushed to disk
func (s *Store) TotalSaved() int {
	return s.totalSaved
}

// Flush writes the current set to <linkDir>/<label>_<cumulativeTotal>.txt,
// one URL per line, then clears the set. An empty set is skipped silently.
func (s *Store) Flush(label string) error {
	if len(s.links) == 0 {
		return nil
	}

	if err := os.MkdirAll(s.linkDir, 0755); err != nil {
		return fmt.Errorf("failed to create link directory: %w", err)
	}

	total := s.totalSaved + len(s.links)
	path := filepath.Join(s.linkDir, fmt.Sprintf("%s_%d.txt", label, total))

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open batch file: %w", err)
	}
	defer f.Close()

	flushed := 0
	for link := range s.links {
		if _, err := fmt.Fprintln(f, link); err != nil {
			// State untouched; the set is retried whole on the next flush
			return fmt.Errorf("failed to write batch file: %w", err)
		}
		flushed++
	}

	s.totalSaved = total
	s.links = make(map[string]struct{})

	s.log.InfoWithFields("saved link batch", map[string]interface{}{
		"file":        path,
		"count":       flushed,
		"total_saved": s.totalSaved,
	})
	return nil
}
