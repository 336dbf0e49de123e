// Package behavior produces the randomized pacing and identity variation the
// harvester uses to blend in with organic traffic: delays with Gaussian
// jitter, rotating browser identities, and an advisory page-health check.
package behavior

import (
	"context"
	"math/rand"
	"strings"
	"sync"
	"time"

	"assetgrab/pkg/config"
)

// defaultUserAgents mirrors a pool of current desktop browser identities
var defaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:121.0) Gecko/20100101 Firefox/121.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Safari/605.1.15",
}

var defaultReferers = []string{
	"https://www.google.com/",
	"https://www.bing.com/",
	"https://duckduckgo.com/",
	"", // direct visit
}

var defaultAcceptLanguages = []string{
	"en-US,en;q=0.9",
	"en-GB,en;q=0.9,en-US;q=0.8",
	"en-US,en;q=0.9,de;q=0.8",
}

// commonHeaders are sent with every request regardless of identity
var commonHeaders = map[string]string{
	"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,image/apng,*/*;q=0.8",
	"Accept-Encoding":           "gzip, deflate, br",
	"Cache-Control":             "max-age=0",
	"Pragma":                    "no-cache",
	"Upgrade-Insecure-Requests": "1",
	"Sec-Fetch-Site":            "none",
	"Sec-Fetch-Mode":            "navigate",
	"Sec-Fetch-User":            "?1",
	"Sec-Fetch-Dest":            "document",
}

// Identity is one randomized browser persona: a user agent, a referer and the
// accompanying header set. Construct a fresh one per request; never mutate a
// shared instance.
type Identity struct {
	UserAgent string
	Referer   string
	Headers   map[string]string
}

// Simulator produces randomized delays and identities. It is stateless beyond
// its configuration and safe for concurrent use.
type Simulator struct {
	userAgents      []string
	referers        []string
	acceptLanguages []string

	minContentLength int
	blocklist        []string
	pauseProbability float64

	mu  sync.Mutex
	rng *rand.Rand
}

// New creates a Simulator from configuration, using the built-in identity pools
func New(cfg config.BehaviorConfig) *Simulator {
	return &Simulator{
		userAgents:       defaultUserAgents,
		referers:         defaultReferers,
		acceptLanguages:  defaultAcceptLanguages,
		minContentLength: cfg.MinContentLength,
		blocklist:        cfg.BlocklistKeywords,
		pauseProbability: cfg.PauseProbability,
		rng:              rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Identity selects a randomized identity from the fixed pools. Repetition
// between consecutive calls is possible and acceptable.
func (s *Simulator) Identity() Identity {
	s.mu.Lock()
	ua := s.userAgents[s.rng.Intn(len(s.userAgents))]
	ref := s.referers[s.rng.Intn(len(s.referers))]
	lang := s.acceptLanguages[s.rng.Intn(len(s.acceptLanguages))]
	s.mu.Unlock()

	headers := make(map[string]string, len(commonHeaders)+2)
	for k, v := range commonHeaders {
		headers[k] = v
	}
	headers["Accept-Language"] = lang
	if ref != "" {
		headers["Referer"] = ref
	}

	return Identity{UserAgent: ua, Referer: ref, Headers: headers}
}

// RandomDelay returns a duration uniformly drawn from [min, max]. When jitter
// is enabled a bounded Gaussian perturbation (stddev 10% of the range) is
// added and the result clipped back into [min, max].
func (s *Simulator) RandomDelay(min, max time.Duration, jitter bool) time.Duration {
	if max <= min {
		return min
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	span := float64(max - min)
	delay := float64(min) + s.rng.Float64()*span

	if jitter {
		delay += s.rng.NormFloat64() * span * 0.1
		if delay < float64(min) {
			delay = float64(min)
		}
		if delay > float64(max) {
			delay = float64(max)
		}
	}

	return time.Duration(delay)
}

// Delay sleeps for a randomized duration in [min, max], honoring cancellation
func (s *Simulator) Delay(ctx context.Context, min, max time.Duration, jitter bool) error {
	return sleep(ctx, s.RandomDelay(min, max, jitter))
}

// MaybePause sleeps for a longer "browsing" pause of 2-8 seconds with the
// configured probability, imitating a user stopping to look at the page
func (s *Simulator) MaybePause(ctx context.Context) error {
	s.mu.Lock()
	trigger := s.rng.Float64() < s.pauseProbability
	s.mu.Unlock()

	if !trigger {
		return nil
	}
	return s.Delay(ctx, 2*time.Second, 8*time.Second, false)
}

// PageHealthy reports whether a loaded page looks like real content rather
// than an error or anti-bot interstitial. Three independent checks: non-empty
// title, minimum content length, and absence of blocklist keywords. The
// signal is advisory; a false result should be logged, never fatal.
func (s *Simulator) PageHealthy(title, content string) bool {
	if title == "" {
		return false
	}
	if len(content) < s.minContentLength {
		return false
	}
	for _, keyword := range s.blocklist {
		if strings.Contains(content, keyword) {
			return false
		}
	}
	return true
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
