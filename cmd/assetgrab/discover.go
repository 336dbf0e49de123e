package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"assetgrab/pkg/behavior"
	"assetgrab/pkg/browser"
	"assetgrab/pkg/config"
	"assetgrab/pkg/discovery"
	"assetgrab/pkg/logger"
	"assetgrab/pkg/ratelimit"
)

var (
	discoverLinkDir       string
	discoverSaveThreshold int
	discoverMaxScrolls    int
	discoverHeadful       bool
	discoverProxy         string
)

// discoverCmd represents the discover command
var discoverCmd = &cobra.Command{
	Use:   "discover <keyword>",
	Short: "Collect asset download links from a dynamically-loading feed",
	Long: `Drive a headless browser over the feed for the given search keyword,
clicking the load-more control and scrolling until the page stops growing,
the scroll ceiling is reached, or the save threshold is crossed.

Discovered links are written to <link-dir>/<keyword>_<total>.txt batch
files, which the download command consumes later.`,
	Example: `  # Collect links for a keyword with default settings
  assetgrab discover sunsets

  # Flush smaller batches into a custom directory
  assetgrab discover sunsets --link-dir ./links --save-threshold 500`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDiscover(args[0])
	},
}

func init() {
	rootCmd.AddCommand(discoverCmd)

	discoverCmd.Flags().StringVar(&discoverLinkDir, "link-dir", "", "directory for link batch files")
	discoverCmd.Flags().IntVar(&discoverSaveThreshold, "save-threshold", 0, "flush the link set when it reaches this size")
	discoverCmd.Flags().IntVar(&discoverMaxScrolls, "max-scrolls", 0, "hard ceiling on scroll attempts")
	discoverCmd.Flags().BoolVar(&discoverHeadful, "headful", false, "run the browser with a visible window")
	discoverCmd.Flags().StringVar(&discoverProxy, "proxy", "", "proxy server for browser traffic")
}

func runDiscover(keyword string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	cfg.Discovery.Keyword = keyword
	if discoverLinkDir != "" {
		cfg.Discovery.LinkDir = discoverLinkDir
	}
	if discoverSaveThreshold > 0 {
		cfg.Discovery.SaveThreshold = discoverSaveThreshold
	}
	if discoverMaxScrolls > 0 {
		cfg.Discovery.MaxScrollAttempts = discoverMaxScrolls
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	if err := logger.Initialize(&cfg.Logging); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	log := logger.GetLogger()

	sim := behavior.New(cfg.Behavior)

	proxy := discoverProxy
	if proxy == "" && cfg.Proxy.Enabled && len(cfg.Proxy.Servers) > 0 {
		proxy = cfg.Proxy.Servers[0]
	}

	session, err := browser.NewChromeSession(browser.Options{
		Headless:          !discoverHeadful,
		ProxyServer:       proxy,
		Identity:          sim.Identity(),
		NavigationTimeout: cfg.Discovery.NavigationTimeout,
		ActionTimeout:     cfg.Discovery.ActionTimeout,
	})
	if err != nil {
		return fmt.Errorf("failed to start browser: %w", err)
	}

	limiter := ratelimit.NewSlidingWindow(cfg.RateLimit.MaxRequests, cfg.RateLimit.TimeWindow)
	store := discovery.NewStore(cfg.Discovery.LinkDir, log)
	engine := discovery.NewEngine(session, limiter, sim, store, cfg, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithField("keyword", keyword).Info("starting link discovery")
	if err := engine.Run(ctx); err != nil {
		return fmt.Errorf("discovery failed: %w", err)
	}
	return nil
}
