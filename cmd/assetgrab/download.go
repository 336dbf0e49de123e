package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"assetgrab/internal/downloader"
	"assetgrab/pkg/config"
	"assetgrab/pkg/logger"
	"assetgrab/pkg/mapping"
)

var (
	downloadLinkDir string
	downloadRoot    string
	downloadWorkers int
)

// downloadCmd represents the download command
var downloadCmd = &cobra.Command{
	Use:   "download",
	Short: "Download the assets listed in link batch files",
	Long: `Read every batch file in the link directory and download its URLs into
one subdirectory per category under the download root.

URLs already present in the mapping cache with an existing file are served
by a local copy instead of a network fetch. Transfers resume from partial
temp files, retry with exponential backoff, and rotate through the
configured proxy pool. The mapping document is saved once at the end, even
when individual downloads failed.`,
	Example: `  # Download everything under ./url into ./download
  assetgrab download

  # Heavier parallelism into a custom layout
  assetgrab download --link-dir ./links --download-root /data/assets --workers 12`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDownload()
	},
}

func init() {
	rootCmd.AddCommand(downloadCmd)

	downloadCmd.Flags().StringVar(&downloadLinkDir, "link-dir", "", "directory holding link batch files")
	downloadCmd.Flags().StringVar(&downloadRoot, "download-root", "", "root directory for downloaded assets")
	downloadCmd.Flags().IntVar(&downloadWorkers, "workers", 0, "number of concurrent download workers")
}

func runDownload() error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if downloadLinkDir != "" {
		cfg.Download.LinkDir = downloadLinkDir
	}
	if downloadRoot != "" {
		cfg.Download.DownloadRoot = downloadRoot
	}
	if downloadWorkers > 0 {
		cfg.Download.Workers = downloadWorkers
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	if err := logger.Initialize(&cfg.Logging); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	log := logger.GetLogger()

	cache, err := mapping.Load(cfg.Download.MappingFile)
	if err != nil {
		return fmt.Errorf("failed to load mapping cache: %w", err)
	}

	manager, err := downloader.NewManager(cfg, cache, log)
	if err != nil {
		return fmt.Errorf("failed to create download manager: %w", err)
	}

	tasks, err := downloader.ScanTasks(cfg.Download.LinkDir, cfg.Download.DownloadRoot)
	if err != nil {
		return err
	}
	if len(tasks) == 0 {
		log.WithField("link_dir", cfg.Download.LinkDir).Warn("no link batch files found")
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	summary := manager.ProcessAll(ctx, tasks)

	fmt.Printf("downloaded %d, copied %d, skipped %d, failed %d\n",
		summary.Downloaded, summary.Copied, summary.Skipped, summary.Failed)

	if summary.Failed > 0 {
		for _, r := range summary.Results {
			if r.Err != nil {
				log.WithError(r.Err).WithField("url", r.Task.URL).Error("permanent failure")
			}
		}
	}
	return nil
}
