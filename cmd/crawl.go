package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"imot-scraper/config"
	"imot-scraper/models"
	"imot-scraper/scraper/imot"
	"imot-scraper/services"
	"imot-scraper/storage"
	"imot-scraper/utils"
)

var (
	crawlCity     string
	crawlDistrict string
	crawlKeyword  string
	crawlCached   bool
)

var crawlCmd = &cobra.Command{
	Use:   "crawl",
	Short: "Crawl listings for a city district and store them",
	RunE:  runCrawl,
}

func init() {
	crawlCmd.Flags().StringVar(&crawlCity, "city", "sofia", "city name")
	crawlCmd.Flags().StringVar(&crawlDistrict, "district", "", "normalized district slug, e.g. lyulin-5")
	crawlCmd.Flags().StringVar(&crawlKeyword, "keyword", "", `apartment-type keyword narrowing the post-run report; "all" disables it`)
	crawlCmd.Flags().BoolVar(&crawlCached, "cached", false, "serve stored listings without crawling")
	_ = crawlCmd.MarkFlagRequired("district")
}

func runCrawl(cmd *cobra.Command, _ []string) error {
	log, err := utils.NewLogger(debug)
	if err != nil {
		return err
	}
	defer log.Sync()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.NewPostgres(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	defer store.Close()

	if err := store.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("storage: %w", err)
	}

	renderer := imot.NewChromeRenderer(cfg, log)
	defer renderer.Close()

	fetcher := imot.NewStaticFetcher(cfg, log)
	scheduler := imot.NewScheduler(cfg, fetcher, renderer, log)
	controller := imot.NewController(cfg, scheduler, store, log)

	req := models.RunRequest{
		City:     crawlCity,
		District: crawlDistrict,
		Keyword:  crawlKeyword,
	}
	if crawlCached {
		req.Freshness = models.FreshnessCached
	}

	result := <-controller.RunAsync(ctx, req)
	if !result.OK {
		return fmt.Errorf("%s: %s", result.Category, result.Message)
	}
	log.Infow("run complete", "message", result.Message)

	filters := services.ApplyKeyword(models.Filters{}, req.Keyword)
	if records, err := store.Select(ctx, crawlCity, crawlDistrict, filters); err == nil {
		services.PrintReport(services.BuildReport(records, result.Stats))
	}
	return nil
}
