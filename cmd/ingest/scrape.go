package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var scrapeCommand = &cobra.Command{
	Use:   "scrape <product-url>...",
	Short: "Scrape product pages and print the outcomes",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runScrape,
}

var scrapeRetries int

func init() {
	scrapeCommand.Flags().IntVar(&scrapeRetries, "retries", -1, "Maximum attempts per URL (defaults to SCRAPER_MAX_RETRIES)")
	rootCmd.AddCommand(scrapeCommand)
}

func runScrape(_ *cobra.Command, args []string) error {
	ctx, cancel, a, err := setup(nil)
	if err != nil {
		return err
	}
	defer cancel()
	defer a.Close()

	retries := a.Config.Scraper.MaxRetries
	if scrapeRetries >= 0 {
		retries = scrapeRetries
	}

	failed := 0
	for _, url := range args {
		outcome := a.Scraper.Scrape(ctx, url, retries)
		if !outcome.OK() {
			failed++
		}
		if err := printJSON(outcome); err != nil {
			return err
		}
	}

	if failed == len(args) {
		return fmt.Errorf("all %d urls failed", failed)
	}
	return nil
}
