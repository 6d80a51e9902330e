package main

import (
	"github.com/spf13/cobra"

	"github.com/maltedev/priceguess-ingest/internal/scraper"
)

var discoverCommand = &cobra.Command{
	Use:   "discover <term>",
	Short: "Print product URLs found for a search term",
	Args:  cobra.ExactArgs(1),
	RunE:  runDiscover,
}

var (
	discoverSite  string
	discoverLimit int
)

func init() {
	discoverCommand.Flags().StringVar(&discoverSite, "site", "amazon", "Site template to search")
	discoverCommand.Flags().IntVarP(&discoverLimit, "limit", "n", scraper.DefaultDiscoveryLimit, "Maximum product URLs")
	rootCmd.AddCommand(discoverCommand)
}

func runDiscover(cmd *cobra.Command, args []string) error {
	ctx, cancel, a, err := setup(nil)
	if err != nil {
		return err
	}
	defer cancel()
	defer a.Close()

	if cmd.Flags().Changed("limit") {
		a.Config.Discovery.Limit = discoverLimit
	}

	d, err := a.Discoverer(discoverSite)
	if err != nil {
		return err
	}

	urls, err := d.Discover(ctx, args[0])
	if err != nil {
		return err
	}
	return printJSON(urls)
}
