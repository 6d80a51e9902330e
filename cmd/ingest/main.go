// Command ingest collects product listings into the price guessing dataset.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:           "ingest",
	Short:         "Collect product listings for the price guessing game",
	Long:          "Discovers product pages from search terms, scrapes title, price and image, and writes the validated dataset to JSON and optionally Postgres.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
