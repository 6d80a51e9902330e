package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var storeImageCommand = &cobra.Command{
	Use:   "store-image <image-url>",
	Short: "Upload an image to object storage under its content hash",
	Args:  cobra.ExactArgs(1),
	RunE:  runStoreImage,
}

func init() {
	rootCmd.AddCommand(storeImageCommand)
}

func runStoreImage(_ *cobra.Command, args []string) error {
	ctx, cancel, a, err := setup(nil)
	if err != nil {
		return err
	}
	defer cancel()
	defer a.Close()

	store, err := a.ContentStore(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize object storage: %w", err)
	}

	asset, err := store.Store(ctx, args[0])
	if err != nil {
		return err
	}
	return printJSON(asset)
}
