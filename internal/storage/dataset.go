package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/maltedev/priceguess-ingest/internal/models"
)

// DatasetFile writes the validated item list consumed by the game's loader.
type DatasetFile struct {
	mu       sync.Mutex
	filename string
}

func NewDatasetFile(filename string) *DatasetFile {
	return &DatasetFile{filename: filename}
}

func (d *DatasetFile) Name() string {
	return "file"
}

func (d *DatasetFile) Path() string {
	return d.filename
}

// WriteItems replaces the dataset with items in one atomic rename.
func (d *DatasetFile) WriteItems(ctx context.Context, items []models.Item) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if items == nil {
		items = []models.Item{}
	}
	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode dataset: %w", err)
	}

	if dir := filepath.Dir(d.filename); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create dataset dir: %w", err)
		}
	}

	// Write to temp file first for atomicity
	tmpFile := d.filename + ".tmp"
	if err := os.WriteFile(tmpFile, data, 0o644); err != nil {
		return fmt.Errorf("failed to write dataset: %w", err)
	}

	if err := os.Rename(tmpFile, d.filename); err != nil {
		_ = os.Remove(tmpFile)
		return fmt.Errorf("failed to replace dataset: %w", err)
	}
	return nil
}

func (d *DatasetFile) Load() ([]models.Item, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	data, err := os.ReadFile(d.filename)
	if err != nil {
		return nil, err
	}

	var items []models.Item
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("failed to decode dataset: %w", err)
	}
	return items, nil
}
