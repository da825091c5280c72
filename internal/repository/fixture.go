package repository

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"propertychat/internal/model"
)

const statusAvailable = "available"

// FileInventory reads listings from a YAML file, for running without the
// listings database. The file is re-read on every load so edits show up on
// the next cache refresh.
type FileInventory struct {
	path string
}

type inventoryFile struct {
	Properties []fileProperty `yaml:"properties"`
}

type fileProperty struct {
	model.PropertySnapshot `yaml:",inline"`
	Status                 string `yaml:"status"`
}

// NewFileInventory creates an inventory source over the YAML file at path
func NewFileInventory(path string) *FileInventory {
	return &FileInventory{path: path}
}

// ListAvailableProperties returns the listings whose status is available or
// unset, in file order
func (f *FileInventory) ListAvailableProperties(ctx context.Context) ([]model.PropertySnapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read inventory file: %w", err)
	}

	var file inventoryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse inventory file: %w", err)
	}

	properties := make([]model.PropertySnapshot, 0, len(file.Properties))
	for i, p := range file.Properties {
		if p.Status != "" && !strings.EqualFold(p.Status, statusAvailable) {
			continue
		}
		if !p.ListingType.Valid() {
			return nil, fmt.Errorf("property %d (entry %d): invalid listing_type %q", p.ID, i, p.ListingType)
		}
		if p.Furnishing == "" {
			p.Furnishing = model.FurnishingUnfurnished
		}
		properties = append(properties, p.PropertySnapshot)
	}
	return properties, nil
}
