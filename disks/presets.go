// Package disks holds predefined image sizes for the format command.
package disks

import (
	_ "embed"
	"encoding/csv"
	"fmt"
	"sort"
	"strings"

	"github.com/gocarina/gocsv"
	"github.com/sfskit/sfs"
)

// ImagePreset is a named image size, in 4 KiB blocks.
type ImagePreset struct {
	Name        string `csv:"name"`
	Slug        string `csv:"slug"`
	TotalBlocks uint   `csv:"total_blocks"`
	Notes       string `csv:"notes"`
}

//go:embed presets.csv
var presetsRawCSV string
var presets map[string]ImagePreset

// GetPreset returns the preset with the given slug.
func GetPreset(slug string) (ImagePreset, error) {
	preset, ok := presets[slug]
	if ok {
		return preset, nil
	}
	return ImagePreset{}, sfs.ErrInvalidArgument.WithMessage(
		fmt.Sprintf("no predefined image size exists with slug %q", slug))
}

// Slugs returns the slugs of every preset, sorted by size.
func Slugs() []string {
	slugs := make([]string, 0, len(presets))
	for slug := range presets {
		slugs = append(slugs, slug)
	}
	sort.Slice(slugs, func(i, j int) bool {
		return presets[slugs[i]].TotalBlocks < presets[slugs[j]].TotalBlocks
	})
	return slugs
}

func parsePresets(rawCSV string) (map[string]ImagePreset, error) {
	csvReader := csv.NewReader(strings.NewReader(rawCSV))
	csvReader.Comma = '|'
	// Names contain inch marks.
	csvReader.LazyQuotes = true

	rows := []ImagePreset{}
	err := gocsv.UnmarshalCSV(csvReader, &rows)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image presets: %w", err)
	}

	result := make(map[string]ImagePreset, len(rows))
	for i, row := range rows {
		_, exists := result[row.Slug]
		if exists {
			return nil, fmt.Errorf(
				"duplicate definition for preset %q found on row %d", row.Slug, i+1)
		}
		result[row.Slug] = row
	}
	return result, nil
}

func init() {
	var err error
	presets, err = parsePresets(presetsRawCSV)
	if err != nil {
		panic(err)
	}
}
