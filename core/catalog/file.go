package catalog

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kilianp07/smartshift/core/model"
)

// LoadFile reads a station list from a JSON or YAML file.
func LoadFile(path string) ([]model.Station, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	return Decode(f, ext)
}

// Decode reads a station list from r. Stations without an availability
// template get an all-free one.
func Decode(r io.Reader, format string) ([]model.Station, error) {
	var stations []model.Station
	switch strings.ToLower(format) {
	case "yaml", "yml":
		if err := yaml.NewDecoder(r).Decode(&stations); err != nil {
			return nil, fmt.Errorf("decode stations: %w", err)
		}
	case "json":
		if err := json.NewDecoder(r).Decode(&stations); err != nil {
			return nil, fmt.Errorf("decode stations: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
	for i := range stations {
		if len(stations[i].Availability) == 0 {
			stations[i].Availability = allFree()
		}
	}
	return stations, nil
}

func allFree() []model.SlotState {
	s := make([]model.SlotState, model.SlotsPerDay)
	for i := range s {
		s[i] = model.SlotFree
	}
	return s
}
