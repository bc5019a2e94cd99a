package openmeteo

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// City is a forecast point.
type City struct {
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// CityList is the on-disk shape of a city file.
type CityList struct {
	UpdatedAt string `json:"updated_at"` // ISO 8601 timestamp
	Cities    []City `json:"cities"`
}

// DefaultCities are ten German cities spread over the bidding zone.
func DefaultCities() []City {
	return []City{
		{Name: "Berlin", Latitude: 52.52, Longitude: 13.405},
		{Name: "Hamburg", Latitude: 53.5511, Longitude: 9.9937},
		{Name: "Munich", Latitude: 48.1351, Longitude: 11.582},
		{Name: "Cologne", Latitude: 50.9375, Longitude: 6.9603},
		{Name: "Frankfurt", Latitude: 50.1109, Longitude: 8.6821},
		{Name: "Leipzig", Latitude: 51.3397, Longitude: 12.3731},
		{Name: "Stuttgart", Latitude: 48.7758, Longitude: 9.1829},
		{Name: "Kiel", Latitude: 54.3233, Longitude: 10.1228},
		{Name: "Nuremberg", Latitude: 49.4521, Longitude: 11.0767},
		{Name: "Freiburg", Latitude: 47.999, Longitude: 7.8421},
	}
}

// LoadCities reads a city list from a JSON file.
func LoadCities(path string) (*CityList, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read cities file: %w", err)
	}
	var list CityList
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, fmt.Errorf("failed to parse cities file: %w", err)
	}
	if len(list.Cities) == 0 {
		return nil, fmt.Errorf("cities file %s lists no cities", path)
	}
	return &list, nil
}

func SaveCities(list *CityList, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	raw, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal cities: %w", err)
	}
	return os.WriteFile(path, raw, 0o644)
}
