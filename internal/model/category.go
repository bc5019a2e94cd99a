package model

import "fmt"

// Category is one of the raw data domains under data/raw/.
// Keep these values stable; they are directory names and CSV column prefixes.
type Category string

const (
	CategoryCapacities      Category = "capacities"
	CategoryConsumption     Category = "consumption"
	CategoryPrices          Category = "prices"
	CategoryProduction      Category = "production"
	CategoryWeatherForecast Category = "weather_forecast"
)

// AllCategories returns every category in canonical order.
// The preprocessor orders dataset columns by this order.
func AllCategories() []Category {
	return []Category{
		CategoryCapacities,
		CategoryConsumption,
		CategoryPrices,
		CategoryProduction,
		CategoryWeatherForecast,
	}
}

// Rank returns the position of c in AllCategories, or -1.
func (c Category) Rank() int {
	for i, k := range AllCategories() {
		if k == c {
			return i
		}
	}
	return -1
}

func (c Category) Valid() bool { return c.Rank() >= 0 }

// ParseCategory accepts the directory name of a category.
func ParseCategory(s string) (Category, error) {
	c := Category(s)
	if !c.Valid() {
		return "", &Error{Kind: KindNotFound, Category: c, Msg: fmt.Sprintf("unknown category %q", s)}
	}
	return c, nil
}

// ParseCategories parses a list, rejecting duplicates.
func ParseCategories(names []string) ([]Category, error) {
	out := make([]Category, 0, len(names))
	seen := map[Category]bool{}
	for _, n := range names {
		c, err := ParseCategory(n)
		if err != nil {
			return nil, err
		}
		if seen[c] {
			return nil, fmt.Errorf("category %q listed twice", n)
		}
		seen[c] = true
		out = append(out, c)
	}
	return out, nil
}
