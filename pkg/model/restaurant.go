// Package model defines the search criteria and restaurant records shared by
// the API client and the pagination session.
package model

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
)

// Budget is the price band of a restaurant.
type Budget struct {
	// Average is free text such as "3000円"; it may be empty.
	Average string `json:"average,omitempty"`
	Label   string `json:"label"`
}

// PhotoSet holds one size profile of a restaurant photo.
// Medium is not always published by the API.
type PhotoSet struct {
	Large  string `json:"large"`
	Medium string `json:"medium,omitempty"`
	Small  string `json:"small"`
}

// Photos groups the desktop and mobile photo profiles.
type Photos struct {
	PC     PhotoSet `json:"pc"`
	Mobile PhotoSet `json:"mobile"`
}

// RestaurantRecord is one shop as returned by the search API.
type RestaurantRecord struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Address   string  `json:"address"`
	Access    string  `json:"access"`
	Open      string  `json:"open"`
	Close     string  `json:"close"`
	Budget    *Budget `json:"budget,omitempty"`
	GenreName string  `json:"genre_name"`
	GenreCode string  `json:"genre_code"`
	Photos    Photos  `json:"photos"`
	DetailURL string  `json:"detail_url"`
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lng"`
}

// BudgetLabel returns the budget label or "" when the shop has none.
func (r RestaurantRecord) BudgetLabel() string {
	if r.Budget == nil {
		return ""
	}
	return r.Budget.Label
}

// Location returns the shop position as an orb point.
func (r RestaurantRecord) Location() orb.Point {
	return orb.Point{r.Longitude, r.Latitude}
}

// DistanceFrom returns the geodesic distance in meters from p to the shop.
func (r RestaurantRecord) DistanceFrom(p orb.Point) float64 {
	return geo.Distance(p, r.Location())
}

// SearchResultPage is one page of results.
type SearchResultPage struct {
	Records        []RestaurantRecord `json:"records"`
	TotalAvailable int                `json:"total_available"`
	ReturnedCount  int                `json:"returned_count"`
	StartOffset    int                `json:"start_offset"`
}
