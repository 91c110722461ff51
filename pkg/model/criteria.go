package model

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

// metersPerDegree approximates one degree of latitude.
const metersPerDegree = 111000.0

// previewSpanFactor sizes the map preview so the radius circle fits with margin.
const previewSpanFactor = 2.5

// SearchCriteria describes one search. It is replaced wholesale whenever
// the user changes an input; Keyword and Genre are optional.
type SearchCriteria struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lng"`
	Radius    Radius  `json:"range"`
	Keyword   string  `json:"keyword,omitempty"`
	Genre     string  `json:"genre,omitempty"`
}

// Validate checks that the criteria can be turned into a request.
func (c SearchCriteria) Validate() error {
	if math.IsNaN(c.Latitude) || math.IsInf(c.Latitude, 0) || c.Latitude < -90 || c.Latitude > 90 {
		return fmt.Errorf("latitude %v out of range", c.Latitude)
	}
	if math.IsNaN(c.Longitude) || math.IsInf(c.Longitude, 0) || c.Longitude < -180 || c.Longitude > 180 {
		return fmt.Errorf("longitude %v out of range", c.Longitude)
	}
	if !c.Radius.Valid() {
		return fmt.Errorf("invalid radius %d", int(c.Radius))
	}
	return nil
}

// Center returns the search position. orb points are [lng, lat].
func (c SearchCriteria) Center() orb.Point {
	return orb.Point{c.Longitude, c.Latitude}
}

// PreviewSpan returns the latitude/longitude delta, in degrees, of a map
// region that shows the whole radius circle.
func (r Radius) PreviewSpan() float64 {
	return r.Meters() * previewSpanFactor / metersPerDegree
}

// PreviewBound returns the map region centred on the search position that
// a live preview should display for the selected radius.
func (c SearchCriteria) PreviewBound() orb.Bound {
	half := c.Radius.PreviewSpan() / 2
	center := c.Center()
	return orb.Bound{
		Min: orb.Point{center.Lon() - half, center.Lat() - half},
		Max: orb.Point{center.Lon() + half, center.Lat() + half},
	}
}
