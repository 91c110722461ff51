package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Radius is the search radius around the user's position.
// The zero value is invalid; use one of the declared constants.
type Radius int

// Supported radii. The numeric value is the code the search API expects
// in the range query parameter.
const (
	Radius500m Radius = iota + 1
	Radius1km
	Radius3km
	Radius5km
	Radius10km
)

type radiusInfo struct {
	meters float64
	label  string
}

// radiusTable is indexed by Radius code.
var radiusTable = [...]radiusInfo{
	Radius500m: {meters: 500, label: "500m"},
	Radius1km:  {meters: 1000, label: "1km"},
	Radius3km:  {meters: 3000, label: "3km"},
	Radius5km:  {meters: 5000, label: "5km"},
	Radius10km: {meters: 10000, label: "10km"},
}

// Radii returns all supported radii in ascending order.
func Radii() []Radius {
	return []Radius{Radius500m, Radius1km, Radius3km, Radius5km, Radius10km}
}

// Valid reports whether r is one of the supported radii.
func (r Radius) Valid() bool {
	return r >= Radius500m && r <= Radius10km
}

// Code returns the API range code.
func (r Radius) Code() int {
	return int(r)
}

// Meters returns the radius length in meters, or 0 for an invalid radius.
func (r Radius) Meters() float64 {
	if !r.Valid() {
		return 0
	}
	return radiusTable[r].meters
}

// Label returns the display label, e.g. "3km".
func (r Radius) Label() string {
	if !r.Valid() {
		return fmt.Sprintf("Radius(%d)", int(r))
	}
	return radiusTable[r].label
}

// String implements fmt.Stringer.
func (r Radius) String() string {
	return r.Label()
}

// ParseRadius accepts either a display label ("500m", "1km") or an API
// code ("1".."5").
func ParseRadius(s string) (Radius, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, r := range Radii() {
		if s == radiusTable[r].label {
			return r, nil
		}
	}

	code, err := strconv.Atoi(s)
	if err == nil && Radius(code).Valid() {
		return Radius(code), nil
	}

	return 0, fmt.Errorf("unknown radius %q", s)
}

// MarshalText encodes the radius as its label.
func (r Radius) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("invalid radius %d", int(r))
	}
	return []byte(r.Label()), nil
}

// MarshalJSON encodes the radius as its label, or null while unset.
func (r Radius) MarshalJSON() ([]byte, error) {
	if r == 0 {
		return []byte("null"), nil
	}
	text, err := r.MarshalText()
	if err != nil {
		return nil, err
	}
	return json.Marshal(string(text))
}

// UnmarshalJSON accepts a label or code string; null leaves r unchanged.
func (r *Radius) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("radius must be a string: %w", err)
	}
	return r.UnmarshalText([]byte(s))
}

// UnmarshalText accepts anything ParseRadius accepts.
func (r *Radius) UnmarshalText(text []byte) error {
	parsed, err := ParseRadius(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
