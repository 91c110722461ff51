package client

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/Sternrassler/gourmet-search/pkg/model"
)

// ErrMissingField is wrapped by decode errors caused by an absent required field.
var ErrMissingField = errors.New("missing required field")

// In-band error codes reported by the search API inside results.error.
const (
	apiCodeServer    = 1000
	apiCodeAuth      = 2000
	apiCodeParameter = 3000
)

type envelope struct {
	Results *resultsBody `json:"results"`
}

type resultsBody struct {
	Available *int          `json:"results_available"`
	Returned  *flexInt      `json:"results_returned"`
	Start     *int          `json:"results_start"`
	Shops     *[]shopBody   `json:"shop"`
	Errors    []apiErrorMsg `json:"error"`
}

type apiErrorMsg struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type shopBody struct {
	ID      *string     `json:"id"`
	Name    *string     `json:"name"`
	Address *string     `json:"address"`
	Access  *string     `json:"access"`
	Open    *string     `json:"open"`
	Close   *string     `json:"close"`
	Budget  *budgetBody `json:"budget"`
	Genre   *genreBody  `json:"genre"`
	Photo   *photoBody  `json:"photo"`
	URLs    *urlsBody   `json:"urls"`
	Lat     *float64    `json:"lat"`
	Lng     *float64    `json:"lng"`
}

type budgetBody struct {
	Average *string `json:"average"`
	Name    *string `json:"name"`
}

type genreBody struct {
	Name *string `json:"name"`
	Code *string `json:"code"`
}

type photoBody struct {
	PC     *photoSizes `json:"pc"`
	Mobile *photoSizes `json:"mobile"`
}

type photoSizes struct {
	L *string `json:"l"`
	M *string `json:"m"`
	S *string `json:"s"`
}

type urlsBody struct {
	PC *string `json:"pc"`
}

// flexInt accepts a JSON number or a string holding a number;
// results_returned is published as a string.
type flexInt int

func (f *flexInt) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		data = []byte(s)
	}
	n, err := strconv.Atoi(string(data))
	if err != nil {
		return fmt.Errorf("not an integer: %s", data)
	}
	*f = flexInt(n)
	return nil
}

// fieldCheck collects the paths of absent required fields.
type fieldCheck struct {
	missing []string
}

func (c *fieldCheck) str(path string, v *string) string {
	if v == nil {
		c.missing = append(c.missing, path)
		return ""
	}
	return *v
}

func (c *fieldCheck) float(path string, v *float64) float64 {
	if v == nil {
		c.missing = append(c.missing, path)
		return 0
	}
	return *v
}

func (c *fieldCheck) present(path string, ok bool) bool {
	if !ok {
		c.missing = append(c.missing, path)
	}
	return ok
}

func (c *fieldCheck) err() error {
	if len(c.missing) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrMissingField, strings.Join(c.missing, ", "))
}

func optional(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

// decodePage parses a 200 response body. Any shop missing a required field
// fails the whole page.
func decodePage(body []byte) (*model.SearchResultPage, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, decodeError("malformed JSON", err)
	}
	if env.Results == nil {
		return nil, decodeError("", fmt.Errorf("%w: results", ErrMissingField))
	}

	res := env.Results
	if len(res.Errors) > 0 {
		return nil, inBandError(res.Errors[0])
	}

	var check fieldCheck
	check.present("results.results_available", res.Available != nil)
	check.present("results.results_returned", res.Returned != nil)
	check.present("results.results_start", res.Start != nil)
	check.present("results.shop", res.Shops != nil)
	if err := check.err(); err != nil {
		return nil, decodeError("", err)
	}

	shops := *res.Shops
	records := make([]model.RestaurantRecord, 0, len(shops))
	for i := range shops {
		rec, err := shops[i].record(fmt.Sprintf("results.shop[%d]", i))
		if err != nil {
			return nil, decodeError("", err)
		}
		records = append(records, rec)
	}

	return &model.SearchResultPage{
		Records:        records,
		TotalAvailable: *res.Available,
		ReturnedCount:  int(*res.Returned),
		StartOffset:    *res.Start,
	}, nil
}

// record maps the wire shape onto a RestaurantRecord; renames only.
func (s *shopBody) record(path string) (model.RestaurantRecord, error) {
	var c fieldCheck
	rec := model.RestaurantRecord{
		ID:        c.str(path+".id", s.ID),
		Name:      c.str(path+".name", s.Name),
		Address:   c.str(path+".address", s.Address),
		Access:    c.str(path+".access", s.Access),
		Open:      c.str(path+".open", s.Open),
		Close:     c.str(path+".close", s.Close),
		Latitude:  c.float(path+".lat", s.Lat),
		Longitude: c.float(path+".lng", s.Lng),
	}

	if s.Budget != nil {
		rec.Budget = &model.Budget{
			Average: optional(s.Budget.Average),
			Label:   c.str(path+".budget.name", s.Budget.Name),
		}
	}

	if c.present(path+".genre", s.Genre != nil) {
		rec.GenreName = c.str(path+".genre.name", s.Genre.Name)
		rec.GenreCode = c.str(path+".genre.code", s.Genre.Code)
	}

	if c.present(path+".photo", s.Photo != nil) {
		rec.Photos.PC = c.photoSet(path+".photo.pc", s.Photo.PC)
		rec.Photos.Mobile = c.photoSet(path+".photo.mobile", s.Photo.Mobile)
	}

	if c.present(path+".urls", s.URLs != nil) {
		rec.DetailURL = c.str(path+".urls.pc", s.URLs.PC)
	}

	if err := c.err(); err != nil {
		return model.RestaurantRecord{}, err
	}
	return rec, nil
}

func (c *fieldCheck) photoSet(path string, p *photoSizes) model.PhotoSet {
	if !c.present(path, p != nil) {
		return model.PhotoSet{}
	}
	return model.PhotoSet{
		Large:  c.str(path+".l", p.L),
		Medium: optional(p.M),
		Small:  c.str(path+".s", p.S),
	}
}

// inBandError maps an error reported inside a 200 body to the taxonomy.
func inBandError(e apiErrorMsg) *APIError {
	msg := fmt.Sprintf("API error %d: %s", e.Code, e.Message)
	switch e.Code {
	case apiCodeAuth, apiCodeParameter:
		return &APIError{Class: ErrorClassConfig, StatusCode: 200, Message: msg}
	case apiCodeServer:
		return networkError(200, msg, nil)
	default:
		return decodeError(msg, nil)
	}
}
