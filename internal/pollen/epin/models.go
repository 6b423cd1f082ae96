package epin

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ePIN payloads. The struct tags are the wire-to-field mapping: the API
// speaks "from"/"to" and "lon"/"lat", the records use Start/End and
// Longitude/Latitude.

// Algorithm is the validity window of an evaluation algorithm at a location.
type Algorithm struct {
	Start     *string `json:"from,omitempty"`
	End       *string `json:"to,omitempty"`
	Algorithm *string `json:"algorithm,omitempty"`
}

// Location is a pollen measurement site.
type Location struct {
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	Longitude  float64     `json:"lon"`
	Latitude   float64     `json:"lat"`
	Algorithms []Algorithm `json:"algorithm"`
}

// Season holds the bounds of a pollen season in epoch seconds.
// End is nil while the season is open.
type Season struct {
	Start float64  `json:"from"`
	End   *float64 `json:"to,omitempty"`
}

// MeasurementPoint is the pollen concentration of one sampled interval.
type MeasurementPoint struct {
	Start float64 `json:"from"`
	End   float64 `json:"to"`
	Value float64 `json:"value"`
}

// MeasurementSeries holds the points of one location and pollen type.
type MeasurementSeries struct {
	PollenType string             `json:"polle"`
	Location   string             `json:"location"`
	Points     []MeasurementPoint `json:"data"`
}

// PollenReport is the measurements response for a queried window.
type PollenReport struct {
	Start  float64             `json:"from"`
	End    float64             `json:"to"`
	Series []MeasurementSeries `json:"measurements"`
}

// IsEmpty reports whether the report carries no series.
func (r *PollenReport) IsEmpty() bool {
	return r == nil || len(r.Series) == 0
}

func emptyReport() *PollenReport {
	return &PollenReport{Series: []MeasurementSeries{}}
}

// ErrMissingField is returned when a payload lacks a required key.
var ErrMissingField = errors.New("missing required field")

// Wire shapes. Required keys are pointers so that absent and zero differ.

type locationWire struct {
	ID         *string     `json:"id"`
	Name       *string     `json:"name"`
	Longitude  *float64    `json:"lon"`
	Latitude   *float64    `json:"lat"`
	Algorithms []Algorithm `json:"algorithm"`
}

type seasonWire struct {
	Start *float64 `json:"from"`
	End   *float64 `json:"to"`
}

type pointWire struct {
	Start *float64 `json:"from"`
	End   *float64 `json:"to"`
	Value *float64 `json:"value"`
}

type seriesWire struct {
	PollenType *string     `json:"polle"`
	Location   *string     `json:"location"`
	Points     []pointWire `json:"data"`
}

type reportWire struct {
	Start  *float64     `json:"from"`
	End    *float64     `json:"to"`
	Series []seriesWire `json:"measurements"`
}

func missing(what string, index int, key string) error {
	if index < 0 {
		return fmt.Errorf("%s: %w %q", what, ErrMissingField, key)
	}
	return fmt.Errorf("%s %d: %w %q", what, index, ErrMissingField, key)
}

// DecodeLocations decodes a JSON array of locations.
func DecodeLocations(data []byte) ([]Location, error) {
	var wire []locationWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("decoding locations: %w", err)
	}

	locations := make([]Location, 0, len(wire))
	for i, w := range wire {
		switch {
		case w.ID == nil:
			return nil, fmt.Errorf("decoding locations: %w", missing("location", i, "id"))
		case w.Name == nil:
			return nil, fmt.Errorf("decoding locations: %w", missing("location", i, "name"))
		case w.Longitude == nil:
			return nil, fmt.Errorf("decoding locations: %w", missing("location", i, "lon"))
		case w.Latitude == nil:
			return nil, fmt.Errorf("decoding locations: %w", missing("location", i, "lat"))
		}

		algorithms := w.Algorithms
		if algorithms == nil {
			algorithms = []Algorithm{}
		}
		locations = append(locations, Location{
			ID:         *w.ID,
			Name:       *w.Name,
			Longitude:  *w.Longitude,
			Latitude:   *w.Latitude,
			Algorithms: algorithms,
		})
	}
	return locations, nil
}

// DecodePollenTypes decodes a JSON array of pollen type identifiers.
func DecodePollenTypes(data []byte) ([]string, error) {
	var types []string
	if err := json.Unmarshal(data, &types); err != nil {
		return nil, fmt.Errorf("decoding pollen types: %w", err)
	}
	if types == nil {
		return []string{}, nil
	}
	return types, nil
}

// DecodeSeasons decodes a JSON array of seasons.
func DecodeSeasons(data []byte) ([]Season, error) {
	var wire []seasonWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("decoding seasons: %w", err)
	}

	seasons := make([]Season, 0, len(wire))
	for i, w := range wire {
		if w.Start == nil {
			return nil, fmt.Errorf("decoding seasons: %w", missing("season", i, "from"))
		}
		seasons = append(seasons, Season{Start: *w.Start, End: w.End})
	}
	return seasons, nil
}

// DecodePollenReport decodes a measurements response object.
func DecodePollenReport(data []byte) (*PollenReport, error) {
	var wire *reportWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("decoding pollen report: %w", err)
	}
	if wire == nil {
		return nil, fmt.Errorf("decoding pollen report: %w", ErrNullPayload)
	}
	if wire.Start == nil {
		return nil, fmt.Errorf("decoding pollen report: %w", missing("report", -1, "from"))
	}
	if wire.End == nil {
		return nil, fmt.Errorf("decoding pollen report: %w", missing("report", -1, "to"))
	}

	report := &PollenReport{
		Start:  *wire.Start,
		End:    *wire.End,
		Series: make([]MeasurementSeries, 0, len(wire.Series)),
	}
	for i, ws := range wire.Series {
		if ws.PollenType == nil {
			return nil, fmt.Errorf("decoding pollen report: %w", missing("measurement", i, "polle"))
		}
		if ws.Location == nil {
			return nil, fmt.Errorf("decoding pollen report: %w", missing("measurement", i, "location"))
		}

		series := MeasurementSeries{
			PollenType: *ws.PollenType,
			Location:   *ws.Location,
			Points:     make([]MeasurementPoint, 0, len(ws.Points)),
		}
		for j, wp := range ws.Points {
			switch {
			case wp.Start == nil:
				return nil, fmt.Errorf("decoding pollen report: measurement %d: %w", i, missing("point", j, "from"))
			case wp.End == nil:
				return nil, fmt.Errorf("decoding pollen report: measurement %d: %w", i, missing("point", j, "to"))
			case wp.Value == nil:
				return nil, fmt.Errorf("decoding pollen report: measurement %d: %w", i, missing("point", j, "value"))
			}
			series.Points = append(series.Points, MeasurementPoint{Start: *wp.Start, End: *wp.End, Value: *wp.Value})
		}
		report.Series = append(report.Series, series)
	}
	return report, nil
}
