package models

import (
	"github.com/epinpollenflug/pollenflug/internal/pollen"
	"github.com/epinpollenflug/pollenflug/internal/pollen/epin"
)

// Location is a pollen measurement site.
type Location struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lon"`
}

// LocationList wraps the monitored sites.
type LocationList struct {
	Items []Location `json:"items"`
}

// PollenTypeList wraps the known pollen types.
type PollenTypeList struct {
	Items []string `json:"items"`
}

// Season is a pollen season. End is absent while the season is ongoing.
type Season struct {
	Start Timestamp  `json:"start"`
	End   *Timestamp `json:"end,omitempty"`
}

// SeasonList wraps the known seasons and whether one is ongoing.
type SeasonList struct {
	Items    []Season `json:"items"`
	InSeason bool     `json:"inSeason"`
}

// MeasurementPoint is one sampled interval.
type MeasurementPoint struct {
	Start Timestamp `json:"start"`
	End   Timestamp `json:"end"`
	Value float64   `json:"value"`
}

// MeasurementSeries holds the points of one location and pollen type.
type MeasurementSeries struct {
	Location   string             `json:"location"`
	PollenType string             `json:"pollenType"`
	Points     []MeasurementPoint `json:"points"`
}

// Measurements is the measurement window response.
type Measurements struct {
	Start  Timestamp           `json:"start"`
	End    Timestamp           `json:"end"`
	Series []MeasurementSeries `json:"series"`
}

// Sensor is the dashboard view of one pollen reading.
type Sensor struct {
	ID           string           `json:"id"`
	Name         string           `json:"name"`
	Location     string           `json:"location"`
	LocationName string           `json:"locationName,omitempty"`
	PollenType   string           `json:"pollenType"`
	State        float64          `json:"state"`
	Unit         string           `json:"unit"`
	Risk         pollen.RiskLevel `json:"risk"`
	MeasuredFrom Timestamp        `json:"measuredFrom"`
	MeasuredTo   Timestamp        `json:"measuredTo"`
	Stale        bool             `json:"stale"`
}

// SensorList wraps the sensors of the current snapshot.
type SensorList struct {
	Items     []Sensor  `json:"items"`
	FetchedAt Timestamp `json:"fetchedAt"`
	Stale     bool      `json:"stale"`
}

// RefreshResult is returned by a forced refresh.
type RefreshResult struct {
	Readings  int       `json:"readings"`
	FetchedAt Timestamp `json:"fetchedAt"`
	Stale     bool      `json:"stale"`
}

// NewLocation converts an ePIN location.
func NewLocation(l epin.Location) Location {
	return Location{
		ID:        l.ID,
		Name:      l.Name,
		Latitude:  l.Latitude,
		Longitude: l.Longitude,
	}
}

// NewSeason converts an ePIN season.
func NewSeason(s epin.Season) Season {
	season := Season{Start: EpochTimestamp(s.Start)}
	if s.End != nil {
		end := EpochTimestamp(*s.End)
		season.End = &end
	}
	return season
}

// NewMeasurements converts an ePIN report. A nil report yields an empty body.
func NewMeasurements(r *epin.PollenReport) Measurements {
	out := Measurements{Series: []MeasurementSeries{}}
	if r == nil {
		return out
	}
	out.Start = EpochTimestamp(r.Start)
	out.End = EpochTimestamp(r.End)
	for _, s := range r.Series {
		series := MeasurementSeries{
			Location:   s.Location,
			PollenType: s.PollenType,
			Points:     make([]MeasurementPoint, 0, len(s.Points)),
		}
		for _, p := range s.Points {
			series.Points = append(series.Points, MeasurementPoint{
				Start: EpochTimestamp(p.Start),
				End:   EpochTimestamp(p.End),
				Value: p.Value,
			})
		}
		out.Series = append(out.Series, series)
	}
	return out
}

// NewSensor converts a pollen sensor.
func NewSensor(s pollen.Sensor) Sensor {
	return Sensor{
		ID:           s.ID,
		Name:         s.Name,
		Location:     s.Location,
		LocationName: s.LocationName,
		PollenType:   s.PollenType,
		State:        s.State,
		Unit:         s.Unit,
		Risk:         s.Risk,
		MeasuredFrom: Timestamp(s.MeasuredFrom),
		MeasuredTo:   Timestamp(s.MeasuredTo),
		Stale:        s.Stale,
	}
}
