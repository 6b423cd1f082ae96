package pollen

import (
	"errors"
	"strings"
	"time"
	"unicode"

	"github.com/epinpollenflug/pollenflug/internal/pollen/epin"
)

// Pollen errors.
var (
	ErrNoData        = errors.New("no pollen data available")
	ErrUnknownSensor = errors.New("unknown pollen sensor")
)

// Unit is the concentration unit reported by ePIN.
const Unit = "pollen/m³"

// RiskLevel represents the pollen load category.
type RiskLevel string

const (
	RiskNone     RiskLevel = "NONE"
	RiskLow      RiskLevel = "LOW"
	RiskModerate RiskLevel = "MODERATE"
	RiskHigh     RiskLevel = "HIGH"
	RiskVeryHigh RiskLevel = "VERY_HIGH"
)

// RiskLevelFromConcentration maps a concentration in pollen/m³ to a RiskLevel.
func RiskLevelFromConcentration(value float64) RiskLevel {
	switch {
	case value <= 0:
		return RiskNone
	case value <= 10:
		return RiskLow
	case value <= 50:
		return RiskModerate
	case value <= 100:
		return RiskHigh
	default:
		return RiskVeryHigh
	}
}

// Reading is the latest measured concentration of one pollen type at one location.
type Reading struct {
	// Location is the ePIN location identifier (e.g., "DEMUNC").
	Location string

	// LocationName is the human-readable site name, if known.
	LocationName string

	// PollenType is the ePIN pollen identifier (e.g., "Betula").
	PollenType string

	// Value is the concentration in pollen/m³.
	Value float64

	// Risk is the categorical load level of Value.
	Risk RiskLevel

	// MeasuredFrom and MeasuredTo bound the sampled interval.
	MeasuredFrom time.Time
	MeasuredTo   time.Time
}

// SensorID returns the stable sensor identifier of the reading.
func (r *Reading) SensorID() string {
	return SensorID(r.Location, r.PollenType)
}

// Snapshot is the result of one refresh.
type Snapshot struct {
	// Readings holds one entry per location and pollen type, sorted by sensor ID.
	Readings []Reading

	// WindowStart and WindowEnd bound the queried measurement window.
	WindowStart time.Time
	WindowEnd   time.Time

	// FetchedAt is when the data was retrieved.
	FetchedAt time.Time

	// Stale is set when the snapshot is served after a refresh returned nothing.
	Stale bool

	// Provider identifies the data source.
	Provider string
}

// Reading returns the reading for a location and pollen type, or nil.
func (s *Snapshot) Reading(location, pollenType string) *Reading {
	if s == nil {
		return nil
	}
	for i := range s.Readings {
		if s.Readings[i].Location == location && s.Readings[i].PollenType == pollenType {
			return &s.Readings[i]
		}
	}
	return nil
}

// Sensors returns one sensor per reading, in reading order.
func (s *Snapshot) Sensors() []Sensor {
	if s == nil {
		return nil
	}
	sensors := make([]Sensor, 0, len(s.Readings))
	for i := range s.Readings {
		sensors = append(sensors, toSensor(&s.Readings[i], s.Stale))
	}
	return sensors
}

// Sensor is the dashboard view of a reading.
type Sensor struct {
	ID           string
	Name         string
	Location     string
	LocationName string
	PollenType   string
	State        float64
	Unit         string
	Risk         RiskLevel
	MeasuredFrom time.Time
	MeasuredTo   time.Time
	Stale        bool
}

// Catalog holds the static ePIN metadata.
type Catalog struct {
	Locations   []epin.Location
	PollenTypes []string
	Seasons     []epin.Season
	FetchedAt   time.Time
}

// Location returns the location with the given identifier.
func (c *Catalog) Location(id string) (*epin.Location, bool) {
	if c == nil {
		return nil, false
	}
	for i := range c.Locations {
		if c.Locations[i].ID == id {
			return &c.Locations[i], true
		}
	}
	return nil, false
}

// InSeason reports whether t falls into any season. A season without an end
// is ongoing.
func (c *Catalog) InSeason(t time.Time) bool {
	if c == nil {
		return false
	}
	ts := float64(t.Unix())
	for _, season := range c.Seasons {
		if ts < season.Start {
			continue
		}
		if season.End == nil || ts <= *season.End {
			return true
		}
	}
	return false
}

// SensorID builds the identifier of the sensor for a location and pollen type.
// Characters other than letters and digits become underscores, so names that
// differ only there share an ID; Refresh keeps the first of such series.
func SensorID(location, pollenType string) string {
	return "epin_" + slug(location) + "_" + slug(pollenType)
}

func slug(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	return b.String()
}

func epochToTime(v float64) time.Time {
	sec := int64(v)
	nsec := int64((v - float64(sec)) * float64(time.Second))
	return time.Unix(sec, nsec).UTC()
}
