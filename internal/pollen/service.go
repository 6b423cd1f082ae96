package pollen

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/epinpollenflug/pollenflug/internal/pollen/epin"
)

// Provider defines the pollen data source. *epin.Client implements it.
type Provider interface {
	GetLocations(ctx context.Context) []epin.Location
	GetPollen(ctx context.Context) []string
	GetSeasons(ctx context.Context) []epin.Season
	GetPollenData(ctx context.Context, locations, pollenTypes []string) *epin.PollenReport

	// Name returns the provider name for logging.
	Name() string
}

// ServiceConfig holds configuration for the pollen service.
type ServiceConfig struct {
	// Provider is the pollen data provider.
	Provider Provider

	// Locations are the monitored location identifiers.
	// If empty, every location of the catalog is monitored.
	Locations []string

	// PollenTypes are the monitored pollen types.
	// If empty, every pollen type of the catalog is monitored.
	PollenTypes []string

	// Logger for service operations.
	Logger zerolog.Logger

	// CatalogTTL is how long locations, pollen types and seasons are kept
	// (default: 24 hours).
	CatalogTTL time.Duration

	// StaleTTL is how long the previous snapshot is served when a refresh
	// returns no measurements (default: 6 hours).
	StaleTTL time.Duration

	// Now returns the current time (optional).
	Now func() time.Time
}

// Service keeps the latest pollen snapshot for the monitored locations.
type Service struct {
	provider    Provider
	locations   []string
	pollenTypes []string
	logger      zerolog.Logger
	catalogTTL  time.Duration
	staleTTL    time.Duration
	now         func() time.Time

	refreshMu sync.Mutex
	catalogSF singleflight.Group

	mu               sync.RWMutex
	catalog          *Catalog
	catalogExpiresAt time.Time
	snapshot         *Snapshot
}

// NewService creates a new pollen service.
func NewService(cfg ServiceConfig) *Service {
	catalogTTL := cfg.CatalogTTL
	if catalogTTL == 0 {
		catalogTTL = 24 * time.Hour
	}

	staleTTL := cfg.StaleTTL
	if staleTTL == 0 {
		staleTTL = 6 * time.Hour
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Service{
		provider:    cfg.Provider,
		locations:   append([]string(nil), cfg.Locations...),
		pollenTypes: append([]string(nil), cfg.PollenTypes...),
		logger:      cfg.Logger,
		catalogTTL:  catalogTTL,
		staleTTL:    staleTTL,
		now:         now,
	}
}

// Catalog returns the ePIN locations, pollen types and seasons.
// Returns ErrNoData if the provider returned neither locations nor pollen types.
// Concurrent callers share one provider fetch; readers of the snapshot are
// not blocked by it.
func (s *Service) Catalog(ctx context.Context) (*Catalog, error) {
	if catalog := s.cachedCatalog(); catalog != nil {
		return catalog, nil
	}

	v, err, _ := s.catalogSF.Do("catalog", func() (interface{}, error) {
		return s.fetchCatalog(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Catalog), nil
}

func (s *Service) cachedCatalog() *Catalog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.catalog != nil && s.now().Before(s.catalogExpiresAt) {
		return s.catalog
	}
	return nil
}

func (s *Service) fetchCatalog(ctx context.Context) (*Catalog, error) {
	if catalog := s.cachedCatalog(); catalog != nil {
		return catalog, nil
	}

	s.logger.Debug().
		Str("provider", s.provider.Name()).
		Msg("fetching pollen catalog from provider")

	catalog := &Catalog{
		Locations:   s.provider.GetLocations(ctx),
		PollenTypes: s.provider.GetPollen(ctx),
		Seasons:     s.provider.GetSeasons(ctx),
		FetchedAt:   s.now(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(catalog.Locations) == 0 && len(catalog.PollenTypes) == 0 {
		s.logger.Warn().Msg("pollen catalog is empty")
		if s.catalog != nil {
			return s.catalog, nil
		}
		return nil, ErrNoData
	}

	s.catalog = catalog
	s.catalogExpiresAt = catalog.FetchedAt.Add(s.catalogTTL)

	s.logger.Info().
		Int("locations", len(catalog.Locations)).
		Int("pollen_types", len(catalog.PollenTypes)).
		Int("seasons", len(catalog.Seasons)).
		Msg("pollen catalog updated")

	return catalog, nil
}

// InvalidateCatalog drops the cached catalog.
func (s *Service) InvalidateCatalog() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.catalog = nil
	s.catalogExpiresAt = time.Time{}
}

// Refresh fetches the latest measurements for the monitored locations and
// pollen types and stores them as the current snapshot.
func (s *Service) Refresh(ctx context.Context) (*Snapshot, error) {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	catalog, err := s.Catalog(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("refreshing without pollen catalog")
	}

	locations := s.monitoredLocations(catalog)
	pollenTypes := s.monitoredPollenTypes(catalog)
	if len(locations) == 0 || len(pollenTypes) == 0 {
		s.logger.Warn().
			Int("locations", len(locations)).
			Int("pollen_types", len(pollenTypes)).
			Msg("nothing to refresh")
		return s.staleSnapshot()
	}

	s.logger.Debug().
		Strs("locations", locations).
		Strs("pollen_types", pollenTypes).
		Str("provider", s.provider.Name()).
		Msg("fetching pollen measurements from provider")

	report := s.provider.GetPollenData(ctx, locations, pollenTypes)
	if report.IsEmpty() {
		s.logger.Warn().Msg("provider returned no pollen measurements")
		return s.staleSnapshot()
	}

	snapshot := s.buildSnapshot(report, catalog)

	s.mu.Lock()
	s.snapshot = snapshot
	s.mu.Unlock()

	s.logger.Info().
		Int("readings", len(snapshot.Readings)).
		Time("window_end", snapshot.WindowEnd).
		Msg("pollen snapshot updated")

	return snapshot, nil
}

// staleSnapshot marks the previous snapshot stale and returns it, as long as
// it is younger than the stale TTL. Older snapshots are dropped.
func (s *Service) staleSnapshot() (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.snapshot == nil {
		return nil, ErrNoData
	}

	if !s.now().Before(s.snapshot.FetchedAt.Add(s.staleTTL)) {
		s.logger.Warn().
			Time("fetched_at", s.snapshot.FetchedAt).
			Msg("dropping expired pollen snapshot")
		s.snapshot = nil
		return nil, ErrNoData
	}

	s.logger.Warn().
		Time("fetched_at", s.snapshot.FetchedAt).
		Msg("serving stale pollen snapshot")

	if !s.snapshot.Stale {
		stale := *s.snapshot
		stale.Stale = true
		s.snapshot = &stale
	}
	return s.snapshot, nil
}

func (s *Service) monitoredLocations(catalog *Catalog) []string {
	if len(s.locations) == 0 {
		if catalog == nil {
			return nil
		}
		ids := make([]string, 0, len(catalog.Locations))
		for _, loc := range catalog.Locations {
			ids = append(ids, loc.ID)
		}
		return ids
	}

	if catalog == nil || len(catalog.Locations) == 0 {
		return s.locations
	}

	known := make([]string, 0, len(s.locations))
	for _, id := range s.locations {
		if _, ok := catalog.Location(id); !ok {
			s.logger.Warn().Str("location", id).Msg("ignoring unknown pollen location")
			continue
		}
		known = append(known, id)
	}
	return known
}

func (s *Service) monitoredPollenTypes(catalog *Catalog) []string {
	if len(s.pollenTypes) > 0 {
		return s.pollenTypes
	}
	if catalog == nil {
		return nil
	}
	return catalog.PollenTypes
}

func (s *Service) buildSnapshot(report *epin.PollenReport, catalog *Catalog) *Snapshot {
	readings := make([]Reading, 0, len(report.Series))
	seen := make(map[string]struct{}, len(report.Series))

	for _, series := range report.Series {
		if len(series.Points) == 0 {
			continue
		}

		// Distinct pollen names can slug to the same sensor ID; the first wins.
		id := SensorID(series.Location, series.PollenType)
		if _, dup := seen[id]; dup {
			s.logger.Warn().
				Str("sensor_id", id).
				Str("location", series.Location).
				Str("pollen_type", series.PollenType).
				Msg("dropping series with duplicate sensor id")
			continue
		}
		seen[id] = struct{}{}

		latest := series.Points[0]
		for _, p := range series.Points[1:] {
			if p.End > latest.End {
				latest = p
			}
		}

		reading := Reading{
			Location:     series.Location,
			PollenType:   series.PollenType,
			Value:        latest.Value,
			Risk:         RiskLevelFromConcentration(latest.Value),
			MeasuredFrom: epochToTime(latest.Start),
			MeasuredTo:   epochToTime(latest.End),
		}
		if loc, ok := catalog.Location(series.Location); ok {
			reading.LocationName = loc.Name
		}
		readings = append(readings, reading)
	}

	sort.Slice(readings, func(i, j int) bool {
		return readings[i].SensorID() < readings[j].SensorID()
	})

	return &Snapshot{
		Readings:    readings,
		WindowStart: epochToTime(report.Start),
		WindowEnd:   epochToTime(report.End),
		FetchedAt:   s.now(),
		Provider:    s.provider.Name(),
	}
}

// Snapshot returns the latest snapshot, or nil before the first refresh.
func (s *Service) Snapshot() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot
}

// Sensors returns one sensor per reading of the latest snapshot.
// Returns ErrNoData before the first successful refresh.
func (s *Service) Sensors() ([]Sensor, error) {
	snapshot := s.Snapshot()
	if snapshot == nil {
		return nil, ErrNoData
	}
	return snapshot.Sensors(), nil
}

// Sensor returns a single sensor by ID.
func (s *Service) Sensor(id string) (*Sensor, error) {
	sensors, err := s.Sensors()
	if err != nil {
		return nil, err
	}
	for i := range sensors {
		if sensors[i].ID == id {
			return &sensors[i], nil
		}
	}
	return nil, ErrUnknownSensor
}

// InSeason reports whether t lies within a pollen season.
func (s *Service) InSeason(ctx context.Context, t time.Time) (bool, error) {
	catalog, err := s.Catalog(ctx)
	if err != nil {
		return false, err
	}
	return catalog.InSeason(t), nil
}

// Measurements queries the provider directly for the given locations and
// pollen types. The report is empty when nothing was measured or the call failed.
func (s *Service) Measurements(ctx context.Context, locations, pollenTypes []string) *epin.PollenReport {
	return s.provider.GetPollenData(ctx, locations, pollenTypes)
}

func toSensor(r *Reading, stale bool) Sensor {
	name := r.LocationName
	if name == "" {
		name = r.Location
	}
	return Sensor{
		ID:           r.SensorID(),
		Name:         "Pollenflug " + r.PollenType + " " + name,
		Location:     r.Location,
		LocationName: r.LocationName,
		PollenType:   r.PollenType,
		State:        r.Value,
		Unit:         Unit,
		Risk:         r.Risk,
		MeasuredFrom: r.MeasuredFrom,
		MeasuredTo:   r.MeasuredTo,
		Stale:        stale,
	}
}
