package api_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/epinpollenflug/pollenflug/internal/api"
	"github.com/epinpollenflug/pollenflug/internal/api/models"
	"github.com/epinpollenflug/pollenflug/internal/pollen"
	"github.com/epinpollenflug/pollenflug/internal/pollen/epin"
)

const (
	locationsJSON = `[
		{"id": "DEMUNC", "name": "München", "lon": 11.55, "lat": 48.15, "algorithm": []},
		{"id": "DEFEUC", "name": "Feucht", "lon": 11.22, "lat": 49.38, "algorithm": []}
	]`
	pollenJSON       = `["Alnus", "Betula"]`
	seasonsJSON      = `[{"from": 1709251200, "to": 1719792000}, {"from": 1740787200}]`
	measurementsJSON = `{
		"from": 1717419600,
		"to": 1717430400,
		"measurements": [
			{"polle": "Betula", "location": "DEMUNC", "data": [
				{"from": 1717419600, "to": 1717423200, "value": 12},
				{"from": 1717423200, "to": 1717426800, "value": 64}
			]}
		]
	}`
)

// fakeEPIN serves canned ePIN responses. When down is set every endpoint fails.
type fakeEPIN struct {
	server       *httptest.Server
	down         atomic.Bool
	measurements atomic.Int32
	lastQuery    atomic.Value
}

func newFakeEPIN(t *testing.T) *fakeEPIN {
	t.Helper()
	f := &fakeEPIN{}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if f.down.Load() {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/locations":
			_, _ = io.WriteString(w, locationsJSON)
		case "/api/pollen":
			_, _ = io.WriteString(w, pollenJSON)
		case "/api/seasons":
			_, _ = io.WriteString(w, seasonsJSON)
		case "/api/measurements":
			f.measurements.Add(1)
			f.lastQuery.Store(r.URL.RawQuery)
			_, _ = io.WriteString(w, measurementsJSON)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(f.server.Close)
	return f
}

type testEnv struct {
	router  http.Handler
	service *pollen.Service
	epin    *fakeEPIN
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	fake := newFakeEPIN(t)

	client := epin.NewClient(epin.ClientConfig{
		Session: fake.server.Client(),
		BaseURL: fake.server.URL + "/api",
		Logger:  zerolog.Nop(),
		Now:     func() time.Time { return time.Unix(1717430400, 0) },
	})
	service := pollen.NewService(pollen.ServiceConfig{
		Provider:    client,
		Locations:   []string{"DEMUNC"},
		PollenTypes: []string{"Betula"},
		Logger:      zerolog.Nop(),
	})

	router := api.NewRouter(api.RouterConfig{
		Version:       "test",
		BuildTime:     "2024-01-01T00:00:00Z",
		Logger:        zerolog.New(io.Discard),
		PollenService: service,
		BreakerState:  func() string { return "closed" },
	})

	return &testEnv{router: router, service: service, epin: fake}
}

func (e *testEnv) do(t *testing.T, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, http.NoBody)
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/v1/ops/health")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
	health := decode[models.Health](t, rec)
	assert.Equal(t, models.HealthStatusOK, health.Status)
	assert.Equal(t, "test", health.Details["version"])
}

func TestReady_UntilFirstSnapshot(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/v1/ops/ready")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))

	_, err := env.service.Refresh(context.Background())
	require.NoError(t, err)

	rec = env.do(t, http.MethodGet, "/v1/ops/ready")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStatus(t *testing.T) {
	env := newTestEnv(t)

	status := decode[models.SystemStatus](t, env.do(t, http.MethodGet, "/v1/ops/status"))
	assert.Equal(t, models.HealthStatusFail, status.Status)
	assert.Equal(t, "closed", status.Provider.CircuitState)

	_, err := env.service.Refresh(context.Background())
	require.NoError(t, err)

	status = decode[models.SystemStatus](t, env.do(t, http.MethodGet, "/v1/ops/status"))
	assert.Equal(t, models.HealthStatusOK, status.Status)
	assert.Equal(t, 1, status.Provider.Readings)
	assert.NotNil(t, status.Provider.LastSuccessAt)
}

func TestCatalogEndpoints(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/v1/locations")
	require.Equal(t, http.StatusOK, rec.Code)
	locations := decode[models.LocationList](t, rec)
	require.Len(t, locations.Items, 2)
	assert.Equal(t, "DEMUNC", locations.Items[0].ID)
	assert.Equal(t, 48.15, locations.Items[0].Latitude)

	rec = env.do(t, http.MethodGet, "/v1/pollen")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"Alnus", "Betula"}, decode[models.PollenTypeList](t, rec).Items)

	rec = env.do(t, http.MethodGet, "/v1/seasons")
	require.Equal(t, http.StatusOK, rec.Code)
	seasons := decode[models.SeasonList](t, rec)
	require.Len(t, seasons.Items, 2)
	assert.NotNil(t, seasons.Items[0].End)
	assert.Nil(t, seasons.Items[1].End)
}

func TestCatalogEndpoints_Unavailable(t *testing.T) {
	env := newTestEnv(t)
	env.epin.down.Store(true)

	for _, path := range []string{"/v1/locations", "/v1/pollen", "/v1/seasons"} {
		rec := env.do(t, http.MethodGet, path)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code, path)

		problem := decode[models.Problem](t, rec)
		assert.Equal(t, models.ProblemTypeUnavailable, problem.Type)
		assert.Equal(t, path, problem.Instance)
	}
}

func TestMeasurements(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/v1/measurements?locations=DEMUNC,DEFEUC&pollen=Betula")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode[models.Measurements](t, rec)
	require.Len(t, body.Series, 1)
	assert.Equal(t, "Betula", body.Series[0].PollenType)
	assert.Len(t, body.Series[0].Points, 2)

	query, _ := env.epin.lastQuery.Load().(string)
	assert.Equal(t, "from=1717419600&locations=DEMUNC%2CDEFEUC&pollen=Betula&to=1717430400", query)
}

func TestMeasurements_DefaultsToCatalogPollen(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/v1/measurements?locations=DEMUNC")
	require.Equal(t, http.StatusOK, rec.Code)

	query, _ := env.epin.lastQuery.Load().(string)
	assert.Contains(t, query, "pollen=Alnus%2CBetula")
}

func TestMeasurements_RequiresLocations(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/v1/measurements?pollen=Betula")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	problem := decode[models.Problem](t, rec)
	require.Len(t, problem.Errors, 1)
	assert.Equal(t, "locations", problem.Errors[0].Field)
	assert.Equal(t, int32(0), env.epin.measurements.Load())
}

func TestMeasurements_UpstreamDown(t *testing.T) {
	env := newTestEnv(t)
	env.epin.down.Store(true)

	rec := env.do(t, http.MethodGet, "/v1/measurements?locations=DEMUNC&pollen=Betula")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[models.Measurements](t, rec).Series)
}

func TestSensors(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/v1/sensors")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = env.do(t, http.MethodPost, "/v1/sensors:refresh")
	require.Equal(t, http.StatusOK, rec.Code)
	result := decode[models.RefreshResult](t, rec)
	assert.Equal(t, 1, result.Readings)
	assert.False(t, result.Stale)

	rec = env.do(t, http.MethodGet, "/v1/sensors")
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[models.SensorList](t, rec)
	require.Len(t, list.Items, 1)

	sensor := list.Items[0]
	assert.Equal(t, "epin_demunc_betula", sensor.ID)
	assert.Equal(t, "Pollenflug Betula München", sensor.Name)
	assert.Equal(t, 64.0, sensor.State)
	assert.Equal(t, pollen.Unit, sensor.Unit)
	assert.Equal(t, pollen.RiskHigh, sensor.Risk)

	rec = env.do(t, http.MethodGet, "/v1/sensors/epin_demunc_betula")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "München", decode[models.Sensor](t, rec).LocationName)

	rec = env.do(t, http.MethodGet, "/v1/sensors/epin_demunc_alnus")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.True(t, strings.Contains(decode[models.Problem](t, rec).Detail, "epin_demunc_alnus"))
}

func TestRefresh_ServesStaleWhenUpstreamDown(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/v1/sensors:refresh")
	require.Equal(t, http.StatusOK, rec.Code)

	env.epin.down.Store(true)

	rec = env.do(t, http.MethodPost, "/v1/sensors:refresh")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[models.RefreshResult](t, rec).Stale)

	list := decode[models.SensorList](t, env.do(t, http.MethodGet, "/v1/sensors"))
	assert.True(t, list.Stale)
	require.Len(t, list.Items, 1)
	assert.True(t, list.Items[0].Stale)
}

func TestRefresh_NoData(t *testing.T) {
	env := newTestEnv(t)
	env.epin.down.Store(true)

	rec := env.do(t, http.MethodPost, "/v1/sensors:refresh")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestUnknownRoute(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/v1/unknown")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
