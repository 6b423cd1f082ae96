package worker_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/epinpollenflug/pollenflug/internal/pollen"
	"github.com/epinpollenflug/pollenflug/internal/pollen/epin"
	"github.com/epinpollenflug/pollenflug/internal/worker"
)

// stubProvider serves one Betula series at DEMUNC unless empty is set.
type stubProvider struct {
	mu           sync.Mutex
	empty        bool
	catalogCalls int
	dataCalls    int
}

func (p *stubProvider) Name() string { return "stub" }

func (p *stubProvider) GetLocations(context.Context) []epin.Location {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.catalogCalls++
	if p.empty {
		return []epin.Location{}
	}
	return []epin.Location{{ID: "DEMUNC", Name: "München", Algorithms: []epin.Algorithm{}}}
}

func (p *stubProvider) GetPollen(context.Context) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.empty {
		return []string{}
	}
	return []string{"Betula"}
}

func (p *stubProvider) GetSeasons(context.Context) []epin.Season {
	return []epin.Season{}
}

func (p *stubProvider) GetPollenData(_ context.Context, _, _ []string) *epin.PollenReport {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dataCalls++
	if p.empty {
		return &epin.PollenReport{Series: []epin.MeasurementSeries{}}
	}
	return &epin.PollenReport{
		Start: 1717419600,
		End:   1717430400,
		Series: []epin.MeasurementSeries{{
			PollenType: "Betula",
			Location:   "DEMUNC",
			Points:     []epin.MeasurementPoint{{Start: 1717419600, End: 1717423200, Value: 12}},
		}},
	}
}

func (p *stubProvider) setEmpty(empty bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.empty = empty
}

func (p *stubProvider) calls() (catalog, data int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.catalogCalls, p.dataCalls
}

type recordedRefresh struct {
	readings int
	stale    bool
	err      error
}

type stubRecorder struct {
	mu      sync.Mutex
	records []recordedRefresh
}

func (r *stubRecorder) RecordRefresh(readings int, stale bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, recordedRefresh{readings, stale, err})
}

func newJob(provider *stubProvider, recorder worker.RefreshRecorder, cfg worker.RefreshConfig) *worker.RefreshJob {
	service := pollen.NewService(pollen.ServiceConfig{
		Provider: provider,
		Logger:   zerolog.Nop(),
	})
	return worker.NewRefreshJob(worker.RefreshJobConfig{
		Config:        cfg,
		Logger:        zerolog.Nop(),
		PollenService: service,
		Recorder:      recorder,
	})
}

func TestDefaultRefreshConfig(t *testing.T) {
	cfg := worker.DefaultRefreshConfig()

	assert.Equal(t, 30*time.Minute, cfg.Interval)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.True(t, cfg.RunOnStart)
}

func TestRefreshJob_Run(t *testing.T) {
	recorder := &stubRecorder{}
	job := newJob(&stubProvider{}, recorder, worker.DefaultRefreshConfig())

	result := job.Run(context.Background())

	require.NoError(t, result.Err)
	assert.Equal(t, 1, result.Readings)
	assert.False(t, result.Stale)
	assert.False(t, result.EndTime.Before(result.StartTime))

	m := job.GetMetrics()
	assert.Equal(t, int64(1), m.TotalRefreshes)
	assert.Equal(t, int64(1), m.SuccessfulRefreshes)
	assert.Equal(t, int64(0), m.FailedRefreshes)
	assert.False(t, m.LastSuccessAt.IsZero())

	require.Len(t, recorder.records, 1)
	assert.Equal(t, recordedRefresh{readings: 1}, recorder.records[0])
}

func TestRefreshJob_Run_Stale(t *testing.T) {
	provider := &stubProvider{}
	job := newJob(provider, nil, worker.DefaultRefreshConfig())

	require.NoError(t, job.Run(context.Background()).Err)

	provider.setEmpty(true)
	result := job.Run(context.Background())
	require.NoError(t, result.Err)
	assert.True(t, result.Stale)

	m := job.GetMetrics()
	assert.Equal(t, int64(2), m.SuccessfulRefreshes)
	assert.Equal(t, int64(1), m.StaleRefreshes)
}

func TestRefreshJob_Run_NoData(t *testing.T) {
	recorder := &stubRecorder{}
	job := newJob(&stubProvider{empty: true}, recorder, worker.DefaultRefreshConfig())

	result := job.Run(context.Background())

	assert.ErrorIs(t, result.Err, pollen.ErrNoData)
	assert.Equal(t, 0, result.Readings)

	m := job.GetMetrics()
	assert.Equal(t, int64(1), m.FailedRefreshes)
	assert.Equal(t, pollen.ErrNoData.Error(), m.LastError)
	assert.True(t, m.LastSuccessAt.IsZero())

	require.Len(t, recorder.records, 1)
	assert.ErrorIs(t, recorder.records[0].err, pollen.ErrNoData)
}

func TestRefreshJob_MetricsSnapshot(t *testing.T) {
	job := newJob(&stubProvider{}, nil, worker.DefaultRefreshConfig())
	job.Run(context.Background())

	snapshot := job.MetricsSnapshot()
	assert.Equal(t, int64(1), snapshot["total_refreshes"])
	assert.Equal(t, int64(1), snapshot["successful_refreshes"])
	assert.Equal(t, "", snapshot["last_error"])
}

func TestRefreshJob_Start(t *testing.T) {
	provider := &stubProvider{}
	job := newJob(provider, nil, worker.RefreshConfig{
		Interval:   10 * time.Millisecond,
		Timeout:    time.Second,
		RunOnStart: true,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		job.Start(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return job.GetMetrics().TotalRefreshes >= 3
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("refresh loop did not stop")
	}

	_, data := provider.calls()
	assert.GreaterOrEqual(t, data, 3)
}

func TestRefreshJob_Start_ZeroConfigWaitsForInterval(t *testing.T) {
	provider := &stubProvider{}
	job := newJob(provider, nil, worker.RefreshConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		job.Start(ctx)
		close(done)
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()
	<-done

	assert.Equal(t, int64(0), job.GetMetrics().TotalRefreshes)
	_, data := provider.calls()
	assert.Zero(t, data)
}

func TestRefreshJob_CheckCatalog(t *testing.T) {
	job := newJob(&stubProvider{}, nil, worker.DefaultRefreshConfig())
	assert.NoError(t, job.CheckCatalog(context.Background()))

	failing := newJob(&stubProvider{empty: true}, nil, worker.DefaultRefreshConfig())
	assert.ErrorIs(t, failing.CheckCatalog(context.Background()), pollen.ErrNoData)
}

func TestDispatcher(t *testing.T) {
	tests := []struct {
		name        string
		data        string
		empty       bool
		wantErr     bool
		wantRefresh bool
	}{
		{name: "pollen refresh", data: `{"job_type":"pollen_refresh"}`, wantRefresh: true},
		{name: "failed refresh", data: `{"job_type":"pollen_refresh"}`, empty: true, wantErr: true},
		{name: "health check", data: `{"job_type":"health_check"}`},
		{name: "failed health check", data: `{"job_type":"health_check"}`, empty: true, wantErr: true},
		{name: "unknown job", data: `{"job_type":"provider_refresh"}`},
		{name: "malformed", data: `{`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := &stubProvider{empty: tt.empty}
			job := newJob(provider, nil, worker.DefaultRefreshConfig())
			dispatcher := worker.NewDispatcher(job, zerolog.Nop())

			err := dispatcher.Dispatch(context.Background(), []byte(tt.data))
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}

			_, data := provider.calls()
			assert.Equal(t, tt.wantRefresh, data > 0)
		})
	}
}

func TestDispatcher_ReloadCatalog(t *testing.T) {
	provider := &stubProvider{}
	job := newJob(provider, nil, worker.DefaultRefreshConfig())
	dispatcher := worker.NewDispatcher(job, zerolog.Nop())

	require.NoError(t, dispatcher.Dispatch(context.Background(), []byte(`{"job_type":"pollen_refresh"}`)))
	require.NoError(t, dispatcher.Dispatch(context.Background(), []byte(`{"job_type":"pollen_refresh"}`)))
	catalog, _ := provider.calls()
	assert.Equal(t, 1, catalog)

	require.NoError(t, dispatcher.Dispatch(context.Background(), []byte(`{"job_type":"pollen_refresh","reload_catalog":true}`)))
	catalog, _ = provider.calls()
	assert.Equal(t, 2, catalog)
}

func TestRefreshResult_ErrorWrapping(t *testing.T) {
	provider := &stubProvider{empty: true}
	dispatcher := worker.NewDispatcher(newJob(provider, nil, worker.DefaultRefreshConfig()), zerolog.Nop())

	err := dispatcher.Dispatch(context.Background(), []byte(`{"job_type":"pollen_refresh"}`))
	assert.True(t, errors.Is(err, pollen.ErrNoData))
}
