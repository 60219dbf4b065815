package runner

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/pario-ai/tokenash/pkg/config"
	"github.com/pario-ai/tokenash/pkg/history"
	"github.com/pario-ai/tokenash/pkg/metrics"
	"github.com/pario-ai/tokenash/pkg/models"
	"github.com/pario-ai/tokenash/pkg/readme"
)

var fixedNow = time.Date(2024, 1, 2, 12, 0, 0, 0, time.UTC)

type fakeProvider struct {
	name       string
	configured bool
	data       []models.UsageData

	mu    sync.Mutex
	calls [][2]time.Time
}

func (f *fakeProvider) Name() string       { return f.name }
func (f *fakeProvider) IsConfigured() bool { return f.configured }

func (f *fakeProvider) FetchDailyUsage(_ context.Context, start, end time.Time) []models.UsageData {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, [2]time.Time{start, end})
	return f.data
}

func usage(day string, total int64) models.UsageData {
	return models.UsageData{Day: day, TotalTokens: total}
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.DataDir = filepath.Join(dir, "data")
	cfg.ChartsDir = filepath.Join(dir, "charts")
	cfg.Chart.URL = "https://chart.example/chart"
	return cfg
}

func newRunner(t *testing.T, cfg *config.Config, opts ...Option) (*Runner, history.Store) {
	t.Helper()
	store, err := history.Open(cfg.Storage.Driver, cfg.StoragePath())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	r, err := New(cfg, store, opts...)
	require.NoError(t, err)
	return r, store
}

func TestRunNoProviders(t *testing.T) {
	cfg := testConfig(t)
	r, _ := newRunner(t, cfg, WithProviders(&fakeProvider{name: "openai"}))

	_, err := r.Run(context.Background())
	assert.ErrorIs(t, err, ErrNoProviders)

	_, statErr := os.Stat(cfg.StoragePath())
	assert.True(t, os.IsNotExist(statErr), "no ledger should be written")
}

func TestNewFromConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Providers = []config.ProviderConfig{
		{Name: "openai", Enabled: true, APIKey: "sk-1"},
		{Name: "anthropic", Enabled: false, APIKey: "sk-2"},
	}
	r, _ := newRunner(t, cfg)
	require.Len(t, r.Providers(), 1)
	assert.Equal(t, "openai", r.Providers()[0].Name())

	cfg.Providers = []config.ProviderConfig{{Name: "cohere", Enabled: true}}
	_, err := New(cfg, history.NewJSONStore(cfg.StoragePath()))
	assert.Error(t, err)
}

func TestRunMergesAndCharts(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()

	seed := history.NewJSONStore(cfg.StoragePath())
	require.NoError(t, seed.Save(ctx, history.New(
		models.UsageRecord{Day: "2024-01-01", Providers: map[string]int64{"openai": 100}},
	)))

	r, store := newRunner(t, cfg, WithProviders(
		&fakeProvider{name: "openai", configured: true, data: []models.UsageData{usage("2024-01-02", 50)}},
		&fakeProvider{name: "anthropic", configured: true, data: []models.UsageData{usage("2024-01-02", 30)}},
	))

	res, err := r.Run(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, 2, res.MergedDays)
	assert.NoError(t, res.SaveErr)

	got, ok := store.Load(ctx).Get("2024-01-02")
	require.True(t, ok)
	assert.Equal(t, map[string]int64{"openai": 50, "anthropic": 30}, got.Providers)

	require.NotNil(t, res.Spec)
	assert.Equal(t, []string{"01/01", "01/02"}, res.Spec.Labels)
	assert.EqualValues(t, 180, res.Spec.Summary.Sum)
	assert.EqualValues(t, 100, res.Spec.Summary.Max)
	assert.Contains(t, res.ChartURL, "https://chart.example/chart?")

	md, err := os.ReadFile(cfg.MarkdownPath())
	require.NoError(t, err)
	assert.Equal(t, res.Markdown, string(md))
	assert.Contains(t, res.Markdown, "**Total (30d):** 180 tokens")
	assert.False(t, res.ReadmeUpdated)
}

func TestRunPartialProviderUpdate(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()

	seed := history.NewJSONStore(cfg.StoragePath())
	require.NoError(t, seed.Save(ctx, history.New(
		models.UsageRecord{Day: "2024-01-02", Providers: map[string]int64{"openai": 50, "anthropic": 30}},
	)))

	r, store := newRunner(t, cfg, WithProviders(
		&fakeProvider{name: "anthropic", configured: true, data: []models.UsageData{usage("2024-01-02", 99)}},
	))
	_, err := r.Run(ctx)
	require.NoError(t, err)

	got, _ := store.Load(ctx).Get("2024-01-02")
	assert.Equal(t, map[string]int64{"openai": 50, "anthropic": 99}, got.Providers)
	assert.EqualValues(t, 149, got.Total())
}

func TestRunNegativeUsageKeepsLedger(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()

	seed := history.NewJSONStore(cfg.StoragePath())
	require.NoError(t, seed.Save(ctx, history.New(
		models.UsageRecord{Day: "2024-01-01", Providers: map[string]int64{"openai": 100}},
	)))

	r, store := newRunner(t, cfg, WithProviders(
		&fakeProvider{name: "openai", configured: true, data: []models.UsageData{usage("2024-01-02", -95)}},
		&fakeProvider{name: "anthropic", configured: true, data: []models.UsageData{usage("2024-01-02", 30)}},
	))
	res, err := r.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.MergedDays)

	h := store.Load(ctx)
	assert.Equal(t, 2, h.Len())
	got, _ := h.Get("2024-01-02")
	assert.Equal(t, map[string]int64{"anthropic": 30}, got.Providers)
}

func TestRunProviderWithoutDataDegrades(t *testing.T) {
	cfg := testConfig(t)
	cfg.Fetch.Parallel = false
	r, store := newRunner(t, cfg, WithProviders(
		&fakeProvider{name: "openai", configured: true},
		&fakeProvider{name: "anthropic", configured: true, data: []models.UsageData{
			usage("2023-12-31", 10), // not today, ignored without backfill
			usage("2024-01-02", 30),
			usage("2024-01-02", 999),
		}},
	))

	res, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.MergedDays)

	h := store.Load(context.Background())
	assert.Equal(t, 1, h.Len())
	got, _ := h.Get("2024-01-02")
	assert.Equal(t, map[string]int64{"anthropic": 30}, got.Providers)
}

func TestRunNoData(t *testing.T) {
	cfg := testConfig(t)
	r, _ := newRunner(t, cfg, WithProviders(&fakeProvider{name: "openai", configured: true}))

	res, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Nil(t, res.Spec)
	assert.Zero(t, res.MergedDays)
	assert.Empty(t, res.Markdown)

	_, statErr := os.Stat(cfg.StoragePath())
	assert.True(t, os.IsNotExist(statErr), "nothing merged, nothing persisted")
}

func TestRunBackfill(t *testing.T) {
	cfg := testConfig(t)
	cfg.Fetch.BackfillDays = 3
	p := &fakeProvider{name: "openai", configured: true, data: []models.UsageData{
		usage("2023-12-30", 1),
		usage("2023-12-31", 2),
		usage("2024-01-02", 3),
	}}
	r, store := newRunner(t, cfg, WithProviders(p))

	res, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, res.MergedDays)
	assert.Equal(t, 3, store.Load(context.Background()).Len())

	require.Len(t, p.calls, 1)
	assert.Equal(t, fixedNow.AddDate(0, 0, -3), p.calls[0][0])
	assert.Equal(t, fixedNow, p.calls[0][1])
}

func TestRunUpdatesReadme(t *testing.T) {
	cfg := testConfig(t)
	path := filepath.Join(t.TempDir(), "README.md")
	require.NoError(t, os.WriteFile(path, []byte("# hi\n"+readme.DefaultStartMarker+"\n"+readme.DefaultEndMarker+"\n"), 0o644))
	cfg.GitHub.ProfileRepo = "me/me"
	cfg.GitHub.ReadmePath = path

	r, _ := newRunner(t, cfg, WithProviders(
		&fakeProvider{name: "openai", configured: true, data: []models.UsageData{usage("2024-01-02", 1500)}},
	))
	res, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, res.ReadmeUpdated)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), res.Markdown)
}

func TestRunReadmeWithoutMarkersContinues(t *testing.T) {
	cfg := testConfig(t)
	path := filepath.Join(t.TempDir(), "README.md")
	require.NoError(t, os.WriteFile(path, []byte("# no markers\n"), 0o644))
	cfg.GitHub.ProfileRepo = "me/me"
	cfg.GitHub.ReadmePath = path

	r, _ := newRunner(t, cfg, WithProviders(
		&fakeProvider{name: "openai", configured: true, data: []models.UsageData{usage("2024-01-02", 10)}},
	))
	res, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.False(t, res.ReadmeUpdated)
	assert.FileExists(t, cfg.MarkdownPath())

	data, _ := os.ReadFile(path)
	assert.Equal(t, "# no markers\n", string(data))
}

type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (m *memCache) Get(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.data[key]
	return b, ok
}

func (m *memCache) Put(key string, image []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		m.data = map[string][]byte{}
	}
	m.data[key] = image
	return nil
}

func TestRunDownloadsImage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("png"))
	}))
	defer srv.Close()

	cfg := testConfig(t)
	cfg.Chart.URL = srv.URL
	cfg.Chart.DownloadImage = true
	cache := &memCache{}

	r, _ := newRunner(t, cfg, WithImageCache(cache), WithProviders(
		&fakeProvider{name: "openai", configured: true, data: []models.UsageData{usage("2024-01-02", 10)}},
	))
	res, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, cfg.ImagePath(), res.ImagePath)
	assert.Len(t, cache.data, 1)
}

func TestRunRenderFailureDegrades(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	cfg := testConfig(t)
	cfg.Chart.URL = srv.URL
	cfg.Chart.DownloadImage = true

	r, _ := newRunner(t, cfg, WithProviders(
		&fakeProvider{name: "openai", configured: true, data: []models.UsageData{usage("2024-01-02", 10)}},
	))
	res, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, res.ImagePath)
	assert.NotEmpty(t, res.Markdown)
}

func TestRunWritesMetrics(t *testing.T) {
	cfg := testConfig(t)
	cfg.Metrics.TextfilePath = filepath.Join(t.TempDir(), "tokenash.prom")

	r, _ := newRunner(t, cfg, WithMetrics(metrics.New()), WithProviders(
		&fakeProvider{name: "openai", configured: true, data: []models.UsageData{usage("2024-01-02", 42)}},
	))
	_, err := r.Run(context.Background())
	require.NoError(t, err)

	data, err := os.ReadFile(cfg.Metrics.TextfilePath)
	require.NoError(t, err)
	assert.Contains(t, string(data), `tokenash_day_tokens{provider="openai"} 42`)
	assert.Contains(t, string(data), `tokenash_window_tokens{stat="sum"} 42`)
}

type failingStore struct{ history.Store }

func (failingStore) Load(context.Context) *history.History { return history.New() }
func (failingStore) Save(context.Context, *history.History) error {
	return errors.New("disk full")
}

func TestRunSaveFailureStillCharts(t *testing.T) {
	cfg := testConfig(t)
	r, err := New(cfg, failingStore{}, WithClock(func() time.Time { return fixedNow }), WithProviders(
		&fakeProvider{name: "openai", configured: true, data: []models.UsageData{usage("2024-01-02", 10)}},
	))
	require.NoError(t, err)

	res, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.EqualError(t, res.SaveErr, "disk full")
	assert.NotNil(t, res.Spec)
}

func TestParallelFetchNoLeak(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	cfg := testConfig(t)
	providers := []*fakeProvider{
		{name: "openai", configured: true, data: []models.UsageData{usage("2024-01-02", 1)}},
		{name: "anthropic", configured: true, data: []models.UsageData{usage("2024-01-02", 2)}},
	}
	r, err := New(cfg, history.NewJSONStore(cfg.StoragePath()),
		WithClock(func() time.Time { return fixedNow }),
		WithProviders(providers[0], providers[1]))
	require.NoError(t, err)

	results := r.fetch(context.Background(), fixedNow)
	require.Len(t, results, 2)
	assert.Equal(t, providers[0].data, results[0])
	assert.Equal(t, providers[1].data, results[1])
}
