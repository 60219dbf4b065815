// Package runner sequences one TokenAsh run: fetch usage, fold it into the
// ledger, persist, chart the trailing window and publish the snippet.
package runner

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pario-ai/tokenash/pkg/budget"
	"github.com/pario-ai/tokenash/pkg/chart"
	"github.com/pario-ai/tokenash/pkg/config"
	"github.com/pario-ai/tokenash/pkg/history"
	"github.com/pario-ai/tokenash/pkg/logger"
	"github.com/pario-ai/tokenash/pkg/metrics"
	"github.com/pario-ai/tokenash/pkg/models"
	"github.com/pario-ai/tokenash/pkg/provider"
	"github.com/pario-ai/tokenash/pkg/readme"
)

// ErrNoProviders is returned before any network activity when no enabled
// provider has a credential.
var ErrNoProviders = errors.New("no providers configured; check your config file or environment variables")

// Result summarizes a completed run.
type Result struct {
	RunID         string
	MergedDays    int
	Spec          *chart.Spec
	ChartURL      string
	ImagePath     string
	Markdown      string
	MarkdownPath  string
	ReadmeUpdated bool
	// SaveErr is set when the ledger could not be persisted; the run still
	// produced its chart output.
	SaveErr error
}

// Runner wires the run's collaborators.
type Runner struct {
	cfg       *config.Config
	providers []provider.Provider
	store     history.Store
	renderer  *chart.Renderer
	enforcer  *budget.Enforcer
	metrics   *metrics.Collector
	now       func() time.Time

	providersSet bool
}

// Option customizes a Runner.
type Option func(*Runner)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

// WithImageCache attaches a rendered-chart cache.
func WithImageCache(c chart.ImageCache) Option {
	return func(r *Runner) { r.renderer.Cache = c }
}

// WithProviders replaces the providers built from the config. Unconfigured
// providers are still left out.
func WithProviders(ps ...provider.Provider) Option {
	return func(r *Runner) {
		r.providersSet = true
		for _, p := range ps {
			if p.IsConfigured() {
				r.providers = append(r.providers, p)
			}
		}
	}
}

// WithMetrics attaches a metrics collector.
func WithMetrics(m *metrics.Collector) Option {
	return func(r *Runner) { r.metrics = m }
}

// New builds a Runner from cfg. Providers that are disabled or lack a
// credential are left out.
func New(cfg *config.Config, store history.Store, opts ...Option) (*Runner, error) {
	r := &Runner{
		cfg:      cfg,
		store:    store,
		renderer: chart.NewRenderer(cfg.Chart.URL, cfg.Chart.Width, cfg.Chart.Height, cfg.Fetch.Timeout),
		enforcer: budget.New(cfg.Budget.Policies),
		now:      time.Now,
	}
	for _, o := range opts {
		o(r)
	}

	if r.providersSet {
		return r, nil
	}
	client := &http.Client{Timeout: cfg.Fetch.Timeout}
	for _, pc := range cfg.Providers {
		if !pc.Enabled {
			continue
		}
		p, err := provider.New(pc.Name, provider.Options{
			APIKey:     pc.APIKey,
			BaseURL:    pc.URL,
			HTTPClient: client,
			Metrics:    r.metrics,
		})
		if err != nil {
			return nil, fmt.Errorf("provider config: %w", err)
		}
		if p.IsConfigured() {
			r.providers = append(r.providers, p)
		}
	}
	return r, nil
}

// Providers returns the configured providers.
func (r *Runner) Providers() []provider.Provider {
	return r.providers
}

// Run performs one full run.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	res := &Result{RunID: uuid.NewString()}
	log := logger.FromContext(ctx).With(zap.String("run_id", res.RunID))
	ctx = logger.ContextWithLogger(ctx, log)

	if len(r.providers) == 0 {
		return nil, ErrNoProviders
	}
	log.Info("fetching usage", zap.Int("providers", len(r.providers)))

	now := r.now()
	h := r.store.Load(ctx)

	res.MergedDays = r.mergeUsage(ctx, h, r.fetch(ctx, now), models.DayOf(now))
	if res.MergedDays > 0 {
		if err := r.store.Save(ctx, h); err != nil {
			log.Error("persist usage ledger failed", zap.Error(err))
			res.SaveErr = err
		} else {
			log.Info("usage ledger updated", zap.String("day", models.DayOf(now)), zap.Int("merged", res.MergedDays))
		}
	}

	if err := r.enforcer.Check(h, now); err != nil {
		for _, s := range r.enforcer.Status(h, now) {
			if s.Exceeded() {
				log.Warn("token budget exceeded",
					zap.String("provider", s.Policy.Provider),
					zap.String("period", string(s.Policy.Period)),
					zap.Int64("used", s.Used),
					zap.Int64("max_tokens", s.Policy.MaxTokens))
			}
		}
	}

	defer r.writeMetrics(ctx, now)

	window := h.LastN(r.cfg.Chart.Days)
	res.Spec = chart.Build(window, r.cfg.Chart.Title)
	if res.Spec == nil {
		log.Info("no usage data available")
		return res, nil
	}
	r.metrics.SetWindow(res.Spec.Summary.Sum, res.Spec.Summary.Mean, res.Spec.Summary.Max)

	chartURL, err := r.renderer.URL(res.Spec)
	if err != nil {
		return nil, err
	}
	res.ChartURL = chartURL

	if r.cfg.Chart.DownloadImage {
		if path, ok := r.renderer.Download(ctx, res.Spec, r.cfg.ImagePath()); ok {
			res.ImagePath = path
		}
	}

	res.Markdown = chart.Markdown(res.Spec, chartURL, r.cfg.Chart.Days, now)
	res.MarkdownPath = r.cfg.MarkdownPath()
	if err := writeFile(res.MarkdownPath, []byte(res.Markdown)); err != nil {
		return nil, fmt.Errorf("write markdown: %w", err)
	}
	log.Info("markdown saved", zap.String("path", res.MarkdownPath))

	if r.cfg.GitHub.ProfileRepo != "" {
		gh := r.cfg.GitHub
		if err := readme.UpdateFile(gh.ReadmePath, res.Markdown, gh.SectionStart, gh.SectionEnd); err != nil {
			log.Warn("readme not updated", zap.String("path", gh.ReadmePath), zap.Error(err))
		} else {
			res.ReadmeUpdated = true
			log.Info("readme updated", zap.String("path", gh.ReadmePath))
		}
	}

	return res, nil
}

// fetch queries every provider, in parallel when configured. Results are
// indexed like r.providers.
func (r *Runner) fetch(ctx context.Context, now time.Time) [][]models.UsageData {
	end := now
	start := now.AddDate(0, 0, -r.cfg.Fetch.BackfillDays)
	results := make([][]models.UsageData, len(r.providers))

	if !r.cfg.Fetch.Parallel {
		for i, p := range r.providers {
			results[i] = p.FetchDailyUsage(ctx, start, end)
		}
		return results
	}

	var g errgroup.Group
	for i, p := range r.providers {
		g.Go(func() error {
			results[i] = p.FetchDailyUsage(ctx, start, end)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// mergeUsage folds fetched usage into h and returns the number of provider
// days merged. Without backfill only the first entry reported for today is
// taken from each provider.
func (r *Runner) mergeUsage(ctx context.Context, h *history.History, results [][]models.UsageData, today string) int {
	backfill := r.cfg.Fetch.BackfillDays > 0
	merged := 0
	for i, data := range results {
		name := r.providers[i].Name()
		n := 0
		for _, d := range data {
			if !backfill && d.Day != today {
				continue
			}
			if d.TotalTokens < 0 {
				logger.FromContext(ctx).Warn("negative usage ignored",
					zap.String("provider", name), zap.String("day", d.Day), zap.Int64("tokens", d.TotalTokens))
				continue
			}
			if d.Day == today {
				r.metrics.SetDayTokens(name, d.TotalTokens)
			}
			h.Merge(models.UsageRecord{Day: d.Day, Providers: map[string]int64{name: d.TotalTokens}})
			n++
			if !backfill {
				break
			}
		}
		r.metrics.MergedDays(name, n)
		merged += n
	}
	return merged
}

func (r *Runner) writeMetrics(ctx context.Context, now time.Time) {
	path := r.cfg.Metrics.TextfilePath
	if path == "" {
		return
	}
	r.metrics.MarkRun(now)
	if err := r.metrics.WriteTextfile(path); err != nil {
		logger.FromContext(ctx).Warn("metrics not written", zap.Error(err))
	}
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
