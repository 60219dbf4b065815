package provider

import (
	"context"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/pario-ai/tokenash/pkg/logger"
	"github.com/pario-ai/tokenash/pkg/models"
)

const (
	// AnthropicName is the ledger key for Anthropic usage.
	AnthropicName = "anthropic"
	// AnthropicEnvKey holds the fallback Anthropic credential.
	AnthropicEnvKey = "ANTHROPIC_API_KEY"

	anthropicBaseURL = "https://api.anthropic.com/v1"
	anthropicVersion = "2023-06-01"
)

// Anthropic reads usage for a whole date range in one request.
type Anthropic struct {
	apiKey string
	client *apiClient
}

type anthropicUsageResponse struct {
	Data []struct {
		Date         string `json:"date"`
		InputTokens  int64  `json:"input_tokens"`
		OutputTokens int64  `json:"output_tokens"`
		TotalTokens  int64  `json:"total_tokens"`
	} `json:"data"`
}

// NewAnthropic returns an Anthropic adapter.
func NewAnthropic(opts Options) *Anthropic {
	key := ResolveAPIKey(opts.APIKey, AnthropicEnvKey)
	return &Anthropic{
		apiKey: key,
		client: newAPIClient(AnthropicName, anthropicBaseURL, map[string]string{
			"x-api-key":         key,
			"anthropic-version": anthropicVersion,
		}, opts),
	}
}

// Name implements Provider.
func (p *Anthropic) Name() string { return AnthropicName }

// IsConfigured implements Provider.
func (p *Anthropic) IsConfigured() bool { return p.apiKey != "" }

// FetchDailyUsage queries [start, end] in one request. A failed request
// yields no data; entries with a bad or out-of-range date, negative counts
// or zero usage are dropped.
func (p *Anthropic) FetchDailyUsage(ctx context.Context, start, end time.Time) []models.UsageData {
	if !p.IsConfigured() {
		return nil
	}
	log := logger.FromContext(ctx).With(zap.String("provider", AnthropicName))

	first, last := models.DayOf(start), models.DayOf(end)
	params := url.Values{
		"start": {first},
		"end":   {last},
	}
	var resp anthropicUsageResponse
	if err := p.client.getJSON(ctx, "/usage", params, &resp); err != nil {
		log.Warn("usage fetch failed", zap.Error(err))
		return nil
	}

	var out []models.UsageData
	for _, d := range resp.Data {
		if _, err := models.ParseDay(d.Date); err != nil {
			log.Warn("skipping usage entry", zap.Error(err))
			continue
		}
		if d.Date < first || d.Date > last {
			log.Warn("skipping usage entry outside requested range", zap.String("day", d.Date))
			continue
		}
		if d.InputTokens < 0 || d.OutputTokens < 0 {
			log.Warn("negative usage reported, skipping day", zap.String("day", d.Date))
			continue
		}
		total := d.TotalTokens
		if total == 0 {
			total = d.InputTokens + d.OutputTokens
		}
		if total <= 0 {
			continue
		}
		out = append(out, models.UsageData{
			Day:          d.Date,
			InputTokens:  d.InputTokens,
			OutputTokens: d.OutputTokens,
			TotalTokens:  total,
		})
	}
	return out
}
