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
	// OpenAIName is the ledger key for OpenAI usage.
	OpenAIName = "openai"
	// OpenAIEnvKey holds the fallback OpenAI credential.
	OpenAIEnvKey = "OPENAI_API_KEY"

	openAIBaseURL = "https://api.openai.com/v1"
)

// OpenAI reads usage from the OpenAI usage endpoint, one request per day.
type OpenAI struct {
	apiKey string
	client *apiClient
}

type openAIUsageResponse struct {
	Data []struct {
		ContextTokens   int64 `json:"n_context_tokens_total"`
		GeneratedTokens int64 `json:"n_generated_tokens_total"`
	} `json:"data"`
}

// NewOpenAI returns an OpenAI adapter.
func NewOpenAI(opts Options) *OpenAI {
	key := ResolveAPIKey(opts.APIKey, OpenAIEnvKey)
	return &OpenAI{
		apiKey: key,
		client: newAPIClient(OpenAIName, openAIBaseURL, map[string]string{
			"Authorization": "Bearer " + key,
		}, opts),
	}
}

// Name implements Provider.
func (p *OpenAI) Name() string { return OpenAIName }

// IsConfigured implements Provider.
func (p *OpenAI) IsConfigured() bool { return p.apiKey != "" }

// FetchDailyUsage queries each day in [start, end]. Days that fail or have
// no usage are left out.
func (p *OpenAI) FetchDailyUsage(ctx context.Context, start, end time.Time) []models.UsageData {
	if !p.IsConfigured() {
		return nil
	}
	log := logger.FromContext(ctx).With(zap.String("provider", OpenAIName))

	var out []models.UsageData
	for day := startOfDay(start); !day.After(end); day = day.AddDate(0, 0, 1) {
		if ctx.Err() != nil {
			log.Warn("usage fetch cancelled", zap.Error(ctx.Err()))
			break
		}
		d := models.DayOf(day)

		var resp openAIUsageResponse
		if err := p.client.getJSON(ctx, "/usage", url.Values{"date": {d}}, &resp); err != nil {
			log.Warn("usage fetch failed, skipping day", zap.String("day", d), zap.Error(err))
			continue
		}

		var input, output int64
		for _, item := range resp.Data {
			input += item.ContextTokens
			output += item.GeneratedTokens
		}
		if input < 0 || output < 0 {
			log.Warn("negative usage reported, skipping day",
				zap.String("day", d), zap.Int64("input", input), zap.Int64("output", output))
			continue
		}
		if input+output <= 0 {
			continue
		}
		out = append(out, models.UsageData{
			Day:          d,
			InputTokens:  input,
			OutputTokens: output,
			TotalTokens:  input + output,
		})
	}
	return out
}
