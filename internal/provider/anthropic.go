package provider

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/Hennedk/leasingborsen-sub012/internal/model"
	"github.com/Hennedk/leasingborsen-sub012/pkg/anthropic"
)

const anthropicMaxTokens = 16384

// AnthropicAdapter drives extraction through the Anthropic messages API.
type AnthropicAdapter struct {
	client        anthropic.Client
	model         string
	costPerKCents int64
}

// NewAnthropicAdapter wires an adapter around an Anthropic client. A nil
// client marks the adapter unavailable.
func NewAnthropicAdapter(client anthropic.Client, modelName string, costPerKCents int64) *AnthropicAdapter {
	return &AnthropicAdapter{
		client:        client,
		model:         modelName,
		costPerKCents: costPerKCents,
	}
}

func (a *AnthropicAdapter) Name() string { return "anthropic" }

func (a *AnthropicAdapter) Available() bool { return a.client != nil }

func (a *AnthropicAdapter) Authenticated(ctx context.Context) bool {
	if a.client == nil {
		return false
	}
	// A one-token probe is the cheapest way to verify the key.
	_, err := a.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     a.model,
		MaxTokens: 1,
		Messages:  []anthropic.Message{{Role: "user", Content: "ping"}},
	})
	if err != nil {
		zap.L().Debug("anthropic auth probe failed", zap.Error(err))
		return false
	}
	return true
}

func (a *AnthropicAdapter) CostPerKTokensCents() int64 { return a.costPerKCents }

func (a *AnthropicAdapter) Extract(ctx context.Context, content string, opts Options) (*Extraction, error) {
	if a.client == nil {
		return nil, eris.New("provider: anthropic not configured")
	}

	temp := 0.0
	resp, err := a.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       a.model,
		MaxTokens:   anthropicMaxTokens,
		System:      systemPrompt,
		Temperature: &temp,
		Messages: []anthropic.Message{
			{Role: "user", Content: BuildPrompt(content, opts)},
		},
	})
	if err != nil {
		return nil, err
	}

	vehicles, doc, warnings, err := ParseResponse(resp.Text())
	if err != nil {
		return nil, err
	}
	if resp.StopReason == "max_tokens" {
		warnings = append(warnings, "response truncated at max tokens")
	}

	tokens := resp.Usage.Total()
	return &Extraction{
		Vehicles:     vehicles,
		Document:     doc,
		ModelVersion: resp.Model,
		TokensUsed:   tokens,
		CostCents:    tokensToCents(tokens, a.costPerKCents),
		Confidence:   baseConfidence(vehicles, warnings),
		Warnings:     warnings,
	}, nil
}

// tokensToCents converts a token count to minor currency units, rounding up
// so estimates never undershoot actual spend.
func tokensToCents(tokens, perKCents int64) int64 {
	if tokens <= 0 || perKCents <= 0 {
		return 0
	}
	return (tokens*perKCents + 999) / 1000
}

// baseConfidence is the adapter-level score before domain validation runs.
// Parsing cleanly with data is worth 0.9; each warning costs a little.
func baseConfidence(vehicles []model.ExtractedVehicle, warnings []string) float64 {
	if len(vehicles) == 0 {
		return 0
	}
	score := 0.9 - 0.05*float64(len(warnings))
	if score < 0.1 {
		score = 0.1
	}
	return score
}
