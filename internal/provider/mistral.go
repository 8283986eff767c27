package provider

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/Hennedk/leasingborsen-sub012/pkg/mistral"
)

const mistralMaxTokens = 16384

// MistralAdapter is the fallback extraction provider.
type MistralAdapter struct {
	client        mistral.Client
	model         string
	costPerKCents int64
}

// NewMistralAdapter wires an adapter around a Mistral client. A nil client
// marks the adapter unavailable.
func NewMistralAdapter(client mistral.Client, modelName string, costPerKCents int64) *MistralAdapter {
	return &MistralAdapter{
		client:        client,
		model:         modelName,
		costPerKCents: costPerKCents,
	}
}

func (m *MistralAdapter) Name() string { return "mistral" }

func (m *MistralAdapter) Available() bool { return m.client != nil }

func (m *MistralAdapter) Authenticated(ctx context.Context) bool {
	if m.client == nil {
		return false
	}
	maxTokens := 1
	_, err := m.client.ChatCompletion(ctx, mistral.ChatCompletionRequest{
		Model:     m.model,
		MaxTokens: &maxTokens,
		Messages:  []mistral.Message{{Role: "user", Content: "ping"}},
	})
	if err != nil {
		zap.L().Debug("mistral auth probe failed", zap.Error(err))
		return false
	}
	return true
}

func (m *MistralAdapter) CostPerKTokensCents() int64 { return m.costPerKCents }

func (m *MistralAdapter) Extract(ctx context.Context, content string, opts Options) (*Extraction, error) {
	if m.client == nil {
		return nil, eris.New("provider: mistral not configured")
	}

	temp := 0.0
	maxTokens := mistralMaxTokens
	resp, err := m.client.ChatCompletion(ctx, mistral.ChatCompletionRequest{
		Model:          m.model,
		Temperature:    &temp,
		MaxTokens:      &maxTokens,
		ResponseFormat: &mistral.ResponseFormat{Type: "json_object"},
		Messages: []mistral.Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: BuildPrompt(content, opts)},
		},
	})
	if err != nil {
		return nil, err
	}

	vehicles, doc, warnings, err := ParseResponse(resp.Choices[0].Message.Content)
	if err != nil {
		return nil, err
	}

	tokens := int64(resp.Usage.TotalTokens)
	return &Extraction{
		Vehicles:     vehicles,
		Document:     doc,
		ModelVersion: resp.Model,
		TokensUsed:   tokens,
		CostCents:    tokensToCents(tokens, m.costPerKCents),
		Confidence:   baseConfidence(vehicles, warnings),
		Warnings:     warnings,
	}, nil
}
