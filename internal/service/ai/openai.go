package ai

import (
	"context"
	"errors"
	"time"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.uber.org/zap"

	"github.com/ifuryst/quillflow/internal/config"
	"github.com/ifuryst/quillflow/pkg/util"
)

// OpenAIGenerator implements Generator with chat completions and structured output.
type OpenAIGenerator struct {
	client      openai.Client
	model       string
	temperature float64
	logger      *zap.Logger
}

func NewOpenAIGenerator(cfg *config.AIConfig, logger *zap.Logger) (*OpenAIGenerator, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai api key missing; provide ai.api_key")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithRequestTimeout(util.ParseDuration(cfg.Timeout, 60*time.Second)),
		// A failed call is retried by the next scheduled tick, not here.
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &OpenAIGenerator{
		client:      openai.NewClient(opts...),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		logger:      logger,
	}, nil
}

func (g *OpenAIGenerator) Generate(ctx context.Context, req Request) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(g.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(req.System),
			openai.UserMessage(req.Prompt),
		},
	}
	if g.temperature > 0 {
		params.Temperature = openai.Float(g.temperature)
	}

	if req.Schema != nil {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   string(req.Operation),
					Schema: req.Schema,
					Strict: openai.Bool(true),
				},
			},
		}
	} else {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &openai.ResponseFormatJSONObjectParam{},
		}
	}

	start := time.Now()
	resp, err := g.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}

	g.logger.Debug("Model call finished",
		zap.String("operation", string(req.Operation)),
		zap.Duration("duration", time.Since(start)),
		zap.Int64("total_tokens", resp.Usage.TotalTokens))

	return resp.Choices[0].Message.Content, nil
}
