// Package anthropic implements Chat (spec.md §4.6) over the Anthropic
// Messages API. Grounded on internal/llm/anthropic/client.go's SDK setup
// (option.WithAPIKey/WithBaseURL/WithHTTPClient, model default,
// observability.LoggerWithTrace timing log), trimmed from the teacher's
// multi-turn/tool/thinking message adaptation to the single
// system+user/one-shot-completion shape capabilities.ChatRequest needs.
package anthropic

import (
	"context"
	"net/http"
	"strings"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/vertigo15/docengine/internal/capabilities"
	"github.com/vertigo15/docengine/internal/observability"
)

const defaultMaxTokens int64 = 1024

// Client implements capabilities.Chat against one Anthropic model.
type Client struct {
	sdk   sdk.Client
	model string
}

// New builds a Client; apiKey/baseURL follow the teacher's
// option.WithAPIKey/WithBaseURL convention, model defaults to Claude 3.7
// Sonnet when empty.
func New(apiKey, baseURL, model string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	opts := []option.RequestOption{
		option.WithAPIKey(strings.TrimSpace(apiKey)),
		option.WithHTTPClient(httpClient),
	}
	if base := strings.TrimSpace(baseURL); base != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimSuffix(base, "/")))
	}
	if model = strings.TrimSpace(model); model == "" {
		model = string(sdk.ModelClaude3_7SonnetLatest)
	}
	return &Client{sdk: sdk.NewClient(opts...), model: model}
}

func (c *Client) Complete(ctx context.Context, req capabilities.ChatRequest) (string, error) {
	log := observability.LoggerWithTrace(ctx)

	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	params := sdk.MessageNewParams{
		Model:     sdk.Model(c.model),
		MaxTokens: maxTokens,
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(req.User)),
		},
	}
	if req.System != "" {
		params.System = []sdk.TextBlockParam{{Text: req.System}}
	}

	start := time.Now()
	resp, err := c.sdk.Messages.New(ctx, params)
	dur := time.Since(start)
	if err != nil {
		log.Error().Err(err).Str("model", c.model).Dur("duration", dur).Msg("anthropic_chat_error")
		return "", err
	}
	log.Debug().Str("model", c.model).Dur("duration", dur).Msg("anthropic_chat_ok")

	var sb strings.Builder
	for _, block := range resp.Content {
		if tb, ok := block.AsAny().(sdk.TextBlock); ok {
			sb.WriteString(tb.Text)
		}
	}
	return sb.String(), nil
}

var _ capabilities.Chat = (*Client)(nil)
