// Package openai implements Chat (spec.md §4.6) over the OpenAI chat
// completions API. Grounded on internal/llm/openai/client.go's SDK setup
// (sdk.NewClient with option.WithAPIKey/WithBaseURL) and schema.go's
// sdk.SystemMessage/sdk.UserMessage message adaptation, trimmed from the
// teacher's multi-turn/tool-calling/streaming surface to the single
// one-shot completion shape capabilities.ChatRequest needs.
package openai

import (
	"context"
	"net/http"
	"strings"
	"time"

	sdk "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"github.com/vertigo15/docengine/internal/capabilities"
	"github.com/vertigo15/docengine/internal/observability"
)

// Client implements capabilities.Chat against one OpenAI (or
// OpenAI-compatible) chat model.
type Client struct {
	sdk   sdk.Client
	model string
}

// New builds a Client; baseURL lets this point at a self-hosted
// OpenAI-compatible server the way client.go's BaseURL field does.
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
	return &Client{sdk: sdk.NewClient(opts...), model: strings.TrimSpace(model)}
}

func (c *Client) Complete(ctx context.Context, req capabilities.ChatRequest) (string, error) {
	log := observability.LoggerWithTrace(ctx)

	var messages []sdk.ChatCompletionMessageParamUnion
	if req.System != "" {
		messages = append(messages, sdk.SystemMessage(req.System))
	}
	messages = append(messages, sdk.UserMessage(req.User))

	params := sdk.ChatCompletionNewParams{
		Model:    sdk.ChatModel(c.model),
		Messages: messages,
	}

	start := time.Now()
	comp, err := c.sdk.Chat.Completions.New(ctx, params)
	dur := time.Since(start)
	if err != nil {
		log.Error().Err(err).Str("model", c.model).Dur("duration", dur).Msg("openai_chat_error")
		return "", err
	}
	log.Debug().Str("model", c.model).Dur("duration", dur).Msg("openai_chat_ok")

	if len(comp.Choices) == 0 {
		return "", nil
	}
	return comp.Choices[0].Message.Content, nil
}

var _ capabilities.Chat = (*Client)(nil)
