// Package vision implements VisionDescriber (spec.md §4.6) via the same
// OpenAI multimodal chat completions endpoint the Chat adapters use.
// Grounded on internal/llm/openai/client.go's ChatWithImageAttachment:
// image bytes become a data: URL placed in an
// OfImageURL content part alongside a short captioning instruction.
package vision

import (
	"context"
	"encoding/base64"
	"net/http"
	"strings"

	sdk "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"github.com/vertigo15/docengine/internal/capabilities"
	"github.com/vertigo15/docengine/internal/observability"
)

const defaultPrompt = "Describe this image in one or two sentences for use as alt text in a document."

// Client implements capabilities.VisionDescriber against one OpenAI
// multimodal chat model.
type Client struct {
	sdk    sdk.Client
	model  string
	prompt string
}

// New builds a Client; mimeType is supplied per call to Describe via the
// byte sniff performed there.
func New(apiKey, baseURL, model, prompt string, httpClient *http.Client) *Client {
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
	if prompt == "" {
		prompt = defaultPrompt
	}
	return &Client{sdk: sdk.NewClient(opts...), model: strings.TrimSpace(model), prompt: prompt}
}

// Describe captions one image by embedding it as a base64 data URL in a
// multimodal user message, following ChatWithImageAttachment's content-part
// construction.
func (c *Client) Describe(ctx context.Context, imageBytes []byte) (string, error) {
	log := observability.LoggerWithTrace(ctx)

	dataURL := "data:" + sniffMimeType(imageBytes) + ";base64," + base64.StdEncoding.EncodeToString(imageBytes)
	userMsg := sdk.ChatCompletionUserMessageParam{
		Content: sdk.ChatCompletionUserMessageParamContentUnion{
			OfArrayOfContentParts: []sdk.ChatCompletionContentPartUnionParam{
				{OfText: &sdk.ChatCompletionContentPartTextParam{Text: c.prompt}},
				{OfImageURL: &sdk.ChatCompletionContentPartImageParam{
					ImageURL: sdk.ChatCompletionContentPartImageImageURLParam{URL: dataURL},
				}},
			},
		},
	}
	params := sdk.ChatCompletionNewParams{
		Model:    sdk.ChatModel(c.model),
		Messages: []sdk.ChatCompletionMessageParamUnion{{OfUser: &userMsg}},
	}

	comp, err := c.sdk.Chat.Completions.New(ctx, params)
	if err != nil {
		log.Error().Err(err).Str("model", c.model).Msg("vision_describe_error")
		return "", err
	}
	if len(comp.Choices) == 0 {
		return "", nil
	}
	return comp.Choices[0].Message.Content, nil
}

// sniffMimeType recognizes PNG, JPEG, and GIF signatures; it defaults to
// PNG when unrecognized.
func sniffMimeType(data []byte) string {
	switch {
	case len(data) >= 8 && string(data[1:4]) == "PNG":
		return "image/png"
	case len(data) >= 3 && data[0] == 0xFF && data[1] == 0xD8:
		return "image/jpeg"
	case len(data) >= 6 && (string(data[:6]) == "GIF87a" || string(data[:6]) == "GIF89a"):
		return "image/gif"
	default:
		return "image/png"
	}
}

var _ capabilities.VisionDescriber = (*Client)(nil)
