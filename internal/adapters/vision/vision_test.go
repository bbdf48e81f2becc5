package vision

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

var onePixelPNG = []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}

func TestDescribe_SendsDataURLAndReturnsCaption(t *testing.T) {
	var gotContent []any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		msgs, _ := payload["messages"].([]any)
		require.NotEmpty(t, msgs)
		first, _ := msgs[0].(map[string]any)
		gotContent, _ = first["content"].([]any)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"a small image"}}]}`))
	}))
	t.Cleanup(srv.Close)

	c := New("k", srv.URL, "gpt-vision", "", srv.Client())
	out, err := c.Describe(context.Background(), onePixelPNG)
	require.NoError(t, err)
	require.Equal(t, "a small image", out)

	require.Len(t, gotContent, 2)
	imagePart, _ := gotContent[1].(map[string]any)
	imageURL, _ := imagePart["image_url"].(map[string]any)
	url, _ := imageURL["url"].(string)
	require.Contains(t, url, "data:image/png;base64,")
	require.Contains(t, url, base64.StdEncoding.EncodeToString(onePixelPNG))
}

func TestSniffMimeType(t *testing.T) {
	require.Equal(t, "image/png", sniffMimeType(onePixelPNG))
	require.Equal(t, "image/jpeg", sniffMimeType([]byte{0xFF, 0xD8, 0xFF}))
	require.Equal(t, "image/gif", sniffMimeType([]byte("GIF89a...")))
	require.Equal(t, "image/png", sniffMimeType([]byte("not an image")))
}
