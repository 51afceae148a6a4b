package generation

import (
	"context"
	"crypto/tls"
	"errors"
	"net/http"
	"time"

	cohere "github.com/cohere-ai/cohere-go/v2"
	cohereclient "github.com/cohere-ai/cohere-go/v2/client"
	"github.com/cohere-ai/cohere-go/v2/core"
)

// CohereText is a TextBackend backed by the Cohere chat API. The Cohere
// token is fixed at construction; the per-call generation key is unused.
type CohereText struct {
	client *cohereclient.Client
	model  string
}

// NewCohereText creates a Cohere text backend
func NewCohereText(token, model string) *CohereText {
	// Force HTTP/1.1; the Cohere edge intermittently resets HTTP/2 streams
	httpClient := &http.Client{
		Timeout: 60 * time.Second,
		Transport: &http.Transport{
			TLSNextProto:      make(map[string]func(authority string, c *tls.Conn) http.RoundTripper),
			ForceAttemptHTTP2: false,
		},
	}
	client := cohereclient.NewClient(
		cohereclient.WithToken(token),
		cohereclient.WithHTTPClient(httpClient),
	)
	return &CohereText{client: client, model: model}
}

func (c *CohereText) ModelName() string { return c.model }

func (c *CohereText) Text(ctx context.Context, _ string, req TextRequest) (string, error) {
	chatReq := &cohere.ChatRequest{
		Message: req.Prompt,
		Model:   cohere.String(c.model),
	}
	if req.System != "" {
		chatReq.Preamble = cohere.String(req.System)
	}

	resp, err := c.client.Chat(ctx, chatReq)
	if err != nil {
		return "", cohereError(err)
	}
	if resp == nil {
		return "", nil
	}
	return resp.Text, nil
}

// cohereError maps SDK errors onto ProviderError so rate limits are retried
func cohereError(err error) error {
	var apiErr *core.APIError
	if errors.As(err, &apiErr) {
		return &ProviderError{
			Op:         "cohere chat",
			StatusCode: apiErr.StatusCode,
			Message:    err.Error(),
		}
	}
	return err
}
