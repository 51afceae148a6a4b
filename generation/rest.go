package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"autopilot/types"
)

const (
	apiVersion   = "v1beta"
	apiKeyHeader = "x-goog-api-key"
	defaultMime  = "image/png"
	videoMime    = "video/mp4"
)

// RESTProvider talks to a Gemini compatible REST API for text, grounded
// search, images and long running video operations.
type RESTProvider struct {
	baseURL    string
	httpClient *http.Client
}

// NewRESTProvider creates a provider rooted at baseURL
func NewRESTProvider(baseURL string, httpClient *http.Client) *RESTProvider {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 2 * time.Minute}
	}
	return &RESTProvider{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

type part struct {
	Text string `json:"text,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generateContentRequest struct {
	Contents          []content        `json:"contents"`
	SystemInstruction *content         `json:"systemInstruction,omitempty"`
	Tools             []map[string]any `json:"tools,omitempty"`
}

type generateContentResponse struct {
	Candidates []struct {
		Content           content `json:"content"`
		GroundingMetadata *struct {
			GroundingChunks []struct {
				Web *struct {
					URI   string `json:"uri"`
					Title string `json:"title"`
				} `json:"web"`
			} `json:"groundingChunks"`
		} `json:"groundingMetadata"`
	} `json:"candidates"`
}

func (r *generateContentResponse) text() string {
	if len(r.Candidates) == 0 {
		return ""
	}
	var b strings.Builder
	for _, p := range r.Candidates[0].Content.Parts {
		b.WriteString(p.Text)
	}
	return strings.TrimSpace(b.String())
}

type inlineImage struct {
	BytesBase64Encoded []byte `json:"bytesBase64Encoded"`
	MimeType           string `json:"mimeType,omitempty"`
}

type referenceImage struct {
	Image         inlineImage `json:"image"`
	ReferenceType string      `json:"referenceType"`
}

type predictInstance struct {
	Prompt          string           `json:"prompt"`
	Image           *inlineImage     `json:"image,omitempty"`
	ReferenceImages []referenceImage `json:"referenceImages,omitempty"`
}

type predictRequest struct {
	Instances  []predictInstance `json:"instances"`
	Parameters map[string]any    `json:"parameters,omitempty"`
}

type predictResponse struct {
	Predictions []inlineImage `json:"predictions"`
}

type operationResponse struct {
	Name     string `json:"name"`
	Done     bool   `json:"done"`
	Response *struct {
		GenerateVideoResponse struct {
			GeneratedSamples []struct {
				Video struct {
					URI string `json:"uri"`
				} `json:"video"`
			} `json:"generatedSamples"`
		} `json:"generateVideoResponse"`
	} `json:"response"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// Text runs a plain generateContent call
func (p *RESTProvider) Text(ctx context.Context, apiKey string, req TextRequest) (string, error) {
	body := generateContentRequest{
		Contents: []content{{Role: "user", Parts: []part{{Text: req.Prompt}}}},
	}
	if req.System != "" {
		body.SystemInstruction = &content{Parts: []part{{Text: req.System}}}
	}

	var resp generateContentResponse
	if err := p.doJSONRequest(ctx, "text", apiKey, http.MethodPost, modelPath(req.Model, "generateContent"), body, &resp); err != nil {
		return "", err
	}
	return resp.text(), nil
}

// Trends runs generateContent with the search grounding tool enabled and
// returns the grounding chunk URLs as sources.
func (p *RESTProvider) Trends(ctx context.Context, apiKey string, req TrendRequest) (*TrendResult, error) {
	body := generateContentRequest{
		Contents: []content{{Role: "user", Parts: []part{{Text: trendPrompt(req.Niche)}}}},
		Tools:    []map[string]any{{"google_search": map[string]any{}}},
	}

	var resp generateContentResponse
	if err := p.doJSONRequest(ctx, "trends", apiKey, http.MethodPost, modelPath(req.Model, "generateContent"), body, &resp); err != nil {
		return nil, err
	}

	result := &TrendResult{Text: resp.text()}
	if len(resp.Candidates) > 0 && resp.Candidates[0].GroundingMetadata != nil {
		seen := make(map[string]bool)
		for _, chunk := range resp.Candidates[0].GroundingMetadata.GroundingChunks {
			if chunk.Web == nil || chunk.Web.URI == "" || seen[chunk.Web.URI] {
				continue
			}
			seen[chunk.Web.URI] = true
			result.SourceURLs = append(result.SourceURLs, chunk.Web.URI)
		}
	}
	return result, nil
}

// Image runs an Imagen predict call and returns the first image
func (p *RESTProvider) Image(ctx context.Context, apiKey string, req ImageRequest) (*types.Media, error) {
	params := map[string]any{"sampleCount": 1}
	if req.AspectRatio != "" {
		params["aspectRatio"] = req.AspectRatio
	}
	body := predictRequest{
		Instances:  []predictInstance{{Prompt: req.Prompt}},
		Parameters: params,
	}

	var resp predictResponse
	if err := p.doJSONRequest(ctx, "image", apiKey, http.MethodPost, modelPath(req.Model, "predict"), body, &resp); err != nil {
		return nil, err
	}
	if len(resp.Predictions) == 0 || len(resp.Predictions[0].BytesBase64Encoded) == 0 {
		return nil, nil
	}
	pred := resp.Predictions[0]
	mime := pred.MimeType
	if mime == "" {
		mime = defaultMime
	}
	return &types.Media{MimeType: mime, Data: pred.BytesBase64Encoded}, nil
}

// StartVideo starts a long running video generation. A single reference is
// sent as the first frame; several are sent as asset references.
func (p *RESTProvider) StartVideo(ctx context.Context, apiKey string, req VideoRequest) (*VideoOperation, error) {
	instance := predictInstance{Prompt: req.Prompt}
	switch len(req.References) {
	case 0:
	case 1:
		img, err := toInlineImage(req.References[0])
		if err != nil {
			return nil, err
		}
		instance.Image = &img
	default:
		for _, ref := range req.References {
			img, err := toInlineImage(ref)
			if err != nil {
				return nil, err
			}
			instance.ReferenceImages = append(instance.ReferenceImages, referenceImage{Image: img, ReferenceType: "asset"})
		}
	}

	params := map[string]any{}
	if req.AspectRatio != "" {
		params["aspectRatio"] = req.AspectRatio
	}
	if req.Resolution != "" {
		params["resolution"] = req.Resolution
	}

	var resp operationResponse
	body := predictRequest{Instances: []predictInstance{instance}, Parameters: params}
	if err := p.doJSONRequest(ctx, "video", apiKey, http.MethodPost, modelPath(req.Model, "predictLongRunning"), body, &resp); err != nil {
		return nil, err
	}
	return p.toOperation(ctx, apiKey, &resp)
}

// PollVideo refreshes op and downloads the clip once it is done
func (p *RESTProvider) PollVideo(ctx context.Context, apiKey string, op *VideoOperation) (*VideoOperation, error) {
	if op == nil || op.Name == "" {
		return nil, fmt.Errorf("%w: video operation has no name", ErrInvalidRequest)
	}
	if op.Done {
		return op, nil
	}

	var resp operationResponse
	path := "/" + apiVersion + "/" + strings.TrimPrefix(op.Name, "/")
	if err := p.doJSONRequest(ctx, "video poll", apiKey, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Name == "" {
		resp.Name = op.Name
	}
	return p.toOperation(ctx, apiKey, &resp)
}

func (p *RESTProvider) toOperation(ctx context.Context, apiKey string, resp *operationResponse) (*VideoOperation, error) {
	op := &VideoOperation{Name: resp.Name, Done: resp.Done}
	if !resp.Done {
		return op, nil
	}
	if resp.Error != nil {
		return nil, &ProviderError{
			Op:         "video",
			StatusCode: resp.Error.Code,
			Status:     resp.Error.Status,
			Message:    resp.Error.Message,
		}
	}
	if resp.Response == nil || len(resp.Response.GenerateVideoResponse.GeneratedSamples) == 0 {
		return nil, fmt.Errorf("video operation %s: %w", resp.Name, ErrEmptyResponse)
	}

	uri := resp.Response.GenerateVideoResponse.GeneratedSamples[0].Video.URI
	data, err := p.download(ctx, apiKey, uri)
	if err != nil {
		return nil, err
	}
	op.Video = &types.Media{MimeType: videoMime, Data: data, URI: uri}
	return op, nil
}

// download fetches a generated file; the provider requires the key on it too
func (p *RESTProvider) download(ctx context.Context, apiKey, uri string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create download request: %w", err)
	}
	req.Header.Set(apiKeyHeader, apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download video: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read video: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, newProviderError("video download", resp.StatusCode, data)
	}
	return data, nil
}

// doJSONRequest performs a JSON request against the provider. Non-2xx
// responses are returned as *ProviderError with the raw body attached.
func (p *RESTProvider) doJSONRequest(ctx context.Context, op, apiKey, method, path string, payload, result any) error {
	url := p.baseURL + path

	var body io.Reader
	if payload != nil {
		jsonData, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(apiKeyHeader, apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return newProviderError(op, resp.StatusCode, bodyBytes)
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

func modelPath(model, method string) string {
	return fmt.Sprintf("/%s/models/%s:%s", apiVersion, strings.TrimPrefix(model, "models/"), method)
}

func toInlineImage(m *types.Media) (inlineImage, error) {
	if m == nil || len(m.Data) == 0 {
		return inlineImage{}, fmt.Errorf("%w: reference image must carry inline data", ErrInvalidRequest)
	}
	mime := m.MimeType
	if mime == "" {
		mime = defaultMime
	}
	return inlineImage{BytesBase64Encoded: m.Data, MimeType: mime}, nil
}
