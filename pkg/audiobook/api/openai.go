package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"
)

const (
	openAISpeechEndpoint = "/audio/speech"
	defaultOpenAITimeout = 120 * time.Second
)

// OpenAIClient は OpenAI の音声合成APIを呼び出すクライアントです。
type OpenAIClient struct {
	client *openai.Client
}

type openAIOptions struct {
	baseURL    string
	httpClient *http.Client
}

// OpenAIOption は OpenAIClient の設定を変更します。
type OpenAIOption func(*openAIOptions)

// WithOpenAIBaseURL は接続先URLを変更します (プロキシやテスト用)。
func WithOpenAIBaseURL(url string) OpenAIOption {
	return func(o *openAIOptions) {
		if url != "" {
			o.baseURL = url
		}
	}
}

// WithOpenAIHTTPClient は HTTP クライアントを差し替えます。
func WithOpenAIHTTPClient(c *http.Client) OpenAIOption {
	return func(o *openAIOptions) {
		if c != nil {
			o.httpClient = c
		}
	}
}

// NewOpenAIClient は APIキーから OpenAIClient を生成します。
func NewOpenAIClient(apiKey string, opts ...OpenAIOption) *OpenAIClient {
	o := &openAIOptions{httpClient: &http.Client{Timeout: defaultOpenAITimeout}}
	for _, opt := range opts {
		opt(o)
	}

	cfg := openai.DefaultConfig(apiKey)
	if o.baseURL != "" {
		cfg.BaseURL = o.baseURL
	}
	cfg.HTTPClient = o.httpClient

	return &OpenAIClient{client: openai.NewClientWithConfig(cfg)}
}

// Synthesize は /audio/speech を呼び出し、音声データを返します。
func (c *OpenAIClient) Synthesize(ctx context.Context, req SpeechRequest) ([]byte, error) {
	if req.Text == "" {
		return nil, ErrEmptyText
	}

	resp, err := c.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(req.Model),
		Input:          req.Text,
		Voice:          openai.SpeechVoice(req.Voice),
		ResponseFormat: openai.SpeechResponseFormat(req.Format),
	})
	if err != nil {
		return nil, classifyOpenAIError(err)
	}
	defer resp.Close()

	data, err := io.ReadAll(resp)
	if err != nil {
		return nil, &ErrAPINetwork{Endpoint: openAISpeechEndpoint, WrappedErr: fmt.Errorf("応答ボディの読み取り失敗: %w", err)}
	}
	if len(data) == 0 {
		return nil, &ErrAPIResponse{Endpoint: openAISpeechEndpoint, StatusCode: http.StatusOK, Body: "空の音声データ"}
	}

	return data, nil
}

// classifyOpenAIError は go-openai のエラーをこのパッケージのエラー型に変換します。
func classifyOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &ErrAPIResponse{Endpoint: openAISpeechEndpoint, StatusCode: apiErr.HTTPStatusCode, Body: apiErr.Message}
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &ErrAPIResponse{Endpoint: openAISpeechEndpoint, StatusCode: reqErr.HTTPStatusCode, Body: string(reqErr.Body)}
	}

	return &ErrAPINetwork{Endpoint: openAISpeechEndpoint, WrappedErr: err}
}
