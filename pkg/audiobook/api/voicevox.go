package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/shouni/go-http-kit/pkg/httpkit"
	"golang.org/x/time/rate"
)

const (
	// WavTotalHeaderSize は標準的な WAV ヘッダーのサイズです。これより短い応答は不正とみなします。
	WavTotalHeaderSize = 44

	DefaultVoicevoxAPIURL            = "http://localhost:50021"
	DefaultVoicevoxRequestsPerSecond = 2.0
)

// ----------------------------------------------------------------------
// クライアント構造体とコンストラクタ
// ----------------------------------------------------------------------

// VoicevoxClient はローカルの VOICEVOX エンジンへのAPIリクエストを処理するクライアントです。
// httpkit.Client を利用してリトライ機能を内包し、rate.Limiter でエンジンへの負荷を抑えます。
type VoicevoxClient struct {
	client  *httpkit.Client // リトライ機能付きHTTPクライアント
	apiURL  string
	limiter *rate.Limiter

	speakersMu sync.Mutex
	speakers   *SpeakerData

	styleIDCache      map[string]int
	styleIDCacheMutex sync.RWMutex
}

// NewVoicevoxClient は新しい VoicevoxClient インスタンスを初期化します。
// requestsPerSecond が 0 以下の場合は既定値を使用します。
func NewVoicevoxClient(apiURL string, timeout time.Duration, requestsPerSecond float64) *VoicevoxClient {
	if apiURL == "" {
		apiURL = DefaultVoicevoxAPIURL
	}
	if requestsPerSecond <= 0 {
		requestsPerSecond = DefaultVoicevoxRequestsPerSecond
	}

	return &VoicevoxClient{
		client:       httpkit.New(timeout),
		apiURL:       apiURL,
		limiter:      rate.NewLimiter(rate.Limit(requestsPerSecond), 1),
		styleIDCache: make(map[string]int),
	}
}

// ----------------------------------------------------------------------
// ヘルパー: API URLの構築
// ----------------------------------------------------------------------

// buildURL はベースURLとエンドポイントを結合し、エラー処理を行います。
func (c *VoicevoxClient) buildURL(endpoint string) (*url.URL, error) {
	u, err := url.Parse(c.apiURL)
	if err != nil {
		return nil, &ErrAPINetwork{Endpoint: endpoint, WrappedErr: fmt.Errorf("API URLのパース失敗: %w", err)}
	}

	u.Path, err = url.JoinPath(u.Path, endpoint)
	if err != nil {
		return nil, &ErrAPINetwork{Endpoint: endpoint, WrappedErr: fmt.Errorf("エンドポイント結合失敗: %w", err)}
	}

	return u, nil
}

// ----------------------------------------------------------------------
// 公開API
// ----------------------------------------------------------------------

// Synthesize は音声IDをスタイルIDに解決し、/audio_query と /synthesis を順に呼び出して WAV データを返します。
// VOICEVOX は WAV のみを返すため、req.Format と req.Model は使用しません。
func (c *VoicevoxClient) Synthesize(ctx context.Context, req SpeechRequest) ([]byte, error) {
	if req.Text == "" {
		return nil, ErrEmptyText
	}

	// 1. 音声ID ("話者/スタイル"、話者名、数値) を Style ID に解決
	styleID, err := c.resolveStyleID(ctx, req.Voice)
	if err != nil {
		return nil, err
	}

	// 2. 読み上げテキストから合成用クエリを生成
	queryBody, err := c.runAudioQuery(ctx, req.Text, styleID)
	if err != nil {
		return nil, fmt.Errorf("チャンク %d のオーディオクエリ失敗: %w", req.Index, err)
	}

	// 3. クエリをそのまま渡して WAV を合成
	wavData, err := c.runSynthesis(ctx, queryBody, styleID)
	if err != nil {
		return nil, fmt.Errorf("チャンク %d の音声合成失敗: %w", req.Index, err)
	}

	return wavData, nil
}

// GetSpeakers は /speakers APIを呼び出し、全てのスピーカー情報（JSONバイトスライス）を返します。
func (c *VoicevoxClient) GetSpeakers(ctx context.Context) ([]byte, error) {
	const endpoint = "/speakers"

	u, err := c.buildURL(endpoint)
	if err != nil {
		return nil, err
	}

	bodyBytes, err := c.client.FetchBytes(ctx, u.String())
	if err != nil {
		return nil, &ErrAPINetwork{Endpoint: endpoint, WrappedErr: err}
	}

	return bodyBytes, nil
}

// ----------------------------------------------------------------------
// API呼び出しロジック
// ----------------------------------------------------------------------

// post はエンジン単位のレート制限を待ってから endpoint へ POST し、応答ボディを返します。
// リトライ・ステータスチェック・ボディ読み取りは httpkit.Client.DoRequest に任せます。
func (c *VoicevoxClient) post(ctx context.Context, endpoint string, params url.Values, body []byte, header http.Header) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	u, err := c.buildURL(endpoint)
	if err != nil {
		return nil, err
	}
	u.RawQuery = params.Encode()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), reader)
	if err != nil {
		return nil, &ErrAPINetwork{Endpoint: endpoint, WrappedErr: fmt.Errorf("リクエスト構築失敗: %w", err)}
	}
	for k, v := range header {
		req.Header[k] = v
	}

	respBody, err := c.client.DoRequest(req)
	if err != nil {
		return nil, &ErrAPINetwork{Endpoint: endpoint, WrappedErr: err}
	}
	return respBody, nil
}

// runAudioQuery は /audio_query APIを呼び出し、音声合成のためのクエリJSONを返します。
// クエリはそのまま /synthesis に渡すため、構造の検証だけを行い生のバイト列を返します。
func (c *VoicevoxClient) runAudioQuery(ctx context.Context, text string, styleID int) ([]byte, error) {
	const endpoint = "/audio_query"

	bodyBytes, err := c.post(ctx, endpoint, url.Values{
		"text":    {text},
		"speaker": {strconv.Itoa(styleID)},
	}, nil, nil)
	if err != nil {
		return nil, err
	}

	var aqr AudioQueryResponse
	if err := sonic.Unmarshal(bodyBytes, &aqr); err != nil {
		return nil, &ErrInvalidJSON{Details: fmt.Sprintf("%s応答JSONのデコード", endpoint), WrappedErr: err}
	}
	return bodyBytes, nil
}

// runSynthesis は /synthesis APIを呼び出し、WAV形式の音声データを返します。
func (c *VoicevoxClient) runSynthesis(ctx context.Context, queryBody []byte, styleID int) ([]byte, error) {
	const endpoint = "/synthesis"

	header := http.Header{}
	header.Set("Content-Type", "application/json")
	header.Set("Accept", "audio/wav")

	wavData, err := c.post(ctx, endpoint, url.Values{"speaker": {strconv.Itoa(styleID)}}, queryBody, header)
	if err != nil {
		return nil, err
	}

	// ヘッダーにも満たない応答は 200 でもエンジン側の異常として扱う
	if len(wavData) < WavTotalHeaderSize {
		return nil, &ErrAPIResponse{
			Endpoint:   endpoint,
			StatusCode: http.StatusOK,
			Body:       fmt.Sprintf("WAVデータのサイズが短すぎます (%dバイト)", len(wavData)),
		}
	}
	return wavData, nil
}

// ----------------------------------------------------------------------
// スタイルIDの解決
// ----------------------------------------------------------------------

// resolveStyleID は音声IDから Style ID を検索し、キャッシュを使用/更新します。
func (c *VoicevoxClient) resolveStyleID(ctx context.Context, voice string) (int, error) {
	// 数値はそのまま Style ID として扱う
	if id, err := strconv.Atoi(voice); err == nil {
		return id, nil
	}

	c.styleIDCacheMutex.RLock()
	if id, ok := c.styleIDCache[voice]; ok {
		c.styleIDCacheMutex.RUnlock()
		return id, nil
	}
	c.styleIDCacheMutex.RUnlock()

	speakers, err := c.loadSpeakers(ctx)
	if err != nil {
		return 0, err
	}

	id, ok := speakers.StyleID(voice)
	if !ok {
		return 0, &ErrUnknownVoice{Voice: voice}
	}

	c.styleIDCacheMutex.Lock()
	c.styleIDCache[voice] = id
	c.styleIDCacheMutex.Unlock()

	return id, nil
}

// loadSpeakers は話者データを初回のみロードします。失敗した場合は次回に再試行します。
func (c *VoicevoxClient) loadSpeakers(ctx context.Context) (*SpeakerData, error) {
	c.speakersMu.Lock()
	defer c.speakersMu.Unlock()

	if c.speakers != nil {
		return c.speakers, nil
	}

	data, err := LoadSpeakers(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("話者データのロードに失敗しました: %w", err)
	}
	c.speakers = data
	return data, nil
}
