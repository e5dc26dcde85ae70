package api

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrRateLimited はプロバイダが 429 を返したことを示します。
	ErrRateLimited = errors.New("プロバイダのレート制限に到達しました")
	// ErrUnauthorized は認証エラー (401/403) を示します。
	ErrUnauthorized = errors.New("認証に失敗しました")
	// ErrInvalidInput は入力 (テキスト、音声ID、モデル) が拒否されたことを示します。
	ErrInvalidInput = errors.New("入力が不正です")
	// ErrEmptyText は空のテキストで合成しようとしたことを示します。
	ErrEmptyText = errors.New("合成するテキストが空です")
)

// ErrAPINetwork はAPI呼び出しにおける通信エラーやリトライ後の最終失敗を示すカスタムエラー型です。
type ErrAPINetwork struct {
	Endpoint   string
	WrappedErr error
}

func (e *ErrAPINetwork) Error() string {
	return fmt.Sprintf("API通信エラー (%s): %v", e.Endpoint, e.WrappedErr)
}

func (e *ErrAPINetwork) Unwrap() error { return e.WrappedErr }

// ErrAPIResponse はAPIが 4xx や 5xx などの異常なステータスコードを返したことを示します。
type ErrAPIResponse struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *ErrAPIResponse) Error() string {
	// 応答ボディが長すぎる場合は切り詰める
	bodyDisplay := e.Body
	if len(bodyDisplay) > 100 {
		bodyDisplay = bodyDisplay[:100] + "..."
	}
	return fmt.Sprintf("API応答エラー (%s)。ステータスコード %d: %s", e.Endpoint, e.StatusCode, bodyDisplay)
}

// Is はステータスコードを分類用の sentinel に対応付けます。
func (e *ErrAPIResponse) Is(target error) bool {
	switch target {
	case ErrRateLimited:
		return e.StatusCode == http.StatusTooManyRequests
	case ErrUnauthorized:
		return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
	case ErrInvalidInput:
		return e.StatusCode == http.StatusBadRequest || e.StatusCode == http.StatusUnprocessableEntity
	}
	return false
}

// ErrInvalidJSON はAPI応答やデータが期待されるJSON形式でなかったことを示します。
type ErrInvalidJSON struct {
	Details    string
	WrappedErr error
}

func (e *ErrInvalidJSON) Error() string {
	return fmt.Sprintf("不正なJSONデータ: %s (詳細: %v)", e.Details, e.WrappedErr)
}

func (e *ErrInvalidJSON) Unwrap() error { return e.WrappedErr }

// ErrUnknownVoice は指定された音声IDがエンジンに存在しないことを示します。
type ErrUnknownVoice struct {
	Voice string
}

func (e *ErrUnknownVoice) Error() string {
	return fmt.Sprintf("音声 '%s' に対応するスタイルが見つかりません", e.Voice)
}

func (e *ErrUnknownVoice) Is(target error) bool { return target == ErrInvalidInput }
