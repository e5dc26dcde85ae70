package audiobook

import (
	"errors"
	"fmt"
	"strings"
)

// ----------------------------------------------------------------------
// エラー分類 (errors.Is で判定する)
// ----------------------------------------------------------------------

var (
	// ErrConfig は設定の欠落または不正を示します。
	ErrConfig = errors.New("設定エラー")
	// ErrChunking はチャンク分割の失敗を示します。
	ErrChunking = errors.New("チャンク分割エラー")
	// ErrProvider はチャンク単位のプロバイダ呼び出し失敗を示します。
	ErrProvider = errors.New("プロバイダエラー")
	// ErrRateLimitExceeded はプロバイダ側でレート制限に到達したことを示します。
	// 発生した場合はペース配分の不具合であり、リトライせずに報告します。
	ErrRateLimitExceeded = errors.New("レート制限超過")
	// ErrAssembly は結合対象が空、または不完全であることを示します。
	ErrAssembly = errors.New("音声結合エラー")
)

// ----------------------------------------------------------------------
// 設定エラー
// ----------------------------------------------------------------------

// ErrInvalidConfig は不正な設定値を示します。
type ErrInvalidConfig struct {
	Field   string
	Details string
}

func (e *ErrInvalidConfig) Error() string {
	return fmt.Sprintf("設定値 '%s' が不正です: %s", e.Field, e.Details)
}

func (e *ErrInvalidConfig) Is(target error) bool { return target == ErrConfig }

// ErrUnknownModel は料金表に存在しないモデルIDが指定されたことを示します。
type ErrUnknownModel struct {
	Model string
}

func (e *ErrUnknownModel) Error() string {
	return fmt.Sprintf("料金表に存在しないモデルです: %s", e.Model)
}

func (e *ErrUnknownModel) Is(target error) bool { return target == ErrConfig }

// ----------------------------------------------------------------------
// チャンク分割エラー (chunker.go で利用)
// ----------------------------------------------------------------------

// ErrNoTerminator は文末記号がウィンドウ内に見つからなかったことを示します。
// Strict ポリシーの場合のみ返されます。
type ErrNoTerminator struct {
	Start  int // ウィンドウ開始位置 (文字単位)
	MaxLen int
}

func (e *ErrNoTerminator) Error() string {
	return fmt.Sprintf("位置 %d から %d 文字以内に文末記号が見つかりません", e.Start, e.MaxLen)
}

func (e *ErrNoTerminator) Is(target error) bool { return target == ErrChunking }

// ----------------------------------------------------------------------
// ディスパッチエラー (dispatcher.go で利用)
// ----------------------------------------------------------------------

// ErrProviderCall は特定チャンクの合成リクエストが失敗したことを示します。
type ErrProviderCall struct {
	Index      int
	WrappedErr error
}

func (e *ErrProviderCall) Error() string {
	return fmt.Sprintf("チャンク %d の音声合成に失敗しました: %v", e.Index, e.WrappedErr)
}

func (e *ErrProviderCall) Is(target error) bool { return target == ErrProvider }

func (e *ErrProviderCall) Unwrap() error { return e.WrappedErr }

// ErrRateLimit はプロバイダがレート制限応答を返したことを示します。
type ErrRateLimit struct {
	Index      int
	WrappedErr error
}

func (e *ErrRateLimit) Error() string {
	return fmt.Sprintf("チャンク %d でプロバイダのレート制限に到達しました (ペース配分の不具合): %v", e.Index, e.WrappedErr)
}

func (e *ErrRateLimit) Is(target error) bool { return target == ErrRateLimitExceeded }

func (e *ErrRateLimit) Unwrap() error { return e.WrappedErr }

// ----------------------------------------------------------------------
// 結合エラー (assembler.go で利用)
// ----------------------------------------------------------------------

// ErrEmptyInput は結合すべきセグメントが一つもないことを示します。
type ErrEmptyInput struct{}

func (e *ErrEmptyInput) Error() string {
	return "結合対象の音声セグメントがありません"
}

func (e *ErrEmptyInput) Is(target error) bool { return target == ErrAssembly }

// ErrIncomplete は失敗したセグメント、または既存ファイルで代替できない
// スキップ済みセグメントが残っていることを示します。
type ErrIncomplete struct {
	FailedIndices  []int
	MissingIndices []int
}

func (e *ErrIncomplete) Error() string {
	return fmt.Sprintf("音声セグメントが不完全です (失敗: %v, 代替ファイルなし: %v)", e.FailedIndices, e.MissingIndices)
}

func (e *ErrIncomplete) Is(target error) bool { return target == ErrAssembly }

// ----------------------------------------------------------------------
// バッチ処理エラー (engine.go で利用)
// ----------------------------------------------------------------------

// ErrSynthesisBatch は音声合成バッチ全体で発生した複数のエラーをまとめて返すエラー型です。
// 個々のチャンクのエラーは Unwrap で辿れるため、errors.Is(err, ErrRateLimitExceeded) も判定できます。
type ErrSynthesisBatch struct {
	FailedIndices []int
	Details       []string
	Errs          []error
}

func (e *ErrSynthesisBatch) Error() string {
	return fmt.Sprintf("音声合成バッチ処理中に %d 件のエラーが発生しました (failed at indices %v):\n- %s",
		len(e.Details), e.FailedIndices, strings.Join(e.Details, "\n- "))
}

func (e *ErrSynthesisBatch) Is(target error) bool { return target == ErrProvider }

func (e *ErrSynthesisBatch) Unwrap() []error { return e.Errs }
