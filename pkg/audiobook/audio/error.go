package audio

import "fmt"

// ErrInvalidWAVHeader はWAVデータが短すぎる、またはヘッダーの記載とデータ長が一致しないなど、
// ヘッダーに問題があることを示します。
type ErrInvalidWAVHeader struct {
	Index   int // エラーが発生したWAVセグメントのインデックス
	Details string
}

func (e *ErrInvalidWAVHeader) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("WAVデータ #%d のヘッダーが無効です: %s", e.Index, e.Details)
	}
	return fmt.Sprintf("WAVデータ結合時のエラー: %s", e.Details)
}

// ErrFormatMismatch は結合対象の WAV フォーマット (fmt チャンク) が一致しないことを示します。
type ErrFormatMismatch struct {
	Index int
}

func (e *ErrFormatMismatch) Error() string {
	return fmt.Sprintf("WAVデータ #%d のフォーマットが先頭セグメントと一致しません", e.Index)
}

// ErrUnsupportedFormat は単純な結合では正しいファイルにならないフォーマットを示します。
type ErrUnsupportedFormat struct {
	Format string
}

func (e *ErrUnsupportedFormat) Error() string {
	return fmt.Sprintf("フォーマット '%s' のセグメント結合には対応していません", e.Format)
}
