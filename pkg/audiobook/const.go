package audiobook

import (
	"time"

	"github.com/shopspring/decimal"
)

// ----------------------------------------------------------------------
// チャンク分割定数
// ----------------------------------------------------------------------

const (
	// DefaultChunkSize は1リクエストあたりの最大文字数です (OpenAI TTS の入力上限)。
	DefaultChunkSize = 4096
	// DefaultTerminators は文末として扱う文字です。
	DefaultTerminators = ".?!"
	// DefaultDisclaimer は本文の先頭に付与する注意書きです。
	DefaultDisclaimer = "Note: This audio recording was generated using an AI voice provided by OpenAI. \n"
)

// ----------------------------------------------------------------------
// レート制限定数
// ----------------------------------------------------------------------

const (
	DefaultMaxRequestsPerMinute = 50
	DefaultRateLimitWindow      = 60 * time.Second
	// DefaultRateLimitMargin はウィンドウ満了後に追加で待機する安全マージンです。
	DefaultRateLimitMargin = 5 * time.Second
	DefaultMaxParallel     = 1
)

// ----------------------------------------------------------------------
// 料金・出力定数
// ----------------------------------------------------------------------

const (
	DefaultModel  = "tts-1"
	DefaultVoice  = "onyx"
	DefaultFormat = "mp3"
	// DefaultUnitSize は課金単位あたりの文字数です。
	DefaultUnitSize = 1000

	// segmentDirName はチャンク単位の中間ファイルを置くサブディレクトリ名です。
	segmentDirName = "segments"
	// SampleTag はサンプル生成時にファイル名へ付与するタグです。
	SampleTag = "sample"

	// サンプル生成時の最小文字数
	minSampleSize     = 5
	DefaultSampleSize = 1000
)

// PriceTable はモデルIDから課金単位あたりの料金 (USD) へのマッピングです。
type PriceTable map[string]decimal.Decimal

// DefaultPriceTable は各モデルの 1000 文字あたりの料金です。
func DefaultPriceTable() PriceTable {
	return PriceTable{
		"tts-1":           decimal.RequireFromString("0.015"),
		"tts-1-hd":        decimal.RequireFromString("0.03"),
		"gpt-4o-mini-tts": decimal.RequireFromString("0.015"),
		"voicevox":        decimal.Zero, // ローカルエンジンは無料
	}
}
