package audiobook

import (
	"context"

	"github.com/shopspring/decimal"
)

// ----------------------------------------------------------------------
// インターフェース
// ----------------------------------------------------------------------

// EngineExecutor は、Document から音声ファイルを生成するための契約を定義します。
type EngineExecutor interface {
	// Estimate は合成にかかる概算費用 (USD) を返します。
	Estimate(doc *Document) (decimal.Decimal, error)
	// Execute は Document 全体を合成し、1つの音声ファイルを出力します。
	Execute(ctx context.Context, doc *Document, opts ...ExecuteOption) (*Report, error)
	// CreateSample は選択したチャンクの先頭 sampleSize 文字だけを合成します。
	CreateSample(ctx context.Context, doc *Document, chunkSelection, sampleSize int) (*Report, error)
}
