package audiobook

import (
	"github.com/shopspring/decimal"
)

// EstimateCost はチャンク列を合成した場合の概算料金を計算します。
// 各チャンクは ceil(文字数 / unitSize) 単位として課金されます。
// 結果は参考値であり、実行可否の判定には使用しません。
func EstimateCost(chunks []Chunk, prices PriceTable, model string, unitSize int) (decimal.Decimal, error) {
	if unitSize <= 0 {
		return decimal.Zero, &ErrInvalidConfig{Field: "unit_size", Details: "1以上である必要があります"}
	}

	price, ok := prices[model]
	if !ok {
		return decimal.Zero, &ErrUnknownModel{Model: model}
	}

	total := decimal.Zero
	for _, c := range chunks {
		units := (c.Len() + unitSize - 1) / unitSize
		total = total.Add(price.Mul(decimal.NewFromInt(int64(units))))
	}

	return total, nil
}
