package audiobook

import (
	"log/slog"
	"strings"
	"unicode/utf8"
)

// Chunk は1回の合成リクエストで送信する本文の連続した一片です。
// Start/End は本文中のバイトオフセット (End は含まない) で、text[Start:End] == Text が成り立ちます。
type Chunk struct {
	Index int
	Start int
	End   int
	Text  string
}

// Len はチャンクの文字数 (rune 数) を返します。
func (c Chunk) Len() int {
	return utf8.RuneCountInString(c.Text)
}

// SplitPolicy は文末記号がウィンドウ内に見つからない場合の扱いを決めます。
type SplitPolicy int

const (
	// HardCut は最大文字数の位置で強制的に分割します。
	HardCut SplitPolicy = iota
	// Strict は ErrNoTerminator を返して分割を中止します。
	Strict
)

// ----------------------------------------------------------------------
// オプション定義 (Functional Options Pattern)
// ----------------------------------------------------------------------

type chunkConfig struct {
	terminators string
	policy      SplitPolicy
}

// ChunkOption は Chunk の挙動を変更するオプションです。
type ChunkOption func(*chunkConfig)

// WithTerminators は文末として扱う文字を指定します。空文字列は無視されます。
func WithTerminators(terminators string) ChunkOption {
	return func(cfg *chunkConfig) {
		if terminators != "" {
			cfg.terminators = terminators
		}
	}
}

// WithPolicy は文末記号が見つからない場合のポリシーを指定します。
func WithPolicy(p SplitPolicy) ChunkOption {
	return func(cfg *chunkConfig) {
		cfg.policy = p
	}
}

// ----------------------------------------------------------------------
// 分割ロジック
// ----------------------------------------------------------------------

// ChunkText は本文を maxLen 文字以下の、文末で終わるチャンク列に分割します。
// 全チャンクを連結すると元の本文に一致します。
func ChunkText(text string, maxLen int, opts ...ChunkOption) ([]Chunk, error) {
	if maxLen <= 0 {
		return nil, &ErrInvalidConfig{Field: "chunk_size", Details: "1以上である必要があります"}
	}

	cfg := &chunkConfig{terminators: DefaultTerminators, policy: HardCut}
	for _, opt := range opts {
		opt(cfg)
	}

	// rune 位置からバイトオフセットへの対応表 (不正なバイト列でも元の位置を保つ)
	runes := make([]rune, 0, len(text))
	offsets := make([]int, 0, len(text)+1)
	for i, r := range text {
		runes = append(runes, r)
		offsets = append(offsets, i)
	}
	offsets = append(offsets, len(text))
	n := len(runes)

	var chunks []Chunk
	end := 0
	for end < n {
		start := end

		// 残りが maxLen 以下なら最終チャンク
		if start+maxLen >= n {
			end = n
		} else {
			cut := start + maxLen
			idx := cut - 1
			for idx >= start && !strings.ContainsRune(cfg.terminators, runes[idx]) {
				idx--
			}

			if idx >= start {
				end = idx + 1
			} else {
				if cfg.policy == Strict {
					return nil, &ErrNoTerminator{Start: start, MaxLen: maxLen}
				}
				slog.Warn("ウィンドウ内に文末記号が見つからないため、最大文字数で強制分割します。",
					"chunk_index", len(chunks),
					"start", start,
					"max_len", maxLen)
				end = cut
			}
		}

		chunks = append(chunks, Chunk{
			Index: len(chunks),
			Start: offsets[start],
			End:   offsets[end],
			Text:  text[offsets[start]:offsets[end]],
		})
	}

	return chunks, nil
}
