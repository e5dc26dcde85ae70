package api

import "context"

// ----------------------------------------------------------------------
// インターフェース
// ----------------------------------------------------------------------

// SpeechRequest は1チャンク分の合成リクエストです。
type SpeechRequest struct {
	Index  int // 元チャンクの位置 (ログ用)
	Model  string
	Voice  string
	Format string
	Text   string
}

// Synthesizer はテキストを音声バイト列に変換する外部プロバイダです。
type Synthesizer interface {
	Synthesize(ctx context.Context, req SpeechRequest) ([]byte, error)
}

// ----------------------------------------------------------------------
// データモデル (VOICEVOX API応答)
// ----------------------------------------------------------------------

// AudioQueryResponse は /audio_query APIの応答構造の一部に対応する型です。
type AudioQueryResponse struct {
	AccentPhrases []map[string]interface{} `json:"accent_phrases"`
	SpeedScale    float64                  `json:"speedScale"`
}

// VVSpeaker はVOICEVOXの /speakers APIの応答JSON構造の一部に対応する型です。
type VVSpeaker struct {
	Name   string    `json:"name"`
	Styles []VVStyle `json:"styles"`
}

// VVStyle は話者ごとのスタイルです。
type VVStyle struct {
	Name string `json:"name"`
	ID   int    `json:"id"`
}
