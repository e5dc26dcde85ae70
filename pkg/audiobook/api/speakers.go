package api

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bytedance/sonic"
)

const (
	// DefaultStyleName は話者名のみが指定された場合に使用するスタイルです。
	DefaultStyleName = "ノーマル"
	// voiceSeparator は音声IDの話者名とスタイル名の区切り文字です。例: "ずんだもん/あまあま"
	voiceSeparator = "/"
)

// SpeakerClient は /speakers エンドポイントを呼び出す能力を抽象化するインターフェースです。
type SpeakerClient interface {
	GetSpeakers(ctx context.Context) ([]byte, error)
}

// SpeakerData はVOICEVOXから動的に取得した全話者・スタイル情報を保持します。
type SpeakerData struct {
	StyleIDMap      map[string]int // 例: "ずんだもん/ノーマル" -> 3
	DefaultStyleMap map[string]int // 例: "ずんだもん" -> 3
}

// StyleID は音声ID ("話者" または "話者/スタイル") から Style ID を検索します。
func (d *SpeakerData) StyleID(voice string) (int, bool) {
	if strings.Contains(voice, voiceSeparator) {
		id, ok := d.StyleIDMap[voice]
		return id, ok
	}
	id, ok := d.DefaultStyleMap[voice]
	return id, ok
}

// LoadSpeakers は /speakers エンドポイントからデータを取得し、SpeakerDataを構築します。
// 各話者のデフォルトスタイルは "ノーマル"、存在しない場合は最初のスタイルです。
func LoadSpeakers(ctx context.Context, client SpeakerClient) (*SpeakerData, error) {
	bodyBytes, err := client.GetSpeakers(ctx)
	if err != nil {
		return nil, err
	}

	var vvSpeakers []VVSpeaker
	if err := sonic.Unmarshal(bodyBytes, &vvSpeakers); err != nil {
		return nil, &ErrInvalidJSON{Details: "/speakers 応答", WrappedErr: err}
	}

	data := &SpeakerData{
		StyleIDMap:      make(map[string]int),
		DefaultStyleMap: make(map[string]int),
	}

	for _, spk := range vvSpeakers {
		if len(spk.Styles) == 0 {
			slog.DebugContext(ctx, "スタイルを持たない話者をスキップします", "speaker", spk.Name)
			continue
		}

		for _, style := range spk.Styles {
			data.StyleIDMap[spk.Name+voiceSeparator+style.Name] = style.ID
			if style.Name == DefaultStyleName {
				data.DefaultStyleMap[spk.Name] = style.ID
			}
		}

		if _, ok := data.DefaultStyleMap[spk.Name]; !ok {
			data.DefaultStyleMap[spk.Name] = spk.Styles[0].ID
		}
	}

	if len(data.StyleIDMap) == 0 {
		return nil, &ErrInvalidJSON{Details: "/speakers 応答", WrappedErr: fmt.Errorf("利用可能なスタイルが一つもありません")}
	}

	slog.InfoContext(ctx, "VOICEVOXスタイルデータが正常にロードされました", "styles_count", len(data.StyleIDMap))

	return data, nil
}
