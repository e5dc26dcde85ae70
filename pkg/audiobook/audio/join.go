package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Joiner は同じフォーマットの音声セグメントを順番に結合し、1つのファイルにします。
type Joiner interface {
	Join(segments [][]byte) ([]byte, error)
}

// JoinerFor はフォーマットに応じた Joiner を返します。
// mp3/aac/opus/pcm はフレーム単位のストリーム形式のため単純連結、wav はヘッダーを再構築します。
func JoinerFor(format string) (Joiner, error) {
	switch format {
	case FormatMP3, FormatAAC, FormatOpus, FormatPCM:
		return Concat{}, nil
	case FormatWAV:
		return WAV{}, nil
	default:
		return nil, &ErrUnsupportedFormat{Format: format}
	}
}

// ----------------------------------------------------------------------
// 単純連結
// ----------------------------------------------------------------------

// Concat はバイト列をそのまま連結します。
type Concat struct{}

func (Concat) Join(segments [][]byte) ([]byte, error) {
	total := 0
	for _, s := range segments {
		total += len(s)
	}

	out := make([]byte, 0, total)
	for _, s := range segments {
		out = append(out, s...)
	}
	return out, nil
}

// ----------------------------------------------------------------------
// WAV 結合
// ----------------------------------------------------------------------

// WAV は各セグメントの data チャンクを抽出して連結し、
// 先頭セグメントの fmt チャンクとサイズを書き直したヘッダーで1つの WAV ファイルを構築します。
type WAV struct{}

func (WAV) Join(segments [][]byte) ([]byte, error) {
	if len(segments) == 0 {
		return nil, &ErrInvalidWAVHeader{Index: -1, Details: "結合対象のWAVデータがありません"}
	}

	// 1. 最初のWAVからフォーマット情報を抽出
	fmtChunk, firstData, err := extractChunks(segments[0], 0)
	if err != nil {
		return nil, fmt.Errorf("最初のWAVファイルの解析に失敗しました: %w", err)
	}

	// 2. すべてのオーディオデータを連結
	var audioDataWriter bytes.Buffer
	audioDataWriter.Write(firstData)

	for i := 1; i < len(segments); i++ {
		currentFmt, currentData, err := extractChunks(segments[i], i)
		if err != nil {
			return nil, fmt.Errorf("WAVファイル #%d の解析に失敗しました: %w", i, err)
		}
		if !bytes.Equal(currentFmt, fmtChunk) {
			return nil, &ErrFormatMismatch{Index: i}
		}
		audioDataWriter.Write(currentData)
	}

	// 3. 結合されたデータとフォーマットチャンクから新しいWAVファイルを構築
	return buildCombinedWav(fmtChunk, audioDataWriter.Bytes()), nil
}

// extractChunks はWAVファイルから fmt チャンク (ヘッダー込み) と data チャンクの中身を抽出します。
// LISTチャンクなどのメタデータはスキップします。
func extractChunks(wavBytes []byte, index int) (fmtChunk []byte, audioData []byte, err error) {
	if len(wavBytes) < WavRiffHeaderSize {
		return nil, nil, &ErrInvalidWAVHeader{
			Index:   index,
			Details: fmt.Sprintf("WAVファイルサイズが短すぎます (RIFFヘッダー不足: %dバイト)", len(wavBytes)),
		}
	}
	if string(wavBytes[0:4]) != "RIFF" || string(wavBytes[8:12]) != "WAVE" {
		return nil, nil, &ErrInvalidWAVHeader{Index: index, Details: "RIFF/WAVE 識別子がありません"}
	}

	offset := WavRiffHeaderSize
	for offset+ChunkHeaderSize <= len(wavBytes) {
		chunkID := string(wavBytes[offset : offset+ChunkIDSize])
		chunkSize := binary.LittleEndian.Uint32(wavBytes[offset+ChunkIDSize : offset+ChunkHeaderSize])
		bodyStart := offset + ChunkHeaderSize

		switch chunkID {
		case "fmt ":
			bodyEnd := bodyStart + int(chunkSize)
			if bodyEnd > len(wavBytes) {
				return nil, nil, &ErrInvalidWAVHeader{Index: index, Details: "fmtチャンクのデータ長がファイルサイズを超過しています"}
			}
			fmtChunk = wavBytes[offset:bodyEnd]

		case "data":
			if fmtChunk == nil {
				return nil, nil, &ErrInvalidWAVHeader{Index: index, Details: "dataチャンクより前にfmtチャンクがありません"}
			}
			bodyEnd := bodyStart + int(chunkSize)
			// ストリーミング出力ではサイズが未確定 (0xFFFFFFFF) のため、残り全てをデータとみなす
			if chunkSize == 0xFFFFFFFF {
				bodyEnd = len(wavBytes)
			}
			if bodyEnd > len(wavBytes) {
				return nil, nil, &ErrInvalidWAVHeader{Index: index, Details: "dataチャンクのデータ長がファイルサイズを超過しています"}
			}
			return fmtChunk, wavBytes[bodyStart:bodyEnd], nil
		}

		// 次のチャンクへ。奇数長のチャンクの後にはパディングバイトがある
		offset = bodyStart + int(chunkSize)
		if chunkSize%2 != 0 {
			offset++
		}
	}

	return nil, nil, &ErrInvalidWAVHeader{Index: index, Details: "WAVファイル内に 'data' チャンクが見つかりませんでした"}
}

// buildCombinedWav は fmt チャンクと結合済みオーディオデータから、正しいヘッダーを持つ WAV ファイルを構築します。
func buildCombinedWav(fmtChunk, audioData []byte) []byte {
	headerSize := WavRiffHeaderSize + len(fmtChunk) + ChunkHeaderSize
	combined := make([]byte, headerSize+len(audioData))

	copy(combined[0:4], "RIFF")
	// RIFFチャンクサイズ = ファイルサイズ - 8
	binary.LittleEndian.PutUint32(combined[RiffChunkSizeOffset:RiffChunkSizeOffset+RiffChunkSizeSize], uint32(len(combined)-RiffChunkIDSize-RiffChunkSizeSize))
	copy(combined[8:12], "WAVE")

	offset := WavRiffHeaderSize
	offset += copy(combined[offset:], fmtChunk)

	copy(combined[offset:offset+ChunkIDSize], "data")
	binary.LittleEndian.PutUint32(combined[offset+ChunkIDSize:offset+ChunkHeaderSize], uint32(len(audioData)))
	offset += ChunkHeaderSize

	copy(combined[offset:], audioData)
	return combined
}
