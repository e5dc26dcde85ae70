package audio

// ----------------------------------------------------------------------
// WAV ファイル定数 (動的チャンク探索ベースに統一)
// ----------------------------------------------------------------------

const (
	// RIFF 構造の必須サイズ定数
	RiffChunkIDSize   = 4 // "RIFF" チャンクIDのサイズ
	RiffChunkSizeSize = 4 // ファイルサイズフィールドのサイズ
	WaveIDSize        = 4 // "WAVE" 識別子のサイズ

	// チャンクヘッダー (ID 4 + サイズ 4)
	ChunkIDSize     = 4
	ChunkSizeSize   = 4
	ChunkHeaderSize = ChunkIDSize + ChunkSizeSize
)

const (
	WavRiffHeaderSize = RiffChunkIDSize + RiffChunkSizeSize + WaveIDSize // RIFFヘッダーの合計サイズ (12バイト)
	// RiffChunkSizeOffset は RIFF チャンクサイズが書き込まれるオフセット (4バイト目)
	RiffChunkSizeOffset = RiffChunkIDSize
)

// ----------------------------------------------------------------------
// 出力フォーマット
// ----------------------------------------------------------------------

const (
	FormatMP3  = "mp3"
	FormatOpus = "opus"
	FormatAAC  = "aac"
	FormatFLAC = "flac"
	FormatWAV  = "wav"
	FormatPCM  = "pcm"
)
