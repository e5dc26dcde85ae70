package audiobook

// SegmentStatus はチャンクごとの処理結果です。
type SegmentStatus int

const (
	// StatusSynthesized はプロバイダから音声を取得したことを示します。
	StatusSynthesized SegmentStatus = iota
	// StatusCached は応答キャッシュから音声を取得したことを示します。
	StatusCached
	// StatusSkipped は上書き防止により合成をスキップしたことを示します。
	StatusSkipped
	// StatusFailed は合成に失敗したことを示します。
	StatusFailed
)

func (s SegmentStatus) String() string {
	switch s {
	case StatusSynthesized:
		return "synthesized"
	case StatusCached:
		return "cached"
	case StatusSkipped:
		return "skipped"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// AudioSegment は1チャンク分の合成結果です。Index は元のチャンク位置と一致します。
type AudioSegment struct {
	Index  int
	Data   []byte
	Status SegmentStatus
	Err    error
}

// HasAudio は結合に使える音声データを持っているかを返します。
func (s AudioSegment) HasAudio() bool {
	return s.Status == StatusSynthesized || s.Status == StatusCached
}

// FailedIndices は失敗したセグメントのインデックスを昇順で返します。
func FailedIndices(segments []AudioSegment) []int {
	var failed []int
	for _, s := range segments {
		if s.Status == StatusFailed {
			failed = append(failed, s.Index)
		}
	}
	return failed
}

// countByStatus はステータスごとの件数を返します。
func countByStatus(segments []AudioSegment) map[SegmentStatus]int {
	counts := make(map[SegmentStatus]int, 4)
	for _, s := range segments {
		counts[s.Status]++
	}
	return counts
}
