package audiobook

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/shouni/go-audiobook/pkg/audiobook/audio"
)

// WriteResult はファイル書き込みの結果です。
type WriteResult struct {
	Path    string
	Bytes   int
	Skipped bool // 上書き防止により書き込まなかった場合 true
}

// Assembler はセグメントを順番に結合し、出力ファイルへ書き込みます。
type Assembler struct {
	fs               afero.Fs
	joiner           audio.Joiner
	overwriteProtect bool
}

// NewAssembler は Assembler を生成します。
func NewAssembler(fs afero.Fs, joiner audio.Joiner, overwriteProtect bool) *Assembler {
	return &Assembler{fs: fs, joiner: joiner, overwriteProtect: overwriteProtect}
}

// Assemble はセグメントをインデックス順に結合します。
// スキップされた位置は plan が示すチャンク単位の既存ファイルで代替します。
func (a *Assembler) Assemble(segments []AudioSegment, plan *RequestPlan) ([]byte, error) {
	if len(segments) == 0 {
		return nil, &ErrEmptyInput{}
	}

	parts := make([][]byte, len(segments))
	var failed, missing []int
	for i, seg := range segments {
		switch {
		case seg.HasAudio():
			parts[i] = seg.Data
		case seg.Status == StatusSkipped:
			data, err := a.readExisting(plan, i)
			if err != nil {
				slog.Warn("スキップされたチャンクの既存ファイルを読み込めません", "chunk_index", i, "error", err)
				missing = append(missing, i)
				continue
			}
			parts[i] = data
		default:
			failed = append(failed, i)
		}
	}

	if len(failed) > 0 || len(missing) > 0 {
		return nil, &ErrIncomplete{FailedIndices: failed, MissingIndices: missing}
	}

	joined, err := a.joiner.Join(parts)
	if err != nil {
		return nil, fmt.Errorf("音声データの結合に失敗しました: %w", err)
	}
	return joined, nil
}

func (a *Assembler) readExisting(plan *RequestPlan, index int) ([]byte, error) {
	if plan == nil || index >= len(plan.Targets) {
		return nil, fmt.Errorf("チャンク %d の出力先が計画にありません", index)
	}
	return afero.ReadFile(a.fs, plan.Targets[index].Path)
}

// Write はデータを path に書き込みます。親ディレクトリは作成されます。
// 上書き防止が有効な場合、ファイルは存在しない場合に限り作成され (O_EXCL)、
// 既存ファイルはエラーではなく Skipped として報告されます。
func (a *Assembler) Write(path string, data []byte) (WriteResult, error) {
	res := WriteResult{Path: path}

	dir := filepath.Dir(path)
	if dir != "." {
		if err := a.fs.MkdirAll(dir, 0755); err != nil {
			return res, fmt.Errorf("出力ディレクトリの作成に失敗しました (%s): %w", dir, err)
		}
	}

	if !a.overwriteProtect {
		if err := afero.WriteFile(a.fs, path, data, 0644); err != nil {
			return res, fmt.Errorf("ファイルの書き込みに失敗しました (%s): %w", path, err)
		}
		res.Bytes = len(data)
		return res, nil
	}

	f, err := a.fs.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			slog.Info("ファイルが既に存在するため書き込みをスキップしました", "path", path)
			res.Skipped = true
			return res, nil
		}
		return res, fmt.Errorf("ファイルの作成に失敗しました (%s): %w", path, err)
	}

	n, err := f.Write(data)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return res, fmt.Errorf("ファイルの書き込みに失敗しました (%s): %w", path, err)
	}
	res.Bytes = n
	return res, nil
}

// WriteSegments は音声データを持つセグメントをチャンク単位のファイルとして書き込みます。
func (a *Assembler) WriteSegments(segments []AudioSegment, plan *RequestPlan) ([]WriteResult, error) {
	var results []WriteResult
	for i, seg := range segments {
		if !seg.HasAudio() {
			continue
		}
		if i >= len(plan.Targets) {
			return results, fmt.Errorf("チャンク %d の出力先が計画にありません", i)
		}
		res, err := a.Write(plan.Targets[i].Path, seg.Data)
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}
