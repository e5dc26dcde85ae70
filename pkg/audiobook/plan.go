package audiobook

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// Target はチャンク1つ分の出力先です。
type Target struct {
	Index int
	Path  string
}

// PlanOptions はファイル名の構成要素です。
type PlanOptions struct {
	Dir    string
	Voice  string
	Model  string
	Format string
	Tag    string // 任意。"sample" など
}

// RequestPlan はチャンクごとの出力先と最終出力先を決定します。
type RequestPlan struct {
	Name    string
	Targets []Target
	opts    PlanOptions
}

// NewRequestPlan は count 個のチャンクに対する RequestPlan を生成します。
//
// チャンク単位のファイルは <dir>/segments/<name>_<voice>_<model>_<i>_of_<n>[_<tag>].<ext>
// (チャンクが1つの場合は <name>_<voice>_<model>[_<tag>].<ext>) に配置されます。
func NewRequestPlan(name string, count int, opts PlanOptions) *RequestPlan {
	if opts.Format == "" {
		opts.Format = DefaultFormat
	}

	p := &RequestPlan{Name: name, Targets: make([]Target, count), opts: opts}
	segDir := filepath.Join(opts.Dir, segmentDirName)
	for i := 0; i < count; i++ {
		stem := p.stem()
		if count > 1 {
			stem = fmt.Sprintf("%s_%d_of_%d", stem, i+1, count)
		}
		p.Targets[i] = Target{Index: i, Path: filepath.Join(segDir, p.withTag(stem))}
	}
	return p
}

// OutputPath は結合後の最終出力ファイルのパスを返します。
func (p *RequestPlan) OutputPath() string {
	return filepath.Join(p.opts.Dir, p.withTag(p.stem()))
}

// SkipMask は上書き防止が有効な場合に、既にファイルが存在するチャンクを true とした
// マスクを返します。無効な場合は nil (スキップなし) を返します。
// 存在確認と後続の書き込みは不可分ではありません。
func (p *RequestPlan) SkipMask(fs afero.Fs, overwriteProtect bool) ([]bool, error) {
	if !overwriteProtect {
		return nil, nil
	}

	mask := make([]bool, len(p.Targets))
	for i, t := range p.Targets {
		exists, err := afero.Exists(fs, t.Path)
		if err != nil {
			return nil, fmt.Errorf("出力ファイルの存在確認に失敗しました (%s): %w", t.Path, err)
		}
		mask[i] = exists
	}
	return mask, nil
}

func (p *RequestPlan) stem() string {
	return strings.Join([]string{
		sanitizeComponent(p.Name),
		sanitizeComponent(p.opts.Voice),
		sanitizeComponent(p.opts.Model),
	}, "_")
}

func (p *RequestPlan) withTag(stem string) string {
	if p.opts.Tag != "" {
		stem += "_" + sanitizeComponent(p.opts.Tag)
	}
	return stem + "." + p.opts.Format
}

// sanitizeComponent はファイル名に使えない文字を置き換えます。
// VOICEVOX の "話者/スタイル" 形式の声指定などが対象です。
func sanitizeComponent(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '-'
		}
		return r
	}, s)
}
