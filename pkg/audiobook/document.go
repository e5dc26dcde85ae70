package audiobook

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// Document は本文と、そこから導出されたチャンク列を保持します。
// 生成後は変更されません。
type Document struct {
	Name   string // 元ファイル名 (拡張子なし)。出力ファイル名に使用
	text   string
	chunks []Chunk
}

// DocumentOptions は Document 生成時の設定です。
type DocumentOptions struct {
	ChunkSize   int
	Disclaimer  string
	Terminators string
	Policy      SplitPolicy
}

// LoadDocument はテキストファイルを一度だけ読み込み、Document を生成します。
// UTF-8 として不正なバイトは無視されます。
func LoadDocument(fs afero.Fs, path string, opts DocumentOptions) (*Document, error) {
	raw, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("テキストファイルの読み込みに失敗しました (%s): %w", path, err)
	}

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return NewDocument(name, string(raw), opts)
}

// NewDocument は本文文字列から Document を生成します。
// 本文は注意書きと各行 (改行を含む) を半角スペースで連結したものになります。
func NewDocument(name, content string, opts DocumentOptions) (*Document, error) {
	content = strings.ToValidUTF8(content, "")

	parts := make([]string, 0, strings.Count(content, "\n")+2)
	if opts.Disclaimer != "" {
		parts = append(parts, opts.Disclaimer)
	}
	for _, line := range strings.SplitAfter(content, "\n") {
		if line == "" {
			continue
		}
		parts = append(parts, line)
	}
	text := strings.Join(parts, " ")

	chunks, err := ChunkText(text, opts.ChunkSize, WithTerminators(opts.Terminators), WithPolicy(opts.Policy))
	if err != nil {
		return nil, fmt.Errorf("本文のチャンク分割に失敗しました: %w", err)
	}

	return &Document{Name: name, text: text, chunks: chunks}, nil
}

// Text は注意書きを含む本文全体を返します。
func (d *Document) Text() string { return d.text }

// Chunks はチャンク列のコピーを返します。
func (d *Document) Chunks() []Chunk {
	out := make([]Chunk, len(d.chunks))
	copy(out, d.chunks)
	return out
}

// Stats は本文の統計情報です。
type Stats struct {
	Chunks     int
	Characters int
	Units      int
}

// Stats は チャンク数・文字数・課金単位数を返します。
func (d *Document) Stats(unitSize int) Stats {
	s := Stats{Chunks: len(d.chunks)}
	for _, c := range d.chunks {
		s.Characters += c.Len()
	}
	if unitSize > 0 {
		s.Units = (s.Characters + unitSize - 1) / unitSize
	}
	return s
}
