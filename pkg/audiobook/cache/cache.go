// Package cache はプロバイダ応答をチャンク内容のハッシュをキーとして保存します。
// エントリは自動削除されず、Clear を呼び出すまで保持されます。
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/spf13/afero"
)

const (
	dataExt = ".audio"
	metaExt = ".json"
)

// Key は合成条件と本文から導出したキャッシュキー (SHA-256 の16進表記) です。
type Key string

// KeyFor は合成結果を一意に決める要素からキーを生成します。
func KeyFor(provider, model, voice, format, text string) Key {
	h := sha256.New()
	for _, part := range []string{provider, model, voice, format, text} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return Key(hex.EncodeToString(h.Sum(nil)))
}

// Entry はキャッシュエントリのメタデータです。
type Entry struct {
	Key       Key       `json:"key"`
	Model     string    `json:"model"`
	Voice     string    `json:"voice"`
	Format    string    `json:"format"`
	TextLen   int       `json:"text_len"`
	Size      int       `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

// Store はファイルシステム上の応答キャッシュです。
type Store struct {
	fs  afero.Fs
	dir string
	now func() time.Time
}

// New は dir 配下を使用する Store を生成します。
func New(fsys afero.Fs, dir string) *Store {
	return &Store{fs: fsys, dir: dir, now: time.Now}
}

func (s *Store) dataPath(key Key) string { return filepath.Join(s.dir, string(key)+dataExt) }
func (s *Store) metaPath(key Key) string { return filepath.Join(s.dir, string(key)+metaExt) }

// Get はキーに対応する音声データを返します。存在しない場合は ok=false です。
func (s *Store) Get(key Key) (data []byte, ok bool, err error) {
	data, err = afero.ReadFile(s.fs, s.dataPath(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("キャッシュの読み込みに失敗しました (%s): %w", key, err)
	}
	return data, true, nil
}

// Put は音声データとメタデータを保存します。既存のエントリは上書きされます。
func (s *Store) Put(entry Entry, data []byte) error {
	if entry.Key == "" {
		return fmt.Errorf("キャッシュキーが空です")
	}
	if err := s.fs.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("キャッシュディレクトリの作成に失敗しました (%s): %w", s.dir, err)
	}

	entry.Size = len(data)
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now()
	}
	meta, err := sonic.Marshal(entry)
	if err != nil {
		return fmt.Errorf("キャッシュメタデータのエンコードに失敗しました: %w", err)
	}

	if err := afero.WriteFile(s.fs, s.dataPath(entry.Key), data, 0644); err != nil {
		return fmt.Errorf("キャッシュの書き込みに失敗しました (%s): %w", entry.Key, err)
	}
	if err := afero.WriteFile(s.fs, s.metaPath(entry.Key), meta, 0644); err != nil {
		return fmt.Errorf("キャッシュメタデータの書き込みに失敗しました (%s): %w", entry.Key, err)
	}
	return nil
}

// Entries は保存済みエントリのメタデータを返します。
func (s *Store) Entries() ([]Entry, error) {
	infos, err := afero.ReadDir(s.fs, s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("キャッシュディレクトリの読み込みに失敗しました (%s): %w", s.dir, err)
	}

	var entries []Entry
	for _, info := range infos {
		if info.IsDir() || !strings.HasSuffix(info.Name(), metaExt) {
			continue
		}
		raw, err := afero.ReadFile(s.fs, filepath.Join(s.dir, info.Name()))
		if err != nil {
			return nil, fmt.Errorf("キャッシュメタデータの読み込みに失敗しました (%s): %w", info.Name(), err)
		}
		var e Entry
		if err := sonic.Unmarshal(raw, &e); err != nil {
			return nil, fmt.Errorf("キャッシュメタデータのデコードに失敗しました (%s): %w", info.Name(), err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Clear はキャッシュエントリ (<key>.audio と <key>.json) のみを削除し、削除したエントリ数を返します。
// それ以外のファイルは残し、ディレクトリは空になった場合のみ削除します。
func (s *Store) Clear() (int, error) {
	infos, err := afero.ReadDir(s.fs, s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("キャッシュディレクトリの読み込みに失敗しました (%s): %w", s.dir, err)
	}

	removed := make(map[string]struct{})
	for _, info := range infos {
		name := info.Name()
		ext := filepath.Ext(name)
		key := strings.TrimSuffix(name, ext)
		if info.IsDir() || (ext != dataExt && ext != metaExt) || !isKey(key) {
			continue
		}
		if err := s.fs.Remove(filepath.Join(s.dir, name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return len(removed), fmt.Errorf("キャッシュの削除に失敗しました (%s): %w", name, err)
		}
		removed[key] = struct{}{}
	}

	if rest, err := afero.ReadDir(s.fs, s.dir); err == nil && len(rest) == 0 {
		if err := s.fs.Remove(s.dir); err != nil {
			return len(removed), fmt.Errorf("キャッシュディレクトリの削除に失敗しました (%s): %w", s.dir, err)
		}
	}
	return len(removed), nil
}

// isKey は name が KeyFor の生成する形式 (SHA-256 の16進表記) かどうかを返します。
func isKey(name string) bool {
	if len(name) != hex.EncodedLen(sha256.Size) {
		return false
	}
	_, err := hex.DecodeString(name)
	return err == nil
}
