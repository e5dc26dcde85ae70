package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// ErrInvalid は設定値の検証に失敗したことを示します。
type ErrInvalid struct {
	Field   string
	Details string
}

func (e *ErrInvalid) Error() string {
	return fmt.Sprintf("設定値 '%s' が不正です: %s", e.Field, e.Details)
}

// ----------------------------------------------------------------------
// オプション定義 (Functional Options Pattern)
// ----------------------------------------------------------------------

type loadOptions struct {
	fs        afero.Fs
	file      string
	environ   func() []string
	overrides map[string]any
}

// LoadOption は Load の挙動を変更するオプションです。
type LoadOption func(*loadOptions)

// WithFile は読み込む YAML ファイルを指定します。空文字列は無視されます。
func WithFile(path string) LoadOption {
	return func(o *loadOptions) {
		o.file = path
	}
}

// WithFs は YAML ファイルの読み込みに使うファイルシステムを指定します。
func WithFs(fs afero.Fs) LoadOption {
	return func(o *loadOptions) {
		if fs != nil {
			o.fs = fs
		}
	}
}

// WithEnviron は環境変数の取得元を差し替えます (テスト用)。
func WithEnviron(fn func() []string) LoadOption {
	return func(o *loadOptions) {
		if fn != nil {
			o.environ = fn
		}
	}
}

// WithOverrides は最優先で適用する値を設定パス (例: "openai.timeout") で指定します。
// CLI フラグの反映に使用します。
func WithOverrides(values map[string]any) LoadOption {
	return func(o *loadOptions) {
		o.overrides = values
	}
}

// ----------------------------------------------------------------------
// 読み込み
// ----------------------------------------------------------------------

// Load はデフォルト値・YAML ファイル・環境変数・上書き値の順に設定を読み込み、検証します。
func Load(opts ...LoadOption) (*Config, error) {
	o := &loadOptions{fs: afero.NewOsFs(), environ: os.Environ}
	for _, opt := range opts {
		opt(o)
	}

	k := koanf.New(".")

	// 1. デフォルト値
	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("デフォルト設定の読み込みに失敗しました: %w", err)
	}

	// 2. YAML ファイル
	if o.file != "" {
		data, err := loadYAML(o.fs, o.file)
		if err != nil {
			return nil, err
		}
		if err := k.Load(rawMap(data), nil); err != nil {
			return nil, fmt.Errorf("設定ファイルの適用に失敗しました (%s): %w", o.file, err)
		}
	}

	// 3. 環境変数
	envToPath := envMappings(reflect.TypeOf(Config{}), "")
	if err := k.Load(env.Provider(".", env.Opt{
		TransformFunc: func(key, value string) (string, any) {
			// 対応表にない環境変数は無視する
			return envToPath[key], value
		},
		EnvironFunc: o.environ,
	}), nil); err != nil {
		return nil, fmt.Errorf("環境変数の読み込みに失敗しました: %w", err)
	}

	// 4. 上書き値 (CLI フラグ)
	for key, value := range o.overrides {
		if err := k.Set(key, value); err != nil {
			return nil, fmt.Errorf("設定値 %s の上書きに失敗しました: %w", key, err)
		}
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("設定のデコードに失敗しました: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate は構造体タグによる検証と、項目間の整合性チェックを行います。
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return &ErrInvalid{
				Field:   fe.Namespace(),
				Details: fmt.Sprintf("'%s=%s' を満たしません (値: %v)", fe.Tag(), fe.Param(), fe.Value()),
			}
		}
		return fmt.Errorf("設定の検証に失敗しました: %w", err)
	}

	if cfg.Provider == ProviderOpenAI && !cfg.DryRun && cfg.OpenAI.APIKey == "" {
		return &ErrInvalid{Field: "openai.api_key", Details: "OPENAI_API_KEY が設定されていません"}
	}
	return nil
}

func loadYAML(fs afero.Fs, path string) (map[string]any, error) {
	raw, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("設定ファイルの読み込みに失敗しました (%s): %w", path, err)
	}

	data := make(map[string]any)
	if err := yaml.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("設定ファイルの解析に失敗しました (%s): %w", path, err)
	}
	return data, nil
}

// envMappings は env タグから 環境変数名 → 設定パス の対応表を生成します。
func envMappings(t reflect.Type, prefix string) map[string]string {
	out := make(map[string]string)
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		path := f.Tag.Get("koanf")
		if path == "" {
			continue
		}
		if prefix != "" {
			path = prefix + "." + path
		}

		if f.Type.Kind() == reflect.Struct && f.Type.PkgPath() == t.PkgPath() {
			for envVar, p := range envMappings(f.Type, path) {
				out[envVar] = p
			}
			continue
		}
		if envVar := f.Tag.Get("env"); envVar != "" {
			out[strings.TrimSpace(envVar)] = path
		}
	}
	return out
}

// rawMap は map[string]any を koanf.Provider として扱うためのアダプタです。
type rawMap map[string]any

func (r rawMap) Read() (map[string]any, error) {
	return r, nil
}

func (r rawMap) ReadBytes() ([]byte, error) {
	return nil, fmt.Errorf("ReadBytes not implemented")
}
