// Package config はオーディオブック生成の設定を読み込みます。
//
// 優先順位は デフォルト値 < YAML ファイル < 環境変数 < CLI フラグ です。
package config

import (
	"time"
)

// 対応プロバイダ
const (
	ProviderOpenAI   = "openai"
	ProviderVoicevox = "voicevox"
)

// Config はアプリケーション全体の設定です。
// env タグは対応する環境変数名です。
type Config struct {
	Provider  string `koanf:"provider"   env:"AUDIOBOOK_PROVIDER"   validate:"required,oneof=openai voicevox"`
	ChunkSize int    `koanf:"chunk_size" env:"AUDIOBOOK_CHUNK_SIZE" validate:"gt=0"`
	Model     string `koanf:"model"      env:"AUDIOBOOK_MODEL"      validate:"required"`
	Voice     string `koanf:"voice"      env:"AUDIOBOOK_VOICE"      validate:"required"`
	// flac はセグメント単位の結合ができないため対象外
	Format string `koanf:"format" env:"AUDIOBOOK_FORMAT" validate:"required,oneof=mp3 opus aac wav pcm"`

	OverwriteProtect bool `koanf:"overwrite_protect" env:"AUDIOBOOK_OVERWRITE_PROTECT"`

	MaxRequestsPerMinute int           `koanf:"max_requests_per_minute" env:"AUDIOBOOK_MAX_REQUESTS_PER_MINUTE" validate:"gt=0"`
	RateLimitWindow      time.Duration `koanf:"rate_limit_window"       env:"AUDIOBOOK_RATE_LIMIT_WINDOW"       validate:"gt=0"`
	RateLimitMargin      time.Duration `koanf:"rate_limit_margin"       env:"AUDIOBOOK_RATE_LIMIT_MARGIN"       validate:"gte=0"`
	RateLimitMode        string        `koanf:"rate_limit_mode"         env:"AUDIOBOOK_RATE_LIMIT_MODE"         validate:"oneof=fixed sliding"`
	MaxParallel          int           `koanf:"max_parallel"            env:"AUDIOBOOK_MAX_PARALLEL"            validate:"gte=1"`

	OutputDir    string `koanf:"output_dir"    env:"AUDIOBOOK_OUTPUT_DIR"    validate:"required"`
	KeepSegments bool   `koanf:"keep_segments" env:"AUDIOBOOK_KEEP_SEGMENTS"`
	CacheDir     string `koanf:"cache_dir"     env:"AUDIOBOOK_CACHE_DIR"`

	Disclaimer      string `koanf:"disclaimer"       env:"AUDIOBOOK_DISCLAIMER"`
	Terminators     string `koanf:"terminators"      env:"AUDIOBOOK_TERMINATORS"      validate:"required"`
	StrictSentences bool   `koanf:"strict_sentences" env:"AUDIOBOOK_STRICT_SENTENCES"`
	UnitSize        int    `koanf:"unit_size"        env:"AUDIOBOOK_UNIT_SIZE"        validate:"gt=0"`

	DryRun      bool   `koanf:"dry_run"      env:"AUDIOBOOK_DRY_RUN"`
	MetricsFile string `koanf:"metrics_file" env:"AUDIOBOOK_METRICS_FILE"`

	OpenAI   OpenAIConfig   `koanf:"openai"`
	Voicevox VoicevoxConfig `koanf:"voicevox"`
}

// OpenAIConfig は OpenAI TTS の接続設定です。
type OpenAIConfig struct {
	APIKey  string        `koanf:"api_key"  env:"OPENAI_API_KEY"`
	BaseURL string        `koanf:"base_url" env:"OPENAI_BASE_URL" validate:"omitempty,url"`
	Timeout time.Duration `koanf:"timeout"  env:"AUDIOBOOK_OPENAI_TIMEOUT" validate:"gt=0"`
}

// VoicevoxConfig は VOICEVOX エンジンの接続設定です。
type VoicevoxConfig struct {
	APIURL            string        `koanf:"api_url"             env:"VOICEVOX_API_URL"                       validate:"required,url"`
	Timeout           time.Duration `koanf:"timeout"             env:"AUDIOBOOK_VOICEVOX_TIMEOUT"             validate:"gt=0"`
	RequestsPerSecond float64       `koanf:"requests_per_second" env:"AUDIOBOOK_VOICEVOX_REQUESTS_PER_SECOND" validate:"gt=0"`
}

// Default はデフォルト値を設定した Config を返します。
func Default() *Config {
	return &Config{
		Provider:             ProviderOpenAI,
		ChunkSize:            4096,
		Model:                "tts-1",
		Voice:                "onyx",
		Format:               "mp3",
		OverwriteProtect:     true,
		MaxRequestsPerMinute: 50,
		RateLimitWindow:      60 * time.Second,
		RateLimitMargin:      5 * time.Second,
		RateLimitMode:        "sliding",
		MaxParallel:          1,
		OutputDir:            "output",
		Disclaimer:           "Note: This audio recording was generated using an AI voice provided by OpenAI. \n",
		Terminators:          ".?!",
		UnitSize:             1000,
		OpenAI: OpenAIConfig{
			Timeout: 120 * time.Second,
		},
		Voicevox: VoicevoxConfig{
			APIURL:            "http://localhost:50021",
			Timeout:           60 * time.Second,
			RequestsPerSecond: 2,
		},
	}
}
