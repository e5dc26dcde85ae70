package audiobook

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spf13/afero"

	"github.com/shouni/go-audiobook/pkg/audiobook/api"
	"github.com/shouni/go-audiobook/pkg/audiobook/audio"
	"github.com/shouni/go-audiobook/pkg/audiobook/cache"
	"github.com/shouni/go-audiobook/pkg/audiobook/metrics"
	"github.com/shouni/go-audiobook/pkg/config"
)

// ----------------------------------------------------------------------
// No-op パターン
// ----------------------------------------------------------------------

// noopEngineExecutor は dry_run 用の EngineExecutor です。
// 費用見積もりのみを行い、ネットワーク呼び出しやファイル書き込みは行いません。
type noopEngineExecutor struct {
	config EngineConfig
}

func (n *noopEngineExecutor) Estimate(doc *Document) (decimal.Decimal, error) {
	return estimate(doc, n.config)
}

// Execute は見積もりをログに出力するだけで何もしません。
func (n *noopEngineExecutor) Execute(ctx context.Context, doc *Document, opts ...ExecuteOption) (*Report, error) {
	n.logSkipped(ctx, doc)
	return &Report{RunID: uuid.NewString()}, nil
}

// CreateSample は見積もりをログに出力するだけで何もしません。
func (n *noopEngineExecutor) CreateSample(ctx context.Context, doc *Document, chunkSelection, sampleSize int) (*Report, error) {
	n.logSkipped(ctx, doc)
	return &Report{RunID: uuid.NewString()}, nil
}

func (n *noopEngineExecutor) logSkipped(ctx context.Context, doc *Document) {
	cost, err := n.Estimate(doc)
	if err != nil {
		slog.WarnContext(ctx, "dry_run: 費用見積もりに失敗しました", "error", err)
		return
	}
	slog.InfoContext(ctx, "dry_run が有効です。音声合成はスキップされました。",
		"chunks", len(doc.chunks), "estimated_cost_usd", cost.StringFixed(4))
}

// ----------------------------------------------------------------------
// Factory 関数
// ----------------------------------------------------------------------

// FactoryOption は NewEngineExecutor が組み立てる依存関係を差し替えます。
type FactoryOption func(*factoryDeps)

type factoryDeps struct {
	synth    api.Synthesizer
	clock    Clock
	recorder metrics.Recorder
}

// WithSynthesizer は設定から生成するプロバイダクライアントの代わりに synth を使用します。
func WithSynthesizer(synth api.Synthesizer) FactoryOption {
	return func(d *factoryDeps) { d.synth = synth }
}

// WithClock はレート制限に使う Clock を指定します。
func WithClock(clock Clock) FactoryOption {
	return func(d *factoryDeps) { d.clock = clock }
}

// WithRecorder はメトリクスの記録先を指定します。
func WithRecorder(r metrics.Recorder) FactoryOption {
	return func(d *factoryDeps) { d.recorder = r }
}

// NewEngineExecutor は設定からプロバイダクライアント・レートリミッター・キャッシュを組み立て、
// EngineExecutor インターフェースを実装した具象型を返します。
func NewEngineExecutor(ctx context.Context, cfg *config.Config, fs afero.Fs, opts ...FactoryOption) (EngineExecutor, error) {
	deps := &factoryDeps{clock: RealClock(), recorder: metrics.Nop()}
	for _, opt := range opts {
		opt(deps)
	}

	engineConfig := EngineConfig{
		Provider:         cfg.Provider,
		Model:            cfg.Model,
		Voice:            cfg.Voice,
		Format:           cfg.Format,
		OutputDir:        cfg.OutputDir,
		OverwriteProtect: cfg.OverwriteProtect,
		KeepSegments:     cfg.KeepSegments,
		Prices:           DefaultPriceTable(),
		UnitSize:         cfg.UnitSize,
	}
	if cfg.Provider == config.ProviderVoicevox {
		engineConfig.PriceModel = config.ProviderVoicevox
		// VOICEVOX エンジンは WAV のみを返す
		if engineConfig.Format != audio.FormatWAV {
			slog.Warn("VOICEVOXはWAVのみ対応のため出力フォーマットをwavに変更します", "requested_format", engineConfig.Format)
			engineConfig.Format = audio.FormatWAV
		}
	}

	// 見積もりのみの場合はダミーのExecutorを返す (No-opパターン)
	if cfg.DryRun {
		slog.Info("dry_run が有効です。ダミーのExecutorを返します。", "action", "skip_initialization")
		return &noopEngineExecutor{config: engineConfig}, nil
	}

	joiner, err := audio.JoinerFor(engineConfig.Format)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfig, err)
	}

	synth := deps.synth
	if synth == nil {
		synth, err = newSynthesizer(ctx, cfg)
		if err != nil {
			return nil, err
		}
	}

	limiter, err := NewLimiter(cfg.RateLimitMode, deps.clock, cfg.MaxRequestsPerMinute, cfg.RateLimitWindow, cfg.RateLimitMargin)
	if err != nil {
		return nil, err
	}

	dispatcherConfig := DispatcherConfig{
		Provider:    cfg.Provider,
		Model:       cfg.Model,
		Voice:       cfg.Voice,
		Format:      engineConfig.Format,
		MaxParallel: cfg.MaxParallel,
		Limiter:     limiter,
		Clock:       deps.clock,
		Recorder:    deps.recorder,
	}
	if cfg.CacheDir != "" {
		dispatcherConfig.Cache = cache.New(fs, cfg.CacheDir)
		slog.Info("応答キャッシュを有効化しました", "cache_dir", cfg.CacheDir)
	}

	dispatcher, err := NewDispatcher(synth, dispatcherConfig)
	if err != nil {
		return nil, err
	}
	assembler := NewAssembler(fs, joiner, cfg.OverwriteProtect)

	slog.Info("Executorの初期化が完了しました。",
		"provider", cfg.Provider,
		"model", cfg.Model,
		"voice", cfg.Voice,
		"rate_limit_mode", cfg.RateLimitMode,
		"max_requests_per_window", cfg.MaxRequestsPerMinute,
		"max_parallel", cfg.MaxParallel)

	return NewEngine(fs, dispatcher, assembler, engineConfig), nil
}

// newSynthesizer は設定に応じたプロバイダクライアントを生成します。
func newSynthesizer(ctx context.Context, cfg *config.Config) (api.Synthesizer, error) {
	switch cfg.Provider {
	case config.ProviderOpenAI:
		if cfg.OpenAI.APIKey == "" {
			return nil, &ErrInvalidConfig{Field: "openai.api_key", Details: "OPENAI_API_KEY が設定されていません"}
		}
		opts := []api.OpenAIOption{api.WithOpenAIHTTPClient(&http.Client{Timeout: cfg.OpenAI.Timeout})}
		if cfg.OpenAI.BaseURL != "" {
			opts = append(opts, api.WithOpenAIBaseURL(cfg.OpenAI.BaseURL))
		}
		return api.NewOpenAIClient(cfg.OpenAI.APIKey, opts...), nil

	case config.ProviderVoicevox:
		client := api.NewVoicevoxClient(cfg.Voicevox.APIURL, cfg.Voicevox.Timeout, cfg.Voicevox.RequestsPerSecond)

		// 接続確認を兼ねて話者データをロードする
		slog.Info("VOICEVOX話者スタイルデータをロード中...", "api_url", cfg.Voicevox.APIURL)
		speakerData, err := api.LoadSpeakers(ctx, client)
		if err != nil {
			return nil, fmt.Errorf("VOICEVOXエンジンへの接続または話者データのロードに失敗しました: %w", err)
		}
		if _, numErr := strconv.Atoi(cfg.Voice); numErr != nil {
			if _, ok := speakerData.StyleID(cfg.Voice); !ok {
				return nil, fmt.Errorf("%w: %w", ErrConfig, &api.ErrUnknownVoice{Voice: cfg.Voice})
			}
		}
		slog.Info("VOICEVOX話者スタイルデータのロード完了。", "styles_count", len(speakerData.StyleIDMap))
		return client, nil

	default:
		return nil, &ErrInvalidConfig{Field: "provider", Details: fmt.Sprintf("未対応のプロバイダです: %s", cfg.Provider)}
	}
}
