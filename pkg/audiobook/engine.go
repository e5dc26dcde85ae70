package audiobook

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spf13/afero"
)

// Engine は分割・ディスパッチ・結合・書き込みを順に実行します。
type Engine struct {
	fs         afero.Fs
	dispatcher *Dispatcher
	assembler  *Assembler
	config     EngineConfig
}

// EngineConfig は Engine の設定です。
type EngineConfig struct {
	Provider         string
	Model            string
	Voice            string
	Format           string
	OutputDir        string
	OverwriteProtect bool
	KeepSegments     bool

	// 費用見積もり
	Prices     PriceTable
	PriceModel string // 料金表の参照キー。空の場合は Model
	UnitSize   int
}

// Report は1回の実行結果です。
type Report struct {
	RunID         string
	Output        string
	Total         int
	Synthesized   int
	Cached        int
	Skipped       int
	Failed        int
	FailedIndices []int
	OutputSkipped bool // 最終出力が既に存在したため何もしなかった場合 true
	Bytes         int
}

// Summary は実行結果の要約を返します。
func (r *Report) Summary() string {
	if len(r.FailedIndices) > 0 {
		return fmt.Sprintf("failed at indices %v", r.FailedIndices)
	}
	return "completed all chunks"
}

func (r *Report) applyCounts(segments []AudioSegment) {
	counts := countByStatus(segments)
	r.Total = len(segments)
	r.Synthesized = counts[StatusSynthesized]
	r.Cached = counts[StatusCached]
	r.Skipped = counts[StatusSkipped]
	r.Failed = counts[StatusFailed]
	r.FailedIndices = FailedIndices(segments)
}

// ----------------------------------------------------------------------
// Executeメソッド用のオプション定義 (Functional Options Pattern)
// ----------------------------------------------------------------------

// ExecuteConfig は Execute の実行中に適用されるオプション設定を保持します。
type ExecuteConfig struct {
	Tag string
}

// ExecuteOption はオプションを適用するための関数シグネチャ
type ExecuteOption func(*ExecuteConfig)

// WithTag は出力ファイル名に付与するタグを指定します。
func WithTag(tag string) ExecuteOption {
	return func(cfg *ExecuteConfig) {
		cfg.Tag = tag
	}
}

// NewEngine は新しい Engine インスタンスを作成し、依存関係を注入します。
func NewEngine(fs afero.Fs, dispatcher *Dispatcher, assembler *Assembler, config EngineConfig) *Engine {
	if config.Format == "" {
		config.Format = DefaultFormat
	}
	if config.UnitSize == 0 {
		config.UnitSize = DefaultUnitSize
	}
	if config.Prices == nil {
		config.Prices = DefaultPriceTable()
	}
	return &Engine{fs: fs, dispatcher: dispatcher, assembler: assembler, config: config}
}

// Estimate は Document 全体の概算費用を返します。
func (e *Engine) Estimate(doc *Document) (decimal.Decimal, error) {
	return estimate(doc, e.config)
}

func estimate(doc *Document, cfg EngineConfig) (decimal.Decimal, error) {
	return estimateChunks(doc.Chunks(), cfg)
}

func estimateChunks(chunks []Chunk, cfg EngineConfig) (decimal.Decimal, error) {
	model := cfg.PriceModel
	if model == "" {
		model = cfg.Model
	}
	prices := cfg.Prices
	if prices == nil {
		prices = DefaultPriceTable()
	}
	return EstimateCost(chunks, prices, model, cfg.UnitSize)
}

func (e *Engine) plan(doc *Document, count int, tag string) *RequestPlan {
	return NewRequestPlan(doc.Name, count, PlanOptions{
		Dir:    e.config.OutputDir,
		Voice:  e.config.Voice,
		Model:  e.config.Model,
		Format: e.config.Format,
		Tag:    tag,
	})
}

// ----------------------------------------------------------------------
// メイン処理 (Execute メソッド)
// ----------------------------------------------------------------------

// Execute は Document 全体を合成して1つのファイルに書き出します。
// 最終出力が既に存在し上書き防止が有効な場合は、ネットワーク呼び出しを行わずに終了します。
// いずれかのチャンクが失敗した場合は ErrSynthesisBatch を返し、最終出力は書き込みません。
func (e *Engine) Execute(ctx context.Context, doc *Document, opts ...ExecuteOption) (*Report, error) {
	cfg := &ExecuteConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	chunks := doc.Chunks()
	plan := e.plan(doc, len(chunks), cfg.Tag)
	return e.run(ctx, chunks, plan)
}

// CreateSample は選択したチャンクの先頭 sampleSize 文字を合成し、
// <name>_<voice>_<model>_sample.<ext> に書き出します。
// chunkSelection は有効なチャンク位置に、sampleSize は [5, チャンクの文字数] に丸められます。
func (e *Engine) CreateSample(ctx context.Context, doc *Document, chunkSelection, sampleSize int) (*Report, error) {
	chunks := doc.Chunks()
	if len(chunks) == 0 {
		return nil, &ErrEmptyInput{}
	}

	idx := clamp(chunkSelection, 0, len(chunks)-1)
	runes := []rune(chunks[idx].Text)
	size := clamp(sampleSize, minSampleSize, len(runes))
	if len(runes) < minSampleSize {
		size = len(runes)
	}
	if idx != chunkSelection || size != sampleSize {
		slog.InfoContext(ctx, "サンプル指定を有効な範囲に丸めました",
			"chunk_selection", idx, "sample_size", size)
	}

	text := string(runes[:size])
	sample := []Chunk{{Index: 0, Start: 0, End: len(text), Text: text}}
	plan := e.plan(doc, 1, SampleTag)
	return e.run(ctx, sample, plan)
}

func (e *Engine) run(ctx context.Context, chunks []Chunk, plan *RequestPlan) (*Report, error) {
	report := &Report{RunID: uuid.NewString(), Output: plan.OutputPath(), Total: len(chunks)}
	logger := slog.With("run_id", report.RunID, "output", report.Output)

	// 1. 料金表の確認。未知のモデルはネットワーク呼び出し前に設定エラーとする
	cost, err := estimateChunks(chunks, e.config)
	if err != nil {
		return report, err
	}

	// 2. 最終出力の存在確認
	if e.config.OverwriteProtect {
		exists, err := afero.Exists(e.fs, report.Output)
		if err != nil {
			return report, fmt.Errorf("出力ファイルの存在確認に失敗しました (%s): %w", report.Output, err)
		}
		if exists {
			logger.InfoContext(ctx, "出力ファイルが既に存在するため処理をスキップします")
			report.OutputSkipped = true
			return report, nil
		}
	}

	if len(chunks) == 0 {
		return report, &ErrEmptyInput{}
	}

	// 3. チャンク単位のスキップ判定
	skipMask, err := plan.SkipMask(e.fs, e.config.OverwriteProtect)
	if err != nil {
		return report, err
	}

	// 4. ディスパッチ
	logger.InfoContext(ctx, "音声合成バッチ処理開始", "total_chunks", len(chunks), "estimated_cost_usd", cost.StringFixed(4))
	segments, err := e.dispatcher.Dispatch(ctx, chunks, skipMask)
	if err != nil {
		if segments != nil {
			report.applyCounts(segments)
			// 中断前に合成済みのチャンクは残し、再実行でスキップさせる
			if werr := e.keepSegments(segments, plan); werr != nil {
				logger.WarnContext(ctx, "中断時のチャンク書き込みに失敗しました", "error", werr)
			}
		}
		return report, fmt.Errorf("音声合成が中断されました: %w", err)
	}
	report.applyCounts(segments)

	// 5. チャンク単位の書き込み (失敗があっても成功分は残し、次回の再実行でスキップさせる)
	if err := e.keepSegments(segments, plan); err != nil {
		return report, err
	}

	if len(report.FailedIndices) > 0 {
		errs := make([]error, 0, len(report.FailedIndices))
		details := make([]string, 0, len(report.FailedIndices))
		for _, i := range report.FailedIndices {
			errs = append(errs, segments[i].Err)
			details = append(details, segments[i].Err.Error())
		}
		logger.ErrorContext(ctx, "一部のチャンクの合成に失敗しました", "failed_indices", report.FailedIndices)
		return report, &ErrSynthesisBatch{FailedIndices: report.FailedIndices, Details: details, Errs: errs}
	}

	// 6. 結合
	data, err := e.assembler.Assemble(segments, plan)
	if err != nil {
		return report, err
	}

	// 7. 書き込み
	res, err := e.assembler.Write(report.Output, data)
	if err != nil {
		return report, err
	}
	report.OutputSkipped = res.Skipped
	report.Bytes = res.Bytes

	logger.InfoContext(ctx, "音声ファイルの生成が完了しました", "bytes", res.Bytes, "summary", report.Summary())
	return report, nil
}

// keepSegments は KeepSegments が有効な場合に音声を持つチャンクをファイルへ書き出します。
func (e *Engine) keepSegments(segments []AudioSegment, plan *RequestPlan) error {
	if !e.config.KeepSegments {
		return nil
	}
	if _, err := e.assembler.WriteSegments(segments, plan); err != nil {
		return fmt.Errorf("チャンク単位のファイル書き込みに失敗しました: %w", err)
	}
	return nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
