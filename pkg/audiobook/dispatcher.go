package audiobook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/shouni/go-audiobook/pkg/audiobook/api"
	"github.com/shouni/go-audiobook/pkg/audiobook/cache"
	"github.com/shouni/go-audiobook/pkg/audiobook/metrics"
)

// ResponseCache はディスパッチャが利用する応答キャッシュです。
type ResponseCache interface {
	Get(key cache.Key) ([]byte, bool, error)
	Put(entry cache.Entry, data []byte) error
}

// DispatcherConfig は Dispatcher の設定です。
type DispatcherConfig struct {
	Provider    string // キャッシュキーに含めるプロバイダ名
	Model       string
	Voice       string
	Format      string
	MaxParallel int

	Limiter  Limiter
	Clock    Clock
	Cache    ResponseCache    // nil の場合はキャッシュを使用しない
	Recorder metrics.Recorder // nil の場合は記録しない
}

// Dispatcher はチャンク列をチャンク順に、レート制限を守りながらプロバイダへ送信します。
type Dispatcher struct {
	synth  api.Synthesizer
	config DispatcherConfig
}

// NewDispatcher は Dispatcher を生成します。Limiter は必須です。
func NewDispatcher(synth api.Synthesizer, config DispatcherConfig) (*Dispatcher, error) {
	if synth == nil {
		return nil, &ErrInvalidConfig{Field: "provider", Details: "合成クライアントが指定されていません"}
	}
	if config.Limiter == nil {
		return nil, &ErrInvalidConfig{Field: "rate_limit_mode", Details: "Limiter が指定されていません"}
	}
	if config.MaxParallel <= 0 {
		config.MaxParallel = DefaultMaxParallel
	}
	if config.Clock == nil {
		config.Clock = RealClock()
	}
	if config.Recorder == nil {
		config.Recorder = metrics.Nop()
	}
	return &Dispatcher{synth: synth, config: config}, nil
}

// Dispatch は各チャンクを合成し、チャンクと同じ順序・長さのセグメント列を返します。
//
// skipMask が true の位置は合成せず StatusSkipped とします。キャッシュヒットと同様に
// レート制限の枠は消費しません。プロバイダの失敗は該当位置を StatusFailed として
// 後続の処理を継続します。ctx がキャンセルされた場合、未処理の位置を StatusFailed とし
// ctx のエラーを返します。
func (d *Dispatcher) Dispatch(ctx context.Context, chunks []Chunk, skipMask []bool) ([]AudioSegment, error) {
	if len(skipMask) != 0 && len(skipMask) != len(chunks) {
		return nil, &ErrInvalidConfig{
			Field:   "skip_mask",
			Details: fmt.Sprintf("長さ %d がチャンク数 %d と一致しません", len(skipMask), len(chunks)),
		}
	}

	segments := make([]AudioSegment, len(chunks))
	sem := semaphore.NewWeighted(int64(d.config.MaxParallel))
	var g errgroup.Group

	slog.InfoContext(ctx, "音声合成ディスパッチ開始", "total_chunks", len(chunks), "max_parallel", d.config.MaxParallel)

	var cancelErr error
	for i, chunk := range chunks {
		segments[i].Index = i

		if len(skipMask) > 0 && skipMask[i] {
			segments[i].Status = StatusSkipped
			d.config.Recorder.SegmentSkipped()
			slog.DebugContext(ctx, "既存ファイルがあるためチャンクをスキップします", "chunk_index", i)
			continue
		}

		if err := ctx.Err(); err != nil {
			cancelErr = err
			d.failRemaining(segments, i, err)
			break
		}

		if data, ok := d.lookupCache(ctx, chunk); ok {
			segments[i].Data = data
			segments[i].Status = StatusCached
			d.config.Recorder.CacheHit()
			continue
		}

		// 並列枠を先に確保し、レート制限の枠は発行直前に確保する
		if err := sem.Acquire(ctx, 1); err != nil {
			cancelErr = err
			d.failRemaining(segments, i, err)
			break
		}
		waitStart := d.config.Clock.Now()
		if err := d.config.Limiter.Acquire(ctx); err != nil {
			sem.Release(1)
			cancelErr = err
			d.failRemaining(segments, i, err)
			break
		}
		if waited := d.config.Clock.Now().Sub(waitStart); waited > 0 {
			d.config.Recorder.RateLimitWait(waited)
			slog.InfoContext(ctx, "レート制限のため待機しました", "chunk_index", i, "waited", waited.String())
		}

		d.config.Recorder.RequestIssued()
		g.Go(func() error {
			defer sem.Release(1)
			segments[i] = d.synthesize(ctx, i, chunk)
			return nil
		})
	}

	_ = g.Wait()

	if cancelErr != nil {
		slog.WarnContext(ctx, "ディスパッチがキャンセルされました", "error", cancelErr)
		return segments, cancelErr
	}

	counts := countByStatus(segments)
	slog.InfoContext(ctx, "音声合成ディスパッチ完了",
		"synthesized", counts[StatusSynthesized],
		"cached", counts[StatusCached],
		"skipped", counts[StatusSkipped],
		"failed", counts[StatusFailed])
	return segments, nil
}

// synthesize は1チャンクをプロバイダへ送信し、結果をセグメントとして返します。
func (d *Dispatcher) synthesize(ctx context.Context, index int, chunk Chunk) AudioSegment {
	seg := AudioSegment{Index: index}

	data, err := d.synth.Synthesize(ctx, api.SpeechRequest{
		Index:  index,
		Model:  d.config.Model,
		Voice:  d.config.Voice,
		Format: d.config.Format,
		Text:   chunk.Text,
	})
	if err != nil {
		seg.Status = StatusFailed
		if errors.Is(err, api.ErrRateLimited) {
			// ペース配分が正しければ発生しない。リトライはしない
			seg.Err = &ErrRateLimit{Index: index, WrappedErr: err}
			d.config.Recorder.RequestFailed(true)
			slog.ErrorContext(ctx, "プロバイダのレート制限に到達しました。レート制限設定を見直してください", "chunk_index", index, "error", err)
			return seg
		}
		seg.Err = &ErrProviderCall{Index: index, WrappedErr: err}
		d.config.Recorder.RequestFailed(false)
		slog.ErrorContext(ctx, "チャンクの音声合成に失敗しました", "chunk_index", index, "error", err)
		return seg
	}

	seg.Data = data
	seg.Status = StatusSynthesized
	d.storeCache(ctx, chunk, data)
	slog.DebugContext(ctx, "チャンクの音声合成が完了しました", "chunk_index", index, "bytes", len(data))
	return seg
}

// failRemaining は from 以降の全位置をキャンセルによる失敗として記録します。
func (d *Dispatcher) failRemaining(segments []AudioSegment, from int, err error) {
	for j := from; j < len(segments); j++ {
		segments[j] = AudioSegment{Index: j, Status: StatusFailed, Err: err}
	}
}

// ----------------------------------------------------------------------
// キャッシュ
// ----------------------------------------------------------------------

func (d *Dispatcher) cacheKey(chunk Chunk) cache.Key {
	return cache.KeyFor(d.config.Provider, d.config.Model, d.config.Voice, d.config.Format, chunk.Text)
}

func (d *Dispatcher) lookupCache(ctx context.Context, chunk Chunk) ([]byte, bool) {
	if d.config.Cache == nil {
		return nil, false
	}
	data, ok, err := d.config.Cache.Get(d.cacheKey(chunk))
	if err != nil {
		// 読めないキャッシュは存在しないものとして扱う
		slog.WarnContext(ctx, "キャッシュの読み込みに失敗しました", "chunk_index", chunk.Index, "error", err)
		return nil, false
	}
	if ok {
		slog.DebugContext(ctx, "キャッシュヒット", "chunk_index", chunk.Index)
	}
	return data, ok
}

func (d *Dispatcher) storeCache(ctx context.Context, chunk Chunk, data []byte) {
	if d.config.Cache == nil {
		return
	}
	entry := cache.Entry{
		Key:     d.cacheKey(chunk),
		Model:   d.config.Model,
		Voice:   d.config.Voice,
		Format:  d.config.Format,
		TextLen: chunk.Len(),
	}
	if err := d.config.Cache.Put(entry, data); err != nil {
		slog.WarnContext(ctx, "キャッシュへの保存に失敗しました", "chunk_index", chunk.Index, "error", err)
	}
}
