package audiobook

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shouni/go-audiobook/pkg/audiobook/api"
	"github.com/shouni/go-audiobook/pkg/audiobook/audio"
	"github.com/shouni/go-audiobook/pkg/config"
)

const threeSentences = "One. Two. Three."

func newTestDocument(t *testing.T, text string) *Document {
	t.Helper()
	doc, err := NewDocument("book", text, DocumentOptions{ChunkSize: 7})
	require.NoError(t, err)
	return doc
}

func newTestEngine(t *testing.T, fs afero.Fs, synth *fakeSynth, cfg EngineConfig) *Engine {
	t.Helper()
	if cfg.Model == "" {
		cfg.Model = "tts-1"
	}
	if cfg.Voice == "" {
		cfg.Voice = "onyx"
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = "out"
	}
	d, err := NewDispatcher(synth, DispatcherConfig{
		Model:   cfg.Model,
		Voice:   cfg.Voice,
		Format:  "mp3",
		Limiter: &countingLimiter{},
	})
	require.NoError(t, err)
	return NewEngine(fs, d, NewAssembler(fs, audio.Concat{}, cfg.OverwriteProtect), cfg)
}

func TestEngine_Execute(t *testing.T) {
	ctx := context.Background()
	output := filepath.Join("out", "book_onyx_tts-1.mp3")

	t.Run("Should synthesize, join and write the audiobook", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		synth := &fakeSynth{}
		e := newTestEngine(t, fs, synth, EngineConfig{OverwriteProtect: true})

		report, err := e.Execute(ctx, newTestDocument(t, threeSentences))
		require.NoError(t, err)
		assert.Equal(t, output, report.Output)
		assert.Equal(t, 3, report.Total)
		assert.Equal(t, 3, report.Synthesized)
		assert.NotEmpty(t, report.RunID)
		assert.Equal(t, "completed all chunks", report.Summary())

		got, err := afero.ReadFile(fs, output)
		require.NoError(t, err)
		assert.Equal(t, "<0:One.><1: Two.><2: Three.>", string(got))
		assert.Equal(t, len(got), report.Bytes)
	})

	t.Run("Should do nothing when the output already exists", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		require.NoError(t, afero.WriteFile(fs, output, []byte("existing"), 0644))
		synth := &fakeSynth{}
		e := newTestEngine(t, fs, synth, EngineConfig{OverwriteProtect: true})

		report, err := e.Execute(ctx, newTestDocument(t, threeSentences))
		require.NoError(t, err)
		assert.True(t, report.OutputSkipped)
		assert.Empty(t, synth.callIndices())

		got, err := afero.ReadFile(fs, output)
		require.NoError(t, err)
		assert.Equal(t, "existing", string(got))
	})

	t.Run("Should overwrite the output without protection", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		require.NoError(t, afero.WriteFile(fs, output, []byte("existing"), 0644))
		e := newTestEngine(t, fs, &fakeSynth{}, EngineConfig{OverwriteProtect: false})

		report, err := e.Execute(ctx, newTestDocument(t, threeSentences))
		require.NoError(t, err)
		assert.False(t, report.OutputSkipped)

		got, err := afero.ReadFile(fs, output)
		require.NoError(t, err)
		assert.Equal(t, "<0:One.><1: Two.><2: Three.>", string(got))
	})

	t.Run("Should report failed indices and write no output", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		synth := &fakeSynth{failAt: map[int]error{1: errors.New("boom")}}
		e := newTestEngine(t, fs, synth, EngineConfig{OverwriteProtect: true})

		report, err := e.Execute(ctx, newTestDocument(t, threeSentences))
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrProvider)

		var batch *ErrSynthesisBatch
		require.ErrorAs(t, err, &batch)
		assert.Equal(t, []int{1}, batch.FailedIndices)
		assert.Contains(t, err.Error(), "failed at indices [1]")
		assert.Equal(t, "failed at indices [1]", report.Summary())

		exists, err := afero.Exists(fs, output)
		require.NoError(t, err)
		assert.False(t, exists)
	})

	t.Run("Should resume from kept segments after a failure", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		cfg := EngineConfig{OverwriteProtect: true, KeepSegments: true}
		doc := newTestDocument(t, threeSentences)

		failing := &fakeSynth{failAt: map[int]error{1: errors.New("boom")}}
		_, err := newTestEngine(t, fs, failing, cfg).Execute(ctx, doc)
		require.Error(t, err)

		retry := &fakeSynth{}
		report, err := newTestEngine(t, fs, retry, cfg).Execute(ctx, doc)
		require.NoError(t, err)
		assert.Equal(t, []int{1}, retry.callIndices())
		assert.Equal(t, 2, report.Skipped)

		got, err := afero.ReadFile(fs, output)
		require.NoError(t, err)
		assert.Equal(t, "<0:One.><1: Two.><2: Three.>", string(got))
	})

	t.Run("Should surface every chunk error through the batch error", func(t *testing.T) {
		synth := &fakeSynth{failAt: map[int]error{
			0: &api.ErrAPIResponse{Endpoint: "/audio/speech", StatusCode: http.StatusTooManyRequests},
			2: errors.New("boom"),
		}}
		e := newTestEngine(t, afero.NewMemMapFs(), synth, EngineConfig{OverwriteProtect: true})

		_, err := e.Execute(ctx, newTestDocument(t, threeSentences))
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrProvider)
		assert.ErrorIs(t, err, ErrRateLimitExceeded)
		assert.ErrorIs(t, err, api.ErrRateLimited)

		var batch *ErrSynthesisBatch
		require.ErrorAs(t, err, &batch)
		assert.Equal(t, []int{0, 2}, batch.FailedIndices)
		require.Len(t, batch.Errs, 2)

		var callErr *ErrProviderCall
		require.ErrorAs(t, batch.Errs[1], &callErr)
		assert.Equal(t, 2, callErr.Index)
	})

	t.Run("Should reject an unknown model before any provider call", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		synth := &fakeSynth{}
		e := newTestEngine(t, fs, synth, EngineConfig{Model: "tts-unknown", OverwriteProtect: true})

		_, err := e.Execute(ctx, newTestDocument(t, threeSentences))
		require.ErrorIs(t, err, ErrConfig)
		var unknown *ErrUnknownModel
		require.ErrorAs(t, err, &unknown)
		assert.Equal(t, "tts-unknown", unknown.Model)

		_, err = e.CreateSample(ctx, newTestDocument(t, threeSentences), 0, 100)
		assert.ErrorIs(t, err, ErrConfig)

		assert.Empty(t, synth.callIndices())
		files, err := afero.ReadDir(fs, "/")
		require.NoError(t, err)
		assert.Empty(t, files)
	})

	t.Run("Should keep segments synthesized before cancellation and resume from them", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		cfg := EngineConfig{OverwriteProtect: true, KeepSegments: true}
		doc := newTestDocument(t, threeSentences)

		cancelCtx, cancel := context.WithCancel(context.Background())
		defer cancel()
		cancelling := &fakeSynth{onCall: func(req api.SpeechRequest) {
			if req.Index == 1 {
				cancel()
			}
		}}

		report, err := newTestEngine(t, fs, cancelling, cfg).Execute(cancelCtx, doc)
		require.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 2, report.Synthesized)

		plan := NewRequestPlan("book", 3, PlanOptions{Dir: "out", Voice: "onyx", Model: "tts-1", Format: "mp3"})
		for i, want := range []bool{true, true, false} {
			exists, err := afero.Exists(fs, plan.Targets[i].Path)
			require.NoError(t, err)
			assert.Equal(t, want, exists, "segment %d", i)
		}

		retry := &fakeSynth{}
		report, err = newTestEngine(t, fs, retry, cfg).Execute(ctx, doc)
		require.NoError(t, err)
		assert.Equal(t, []int{2}, retry.callIndices())
		assert.Equal(t, 2, report.Skipped)

		got, err := afero.ReadFile(fs, output)
		require.NoError(t, err)
		assert.Equal(t, "<0:One.><1: Two.><2: Three.>", string(got))
	})

	t.Run("Should append the tag option to the output name", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		e := newTestEngine(t, fs, &fakeSynth{}, EngineConfig{OverwriteProtect: true})

		report, err := e.Execute(ctx, newTestDocument(t, threeSentences), WithTag("v2"))
		require.NoError(t, err)
		assert.Equal(t, filepath.Join("out", "book_onyx_tts-1_v2.mp3"), report.Output)
	})

	t.Run("Should fail for an empty document", func(t *testing.T) {
		e := newTestEngine(t, afero.NewMemMapFs(), &fakeSynth{}, EngineConfig{OverwriteProtect: true})
		_, err := e.Execute(ctx, newTestDocument(t, ""))
		assert.ErrorIs(t, err, ErrAssembly)
	})
}

func TestEngine_CreateSample(t *testing.T) {
	ctx := context.Background()
	sampleOutput := filepath.Join("out", "book_onyx_tts-1_sample.mp3")

	t.Run("Should synthesize the head of the selected chunk", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		synth := &fakeSynth{}
		e := newTestEngine(t, fs, synth, EngineConfig{OverwriteProtect: true})
		doc, err := NewDocument("book", "First sentence here. Second sentence here.", DocumentOptions{ChunkSize: 25})
		require.NoError(t, err)

		report, err := e.CreateSample(ctx, doc, 1, 7)
		require.NoError(t, err)
		assert.Equal(t, sampleOutput, report.Output)
		require.Len(t, synth.calls, 1)
		assert.Equal(t, " Second", synth.calls[0].Text)

		exists, err := afero.Exists(fs, sampleOutput)
		require.NoError(t, err)
		assert.True(t, exists)
	})

	t.Run("Should clamp the selection and the sample size", func(t *testing.T) {
		synth := &fakeSynth{}
		e := newTestEngine(t, afero.NewMemMapFs(), synth, EngineConfig{OverwriteProtect: true})
		doc := newTestDocument(t, threeSentences)

		_, err := e.CreateSample(ctx, doc, 99, 1)
		require.NoError(t, err)
		require.Len(t, synth.calls, 1)
		// 最後のチャンク " Three." の先頭5文字
		assert.Equal(t, " Thre", synth.calls[0].Text)
	})

	t.Run("Should clamp a negative selection and an oversized sample", func(t *testing.T) {
		synth := &fakeSynth{}
		e := newTestEngine(t, afero.NewMemMapFs(), synth, EngineConfig{OverwriteProtect: true})

		_, err := e.CreateSample(ctx, newTestDocument(t, threeSentences), -3, 10_000)
		require.NoError(t, err)
		assert.Equal(t, "One.", synth.calls[0].Text)
	})

	t.Run("Should not resynthesize an existing sample", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		require.NoError(t, afero.WriteFile(fs, sampleOutput, []byte("old"), 0644))
		synth := &fakeSynth{}
		e := newTestEngine(t, fs, synth, EngineConfig{OverwriteProtect: true})

		report, err := e.CreateSample(ctx, newTestDocument(t, threeSentences), 0, 100)
		require.NoError(t, err)
		assert.True(t, report.OutputSkipped)
		assert.Empty(t, synth.callIndices())
	})
}

func TestEngine_Estimate(t *testing.T) {
	e := newTestEngine(t, afero.NewMemMapFs(), &fakeSynth{}, EngineConfig{Model: "tts-1-hd"})
	doc, err := NewDocument("book", strings.Repeat("a", 2500), DocumentOptions{ChunkSize: 4096})
	require.NoError(t, err)

	cost, err := e.Estimate(doc)
	require.NoError(t, err)
	assert.Equal(t, "0.09", cost.String())
}

func TestNewEngineExecutor(t *testing.T) {
	ctx := context.Background()

	t.Run("Should return a no-op executor for dry runs", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		cfg := config.Default()
		cfg.DryRun = true

		executor, err := NewEngineExecutor(ctx, cfg, fs)
		require.NoError(t, err)
		assert.IsType(t, &noopEngineExecutor{}, executor)

		doc := newTestDocument(t, threeSentences)
		report, err := executor.Execute(ctx, doc)
		require.NoError(t, err)
		assert.NotEmpty(t, report.RunID)
		assert.Zero(t, report.Total)

		files, err := afero.ReadDir(fs, "/")
		require.NoError(t, err)
		assert.Empty(t, files)
	})

	t.Run("Should estimate VOICEVOX runs as free", func(t *testing.T) {
		cfg := config.Default()
		cfg.DryRun = true
		cfg.Provider = config.ProviderVoicevox

		executor, err := NewEngineExecutor(ctx, cfg, afero.NewMemMapFs())
		require.NoError(t, err)
		cost, err := executor.Estimate(newTestDocument(t, threeSentences))
		require.NoError(t, err)
		assert.True(t, cost.IsZero())
	})

	t.Run("Should assemble a working engine from the config", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		cfg := config.Default()
		cfg.OutputDir = "audio"
		cfg.KeepSegments = true
		cfg.CacheDir = "cache"
		synth := &fakeSynth{}

		executor, err := NewEngineExecutor(ctx, cfg, fs, WithSynthesizer(synth), WithClock(newManualClock()))
		require.NoError(t, err)

		report, err := executor.Execute(ctx, newTestDocument(t, threeSentences))
		require.NoError(t, err)
		assert.Equal(t, filepath.Join("audio", "book_onyx_tts-1.mp3"), report.Output)

		segments, err := afero.ReadDir(fs, filepath.Join("audio", "segments"))
		require.NoError(t, err)
		assert.Len(t, segments, 3)

		cached, err := afero.ReadDir(fs, "cache")
		require.NoError(t, err)
		assert.NotEmpty(t, cached)
	})

	t.Run("Should fail an unknown model without calling the provider", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		cfg := config.Default()
		cfg.Model = "tts-unknown"
		synth := &fakeSynth{}

		executor, err := NewEngineExecutor(ctx, cfg, fs, WithSynthesizer(synth), WithClock(newManualClock()))
		require.NoError(t, err)

		_, err = executor.Estimate(newTestDocument(t, threeSentences))
		assert.ErrorIs(t, err, ErrConfig)
		_, err = executor.Execute(ctx, newTestDocument(t, threeSentences))
		assert.ErrorIs(t, err, ErrConfig)
		assert.Empty(t, synth.callIndices())
	})

	t.Run("Should reject formats that cannot be joined", func(t *testing.T) {
		cfg := config.Default()
		cfg.Format = "flac"

		_, err := NewEngineExecutor(ctx, cfg, afero.NewMemMapFs(), WithSynthesizer(&fakeSynth{}))
		assert.ErrorIs(t, err, ErrConfig)
	})

	t.Run("Should require an API key for OpenAI", func(t *testing.T) {
		cfg := config.Default()
		cfg.OpenAI.APIKey = ""

		_, err := NewEngineExecutor(ctx, cfg, afero.NewMemMapFs())
		assert.ErrorIs(t, err, ErrConfig)
	})
}
