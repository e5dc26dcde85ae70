package main

import (
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/shouni/go-audiobook/pkg/audiobook"
	"github.com/shouni/go-audiobook/pkg/audiobook/cache"
	"github.com/shouni/go-audiobook/pkg/audiobook/metrics"
	"github.com/shouni/go-audiobook/pkg/config"
)

// loadConfig は --config、環境変数、明示的に指定されたフラグから設定を読み込みます。
func loadConfig(cmd *cobra.Command, extra map[string]any) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	overrides := overridesFromFlags(cmd)
	for k, v := range extra {
		overrides[k] = v
	}
	cfg, err := config.Load(config.WithFile(path), config.WithOverrides(overrides))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", audiobook.ErrConfig, err)
	}
	return cfg, nil
}

func loadDocument(fsys afero.Fs, path string, cfg *config.Config) (*audiobook.Document, error) {
	policy := audiobook.HardCut
	if cfg.StrictSentences {
		policy = audiobook.Strict
	}
	return audiobook.LoadDocument(fsys, path, audiobook.DocumentOptions{
		ChunkSize:   cfg.ChunkSize,
		Disclaimer:  cfg.Disclaimer,
		Terminators: cfg.Terminators,
		Policy:      policy,
	})
}

// ----------------------------------------------------------------------
// estimate
// ----------------------------------------------------------------------

func newEstimateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "estimate <text-file>",
		Short: "チャンク数・文字数・概算費用を表示します",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			// 見積もりはネットワーク呼び出しを伴わない
			cfg, err := loadConfig(cmd, map[string]any{"dry_run": true})
			if err != nil {
				return err
			}

			fsys := afero.NewOsFs()
			doc, err := loadDocument(fsys, args[0], cfg)
			if err != nil {
				return err
			}

			executor, err := audiobook.NewEngineExecutor(cmd.Context(), cfg, fsys)
			if err != nil {
				return err
			}
			cost, err := executor.Estimate(doc)
			if err != nil {
				return err
			}

			stats := doc.Stats(cfg.UnitSize)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "document:   %s\n", doc.Name)
			fmt.Fprintf(out, "chunks:     %d\n", stats.Chunks)
			fmt.Fprintf(out, "characters: %d\n", stats.Characters)
			fmt.Fprintf(out, "model:      %s\n", cfg.Model)
			fmt.Fprintf(out, "estimated:  $%s\n", cost.StringFixed(4))
			return nil
		},
	}
}

// ----------------------------------------------------------------------
// create / sample
// ----------------------------------------------------------------------

func newCreateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create <text-file>",
		Short: "テキストファイル全体からオーディオブックを生成します",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSynthesis(cmd, args[0], func(executor audiobook.EngineExecutor, doc *audiobook.Document) (*audiobook.Report, error) {
				return executor.Execute(cmd.Context(), doc)
			})
		},
	}
}

func newSampleCmd() *cobra.Command {
	var chunkSelection, sampleSize int
	cmd := &cobra.Command{
		Use:   "sample <text-file>",
		Short: "選択したチャンクの先頭だけを合成して声やモデルを試します",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSynthesis(cmd, args[0], func(executor audiobook.EngineExecutor, doc *audiobook.Document) (*audiobook.Report, error) {
				return executor.CreateSample(cmd.Context(), doc, chunkSelection, sampleSize)
			})
		},
	}
	cmd.Flags().IntVar(&chunkSelection, "chunk", 0, "サンプルに使うチャンクの位置")
	cmd.Flags().IntVar(&sampleSize, "size", audiobook.DefaultSampleSize, "サンプルの文字数")
	return cmd
}

type runFunc func(audiobook.EngineExecutor, *audiobook.Document) (*audiobook.Report, error)

func runSynthesis(cmd *cobra.Command, path string, run runFunc) error {
	cfg, err := loadConfig(cmd, nil)
	if err != nil {
		return err
	}

	fsys := afero.NewOsFs()
	doc, err := loadDocument(fsys, path, cfg)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	recorder, err := metrics.NewPrometheus(registry)
	if err != nil {
		return err
	}

	executor, err := audiobook.NewEngineExecutor(cmd.Context(), cfg, fsys, audiobook.WithRecorder(recorder))
	if err != nil {
		return err
	}

	// 料金表にないモデルは合成前に設定エラーとする
	cost, err := executor.Estimate(doc)
	if err != nil {
		return err
	}
	slog.Info("概算費用", "model", cfg.Model, "chunks", len(doc.Chunks()), "usd", cost.StringFixed(4))

	report, runErr := run(executor, doc)

	if cfg.MetricsFile != "" {
		if err := metrics.WriteTextfile(cfg.MetricsFile, registry); err != nil {
			slog.Warn("メトリクスの書き出しに失敗しました", "error", err)
		}
	}

	if report != nil {
		printReport(cmd, report)
	}
	return runErr
}

func printReport(cmd *cobra.Command, r *audiobook.Report) {
	out := cmd.OutOrStdout()
	if r.OutputSkipped {
		fmt.Fprintf(out, "%s already exists, skipped\n", r.Output)
		return
	}
	fmt.Fprintf(out, "run %s: %s (synthesized %d, cached %d, skipped %d, failed %d)\n",
		r.RunID, r.Summary(), r.Synthesized, r.Cached, r.Skipped, r.Failed)
	if r.Bytes > 0 {
		fmt.Fprintf(out, "wrote %d bytes to %s\n", r.Bytes, r.Output)
	}
}

// ----------------------------------------------------------------------
// cache
// ----------------------------------------------------------------------

func newCacheCmd() *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "応答キャッシュを操作します",
	}
	cacheCmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "応答キャッシュを全て削除します",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, map[string]any{"dry_run": true})
			if err != nil {
				return err
			}
			if cfg.CacheDir == "" {
				return fmt.Errorf("%w: cache_dir が設定されていません", audiobook.ErrConfig)
			}

			n, err := cache.New(afero.NewOsFs(), cfg.CacheDir).Clear()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d cache entries from %s\n", n, cfg.CacheDir)
			return nil
		},
	})
	return cacheCmd
}
