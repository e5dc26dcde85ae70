package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	charmlog "github.com/charmbracelet/log"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// ----------------------------------------------------------------------
// CLI フラグ → 設定パス
// ----------------------------------------------------------------------

// configFlags は設定値を上書きするフラグ名と設定パスの対応です。
var configFlags = map[string]string{
	"provider":          "provider",
	"chunk-size":        "chunk_size",
	"model":             "model",
	"voice":             "voice",
	"format":            "format",
	"overwrite-protect": "overwrite_protect",
	"rpm":               "max_requests_per_minute",
	"rate-limit-mode":   "rate_limit_mode",
	"max-parallel":      "max_parallel",
	"output-dir":        "output_dir",
	"keep-segments":     "keep_segments",
	"cache-dir":         "cache_dir",
	"strict":            "strict_sentences",
	"dry-run":           "dry_run",
	"metrics-file":      "metrics_file",
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		slog.Error("実行に失敗しました。", "error", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "audiobook",
		Short:         "テキストファイルから音声合成APIでオーディオブックを生成します",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// .env は存在しなくてもよい
			if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf(".env の読み込みに失敗しました: %w", err)
			}
			level, _ := cmd.Flags().GetString("log-level")
			logJSON, _ := cmd.Flags().GetBool("log-json")
			setupLogger(level, logJSON)
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.String("config", "", "YAML 設定ファイルのパス")
	pf.String("log-level", "info", "ログレベル (debug, info, warn, error)")
	pf.Bool("log-json", false, "ログを JSON 形式で出力する")

	pf.String("provider", "", "音声合成プロバイダ (openai, voicevox)")
	pf.Int("chunk-size", 0, "1リクエストあたりの最大文字数")
	pf.String("model", "", "モデルID (tts-1, tts-1-hd, ...)")
	pf.String("voice", "", "声 (onyx, alloy, ... / VOICEVOX は \"話者/スタイル\")")
	pf.String("format", "", "出力フォーマット (mp3, opus, aac, wav, pcm)")
	pf.Bool("overwrite-protect", true, "既存ファイルがあれば合成・書き込みをしない (false で上書き)")
	pf.Int("rpm", 0, "ウィンドウあたりの最大リクエスト数")
	pf.String("rate-limit-mode", "", "レート制限方式 (sliding, fixed)")
	pf.Int("max-parallel", 0, "同時に実行するリクエスト数")
	pf.String("output-dir", "", "出力ディレクトリ")
	pf.Bool("keep-segments", false, "チャンク単位のファイルを残す")
	pf.String("cache-dir", "", "応答キャッシュのディレクトリ")
	pf.Bool("strict", false, "文末記号が見つからない場合に分割を中止する")
	pf.Bool("dry-run", false, "見積もりのみを行い音声合成はしない")
	pf.String("metrics-file", "", "Prometheus テキスト形式でメトリクスを書き出すファイル")

	root.AddCommand(newEstimateCmd(), newCreateCmd(), newSampleCmd(), newCacheCmd())
	return root
}

// overridesFromFlags は明示的に指定されたフラグだけを設定パスに変換します。
func overridesFromFlags(cmd *cobra.Command) map[string]any {
	out := make(map[string]any)
	flags := cmd.Flags()
	for name, path := range configFlags {
		f := flags.Lookup(name)
		if f == nil || !f.Changed {
			continue
		}
		out[path] = f.Value.String()
	}
	return out
}

// setupLogger は charmbracelet/log を slog のデフォルトハンドラとして設定します。
func setupLogger(level string, logJSON bool) {
	lv, err := charmlog.ParseLevel(level)
	if err != nil {
		lv = charmlog.InfoLevel
	}

	logger := charmlog.NewWithOptions(os.Stderr, charmlog.Options{
		ReportTimestamp: true,
		TimeFormat:      time.TimeOnly,
		Level:           lv,
	})
	if logJSON {
		logger.SetFormatter(charmlog.JSONFormatter)
	}
	slog.SetDefault(slog.New(logger))
}
