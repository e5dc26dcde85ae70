// Package metrics はディスパッチ処理の計測値を記録します。
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "audiobook"

// Recorder はディスパッチャが計測値を通知する先です。
type Recorder interface {
	RequestIssued()
	RequestFailed(rateLimited bool)
	SegmentSkipped()
	CacheHit()
	RateLimitWait(d time.Duration)
}

type nopRecorder struct{}

// Nop は何も記録しない Recorder を返します。
func Nop() Recorder { return nopRecorder{} }

func (nopRecorder) RequestIssued() {}
func (nopRecorder) RequestFailed(bool) {}
func (nopRecorder) SegmentSkipped() {}
func (nopRecorder) CacheHit() {}
func (nopRecorder) RateLimitWait(time.Duration) {}

// Prometheus は prometheus のコレクタに記録する Recorder です。
type Prometheus struct {
	requests    prometheus.Counter
	failures    *prometheus.CounterVec
	skipped     prometheus.Counter
	cacheHits   prometheus.Counter
	waitSeconds prometheus.Histogram
}

// NewPrometheus はコレクタを生成し reg に登録します。
func NewPrometheus(reg prometheus.Registerer) (*Prometheus, error) {
	p := &Prometheus{
		requests: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Number of synthesis requests issued to the provider.",
		}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "request_failures_total",
			Help:      "Number of failed synthesis requests.",
		}, []string{"reason"}),
		skipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segments_skipped_total",
			Help:      "Number of chunks skipped by overwrite protection.",
		}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Number of chunks served from the response cache.",
		}),
		waitSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rate_limit_wait_seconds",
			Help:      "Time spent waiting for a rate limit slot.",
			Buckets:   []float64{0.1, 1, 5, 15, 30, 60, 120},
		}),
	}

	for _, c := range []prometheus.Collector{p.requests, p.failures, p.skipped, p.cacheHits, p.waitSeconds} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("メトリクスの登録に失敗しました: %w", err)
		}
	}
	return p, nil
}

func (p *Prometheus) RequestIssued() { p.requests.Inc() }

func (p *Prometheus) RequestFailed(rateLimited bool) {
	reason := "provider"
	if rateLimited {
		reason = "rate_limited"
	}
	p.failures.WithLabelValues(reason).Inc()
}

func (p *Prometheus) SegmentSkipped() { p.skipped.Inc() }

func (p *Prometheus) CacheHit() { p.cacheHits.Inc() }

func (p *Prometheus) RateLimitWait(d time.Duration) { p.waitSeconds.Observe(d.Seconds()) }

// WriteTextfile は gatherer の内容を Prometheus テキスト形式でファイルに書き出します。
func WriteTextfile(path string, gatherer prometheus.Gatherer) error {
	if err := prometheus.WriteToTextfile(path, gatherer); err != nil {
		return fmt.Errorf("メトリクスファイルの書き込みに失敗しました (%s): %w", path, err)
	}
	return nil
}
