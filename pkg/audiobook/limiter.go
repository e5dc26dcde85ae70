package audiobook

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Limiter はリクエスト発行前に呼び出し、発行枠を確保します。
type Limiter interface {
	Acquire(ctx context.Context) error
}

// 制限モード
const (
	LimitModeFixed   = "fixed"
	LimitModeSliding = "sliding"
)

// NewLimiter は mode に対応する Limiter を生成します。mode が空の場合は sliding です。
func NewLimiter(mode string, clock Clock, maxPerWindow int, window, margin time.Duration) (Limiter, error) {
	if maxPerWindow <= 0 {
		return nil, &ErrInvalidConfig{Field: "max_requests_per_minute", Details: "1以上である必要があります"}
	}
	if window <= 0 {
		return nil, &ErrInvalidConfig{Field: "rate_limit_window", Details: "正の値である必要があります"}
	}

	switch mode {
	case "", LimitModeSliding:
		return NewSlidingLimiter(clock, maxPerWindow, window), nil
	case LimitModeFixed:
		return NewWindowLimiter(clock, maxPerWindow, window, margin), nil
	default:
		return nil, &ErrInvalidConfig{Field: "rate_limit_mode", Details: fmt.Sprintf("未対応のモードです: %s", mode)}
	}
}

// ----------------------------------------------------------------------
// 固定ウィンドウ (リセット方式)
// ----------------------------------------------------------------------

// WindowLimiter はウィンドウ開始時刻と発行数を持ち、上限に達したら
// ウィンドウ開始から window + margin が経過するまで待機してからリセットします。
//
// 上限に達しないままウィンドウが満了した場合も待機せずにリセットするため、
// ウィンドウの境界をまたぐ任意の window 区間では最大 2×max 件が発行され得ます。
// 任意の区間で max 件以下を保証する必要がある場合は SlidingLimiter を使用してください。
type WindowLimiter struct {
	clock  Clock
	max    int
	window time.Duration
	margin time.Duration

	mu      sync.Mutex
	started bool
	start   time.Time
	issued  int
}

// NewWindowLimiter は固定ウィンドウ方式の Limiter を生成します。
func NewWindowLimiter(clock Clock, maxPerWindow int, window, margin time.Duration) *WindowLimiter {
	return &WindowLimiter{clock: clock, max: maxPerWindow, window: window, margin: margin}
}

func (l *WindowLimiter) Acquire(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		l.mu.Lock()
		now := l.clock.Now()
		if !l.started || now.Sub(l.start) >= l.window {
			l.started = true
			l.start = now
			l.issued = 0
		}
		if l.issued < l.max {
			l.issued++
			l.mu.Unlock()
			return nil
		}
		resumeAt := l.start.Add(l.window + l.margin)
		l.mu.Unlock()

		// 待機中はロックを保持しない。再開後のループでウィンドウがリセットされる
		if err := l.clock.WaitUntil(ctx, resumeAt); err != nil {
			return err
		}
	}
}

// ----------------------------------------------------------------------
// スライディングウィンドウ
// ----------------------------------------------------------------------

// SlidingLimiter は直近 max 件の発行時刻を保持し、任意の連続した window 内の
// 発行数が max を超えないことを保証します。
type SlidingLimiter struct {
	clock  Clock
	max    int
	window time.Duration

	mu     sync.Mutex
	issued []time.Time // 古い順。長さは最大 max
}

// NewSlidingLimiter はスライディングウィンドウ方式の Limiter を生成します。
func NewSlidingLimiter(clock Clock, maxPerWindow int, window time.Duration) *SlidingLimiter {
	return &SlidingLimiter{clock: clock, max: maxPerWindow, window: window}
}

func (l *SlidingLimiter) Acquire(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		l.mu.Lock()
		now := l.clock.Now()
		if len(l.issued) < l.max || now.Sub(l.issued[0]) >= l.window {
			if len(l.issued) == l.max {
				l.issued = l.issued[1:]
			}
			l.issued = append(l.issued, now)
			l.mu.Unlock()
			return nil
		}
		resumeAt := l.issued[0].Add(l.window)
		l.mu.Unlock()

		if err := l.clock.WaitUntil(ctx, resumeAt); err != nil {
			return err
		}
	}
}
