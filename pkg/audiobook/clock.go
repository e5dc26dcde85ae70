package audiobook

import (
	"context"
	"time"
)

// Clock はレート制限の待機に使う時刻の抽象化です。
// テストでは実時間を待たない実装に差し替えます。
type Clock interface {
	Now() time.Time
	// WaitUntil は t に達するか ctx がキャンセルされるまで待機します。
	WaitUntil(ctx context.Context, t time.Time) error
}

type realClock struct{}

// RealClock は実時間を使う Clock を返します。
func RealClock() Clock { return realClock{} }

func (realClock) Now() time.Time { return time.Now() }

func (realClock) WaitUntil(ctx context.Context, t time.Time) error {
	d := time.Until(t)
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
