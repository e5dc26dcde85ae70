package audiobook

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shouni/go-audiobook/pkg/audiobook/api"
)

// manualClock は WaitUntil で実時間を待たずに時刻を進める Clock です。
type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func newManualClock() *manualClock {
	return &manualClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) WaitUntil(ctx context.Context, t time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	if t.After(c.now) {
		c.now = t
	}
	c.mu.Unlock()
	return nil
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// fakeSynth は呼び出しを記録し、"<index:text>" を音声データとして返します。
type fakeSynth struct {
	mu      sync.Mutex
	clock   *manualClock
	latency time.Duration
	failAt  map[int]error
	onCall  func(req api.SpeechRequest)

	calls  []api.SpeechRequest
	issued []time.Time
}

func (f *fakeSynth) Synthesize(ctx context.Context, req api.SpeechRequest) ([]byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	if f.clock != nil {
		f.issued = append(f.issued, f.clock.Now())
	}
	f.mu.Unlock()

	if f.onCall != nil {
		f.onCall(req)
	}
	if f.clock != nil && f.latency > 0 {
		f.clock.Advance(f.latency)
	}
	if err, ok := f.failAt[req.Index]; ok {
		return nil, err
	}
	return []byte(fmt.Sprintf("<%d:%s>", req.Index, req.Text)), nil
}

func (f *fakeSynth) callIndices() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]int, 0, len(f.calls))
	for _, c := range f.calls {
		out = append(out, c.Index)
	}
	return out
}

// countingLimiter は Acquire の呼び出し回数だけを数えます。
type countingLimiter struct {
	mu    sync.Mutex
	count int
}

func (l *countingLimiter) Acquire(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	l.count++
	l.mu.Unlock()
	return nil
}

func (l *countingLimiter) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.count
}

func chunksOf(texts ...string) []Chunk {
	chunks := make([]Chunk, len(texts))
	offset := 0
	for i, t := range texts {
		chunks[i] = Chunk{Index: i, Start: offset, End: offset + len(t), Text: t}
		offset += len(t)
	}
	return chunks
}
